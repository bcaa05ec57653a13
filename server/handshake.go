package server

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"time"
)

// Handshake is the login exchange a subscriber goes through before it
// receives prices. Credentials are read but never checked.
type Handshake struct {
	Banner         string
	PasswordPrompt string
	Granted        string
}

func DefaultHandshake() Handshake {
	return Handshake{
		Banner:         "Fake HFT DDE Server 1.0\nLogin:\n",
		PasswordPrompt: "Password:\n",
		Granted:        "> Access granted\n",
	}
}

// Run performs the exchange on conn. Reads go through br so any bytes the
// client sent early stay buffered for the liveness watcher.
func (h Handshake) Run(conn net.Conn, br *bufio.Reader, timeout time.Duration) error {
	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
		defer conn.SetDeadline(time.Time{})
	}

	if _, err := conn.Write([]byte(h.Banner)); err != nil {
		return fmt.Errorf("write banner: %w", err)
	}
	if err := discardLine(br); err != nil {
		return fmt.Errorf("read login: %w", err)
	}
	if _, err := conn.Write([]byte(h.PasswordPrompt)); err != nil {
		return fmt.Errorf("write password prompt: %w", err)
	}
	if err := discardLine(br); err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	if _, err := conn.Write([]byte(h.Granted)); err != nil {
		return fmt.Errorf("write granted: %w", err)
	}
	return nil
}

// discardLine consumes input up to and including the next newline,
// however long the line is.
func discardLine(br *bufio.Reader) error {
	for {
		_, err := br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return err
	}
}
