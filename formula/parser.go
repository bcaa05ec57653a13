package formula

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rustyeddy/pricehub/pricing"
)

const digitsMarker = ", digits="

// Definition is one parsed configuration line: a single side of a
// synthetic instrument.
type Definition struct {
	Line    int
	Name    string
	Side    pricing.Side
	Formula Formula
	// Precision is DefaultPrecision unless the line carried a valid
	// digits= directive.
	Precision int
}

// Warning is a non-fatal diagnostic produced while parsing or merging.
type Warning struct {
	Line int
	Msg  string
}

func (w Warning) String() string {
	if w.Line <= 0 {
		return w.Msg
	}
	return fmt.Sprintf("line %d: %s", w.Line, w.Msg)
}

// LoadFile parses the formula file at path. The error is only set when the
// file cannot be read; malformed lines become warnings.
func LoadFile(path string) ([]Definition, []Warning, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open formulas: %w", err)
	}
	defer f.Close()

	defs, warns := Parse(f)
	return defs, warns, nil
}

// Parse reads formula definitions line by line:
//
//	<name>_<bid|ask> = <term> (<+|-> <term>)* [, digits=<int>]
//
// Blank lines and lines starting with '#' are ignored.
func Parse(r io.Reader) ([]Definition, []Warning) {
	var (
		defs  []Definition
		warns []Warning
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		def, lineWarns, ok := parseLine(lineNo, line)
		warns = append(warns, lineWarns...)
		if ok {
			defs = append(defs, def)
		}
	}
	if err := sc.Err(); err != nil {
		warns = append(warns, Warning{Line: lineNo, Msg: fmt.Sprintf("read error: %v", err)})
	}
	return defs, warns
}

func parseLine(lineNo int, line string) (Definition, []Warning, bool) {
	var warns []Warning
	warn := func(format string, args ...any) {
		warns = append(warns, Warning{Line: lineNo, Msg: fmt.Sprintf(format, args...)})
	}

	key, rhs, found := strings.Cut(line, "=")
	if !found {
		warn("missing '=' in %q", line)
		return Definition{}, warns, false
	}
	key = strings.TrimSpace(key)
	rhs = strings.TrimSpace(rhs)

	def := Definition{Line: lineNo, Precision: DefaultPrecision}

	body := rhs
	if i := strings.Index(rhs, digitsMarker); i >= 0 {
		body = strings.TrimSpace(rhs[:i])
		digits := strings.TrimSpace(rhs[i+len(digitsMarker):])
		p, err := strconv.Atoi(digits)
		switch {
		case err != nil:
			warn("invalid digits %q for %s, using %d", digits, key, DefaultPrecision)
		case p < 0 || p > MaxPrecision:
			warn("digits %d for %s out of range 0..%d, using %d", p, key, MaxPrecision, DefaultPrecision)
		default:
			def.Precision = p
		}
	}

	us := strings.LastIndexByte(key, '_')
	if us < 0 {
		warn("key %q has no _bid or _ask suffix", key)
		return Definition{}, warns, false
	}
	def.Name = key[:us]
	switch key[us+1:] {
	case "bid":
		def.Side = pricing.SideBid
	case "ask":
		def.Side = pricing.SideAsk
	default:
		warn("key %q has no _bid or _ask suffix", key)
		return Definition{}, warns, false
	}
	if def.Name == "" {
		warn("key %q has an empty instrument name", key)
		return Definition{}, warns, false
	}

	def.Formula = parseTerms(body, warn)
	return def, warns, true
}

func parseTerms(body string, warn func(string, ...any)) Formula {
	tokens := strings.Fields(body)
	var f Formula

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		op := OpAdd
		switch tok {
		case "+", "-":
			if tok == "-" {
				op = OpSubtract
			}
			if i+1 >= len(tokens) {
				warn("dangling operator %q", tok)
				return f
			}
			i++
			tok = tokens[i]
		default:
			if len(f) > 0 {
				warn("missing operator before %q, assuming +", tok)
			}
		}

		t, ok := parseOperand(tok)
		if !ok {
			warn("dropping unparseable term %q", tok)
			continue
		}
		t.Op = op
		f = append(f, t)
	}
	return f
}

// parseOperand reads SYMBOL.bid, SYMBOL.ask or a float constant. The symbol
// is everything before the last dot, so dotted symbols such as XAUUSD.m work.
func parseOperand(tok string) (Term, bool) {
	if dot := strings.LastIndexByte(tok, '.'); dot >= 0 {
		switch tok[dot+1:] {
		case "bid":
			return Term{Kind: KindField, Symbol: tok[:dot], Side: pricing.SideBid}, true
		case "ask":
			return Term{Kind: KindField, Symbol: tok[:dot], Side: pricing.SideAsk}, true
		}
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return Term{}, false
	}
	return Term{Kind: KindConstant, Value: v}, true
}
