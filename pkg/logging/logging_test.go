package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{name: "json info", level: "info", format: "json"},
		{name: "default format", level: "warn"},
		{name: "console debug", level: "debug", format: "console"},
		{name: "bad level", level: "loud", wantErr: true},
		{name: "bad format", level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			want, _ := zapcore.ParseLevel(tt.level)
			assert.True(t, l.Core().Enabled(want))
			assert.False(t, l.Core().Enabled(want-1))
		})
	}
}

func TestOrNop(t *testing.T) {
	t.Parallel()
	assert.NotNil(t, OrNop(nil))
}
