package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{in: "", want: zapcore.InfoLevel},
		{in: "INFO", want: zapcore.InfoLevel},
		{in: "error", want: zapcore.ErrorLevel},
		{in: "debug", want: zapcore.Level(-DEBUG)},
		{in: "trace", want: zapcore.Level(-TRACE)},
		{in: "2", want: zapcore.Level(-2)},
		{in: "-1", wantErr: true},
		{in: "loud", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := parseLevel(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	logger, sync, err := New("debug")
	require.NoError(t, err)
	require.True(t, logger.V(DEBUG).Enabled())
	require.False(t, logger.V(TRACE).Enabled())
	_ = sync()

	_, _, err = New("nope")
	require.Error(t, err)
}
