package testutil

import (
	"io"
	"os"
	"testing"

	"github.com/charmbracelet/log"
)

// RequireIntegration skips tests that need Docker unless CHAT_INTEGRATION=1.
func RequireIntegration(tb testing.TB) {
	tb.Helper()
	if os.Getenv("CHAT_INTEGRATION") != "1" {
		tb.Skip("set CHAT_INTEGRATION=1 to run container-backed tests")
	}
}

// Logger discards everything.
func Logger() *log.Logger {
	return log.New(io.Discard)
}
