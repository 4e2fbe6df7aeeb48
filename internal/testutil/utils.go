package testutil

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
)

// TestLogger returns a logger whose lines are tagged with the test name.
// It writes to stdout rather than t.Log because sessions and listeners
// may still log after the test has returned.
func TestLogger(t *testing.T) *log.Logger {
	return log.New(os.Stdout, fmt.Sprintf("[%s] ", t.Name()), log.LstdFlags|log.Lmicroseconds)
}

// LogBuffer collects log output written from any goroutine.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CaptureLogger returns a logger that records into the returned buffer.
func CaptureLogger() (*log.Logger, *LogBuffer) {
	buf := &LogBuffer{}
	return log.New(buf, "[test] ", 0), buf
}
