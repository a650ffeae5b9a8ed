package logger

import (
	"log"
	"strings"
)

// ToStdLogger adapts a Logger to a stdlib *log.Logger for components that
// take *log.Logger directly. All lines are logged at info level.
func ToStdLogger(l Logger) *log.Logger {
	return log.New(&infoWriter{l: l}, "", 0)
}

type infoWriter struct {
	l Logger
}

func (w *infoWriter) Write(p []byte) (int, error) {
	w.l.Info("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
