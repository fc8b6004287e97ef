package vector

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logMu  sync.RWMutex
	pkgLog logrus.FieldLogger = newDefaultLogger()
)

func newDefaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.WarnLevel)
	return l
}

// SetLogger replaces the package logger. Passing nil restores the default.
func SetLogger(l logrus.FieldLogger) {
	logMu.Lock()
	defer logMu.Unlock()
	if l == nil {
		l = newDefaultLogger()
	}
	pkgLog = l
}

func logger() logrus.FieldLogger {
	logMu.RLock()
	defer logMu.RUnlock()
	return pkgLog
}
