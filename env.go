package vector

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Env is the runtime context that sessions run inside: driver configuration
// options, the drivers enabled for probing, and the temp directory used by
// drivers that must spill virtual files to disk.
//
// Every open collection holds exactly one entry in its Env from before its
// session starts until after the session stops.
type Env struct {
	mu      sync.Mutex
	active  int
	options map[string]string
	enabled []string
	tempDir string
	log     logrus.FieldLogger
}

var (
	defaultEnvOnce sync.Once
	defaultEnv     *Env
)

// DefaultEnv returns the process-wide runtime context.
func DefaultEnv() *Env {
	defaultEnvOnce.Do(func() {
		defaultEnv = &Env{options: map[string]string{}}
	})
	return defaultEnv
}

// NewEnv builds a runtime context from cfg.
func NewEnv(cfg Config) (*Env, error) {
	e := &Env{
		options: make(map[string]string, len(cfg.Options)),
		enabled: append([]string(nil), cfg.EnabledDrivers...),
		tempDir: cfg.TempDir,
	}
	for k, v := range cfg.Options {
		e.options[k] = v
	}
	for _, name := range e.enabled {
		if _, ok := supportedDrivers[name]; !ok {
			return nil, fmt.Errorf("%w: unsupported driver: %q", ErrDriver, name)
		}
	}
	if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid log level: %q", ErrInvalidArgument, cfg.LogLevel)
		}
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetLevel(level)
		e.log = l
	}
	return e, nil
}

// Option returns a configuration option, or "".
func (e *Env) Option(key string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.options[key]
}

// SetOption sets a configuration option for sessions started afterwards.
func (e *Env) SetOption(key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.options == nil {
		e.options = map[string]string{}
	}
	e.options[key] = value
}

// EnabledDrivers returns the drivers probed when a collection does not
// restrict them itself. Empty means all registered drivers.
func (e *Env) EnabledDrivers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.enabled...)
}

// TempDir returns the directory drivers use for scratch files.
func (e *Env) TempDir() string {
	if e.tempDir != "" {
		return e.tempDir
	}
	return os.TempDir()
}

// Active returns the number of entries currently held in the context.
func (e *Env) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Logger returns the context's logger, falling back to the package logger.
func (e *Env) Logger() logrus.FieldLogger {
	if e.log != nil {
		return e.log
	}
	return logger()
}

func (e *Env) enter() {
	e.mu.Lock()
	e.active++
	n := e.active
	e.mu.Unlock()
	e.Logger().WithField("active", n).Debug("entered runtime context")
}

func (e *Env) exit() {
	e.mu.Lock()
	if e.active == 0 {
		e.mu.Unlock()
		panic("vector: runtime context exited more times than entered")
	}
	e.active--
	n := e.active
	e.mu.Unlock()
	e.Logger().WithField("active", n).Debug("exited runtime context")
}
