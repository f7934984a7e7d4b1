package logging

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is the logging surface handed to components. It is satisfied by
// logrus entries so call sites stay decoupled from the concrete logger.
type Logger interface {
	logrus.FieldLogger
}

var root = struct {
	logger *logrus.Logger
	mu     sync.Mutex
}{
	logger: logrus.New(),
}

// New returns a logger scoped to the named component.
func New(component string) Logger {
	return root.logger.WithField("component", component)
}

// SetLevel applies the configured level to the shared logger. Unknown levels
// fall back to info with a warning rather than failing startup.
func SetLevel(level string) {
	root.mu.Lock()
	defer root.mu.Unlock()
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		root.logger.WithError(err).Warnf("unknown log level %q, using info", level)
		parsed = logrus.InfoLevel
	}
	root.logger.SetLevel(parsed)
}

// SetOutput redirects the shared logger, used by tests to silence output.
func SetOutput(w io.Writer) {
	root.mu.Lock()
	defer root.mu.Unlock()
	root.logger.SetOutput(w)
}
