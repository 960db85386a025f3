package whatsapp

import (
	"fmt"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/wolfman30/wa-relay/pkg/logging"
)

// waLogger adapts the service logger to whatsmeow's log interface.
type waLogger struct {
	log *logging.Logger
}

var _ waLog.Logger = (*waLogger)(nil)

func newWALogger(logger *logging.Logger, component string) *waLogger {
	return &waLogger{log: logger.With("component", "whatsmeow-"+component)}
}

func (w *waLogger) Debugf(msg string, args ...interface{}) {
	w.log.Debug(fmt.Sprintf(msg, args...))
}

func (w *waLogger) Infof(msg string, args ...interface{}) {
	w.log.Info(fmt.Sprintf(msg, args...))
}

func (w *waLogger) Warnf(msg string, args ...interface{}) {
	w.log.Warn(fmt.Sprintf(msg, args...))
}

func (w *waLogger) Errorf(msg string, args ...interface{}) {
	w.log.Error(fmt.Sprintf(msg, args...))
}

func (w *waLogger) Sub(module string) waLog.Logger {
	return &waLogger{log: w.log.With("module", module)}
}
