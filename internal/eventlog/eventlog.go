// Package eventlog appends single-line application records to a flat file.
//
// Each record looks like
//
//	[2024-05-01T12:00:00.000Z] app.INFO: [send-message] Request data receive {"number":"1@c.us"}
//
// The file is never rotated. Write failures are reported on the diagnostic
// logger and otherwise ignored so callers are never failed by logging.
package eventlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/wa-relay/pkg/logging"
)

// Channels understood by the log format.
const (
	ChannelDebug   = "DEBUG"
	ChannelInfo    = "INFO"
	ChannelSuccess = "SUCCESS"
	ChannelError   = "ERROR"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Logger appends records to one file. A nil *Logger discards everything.
type Logger struct {
	path string
	diag *logging.Logger
	now  func() time.Time

	mu sync.Mutex
}

// New returns a Logger writing to path. The parent directory is created if
// missing; failure to do so is only reported.
func New(path string, diag *logging.Logger) *Logger {
	if diag == nil {
		diag = logging.NewWithWriter("info", os.Stderr)
	}
	l := &Logger{
		path: path,
		diag: diag,
		now:  time.Now,
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			diag.Error("eventlog: create directory failed", "dir", dir, "error", err)
		}
	}
	return l
}

// Path returns the file the logger appends to.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Log appends one record. data may be nil.
func (l *Logger) Log(channel, message string, data any) {
	if l == nil {
		return
	}
	line := l.format(channel, message, data)

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.diag.Error("eventlog: open failed", "path", l.path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		l.diag.Error("eventlog: write failed", "path", l.path, "error", err)
	}
}

func (l *Logger) Debug(message string, data any)   { l.Log(ChannelDebug, message, data) }
func (l *Logger) Info(message string, data any)    { l.Log(ChannelInfo, message, data) }
func (l *Logger) Success(message string, data any) { l.Log(ChannelSuccess, message, data) }
func (l *Logger) Error(message string, data any)   { l.Log(ChannelError, message, data) }

func (l *Logger) format(channel, message string, data any) string {
	channel = strings.ToUpper(strings.TrimSpace(channel))
	if channel == "" {
		channel = ChannelDebug
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] app.%s: %s", l.now().UTC().Format(timestampLayout), channel, singleLine(message))

	if data != nil {
		encoded, err := marshalCompact(data)
		if err != nil {
			l.diag.Warn("eventlog: data not serializable", "message", message, "error", err)
		} else {
			b.WriteByte(' ')
			b.Write(encoded)
		}
	}
	b.WriteByte('\n')
	return b.String()
}

// marshalCompact encodes v without HTML escaping and without the trailing newline.
func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

var lineBreaks = strings.NewReplacer("\r\n", `\n`, "\n", `\n`, "\r", `\r`)

func singleLine(s string) string {
	return lineBreaks.Replace(s)
}
