// Package logging provides the structured-but-lightweight logging
// helpers used throughout the service. Log lines never carry PHI:
// callers pass ids, hashes, and counts, never clinical free text.
package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
)

var std = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds)

// Fields is a set of key=value pairs appended to a log line, in no
// fixed order.
type Fields map[string]any

func (f Fields) render() string {
	if len(f) == 0 {
		return ""
	}
	var b strings.Builder
	for k, v := range f {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(toString(v))
	}
	return b.String()
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		if strings.ContainsAny(t, " \t\n") {
			return `"` + t + `"`
		}
		return t
	case error:
		return `"` + t.Error() + `"`
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Info logs an informational event with structured fields.
func Info(event string, fields Fields) {
	std.Printf("level=info event=%s%s", event, fields.render())
}

// Warn logs a recoverable anomaly with structured fields.
func Warn(event string, fields Fields) {
	std.Printf("level=warn event=%s%s", event, fields.render())
}

// Error logs a failure with structured fields.
func Error(event string, fields Fields) {
	std.Printf("level=error event=%s%s", event, fields.render())
}
