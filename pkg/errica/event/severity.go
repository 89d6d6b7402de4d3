// Package event defines the immutable event record that flows from capture
// points through routing to every delivery channel.
package event

import (
	"fmt"
	"strings"
)

// Severity is the ordered importance of an event.
type Severity int

const (
	Debug Severity = iota + 1
	Info
	Warning
	Error
	Critical
)

// Levels lists every severity in ascending order.
var Levels = []Severity{Debug, Info, Warning, Error, Critical}

// String returns the upper-case name used as routing table key.
func (s Severity) String() string {
	switch s {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	case Critical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("SEVERITY(%d)", int(s))
	}
}

// Valid reports whether s is one of the defined severities.
func (s Severity) Valid() bool {
	return s >= Debug && s <= Critical
}

// AtLeast reports whether s is at or above min.
func (s Severity) AtLeast(min Severity) bool {
	return s >= min
}

// ParseSeverity parses a severity name, case-insensitively.
func ParseSeverity(name string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return Debug, nil
	case "INFO":
		return Info, nil
	case "WARNING", "WARN":
		return Warning, nil
	case "ERROR":
		return Error, nil
	case "CRITICAL", "FATAL":
		return Critical, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", name)
	}
}

// MustParseSeverity is like ParseSeverity but panics on unknown names.
func MustParseSeverity(name string) Severity {
	s, err := ParseSeverity(name)
	if err != nil {
		panic(err)
	}
	return s
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
