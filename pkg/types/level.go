package types

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Level is a log severity. Numeric values follow the RFC 5424 ordering used
// by Monolog so records produced by PHP applications map 1:1.
type Level int

const (
	LevelDebug     Level = 100
	LevelInfo      Level = 200
	LevelNotice    Level = 250
	LevelWarning   Level = 300
	LevelError     Level = 400
	LevelCritical  Level = 500
	LevelAlert     Level = 550
	LevelEmergency Level = 600
)

var levelNames = map[Level]string{
	LevelDebug:     "DEBUG",
	LevelInfo:      "INFO",
	LevelNotice:    "NOTICE",
	LevelWarning:   "WARNING",
	LevelError:     "ERROR",
	LevelCritical:  "CRITICAL",
	LevelAlert:     "ALERT",
	LevelEmergency: "EMERGENCY",
}

// Name returns the upper-case level name, e.g. "WARNING".
// Unknown values render as "LEVEL(n)".
func (l Level) Name() string {
	if n, ok := levelNames[l]; ok {
		return n
	}
	return "LEVEL(" + strconv.Itoa(int(l)) + ")"
}

func (l Level) String() string { return l.Name() }

// Label returns the lower-case name used as the Loki "level" label.
func (l Level) Label() string { return strings.ToLower(l.Name()) }

// ParseLevel accepts a level name in any case ("warn" is an alias for
// warning) or a Monolog numeric value such as "400".
func ParseLevel(s string) (Level, error) {
	name := strings.TrimSpace(strings.ToUpper(s))
	if name == "WARN" {
		return LevelWarning, nil
	}
	for l, n := range levelNames {
		if n == name {
			return l, nil
		}
	}
	if v, err := strconv.Atoi(name); err == nil {
		if _, ok := levelNames[Level(v)]; ok {
			return Level(v), nil
		}
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// UnmarshalText lets Level be used directly in YAML config files.
func (l *Level) UnmarshalText(text []byte) error {
	v, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// MarshalText renders the lower-case name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.Label()), nil
}

// LevelFromSlog maps a slog level onto the closest Level.
func LevelFromSlog(l slog.Level) Level {
	switch {
	case l < slog.LevelInfo:
		return LevelDebug
	case l < slog.LevelWarn:
		return LevelInfo
	case l < slog.LevelError:
		return LevelWarning
	case l == slog.LevelError:
		return LevelError
	default:
		return LevelCritical
	}
}

// Slog maps l back onto the closest slog level.
func (l Level) Slog() slog.Level {
	switch {
	case l < LevelInfo:
		return slog.LevelDebug
	case l < LevelWarning:
		return slog.LevelInfo
	case l < LevelError:
		return slog.LevelWarn
	case l == LevelError:
		return slog.LevelError
	default:
		return slog.LevelError + 4
	}
}
