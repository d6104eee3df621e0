package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// LevelFromString parses a level name case-insensitively. Besides zap's own
// names it accepts "warning" and "critical", which older deployments set
// through LOG_LEVEL.
func LevelFromString(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "warning":
		return zapcore.WarnLevel, nil
	case "critical":
		return zapcore.ErrorLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}
