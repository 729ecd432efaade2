package config

import (
	"fmt"
	"strings"
	"time"

	gconfig "github.com/Laisky/go-config/v2"
)

// Getter retrieves raw configuration values by dotted key path.
type Getter func(key string) any

// Shared reads from the process-wide configuration.
func Shared(key string) any {
	return gconfig.S.Get(key)
}

// Int reads an int configuration value with a default fallback.
func Int(key string, def int) int {
	return IntFrom(Shared, key, def)
}

// IntFrom reads an int value through get.
func IntFrom(get Getter, key string, def int) int {
	switch v := get(key).(type) {
	case nil:
		return def
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return def
		}
		var parsed int
		if _, err := fmt.Sscanf(trimmed, "%d", &parsed); err != nil {
			return def
		}
		return parsed
	default:
		return def
	}
}

// Float reads a float64 configuration value with a default fallback.
func Float(key string, def float64) float64 {
	return FloatFrom(Shared, key, def)
}

// FloatFrom reads a float64 value through get.
func FloatFrom(get Getter, key string, def float64) float64 {
	switch v := get(key).(type) {
	case nil:
		return def
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return def
		}
		var parsed float64
		if _, err := fmt.Sscanf(trimmed, "%f", &parsed); err != nil {
			return def
		}
		return parsed
	default:
		return def
	}
}

// String reads a trimmed string value, returning def when empty.
func String(key, def string) string {
	value := strings.TrimSpace(gconfig.S.GetString(key))
	if value == "" {
		return def
	}
	return value
}

// DurationMS reads a millisecond count as a duration.
func DurationMS(key string, defMS int) time.Duration {
	return time.Duration(Int(key, defMS)) * time.Millisecond
}

// DurationSeconds reads a second count as a duration.
func DurationSeconds(key string, defSeconds int) time.Duration {
	return time.Duration(Int(key, defSeconds)) * time.Second
}
