package logx

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Formatter renders a single log line
type Formatter interface {
	Format(level Level, ts time.Time, msg string, fields Fields, err error) string
}

// ConsoleFormatter renders human-readable lines for development
type ConsoleFormatter struct {
	config *Config
}

// NewConsoleFormatter creates a console formatter
func NewConsoleFormatter(config *Config) *ConsoleFormatter {
	return &ConsoleFormatter{config: config}
}

// Format implements Formatter
func (f *ConsoleFormatter) Format(level Level, ts time.Time, msg string, fields Fields, err error) string {
	var b strings.Builder

	b.WriteString(ts.Format(f.config.TimeFormat))
	b.WriteString(" | ")
	b.WriteString(fmt.Sprintf("%-5s", level.String()))
	b.WriteString(" | ")
	b.WriteString(msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" |")
		for _, k := range keys {
			b.WriteString(fmt.Sprintf(" %s=%v", k, fields[k]))
		}
	}

	return b.String()
}

// JSONFormatter renders one JSON object per line
type JSONFormatter struct {
	config *Config
}

// NewJSONFormatter creates a JSON formatter
func NewJSONFormatter(config *Config) *JSONFormatter {
	return &JSONFormatter{config: config}
}

// Format implements Formatter
func (f *JSONFormatter) Format(level Level, ts time.Time, msg string, fields Fields, err error) string {
	entry := map[string]interface{}{
		"timestamp": ts.Format(f.config.TimeFormat),
		"level":     level.String(),
		"message":   msg,
	}

	for k, v := range fields {
		entry[k] = v
	}

	if err != nil {
		entry["error"] = err.Error()
	}

	data, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		// Fall back to a minimal line rather than dropping the log
		return fmt.Sprintf(`{"level":"%s","message":%q}`, level.String(), msg)
	}
	return string(data)
}
