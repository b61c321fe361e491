package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// attrString renders a value without quoting, for subject fields.
func attrString(v slog.Value) string {
	v = v.Resolve()
	if v.Kind() == slog.KindString {
		return v.String()
	}
	return rawValue(v)
}

// formatValue renders a value for key=value output, quoting when the text
// would otherwise be ambiguous.
func formatValue(v slog.Value) string {
	s := rawValue(v.Resolve())
	if needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func rawValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return formatTimestamp(v.Time())
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func needsQuotes(s string) bool {
	return s == "" || strings.ContainsFunc(s, func(r rune) bool {
		return r <= ' ' || r == '=' || r == '"'
	})
}
