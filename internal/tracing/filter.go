package tracing

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Filter decides whether a callsite is enabled.
type Filter interface {
	Enabled(meta *Metadata) bool
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(meta *Metadata) bool

// Enabled implements Filter.
func (f FilterFunc) Enabled(meta *Metadata) bool {
	return f(meta)
}

// ErrFilterUnset is returned by EnvFilterFromEnv when the variable is empty.
var ErrFilterUnset = errors.New("filter environment variable is not set")

// levelOff disables a target entirely.
const levelOff = zapcore.FatalLevel + 1

type directive struct {
	target string
	level  zapcore.Level
}

// EnvFilter enables callsites by target and level.
//
// The expression is a comma separated list of directives. A directive is
// either a bare level ("info"), which sets the default, "target=level", or a
// bare target, which enables every level for that target. The longest
// matching target wins; "a" matches "a", "a/b" and "a.b".
type EnvFilter struct {
	def        zapcore.Level
	directives []directive
}

// NewEnvFilter parses a filter expression. Without a default directive only
// errors are enabled for unmatched targets.
func NewEnvFilter(expr string) (*EnvFilter, error) {
	f := &EnvFilter{def: zapcore.ErrorLevel}

	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		target, levelStr, hasLevel := strings.Cut(part, "=")
		if !hasLevel {
			if level, err := parseLevel(part); err == nil {
				f.def = level
				continue
			}
			f.directives = append(f.directives, directive{target: part, level: zapcore.DebugLevel})
			continue
		}

		target = strings.TrimSpace(target)
		if target == "" {
			return nil, fmt.Errorf("invalid filter directive %q: empty target", part)
		}
		level, err := parseLevel(strings.TrimSpace(levelStr))
		if err != nil {
			return nil, fmt.Errorf("invalid filter directive %q: %w", part, err)
		}
		f.directives = append(f.directives, directive{target: target, level: level})
	}

	sort.SliceStable(f.directives, func(i, j int) bool {
		return len(f.directives[i].target) > len(f.directives[j].target)
	})
	return f, nil
}

// EnvFilterFromEnv parses the filter expression held by the environment variable key.
func EnvFilterFromEnv(key string) (*EnvFilter, error) {
	expr := os.Getenv(key)
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("%s: %w", key, ErrFilterUnset)
	}
	return NewEnvFilter(expr)
}

// Enabled implements Filter.
func (f *EnvFilter) Enabled(meta *Metadata) bool {
	return meta.Level >= f.levelFor(meta.Target)
}

// MaxLevel returns the most verbose level any directive enables.
func (f *EnvFilter) MaxLevel() zapcore.Level {
	lvl := f.def
	for _, d := range f.directives {
		if d.level < lvl {
			lvl = d.level
		}
	}
	return lvl
}

func (f *EnvFilter) levelFor(target string) zapcore.Level {
	for _, d := range f.directives {
		if matchesTarget(target, d.target) {
			return d.level
		}
	}
	return f.def
}

func matchesTarget(target, prefix string) bool {
	if !strings.HasPrefix(target, prefix) {
		return false
	}
	if len(target) == len(prefix) {
		return true
	}
	switch target[len(prefix)] {
	case '/', '.', ':':
		return true
	}
	return false
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(s) {
	case "trace":
		return zapcore.DebugLevel, nil
	case "off":
		return levelOff, nil
	}
	return zapcore.ParseLevel(strings.ToLower(s))
}
