// Package vars expands {token} and {token:format} placeholders in recipe
// strings, chiefly output filenames. Built-in date and time tokens are
// frozen at resolver construction so every step in a run sees the same
// values even when the run spans midnight.
package vars

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// UnknownTokenError reports a placeholder that matches no known variable.
// It is a configuration error: an unresolved token would silently produce
// a wrong filename, so expansion fails instead.
type UnknownTokenError struct {
	Token     string
	Available []string
}

func (e *UnknownTokenError) Error() string {
	return fmt.Sprintf("unknown variable {%s}; available variables: %s",
		e.Token, strings.Join(e.Available, ", "))
}

var tokenPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)(?::([^{}]+))?\}`)

// Resolver holds the built-in and user-defined variables for one run.
type Resolver struct {
	now      time.Time
	builtins map[string]string
	custom   map[string]any
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock fixes the reference time; without it the wall clock is used.
func WithClock(t time.Time) Option {
	return func(r *Resolver) { r.now = t }
}

// WithInputPath enables the input_filename/input_basename/input_extension
// tokens.
func WithInputPath(path string) Option {
	return func(r *Resolver) {
		base := filepath.Base(path)
		ext := filepath.Ext(base)
		r.builtins["input_filename"] = base
		r.builtins["input_basename"] = strings.TrimSuffix(base, ext)
		r.builtins["input_extension"] = ext
	}
}

// WithRecipePath enables the recipe_filename/recipe_basename tokens.
func WithRecipePath(path string) Option {
	return func(r *Resolver) {
		base := filepath.Base(path)
		r.builtins["recipe_filename"] = base
		r.builtins["recipe_basename"] = strings.TrimSuffix(base, filepath.Ext(base))
	}
}

// New builds a resolver, computing the built-in tokens once.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		now:      time.Now(),
		builtins: make(map[string]string),
		custom:   make(map[string]any),
	}
	for _, opt := range opts {
		opt(r)
	}
	n := r.now
	for token, layout := range map[string]string{
		"year":      "2006",
		"month":     "01",
		"day":       "02",
		"hour":      "15",
		"minute":    "04",
		"second":    "05",
		"date":      "20060102",
		"time":      "150405",
		"timestamp": "20060102_150405",
		"MMDD":      "0102",
		"YYYY":      "2006",
		"YY":        "06",
		"MM":        "01",
		"DD":        "02",
		"HH":        "15",
		"HHMM":      "1504",
	} {
		r.builtins[token] = n.Format(layout)
	}
	return r
}

// Now returns the frozen reference time.
func (r *Resolver) Now() time.Time { return r.now }

// Register adds or replaces a user-defined variable.
func (r *Resolver) Register(name string, value any) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("variable name cannot be empty")
	}
	r.custom[name] = value
	return nil
}

// Lookup returns a variable's value, custom values shadowing built-ins.
func (r *Resolver) Lookup(name string) (any, bool) {
	if v, ok := r.custom[name]; ok {
		return v, true
	}
	if v, ok := r.builtins[name]; ok {
		return v, true
	}
	return nil, false
}

// Available returns all variable names, sorted.
func (r *Resolver) Available() []string {
	seen := make(map[string]bool)
	var out []string
	for name := range r.builtins {
		seen[name] = true
		out = append(out, name)
	}
	for name := range r.custom {
		if !seen[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Expand replaces every placeholder in the template. Unknown tokens and
// unknown formats fail rather than passing through.
func (r *Resolver) Expand(template string) (string, error) {
	if !strings.Contains(template, "{") {
		return template, nil
	}
	var expandErr error
	result := tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		if expandErr != nil {
			return match
		}
		groups := tokenPattern.FindStringSubmatch(match)
		name, format := groups[1], groups[2]
		value, err := r.resolve(name, format)
		if err != nil {
			expandErr = err
			return match
		}
		return value
	})
	if expandErr != nil {
		return "", expandErr
	}
	return result, nil
}

// ExpandValue walks strings, maps, and slices, expanding every string it
// finds. Used to substitute variables across step parameters before a
// processor sees them.
func (r *Resolver) ExpandValue(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return r.Expand(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			expanded, err := r.ExpandValue(val)
			if err != nil {
				return nil, err
			}
			out[k] = expanded
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			expanded, err := r.ExpandValue(val)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	default:
		return v, nil
	}
}

func (r *Resolver) resolve(name, format string) (string, error) {
	if format != "" {
		switch name {
		case "date":
			return r.formatWith(format, dateFormats)
		case "time":
			return r.formatWith(format, timeFormats)
		default:
			if _, ok := r.Lookup(name); !ok {
				return "", &UnknownTokenError{Token: name, Available: r.Available()}
			}
			return "", fmt.Errorf("variable {%s} does not accept a format (only {date:...} and {time:...} do)", name)
		}
	}
	v, ok := r.Lookup(name)
	if !ok {
		return "", &UnknownTokenError{Token: name, Available: r.Available()}
	}
	return stringify(v), nil
}

var dateFormats = map[string]string{
	"YYYY":      "2006",
	"YY":        "06",
	"MM":        "01",
	"DD":        "02",
	"MMDD":      "0102",
	"YYYYMMDD":  "20060102",
	"Month":     "Jan",
	"MonthName": "January",
	"MonthDay":  "Jan02",
}

var timeFormats = map[string]string{
	"HH":     "15",
	"MM":     "04",
	"SS":     "05",
	"HHMM":   "1504",
	"HHMMSS": "150405",
}

func (r *Resolver) formatWith(format string, layouts map[string]string) (string, error) {
	layout, ok := layouts[format]
	if !ok {
		var known []string
		for k := range layouts {
			known = append(known, k)
		}
		sort.Strings(known)
		return "", fmt.Errorf("unknown format %q; supported formats: %s", format, strings.Join(known, ", "))
	}
	return r.now.Format(layout), nil
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
