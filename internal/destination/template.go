// Package destination owns the files a run appends to: naming them from a
// window, opening them for append (optionally compressed), writing the
// header only into new files, and shipping closed files elsewhere.
package destination

import (
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	"github.com/kamazee/vcutil/pkg/vcerrors"
)

// directives accepted after '%'. Anything else is a configuration error.
const directives = "aAbBcCdDeFgGhHIjklLmMnNpPQrRsStTuUVwWxXyYzZf%"

// Template names destinations with strftime placeholders ("%Y-%m-%d.csv").
type Template struct {
	pattern    string
	timeFields bool
}

// ParseTemplate validates a destination name template.
func ParseTemplate(pattern string) (Template, error) {
	if strings.TrimSpace(pattern) == "" {
		return Template{}, vcerrors.New(vcerrors.ErrorTypeConfig, "destination template is empty")
	}

	tmpl := Template{pattern: pattern}
	for i := 0; i < len(pattern); i++ {
		if pattern[i] != '%' {
			continue
		}
		j := i + 1
		if j < len(pattern) && (pattern[j] == '-' || pattern[j] == ':') {
			j++
		}
		if j < len(pattern) && (pattern[j] == 'E' || pattern[j] == 'O') {
			j++
		}
		if j >= len(pattern) || !strings.ContainsRune(directives, rune(pattern[j])) {
			return Template{}, vcerrors.Newf(vcerrors.ErrorTypeConfig,
				"unsupported placeholder in destination template at offset %d", i).
				WithDetail("template", pattern)
		}
		switch pattern[j] {
		case '%', 'n', 't':
		default:
			tmpl.timeFields = true
		}
		i = j
	}
	return tmpl, nil
}

// MustParseTemplate is ParseTemplate for constants in tests and examples.
func MustParseTemplate(pattern string) Template {
	t, err := ParseTemplate(pattern)
	if err != nil {
		panic(err)
	}
	return t
}

// HasTimeFields reports whether the name depends on the time it is given.
func (t Template) HasTimeFields() bool { return t.timeFields }

// Name renders the destination name for a window beginning at begin.
func (t Template) Name(begin time.Time) string {
	return strftime.Format(t.pattern, begin)
}

// String returns the template pattern.
func (t Template) String() string { return t.pattern }
