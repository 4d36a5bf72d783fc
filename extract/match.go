package extract

import (
	"regexp"
	"strings"

	"github.com/use-agent/pricewatch/engine"
	"github.com/use-agent/pricewatch/site"
)

var priceRe = regexp.MustCompile(`\d[\d.,]*`)

// NormalizePrice turns a displayed price such as "$1,299.00" or "1.299,50 €"
// into a plain decimal string ("1299.00", "1299.50"). A trailing group of
// one or two digits is the fractional part; other separators are thousands
// separators. It reports false when raw holds no digits.
func NormalizePrice(raw string) (string, bool) {
	m := priceRe.FindString(strings.Join(strings.Fields(raw), ""))
	m = strings.TrimRight(m, ".,")
	if m == "" {
		return "", false
	}

	dec := -1
	if i := strings.LastIndexAny(m, ".,"); i >= 0 {
		if frac := len(m) - i - 1; frac == 1 || frac == 2 {
			dec = i
		}
	}

	var b strings.Builder
	for i := 0; i < len(m); i++ {
		switch c := m[i]; {
		case c >= '0' && c <= '9':
			b.WriteByte(c)
		case i == dec:
			b.WriteByte('.')
		}
	}
	return b.String(), true
}

// ruleMatcher returns a predicate for nodes satisfying r: visible, with the
// required text, and in the enabled or disabled state r asks for.
func ruleMatcher(r site.AvailabilityRule) func(engine.Node) bool {
	return func(n engine.Node) bool {
		if !n.Visible {
			return false
		}
		if r.Text != "" && n.Text != r.Text {
			return false
		}
		if r.Contains != "" && !strings.Contains(strings.ToLower(n.Text), strings.ToLower(r.Contains)) {
			return false
		}
		switch {
		case r.Enabled:
			return !n.Disabled()
		case r.Disabled:
			return n.Disabled()
		}
		return true
	}
}
