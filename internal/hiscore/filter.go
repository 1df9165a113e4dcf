package hiscore

import (
	"fmt"
	"strconv"
	"strings"
)

// Comparator is the comparison a FilterEntry applies.
type Comparator int

// Supported comparators.
const (
	Lt Comparator = iota
	Le
	Eq
	Ge
	Gt
)

var comparatorSymbols = map[Comparator]string{
	Lt: "<",
	Le: "<=",
	Eq: "==",
	Ge: ">=",
	Gt: ">",
}

// parse order matters: two-character operators first.
var comparatorTokens = []struct {
	token string
	cmp   Comparator
}{
	{"<=", Le},
	{">=", Ge},
	{"==", Eq},
	{"<", Lt},
	{">", Gt},
	{"=", Eq},
}

// String implements fmt.Stringer.
func (c Comparator) String() string {
	if s, ok := comparatorSymbols[c]; ok {
		return s
	}
	return fmt.Sprintf("Comparator(%d)", int(c))
}

// Apply evaluates "value <cmp> threshold".
func (c Comparator) Apply(value, threshold float64) bool {
	switch c {
	case Lt:
		return value < threshold
	case Le:
		return value <= threshold
	case Eq:
		return value == threshold
	case Ge:
		return value >= threshold
	case Gt:
		return value > threshold
	default:
		return false
	}
}

// FilterEntry is a single stat condition, e.g. "zulrah >= 100".
type FilterEntry struct {
	Category   Category
	Comparator Comparator
	Threshold  float64
}

// Match reports whether a value satisfies the entry.
func (f FilterEntry) Match(value float64) bool {
	return f.Comparator.Apply(value, f.Threshold)
}

// String renders the entry in the form ParseFilterEntry accepts.
func (f FilterEntry) String() string {
	return f.Category.Name + f.Comparator.String() + strconv.FormatFloat(f.Threshold, 'f', -1, 64)
}

// ParseFilterEntry parses expressions such as "attack<60" or "zulrah >= 100".
func ParseFilterEntry(expr string) (FilterEntry, error) {
	s := strings.ReplaceAll(expr, " ", "")
	for _, tok := range comparatorTokens {
		idx := strings.Index(s, tok.token)
		if idx <= 0 {
			continue
		}
		cat, err := ParseCategory(s[:idx])
		if err != nil {
			return FilterEntry{}, fmt.Errorf("filter %q: %w", expr, err)
		}
		threshold, err := strconv.ParseFloat(s[idx+len(tok.token):], 64)
		if err != nil {
			return FilterEntry{}, fmt.Errorf("filter %q: invalid threshold: %w", expr, err)
		}
		return FilterEntry{Category: cat, Comparator: tok.cmp, Threshold: threshold}, nil
	}
	return FilterEntry{}, fmt.Errorf("filter %q: missing comparator", expr)
}

// ParseFilters parses a list of filter expressions.
func ParseFilters(exprs []string) ([]FilterEntry, error) {
	out := make([]FilterEntry, 0, len(exprs))
	for _, e := range exprs {
		if strings.TrimSpace(e) == "" {
			continue
		}
		f, err := ParseFilterEntry(e)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
