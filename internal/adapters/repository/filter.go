package repository

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Op is a comparison operator.
type Op string

const (
	OpEq  Op = "="
	OpNeq Op = "!="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpIn  Op = "in"
)

// Condition compares one field against a value, or a set of values for OpIn.
type Condition struct {
	Field  string
	Op     Op
	Value  any
	Values []any
}

// Filter is a conjunction of conditions. The empty filter matches everything.
type Filter []Condition

func Eq(field string, v any) Condition  { return Condition{Field: field, Op: OpEq, Value: v} }
func Neq(field string, v any) Condition { return Condition{Field: field, Op: OpNeq, Value: v} }
func Gt(field string, v any) Condition  { return Condition{Field: field, Op: OpGt, Value: v} }
func Gte(field string, v any) Condition { return Condition{Field: field, Op: OpGte, Value: v} }
func Lt(field string, v any) Condition  { return Condition{Field: field, Op: OpLt, Value: v} }
func Lte(field string, v any) Condition { return Condition{Field: field, Op: OpLte, Value: v} }

// In matches when the field equals any of vs. It must not be empty.
func In(field string, vs ...any) Condition {
	return Condition{Field: field, Op: OpIn, Values: vs}
}

// Where builds a filter from conditions.
func Where(conds ...Condition) Filter { return Filter(conds) }

var nameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateName(name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("%w: invalid name %q", ErrInvalidInput, name)
	}
	return nil
}

// normalized validates f and returns a copy with values in stored form.
func (f Filter) normalized() (Filter, error) {
	out := make(Filter, len(f))
	for i, c := range f {
		if err := validateName(c.Field); err != nil {
			return nil, err
		}
		switch c.Op {
		case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
			v, err := normalizeValue(c.Value)
			if err != nil {
				return nil, err
			}
			out[i] = Condition{Field: c.Field, Op: c.Op, Value: v}
		case OpIn:
			if len(c.Values) == 0 {
				return nil, fmt.Errorf("%w: empty set for %q", ErrInvalidInput, c.Field)
			}
			vs := make([]any, len(c.Values))
			for j, v := range c.Values {
				nv, err := normalizeValue(v)
				if err != nil {
					return nil, err
				}
				vs[j] = nv
			}
			out[i] = Condition{Field: c.Field, Op: OpIn, Values: vs}
		default:
			return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidInput, c.Op)
		}
	}
	return out, nil
}

// String renders f in PocketBase filter syntax.
func (f Filter) String() string {
	parts := make([]string, 0, len(f))
	for _, c := range f {
		if c.Op == OpIn {
			alts := make([]string, len(c.Values))
			for i, v := range c.Values {
				alts[i] = c.Field + " = " + literal(v)
			}
			parts = append(parts, "("+strings.Join(alts, " || ")+")")
			continue
		}
		parts = append(parts, c.Field+" "+string(c.Op)+" "+literal(c.Value))
	}
	return strings.Join(parts, " && ")
}

func literal(v any) string {
	if nv, err := normalizeValue(v); err == nil {
		v = nv
	}
	switch x := v.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(x) + "'"
	default:
		return "'" + fmt.Sprint(x) + "'"
	}
}

// match reports whether r satisfies every condition of a normalized filter.
func (f Filter) match(r Record) bool {
	for _, c := range f {
		got := r.Get(c.Field)
		if c.Op == OpIn {
			found := false
			for _, v := range c.Values {
				if cmp, ok := compareValues(got, v); ok && cmp == 0 {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		cmp, ok := compareValues(got, c.Value)
		if !ok {
			if c.Op == OpNeq {
				continue
			}
			return false
		}
		if !opHolds(c.Op, cmp) {
			return false
		}
	}
	return true
}

func opHolds(op Op, cmp int) bool {
	switch op {
	case OpEq:
		return cmp == 0
	case OpNeq:
		return cmp != 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	}
	return false
}

// compareValues orders two stored values of the same kind. ok is false for
// values of different kinds, except that nil equals "".
func compareValues(a, b any) (int, bool) {
	if a == nil {
		a = ""
	}
	if b == nil {
		b = ""
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		default:
			return 1, true
		}
	}
	x, okA := toFloat(a)
	y, okB := toFloat(b)
	if !okA || !okB {
		return 0, false
	}
	switch {
	case x < y:
		return -1, true
	case x > y:
		return 1, true
	}
	return 0, true
}

// SortField orders by one field.
type SortField struct {
	Field string
	Desc  bool
}

// Sort is an ordered list of sort keys.
type Sort []SortField

// ParseSort parses "field,-other" where a leading "-" means descending.
func ParseSort(s string) (Sort, error) {
	var out Sort
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		desc := false
		switch tok[0] {
		case '-':
			desc, tok = true, tok[1:]
		case '+':
			tok = tok[1:]
		}
		if err := validateName(tok); err != nil {
			return nil, err
		}
		out = append(out, SortField{Field: tok, Desc: desc})
	}
	return out, nil
}

// MustParseSort is ParseSort for constant expressions.
func MustParseSort(s string) Sort {
	out, err := ParseSort(s)
	if err != nil {
		panic(err)
	}
	return out
}

// String renders s in "field,-other" form.
func (s Sort) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		if f.Desc {
			parts[i] = "-" + f.Field
		} else {
			parts[i] = f.Field
		}
	}
	return strings.Join(parts, ",")
}

func (s Sort) validate() error {
	for _, f := range s {
		if err := validateName(f.Field); err != nil {
			return err
		}
	}
	return nil
}

// less orders records by s, falling back to creation order then id.
func (s Sort) less(a, b Record) bool {
	for _, f := range s {
		cmp, ok := compareValues(a.Get(f.Field), b.Get(f.Field))
		if !ok || cmp == 0 {
			continue
		}
		if f.Desc {
			return cmp > 0
		}
		return cmp < 0
	}
	if !a.Created.Equal(b.Created) {
		return a.Created.Before(b.Created)
	}
	return a.ID < b.ID
}
