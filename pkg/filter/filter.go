// Package filter implements the small filter expression language accepted by
// list endpoints, for example:
//
//	status = 'COLLECTED' AND quantityKg > 5 AND herbName LIKE '%tulsi%'
//
// Expressions are a conjunction of terms. Each term compares a whitelisted
// property with a string or numeric literal. Compiled filters are applied to
// GORM queries as parameterized WHERE clauses.
package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"gorm.io/gorm"
)

// ErrInvalid is wrapped by every parse and compile error.
var ErrInvalid = errors.New("invalid filter")

// Expression is the parsed form of a filter string.
type Expression struct {
	Terms []*Term `parser:"@@ ( 'AND' @@ )*"`
}

// Term is a single property comparison.
type Term struct {
	Pos      lexer.Position
	Property string `parser:"@Ident"`
	Operator string `parser:"@( Operator | 'LIKE' )"`
	Value    *Value `parser:"@@"`
}

// Value is a literal operand.
type Value struct {
	String *string `parser:"  @String"`
	Number *string `parser:"| @Number"`
}

var filterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Keyword", Pattern: `(?i)\b(AND|LIKE)\b`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "String", Pattern: `'(?:\\.|[^'])*'|"(?:\\.|[^"])*"`},
	{Name: "Number", Pattern: `-?\d+(?:\.\d+)?`},
	{Name: "Operator", Pattern: `!=|<=|>=|=|<|>`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var parser = participle.MustBuild[Expression](
	participle.Lexer(filterLexer),
	participle.CaseInsensitive("Keyword"),
	participle.Elide("Whitespace"),
)

// Parse parses expr into an Expression. It does not check property names.
func Parse(expr string) (*Expression, error) {
	e, err := parser.ParseString("", expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return e, nil
}

// ValueType is the literal type a property accepts.
type ValueType int

const (
	TypeString ValueType = iota
	TypeNumber
)

// Field maps an API property name to a database column.
type Field struct {
	Column string
	Type   ValueType
}

// Schema is the set of properties a filter may reference.
type Schema map[string]Field

// Condition is one compiled comparison.
type Condition struct {
	Property string
	Column   string
	Operator string
	Value    any
}

// Filter is a compiled, schema-checked expression. The zero value matches
// everything.
type Filter struct {
	Conditions []Condition
}

// Empty reports whether f has no conditions.
func (f *Filter) Empty() bool {
	return f == nil || len(f.Conditions) == 0
}

// Compile parses expr and checks it against schema. An empty or blank expr
// compiles to an empty Filter.
func Compile(expr string, schema Schema) (*Filter, error) {
	if strings.TrimSpace(expr) == "" {
		return &Filter{}, nil
	}

	e, err := Parse(expr)
	if err != nil {
		return nil, err
	}

	f := &Filter{Conditions: make([]Condition, 0, len(e.Terms))}
	for _, term := range e.Terms {
		cond, err := compileTerm(term, schema)
		if err != nil {
			return nil, err
		}
		f.Conditions = append(f.Conditions, cond)
	}
	return f, nil
}

func compileTerm(term *Term, schema Schema) (Condition, error) {
	field, ok := schema[term.Property]
	if !ok {
		return Condition{}, fmt.Errorf("%w: unknown property %q at %s", ErrInvalid, term.Property, term.Pos)
	}

	op := strings.ToUpper(term.Operator)
	cond := Condition{Property: term.Property, Column: field.Column, Operator: op}

	switch field.Type {
	case TypeNumber:
		if term.Value.Number == nil {
			return Condition{}, fmt.Errorf("%w: property %q expects a number", ErrInvalid, term.Property)
		}
		if op == "LIKE" {
			return Condition{}, fmt.Errorf("%w: LIKE is not supported on numeric property %q", ErrInvalid, term.Property)
		}
		n, err := strconv.ParseFloat(*term.Value.Number, 64)
		if err != nil {
			return Condition{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		cond.Value = n
	default:
		if term.Value.String == nil {
			return Condition{}, fmt.Errorf("%w: property %q expects a quoted string", ErrInvalid, term.Property)
		}
		cond.Value = unquote(*term.Value.String)
	}

	return cond, nil
}

// unquote strips the surrounding quotes of a String token and resolves
// escaped quote characters.
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	q := s[0]
	inner := s[1 : len(s)-1]
	return strings.ReplaceAll(inner, `\`+string(q), string(q))
}

// Scope returns a GORM scope applying every condition. Column names come from
// the schema, never from user input.
func (f *Filter) Scope() func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.Empty() {
			return db
		}
		for _, c := range f.Conditions {
			if c.Operator == "LIKE" {
				db = db.Where(fmt.Sprintf("LOWER(%s) LIKE LOWER(?)", c.Column), c.Value)
				continue
			}
			db = db.Where(fmt.Sprintf("%s %s ?", c.Column, c.Operator), c.Value)
		}
		return db
	}
}

// String renders f back into filter syntax.
func (f *Filter) String() string {
	if f.Empty() {
		return ""
	}
	parts := make([]string, len(f.Conditions))
	for i, c := range f.Conditions {
		switch v := c.Value.(type) {
		case string:
			parts[i] = fmt.Sprintf("%s %s '%s'", c.Property, c.Operator, strings.ReplaceAll(v, "'", `\'`))
		default:
			parts[i] = fmt.Sprintf("%s %s %v", c.Property, c.Operator, v)
		}
	}
	return strings.Join(parts, " AND ")
}
