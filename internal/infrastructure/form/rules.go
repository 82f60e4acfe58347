package form

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"crudkit/internal/core/structmap"
)

// Rule is a CEL expression over the bound entity, exposed as the map variable "row".
// It must evaluate to a bool; false adds Message under Field.
//
//	form.MustRule("price", "row.active || row.quantity == 0", "inactive products must have no stock")
type Rule struct {
	Field   string
	Message string
	Expr    string

	prg cel.Program
}

var rowEnv = mustEnv()

func mustEnv() *cel.Env {
	env, err := cel.NewEnv(cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)))
	if err != nil {
		panic(fmt.Sprintf("cel env: %v", err))
	}
	return env
}

// NewRule compiles expr.
func NewRule(field, expr, message string) (*Rule, error) {
	ast, iss := rowEnv.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile rule %q: %w", expr, iss.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("rule %q must return bool, got %s", expr, ast.OutputType())
	}
	prg, err := rowEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program for rule %q: %w", expr, err)
	}
	return &Rule{Field: field, Message: message, Expr: expr, prg: prg}, nil
}

// MustRule is NewRule for package-level rule tables.
func MustRule(field, expr, message string) *Rule {
	r, err := NewRule(field, expr, message)
	if err != nil {
		panic(err)
	}
	return r
}

// Check evaluates the rule against entity. A rule that errors or returns a
// non-bool counts as failed.
func (r *Rule) Check(ctx context.Context, entity any) (bool, error) {
	out, _, err := r.prg.ContextEval(ctx, map[string]any{"row": celRow(entity)})
	if err != nil {
		return false, fmt.Errorf("eval rule %q: %w", r.Expr, err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("rule %q returned %T, want bool", r.Expr, out.Value())
	}
	return ok, nil
}

// celRow exposes entity columns with CEL-native values.
func celRow(entity any) map[string]any {
	row := structmap.ToMap(entity)
	for k, v := range row {
		row[k] = celValue(v)
	}
	return row
}

func celValue(v any) any {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.InexactFloat64()
	case uuid.UUID:
		return x.String()
	case time.Time:
		return x
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		return celValue(rv.Elem().Interface())
	}
	return v
}
