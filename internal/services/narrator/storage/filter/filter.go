// Package filter provides AIP-160 filter parsing for pending-approval
// listings, translated either to SQL or to an in-memory predicate.
package filter

import (
	"fmt"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// PendingDeclarations returns the field declarations for pending-approval
// filtering.
func PendingDeclarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("world_id", filtering.TypeString),
		filtering.DeclareIdent("character_id", filtering.TypeString),
		filtering.DeclareIdent("kind", filtering.TypeString),
		filtering.DeclareIdent("state", filtering.TypeString),
		filtering.DeclareIdent("create_time", filtering.TypeTimestamp),
		filtering.DeclareIdent("update_time", filtering.TypeTimestamp),
	)
}

// fieldMapping maps filter field names to SQL column names.
var fieldMapping = map[string]string{
	"world_id":     "world_id",
	"character_id": "character_id",
	"kind":         "kind",
	"state":        "state",
	"create_time":  "created_at",
	"update_time":  "updated_at",
}

// SQLCondition represents a SQL WHERE clause fragment with parameters.
type SQLCondition struct {
	// Clause is the SQL WHERE clause (e.g., "world_id = ?").
	Clause string
	// Params are the positional parameters for the clause.
	Params []any
}

// Fields is the filterable view of one record. Timestamps are compared as
// values, strings as exact matches.
type Fields struct {
	WorldID     string
	CharacterID string
	Kind        string
	State       string
	CreateTime  time.Time
	UpdateTime  time.Time
}

// Matcher reports whether a record satisfies a parsed filter.
type Matcher func(Fields) bool

func parse(filterStr string) (*expr.Expr, error) {
	decls, err := PendingDeclarations()
	if err != nil {
		return nil, fmt.Errorf("create declarations: %w", err)
	}
	filter, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return nil, fmt.Errorf("parse filter: %w", err)
	}
	return filter.CheckedExpr.GetExpr(), nil
}

// ParsePendingFilter parses an AIP-160 filter expression and returns a SQL
// condition. Returns an empty condition for an empty filter string.
func ParsePendingFilter(filterStr string) (SQLCondition, error) {
	if strings.TrimSpace(filterStr) == "" {
		return SQLCondition{}, nil
	}
	e, err := parse(filterStr)
	if err != nil {
		return SQLCondition{}, err
	}
	return translateExpr(e)
}

// CompilePendingMatcher parses an AIP-160 filter expression into an
// in-memory predicate. An empty filter matches everything.
func CompilePendingMatcher(filterStr string) (Matcher, error) {
	if strings.TrimSpace(filterStr) == "" {
		return func(Fields) bool { return true }, nil
	}
	e, err := parse(filterStr)
	if err != nil {
		return nil, err
	}
	return compileExpr(e)
}

func translateExpr(e *expr.Expr) (SQLCondition, error) {
	if e == nil {
		return SQLCondition{}, nil
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_CallExpr:
		return translateCall(kind.CallExpr)
	default:
		return SQLCondition{}, fmt.Errorf("unsupported expression type: %T", kind)
	}
}

func translateCall(call *expr.Expr_Call) (SQLCondition, error) {
	switch call.Function {
	case "_&&_", "AND":
		return translateJunction(call.Args, "AND")
	case "_||_", "OR":
		return translateJunction(call.Args, "OR")
	default:
		op, ok := comparisonOperator(call.Function)
		if !ok {
			return SQLCondition{}, fmt.Errorf("unsupported function: %s", call.Function)
		}
		return translateComparison(call.Args, op)
	}
}

func comparisonOperator(function string) (string, bool) {
	switch function {
	case "_==_", "=":
		return "=", true
	case "_!=_", "!=":
		return "!=", true
	case "_<_", "<":
		return "<", true
	case "_<=_", "<=":
		return "<=", true
	case "_>_", ">":
		return ">", true
	case "_>=_", ">=":
		return ">=", true
	default:
		return "", false
	}
}

func translateJunction(args []*expr.Expr, op string) (SQLCondition, error) {
	if len(args) != 2 {
		return SQLCondition{}, fmt.Errorf("%s requires 2 arguments", op)
	}
	left, err := translateExpr(args[0])
	if err != nil {
		return SQLCondition{}, err
	}
	right, err := translateExpr(args[1])
	if err != nil {
		return SQLCondition{}, err
	}
	return SQLCondition{
		Clause: fmt.Sprintf("(%s %s %s)", left.Clause, op, right.Clause),
		Params: append(left.Params, right.Params...),
	}, nil
}

func translateComparison(args []*expr.Expr, op string) (SQLCondition, error) {
	field, value, err := comparisonOperands(args)
	if err != nil {
		return SQLCondition{}, err
	}
	column := fieldMapping[field]
	if t, ok := value.(time.Time); ok {
		value = t.UTC().UnixMilli()
	}
	return SQLCondition{
		Clause: fmt.Sprintf("%s %s ?", column, op),
		Params: []any{value},
	}, nil
}

func comparisonOperands(args []*expr.Expr) (string, any, error) {
	if len(args) != 2 {
		return "", nil, fmt.Errorf("comparison requires 2 arguments")
	}
	field, err := extractFieldName(args[0])
	if err != nil {
		return "", nil, err
	}
	if _, ok := fieldMapping[field]; !ok {
		return "", nil, fmt.Errorf("unknown field: %s", field)
	}
	value, err := extractValue(args[1])
	if err != nil {
		return "", nil, err
	}
	return field, value, nil
}

func compileExpr(e *expr.Expr) (Matcher, error) {
	call, ok := e.GetExprKind().(*expr.Expr_CallExpr)
	if !ok {
		return nil, fmt.Errorf("unsupported expression type: %T", e.GetExprKind())
	}
	args := call.CallExpr.Args
	switch call.CallExpr.Function {
	case "_&&_", "AND", "_||_", "OR":
		if len(args) != 2 {
			return nil, fmt.Errorf("%s requires 2 arguments", call.CallExpr.Function)
		}
		left, err := compileExpr(args[0])
		if err != nil {
			return nil, err
		}
		right, err := compileExpr(args[1])
		if err != nil {
			return nil, err
		}
		if f := call.CallExpr.Function; f == "_&&_" || f == "AND" {
			return func(r Fields) bool { return left(r) && right(r) }, nil
		}
		return func(r Fields) bool { return left(r) || right(r) }, nil
	}
	op, ok := comparisonOperator(call.CallExpr.Function)
	if !ok {
		return nil, fmt.Errorf("unsupported function: %s", call.CallExpr.Function)
	}
	field, value, err := comparisonOperands(args)
	if err != nil {
		return nil, err
	}
	return func(r Fields) bool {
		return compare(fieldValue(r, field), value, op)
	}, nil
}

func fieldValue(r Fields, field string) any {
	switch field {
	case "world_id":
		return r.WorldID
	case "character_id":
		return r.CharacterID
	case "kind":
		return r.Kind
	case "state":
		return r.State
	case "create_time":
		return r.CreateTime
	case "update_time":
		return r.UpdateTime
	default:
		return nil
	}
}

func compare(left, right any, op string) bool {
	var cmp int
	switch l := left.(type) {
	case string:
		r, ok := right.(string)
		if !ok {
			return false
		}
		cmp = strings.Compare(l, r)
	case time.Time:
		r, ok := right.(time.Time)
		if !ok {
			return false
		}
		cmp = l.Compare(r)
	default:
		return false
	}
	switch op {
	case "=":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	default:
		return false
	}
}

func extractFieldName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.Name, nil
	default:
		return "", fmt.Errorf("expected identifier, got %T", kind)
	}
}

func extractValue(e *expr.Expr) (any, error) {
	if e == nil {
		return nil, fmt.Errorf("nil expression")
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_ConstExpr:
		if s, ok := kind.ConstExpr.GetConstantKind().(*expr.Constant_StringValue); ok {
			return s.StringValue, nil
		}
		return nil, fmt.Errorf("unsupported constant type: %T", kind.ConstExpr.GetConstantKind())
	case *expr.Expr_CallExpr:
		if kind.CallExpr.Function == "timestamp" && len(kind.CallExpr.Args) == 1 {
			return extractTimestampValue(kind.CallExpr.Args[0])
		}
		return nil, fmt.Errorf("unsupported function in value position: %s", kind.CallExpr.Function)
	default:
		return nil, fmt.Errorf("expected constant or timestamp, got %T", kind)
	}
}

func extractTimestampValue(e *expr.Expr) (time.Time, error) {
	c, ok := e.GetExprKind().(*expr.Expr_ConstExpr)
	if !ok {
		return time.Time{}, fmt.Errorf("timestamp argument must be a constant string")
	}
	s, ok := c.ConstExpr.GetConstantKind().(*expr.Constant_StringValue)
	if !ok {
		return time.Time{}, fmt.Errorf("timestamp argument must be a string")
	}
	t, err := time.Parse(time.RFC3339Nano, s.StringValue)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp format: %s", s.StringValue)
	}
	return t.UTC(), nil
}
