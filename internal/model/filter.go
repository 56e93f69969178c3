package model

import (
	"reflect"
	"sort"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// DefaultListLimit applies when the caller sets no limit.
	DefaultListLimit = 300
	// MaxListLimit caps any caller-supplied limit.
	MaxListLimit = 1000

	descendingPrefix = "!"
	idField          = "id"
)

// Operator is a filter comparison.
type Operator string

const (
	OpEq    Operator = "eq"
	OpNe    Operator = "ne"
	OpGt    Operator = "gt"
	OpGte   Operator = "gte"
	OpLt    Operator = "lt"
	OpLte   Operator = "lte"
	OpIn    Operator = "in"
	OpNotIn Operator = "not_in"
	OpIs    Operator = "is"
)

var operatorKinds = map[Operator]OperatorKind{
	OpEq:    KindEquality,
	OpNe:    KindEquality,
	OpGt:    KindRange,
	OpGte:   KindRange,
	OpLt:    KindRange,
	OpLte:   KindRange,
	OpIn:    KindSet,
	OpNotIn: KindSet,
	OpIs:    KindBoolean,
}

// Condition is one operator/value pair applied to a field.
type Condition struct {
	Op    Operator
	Value any
}

// Filter maps field names to conditions; all conditions are combined with AND.
type Filter map[string][]Condition

// And appends a condition, allocating the filter when nil.
func (f Filter) And(field string, op Operator, value any) Filter {
	if f == nil {
		f = Filter{}
	}
	f[field] = append(f[field], Condition{Op: op, Value: value})
	return f
}

// ListOptions bounds and orders a list query.
// OrderBy entries are field names, prefixed with "!" for descending order.
type ListOptions struct {
	Limit   int
	Offset  int
	OrderBy []string
}

type compiledQuery struct {
	where  []clause.Expression
	order  []clause.OrderByColumn
	limit  int
	offset int
}

func (q compiledQuery) apply(db *gorm.DB) *gorm.DB {
	if len(q.where) > 0 {
		db = db.Clauses(clause.Where{Exprs: q.where})
	}
	for _, column := range q.order {
		db = db.Order(column)
	}
	if q.limit > 0 {
		db = db.Limit(q.limit)
	}
	if q.offset > 0 {
		db = db.Offset(q.offset)
	}
	return db
}

// compileQuery validates the filter against the descriptor and builds parameterized clauses.
func compileQuery(desc *Descriptor, filter Filter, options *ListOptions) (compiledQuery, error) {
	where, err := compileFilter(desc, filter)
	if err != nil {
		return compiledQuery{}, err
	}

	opts := ListOptions{}
	if options != nil {
		opts = *options
	}
	if opts.Offset < 0 {
		return compiledQuery{}, &InvalidFilterOperatorError{Entity: desc.Entity, Field: "offset", Reason: "must not be negative"}
	}

	order, err := compileOrder(desc, opts.OrderBy)
	if err != nil {
		return compiledQuery{}, err
	}

	return compiledQuery{
		where:  where,
		order:  order,
		limit:  clampLimit(opts.Limit),
		offset: opts.Offset,
	}, nil
}

func compileFilter(desc *Descriptor, filter Filter) ([]clause.Expression, error) {
	if len(filter) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(filter))
	for name := range filter {
		names = append(names, name)
	}
	sort.Strings(names)

	exprs := make([]clause.Expression, 0, len(names))
	for _, name := range names {
		field, ok := desc.Field(name)
		if !ok || !field.Filterable() {
			return nil, &InvalidFilterFieldError{Entity: desc.Entity, Field: name}
		}
		for _, condition := range filter[name] {
			expr, err := compileCondition(desc, field, condition)
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, expr)
		}
	}
	return exprs, nil
}

func compileCondition(desc *Descriptor, field Field, condition Condition) (clause.Expression, error) {
	kind, known := operatorKinds[condition.Op]
	if !known || !field.Operators.Has(kind) {
		return nil, &InvalidFilterOperatorError{Entity: desc.Entity, Field: field.Name, Op: condition.Op}
	}
	invalid := func(reason string) error {
		return &InvalidFilterOperatorError{Entity: desc.Entity, Field: field.Name, Op: condition.Op, Reason: reason}
	}

	column := clause.Column{Name: field.Column}
	switch kind {
	case KindSet:
		values, ok := toSlice(condition.Value)
		if !ok {
			return nil, invalid("value must be a list")
		}
		in := clause.IN{Column: column, Values: values}
		if condition.Op == OpNotIn {
			return clause.Not(in), nil
		}
		return in, nil
	case KindBoolean:
		value, ok := condition.Value.(bool)
		if !ok {
			return nil, invalid("value must be a boolean")
		}
		return clause.Eq{Column: column, Value: value}, nil
	}

	if condition.Value == nil {
		return nil, invalid("value is required")
	}
	if _, isList := toSlice(condition.Value); isList {
		return nil, invalid("value must be a scalar")
	}

	switch condition.Op {
	case OpEq:
		return clause.Eq{Column: column, Value: condition.Value}, nil
	case OpNe:
		return clause.Neq{Column: column, Value: condition.Value}, nil
	case OpGt:
		return clause.Gt{Column: column, Value: condition.Value}, nil
	case OpGte:
		return clause.Gte{Column: column, Value: condition.Value}, nil
	case OpLt:
		return clause.Lt{Column: column, Value: condition.Value}, nil
	default:
		return clause.Lte{Column: column, Value: condition.Value}, nil
	}
}

func compileOrder(desc *Descriptor, orderBy []string) ([]clause.OrderByColumn, error) {
	if len(orderBy) == 0 {
		orderBy = []string{desc.DefaultSort}
		if desc.DefaultDir == Descending {
			orderBy[0] = descendingPrefix + desc.DefaultSort
		}
	}

	columns := make([]clause.OrderByColumn, 0, len(orderBy)+1)
	lastIsID := false
	for _, entry := range orderBy {
		name := strings.TrimSpace(entry)
		descending := strings.HasPrefix(name, descendingPrefix)
		name = strings.TrimPrefix(name, descendingPrefix)
		field, ok := desc.Field(name)
		if !ok || !field.Exposed {
			return nil, &InvalidFilterFieldError{Entity: desc.Entity, Field: name}
		}
		columns = append(columns, clause.OrderByColumn{Column: clause.Column{Name: field.Column}, Desc: descending})
		lastIsID = name == idField
	}
	if !lastIsID {
		columns = append(columns, clause.OrderByColumn{Column: clause.Column{Name: idField}})
	}
	return columns, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

func toSlice(value any) ([]any, bool) {
	if value == nil {
		return nil, false
	}
	if values, ok := value.([]any); ok {
		return values, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	values := make([]any, rv.Len())
	for i := range values {
		values[i] = rv.Index(i).Interface()
	}
	return values, true
}
