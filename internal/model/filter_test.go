package model

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm/clause"
)

func TestCompileFilterRejectsUnknownOperatorsAndShapes(t *testing.T) {
	testCases := []struct {
		name   string
		filter Filter
		target error
	}{
		{name: "undeclared field", filter: Filter{}.And("secret", OpEq, 1), target: ErrInvalidFilterField},
		{name: "unfilterable field", filter: Filter{}.And("content", OpEq, "x"), target: ErrInvalidFilterField},
		{name: "unknown operator", filter: Filter{}.And("weight", Operator("like"), 1), target: ErrInvalidFilterOperator},
		{name: "range on equality field", filter: Filter{}.And("author_id", OpGt, 1), target: ErrInvalidFilterOperator},
		{name: "in with scalar", filter: Filter{}.And("id", OpIn, 5), target: ErrInvalidFilterOperator},
		{name: "is with string", filter: Filter{}.And("published", OpIs, "true"), target: ErrInvalidFilterOperator},
		{name: "eq with list", filter: Filter{}.And("weight", OpEq, []int{1, 2}), target: ErrInvalidFilterOperator},
		{name: "eq with nil", filter: Filter{}.And("title", OpEq, nil), target: ErrInvalidFilterOperator},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := compileFilter(postDescriptor, testCase.filter)
			require.ErrorIs(t, err, testCase.target)
		})
	}
}

func TestCompileFilterBuildsParameterizedClauses(t *testing.T) {
	filter := Filter{}.
		And("weight", OpGte, 3).
		And("weight", OpLte, 8).
		And("id", OpNotIn, []int64{1, 2}).
		And("published", OpIs, true)

	exprs, err := compileFilter(postDescriptor, filter)
	require.NoError(t, err)
	require.Len(t, exprs, 4)

	require.Equal(t, clause.Not(clause.IN{Column: clause.Column{Name: "id"}, Values: []any{int64(1), int64(2)}}), exprs[0])
	require.Equal(t, clause.Eq{Column: clause.Column{Name: "published"}, Value: true}, exprs[1])
	require.Equal(t, clause.Gte{Column: clause.Column{Name: "weight"}, Value: 3}, exprs[2])
	require.Equal(t, clause.Lte{Column: clause.Column{Name: "weight"}, Value: 8}, exprs[3])
}

func TestCompileQueryLimitsAndOffsets(t *testing.T) {
	query, err := compileQuery(postDescriptor, nil, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultListLimit, query.limit)
	require.Zero(t, query.offset)

	query, err = compileQuery(postDescriptor, nil, &ListOptions{Limit: 5000, Offset: 20})
	require.NoError(t, err)
	require.Equal(t, MaxListLimit, query.limit)
	require.Equal(t, 20, query.offset)

	query, err = compileQuery(postDescriptor, nil, &ListOptions{Limit: 42})
	require.NoError(t, err)
	require.Equal(t, 42, query.limit)

	_, err = compileQuery(postDescriptor, nil, &ListOptions{Offset: -1})
	var operatorErr *InvalidFilterOperatorError
	require.ErrorAs(t, err, &operatorErr)
	require.Equal(t, "offset", operatorErr.Field)
}

func TestCompileOrderAppendsIDTiebreak(t *testing.T) {
	order, err := compileOrder(postDescriptor, nil)
	require.NoError(t, err)
	require.Equal(t, []clause.OrderByColumn{{Column: clause.Column{Name: "id"}}}, order)

	order, err = compileOrder(postDescriptor, []string{"!weight", "title"})
	require.NoError(t, err)
	require.Equal(t, []clause.OrderByColumn{
		{Column: clause.Column{Name: "weight"}, Desc: true},
		{Column: clause.Column{Name: "title"}},
		{Column: clause.Column{Name: "id"}},
	}, order)

	order, err = compileOrder(postDescriptor, []string{"weight", "!id"})
	require.NoError(t, err)
	require.Len(t, order, 2)
	require.True(t, order[1].Desc)

	_, err = compileOrder(postDescriptor, []string{"!nope"})
	var fieldErr *InvalidFilterFieldError
	require.ErrorAs(t, err, &fieldErr)
	require.Equal(t, "nope", fieldErr.Field)
}

func TestCompileOrderUsesDescriptorDefault(t *testing.T) {
	desc := newDescriptor(Descriptor{
		Entity:      "ranked",
		Table:       "ranked",
		Fields:      []Field{{Name: "id"}, {Name: "score", Column: "score_value"}},
		DefaultSort: "score",
		DefaultDir:  Descending,
	})

	order, err := compileOrder(desc, nil)
	require.NoError(t, err)
	require.Equal(t, []clause.OrderByColumn{
		{Column: clause.Column{Name: "score_value"}, Desc: true},
		{Column: clause.Column{Name: "id"}},
	}, order)
}

func TestDescriptorExposedFields(t *testing.T) {
	require.NotContains(t, authorDescriptor.ExposedFields(), "password_hash")
	require.Equal(t, []string{"id", "editor_id", "post_id", "new_content", "status", "created_at", "updated_at"}, editDescriptor.ExposedFields())

	field, ok := postDescriptor.Field("published")
	require.True(t, ok)
	require.True(t, field.Operators.Has(KindBoolean))
	require.False(t, field.Operators.Has(KindRange))
}

func TestCompileOrderRejectsHiddenFields(t *testing.T) {
	_, err := compileOrder(authorDescriptor, []string{"password_hash"})
	var fieldErr *InvalidFilterFieldError
	require.ErrorAs(t, err, &fieldErr)
	require.Equal(t, "password_hash", fieldErr.Field)

	_, err = compileOrder(authorDescriptor, []string{"!email"})
	require.NoError(t, err)
}
