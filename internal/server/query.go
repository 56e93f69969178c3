package server

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/inkwell/internal/model"
)

const (
	queryLimit   = "limit"
	queryOffset  = "offset"
	queryOrderBy = "order_by"

	operatorSeparator = "."
)

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindBool
)

// queryFields declares how the raw query value of each field is typed.
// Fields not listed are passed through as strings.
type queryFields map[string]valueKind

var (
	authorQueryFields = queryFields{"id": kindInt, "name": kindString, "email": kindString}
	postQueryFields   = queryFields{"id": kindInt, "author_id": kindInt, "title": kindString, "weight": kindInt, "published": kindBool}
	editQueryFields   = queryFields{"id": kindInt, "editor_id": kindInt, "post_id": kindInt, "new_content": kindString, "status": kindString}
)

type queryError struct {
	key    string
	reason string
}

func (e *queryError) Error() string {
	return fmt.Sprintf("query parameter %q: %s", e.key, e.reason)
}

// parseListQuery turns query parameters into a filter and list options.
// Filters are written as field=value or field.op=value; in and not_in take
// comma-separated values.
func parseListQuery(values url.Values, fields queryFields) (model.Filter, *model.ListOptions, error) {
	options := &model.ListOptions{}
	filter := model.Filter{}

	for key, raw := range values {
		if len(raw) == 0 {
			continue
		}
		switch key {
		case queryLimit:
			limit, err := strconv.Atoi(raw[0])
			if err != nil {
				return nil, nil, &queryError{key: key, reason: "must be an integer"}
			}
			options.Limit = limit
			continue
		case queryOffset:
			offset, err := strconv.Atoi(raw[0])
			if err != nil {
				return nil, nil, &queryError{key: key, reason: "must be an integer"}
			}
			options.Offset = offset
			continue
		case queryOrderBy:
			for _, entry := range strings.Split(raw[0], ",") {
				if entry = strings.TrimSpace(entry); entry != "" {
					options.OrderBy = append(options.OrderBy, entry)
				}
			}
			continue
		}

		field, op := key, model.Operator("")
		if idx := strings.LastIndex(key, operatorSeparator); idx > 0 {
			field, op = key[:idx], model.Operator(key[idx+1:])
		}
		kind := fields[field]
		if op == "" {
			op = model.OpEq
			if kind == kindBool {
				op = model.OpIs
			}
		}

		for _, value := range raw {
			condition, err := parseCondition(key, op, kind, value)
			if err != nil {
				return nil, nil, err
			}
			filter = filter.And(field, condition.Op, condition.Value)
		}
	}
	return filter, options, nil
}

func parseCondition(key string, op model.Operator, kind valueKind, raw string) (model.Condition, error) {
	if op == model.OpIn || op == model.OpNotIn {
		parts := strings.Split(raw, ",")
		values := make([]any, 0, len(parts))
		for _, part := range parts {
			value, err := parseValue(key, kind, strings.TrimSpace(part))
			if err != nil {
				return model.Condition{}, err
			}
			values = append(values, value)
		}
		return model.Condition{Op: op, Value: values}, nil
	}
	value, err := parseValue(key, kind, raw)
	if err != nil {
		return model.Condition{}, err
	}
	return model.Condition{Op: op, Value: value}, nil
}

func parseValue(key string, kind valueKind, raw string) (any, error) {
	switch kind {
	case kindInt:
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &queryError{key: key, reason: "must be an integer"}
		}
		return value, nil
	case kindBool:
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, &queryError{key: key, reason: "must be a boolean"}
		}
		return value, nil
	default:
		return raw, nil
	}
}
