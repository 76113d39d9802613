// Package directive extracts structured knowledge directives embedded in
// model-generated text.
//
// A directive is a tag block like <add_record>...</add_record> that instructs
// the engine to persist, mutate, query, or retrieve knowledge records.
// Parsing is tolerant: unrecognized tags are left alone, malformed blocks are
// simply not matched, and out-of-range field tokens are dropped. Whether a
// parsed directive is executable is a separate question answered by Validate.
package directive

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies a directive type. The values are the literal outer tag
// names from the wire grammar.
type Kind string

const (
	KindAddRecord    Kind = "add_record"
	KindEditRecord   Kind = "edit_record"
	KindDeleteRecord Kind = "delete_record"
	KindQueryRecords Kind = "query_record"
	KindSaveFact     Kind = "save_user_data"
	KindRetrieveFact Kind = "retrieve_user_data"
)

// Parameter names used in Directive.Params. Inner tag names map onto these
// during parsing (e.g. <context> becomes ParamContent, <linenumber> becomes
// ParamOrigin).
const (
	ParamContent  = "content"
	ParamCategory = "category"
	ParamPriority = "priority"
	ParamID       = "id"
	ParamKey      = "key"
	ParamValue    = "value"
	ParamQuery    = "query"
	ParamLimit    = "limit"
	ParamOrigin   = "origin"
)

// Directive is a single parsed instruction. Params holds only the fields
// whose tags were present in the block; a present-but-empty field is an empty
// string entry, which matters for save_user_data values.
type Directive struct {
	Kind   Kind              `json:"kind"`
	Params map[string]string `json:"params"`
}

// Param returns a parameter value and whether its tag was present.
func (d Directive) Param(name string) (string, bool) {
	v, ok := d.Params[name]
	return v, ok
}

// Limit returns the parsed result limit, if the directive carried one.
func (d Directive) Limit() (int, bool) {
	v, ok := d.Params[ParamLimit]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ValidationError reports a directive that parsed but cannot be executed.
type ValidationError struct {
	Kind   Kind
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s directive: %s", e.Kind, e.Reason)
}

// Validate checks the per-kind required fields. A nil return means the
// directive is executable; parsing success alone does not imply that.
func (d Directive) Validate() error {
	switch d.Kind {
	case KindAddRecord:
		if strings.TrimSpace(d.Params[ParamContent]) == "" {
			return &ValidationError{d.Kind, "context is required"}
		}
	case KindEditRecord:
		if strings.TrimSpace(d.Params[ParamID]) == "" {
			return &ValidationError{d.Kind, "id is required"}
		}
		_, hasContent := d.Params[ParamContent]
		_, hasCategory := d.Params[ParamCategory]
		_, hasPriority := d.Params[ParamPriority]
		if !hasContent && !hasCategory && !hasPriority {
			return &ValidationError{d.Kind, "at least one of context, category, or priority is required"}
		}
	case KindDeleteRecord:
		if strings.TrimSpace(d.Params[ParamID]) == "" {
			return &ValidationError{d.Kind, "id is required"}
		}
	case KindQueryRecords:
		// Always structurally valid; all fields are optional.
	case KindSaveFact:
		if strings.TrimSpace(d.Params[ParamKey]) == "" {
			return &ValidationError{d.Kind, "key is required"}
		}
		if _, ok := d.Params[ParamValue]; !ok {
			return &ValidationError{d.Kind, "value is required"}
		}
	case KindRetrieveFact:
		_, hasKey := d.Params[ParamKey]
		_, hasQuery := d.Params[ParamQuery]
		if hasKey == hasQuery {
			return &ValidationError{d.Kind, "exactly one of key or query is required"}
		}
	default:
		return &ValidationError{d.Kind, "unrecognized directive kind"}
	}
	return nil
}
