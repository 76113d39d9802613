package engine

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/engramkit/engram-go/directive"
	"github.com/engramkit/engram-go/knowledge"
)

// Result reports the outcome of executing one directive. Exactly the fields
// relevant to the directive's kind are populated; Err carries the Go error
// for programmatic inspection and Error its string form for serialization.
type Result struct {
	Kind    directive.Kind      `json:"kind"`
	Err     error               `json:"-"`
	Error   string              `json:"error,omitempty"`
	Record  *knowledge.Record   `json:"record,omitempty"`
	Records []*knowledge.Record `json:"records,omitempty"`
	Deleted bool                `json:"deleted,omitempty"`
	Fact    *KeyedFact          `json:"fact,omitempty"`
	Matches []Match             `json:"matches,omitempty"`
}

// ProcessResult is the outcome of ProcessResponse: the response text with
// directive blocks removed, the parsed directives, and one Result per
// directive in order.
type ProcessResult struct {
	Text       string                `json:"text"`
	Directives []directive.Directive `json:"directives"`
	Results    []Result              `json:"results"`
}

// ProcessResponse parses directives out of a model response, executes each
// against the scope, and returns the stripped text alongside per-directive
// results. A failing directive never aborts the batch; its Result carries
// the error and execution continues with the next directive.
func (e *Engine) ProcessResponse(ctx context.Context, scope, text string) (*ProcessResult, error) {
	dirs := directive.Parse(text)
	out := &ProcessResult{
		Text:       directive.Strip(text),
		Directives: dirs,
		Results:    make([]Result, 0, len(dirs)),
	}
	for _, d := range dirs {
		if err := d.Validate(); err != nil {
			log.Printf("[ENGINE] rejecting directive: %v", err)
			out.Results = append(out.Results, errResult(d.Kind, err))
			continue
		}
		out.Results = append(out.Results, e.execute(ctx, scope, d))
	}
	return out, nil
}

func (e *Engine) execute(ctx context.Context, scope string, d directive.Directive) Result {
	switch d.Kind {
	case directive.KindAddRecord:
		return e.execAdd(ctx, scope, d)
	case directive.KindEditRecord:
		return e.execEdit(ctx, d)
	case directive.KindDeleteRecord:
		return e.execDelete(ctx, d)
	case directive.KindQueryRecords:
		return e.execQuery(ctx, scope, d)
	case directive.KindSaveFact:
		return e.execSaveFact(ctx, scope, d)
	case directive.KindRetrieveFact:
		return e.execRetrieveFact(ctx, scope, d)
	}
	return errResult(d.Kind, &directive.ValidationError{Kind: d.Kind, Reason: "unrecognized directive kind"})
}

func (e *Engine) execAdd(ctx context.Context, scope string, d directive.Directive) Result {
	priority, _ := knowledge.ParsePriority(d.Params[directive.ParamPriority])
	rec, err := e.store.Create(ctx, knowledge.CreateParams{
		Scope:     scope,
		Content:   d.Params[directive.ParamContent],
		Category:  d.Params[directive.ParamCategory],
		Priority:  priority,
		OriginRef: d.Params[directive.ParamOrigin],
	})
	if err != nil {
		return errResult(d.Kind, err)
	}
	if e.cfg.IndexOnCreate {
		if _, err := e.IndexRecord(ctx, rec); err != nil {
			// The record is stored either way; report the partial failure
			// with the record attached so callers can re-index later.
			r := errResult(d.Kind, err)
			r.Record = rec
			return r
		}
	}
	return Result{Kind: d.Kind, Record: rec}
}

func (e *Engine) execEdit(ctx context.Context, d directive.Directive) Result {
	var u knowledge.Update
	if v, ok := d.Param(directive.ParamContent); ok {
		u.Content = &v
	}
	if v, ok := d.Param(directive.ParamCategory); ok {
		u.Category = &v
	}
	if v, ok := d.Param(directive.ParamPriority); ok {
		p := knowledge.Priority(v)
		u.Priority = &p
	}
	rec, err := e.store.Update(ctx, strings.TrimSpace(d.Params[directive.ParamID]), u)
	if err != nil {
		return errResult(d.Kind, err)
	}
	return Result{Kind: d.Kind, Record: rec}
}

func (e *Engine) execDelete(ctx context.Context, d directive.Directive) Result {
	deleted, err := e.store.Delete(ctx, strings.TrimSpace(d.Params[directive.ParamID]))
	if err != nil {
		return errResult(d.Kind, err)
	}
	// Deleting an unknown id is a no-op, not an error. Stale index entries
	// for the record are left behind; retrieval filters them out.
	return Result{Kind: d.Kind, Deleted: deleted}
}

func (e *Engine) execQuery(ctx context.Context, scope string, d directive.Directive) Result {
	priority, _ := knowledge.ParsePriority(d.Params[directive.ParamPriority])
	records, err := e.store.Query(ctx, scope, knowledge.Filter{
		Category: d.Params[directive.ParamCategory],
		Priority: priority,
	})
	if err != nil {
		return errResult(d.Kind, err)
	}
	return Result{Kind: d.Kind, Records: records}
}

func (e *Engine) execSaveFact(ctx context.Context, scope string, d directive.Directive) Result {
	key := strings.TrimSpace(d.Params[directive.ParamKey])
	value := d.Params[directive.ParamValue]
	rec, err := e.store.Create(ctx, knowledge.CreateParams{
		Scope:    scope,
		Content:  value,
		Category: FactCategory(key),
	})
	if err != nil {
		return errResult(d.Kind, err)
	}
	if e.cfg.IndexOnCreate {
		if _, err := e.IndexRecord(ctx, rec); err != nil {
			r := errResult(d.Kind, err)
			r.Record = rec
			return r
		}
	}
	return Result{
		Kind:   d.Kind,
		Record: rec,
		Fact:   &KeyedFact{Key: key, Value: &rec.Content, Record: rec},
	}
}

func (e *Engine) execRetrieveFact(ctx context.Context, scope string, d directive.Directive) Result {
	if key, ok := d.Param(directive.ParamKey); ok {
		fact, err := e.RetrieveByKey(ctx, scope, strings.TrimSpace(key))
		if err != nil {
			return errResult(d.Kind, err)
		}
		return Result{Kind: d.Kind, Fact: fact}
	}

	limit, _ := d.Limit()
	matches, err := e.RetrieveByQuery(ctx, scope, d.Params[directive.ParamQuery], limit, e.cfg.MinSimilarity, FactPredicate)
	if err != nil {
		return errResult(d.Kind, err)
	}
	return Result{Kind: d.Kind, Matches: matches}
}

func errResult(kind directive.Kind, err error) Result {
	r := Result{Kind: kind, Err: err}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// NotFound reports whether a result failed because its target record does
// not exist.
func (r Result) NotFound() bool {
	return errors.Is(r.Err, knowledge.ErrNotFound)
}
