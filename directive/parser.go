package directive

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// blockSpec ties an outer tag to the inner field tags it may carry.
// Outer tags are case-sensitive; inner tags are not.
type blockSpec struct {
	kind   Kind
	block  *regexp.Regexp
	fields []fieldSpec
}

type fieldSpec struct {
	param   string
	pattern *regexp.Regexp
}

func blockPattern(tag string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)<` + tag + `>(.*?)</` + tag + `>`)
}

func fieldPattern(tag string) *regexp.Regexp {
	return regexp.MustCompile(`(?is)<` + tag + `>(.*?)</` + tag + `>`)
}

func field(param, tag string) fieldSpec {
	return fieldSpec{param: param, pattern: fieldPattern(tag)}
}

var specs = []blockSpec{
	{
		kind:  KindAddRecord,
		block: blockPattern("add_record"),
		fields: []fieldSpec{
			field(ParamContent, "context"),
			field(ParamCategory, "category"),
			field(ParamPriority, "priority"),
			field(ParamOrigin, "linenumber"),
		},
	},
	{
		kind:  KindEditRecord,
		block: blockPattern("edit_record"),
		fields: []fieldSpec{
			field(ParamID, "id"),
			field(ParamContent, "context"),
			field(ParamCategory, "category"),
			field(ParamPriority, "priority"),
		},
	},
	{
		kind:   KindDeleteRecord,
		block:  blockPattern("delete_record"),
		fields: []fieldSpec{field(ParamID, "id")},
	},
	{
		kind:  KindQueryRecords,
		block: blockPattern("query_record"),
		fields: []fieldSpec{
			field(ParamCategory, "category"),
			field(ParamPriority, "priority"),
		},
	},
	{
		kind:  KindSaveFact,
		block: blockPattern("save_user_data"),
		fields: []fieldSpec{
			field(ParamKey, "key"),
			field(ParamValue, "value"),
		},
	},
	{
		kind:  KindRetrieveFact,
		block: blockPattern("retrieve_user_data"),
		fields: []fieldSpec{
			field(ParamKey, "key"),
			field(ParamQuery, "query"),
			field(ParamLimit, "limit"),
		},
	},
}

// span is one matched directive block within the source text.
type span struct {
	start, end int
	spec       *blockSpec
	body       string
}

// scan finds every recognized directive block, ordered by position.
// Overlapping matches are resolved first-wins, so a block nested inside an
// earlier block's body is not matched again.
func scan(text string) []span {
	var spans []span
	for i := range specs {
		spec := &specs[i]
		for _, m := range spec.block.FindAllStringSubmatchIndex(text, -1) {
			spans = append(spans, span{
				start: m[0],
				end:   m[1],
				spec:  spec,
				body:  text[m[2]:m[3]],
			})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	kept := spans[:0]
	last := -1
	for _, s := range spans {
		if s.start < last {
			continue
		}
		kept = append(kept, s)
		last = s.end
	}
	return kept
}

// Parse extracts all directives from text in the order their blocks appear.
// Unrecognized tags are ignored. Priority tokens outside low/medium/high and
// non-numeric limits are dropped, leaving the field unset.
func Parse(text string) []Directive {
	spans := scan(text)
	dirs := make([]Directive, 0, len(spans))
	for _, s := range spans {
		d := Directive{Kind: s.spec.kind, Params: make(map[string]string)}
		for _, f := range s.spec.fields {
			m := f.pattern.FindStringSubmatch(s.body)
			if m == nil {
				continue
			}
			v := strings.TrimSpace(m[1])
			switch f.param {
			case ParamPriority:
				v = strings.ToLower(v)
				if v != "low" && v != "medium" && v != "high" {
					continue
				}
			case ParamLimit:
				if _, err := strconv.Atoi(v); err != nil {
					continue
				}
			}
			d.Params[f.param] = v
		}
		dirs = append(dirs, d)
	}
	return dirs
}

// Strip removes every recognized directive block from text, valid or not,
// and returns the remainder. Text outside the blocks is untouched.
func Strip(text string) string {
	spans := scan(text)
	if len(spans) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	pos := 0
	for _, s := range spans {
		b.WriteString(text[pos:s.start])
		pos = s.end
	}
	b.WriteString(text[pos:])
	return b.String()
}
