package directive_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramkit/engram-go/directive"
)

func TestParse_SingleAddRecord(t *testing.T) {
	text := `Noted. <add_record><context>User prefers dark mode</context><category>preferences</category><priority>high</priority></add_record> Moving on.`

	dirs := directive.Parse(text)
	require.Len(t, dirs, 1)

	d := dirs[0]
	assert.Equal(t, directive.KindAddRecord, d.Kind)
	assert.Equal(t, "User prefers dark mode", d.Params[directive.ParamContent])
	assert.Equal(t, "preferences", d.Params[directive.ParamCategory])
	assert.Equal(t, "high", d.Params[directive.ParamPriority])
}

func TestParse_MultipleDirectivesInOrder(t *testing.T) {
	text := `<save_user_data><key>name</key><value>Ada</value></save_user_data>` +
		` some prose ` +
		`<delete_record><id>abc123</id></delete_record>` +
		`<query_record><category>notes</category></query_record>`

	dirs := directive.Parse(text)
	require.Len(t, dirs, 3)
	assert.Equal(t, directive.KindSaveFact, dirs[0].Kind)
	assert.Equal(t, directive.KindDeleteRecord, dirs[1].Kind)
	assert.Equal(t, directive.KindQueryRecords, dirs[2].Kind)
	assert.Equal(t, "abc123", dirs[1].Params[directive.ParamID])
}

func TestParse_OuterTagsAreCaseSensitive(t *testing.T) {
	dirs := directive.Parse(`<Add_Record><context>x</context></Add_Record>`)
	assert.Empty(t, dirs)
}

func TestParse_InnerTagsAreCaseInsensitive(t *testing.T) {
	dirs := directive.Parse(`<add_record><CONTEXT>remember this</CONTEXT></add_record>`)
	require.Len(t, dirs, 1)
	assert.Equal(t, "remember this", dirs[0].Params[directive.ParamContent])
}

func TestParse_UnclosedBlockIsIgnored(t *testing.T) {
	dirs := directive.Parse(`<add_record><context>dangling`)
	assert.Empty(t, dirs)
}

func TestParse_InvalidPriorityDropped(t *testing.T) {
	dirs := directive.Parse(`<add_record><context>x</context><priority>urgent</priority></add_record>`)
	require.Len(t, dirs, 1)
	_, ok := dirs[0].Param(directive.ParamPriority)
	assert.False(t, ok, "out-of-range priority should be dropped, not stored")
}

func TestParse_PriorityCaseNormalized(t *testing.T) {
	dirs := directive.Parse(`<add_record><context>x</context><priority>HIGH</priority></add_record>`)
	require.Len(t, dirs, 1)
	assert.Equal(t, "high", dirs[0].Params[directive.ParamPriority])
}

func TestParse_NonNumericLimitDropped(t *testing.T) {
	dirs := directive.Parse(`<retrieve_user_data><query>coffee</query><limit>many</limit></retrieve_user_data>`)
	require.Len(t, dirs, 1)
	_, ok := dirs[0].Limit()
	assert.False(t, ok)
}

func TestParse_MultilineValuesTrimmed(t *testing.T) {
	text := "<add_record><context>\n  line one\n  line two\n</context></add_record>"
	dirs := directive.Parse(text)
	require.Len(t, dirs, 1)
	assert.Equal(t, "line one\n  line two", dirs[0].Params[directive.ParamContent])
}

func TestParse_EmptyValueIsPresent(t *testing.T) {
	dirs := directive.Parse(`<save_user_data><key>nickname</key><value></value></save_user_data>`)
	require.Len(t, dirs, 1)
	v, ok := dirs[0].Param(directive.ParamValue)
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

func TestStrip_RemovesBlocksKeepsProse(t *testing.T) {
	text := `Hello. <add_record><context>fact</context></add_record> Let's continue.`
	assert.Equal(t, `Hello.  Let's continue.`, directive.Strip(text))
}

func TestStrip_InvalidBlocksAlsoRemoved(t *testing.T) {
	// Structurally matched but semantically invalid blocks are stripped too.
	text := `before <add_record></add_record> after`
	assert.Equal(t, "before  after", directive.Strip(text))
}

func TestStrip_NoDirectives(t *testing.T) {
	text := "plain response with <unknown_tag>stuff</unknown_tag>"
	assert.Equal(t, text, directive.Strip(text))
}

func TestStrip_ThenParseFindsNothing(t *testing.T) {
	text := `a <save_user_data><key>k</key><value>v</value></save_user_data> b <delete_record><id>x</id></delete_record> c`
	assert.Empty(t, directive.Parse(directive.Strip(text)))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		d       directive.Directive
		wantErr bool
	}{
		{
			name:    "add with content",
			d:       directive.Directive{Kind: directive.KindAddRecord, Params: map[string]string{directive.ParamContent: "x"}},
			wantErr: false,
		},
		{
			name:    "add missing content",
			d:       directive.Directive{Kind: directive.KindAddRecord, Params: map[string]string{}},
			wantErr: true,
		},
		{
			name:    "add whitespace content",
			d:       directive.Directive{Kind: directive.KindAddRecord, Params: map[string]string{directive.ParamContent: "   "}},
			wantErr: true,
		},
		{
			name:    "edit with id and one field",
			d:       directive.Directive{Kind: directive.KindEditRecord, Params: map[string]string{directive.ParamID: "r1", directive.ParamCategory: "c"}},
			wantErr: false,
		},
		{
			name:    "edit with id only",
			d:       directive.Directive{Kind: directive.KindEditRecord, Params: map[string]string{directive.ParamID: "r1"}},
			wantErr: true,
		},
		{
			name:    "edit missing id",
			d:       directive.Directive{Kind: directive.KindEditRecord, Params: map[string]string{directive.ParamContent: "x"}},
			wantErr: true,
		},
		{
			name:    "delete missing id",
			d:       directive.Directive{Kind: directive.KindDeleteRecord, Params: map[string]string{}},
			wantErr: true,
		},
		{
			name:    "query with nothing",
			d:       directive.Directive{Kind: directive.KindQueryRecords, Params: map[string]string{}},
			wantErr: false,
		},
		{
			name:    "save with empty value",
			d:       directive.Directive{Kind: directive.KindSaveFact, Params: map[string]string{directive.ParamKey: "k", directive.ParamValue: ""}},
			wantErr: false,
		},
		{
			name:    "save missing value",
			d:       directive.Directive{Kind: directive.KindSaveFact, Params: map[string]string{directive.ParamKey: "k"}},
			wantErr: true,
		},
		{
			name:    "save missing key",
			d:       directive.Directive{Kind: directive.KindSaveFact, Params: map[string]string{directive.ParamValue: "v"}},
			wantErr: true,
		},
		{
			name:    "retrieve with key",
			d:       directive.Directive{Kind: directive.KindRetrieveFact, Params: map[string]string{directive.ParamKey: "k"}},
			wantErr: false,
		},
		{
			name:    "retrieve with query",
			d:       directive.Directive{Kind: directive.KindRetrieveFact, Params: map[string]string{directive.ParamQuery: "q"}},
			wantErr: false,
		},
		{
			name:    "retrieve with both",
			d:       directive.Directive{Kind: directive.KindRetrieveFact, Params: map[string]string{directive.ParamKey: "k", directive.ParamQuery: "q"}},
			wantErr: true,
		},
		{
			name:    "retrieve with neither",
			d:       directive.Directive{Kind: directive.KindRetrieveFact, Params: map[string]string{}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.d.Validate()
			if tt.wantErr {
				require.Error(t, err)
				var verr *directive.ValidationError
				assert.ErrorAs(t, err, &verr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
