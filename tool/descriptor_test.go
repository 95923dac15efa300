package tool

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestDescriptor(t *testing.T) {
	t.Run("needs a name", func(t *testing.T) {
		_, err := New("")
		require.Error(t, err)
	})

	t.Run("declaration order is preserved", func(t *testing.T) {
		d := Must("search",
			Input("query", Attr{Type: "string", Required: true}),
			Input("limit", Attr{Type: "integer"}),
			Output("documents", Attr{Type: "array", Items: &Attr{Type: "string"}}),
		)

		var inputs []string
		for pair := d.Inputs.Oldest(); pair != nil; pair = pair.Next() {
			inputs = append(inputs, pair.Key)
		}
		assert.Equal(t, []string{"query", "limit"}, inputs)
	})

	t.Run("input schema lists required attributes", func(t *testing.T) {
		d := Must("search",
			Input("query", Attr{Type: "string", Description: "the search text", Required: true}),
			Input("limit", Attr{Type: "integer"}),
		)

		schema := d.InputSchema()
		assert.Equal(t, "object", schema.Type)
		assert.Equal(t, []string{"query"}, schema.Required)

		prop, ok := schema.Properties.Get("query")
		require.True(t, ok)
		assert.Equal(t, "string", prop.Type)
		assert.Equal(t, "the search text", prop.Description)
	})

	t.Run("schemas are built once and cached", func(t *testing.T) {
		d := Must("cached", Input("a", Attr{Type: "string"}))
		assert.Same(t, d.InputSchema(), d.InputSchema())
	})

	t.Run("enum and nested items render", func(t *testing.T) {
		d := Must("classify",
			Input("label", Attr{Type: "string", Enum: []string{"spam", "ham"}}),
			Input("samples", Attr{Type: "array", Items: &Attr{Type: "string"}}),
		)

		schema := d.InputSchema()
		label, ok := schema.Properties.Get("label")
		require.True(t, ok)
		assert.Equal(t, []any{"spam", "ham"}, label.Enum)

		samples, ok := schema.Properties.Get("samples")
		require.True(t, ok)
		require.NotNil(t, samples.Items)
		assert.Equal(t, "string", samples.Items.Type)
	})

	t.Run("function definition has the chat backend shape", func(t *testing.T) {
		d := Must("search",
			Description("find documents"),
			Input("query", Attr{Type: "string", Required: true}),
		)

		def, err := d.FunctionDefinition()
		require.NoError(t, err)
		require.True(t, json.Valid(def))

		parsed := gjson.ParseBytes(def)
		assert.Equal(t, "function", parsed.Get("type").String())
		assert.Equal(t, "search", parsed.Get("function.name").String())
		assert.Equal(t, "find documents", parsed.Get("function.description").String())
		assert.Equal(t, "object", parsed.Get("function.parameters.type").String())
		assert.True(t, parsed.Get("function.parameters.properties.query").Exists())
	})
}

func TestBinding(t *testing.T) {
	tests := []struct {
		name    string
		binding Binding
		attr    string
		want    string
	}{
		{
			name: "no remap no instance",
			attr: "result",
			want: "result",
		},
		{
			name:    "remap only",
			binding: Binding{Remap: map[string]string{"result": "search_result"}},
			attr:    "result",
			want:    "search_result",
		},
		{
			name:    "instance suffix only",
			binding: Binding{Instance: 2},
			attr:    "result",
			want:    "result.2",
		},
		{
			name:    "remap then suffix",
			binding: Binding{Remap: map[string]string{"result": "hits"}, Instance: 1},
			attr:    "result",
			want:    "hits.1",
		},
		{
			name:    "instance zero means no suffix",
			binding: Binding{Instance: 0},
			attr:    "result",
			want:    "result",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.binding.ResolveKey(tt.attr))
		})
	}
}
