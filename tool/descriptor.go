package tool

import (
	"errors"
	"fmt"

	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	"github.com/tidwall/sjson"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Attr declares one input or output attribute of a tool: its JSON type,
// human description, whether it must be present before execution, an
// optional closed value set, and a nested item schema for arrays.
type Attr struct {
	Type        string
	Description string
	Required    bool
	Enum        []string
	Items       *Attr
}

// Descriptor is the externally visible signature of an operation usable as
// an LLM tool: a name, a free-text description, and named input and output
// attribute maps in declaration order. One descriptor is the single source
// of truth rendered into a JSON-schema request model, an LLM function
// definition, or an MCP registration by the service adapters above it.
type Descriptor struct {
	Name        string
	Description string
	Inputs      *orderedmap.OrderedMap[string, Attr]
	Outputs     *orderedmap.OrderedMap[string, Attr]

	inputSchema  *jsonschema.Schema
	outputSchema *jsonschema.Schema
}

// Option configures a Descriptor.
type Option = opts.Option[Descriptor]

// Description sets the free-text tool description.
var Description = opts.ForName[Descriptor, string]("Description")

// Input declares an input attribute. Declaration order is preserved.
func Input(name string, attr Attr) Option {
	return opts.Type[Descriptor](func(d *Descriptor) error {
		d.Inputs.Set(name, attr)
		return nil
	})
}

// Output declares an output attribute. Declaration order is preserved.
func Output(name string, attr Attr) Option {
	return opts.Type[Descriptor](func(d *Descriptor) error {
		d.Outputs.Set(name, attr)
		return nil
	})
}

// New builds a descriptor with the given name.
func New(name string, options ...Option) (*Descriptor, error) {
	if name == "" {
		return nil, errors.New("tool descriptor needs a name")
	}
	d := &Descriptor{
		Name:    name,
		Inputs:  orderedmap.New[string, Attr](),
		Outputs: orderedmap.New[string, Attr](),
	}
	if err := opts.Apply(d, options); err != nil {
		return nil, err
	}
	return d, nil
}

// Must is New panicking on a construction error.
func Must(name string, options ...Option) *Descriptor {
	d, err := New(name, options...)
	if err != nil {
		panic(err)
	}
	return d
}

// InputSchema renders the input attributes as a JSON-schema object. The
// schema is built once and cached on the descriptor.
func (d *Descriptor) InputSchema() *jsonschema.Schema {
	if d.inputSchema == nil {
		d.inputSchema = schemaFor(d.Inputs)
	}
	return d.inputSchema
}

// OutputSchema renders the output attributes as a JSON-schema object, built
// once and cached like InputSchema.
func (d *Descriptor) OutputSchema() *jsonschema.Schema {
	if d.outputSchema == nil {
		d.outputSchema = schemaFor(d.Outputs)
	}
	return d.outputSchema
}

func schemaFor(attrs *orderedmap.OrderedMap[string, Attr]) *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: orderedmap.New[string, *jsonschema.Schema](),
	}

	var required []string
	for pair := attrs.Oldest(); pair != nil; pair = pair.Next() {
		schema.Properties.Set(pair.Key, attrSchema(pair.Value))
		if pair.Value.Required {
			required = append(required, pair.Key)
		}
	}
	if len(required) > 0 {
		schema.Required = required
	}
	return schema
}

func attrSchema(attr Attr) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:        attr.Type,
		Description: attr.Description,
	}
	for _, value := range attr.Enum {
		s.Enum = append(s.Enum, value)
	}
	if attr.Items != nil {
		s.Items = attrSchema(*attr.Items)
	}
	return s
}

// FunctionDefinition renders the descriptor as a function-calling tool
// definition in the shape chat backends consume.
func (d *Descriptor) FunctionDefinition() (json.RawMessage, error) {
	schemaBytes, err := json.Marshal(d.InputSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input schema for %q: %w", d.Name, err)
	}

	result := []byte(`{"type":"function"}`)
	result, err = sjson.SetBytes(result, "function.name", d.Name)
	if err != nil {
		return nil, err
	}
	if d.Description != "" {
		result, err = sjson.SetBytes(result, "function.description", d.Description)
		if err != nil {
			return nil, err
		}
	}
	result, err = sjson.SetRawBytes(result, "function.parameters", schemaBytes)
	if err != nil {
		return nil, err
	}
	return result, nil
}
