package tool

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// ArgumentsFor reflects a JSON Schema from an argument struct.
func ArgumentsFor[T any]() json.RawMessage {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
		Anonymous:      true,
	}
	var zero T
	s := r.Reflect(&zero)
	s.Version = ""
	data, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("reflect tool arguments: %v", err))
	}
	return data
}

// Decode unmarshals validated arguments into v, reporting failures as
// InvalidArguments.
func Decode(toolName string, args json.RawMessage, v any) *Error {
	if err := json.Unmarshal(args, v); err != nil {
		return &Error{Kind: InvalidArguments, Tool: toolName, Reason: "decode arguments", Cause: err}
	}
	return nil
}

func compileArguments(schema json.RawMessage) (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema))
}

func validateArguments(spec Spec, args json.RawMessage) *Error {
	if !json.Valid(args) {
		return &Error{Kind: InvalidArguments, Tool: spec.Name, Reason: "arguments are not valid JSON"}
	}
	if len(spec.Arguments) == 0 {
		return nil
	}

	schema, err := compileArguments(spec.Arguments)
	if err != nil {
		return &Error{Kind: InvalidArguments, Tool: spec.Name, Reason: "argument schema", Cause: err}
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return &Error{Kind: InvalidArguments, Tool: spec.Name, Reason: "validate arguments", Cause: err}
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return &Error{Kind: InvalidArguments, Tool: spec.Name, Reason: strings.Join(msgs, "; ")}
}
