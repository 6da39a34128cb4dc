// Package schema holds the structured-output contracts pipeline tasks
// must conform to, and the validators that turn raw model text into
// typed values.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// Validator parses raw output into a typed contract value.
type Validator struct {
	name   string
	typ    reflect.Type
	raw    json.RawMessage
	schema *gojsonschema.Schema
}

// For builds a validator for the contract struct T. The JSON Schema is
// reflected from T's json and jsonschema tags.
func For[T any](name string) (*Validator, error) {
	r := &jsonschema.Reflector{
		ExpandedStruct:            true,
		DoNotReference:            true,
		Anonymous:                 true,
		AllowAdditionalProperties: true,
	}
	var zero T
	s := r.Reflect(&zero)
	s.Version = ""
	s.Title = name

	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal %s schema: %w", name, err)
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", name, err)
	}
	return &Validator{
		name:   name,
		typ:    reflect.TypeOf(zero),
		raw:    raw,
		schema: compiled,
	}, nil
}

func (v *Validator) Name() string { return v.name }

// JSONSchema returns the generated schema document.
func (v *Validator) JSONSchema() json.RawMessage { return v.raw }

// Instructions renders the contract as prompt text for the model.
func (v *Validator) Instructions() string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, v.raw, "", "  "); err != nil {
		pretty.Write(v.raw)
	}
	return fmt.Sprintf("Respond with a single JSON object conforming to the %s JSON Schema below. Do not add commentary.\n```json\n%s\n```", v.name, pretty.String())
}

// Parse extracts the JSON object from raw model text and validates it.
// The returned value is a pointer to the contract struct.
func (v *Validator) Parse(raw string) (any, error) {
	doc, ok := ExtractJSON(raw)
	if !ok {
		return nil, &ValidationError{Schema: v.name, Reason: "output contains no JSON object"}
	}
	return v.parseBytes([]byte(doc))
}

// ParseValue validates an already-decoded structure such as a
// map[string]any.
func (v *Validator) ParseValue(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, &ValidationError{Schema: v.name, Reason: fmt.Sprintf("value is not serialisable: %v", err)}
	}
	return v.parseBytes(data)
}

func (v *Validator) parseBytes(data []byte) (any, error) {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, &ValidationError{Schema: v.name, Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if !result.Valid() {
		return nil, v.toValidationError(result.Errors())
	}

	out := reflect.New(v.typ)
	if err := json.Unmarshal(data, out.Interface()); err != nil {
		return nil, &ValidationError{Schema: v.name, Reason: fmt.Sprintf("decode: %v", err)}
	}
	return out.Interface(), nil
}

func (v *Validator) toValidationError(errs []gojsonschema.ResultError) *ValidationError {
	first := errs[0]
	field := first.Field()
	if first.Type() == "required" {
		if prop, ok := first.Details()["property"].(string); ok {
			field = prop
		}
	}
	if field == "(root)" {
		field = ""
	}

	reasons := make([]string, 0, len(errs))
	for _, e := range errs {
		reasons = append(reasons, e.String())
	}
	return &ValidationError{Schema: v.name, Field: field, Reason: strings.Join(reasons, "; ")}
}

// Registry maps schema identifiers to validators.
type Registry struct {
	mu         sync.RWMutex
	validators map[string]*Validator
}

func NewRegistry() *Registry {
	return &Registry{validators: make(map[string]*Validator)}
}

func (r *Registry) Register(v *Validator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.validators[v.name]; dup {
		return fmt.Errorf("schema %q already registered", v.name)
	}
	r.validators[v.name] = v
	return nil
}

func (r *Registry) Get(name string) (*Validator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.validators[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", name)
	}
	return v, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.validators))
	for n := range r.validators {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Builtin returns a registry holding the four storefront contracts.
func Builtin() *Registry {
	r := NewRegistry()
	for _, mk := range []func() (*Validator, error){
		func() (*Validator, error) { return For[MarketStrategy](MarketStrategyName) },
		func() (*Validator, error) { return For[CampaignIdea](CampaignIdeaName) },
		func() (*Validator, error) { return For[Copy](CopyName) },
		func() (*Validator, error) { return For[ProductSEO](ProductSEOName) },
	} {
		v, err := mk()
		if err != nil {
			panic(err)
		}
		if err := r.Register(v); err != nil {
			panic(err)
		}
	}
	return r
}
