// Package crew assembles the storefront marketing pipeline from a YAML
// definition and the configured backends, tools and collaborators.
package crew

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mtzanidakis/storecrew/internal/agent"
	"github.com/mtzanidakis/storecrew/internal/llm"
	"github.com/mtzanidakis/storecrew/internal/pipeline"
	"github.com/mtzanidakis/storecrew/internal/schema"
	"github.com/mtzanidakis/storecrew/internal/tool"
)

//go:embed crew.yaml
var builtinDefinition []byte

type Definition struct {
	Name   string     `yaml:"name"`
	Agents []AgentDef `yaml:"agents"`
	Tasks  []TaskDef  `yaml:"tasks"`
}

type AgentDef struct {
	ID            string   `yaml:"id"`
	Role          string   `yaml:"role"`
	Goal          string   `yaml:"goal"`
	Backstory     string   `yaml:"backstory"`
	Tools         []string `yaml:"tools"`
	MaxIterations int      `yaml:"max_iterations"`
	Temperature   *float64 `yaml:"temperature"`
}

type TaskDef struct {
	ID             string   `yaml:"id"`
	Agent          string   `yaml:"agent"`
	Description    string   `yaml:"description"`
	ExpectedOutput string   `yaml:"expected_output"`
	Context        []string `yaml:"context"`
	OutputSchema   string   `yaml:"output_schema"`
}

// LoadDefinition reads a crew definition from path, or the built-in crew
// when path is empty.
func LoadDefinition(path string) (*Definition, error) {
	if path == "" {
		return ParseDefinition(builtinDefinition)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read crew definition: %w", err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// ParseDefinition decodes a definition, rejecting unknown keys.
func ParseDefinition(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("parse crew definition: %w", err)
	}
	if def.Name == "" {
		def.Name = "crew"
	}
	if len(def.Tasks) == 0 {
		return nil, fmt.Errorf("crew definition %s has no tasks", def.Name)
	}
	return &def, nil
}

// Deps are the shared collaborators every agent of a crew is bound to.
type Deps struct {
	Backends *llm.Chain
	// Tools holds every tool an agent may ask for, by name.
	Tools         map[string]tool.Spec
	Schemas       *schema.Registry
	MaxIterations int
}

// Build constructs the pipeline. Agent fields may use run-input
// placeholders; they are bound here since agents are immutable for the
// run.
func (d *Definition) Build(deps Deps, inputs map[string]string) (*pipeline.Pipeline, error) {
	if deps.Backends == nil {
		return nil, fmt.Errorf("crew %s: no backend chain", d.Name)
	}
	b := pipeline.NewBuilder(d.Name, deps.Schemas)

	agents := make(map[string]*agent.Agent, len(d.Agents))
	for _, ad := range d.Agents {
		a, err := buildAgent(ad, deps, inputs)
		if err != nil {
			return nil, err
		}
		agents[a.ID] = a
		b.AddAgent(a)
	}

	tasks := make(map[string]*pipeline.Task, len(d.Tasks))
	for _, td := range d.Tasks {
		if _, dup := tasks[td.ID]; dup {
			return nil, fmt.Errorf("crew %s: duplicate task id %q", d.Name, td.ID)
		}
		tasks[td.ID] = &pipeline.Task{
			ID:             td.ID,
			Description:    strings.TrimSpace(td.Description),
			ExpectedOutput: strings.TrimSpace(td.ExpectedOutput),
			Agent:          agents[td.Agent],
			OutputSchema:   td.OutputSchema,
		}
		if agents[td.Agent] == nil {
			return nil, fmt.Errorf("task %s: unknown agent %q", td.ID, td.Agent)
		}
	}

	// Context may point forward; ordering is checked by the pipeline.
	for _, td := range d.Tasks {
		t := tasks[td.ID]
		for _, dep := range td.Context {
			ct, ok := tasks[dep]
			if !ok {
				return nil, &pipeline.DependencyError{Task: td.ID, Dependency: dep, Reason: "context task is not declared"}
			}
			t.Context = append(t.Context, ct)
		}
		b.AddTask(t)
	}

	return b.Build()
}

func buildAgent(ad AgentDef, deps Deps, inputs map[string]string) (*agent.Agent, error) {
	specs := make([]tool.Spec, 0, len(ad.Tools))
	for _, name := range ad.Tools {
		spec, ok := deps.Tools[name]
		if !ok {
			return nil, fmt.Errorf("agent %s: unknown tool %q", ad.ID, name)
		}
		specs = append(specs, spec)
	}
	tools, err := tool.NewSet(specs...)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", ad.ID, err)
	}

	a := &agent.Agent{
		ID:            ad.ID,
		Tools:         tools,
		Backends:      deps.Backends,
		MaxIterations: deps.MaxIterations,
	}
	if ad.MaxIterations > 0 {
		a.MaxIterations = ad.MaxIterations
	}
	if ad.Temperature != nil {
		a.Temperature = *ad.Temperature
	}
	for _, f := range []struct {
		dst *string
		src string
	}{{&a.Role, ad.Role}, {&a.Goal, ad.Goal}, {&a.Backstory, ad.Backstory}} {
		v, err := interpolate(strings.TrimSpace(f.src), inputs)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", ad.ID, err)
		}
		*f.dst = v
	}
	return a, nil
}

func interpolate(s string, inputs map[string]string) (string, error) {
	out, missing := pipeline.Interpolate(s, inputs)
	if missing != "" {
		return "", fmt.Errorf("unresolved placeholder {%s}", missing)
	}
	return out, nil
}
