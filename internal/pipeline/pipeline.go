package pipeline

import (
	"errors"
	"fmt"

	"github.com/mtzanidakis/storecrew/internal/agent"
	"github.com/mtzanidakis/storecrew/internal/schema"
)

// Pipeline owns its agents and tasks for the duration of a run. Tasks
// execute in declaration order.
type Pipeline struct {
	Name    string
	Agents  []*agent.Agent
	Tasks   []*Task
	Schemas *schema.Registry
}

// Task returns the task with the given ID.
func (p *Pipeline) Task(id string) (*Task, bool) {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// Validate checks that every context task precedes its dependent in
// declaration order and that output schemas are known.
func (p *Pipeline) Validate() error {
	if len(p.Tasks) == 0 {
		return errors.New("pipeline has no tasks")
	}

	position := make(map[string]int, len(p.Tasks))
	for i, t := range p.Tasks {
		if t == nil {
			return fmt.Errorf("task %d is nil", i)
		}
		if _, dup := position[t.ID]; dup {
			return fmt.Errorf("duplicate task id %q", t.ID)
		}
		position[t.ID] = i
	}

	for i, t := range p.Tasks {
		for _, dep := range t.Context {
			if dep == nil {
				return &DependencyError{Task: t.ID, Dependency: "<nil>", Reason: "context task is nil"}
			}
			if dep == t {
				return &DependencyError{Task: t.ID, Dependency: dep.ID, Reason: "task lists itself as context"}
			}
			pos, ok := position[dep.ID]
			if !ok || p.Tasks[pos] != dep {
				return &DependencyError{Task: t.ID, Dependency: dep.ID, Reason: "context task is not part of the pipeline"}
			}
			if pos >= i {
				return &DependencyError{Task: t.ID, Dependency: dep.ID, Reason: "context task does not precede it"}
			}
		}
		if t.OutputSchema != "" {
			if p.Schemas == nil {
				return fmt.Errorf("task %s: output schema %q set but pipeline has no schema registry", t.ID, t.OutputSchema)
			}
			if _, err := p.Schemas.Get(t.OutputSchema); err != nil {
				return fmt.Errorf("task %s: %w", t.ID, err)
			}
		}
	}
	return nil
}

// Builder assembles a Pipeline from explicitly registered agents and
// tasks.
type Builder struct {
	name    string
	schemas *schema.Registry
	agents  []*agent.Agent
	agentID map[string]*agent.Agent
	tasks   []*Task
	errs    []error
}

func NewBuilder(name string, schemas *schema.Registry) *Builder {
	return &Builder{name: name, schemas: schemas, agentID: make(map[string]*agent.Agent)}
}

func (b *Builder) AddAgent(a *agent.Agent) *Builder {
	switch {
	case a == nil:
		b.errs = append(b.errs, errors.New("agent is nil"))
	case a.ID == "":
		b.errs = append(b.errs, errors.New("agent id is empty"))
	case b.agentID[a.ID] != nil:
		b.errs = append(b.errs, fmt.Errorf("duplicate agent id %q", a.ID))
	default:
		b.agentID[a.ID] = a
		b.agents = append(b.agents, a)
	}
	return b
}

func (b *Builder) AddTask(t *Task) *Builder {
	switch {
	case t == nil:
		b.errs = append(b.errs, errors.New("task is nil"))
	case t.ID == "":
		b.errs = append(b.errs, errors.New("task id is empty"))
	case t.Agent == nil:
		b.errs = append(b.errs, fmt.Errorf("task %s has no agent", t.ID))
	case b.agentID[t.Agent.ID] != t.Agent:
		b.errs = append(b.errs, fmt.Errorf("task %s uses unregistered agent %q", t.ID, t.Agent.ID))
	default:
		b.tasks = append(b.tasks, t)
	}
	return b
}

// Build returns the pipeline or every registration and ordering error.
func (b *Builder) Build() (*Pipeline, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	p := &Pipeline{Name: b.name, Agents: b.agents, Tasks: b.tasks, Schemas: b.schemas}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
