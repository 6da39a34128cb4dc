package pipeline

import (
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_.]*)\}`)

const outputSuffix = ".output"

// Render interpolates the task's description. {name} resolves to a run
// input and {<task id>.output} to the raw output of one of the task's
// context tasks. The first unbound placeholder fails the render.
func Render(t *Task, inputs map[string]string, outputs map[string]string) (string, error) {
	return renderText(t, t.Description, inputs, outputs)
}

// RenderExpected interpolates the task's expected output with the same
// bindings as Render.
func RenderExpected(t *Task, inputs map[string]string, outputs map[string]string) (string, error) {
	return renderText(t, t.ExpectedOutput, inputs, outputs)
}

func renderText(t *Task, text string, inputs, outputs map[string]string) (string, error) {
	out, missing := substitute(text, func(key string) (string, bool) {
		return lookup(t, key, inputs, outputs)
	})
	if missing != "" {
		return "", &TemplateError{Task: t.ID, Placeholder: missing}
	}
	return out, nil
}

// Interpolate replaces every {name} in tmpl with vars[name] in a single
// pass, so substituted values are never scanned again. It returns the
// first name without a binding, or "" when all resolved.
func Interpolate(tmpl string, vars map[string]string) (string, string) {
	return substitute(tmpl, func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	})
}

func substitute(tmpl string, resolve func(string) (string, bool)) (string, string) {
	var missing string
	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := m[1 : len(m)-1]
		if v, ok := resolve(key); ok {
			return v
		}
		if missing == "" {
			missing = key
		}
		return m
	})
	return out, missing
}

func lookup(t *Task, key string, inputs, outputs map[string]string) (string, bool) {
	if id, ok := strings.CutSuffix(key, outputSuffix); ok {
		for _, dep := range t.Context {
			if dep.ID == id {
				v, ok := outputs[id]
				return v, ok
			}
		}
	}
	v, ok := inputs[key]
	return v, ok
}

// Placeholders lists the distinct placeholder names in a template.
func Placeholders(tmpl string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}
