// Package engine implements the dependency-driven task workflow engine:
// graph validation, the scheduler that dispatches ready tasks, and the
// bounded runner pool tasks execute on.
package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DepRef names what a task depends on: either a single upstream task id, or
// a group of them whose outputs are delivered together as an ordered slice.
type DepRef struct {
	single string
	group  []string
}

// SingleDep builds a scalar dependency reference.
func SingleDep(id string) DepRef {
	return DepRef{single: id}
}

// GroupDep builds a group dependency reference over ids, in order.
func GroupDep(ids ...string) DepRef {
	return DepRef{group: append([]string(nil), ids...)}
}

// IsGroup reports whether this reference names a group of dependencies.
func (d DepRef) IsGroup() bool {
	return d.group != nil
}

// Targets returns the dependency target ids this reference names, in the
// order a group lists them (a single ref yields a one-element slice).
func (d DepRef) Targets() []string {
	if d.group != nil {
		return d.group
	}
	if d.single == "" {
		return nil
	}
	return []string{d.single}
}

// MarshalJSON renders a single dependency as a bare string and a group as
// a JSON array, matching the external descriptor shape.
func (d DepRef) MarshalJSON() ([]byte, error) {
	if d.group != nil {
		return json.Marshal(d.group)
	}
	return json.Marshal(d.single)
}

// UnmarshalJSON accepts either a JSON string (scalar dependency) or a JSON
// array of strings (group dependency).
func (d *DepRef) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*d = DepRef{single: single}
		return nil
	}
	var group []string
	if err := json.Unmarshal(data, &group); err != nil {
		return fmt.Errorf("engine: dependency ref must be a string or array of strings: %w", err)
	}
	*d = DepRef{group: group}
	return nil
}

// DepEntry pairs a dependency key with its reference, preserving the order
// in which the descriptor named it.
type DepEntry struct {
	Key string
	Ref DepRef
}

// TaskDescriptor is the user-supplied, wire-level description of one task:
// its id, its registered type, its named dependencies, and opaque config
// passed through to the runner.
type TaskDescriptor struct {
	ID           string
	Type         string
	Dependencies []DepEntry
	Config       map[string]any
}

// UnmarshalJSON decodes a TaskDescriptor from its wire object, preserving
// the insertion order of the "dependencies" object. A plain
// map[string]DepRef would lose that order since Go map iteration is
// unordered, and deterministic dependency-key order is what makes cycle
// and validation error paths reproducible.
func (t *TaskDescriptor) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID           string          `json:"id"`
		Type         string          `json:"type"`
		Dependencies json.RawMessage `json:"dependencies"`
		Config       map[string]any  `json:"config"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	t.ID = wire.ID
	t.Type = wire.Type
	t.Config = wire.Config
	t.Dependencies = nil

	if len(wire.Dependencies) == 0 || string(wire.Dependencies) == "null" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(wire.Dependencies))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("engine: task %q: dependencies must be a JSON object", t.ID)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("engine: task %q: dependency key must be a string", t.ID)
		}
		var ref DepRef
		if err := dec.Decode(&ref); err != nil {
			return err
		}
		t.Dependencies = append(t.Dependencies, DepEntry{Key: key, Ref: ref})
	}
	_, err = dec.Token() // closing '}'
	return err
}

// MarshalJSON renders the descriptor back to its wire object shape.
func (t TaskDescriptor) MarshalJSON() ([]byte, error) {
	deps := make(map[string]DepRef, len(t.Dependencies))
	for _, e := range t.Dependencies {
		deps[e.Key] = e.Ref
	}
	wire := struct {
		ID           string             `json:"id"`
		Type         string             `json:"type"`
		Dependencies map[string]DepRef  `json:"dependencies,omitempty"`
		Config       map[string]any     `json:"config,omitempty"`
	}{ID: t.ID, Type: t.Type, Dependencies: deps, Config: t.Config}
	return json.Marshal(wire)
}

// WorkflowDescriptor is the complete, user-supplied workflow definition
// submitted to the engine.
type WorkflowDescriptor struct {
	Tasks  []TaskDescriptor `json:"tasks"`
	Config map[string]any   `json:"config,omitempty"`
}
