package engine

import "github.com/wfengine/wfengine/buffer"

// taskNode is the internal record built for one TaskDescriptor once the
// graph has validated: its descriptor plus precomputed per-source
// reference counts (how many times it names each upstream task, across
// every dependency key and every slot of every group).
type taskNode struct {
	Descriptor   TaskDescriptor
	OutputType   buffer.Tag
	Multiplicity map[string]int
}

// DAG is a validated workflow: every id is unique, every dependency
// target exists, and the graph contains no cycle.
type DAG struct {
	Tasks map[string]*taskNode
	Order []string
}

const (
	white = 0
	grey  = 1
	black = 2
)

// Validate runs the two checks a workflow must pass before scheduling:
// no duplicate ids, and a dependency-target DFS that raises
// DependencyNotFoundError or CyclicDependencyError immediately on the
// first violation it finds, walking tasks and dependency keys in the
// order the descriptor listed them so error paths are reproducible.
func Validate(descs []TaskDescriptor) (*DAG, error) {
	taskMap := make(map[string]*taskNode, len(descs))
	order := make([]string, 0, len(descs))

	for _, d := range descs {
		if _, exists := taskMap[d.ID]; exists {
			return nil, &DuplicateTaskError{ID: d.ID}
		}
		mult := make(map[string]int)
		for _, de := range d.Dependencies {
			for _, s := range de.Ref.Targets() {
				mult[s]++
			}
		}
		taskMap[d.ID] = &taskNode{Descriptor: d, Multiplicity: mult}
		order = append(order, d.ID)
	}

	color := make(map[string]int, len(order))
	var stack []string
	stackPos := make(map[string]int, len(order))

	var dfs func(id string) error
	dfs = func(id string) error {
		color[id] = grey
		stackPos[id] = len(stack)
		stack = append(stack, id)

		node := taskMap[id]
		for _, de := range node.Descriptor.Dependencies {
			for _, target := range de.Ref.Targets() {
				if _, ok := taskMap[target]; !ok {
					return &DependencyNotFoundError{ID: target}
				}
				switch color[target] {
				case white:
					if err := dfs(target); err != nil {
						return err
					}
				case grey:
					start := stackPos[target]
					path := append([]string{}, stack[start:]...)
					path = append(path, target)
					return &CyclicDependencyError{ID: id, Path: path}
				}
			}
		}

		color[id] = black
		stack = stack[:len(stack)-1]
		delete(stackPos, id)
		return nil
	}

	for _, id := range order {
		if color[id] == white {
			if err := dfs(id); err != nil {
				return nil, err
			}
		}
	}

	return &DAG{Tasks: taskMap, Order: order}, nil
}
