package compiler

import (
	"sort"

	"slidecast/internal/pkg/errors"
	"slidecast/internal/renderer/graph"
)

// validate checks the graph's internal consistency against the bound inputs
// and returns its nodes in a stable topological order.
//
// Every node output and every bound input must be consumed exactly once,
// either by a node or by an output mapping.
func validate(g *graph.Graph, inputs []InputBinding) ([]graph.Node, error) {
	producer := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		if n.Output.Label == "" {
			return nil, errors.Compilef("node %d (%s) has no output label", i, n.Stage)
		}
		if _, dup := producer[n.Output.Label]; dup {
			return nil, errors.Compilef("label %q is produced more than once", n.Output.Label)
		}
		if n.Output.Kind != n.Stage.OutputKind() {
			return nil, errors.Compilef("%s node %q must produce %s output", n.Stage, n.Output.Label, n.Stage.OutputKind())
		}
		producer[n.Output.Label] = i
	}

	labelUses := make(map[string]int, len(producer))
	inputUses := make([]int, len(inputs))
	deps := make([][]int, len(g.Nodes))

	for i, n := range g.Nodes {
		if len(n.Inputs) == 0 {
			return nil, errors.Compilef("%s node %q has no inputs", n.Stage, n.Output.Label)
		}
		for _, ref := range n.Inputs {
			if ref.Kind != n.Output.Kind {
				return nil, errors.Compilef("%s node %q consumes %s stream %s", n.Stage, n.Output.Label, ref.Kind, ref)
			}
			if ref.IsInput() {
				if ref.Input < 0 || ref.Input >= len(inputs) {
					return nil, errors.Compilef("node %q references input %d, only %d bound", n.Output.Label, ref.Input, len(inputs))
				}
				if inputs[ref.Input].Kind != ref.Kind {
					return nil, errors.Compilef("node %q reads %s from %s input %d", n.Output.Label, ref.Kind, inputs[ref.Input].Kind, ref.Input)
				}
				inputUses[ref.Input]++
				continue
			}
			p, ok := producer[ref.Label]
			if !ok {
				return nil, errors.Compilef("node %q consumes unknown label %q", n.Output.Label, ref.Label)
			}
			if g.Nodes[p].Output.Kind != ref.Kind {
				return nil, errors.Compilef("label %q is %s, consumed as %s", ref.Label, g.Nodes[p].Output.Kind, ref.Kind)
			}
			labelUses[ref.Label]++
			deps[i] = append(deps[i], p)
		}
	}

	if err := useMapping(g, producer, labelUses); err != nil {
		return nil, err
	}

	for label := range producer {
		if labelUses[label] != 1 {
			return nil, errors.Compilef("label %q consumed %d times", label, labelUses[label])
		}
	}
	for i, uses := range inputUses {
		if uses != 1 {
			return nil, errors.Compilef("input %d (%s) consumed %d times", i, inputs[i].Path, uses)
		}
	}

	return topoSort(g.Nodes, deps)
}

func useMapping(g *graph.Graph, producer map[string]int, uses map[string]int) error {
	p, ok := producer[g.Video.Label]
	if !ok {
		return errors.Compilef("final visual stream %q is not produced", g.Video.Label)
	}
	if g.Nodes[p].Output.Kind != graph.Visual {
		return errors.Compilef("final visual stream %q is not visual", g.Video.Label)
	}
	uses[g.Video.Label]++

	audio, ok := g.Audio.Stream()
	if !ok {
		return nil
	}
	p, ok = producer[audio.Label]
	if !ok {
		return errors.Compilef("final audio stream %q is not produced", audio.Label)
	}
	if g.Nodes[p].Output.Kind != graph.Audio {
		return errors.Compilef("final audio stream %q is not audio", audio.Label)
	}
	uses[audio.Label]++
	return nil
}

// topoSort is Kahn's algorithm with ties broken by builder order.
func topoSort(nodes []graph.Node, deps [][]int) ([]graph.Node, error) {
	indegree := make([]int, len(nodes))
	dependents := make([][]int, len(nodes))
	for i, ds := range deps {
		indegree[i] = len(ds)
		for _, d := range ds {
			dependents[d] = append(dependents[d], i)
		}
	}

	var ready []int
	for i, deg := range indegree {
		if deg == 0 {
			ready = append(ready, i)
		}
	}

	out := make([]graph.Node, 0, len(nodes))
	for len(ready) > 0 {
		sort.Ints(ready)
		i := ready[0]
		ready = ready[1:]
		out = append(out, nodes[i])
		for _, d := range dependents[i] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(out) != len(nodes) {
		return nil, errors.Compilef("stream graph has a cycle")
	}
	return out, nil
}
