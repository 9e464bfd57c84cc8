package pipeline

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/timelinetree/pkg/gitlib"
	"github.com/Sumatoshi-tech/timelinetree/pkg/toposort"
)

// ErrPlanCycle reports a cycle among the planned revisions. Git histories
// are acyclic, so this indicates a corrupt walk.
var ErrPlanCycle = errors.New("revision plan contains a cycle")

// Plan is the ordered list of syntax revisions one run will write, parents
// always before children.
type Plan struct {
	Revisions []string
	// Skipped counts revisions already present in the history store.
	Skipped int
}

// BuildPlan walks the syntax ref, drops revisions the history store already
// maps, and orders the remainder topologically. The limit bounds the plan
// from the earliest end, so a bounded run still writes a valid prefix.
func BuildPlan(repo *gitlib.Repository, ref string, mapped *RevMap, limit int) (*Plan, error) {
	symbols := toposort.NewSymbolTable()
	graph := toposort.NewIntGraph()
	planned := make(map[string]bool)
	plan := &Plan{}

	err := walkRevisions(repo, ref, func(rev string, parents []string) error {
		if _, ok := mapped.Lookup(rev); ok {
			plan.Skipped++

			return nil
		}

		id := symbols.Intern(rev)
		graph.AddNode(id)
		planned[rev] = true

		for _, parent := range parents {
			if !planned[parent] {
				// Already mapped in an earlier run; no ordering edge needed.
				continue
			}

			graph.AddEdge(symbols.Intern(parent), id)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	order, ok := graph.TopoSort()
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrPlanCycle, cycleMembers(graph, symbols, planned))
	}

	for _, id := range order {
		rev := symbols.Resolve(id)
		if rev == "" || !planned[rev] {
			continue
		}

		plan.Revisions = append(plan.Revisions, rev)
	}

	if limit > 0 && len(plan.Revisions) > limit {
		plan.Revisions = plan.Revisions[:limit]
	}

	return plan, nil
}

// cycleMembers names the revisions on one cycle for the plan error. Cycles
// only occur on a corrupt walk, so the scan cost does not matter.
func cycleMembers(graph *toposort.IntGraph, symbols *toposort.SymbolTable, planned map[string]bool) []string {
	for rev := range planned {
		cycle := graph.FindCycle(symbols.Intern(rev))
		if len(cycle) == 0 {
			continue
		}

		members := make([]string, len(cycle))
		for i, id := range cycle {
			members[i] = symbols.Resolve(id)
		}

		return members
	}

	return nil
}

// Verify checks that every planned revision's parents are either already
// mapped or planned earlier. A violation means writing would produce
// dangling parent links.
func (p *Plan) Verify(repo *gitlib.Repository, ref string, mapped *RevMap) error {
	position := make(map[string]int, len(p.Revisions))
	for i, rev := range p.Revisions {
		position[rev] = i
	}

	return walkRevisions(repo, ref, func(rev string, parents []string) error {
		return verifyParents(position, mapped, rev, parents)
	})
}

// verifyParents checks one revision's parents against the plan positions and
// the existing mapping. Revisions outside the plan were skipped or truncated
// by the commit limit and need no check.
func verifyParents(position map[string]int, mapped *RevMap, rev string, parents []string) error {
	pos, ok := position[rev]
	if !ok {
		return nil
	}

	for _, parent := range parents {
		if _, mappedOK := mapped.Lookup(parent); mappedOK {
			continue
		}

		parentPos, plannedOK := position[parent]
		if !plannedOK || parentPos >= pos {
			return fmt.Errorf("%w: %s before parent %s", ErrUnmappedParent, rev, parent)
		}
	}

	return nil
}
