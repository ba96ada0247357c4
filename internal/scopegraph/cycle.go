package scopegraph

import (
	"fmt"
	"sort"

	"github.com/fugue-ai/rhema/internal/rerrors"
)

// visitState is one node's color in the classic white/gray/black DFS cycle
// detection over the resolved dependency edges.
type visitState int

const (
	unvisited visitState = iota
	visiting
	visited
)

// detectCycle runs a DFS over edges (scope name -> target scope names),
// visiting in deterministic (sorted) order so a repeated run on the same
// graph reports the same cycle (§4.A step 5; the S2 scenario requires the
// exact cycle path named in the error).
func detectCycle(edges map[string][]string) ([]string, error) {
	state := make(map[string]visitState, len(edges))
	var path []string

	names := make([]string, 0, len(edges))
	for n := range edges {
		names = append(names, n)
	}
	sort.Strings(names)

	var visit func(string) ([]string, error)
	visit = func(n string) ([]string, error) {
		state[n] = visiting
		path = append(path, n)

		targets := append([]string(nil), edges[n]...)
		sort.Strings(targets)
		for _, t := range targets {
			switch state[t] {
			case visiting:
				// Found the back-edge; build the cycle path starting at t.
				start := 0
				for i, p := range path {
					if p == t {
						start = i
						break
					}
				}
				cycle := append(append([]string(nil), path[start:]...), t)
				return cycle, nil
			case unvisited:
				if cycle, err := visit(t); err != nil || cycle != nil {
					return cycle, err
				}
			}
		}

		path = path[:len(path)-1]
		state[n] = visited
		return nil, nil
	}

	for _, n := range names {
		if state[n] != unvisited {
			continue
		}
		path = nil
		if cycle, err := visit(n); err != nil {
			return nil, err
		} else if cycle != nil {
			return cycle, nil
		}
	}
	return nil, nil
}

// checkAcyclic wraps detectCycle into the CircularDependency failure §4.A
// and §8's Property 4/S2 require, naming the exact cycle found.
func checkAcyclic(edges map[string][]string) error {
	cycle, err := detectCycle(edges)
	if err != nil {
		return err
	}
	if cycle == nil {
		return nil
	}
	return rerrors.New(rerrors.CodeCircularDependency, fmt.Sprintf("circular dependency: %v", cycle)).
		WithDetails("cycle", cycle)
}
