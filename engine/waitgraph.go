package engine

import (
	"sort"
	"sync"
)

// WaitForGraph is a directed graph over active transaction ids: edge
// (a, b) means a is currently waiting for a lock held by b. It is
// acyclic at every quiescent moment; a cycle only ever exists transiently
// between AddEdge and the detector's response to it.
type WaitForGraph struct {
	mu    sync.Mutex
	edges map[int]map[int]bool
}

// NewWaitForGraph returns an empty graph.
func NewWaitForGraph() *WaitForGraph {
	return &WaitForGraph{edges: make(map[int]map[int]bool)}
}

// AddEdge records that a is waiting for b. A self-edge is never added
// (invariant: W[a][a] is always false).
func (g *WaitForGraph) AddEdge(a, b int) {
	if a == b {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.edges[a] == nil {
		g.edges[a] = make(map[int]bool)
	}
	g.edges[a][b] = true
}

// RemoveEdge deletes a single edge, if present.
func (g *WaitForGraph) RemoveEdge(a, b int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.edges[a], b)
}

// ClearOutgoing removes every edge leaving a — called once a stops being
// blocked, whether by acquiring its lock or by aborting.
func (g *WaitForGraph) ClearOutgoing(a int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.edges, a)
}

// ClearIncoming removes every edge pointing at b — called when b releases
// a lock, since nothing can still be waiting on a holder that holds
// nothing (invariant: whenever b holds no locks, all incoming edges to b
// are false).
func (g *WaitForGraph) ClearIncoming(b int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, out := range g.edges {
		delete(out, b)
	}
}

// findCycle runs a depth-first search with recursion-stack marking and
// returns the full set of nodes in the first cycle it finds, or nil if the
// graph is currently acyclic. Callers must hold g.mu.
func (g *WaitForGraph) findCycle() []int {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[int]int)
	var path []int
	var cycle []int

	var dfs func(node int) bool
	dfs = func(node int) bool {
		state[node] = visiting
		path = append(path, node)

		nexts := make([]int, 0, len(g.edges[node]))
		for next := range g.edges[node] {
			nexts = append(nexts, next)
		}
		sort.Ints(nexts)

		for _, next := range nexts {
			switch state[next] {
			case unvisited:
				if dfs(next) {
					return true
				}
			case visiting:
				// next is on the current path: the cycle is everything from
				// next's position in path to the end — the whole cycle, not
				// just a single parent-pointer chain back to node.
				for i, n := range path {
					if n == next {
						cycle = append([]int(nil), path[i:]...)
						break
					}
				}
				return true
			case done:
				// reachable but not currently on the stack: no cycle through here.
			}
		}

		state[node] = done
		path = path[:len(path)-1]
		return false
	}

	// Iterate in a stable order so FindCycle is deterministic for a given
	// edge set, which keeps tests reproducible.
	nodes := make([]int, 0, len(g.edges))
	for n := range g.edges {
		nodes = append(nodes, n)
	}
	sort.Ints(nodes)

	for _, n := range nodes {
		if state[n] == unvisited {
			if dfs(n) {
				return cycle
			}
		}
	}
	return nil
}

// FindCycle is findCycle with its own locking, exposed for tests and for
// callers outside the lock-acquisition hot path.
func (g *WaitForGraph) FindCycle() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.findCycle()
}

