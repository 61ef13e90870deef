// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package plugin

import (
	"log/slog"
	"sort"
)

// LoadOrder returns plugin IDs ordered so that every plugin appears
// after all of its dependencies. Dependencies on plugins outside the
// given set are ignored here; they are checked at load time.
//
// Ties break alphabetically so the order is deterministic. When the
// graph contains a cycle the sort cannot place the cyclic plugins; they
// are appended alphabetically and a warning is logged, leaving load to
// surface the failure per plugin.
func LoadOrder(deps map[string][]string, logger *slog.Logger) []string {
	// Kahn's algorithm over the subgraph induced by the known IDs.
	indegree := make(map[string]int, len(deps))
	dependents := make(map[string][]string, len(deps))
	for id := range deps {
		indegree[id] = 0
	}
	for id, ds := range deps {
		for _, d := range ds {
			if _, known := deps[d]; !known {
				continue
			}
			indegree[id]++
			dependents[d] = append(dependents[d], id)
		}
	}

	var ready []string
	for id, n := range indegree {
		if n == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(deps))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var unlocked []string
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				unlocked = append(unlocked, dep)
			}
		}
		sort.Strings(unlocked)
		ready = mergeSorted(ready, unlocked)
	}

	if len(order) < len(deps) {
		var cyclic []string
		for id := range deps {
			if indegree[id] > 0 {
				cyclic = append(cyclic, id)
			}
		}
		sort.Strings(cyclic)
		if logger != nil {
			logger.Warn("dependency cycle detected, appending cyclic plugins",
				slog.Any("plugins", cyclic))
		}
		order = append(order, cyclic...)
	}

	return order
}

func mergeSorted(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// DirectDependents returns the IDs in deps that list id as a direct
// dependency, sorted alphabetically.
func DirectDependents(deps map[string][]string, id string) []string {
	var out []string
	for candidate, ds := range deps {
		for _, d := range ds {
			if d == id {
				out = append(out, candidate)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}
