// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrder_Chain(t *testing.T) {
	// a depends on b, b depends on c: load order must be c, b, a.
	deps := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {},
	}
	assert.Equal(t, []string{"c", "b", "a"}, LoadOrder(deps, nil))
}

func TestLoadOrder_Deterministic(t *testing.T) {
	deps := map[string][]string{
		"zeta":  {},
		"alpha": {},
		"mid":   {"alpha", "zeta"},
	}
	first := LoadOrder(deps, nil)
	require.Equal(t, []string{"alpha", "zeta", "mid"}, first)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, LoadOrder(deps, nil))
	}
}

func TestLoadOrder_IgnoresUnknownDeps(t *testing.T) {
	deps := map[string][]string{
		"a": {"not-installed"},
	}
	assert.Equal(t, []string{"a"}, LoadOrder(deps, nil))
}

func TestLoadOrder_Cycle(t *testing.T) {
	deps := map[string][]string{
		"a":    {"b"},
		"b":    {"a"},
		"solo": {},
	}
	order := LoadOrder(deps, nil)
	require.Len(t, order, 3)
	// The acyclic plugin sorts first; the cyclic pair is appended in a
	// stable alphabetical order.
	assert.Equal(t, []string{"solo", "a", "b"}, order)
}

func TestLoadOrder_Diamond(t *testing.T) {
	deps := map[string][]string{
		"top":   {"left", "right"},
		"left":  {"base"},
		"right": {"base"},
		"base":  {},
	}
	order := LoadOrder(deps, nil)
	require.Len(t, order, 4)
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos["base"], pos["left"])
	assert.Less(t, pos["base"], pos["right"])
	assert.Less(t, pos["left"], pos["top"])
	assert.Less(t, pos["right"], pos["top"])
}

func TestDirectDependents(t *testing.T) {
	deps := map[string][]string{
		"a": {"c"},
		"b": {"c", "d"},
		"c": {},
		"d": {},
	}
	assert.Equal(t, []string{"a", "b"}, DirectDependents(deps, "c"))
	assert.Equal(t, []string{"b"}, DirectDependents(deps, "d"))
	assert.Empty(t, DirectDependents(deps, "a"))
}
