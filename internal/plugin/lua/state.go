// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

// Package lua provides the sandboxed Lua plugin dialect.
package lua

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/plughub/plughub/pkg/sdk"
)

// safeLibrary is a Lua library safe to load in a sandboxed state.
type safeLibrary struct {
	name string
	fn   lua.LGFunction
}

// Safe: base, table, string, math. Blocked: os, io, debug, package.
func defaultSafeLibraries() []safeLibrary {
	return []safeLibrary{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
}

// unsafeBaseFunctions are base library functions blocked for sandboxing;
// they allow filesystem access or arbitrary code loading.
var unsafeBaseFunctions = []string{"dofile", "loadfile", "loadstring", "load"}

// newSandboxedState creates a Lua state with only the safe libraries
// loaded and the plughub host table registered for the given host.
func newSandboxedState(host sdk.Host) (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})

	for _, lib := range defaultSafeLibraries() {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("failed to open library %s: %w", lib.name, err)
		}
	}

	for _, fn := range unsafeBaseFunctions {
		L.SetGlobal(fn, lua.LNil)
	}

	registerHostTable(L, host)
	return L, nil
}
