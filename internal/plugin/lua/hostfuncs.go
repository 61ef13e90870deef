// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package lua

import (
	"log/slog"

	lua "github.com/yuin/gopher-lua"

	"github.com/plughub/plughub/pkg/sdk"
)

// registerHostTable exposes the host surface to scripts as a global
// `plughub` table: plugin_id(), log(level, msg), publish(type, payload),
// config_get(key), config_set(key, value).
func registerHostTable(L *lua.LState, host sdk.Host) {
	t := L.NewTable()

	L.SetField(t, "plugin_id", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(host.PluginID()))
		return 1
	}))

	L.SetField(t, "log", L.NewFunction(func(L *lua.LState) int {
		level := L.CheckString(1)
		msg := L.CheckString(2)
		switch level {
		case "debug":
			host.Logger().Debug(msg)
		case "warn":
			host.Logger().Warn(msg)
		case "error":
			host.Logger().Error(msg)
		default:
			host.Logger().Info(msg, slog.String("level_arg", level))
		}
		return 0
	}))

	L.SetField(t, "publish", L.NewFunction(func(L *lua.LState) int {
		eventType := L.CheckString(1)
		payload := luaToGo(L.Get(2))
		host.Publish(eventType, payload)
		return 0
	}))

	L.SetField(t, "config_get", L.NewFunction(func(L *lua.LState) int {
		key := L.CheckString(1)
		value, ok := host.ConfigGet(key)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(value))
		return 1
	}))

	L.SetField(t, "config_set", L.NewFunction(func(L *lua.LState) int {
		key := L.CheckString(1)
		value := L.CheckString(2)
		if err := host.ConfigSet(key, value); err != nil {
			L.Push(lua.LFalse)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LTrue)
		return 1
	}))

	L.SetGlobal("plughub", t)
}

// luaToGo converts a Lua value to a plain Go value for event payloads.
// Tables with only string keys become maps; array-style tables become
// slices.
func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return float64(val)
	case lua.LBool:
		return bool(val)
	case *lua.LTable:
		if n := val.Len(); n > 0 {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, luaToGo(val.RawGetInt(i)))
			}
			return out
		}
		out := make(map[string]any)
		val.ForEach(func(k, v lua.LValue) {
			if ks, ok := k.(lua.LString); ok {
				out[string(ks)] = luaToGo(v)
			}
		})
		return out
	default:
		return nil
	}
}
