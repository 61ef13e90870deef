// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package lua

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/plughub/plughub/internal/plugin"
	"github.com/plughub/plughub/pkg/sdk"
)

// Factory loads lua-dialect plugins. Each loaded plugin owns one
// persistent sandboxed Lua state that lives until Cleanup.
type Factory struct{}

var _ plugin.Factory = (*Factory)(nil)

func NewFactory() *Factory { return &Factory{} }

func (*Factory) Dialect() plugin.Dialect { return plugin.DialectLua }

// Open reads the script named by the manifest's main entry and runs it
// in a fresh sandboxed state. The script's top level runs once here;
// lifecycle functions it defines are called later through the Plugin
// interface.
func (*Factory) Open(_ context.Context, m *plugin.Manifest, dir string, host sdk.Host) (sdk.Plugin, error) {
	entry := filepath.Join(dir, m.Main)
	code, err := os.ReadFile(filepath.Clean(entry))
	if err != nil {
		return nil, oops.In("lua").With("plugin_id", m.ID).With("path", entry).
			Hint("failed to read entry file").Wrap(err)
	}

	L, err := newSandboxedState(host)
	if err != nil {
		return nil, oops.In("lua").With("plugin_id", m.ID).Wrap(err)
	}

	if err := L.DoString(string(code)); err != nil {
		L.Close()
		return nil, oops.In("lua").With("plugin_id", m.ID).With("entry", m.Main).
			Hint("script error").Wrap(err)
	}

	return &scriptPlugin{id: m.ID, state: L, status: sdk.StatusInitialized}, nil
}

// scriptPlugin adapts a loaded Lua script to the plugin contract. A
// single mutex serializes all access to the state; LStates are not safe
// for concurrent use.
type scriptPlugin struct {
	id     string
	mu     sync.Mutex
	state  *lua.LState
	status string
	closed bool
}

var _ sdk.Plugin = (*scriptPlugin)(nil)

func (p *scriptPlugin) Initialize(ctx context.Context) error {
	if err := p.callLifecycle(ctx, "initialize"); err != nil {
		return err
	}
	p.setStatus(sdk.StatusInitialized)
	return nil
}

func (p *scriptPlugin) Start(ctx context.Context) error {
	if err := p.callLifecycle(ctx, "start"); err != nil {
		return err
	}
	p.setStatus(sdk.StatusRunning)
	return nil
}

func (p *scriptPlugin) Stop(ctx context.Context) error {
	if err := p.callLifecycle(ctx, "stop"); err != nil {
		return err
	}
	p.setStatus(sdk.StatusStopped)
	return nil
}

func (p *scriptPlugin) Cleanup(ctx context.Context) error {
	err := p.callLifecycle(ctx, "cleanup")

	p.mu.Lock()
	if !p.closed {
		p.state.Close()
		p.closed = true
	}
	p.mu.Unlock()
	return err
}

// callLifecycle invokes the named script global if the script defines
// it. Scripts may omit any lifecycle function; absence is a no-op.
func (p *scriptPlugin) callLifecycle(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}

	fn := p.state.GetGlobal(name)
	if fn.Type() == lua.LTNil {
		return nil
	}

	p.state.SetContext(ctx)
	if err := p.state.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}); err != nil {
		return oops.In("lua").With("plugin_id", p.id).With("function", name).Wrap(err)
	}
	return nil
}

func (p *scriptPlugin) Process(ctx context.Context, in sdk.Input) (sdk.Output, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return sdk.Output{}, oops.In("lua").With("plugin_id", p.id).New("plugin state is closed")
	}

	fn := p.state.GetGlobal("process")
	if fn.Type() == lua.LTNil {
		return sdk.Output{}, oops.In("lua").With("plugin_id", p.id).
			New("script does not define process")
	}

	p.state.SetContext(ctx)
	if err := p.state.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, p.buildInputTable(in)); err != nil {
		return sdk.Output{}, oops.In("lua").With("plugin_id", p.id).
			With("function", "process").Wrap(err)
	}

	ret := p.state.Get(-1)
	p.state.Pop(1)
	return p.parseOutput(ret, in.Type)
}

func (p *scriptPlugin) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return sdk.StatusStopped
	}

	fn := p.state.GetGlobal("status")
	if fn.Type() == lua.LTNil {
		return p.status
	}
	if err := p.state.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
		return sdk.StatusError
	}
	ret := p.state.Get(-1)
	p.state.Pop(1)
	if s, ok := ret.(lua.LString); ok {
		return string(s)
	}
	return p.status
}

func (p *scriptPlugin) setStatus(s string) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

func (p *scriptPlugin) buildInputTable(in sdk.Input) *lua.LTable {
	t := p.state.NewTable()
	p.state.SetField(t, "type", lua.LString(string(in.Type)))
	p.state.SetField(t, "data", lua.LString(string(in.Data)))
	meta := p.state.NewTable()
	for k, v := range in.Metadata {
		p.state.SetField(meta, k, lua.LString(v))
	}
	p.state.SetField(t, "metadata", meta)
	return t
}

// parseOutput accepts either a bare string (treated as data of the input
// type) or a table with type/data/metadata fields.
func (p *scriptPlugin) parseOutput(ret lua.LValue, fallback sdk.DataType) (sdk.Output, error) {
	switch val := ret.(type) {
	case lua.LString:
		return sdk.Output{Type: fallback, Data: []byte(val)}, nil
	case *lua.LTable:
		out := sdk.Output{Type: fallback}
		if s, ok := val.RawGetString("type").(lua.LString); ok {
			out.Type = sdk.DataType(s)
		}
		if s, ok := val.RawGetString("data").(lua.LString); ok {
			out.Data = []byte(s)
		}
		if meta, ok := val.RawGetString("metadata").(*lua.LTable); ok {
			out.Metadata = make(map[string]string)
			meta.ForEach(func(k, v lua.LValue) {
				if ks, ok := k.(lua.LString); ok {
					out.Metadata[string(ks)] = v.String()
				}
			})
		}
		return out, nil
	case *lua.LNilType:
		return sdk.Output{Type: fallback}, nil
	default:
		return sdk.Output{}, oops.In("lua").With("plugin_id", p.id).
			Errorf("process returned unsupported type %s", ret.Type().String())
	}
}
