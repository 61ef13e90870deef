// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package plugin

import (
	"context"
	"sort"
	"sync"

	"github.com/plughub/plughub/pkg/sdk"
)

// Factory instantiates plugins of one dialect.
type Factory interface {
	// Dialect reports which manifest dialect this factory serves.
	Dialect() Dialect
	// Open builds a plugin instance from its manifest and install
	// directory. The instance is not yet initialized.
	Open(ctx context.Context, m *Manifest, dir string, host sdk.Host) (sdk.Plugin, error)
}

// Constructor builds a native (in-process Go) plugin.
type Constructor func(host sdk.Host) sdk.Plugin

// NativeFactory resolves native-dialect plugins through an explicit
// constructor registry keyed by plugin ID.
type NativeFactory struct {
	mu    sync.Mutex
	ctors map[string]Constructor
}

var _ Factory = (*NativeFactory)(nil)

func NewNativeFactory() *NativeFactory {
	return &NativeFactory{ctors: make(map[string]Constructor)}
}

// Register associates a constructor with a plugin ID. Registering the
// same ID twice replaces the earlier constructor.
func (f *NativeFactory) Register(id string, ctor Constructor) {
	f.mu.Lock()
	f.ctors[id] = ctor
	f.mu.Unlock()
}

// Registered returns the registered plugin IDs, sorted.
func (f *NativeFactory) Registered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.ctors))
	for id := range f.ctors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (f *NativeFactory) Dialect() Dialect { return DialectNative }

func (f *NativeFactory) Open(_ context.Context, m *Manifest, _ string, host sdk.Host) (sdk.Plugin, error) {
	f.mu.Lock()
	ctor, ok := f.ctors[m.ID]
	f.mu.Unlock()
	if !ok {
		return nil, errb(CodeLoadFailed, m.ID).
			Hint("native plugins must be registered with the host at build time").
			Errorf("no native constructor registered for %q", m.ID)
	}
	return ctor(host), nil
}
