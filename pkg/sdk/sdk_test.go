// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package sdk_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plughub/plughub/pkg/sdk"
)

func TestProcessFunc_AdaptsBareFunction(t *testing.T) {
	var called bool
	p := sdk.ProcessFunc(func(_ context.Context, in sdk.Input) (sdk.Output, error) {
		called = true
		return sdk.Output{Type: in.Type, Data: in.Data}, nil
	})

	ctx := context.Background()

	// Lifecycle calls are no-ops for function plugins.
	require.NoError(t, p.Initialize(ctx))
	require.NoError(t, p.Start(ctx))

	out, err := p.Process(ctx, sdk.Input{Type: sdk.DataText, Data: []byte("hello")})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, sdk.DataText, out.Type)
	assert.Equal(t, []byte("hello"), out.Data)

	require.NoError(t, p.Stop(ctx))
	require.NoError(t, p.Cleanup(ctx))
	assert.Equal(t, sdk.StatusRunning, p.Status())
}
