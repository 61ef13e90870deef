// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package plugin

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSchema(t *testing.T) {
	data, err := GenerateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, GetSchemaID(), schema["$id"])
	assert.Contains(t, schema, "properties")

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	for _, field := range []string{"id", "name", "version", "dialect"} {
		assert.Contains(t, props, field)
	}
}

func TestValidateSchema(t *testing.T) {
	defer ResetSchemaCache()

	valid := []byte(`
id: good-plugin
name: Good Plugin
version: 1.0.0
dialect: lua
main: main.lua
`)
	assert.NoError(t, ValidateSchema(valid))

	missingVersion := []byte(`
id: bad-plugin
name: Bad Plugin
dialect: lua
main: main.lua
`)
	assert.Error(t, ValidateSchema(missingVersion))

	assert.Error(t, ValidateSchema(nil))
	assert.Error(t, ValidateSchema([]byte("id: [unclosed")))
}

func TestFormatSchemaError(t *testing.T) {
	assert.Empty(t, FormatSchemaError(nil))

	err := ValidateSchema([]byte("name: Only Name"))
	require.Error(t, err)
	msg := FormatSchemaError(err)
	assert.NotContains(t, msg, "schema validation failed:")
	assert.NotEmpty(t, msg)
}
