// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package plugin

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pkg.zip")
	f, err := os.Create(path)
	require.NoError(t, err)

	w := zip.NewWriter(f)
	for name, content := range entries {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func TestStagePackage_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFileName), []byte("id: x"), 0o600))

	got, cleanup, err := StagePackage(dir)
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, dir, got)
}

func TestStagePackage_ZipAtRoot(t *testing.T) {
	path := writeZip(t, map[string]string{
		ManifestFileName: "id: echo",
		"main.lua":       "-- entry",
	})

	dir, cleanup, err := StagePackage(path)
	require.NoError(t, err)
	defer cleanup()

	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	require.NoError(t, err)
	assert.Equal(t, "id: echo", string(data))

	_, err = os.Stat(filepath.Join(dir, "main.lua"))
	assert.NoError(t, err)
}

func TestStagePackage_ZipWithTopFolder(t *testing.T) {
	path := writeZip(t, map[string]string{
		"echo-plugin/" + ManifestFileName: "id: echo",
		"echo-plugin/main.lua":            "-- entry",
	})

	dir, cleanup, err := StagePackage(path)
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, "echo-plugin", filepath.Base(dir))
	_, err = os.Stat(filepath.Join(dir, ManifestFileName))
	assert.NoError(t, err)
}

func TestStagePackage_CleanupRemovesStagingDir(t *testing.T) {
	path := writeZip(t, map[string]string{ManifestFileName: "id: echo"})

	dir, cleanup, err := StagePackage(path)
	require.NoError(t, err)

	cleanup()
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestStagePackage_MissingManifest(t *testing.T) {
	path := writeZip(t, map[string]string{"readme.txt": "nothing here"})

	_, cleanup, err := StagePackage(path)
	defer cleanup()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ManifestFileName)
}

func TestStagePackage_RejectsPathTraversal(t *testing.T) {
	path := writeZip(t, map[string]string{
		"../escape.txt": "outside",
	})

	_, cleanup, err := StagePackage(path)
	defer cleanup()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
}

func TestStagePackage_RejectsOtherFileTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pkg.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o600))

	_, _, err := StagePackage(path)
	require.Error(t, err)
}

func TestStagePackage_NotFound(t *testing.T) {
	_, _, err := StagePackage(filepath.Join(t.TempDir(), "missing.zip"))
	require.Error(t, err)
}

func TestCopyDir(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, ManifestFileName), []byte("id: x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "data.lua"), []byte("return 1"), 0o600))

	dst := filepath.Join(t.TempDir(), "installed")
	require.NoError(t, CopyDir(src, dst))

	data, err := os.ReadFile(filepath.Join(dst, "sub", "data.lua"))
	require.NoError(t, err)
	assert.Equal(t, "return 1", string(data))
}
