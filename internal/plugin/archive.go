// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package plugin

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ManifestFileName is the manifest file looked for in a plugin package.
const ManifestFileName = "plugin.yaml"

// StagePackage makes the plugin package at path available as a plain
// directory. A directory is returned as-is; a .zip archive is extracted
// into a fresh temp directory whose cleanup func the caller must run.
// The returned dir is the one containing plugin.yaml, which may be a
// single top-level folder inside the archive.
func StagePackage(path string) (dir string, cleanup func(), err error) {
	cleanup = func() {}

	info, err := os.Stat(path)
	if err != nil {
		return "", cleanup, fmt.Errorf("package not accessible: %w", err)
	}

	if info.IsDir() {
		dir = path
	} else if strings.EqualFold(filepath.Ext(path), ".zip") {
		tmp, err := os.MkdirTemp("", "plughub-pkg-*")
		if err != nil {
			return "", cleanup, fmt.Errorf("create staging dir: %w", err)
		}
		cleanup = func() { _ = os.RemoveAll(tmp) }
		if err := extractZip(path, tmp); err != nil {
			cleanup()
			return "", func() {}, err
		}
		dir = tmp
	} else {
		return "", cleanup, fmt.Errorf("package must be a directory or .zip archive, got %q", filepath.Base(path))
	}

	root, err := findManifestDir(dir)
	if err != nil {
		cleanup()
		return "", func() {}, err
	}
	return root, cleanup, nil
}

// findManifestDir returns dir if it holds plugin.yaml, or the single
// subdirectory that does (the usual zip layout with one top folder).
func findManifestDir(dir string) (string, error) {
	if _, err := os.Stat(filepath.Join(dir, ManifestFileName)); err == nil {
		return dir, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var subdirs []string
	for _, e := range entries {
		if e.IsDir() {
			subdirs = append(subdirs, e.Name())
		}
	}
	if len(subdirs) == 1 {
		candidate := filepath.Join(dir, subdirs[0])
		if _, err := os.Stat(filepath.Join(candidate, ManifestFileName)); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no %s found in package", ManifestFileName)
}

func extractZip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(dest, f.Name)
		// Reject entries that escape the destination.
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes extraction directory", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractFile(f, target); err != nil {
			return fmt.Errorf("extract %q: %w", f.Name, err)
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode().Perm()|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// CopyDir copies the tree at src into dst, creating dst. Used to move a
// staged package into the plugins directory.
func CopyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode().Perm())
	})
}
