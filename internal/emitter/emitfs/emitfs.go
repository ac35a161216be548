// Package emitfs plans and writes the files produced by an emitter.
package emitfs

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// PlannedFile describes a file an emitter intends to write.
type PlannedFile struct {
	RelPath string
	Size    int
	Mode    os.FileMode
	// Unchanged is set when the file already exists with identical content.
	Unchanged bool
}

// Files maps slash-separated relative paths to their content.
type Files map[string][]byte

// Plan lists files in deterministic order. When outDir is non-empty, files
// whose current content already matches are marked Unchanged.
func Plan(outDir string, files Files) []PlannedFile {
	rels := make([]string, 0, len(files))
	for p := range files {
		rels = append(rels, filepath.ToSlash(p))
	}
	sort.Strings(rels)

	planned := make([]PlannedFile, 0, len(rels))
	for _, rel := range rels {
		pf := PlannedFile{RelPath: rel, Size: len(files[rel]), Mode: 0o644}
		if outDir != "" {
			existing, err := os.ReadFile(filepath.Join(outDir, filepath.FromSlash(rel)))
			pf.Unchanged = err == nil && bytes.Equal(existing, files[rel])
		}
		planned = append(planned, pf)
	}
	return planned
}

// Write writes every file below outDir, each one atomically through a
// temporary file in the same directory. An existing non-empty outDir is
// refused unless force is set.
func Write(outDir string, files Files, force bool) error {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return fmt.Errorf("resolve out dir: %w", err)
	}
	if st, err := os.Stat(abs); err == nil {
		if !st.IsDir() {
			return fmt.Errorf("output path %q is not a directory", abs)
		}
		if !force {
			entries, rerr := os.ReadDir(abs)
			if rerr == nil && len(entries) > 0 {
				return fmt.Errorf("output directory %q is not empty (use --force to overwrite)", abs)
			}
		}
	}

	rels := make([]string, 0, len(files))
	for rel := range files {
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	for _, rel := range rels {
		if err := WriteAtomic(filepath.Join(abs, filepath.FromSlash(rel)), files[rel]); err != nil {
			return fmt.Errorf("%s: %w", rel, err)
		}
	}
	return nil
}

// WriteAtomic replaces path with content through a uniquely named sibling
// temp file, so readers never see a partial file and an existing file next
// to path is never touched.
func WriteAtomic(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
