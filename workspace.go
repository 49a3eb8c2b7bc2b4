package epubreplace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// workspace is the scratch directory holding one package's extracted
// entries. Each invocation gets a uniquely named directory, and all access
// goes through an os.Root so entry names cannot escape it.
type workspace struct {
	dir  string
	root *os.Root
}

// newWorkspace creates a fresh scratch directory under base (the system
// temporary directory when base is empty).
func newWorkspace(base string) (*workspace, error) {
	dir, err := os.MkdirTemp(base, "epubreplace-*")
	if err != nil {
		return nil, fmt.Errorf("epubreplace: create workspace: %w", err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("epubreplace: open workspace: %w", err)
	}
	return &workspace{dir: dir, root: root}, nil
}

// readFile reads an entry by its archive name.
func (w *workspace) readFile(name string) ([]byte, error) {
	return w.root.ReadFile(filepath.FromSlash(name))
}

// writeFile stores an entry by its archive name, creating parent
// directories as needed.
func (w *workspace) writeFile(name string, data []byte) error {
	if dir := path.Dir(name); dir != "." {
		if err := w.root.MkdirAll(filepath.FromSlash(dir), 0o755); err != nil {
			return err
		}
	}
	return w.root.WriteFile(filepath.FromSlash(name), data, 0o644)
}

func (w *workspace) mkdirAll(name string) error {
	return w.root.MkdirAll(filepath.FromSlash(name), 0o755)
}

// exists reports whether a regular file is stored under name.
func (w *workspace) exists(name string) (bool, error) {
	info, err := w.root.Stat(filepath.FromSlash(name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// files lists every regular file in the workspace as slash-separated
// archive names, in lexical order.
func (w *workspace) files() ([]string, error) {
	var names []string
	err := fs.WalkDir(w.root.FS(), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			names = append(names, p)
		}
		return nil
	})
	return names, err
}

// Close releases the root handle and removes the directory with all of
// its contents.
func (w *workspace) Close() error {
	rootErr := w.root.Close()
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("epubreplace: remove workspace %s: %w", w.dir, err)
	}
	return rootErr
}
