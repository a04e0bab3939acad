package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FS is the filesystem-backed Store. Each key maps to one file under the
// root directory.
type FS struct {
	root string
}

// NewFS creates a filesystem cache rooted at dir, creating it if needed.
func NewFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create root %s: %w", dir, err)
	}
	return &FS{root: dir}, nil
}

// Root returns the cache root directory.
func (c *FS) Root() string {
	return c.root
}

func (c *FS) path(name string) string {
	return filepath.Join(c.root, filepath.FromSlash(name))
}

func (c *FS) Create(name string) (File, error) {
	p := c.path(name)
	if dir := filepath.Dir(p); dir != c.root {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cache: create dir for %s: %w", name, err)
		}
	}
	f, err := os.Create(p)
	if err != nil {
		return nil, fmt.Errorf("cache: create %s: %w", name, err)
	}
	return &fsFile{File: f, name: name}, nil
}

func (c *FS) Open(name string) (File, error) {
	f, err := os.Open(c.path(name))
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", name, err)
	}
	return &fsFile{File: f, name: name}, nil
}

func (c *FS) Delete(name string) error {
	if err := os.Remove(c.path(name)); err != nil {
		return fmt.Errorf("cache: delete %s: %w", name, err)
	}
	return nil
}

func (c *FS) List() ([]string, error) {
	var names []string
	err := filepath.Walk(c.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(c.root, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cache: list: %w", err)
	}
	return names, nil
}

func (c *FS) Length(name string) (int64, error) {
	info, err := os.Stat(c.path(name))
	if err != nil {
		return 0, fmt.Errorf("cache: stat %s: %w", name, err)
	}
	return info.Size(), nil
}

func (c *FS) ModTime(name string) (time.Time, error) {
	info, err := os.Stat(c.path(name))
	if err != nil {
		return time.Time{}, fmt.Errorf("cache: stat %s: %w", name, err)
	}
	return info.ModTime(), nil
}

func (c *FS) Touch(name string, t time.Time) error {
	if err := os.Chtimes(c.path(name), t, t); err != nil {
		return fmt.Errorf("cache: touch %s: %w", name, err)
	}
	return nil
}

type fsFile struct {
	*os.File
	name string
}

func (f *fsFile) Name() string {
	return f.name
}
