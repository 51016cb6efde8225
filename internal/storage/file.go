package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// File is a Store persisted as a single JSON object on disk. Every write
// rewrites the document through a temp file and rename, so readers in other
// processes never see a partial file.
type File struct {
	path string

	mu     sync.RWMutex
	items  map[string]string
	closed bool
}

func OpenFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("file store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	f := &File{path: path, items: make(map[string]string)}
	if _, err := f.reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// reload replaces the in-memory view with the document on disk and reports
// whether it differed. It holds the write lock while reading so it cannot
// interleave with a local flush.
func (f *File) reload() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make(map[string]string)
	b, err := os.ReadFile(f.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return false, fmt.Errorf("file store: read %s: %w", f.path, err)
	case len(b) > 0:
		if err := json.Unmarshal(b, &items); err != nil {
			return false, fmt.Errorf("file store: decode %s: %w", f.path, err)
		}
	}
	changed := !maps.Equal(f.items, items)
	f.items = items
	return changed, nil
}

// flush writes the current items; callers hold f.mu.
func (f *File) flush() error {
	b, err := json.MarshalIndent(f.items, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".kv-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

func (f *File) GetItem(key string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return "", false, ErrClosed
	}
	v, ok := f.items[key]
	return v, ok, nil
}

func (f *File) SetItem(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	old, had := f.items[key]
	f.items[key] = value
	if err := f.flush(); err != nil {
		if had {
			f.items[key] = old
		} else {
			delete(f.items, key)
		}
		return fmt.Errorf("file store: write %s: %w", f.path, err)
	}
	return nil
}

func (f *File) RemoveItem(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	old, had := f.items[key]
	if !had {
		return nil
	}
	delete(f.items, key)
	if err := f.flush(); err != nil {
		f.items[key] = old
		return fmt.Errorf("file store: write %s: %w", f.path, err)
	}
	return nil
}

func (f *File) Keys() ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, ErrClosed
	}
	out := make([]string, 0, len(f.items))
	for k := range f.items {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (f *File) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Watch reloads the document whenever another process replaces or edits it,
// then calls onChange (if non-nil) when the contents differ from ours. It returns once the watch is registered;
// the watch stops when ctx is done.
func (f *File) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: writes land via rename, which drops a watch
	// placed on the file itself.
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		w.Close()
		return err
	}
	target := filepath.Clean(f.path)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != target {
					continue
				}
				if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				changed, err := f.reload()
				if err != nil {
					log.Printf("[storage] reload %s: %v", f.path, err)
					continue
				}
				if changed && onChange != nil {
					onChange()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("[storage] watcher error: %v", err)
			}
		}
	}()
	return nil
}
