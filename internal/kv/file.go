package kv

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bassista/labasica/internal/logger"
	"github.com/fsnotify/fsnotify"
)

const (
	fileSuffix     = ".val"
	watchDebounce  = 100 * time.Millisecond
	fileComponent  = "kv-file"
	fileDirPerms   = 0o755
	fileValuePerms = 0o644
)

// FileStore keeps one file per key inside a directory. Several processes
// pointing at the same directory share data and see each other's writes
// through Watch (fsnotify), which plays the role of the storage event.
type FileStore struct {
	dir string
	mu  sync.Mutex

	// own records what this handle wrote last per key so Watch can skip its own echoes.
	ownMu sync.Mutex
	own   map[string][32]byte
}

// NewFileStore creates the directory when missing.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store directory is required")
	}
	if err := os.MkdirAll(dir, fileDirPerms); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{dir: dir, own: map[string][32]byte{}}, nil
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key)+fileSuffix)
}

func keyFromFile(name string) (string, bool) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, fileSuffix) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimSuffix(base, fileSuffix))
	if err != nil {
		return "", false
	}
	return key, true
}

func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("read key %s: %w", key, err)
	}
	return data, nil
}

// Set writes the value atomically (temp file + rename).
func (f *FileStore) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	target := f.path(key)
	tmpFile, err := os.CreateTemp(f.dir, filepath.Base(target)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
	}()

	if _, err := tmpFile.Write(value); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpFile.Name(), fileValuePerms); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	f.remember(key, value)
	if err := os.Rename(tmpFile.Name(), target); err != nil {
		f.forget(key)
		return fmt.Errorf("replace key file: %w", err)
	}
	return nil
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.remember(key, nil)
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete key %s: %w", key, err)
	}
	return nil
}

func (f *FileStore) Keys(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("list store dir: %w", err)
	}
	keys := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key, ok := keyFromFile(e.Name())
		if ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *FileStore) Close() error { return nil }

func (f *FileStore) remember(key string, value []byte) {
	f.ownMu.Lock()
	defer f.ownMu.Unlock()
	if value == nil {
		// a deletion is remembered as the zero hash
		f.own[key] = [32]byte{}
		return
	}
	f.own[key] = sha256.Sum256(value)
}

func (f *FileStore) forget(key string) {
	f.ownMu.Lock()
	defer f.ownMu.Unlock()
	delete(f.own, key)
}

// isOwn reports whether the current state of key is the one this handle wrote.
func (f *FileStore) isOwn(key string, value []byte, deleted bool) bool {
	f.ownMu.Lock()
	defer f.ownMu.Unlock()
	sum, ok := f.own[key]
	if !ok {
		return false
	}
	if deleted {
		return sum == [32]byte{}
	}
	return sum == sha256.Sum256(value)
}

// Watch listens for changes in the store directory and calls fn after a short
// per-key debounce. It watches the directory (not single files) so atomic
// replace sequences are still observed. The caller owns ctx: cancel it to stop
// the goroutine and close the watcher.
func (f *FileStore) Watch(ctx context.Context, fn func(Change)) error {
	if fn == nil {
		return errors.New("watch callback is required")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(f.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch dir: %w", err)
	}

	go func() {
		defer watcher.Close()

		var mu sync.Mutex
		timers := map[string]*time.Timer{}
		schedule := func(key string) {
			mu.Lock()
			defer mu.Unlock()
			if t, ok := timers[key]; ok {
				t.Stop()
			}
			timers[key] = time.AfterFunc(watchDebounce, func() {
				mu.Lock()
				delete(timers, key)
				mu.Unlock()
				if ctx.Err() != nil {
					return
				}
				f.emitCurrent(key, fn)
			})
		}
		defer func() {
			mu.Lock()
			for _, t := range timers {
				t.Stop()
			}
			mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				key, isKey := keyFromFile(event.Name)
				if !isKey {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					schedule(key)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithComponent(fileComponent).Warnf("watcher error: %v", err)
			}
		}
	}()

	return nil
}

// emitCurrent reads the settled state of key and reports it unless this handle produced it.
func (f *FileStore) emitCurrent(key string, fn func(Change)) {
	data, err := os.ReadFile(f.path(key))
	deleted := errors.Is(err, os.ErrNotExist)
	if err != nil && !deleted {
		logger.WithComponent(fileComponent).Warnf("watch read %s failed: %v", key, err)
		return
	}
	if f.isOwn(key, data, deleted) {
		return
	}
	if deleted {
		fn(Change{Key: key, Deleted: true})
		return
	}
	fn(Change{Key: key, Value: data})
}
