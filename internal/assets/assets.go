// Package assets keeps the web UI files in memory.
//
// The directory is read once at startup. Watch then refreshes individual
// files as fsnotify reports changes, so an updated game.html is served
// without restarting the daemon.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sweeney/coin-pulser/internal/logger"
)

// IndexFile is served at the web root.
const IndexFile = "game.html"

// maxFileSize caps what is held in memory per file.
const maxFileSize = 4 << 20

// File is one cached asset.
type File struct {
	Data        []byte
	ContentType string
	ModTime     time.Time
}

// Cache holds every file under a directory.
type Cache struct {
	dir string
	log *logger.Logger

	mu        sync.RWMutex
	files     map[string]File
	available bool
}

// New creates a cache for dir and loads it. A missing or unreadable
// directory leaves the cache empty and unavailable; it is not an error.
func New(dir string, log *logger.Logger) *Cache {
	c := &Cache{dir: dir, log: log, files: make(map[string]File)}
	if err := c.Reload(); err != nil {
		log.Warnw("assets_unavailable", "dir", dir, "err", err)
	}
	return c
}

// Reload rereads the whole directory.
func (c *Cache) Reload() error {
	files := make(map[string]File)
	err := filepath.WalkDir(c.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name, f, err := c.read(p)
		if err != nil {
			c.log.Warnw("asset_read_failed", "path", p, "err", err)
			return nil
		}
		files[name] = f
		return nil
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.available = false
		return fmt.Errorf("load assets from %s: %w", c.dir, err)
	}
	c.files = files
	c.available = true
	c.log.Infow("assets_loaded", "dir", c.dir, "files", len(files))
	return nil
}

func (c *Cache) read(p string) (string, File, error) {
	rel, err := filepath.Rel(c.dir, p)
	if err != nil {
		return "", File{}, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return "", File{}, err
	}
	if info.Size() > maxFileSize {
		return "", File{}, fmt.Errorf("file is %d bytes, limit %d", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", File{}, err
	}
	name := filepath.ToSlash(rel)
	return name, File{Data: data, ContentType: contentType(name), ModTime: info.ModTime()}, nil
}

func contentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".js":
		return "application/javascript"
	case ".css":
		return "text/css; charset=utf-8"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Available reports whether the directory could be read.
func (c *Cache) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

// Get returns the file stored under name (slash separated, relative to
// the directory).
func (c *Cache) Get(name string) (File, bool) {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.files[name]
	return f, ok
}

// Len returns the number of cached files.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.files)
}

// Watch refreshes files as they change until ctx is cancelled. If a file
// cannot be read the previous copy stays.
func (c *Cache) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	err = filepath.WalkDir(c.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", c.dir, err)
	}
	c.log.Infow("assets_watching", "dir", c.dir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			c.handle(watcher, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.log.Warnw("assets_watcher_error", "err", err)
		}
	}
}

func (c *Cache) handle(watcher *fsnotify.Watcher, event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		rel, err := filepath.Rel(c.dir, event.Name)
		if err != nil {
			return
		}
		c.mu.Lock()
		delete(c.files, filepath.ToSlash(rel))
		c.mu.Unlock()
		c.log.Infow("asset_removed", "name", filepath.ToSlash(rel))

	case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			_ = watcher.Add(event.Name)
			return
		}
		name, f, err := c.read(event.Name)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				c.log.Warnw("asset_reload_failed", "path", event.Name, "err", err)
			}
			return
		}
		c.mu.Lock()
		c.files[name] = f
		c.available = true
		c.mu.Unlock()
		c.log.Infow("asset_reloaded", "name", name, "bytes", len(f.Data))
	}
}
