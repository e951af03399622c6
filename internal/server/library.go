package server

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/nfnt/resize"

	"github.com/cwbudde/panoview/internal/projector"
	"github.com/cwbudde/panoview/internal/scene"
)

// pictureExts are the picture file extensions considered for the library.
var pictureExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
	".webp": true,
}

// Panorama is one library entry: a picture with a loadable sidecar.
type Panorama struct {
	Name    string         `json:"name"` // picture file name, the library key
	Picture string         `json:"-"`    // absolute picture path
	Meta    scene.Metadata `json:"-"`
}

// Library holds the panoramas found under a root directory. Rescan refreshes
// the set; the optional watcher triggers rescans on directory changes.
type Library struct {
	root      string
	thumbSize int

	mu      sync.RWMutex
	entries map[string]Panorama
	thumbs  map[string][]byte // encoded PNG thumbnails, reset on rescan
}

// NewLibrary creates a library over the given directory.
func NewLibrary(root string, thumbSize int) *Library {
	return &Library{
		root:      root,
		thumbSize: thumbSize,
		entries:   make(map[string]Panorama),
		thumbs:    make(map[string][]byte),
	}
}

// Rescan rebuilds the library from the root directory. Pictures without a
// loadable sidecar are skipped.
func (l *Library) Rescan() error {
	dirEntries, err := os.ReadDir(l.root)
	if err != nil {
		return fmt.Errorf("read panorama root: %w", err)
	}

	entries := make(map[string]Panorama)
	for _, e := range dirEntries {
		if e.IsDir() || !pictureExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		path := filepath.Join(l.root, e.Name())
		meta, err := scene.LoadSidecar(scene.SidecarPath(path))
		if err != nil {
			slog.Debug("Skipping picture without sidecar", "picture", path, "error", err)
			continue
		}
		entries[e.Name()] = Panorama{Name: e.Name(), Picture: path, Meta: meta}
	}

	l.mu.Lock()
	l.entries = entries
	l.thumbs = make(map[string][]byte)
	l.mu.Unlock()

	slog.Info("Panorama library scanned", "root", l.root, "count", len(entries))
	return nil
}

// List returns all panoramas sorted by name.
func (l *Library) List() []Panorama {
	l.mu.RLock()
	defer l.mu.RUnlock()

	list := make([]Panorama, 0, len(l.entries))
	for _, p := range l.entries {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Get retrieves a panorama by name.
func (l *Library) Get(name string) (Panorama, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.entries[name]
	return p, ok
}

// Thumbnail returns an encoded PNG thumbnail of a panorama, at most
// thumbSize pixels on the longest edge. Thumbnails are rendered on first
// request and cached until the next rescan.
func (l *Library) Thumbnail(name string) ([]byte, error) {
	l.mu.RLock()
	cached, ok := l.thumbs[name]
	entry, exists := l.entries[name]
	l.mu.RUnlock()

	if ok {
		return cached, nil
	}
	if !exists {
		return nil, fmt.Errorf("unknown panorama: %s", name)
	}

	img, err := projector.LoadPicture(entry.Picture)
	if err != nil {
		return nil, fmt.Errorf("load picture for thumbnail: %w", err)
	}

	thumb := resize.Thumbnail(uint(l.thumbSize), uint(l.thumbSize), img, resize.Bilinear)
	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}

	l.mu.Lock()
	l.thumbs[name] = buf.Bytes()
	l.mu.Unlock()

	return buf.Bytes(), nil
}

// Watch rescans the library whenever the root directory changes, until the
// context is cancelled. Bursts of events collapse into one rescan.
func (l *Library) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.root); err != nil {
		return fmt.Errorf("watch panorama root: %w", err)
	}

	// Debounce timer, armed by events.
	const settle = 500 * time.Millisecond
	var rescan <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				slog.Debug("Library change detected", "event", event.String())
				rescan = time.After(settle)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Library watcher error", "error", err)
		case <-rescan:
			rescan = nil
			if err := l.Rescan(); err != nil {
				slog.Error("Library rescan failed", "error", err)
			}
		}
	}
}
