package scene

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Entry pairs a panorama picture file with its loaded scene metadata.
type Entry struct {
	Picture string
	Meta    Metadata
}

// ScanDirectory lists all panorama pictures in dir that share the given file
// extension and have a loadable matching sidecar file. The result is sorted
// by picture path. Pictures with missing or unparseable sidecars are skipped.
func ScanDirectory(dir, ext string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan directory: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if !de.Type().IsRegular() {
			continue
		}
		name := de.Name()
		if !strings.EqualFold(filepath.Ext(name), ext) {
			continue
		}

		picture := filepath.Join(dir, name)
		meta, err := LoadSidecar(SidecarPath(picture))
		if err != nil {
			slog.Debug("Skipping picture without usable sidecar", "picture", picture, "error", err)
			continue
		}
		entries = append(entries, Entry{Picture: picture, Meta: meta})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Picture < entries[j].Picture })
	return entries, nil
}

// Playlist is the ordered set of panoramas in one directory with a current
// position. Next and Prev wrap around.
type Playlist struct {
	entries []Entry
	current int
}

// NewPlaylist scans the directory of refPicture for panoramas with the same
// extension and positions the playlist on refPicture. Fails if refPicture
// itself has no loadable sidecar.
func NewPlaylist(refPicture string) (*Playlist, error) {
	entries, err := ScanDirectory(filepath.Dir(refPicture), filepath.Ext(refPicture))
	if err != nil {
		return nil, err
	}

	for i, e := range entries {
		if e.Picture == refPicture {
			return &Playlist{entries: entries, current: i}, nil
		}
	}
	return nil, fmt.Errorf("no usable sidecar file for picture %q", refPicture)
}

// Len returns the number of panoramas in the playlist.
func (p *Playlist) Len() int {
	return len(p.entries)
}

// Current returns the entry at the current position.
func (p *Playlist) Current() Entry {
	return p.entries[p.current]
}

// Next advances to the next panorama, wrapping to the first after the last,
// and returns it.
func (p *Playlist) Next() Entry {
	p.current = (p.current + 1) % len(p.entries)
	return p.entries[p.current]
}

// Prev steps back to the previous panorama, wrapping to the last before the
// first, and returns it.
func (p *Playlist) Prev() Entry {
	p.current = (p.current - 1 + len(p.entries)) % len(p.entries)
	return p.entries[p.current]
}
