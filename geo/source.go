package geo

import (
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/consorcio-sanramon/aforo-live/logger"
)

func contentETag(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// Set is the pair of optional overlays drawn on every map.
type Set struct {
	Canals  *Layer
	Parcels *Layer
}

// ETag combines the layer fingerprints. Absent layers contribute "-".
func (s Set) ETag() string {
	parts := make([]string, 0, 2)
	for _, l := range []*Layer{s.Canals, s.Parcels} {
		if l == nil {
			parts = append(parts, "-")
			continue
		}
		parts = append(parts, l.ETag)
	}
	return strings.Join(parts, ".")
}

// Names lists the loaded layers.
func (s Set) Names() []string {
	var names []string
	for _, l := range []*Layer{s.Canals, s.Parcels} {
		if l != nil {
			names = append(names, l.Name)
		}
	}
	return names
}

// Source reads the geometry files on every Reload. Decoding only happens
// when a file's content changes, so calling Reload per render is cheap.
type Source struct {
	fsys    fs.FS
	canals  *fileState
	parcels *fileState

	mu      sync.RWMutex
	current Set
}

// fileState remembers the last content seen at one path and what it decoded to.
type fileState struct {
	path string
	kind layerKind

	mu     sync.Mutex
	seen   bool
	digest string // "" when the file was absent
	layer  *Layer
}

// NewSource creates a Source. Current is empty until the first Reload.
func NewSource(fsys fs.FS, canalsPath, parcelsPath string) *Source {
	return &Source{
		fsys:    fsys,
		canals:  &fileState{path: canalsPath, kind: canalsKind},
		parcels: &fileState{path: parcelsPath, kind: parcelsKind},
	}
}

// Current returns the layers from the most recent Reload without touching
// the files.
func (s *Source) Current() Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Reload re-reads both files. A missing file drops its layer; a malformed one
// is logged once and the layer is omitted until the file changes.
func (s *Source) Reload() Set {
	set := Set{
		Canals:  s.canals.refresh(s.fsys),
		Parcels: s.parcels.refresh(s.fsys),
	}

	s.mu.Lock()
	s.current = set
	s.mu.Unlock()
	return set
}

func (f *fileState) refresh(fsys fs.FS) *Layer {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := readLayerFile(fsys, f.path, f.kind.name)
	if err != nil {
		// unreadable is not the same as absent; log every time, it should be rare
		logger.Error(err, "Omitting %s layer: %v", f.kind.name, err)
		f.seen, f.digest, f.layer = false, "", nil
		return nil
	}

	digest := ""
	if data != nil {
		digest = contentETag(data)
	}
	if f.seen && digest == f.digest {
		return f.layer
	}
	f.seen, f.digest = true, digest

	if data == nil {
		f.layer = nil
		logger.Muted("No %s file at %s, layer omitted", f.kind.name, f.path)
		return nil
	}

	layer, err := decode(data, f.path, f.kind)
	if err != nil {
		f.layer = nil
		logger.Error(err, "Omitting %s layer: %v", f.kind.name, err)
		return nil
	}
	f.layer = layer
	logger.Muted("Loaded %s: %d features from %s", f.kind.name, layer.Len(), f.path)
	return layer
}
