// Package files keeps the cached remote file listing, the macro set and the
// short numeric IDs the operator uses to refer to files.
package files

import (
	"sort"
	"sync"
	"time"

	"github.com/five82/moonterm/internal/moonraker"
)

// File is one G-code file on the printer.
type File struct {
	Path     string
	Modified time.Time
	Size     int64
}

// FromInfo converts a listing entry.
func FromInfo(info moonraker.FileInfo) File {
	return File{Path: info.Name(), Modified: info.ModTime(), Size: info.Size}
}

// FromInfos converts a whole listing.
func FromInfos(infos []moonraker.FileInfo) []File {
	out := make([]File, 0, len(infos))
	for _, info := range infos {
		if info.Name() == "" {
			continue
		}
		out = append(out, FromInfo(info))
	}
	return out
}

// Catalog is the explicitly refreshed remote catalog. It is written by
// refresh tasks and read by completion and local commands.
type Catalog struct {
	mu        sync.RWMutex
	files     []File
	filesAt   time.Time
	macros    []string
	macrosAt  time.Time
	index     *Index
	lastPrint string
	now       func() time.Time
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{index: &Index{}, now: time.Now}
}

// SetFiles replaces the listing and rebuilds the unfiltered index.
func (c *Catalog) SetFiles(files []File) *Index {
	dup := append([]File(nil), files...)
	ix := Build(dup, "")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = dup
	c.filesAt = c.now()
	c.index = ix
	return ix
}

// SetIndex installs an index built from a filtered listing.
func (c *Catalog) SetIndex(ix *Index) {
	if ix == nil {
		ix = &Index{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = ix
}

// Files returns the listing.
func (c *Catalog) Files() []File {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]File(nil), c.files...)
}

// Paths returns the listed file paths sorted newest first.
func (c *Catalog) Paths() []string {
	c.mu.RLock()
	files := append([]File(nil), c.files...)
	c.mu.RUnlock()
	sortNewestFirst(files)
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

// Lookup finds a listed file by exact path.
func (c *Catalog) Lookup(path string) (File, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, f := range c.files {
		if f.Path == path {
			return f, true
		}
	}
	return File{}, false
}

// FilesAge reports how long ago the listing was refreshed. ok is false when it
// never was.
func (c *Catalog) FilesAge() (age time.Duration, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.filesAt.IsZero() {
		return 0, false
	}
	return c.now().Sub(c.filesAt), true
}

// Index returns the current file-ID index.
func (c *Catalog) Index() *Index {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index
}

// SetMacros replaces the macro set.
func (c *Catalog) SetMacros(macros []string) {
	dup := append([]string(nil), macros...)
	sort.Strings(dup)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.macros = dup
	c.macrosAt = c.now()
}

// Macros returns the macro names, sorted.
func (c *Catalog) Macros() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.macros...)
}

// HasMacros reports whether macros were ever fetched.
func (c *Catalog) HasMacros() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.macrosAt.IsZero()
}

// SetLastPrint remembers the most recently started file for reprint.
func (c *Catalog) SetLastPrint(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPrint = path
}

// LastPrint returns the file remembered by SetLastPrint.
func (c *Catalog) LastPrint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPrint
}
