package buffer

import (
	"fmt"
	"sync"

	"github.com/janelia-flyem/pixstore/format"
	"github.com/janelia-flyem/pixstore/pix"
)

// PyramidBuffer gives access to a multi-resolution pyramid.  Tile reads use
// the current resolution level; plane reads and all writes use full
// resolution, level 0.
type PyramidBuffer struct {
	path string
	px   pix.Pixels
	r    format.PyramidReader

	mu     sync.Mutex
	level  int
	closed bool
}

// NewPyramid wraps an open pyramid, which must hold pixels shaped like px.
func NewPyramid(path string, px *pix.Pixels, r format.PyramidReader) (*PyramidBuffer, error) {
	found := r.Pixels()
	if !found.SameShape(px) {
		return nil, fmt.Errorf("pyramid %s holds %s, expected %s", path, found, px)
	}
	return &PyramidBuffer{path: path, px: *px, r: r}, nil
}

func (b *PyramidBuffer) Kind() Kind         { return Pyramid }
func (b *PyramidBuffer) Path() string       { return b.path }
func (b *PyramidBuffer) Pixels() pix.Pixels { return b.px }
func (b *PyramidBuffer) BytesPerPixel() int { return b.px.BytesPerPixel() }
func (b *PyramidBuffer) PlaneSize() int64   { return b.px.PlaneSize() }
func (b *PyramidBuffer) Writable() bool     { return b.r.Writable() }

func (b *PyramidBuffer) ResolutionLevels() int { return b.r.Levels() }

func (b *PyramidBuffer) TileSize() (int, int) { return b.r.TileSize() }

func (b *PyramidBuffer) LevelSize(level int) (int, int) { return b.r.LevelSize(level) }

func (b *PyramidBuffer) ResolutionLevel() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.level
}

// SetResolutionLevel selects the level used by ReadTile.  Level 0 is full resolution.
func (b *PyramidBuffer) SetResolutionLevel(level int) error {
	if level < 0 || level >= b.r.Levels() {
		return fmt.Errorf("level %d not in %d-level pyramid: %w", level, b.r.Levels(), pix.ErrOutOfBounds)
	}
	b.mu.Lock()
	b.level = level
	b.mu.Unlock()
	return nil
}

func (b *PyramidBuffer) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *PyramidBuffer) ReadPlane(z, c, t int) ([]byte, error) {
	if b.isClosed() {
		return nil, pix.ErrClosed
	}
	return b.r.ReadPlane(z, c, t)
}

func (b *PyramidBuffer) ReadTile(z, c, t int, r pix.Region) ([]byte, error) {
	if b.isClosed() {
		return nil, pix.ErrClosed
	}
	return b.r.ReadLevelRegion(b.ResolutionLevel(), z, c, t, r)
}

func (b *PyramidBuffer) WritePlane(z, c, t int, data []byte) error {
	return b.WriteTile(z, c, t, pix.FullPlane(b.px.SizeX, b.px.SizeY), data)
}

func (b *PyramidBuffer) WriteTile(z, c, t int, r pix.Region, data []byte) error {
	if b.isClosed() {
		return pix.ErrClosed
	}
	if !b.r.Writable() {
		return pix.ErrReadOnly
	}
	return b.r.WriteRegion(z, c, t, r, data)
}

// Close regenerates lower levels of written planes and closes the pyramid.
func (b *PyramidBuffer) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	if err := b.r.Close(); err != nil {
		return pix.NewResourceError("close", b.path, err)
	}
	return nil
}
