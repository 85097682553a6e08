/*
Package buffer provides random-access pixel buffers over the different
kinds of pixel storage: flat binary files, tiled pyramids, image files read
in their native layout, and original DeltaVision files.
*/
package buffer

import (
	"fmt"
	"sync/atomic"

	"github.com/janelia-flyem/pixstore/format"
	"github.com/janelia-flyem/pixstore/pix"
)

// Kind identifies the storage behind a PixelBuffer.
type Kind uint8

const (
	Flat Kind = iota
	Pyramid
	Direct
	PassThrough
)

func (k Kind) String() string {
	switch k {
	case Flat:
		return "flat"
	case Pyramid:
		return "pyramid"
	case Direct:
		return "direct"
	case PassThrough:
		return "passthrough"
	default:
		return fmt.Sprintf("unknown kind %d", uint8(k))
	}
}

// MarshalText lets JSON responses name the kind.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// PixelBuffer is random-access plane and tile I/O over one storage resource.
// Its dimensions always match the Pixels descriptor it was opened for.  A
// PixelBuffer is owned by its caller and must be closed.
type PixelBuffer interface {
	Kind() Kind

	// Path is the file or directory backing the buffer.
	Path() string

	Pixels() pix.Pixels
	BytesPerPixel() int
	PlaneSize() int64

	// Writable is false for buffers opened without modification rights.
	Writable() bool

	ReadPlane(z, c, t int) ([]byte, error)
	WritePlane(z, c, t int, data []byte) error

	ReadTile(z, c, t int, r pix.Region) ([]byte, error)
	WriteTile(z, c, t int, r pix.Region, data []byte) error

	Close() error
}

// readerBuffer is the shared read-only part of buffers that delegate to a format.Reader.
type readerBuffer struct {
	path   string
	px     pix.Pixels
	reader format.Reader
	closed atomic.Bool
}

// init checks that the reader's dimensions match px.
func (b *readerBuffer) init(path string, px *pix.Pixels, r format.Reader) error {
	found := r.Pixels()
	if !found.SameShape(px) {
		return fmt.Errorf("%s holds %d x %d x %d x %d x %d %s, expected %s", path,
			found.SizeX, found.SizeY, found.SizeZ, found.SizeC, found.SizeT, found.Type, px)
	}
	b.path, b.px, b.reader = path, *px, r
	return nil
}

func (b *readerBuffer) Path() string       { return b.path }
func (b *readerBuffer) Pixels() pix.Pixels { return b.px }
func (b *readerBuffer) BytesPerPixel() int { return b.px.BytesPerPixel() }
func (b *readerBuffer) PlaneSize() int64   { return b.px.PlaneSize() }
func (b *readerBuffer) Writable() bool     { return false }

func (b *readerBuffer) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.reader.Close()
}

func (b *readerBuffer) ReadPlane(z, c, t int) ([]byte, error) {
	if b.closed.Load() {
		return nil, pix.ErrClosed
	}
	return b.reader.ReadPlane(z, c, t)
}

func (b *readerBuffer) ReadTile(z, c, t int, r pix.Region) ([]byte, error) {
	if b.closed.Load() {
		return nil, pix.ErrClosed
	}
	return b.reader.ReadRegion(z, c, t, r)
}

func (b *readerBuffer) WritePlane(z, c, t int, data []byte) error {
	return pix.ErrReadOnly
}

func (b *readerBuffer) WriteTile(z, c, t int, r pix.Region, data []byte) error {
	return pix.ErrReadOnly
}
