package buffer

import (
	"fmt"
	"os"
	"sync"

	"github.com/janelia-flyem/pixstore/pix"
)

// FlatBuffer addresses planes of a flat binary file by byte offset.  Planes
// are stored contiguously with T outermost, then C, then Z.
type FlatBuffer struct {
	path     string
	px       pix.Pixels
	writable bool

	mu sync.RWMutex // guards f against concurrent Close
	f  *os.File
}

// OpenFlat opens existing flat storage for px.  The file must be exactly
// px.TotalSize() bytes.
func OpenFlat(path string, px *pix.Pixels, writable bool) (*FlatBuffer, error) {
	if err := px.Validate(); err != nil {
		return nil, err
	}
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, pix.NewResourceError("open", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, pix.NewResourceError("stat", path, err)
	}
	if fi.Size() != px.TotalSize() {
		f.Close()
		return nil, pix.NewResourceError("open", path,
			fmt.Errorf("file has %d bytes, %s needs %d", fi.Size(), px, px.TotalSize()))
	}
	return &FlatBuffer{path: path, px: *px, writable: writable, f: f}, nil
}

func (b *FlatBuffer) String() string {
	mode := "read-only"
	if b.writable {
		mode = "read-write"
	}
	return fmt.Sprintf("flat buffer (%s) @ %s", mode, b.path)
}

func (b *FlatBuffer) Kind() Kind         { return Flat }
func (b *FlatBuffer) Path() string       { return b.path }
func (b *FlatBuffer) Pixels() pix.Pixels { return b.px }
func (b *FlatBuffer) BytesPerPixel() int { return b.px.BytesPerPixel() }
func (b *FlatBuffer) PlaneSize() int64   { return b.px.PlaneSize() }
func (b *FlatBuffer) Writable() bool     { return b.writable }

// PlaneOffset returns the byte offset of plane (z, c, t) in the file.
func (b *FlatBuffer) PlaneOffset(z, c, t int) (int64, error) {
	if err := b.px.CheckPlane(z, c, t); err != nil {
		return 0, err
	}
	return b.px.PlaneOffset(z, c, t), nil
}

func (b *FlatBuffer) ReadPlane(z, c, t int) ([]byte, error) {
	return b.ReadTile(z, c, t, pix.FullPlane(b.px.SizeX, b.px.SizeY))
}

func (b *FlatBuffer) WritePlane(z, c, t int, data []byte) error {
	return b.WriteTile(z, c, t, pix.FullPlane(b.px.SizeX, b.px.SizeY), data)
}

func (b *FlatBuffer) ReadTile(z, c, t int, r pix.Region) ([]byte, error) {
	var out []byte
	err := b.tileIO(z, c, t, r, func(buf []byte, off int64) error {
		_, err := b.f.ReadAt(buf, off)
		return err
	}, func(size int) []byte {
		out = make([]byte, size)
		return out
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *FlatBuffer) WriteTile(z, c, t int, r pix.Region, data []byte) error {
	if !b.writable {
		return pix.ErrReadOnly
	}
	if len(data) != r.Bytes(b.px.BytesPerPixel()) {
		return fmt.Errorf("region %s of %s needs %d bytes, got %d", r, b.px, r.Bytes(b.px.BytesPerPixel()), len(data))
	}
	return b.tileIO(z, c, t, r, func(buf []byte, off int64) error {
		_, err := b.f.WriteAt(buf, off)
		return err
	}, func(int) []byte {
		return data
	})
}

// tileIO validates a region access and applies op to each stretch of the
// region that is contiguous in the file.
func (b *FlatBuffer) tileIO(z, c, t int, r pix.Region, op func([]byte, int64) error, buffer func(int) []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.f == nil {
		return pix.ErrClosed
	}
	if err := b.px.CheckPlane(z, c, t); err != nil {
		return err
	}
	if err := r.Within(b.px.SizeX, b.px.SizeY); err != nil {
		return err
	}
	bpp := b.px.BytesPerPixel()
	buf := buffer(r.Bytes(bpp))
	planeOffset := b.px.PlaneOffset(z, c, t)
	rowBytes := r.Width * bpp

	var err error
	if r.Width == b.px.SizeX {
		err = op(buf, planeOffset+int64(r.Y*rowBytes))
	} else {
		for y := 0; y < r.Height && err == nil; y++ {
			off := planeOffset + int64(((r.Y+y)*b.px.SizeX+r.X)*bpp)
			err = op(buf[y*rowBytes:(y+1)*rowBytes], off)
		}
	}
	if err != nil {
		return pix.NewResourceError("access", b.path, err)
	}
	return nil
}

// Sync commits written data to stable storage.
func (b *FlatBuffer) Sync() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.f == nil {
		return pix.ErrClosed
	}
	if !b.writable {
		return nil
	}
	if err := b.f.Sync(); err != nil {
		return pix.NewResourceError("sync", b.path, err)
	}
	return nil
}

func (b *FlatBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	if err != nil {
		return pix.NewResourceError("close", b.path, err)
	}
	return nil
}
