package buffer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/janelia-flyem/pixstore/format"
	"github.com/janelia-flyem/pixstore/pix"
)

func testLibrary(t *testing.T) *format.Formats {
	t.Helper()
	f, err := format.New(format.PyramidConfig{TileWidth: 16, TileHeight: 16, CacheMB: -1}, format.ImageConfig{})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestPyramidBuffer(t *testing.T) {
	lib := testLibrary(t)
	px := &pix.Pixels{ID: 4, SizeX: 40, SizeY: 20, SizeZ: 1, SizeC: 1, SizeT: 2, Type: pix.Uint8}
	path := filepath.Join(t.TempDir(), "4_pyramid")
	r, err := lib.OpenPyramid(px, path)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewPyramid(path, px, r)
	if err != nil {
		t.Fatal(err)
	}
	if b.Kind() != Pyramid || !b.Writable() {
		t.Fatalf("expected writable pyramid buffer")
	}
	plane := bytes.Repeat([]byte{50}, 800)
	if err := b.WritePlane(0, 0, 1, plane); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.ReadPlane(0, 0, 1); !errors.Is(err, pix.ErrClosed) {
		t.Errorf("expected closed error, got %v", err)
	}

	r, err = lib.OpenPyramid(px, path)
	if err != nil {
		t.Fatal(err)
	}
	b, err = NewPyramid(path, px, r)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if b.Writable() {
		t.Errorf("reopened pyramid should be read-only")
	}
	if err := b.WritePlane(0, 0, 1, plane); !errors.Is(err, pix.ErrReadOnly) {
		t.Errorf("expected read-only error, got %v", err)
	}
	if b.ResolutionLevels() != 3 {
		t.Fatalf("expected 3 levels, got %d", b.ResolutionLevels())
	}
	if err := b.SetResolutionLevel(1); err != nil {
		t.Fatal(err)
	}
	w, h := b.LevelSize(1)
	tile, err := b.ReadTile(0, 0, 1, pix.FullPlane(w, h))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(tile, bytes.Repeat([]byte{50}, w*h)) {
		t.Errorf("bad level 1 tile")
	}
	if err := b.SetResolutionLevel(3); !errors.Is(err, pix.ErrOutOfBounds) {
		t.Errorf("expected bad level error, got %v", err)
	}
	got, err := b.ReadPlane(0, 0, 1)
	if err != nil || !bytes.Equal(got, plane) {
		t.Errorf("plane reads use full resolution: %v", err)
	}
}

func TestPyramidBufferShapeMismatch(t *testing.T) {
	lib := testLibrary(t)
	px := &pix.Pixels{SizeX: 10, SizeY: 10, SizeZ: 1, SizeC: 1, SizeT: 1, Type: pix.Uint8}
	r, err := lib.OpenPyramid(px, filepath.Join(t.TempDir(), "p"))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	other := *px
	other.Type = pix.Uint16
	if _, err := NewPyramid("p", &other, r); err == nil {
		t.Errorf("expected shape mismatch error")
	}
}

func TestDirectBuffer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.png")
	img := image.NewGray(image.Rect(0, 0, 6, 4))
	img.SetGray(5, 3, color.Gray{Y: 77})
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	lib := testLibrary(t)
	r, err := lib.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	px := &pix.Pixels{ID: 8, SizeX: 6, SizeY: 4, SizeZ: 1, SizeC: 1, SizeT: 1, Type: pix.Uint8}
	b, err := NewDirect(path, px, r)
	if err != nil {
		t.Fatal(err)
	}
	if b.Kind() != Direct || b.Writable() {
		t.Fatalf("expected read-only direct buffer")
	}
	plane, err := b.ReadPlane(0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if plane[23] != 77 {
		t.Errorf("expected 77 at (5,3), got %d", plane[23])
	}
	if err := b.WritePlane(0, 0, 0, plane); !errors.Is(err, pix.ErrReadOnly) {
		t.Errorf("expected read-only error, got %v", err)
	}
	b.Close()
	if _, err := b.ReadTile(0, 0, 0, pix.Region{Width: 1, Height: 1}); !errors.Is(err, pix.ErrClosed) {
		t.Errorf("expected closed error, got %v", err)
	}

	wrong := *px
	wrong.SizeZ = 2
	if _, err := NewDirect(path, &wrong, r); err == nil {
		t.Errorf("expected dimension mismatch error")
	}
}

func TestPassThroughBuffer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orig.dv")
	header := make([]byte, 1024)
	le := binary.LittleEndian
	le.PutUint32(header[0:], 4)
	le.PutUint32(header[4:], 2)
	le.PutUint32(header[8:], 1)
	le.PutUint32(header[12:], 1) // int16
	le.PutUint16(header[96:], 0xC0A0)
	le.PutUint16(header[180:], 1)
	le.PutUint16(header[196:], 1)
	data := make([]byte, 16)
	for i := 0; i < 8; i++ {
		le.PutUint16(data[i*2:], uint16(i*3))
	}
	if err := os.WriteFile(path, append(header, data...), 0644); err != nil {
		t.Fatal(err)
	}
	dv, err := format.OpenDeltaVision(path)
	if err != nil {
		t.Fatal(err)
	}
	px := &pix.Pixels{ID: 5, SizeX: 4, SizeY: 2, SizeZ: 1, SizeC: 1, SizeT: 1, Type: pix.Int16}
	b, err := NewPassThrough(path, px, dv, 99, "DV")
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if b.Kind() != PassThrough || b.OriginalFileID() != 99 || b.Format() != "DV" {
		t.Errorf("bad pass-through buffer identity")
	}
	plane, err := b.ReadPlane(0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := binary.BigEndian.Uint16(plane[14:]); got != 21 {
		t.Errorf("expected big-endian 21 at last pixel, got %d", got)
	}
	if err := b.WriteTile(0, 0, 0, pix.Region{Width: 1, Height: 1}, []byte{0, 0}); !errors.Is(err, pix.ErrReadOnly) {
		t.Errorf("expected read-only error, got %v", err)
	}
}

func TestKindString(t *testing.T) {
	for k, name := range map[Kind]string{Flat: "flat", Pyramid: "pyramid", Direct: "direct", PassThrough: "passthrough"} {
		if k.String() != name {
			t.Errorf("kind %d: got %q", k, k.String())
		}
	}
}
