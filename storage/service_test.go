package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/janelia-flyem/pixstore/buffer"
	"github.com/janelia-flyem/pixstore/format"
	"github.com/janelia-flyem/pixstore/message"
	"github.com/janelia-flyem/pixstore/metadata"
	"github.com/janelia-flyem/pixstore/pix"
)

func testService(t *testing.T, c Config, opts ...Option) *Service {
	t.Helper()
	if c.Root == "" {
		c.Root = t.TempDir()
	}
	lib, err := format.New(format.PyramidConfig{TileWidth: 16, TileHeight: 16, CacheMB: -1}, format.ImageConfig{})
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewService(c, lib, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// countingPublisher counts publishes and optionally runs a handler.
type countingPublisher struct {
	n      int
	handle func(e *message.MissingPyramid) error
}

func (p *countingPublisher) Publish(ctx context.Context, e message.Event) error {
	p.n++
	if p.handle != nil {
		return p.handle(e.(*message.MissingPyramid))
	}
	return nil
}

// writeDV writes a little-endian uint16 DeltaVision file with one wave.
func writeDV(t *testing.T, path string, sizeX, sizeY, sizeZ int) {
	t.Helper()
	header := make([]byte, 1024)
	le := binary.LittleEndian
	le.PutUint32(header[0:], uint32(sizeX))
	le.PutUint32(header[4:], uint32(sizeY))
	le.PutUint32(header[8:], uint32(sizeZ))
	le.PutUint32(header[12:], 6)
	le.PutUint16(header[96:], 0xC0A0)
	le.PutUint16(header[180:], 1)
	le.PutUint16(header[196:], 1)
	var buf bytes.Buffer
	buf.Write(header)
	for z := 0; z < sizeZ; z++ {
		for i := 0; i < sizeX*sizeY; i++ {
			var v [2]byte
			le.PutUint16(v[:], uint16(100*z+i))
			buf.Write(v[:])
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestIsPyramidRequired(t *testing.T) {
	s := testService(t, Config{})
	tests := []struct {
		x, y int
		want bool
	}{
		{1024, 1024, false},
		{1025, 1024, true},
		{1, 1048576, false},
		{2, 1048576, true},
		{512, 512, false},
	}
	for _, tc := range tests {
		px := &pix.Pixels{ID: 1, SizeX: tc.x, SizeY: tc.y, SizeZ: 50, SizeC: 4, SizeT: 10, Type: pix.Uint8}
		if got := s.IsPyramidRequired(px); got != tc.want {
			t.Errorf("%d x %d: expected %t, got %t", tc.x, tc.y, tc.want, got)
		}
	}
}

func TestNewServiceDefaults(t *testing.T) {
	s := testService(t, Config{MaxPyramidRetries: -3})
	c := s.Config()
	if c.PyramidSuffix != DefaultPyramidSuffix || c.PyramidThreshold != DefaultPyramidThreshold || c.MaxPyramidRetries != 0 {
		t.Errorf("bad defaults: %+v", c)
	}
	if _, err := NewService(Config{Root: t.TempDir()}, nil); err == nil {
		t.Errorf("expected error without format library")
	}
	if _, err := NewService(Config{}, &format.Formats{}); err == nil {
		t.Errorf("expected error without root")
	}
}

func TestCreateFlatStorage(t *testing.T) {
	s := testService(t, Config{})
	px := &pix.Pixels{ID: 1234567, SizeX: 10, SizeY: 10, SizeZ: 2, SizeC: 1, SizeT: 3, Type: pix.Uint8}
	b, err := s.ResolveBuffer(context.Background(), px, "", nil, false)
	if err != nil {
		t.Fatal(err)
	}
	flat, ok := b.(*buffer.FlatBuffer)
	if !ok {
		t.Fatalf("expected flat buffer, got %s", b.Kind())
	}
	if !flat.Writable() {
		t.Errorf("new flat storage should be writable")
	}
	wantPath := filepath.Join(s.Resolver().Root(), "Pixels", "Dir-001", "Dir-234", "1234567")
	if flat.Path() != wantPath {
		t.Errorf("expected %s, got %s", wantPath, flat.Path())
	}
	fi, err := os.Stat(wantPath)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() != 600 {
		t.Errorf("expected 600 byte file, got %d", fi.Size())
	}
	offset, err := flat.PlaneOffset(1, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if offset != 500 {
		t.Errorf("expected plane offset 500, got %d", offset)
	}
	plane, err := flat.ReadPlane(0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !buffer.IsNullPlane(plane) {
		t.Errorf("new plane should start with the null plane pattern")
	}
	if err := flat.WritePlane(1, 0, 2, bytes.Repeat([]byte{9}, 100)); err != nil {
		t.Fatal(err)
	}
	if err := flat.Close(); err != nil {
		t.Fatal(err)
	}
	matches, _ := filepath.Glob(wantPath + ".init-*")
	if len(matches) != 0 {
		t.Errorf("temporary files left behind: %v", matches)
	}

	// Second resolution finds existing flat storage.
	b, err = s.PixelBuffer(context.Background(), px, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if b.Kind() != buffer.Flat || b.Writable() {
		t.Errorf("expected read-only flat buffer, got %s writable %t", b.Kind(), b.Writable())
	}
	plane, err = b.ReadPlane(1, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(plane, bytes.Repeat([]byte{9}, 100)) {
		t.Errorf("written plane not persisted")
	}
}

func TestCreatePixelBufferReinitializes(t *testing.T) {
	s := testService(t, Config{})
	px := &pix.Pixels{ID: 8, SizeX: 8, SizeY: 8, SizeZ: 1, SizeC: 1, SizeT: 1, Type: pix.Uint16}
	b, err := s.CreatePixelBuffer(px)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.WritePlane(0, 0, 0, bytes.Repeat([]byte{1}, 128)); err != nil {
		t.Fatal(err)
	}
	b.Close()

	b, err = s.CreatePixelBuffer(px)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	plane, err := b.ReadPlane(0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !buffer.IsNullPlane(plane) {
		t.Errorf("expected reinitialized plane")
	}
}

func TestNewPyramidWhenRequired(t *testing.T) {
	s := testService(t, Config{PyramidThreshold: 100})
	px := &pix.Pixels{ID: 42, SizeX: 20, SizeY: 10, SizeZ: 1, SizeC: 1, SizeT: 1, Type: pix.Uint8}
	b, err := s.ResolveBuffer(context.Background(), px, "", nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if b.Kind() != buffer.Pyramid || !b.Writable() {
		t.Fatalf("expected writable pyramid, got %s", b.Kind())
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if pix.FileExists(s.Resolver().PixelsPath(42)) {
		t.Errorf("no flat storage should be created for a pyramid pixels set")
	}

	b, err = s.ResolveBuffer(context.Background(), px, "", nil, true)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if b.Kind() != buffer.Pyramid || b.Writable() {
		t.Errorf("existing pyramid should open read-only")
	}
}

func TestExistingPyramidWins(t *testing.T) {
	s := testService(t, Config{})
	px := &pix.Pixels{ID: 3, SizeX: 20, SizeY: 10, SizeZ: 1, SizeC: 1, SizeT: 1, Type: pix.Uint8}
	flat, err := s.CreatePixelBuffer(px)
	if err != nil {
		t.Fatal(err)
	}
	flat.Close()

	lib := s.formats
	r, err := lib.OpenPyramid(px, s.Resolver().PyramidPath(s.Resolver().PixelsPath(3)))
	if err != nil {
		t.Fatal(err)
	}
	r.Close()

	// Pyramid not required, yet the existing pyramid is preferred over flat storage.
	b, err := s.ResolveBuffer(context.Background(), px, "", nil, false)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if b.Kind() != buffer.Pyramid {
		t.Errorf("expected pyramid buffer, got %s", b.Kind())
	}
}

func TestMissingPyramidWithoutPublisher(t *testing.T) {
	s := testService(t, Config{PyramidThreshold: 100})
	px := &pix.Pixels{ID: 5, SizeX: 20, SizeY: 10, SizeZ: 1, SizeC: 1, SizeT: 1, Type: pix.Uint8}
	flat, err := s.CreatePixelBuffer(px)
	if err != nil {
		t.Fatal(err)
	}
	flat.Close()

	_, err = s.ResolveBuffer(context.Background(), px, "", nil, false)
	var missing *pix.MissingPyramidError
	if !errors.As(err, &missing) {
		t.Fatalf("expected missing pyramid error, got %v", err)
	}
	if missing.PixelsID != 5 {
		t.Errorf("bad pixels id %d in error", missing.PixelsID)
	}
}

func TestMissingPyramidNoRetry(t *testing.T) {
	pub := &countingPublisher{}
	s := testService(t, Config{PyramidThreshold: 100}, WithPublisher(pub))
	px := &pix.Pixels{ID: 6, SizeX: 20, SizeY: 10, SizeZ: 1, SizeC: 1, SizeT: 1, Type: pix.Uint8}
	flat, err := s.CreatePixelBuffer(px)
	if err != nil {
		t.Fatal(err)
	}
	flat.Close()

	_, err = s.ResolveBuffer(context.Background(), px, "", nil, false)
	var missing *pix.MissingPyramidError
	if !errors.As(err, &missing) {
		t.Fatalf("expected missing pyramid error, got %v", err)
	}
	if pub.n != 1 {
		t.Errorf("expected exactly one publish, got %d", pub.n)
	}
}

func TestMissingPyramidBuiltBySubscriber(t *testing.T) {
	bus := message.NewBus()
	s := testService(t, Config{PyramidThreshold: 100}, WithPublisher(bus))
	px := &pix.Pixels{ID: 7, SizeX: 20, SizeY: 10, SizeZ: 1, SizeC: 1, SizeT: 1, Type: pix.Uint8}
	flat, err := s.CreatePixelBuffer(px)
	if err != nil {
		t.Fatal(err)
	}
	flat.Close()

	var calls int
	bus.Subscribe(message.TopicMissingPyramid, message.SubscriberFunc(func(ctx context.Context, e message.Event) error {
		calls++
		mp := e.(*message.MissingPyramid)
		if mp.PixelsID() != 7 || mp.PixelsPath != s.Resolver().PixelsPath(7) {
			t.Errorf("bad event %+v", mp)
		}
		if calls == 1 {
			mp.SetRetry() // not built yet, ask again
			return nil
		}
		r, err := s.formats.OpenPyramid(&mp.Pixels, mp.PyramidPath)
		if err != nil {
			return err
		}
		if err := r.Close(); err != nil {
			return err
		}
		mp.SetRetry()
		return nil
	}))

	b, err := s.ResolveBuffer(context.Background(), px, "", nil, false)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if b.Kind() != buffer.Pyramid {
		t.Errorf("expected pyramid buffer, got %s", b.Kind())
	}
	if calls != 2 {
		t.Errorf("expected two publish rounds, got %d", calls)
	}
}

func TestMissingPyramidPublishError(t *testing.T) {
	pub := &countingPublisher{handle: func(e *message.MissingPyramid) error {
		return errors.New("broker down")
	}}
	s := testService(t, Config{PyramidThreshold: 100}, WithPublisher(pub))
	px := &pix.Pixels{ID: 9, SizeX: 20, SizeY: 10, SizeZ: 1, SizeC: 1, SizeT: 1, Type: pix.Uint8}
	flat, err := s.CreatePixelBuffer(px)
	if err != nil {
		t.Fatal(err)
	}
	flat.Close()

	_, err = s.ResolveBuffer(context.Background(), px, "", nil, false)
	var rerr *pix.ResourceError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected resource error, got %v", err)
	}
}

func TestMissingPyramidBounded(t *testing.T) {
	pub := &countingPublisher{handle: func(e *message.MissingPyramid) error {
		e.SetRetry()
		return nil
	}}
	s := testService(t, Config{PyramidThreshold: 100, MaxPyramidRetries: 3}, WithPublisher(pub))
	px := &pix.Pixels{ID: 10, SizeX: 20, SizeY: 10, SizeZ: 1, SizeC: 1, SizeT: 1, Type: pix.Uint8}
	flat, err := s.CreatePixelBuffer(px)
	if err != nil {
		t.Fatal(err)
	}
	flat.Close()

	_, err = s.ResolveBuffer(context.Background(), px, "", nil, false)
	var missing *pix.MissingPyramidError
	if !errors.As(err, &missing) {
		t.Fatalf("expected missing pyramid error, got %v", err)
	}
	if pub.n != 3 {
		t.Errorf("expected 3 publishes, got %d", pub.n)
	}
}

func TestMissingPyramidCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pub := &countingPublisher{}
	pub.handle = func(e *message.MissingPyramid) error {
		if pub.n == 2 {
			cancel()
		}
		e.SetRetry()
		return nil
	}
	s := testService(t, Config{PyramidThreshold: 100}, WithPublisher(pub))
	px := &pix.Pixels{ID: 11, SizeX: 20, SizeY: 10, SizeZ: 1, SizeC: 1, SizeT: 1, Type: pix.Uint8}
	flat, err := s.CreatePixelBuffer(px)
	if err != nil {
		t.Fatal(err)
	}
	flat.Close()

	_, err = s.ResolveBuffer(ctx, px, "", nil, false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if pub.n != 2 {
		t.Errorf("expected 2 publishes before cancel, got %d", pub.n)
	}
}

func TestSetPublisherOnce(t *testing.T) {
	s := testService(t, Config{}, WithPublisher(message.NewBus()))
	if err := s.SetPublisher(message.NewBus()); !errors.Is(err, ErrPublisherSet) {
		t.Errorf("expected ErrPublisherSet, got %v", err)
	}
	if err := s.SetPublisher(nil); err == nil {
		t.Errorf("expected error on nil publisher")
	}
}

func TestPassThroughOriginalFile(t *testing.T) {
	s := testService(t, Config{})
	px := &pix.Pixels{ID: 20, SizeX: 6, SizeY: 4, SizeZ: 3, SizeC: 1, SizeT: 1, Type: pix.Uint16}
	manifest, err := metadata.NewManifest(metadata.Entry{
		Pixels: *px,
		OriginalFiles: []metadata.OriginalFile{
			{ID: 300, Name: "a.log", Format: "Text"},
			{ID: 301, Name: "a.dv", Format: "DV"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Original file registered but absent on disk: fall through to flat storage.
	b, err := s.ResolveBuffer(context.Background(), px, "", manifest, false)
	if err != nil {
		t.Fatal(err)
	}
	if b.Kind() != buffer.Flat {
		t.Errorf("expected flat buffer without original file, got %s", b.Kind())
	}
	b.Close()
	if err := s.RemovePixels([]int64{20}); err != nil {
		t.Fatal(err)
	}

	writeDV(t, s.Resolver().OriginalFilePath(301), 6, 4, 3)
	b, err = s.ResolveBuffer(context.Background(), px, "", manifest, false)
	if err != nil {
		t.Fatal(err)
	}
	pt, ok := b.(*buffer.PassThroughBuffer)
	if !ok {
		t.Fatalf("expected pass-through buffer, got %s", b.Kind())
	}
	if pt.OriginalFileID() != 301 || pt.Format() != "DV" {
		t.Errorf("bad original file %d %s", pt.OriginalFileID(), pt.Format())
	}
	plane, err := pt.ReadPlane(2, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := pix.ByteOrder.Uint16(plane[2:]); got != 201 {
		t.Errorf("expected pixel value 201, got %d", got)
	}
	pt.Close()
	if pix.FileExists(s.Resolver().PixelsPath(20)) {
		t.Errorf("pass-through should not create flat storage")
	}

	// Bypassing the original file creates flat storage.
	b, err = s.ResolveBuffer(context.Background(), px, "", manifest, true)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if b.Kind() != buffer.Flat || !b.Writable() {
		t.Errorf("expected new flat buffer with bypass, got %s", b.Kind())
	}
}

func TestDirectPath(t *testing.T) {
	s := testService(t, Config{})
	px := &pix.Pixels{ID: 21, SizeX: 6, SizeY: 4, SizeZ: 2, SizeC: 1, SizeT: 1, Type: pix.Uint16}
	path := filepath.Join(t.TempDir(), "import.dv")
	writeDV(t, path, 6, 4, 2)
	b, err := s.ResolveBuffer(context.Background(), px, path, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if b.Kind() != buffer.Direct || b.Path() != path {
		t.Errorf("expected direct buffer on %s, got %s on %s", path, b.Kind(), b.Path())
	}

	wrong := &pix.Pixels{ID: 22, SizeX: 7, SizeY: 4, SizeZ: 2, SizeC: 1, SizeT: 1, Type: pix.Uint16}
	if _, err := s.ResolveBuffer(context.Background(), wrong, path, nil, false); err == nil {
		t.Errorf("expected error on dimension mismatch")
	}
}

func TestRemovePixels(t *testing.T) {
	s := testService(t, Config{})
	px := &pix.Pixels{ID: 30, SizeX: 20, SizeY: 10, SizeZ: 1, SizeC: 1, SizeT: 1, Type: pix.Uint8}
	flat, err := s.CreatePixelBuffer(px)
	if err != nil {
		t.Fatal(err)
	}
	flat.Close()
	pyramidPath := s.Resolver().PyramidPath(s.Resolver().PixelsPath(30))
	r, err := s.formats.OpenPyramid(px, pyramidPath)
	if err != nil {
		t.Fatal(err)
	}
	r.Close()

	if err := s.RemovePixels([]int64{30, 31}); err != nil {
		t.Fatal(err)
	}
	if pix.FileExists(s.Resolver().PixelsPath(30)) || pix.FileExists(pyramidPath) {
		t.Errorf("pixels 30 storage not removed")
	}
	if err := s.RemovePixels(nil); err != nil {
		t.Errorf("empty removal failed: %v", err)
	}
}

func TestConcurrentPyramidReaders(t *testing.T) {
	s := testService(t, Config{PyramidThreshold: 100})
	px := &pix.Pixels{ID: 9, SizeX: 20, SizeY: 10, SizeZ: 1, SizeC: 1, SizeT: 1, Type: pix.Uint8}
	plane := make([]byte, px.PlaneSize())
	for i := range plane {
		plane[i] = byte(i)
	}
	b, err := s.PixelBuffer(context.Background(), px, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.WritePlane(0, 0, 0, plane); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	held, err := s.PixelBuffer(context.Background(), px, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	defer held.Close()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := s.PixelBuffer(context.Background(), px, nil, false)
			if err != nil {
				errs[i] = err
				return
			}
			defer b.Close()
			if b.Kind() != buffer.Pyramid {
				errs[i] = fmt.Errorf("got %s buffer", b.Kind())
				return
			}
			data, err := b.ReadPlane(0, 0, 0)
			if err != nil {
				errs[i] = err
			} else if !bytes.Equal(data, plane) {
				errs[i] = fmt.Errorf("plane differs")
			}
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("reader %d: %v", i, err)
		}
	}
	data, err := held.ReadPlane(0, 0, 0)
	if err != nil || !bytes.Equal(data, plane) {
		t.Errorf("held pyramid read failed: %v", err)
	}
}

// failingWriter accepts n bytes then fails.
type failingWriter struct {
	w io.Writer
	n int
}

var errDiskFull = errors.New("disk full")

func (fw *failingWriter) Write(p []byte) (int, error) {
	if len(p) > fw.n {
		n, _ := fw.w.Write(p[:fw.n])
		fw.n = 0
		return n, errDiskFull
	}
	fw.n -= len(p)
	return fw.w.Write(p)
}

func failNullPlanesAfter(t *testing.T, n int) {
	t.Helper()
	orig := writeNullPlanes
	writeNullPlanes = func(w io.Writer, px *pix.Pixels) error {
		return buffer.WriteNullPlanes(&failingWriter{w: w, n: n}, px)
	}
	t.Cleanup(func() { writeNullPlanes = orig })
}

func TestInitializationFailureLeavesNoFile(t *testing.T) {
	s := testService(t, Config{})
	px := &pix.Pixels{ID: 40, SizeX: 20, SizeY: 10, SizeZ: 3, SizeC: 1, SizeT: 1, Type: pix.Uint8}
	path := s.Resolver().PixelsPath(px.ID)
	failNullPlanesAfter(t, 250)

	_, err := s.PixelBuffer(context.Background(), px, nil, false)
	var rerr *pix.ResourceError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected resource error, got %v", err)
	}
	if !errors.Is(err, errDiskFull) {
		t.Errorf("cause not preserved: %v", err)
	}
	if pix.FileExists(path) {
		t.Errorf("partial flat storage visible at %s", path)
	}
	matches, _ := filepath.Glob(path + ".init-*")
	if len(matches) != 0 {
		t.Errorf("temporary files left behind: %v", matches)
	}
}

func TestReinitializationFailureKeepsOldFile(t *testing.T) {
	s := testService(t, Config{})
	px := &pix.Pixels{ID: 41, SizeX: 20, SizeY: 10, SizeZ: 2, SizeC: 1, SizeT: 1, Type: pix.Uint8}
	flat, err := s.CreatePixelBuffer(px)
	if err != nil {
		t.Fatal(err)
	}
	plane := bytes.Repeat([]byte{7}, int(px.PlaneSize()))
	if err := flat.WritePlane(1, 0, 0, plane); err != nil {
		t.Fatal(err)
	}
	flat.Close()

	failNullPlanesAfter(t, 100)
	var rerr *pix.ResourceError
	if _, err := s.CreatePixelBuffer(px); !errors.As(err, &rerr) {
		t.Fatalf("expected resource error, got %v", err)
	}
	b, err := buffer.OpenFlat(s.Resolver().PixelsPath(px.ID), px, false)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	data, err := b.ReadPlane(1, 0, 0)
	if err != nil || !bytes.Equal(data, plane) {
		t.Errorf("existing flat storage changed by failed initialization: %v", err)
	}
}

func TestRemovePixelsStopsAtFailure(t *testing.T) {
	s := testService(t, Config{})
	px := &pix.Pixels{ID: 30, SizeX: 20, SizeY: 10, SizeZ: 1, SizeC: 1, SizeT: 1, Type: pix.Uint8}
	flat, err := s.CreatePixelBuffer(px)
	if err != nil {
		t.Fatal(err)
	}
	flat.Close()

	// A file where pixels 1234567 needs a directory makes its path unreadable.
	blocked := s.Resolver().PixelsPath(1234567)
	dir := filepath.Dir(filepath.Dir(blocked))
	if err := os.WriteFile(dir, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	err = s.RemovePixels([]int64{1234567, 30})
	var rerr *pix.ResourceError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected resource error, got %v", err)
	}
	if rerr.Path != blocked {
		t.Errorf("expected failure on %s, got %s", blocked, rerr.Path)
	}
	if !pix.FileExists(s.Resolver().PixelsPath(30)) {
		t.Errorf("pixels 30 removed after an earlier failure")
	}
}

func TestDirectPathMalformed(t *testing.T) {
	s := testService(t, Config{})
	px := &pix.Pixels{ID: 23, SizeX: 6, SizeY: 4, SizeZ: 1, SizeC: 1, SizeT: 1, Type: pix.Uint8}
	path := filepath.Join(t.TempDir(), "broken.png")
	if err := os.WriteFile(path, bytes.Repeat([]byte("garbage "), 200), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := s.ResolveBuffer(context.Background(), px, path, nil, false)
	var rerr *pix.ResourceError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected resource error, got %v", err)
	}
	if !errors.Is(err, image.ErrFormat) {
		t.Errorf("decode cause not preserved: %v", err)
	}
}
