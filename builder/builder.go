/*
Package builder materializes pyramids for pixels sets whose planes are too
large for flat storage but which still only have legacy flat files or an
image file given by explicit path.
*/
package builder

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/twinj/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/janelia-flyem/pixstore/buffer"
	"github.com/janelia-flyem/pixstore/format"
	"github.com/janelia-flyem/pixstore/message"
	"github.com/janelia-flyem/pixstore/pix"
)

// Config is the [builder] configuration section.
type Config struct {
	Enabled bool

	// MaxConcurrent bounds simultaneous builds.  Zero means half the CPUs.
	MaxConcurrent int `toml:"max_concurrent"`
}

// Builder converts flat storage into pyramids.  It is a message.Subscriber
// for MissingPyramid events.
type Builder struct {
	formats format.Library
	sem     *semaphore.Weighted
	flight  singleflight.Group
}

// New returns a Builder writing pyramids through formats.
func New(c Config, formats format.Library) *Builder {
	n := c.MaxConcurrent
	if n <= 0 {
		n = runtime.NumCPU() / 2
		if n < 1 {
			n = 1
		}
	}
	return &Builder{
		formats: formats,
		sem:     semaphore.NewWeighted(int64(n)),
	}
}

// Subscribe registers the builder for missing-pyramid events on bus.
func (b *Builder) Subscribe(bus *message.Bus) {
	bus.Subscribe(message.TopicMissingPyramid, b)
}

// Handle builds the pyramid named in a MissingPyramid event and asks the
// publisher to check again.  Other events are ignored.
func (b *Builder) Handle(ctx context.Context, e message.Event) error {
	mp, ok := e.(*message.MissingPyramid)
	if !ok {
		return nil
	}
	build := b.Build
	if !mp.FlatStorage {
		build = b.BuildFromFile
	}
	if err := build(ctx, &mp.Pixels, mp.PixelsPath, mp.PyramidPath); err != nil {
		return err
	}
	mp.SetRetry()
	return nil
}

// Build writes the pyramid at pyramidPath from the flat storage at
// pixelsPath.  Concurrent builds of the same pyramid share one conversion.
// Nothing is done if the pyramid already exists.
func (b *Builder) Build(ctx context.Context, px *pix.Pixels, pixelsPath, pyramidPath string) error {
	return b.do(ctx, pyramidPath, func() error {
		src, err := buffer.OpenFlat(pixelsPath, px, false)
		if err != nil {
			return err
		}
		return b.build(src, pyramidPath)
	})
}

// BuildFromFile writes the pyramid at pyramidPath from an image file of any
// format the library reads.  The file must hold pixels shaped like px.
func (b *Builder) BuildFromFile(ctx context.Context, px *pix.Pixels, path, pyramidPath string) error {
	return b.do(ctx, pyramidPath, func() error {
		r, err := b.formats.Open(path)
		if err != nil {
			return pix.NewResourceError("open", path, err)
		}
		src, err := buffer.NewDirect(path, px, r)
		if err != nil {
			r.Close()
			return pix.NewResourceError("open", path, err)
		}
		return b.build(src, pyramidPath)
	})
}

func (b *Builder) do(ctx context.Context, pyramidPath string, fn func() error) error {
	ch := b.flight.DoChan(pyramidPath, func() (interface{}, error) {
		if pix.FileExists(pyramidPath) {
			return nil, nil
		}
		if err := b.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer b.sem.Release(1)
		return nil, fn()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

// build copies src into a temporary pyramid and renames it to pyramidPath.
// src is closed on return.
func (b *Builder) build(src buffer.PixelBuffer, pyramidPath string) (err error) {
	tlog := pix.NewTimeLog()
	defer src.Close()
	px := src.Pixels()

	tmpPath := fmt.Sprintf("%s.build-%s", pyramidPath, uuid.NewV4())
	p, err := b.formats.OpenPyramid(&px, tmpPath)
	if err != nil {
		return pix.NewResourceError("create pyramid", tmpPath, err)
	}
	defer func() {
		if err != nil {
			p.Close()
			os.RemoveAll(tmpPath)
		}
	}()
	if !p.Writable() {
		return fmt.Errorf("pyramid %s opened read-only", tmpPath)
	}

	var written int
	for t := 0; t < px.SizeT; t++ {
		for c := 0; c < px.SizeC; c++ {
			for z := 0; z < px.SizeZ; z++ {
				n, err := copyPlane(src, p, z, c, t)
				if err != nil {
					return err
				}
				written += n
			}
		}
	}
	if err = p.Close(); err != nil {
		return pix.NewResourceError("close pyramid", tmpPath, err)
	}
	if err = os.Rename(tmpPath, pyramidPath); err != nil {
		os.RemoveAll(tmpPath)
		return pix.NewResourceError("rename pyramid", pyramidPath, err)
	}
	tlog.Infof("Built pyramid %s from %s (%d bands written)", pyramidPath, src.Path(), written)
	return nil
}

// copyPlane copies a plane in bands one tile high.  Bands of zeros, and flat
// storage bands holding only the null-plane sentinel, are skipped since
// unwritten tiles read as zero.
func copyPlane(src buffer.PixelBuffer, p format.PyramidReader, z, c, t int) (int, error) {
	px := src.Pixels()
	flat := src.Kind() == buffer.Flat
	_, th := p.TileSize()
	var written int
	for y := 0; y < px.SizeY; y += th {
		band := pix.Region{X: 0, Y: y, Width: px.SizeX, Height: min(th, px.SizeY-y)}
		data, err := src.ReadTile(z, c, t, band)
		if err != nil {
			return written, err
		}
		if (flat && y == 0 && buffer.IsNullPlane(data)) || allZero(data) {
			continue
		}
		if err := p.WriteRegion(z, c, t, band, data); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func allZero(data []byte) bool {
	for _, v := range data {
		if v != 0 {
			return false
		}
	}
	return true
}
