/*
Package storage decides how the pixels of a pixels set are stored and
returns a buffer over that storage.  Small pixels sets live in flat binary
files; pixels sets with large planes live in tiled pyramids; pixels sets
never converted can be read from their original DeltaVision file.
*/
package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/pixstore/buffer"
	"github.com/janelia-flyem/pixstore/format"
	"github.com/janelia-flyem/pixstore/message"
	"github.com/janelia-flyem/pixstore/metadata"
	"github.com/janelia-flyem/pixstore/pix"
)

// ErrPublisherSet is returned when wiring a second publisher into a Service.
var ErrPublisherSet = errors.New("storage service publisher already set")

// Service resolves pixels sets to pixel buffers.  It keeps no per-pixels
// state and may be used concurrently.
type Service struct {
	config  Config
	paths   *Resolver
	formats format.Library

	mu        sync.Mutex
	publisher message.Publisher
}

// Option configures a Service.
type Option func(*Service) error

// WithPublisher sets the publisher used for missing-pyramid notifications.
func WithPublisher(p message.Publisher) Option {
	return func(s *Service) error {
		return s.SetPublisher(p)
	}
}

// NewService returns a Service storing pixels under c.Root.
func NewService(c Config, formats format.Library, opts ...Option) (*Service, error) {
	if formats == nil {
		return nil, fmt.Errorf("storage service needs a format library")
	}
	c.setDefaults()
	paths, err := NewResolver(c.Root, c.PyramidSuffix)
	if err != nil {
		return nil, err
	}
	c.Root = paths.Root()
	s := &Service{config: c, paths: paths, formats: formats}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	pix.Infof("Pixels storage service at %s, pyramids above %s pixels/plane\n",
		c.Root, humanize.Comma(c.PyramidThreshold))
	return s, nil
}

// SetPublisher wires the missing-pyramid publisher.  It may be set only once.
func (s *Service) SetPublisher(p message.Publisher) error {
	if p == nil {
		return fmt.Errorf("nil publisher")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publisher != nil {
		return ErrPublisherSet
	}
	s.publisher = p
	return nil
}

func (s *Service) getPublisher() message.Publisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publisher
}

func (s *Service) Config() Config { return s.config }

func (s *Service) Resolver() *Resolver { return s.paths }

// IsPyramidRequired returns true if planes of px are larger than the
// pyramid threshold.  Z, C and T do not matter.
func (s *Service) IsPyramidRequired(px *pix.Pixels) bool {
	return px.Area() > s.config.PyramidThreshold
}

// PixelBuffer resolves the buffer for px at its standard location.
func (s *Service) PixelBuffer(ctx context.Context, px *pix.Pixels, provider metadata.Provider, bypassOriginalFile bool) (buffer.PixelBuffer, error) {
	return s.ResolveBuffer(ctx, px, "", provider, bypassOriginalFile)
}

// ResolveBuffer returns a buffer over the storage of px, creating storage
// when none exists.  The first matching rule wins:
//
//  1. flat storage exists and a pyramid is required: wait for the pyramid
//     through the missing-pyramid protocol
//  2. a pyramid exists: pyramid buffer
//  3. path is given: direct buffer over that file
//  4. no flat storage: a DeltaVision original file, unless bypassed, else a
//     new pyramid if required, else new flat storage (writable)
//  5. read-only flat buffer
//
// An empty path selects the standard flat storage path for px.ID.
func (s *Service) ResolveBuffer(ctx context.Context, px *pix.Pixels, path string, provider metadata.Provider, bypassOriginalFile bool) (buffer.PixelBuffer, error) {
	if err := px.Validate(); err != nil {
		return nil, err
	}
	requirePyramid := s.IsPyramidRequired(px)
	pixelsPath := path
	if pixelsPath == "" {
		pixelsPath = s.paths.PixelsPath(px.ID)
	}
	pyramidPath := s.paths.PyramidPath(pixelsPath)

	if pix.FileExists(pixelsPath) && requirePyramid {
		for attempt := 0; !pix.FileExists(pyramidPath); attempt++ {
			if err := s.handleMissingPyramid(ctx, px, pixelsPath, pyramidPath, path == "", attempt); err != nil {
				return nil, err
			}
		}
	}

	if pix.FileExists(pyramidPath) {
		return s.openPyramid(px, pyramidPath)
	}

	if path != "" {
		return s.openDirect(px, path)
	}

	if !pix.FileExists(pixelsPath) {
		if !bypassOriginalFile {
			b, err := s.openOriginalFile(px, provider)
			if b != nil || err != nil {
				return b, err
			}
		}
		if requirePyramid {
			if err := s.paths.EnsureParent(pyramidPath); err != nil {
				return nil, err
			}
			pix.Infof("Creating pyramid for %s at %s\n", px, pyramidPath)
			return s.openPyramid(px, pyramidPath)
		}
		if err := s.paths.EnsureParent(pixelsPath); err != nil {
			return nil, err
		}
		if err := s.initPixelBuffer(px, pixelsPath); err != nil {
			return nil, err
		}
		return openFlat(pixelsPath, px, true)
	}

	return openFlat(pixelsPath, px, false)
}

func openFlat(path string, px *pix.Pixels, writable bool) (buffer.PixelBuffer, error) {
	b, err := buffer.OpenFlat(path, px, writable)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// handleMissingPyramid publishes one missing-pyramid notification and
// returns nil only if a subscriber asked for another check.
func (s *Service) handleMissingPyramid(ctx context.Context, px *pix.Pixels, pixelsPath, pyramidPath string, flatStorage bool, attempt int) error {
	missing := &pix.MissingPyramidError{PixelsID: px.ID, Path: pyramidPath}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("waiting for pyramid of pixels %d: %w", px.ID, err)
	}
	if limit := s.config.MaxPyramidRetries; limit > 0 && attempt >= limit {
		pix.Warningf("Giving up on pyramid for pixels %d after %d notifications\n", px.ID, attempt)
		return missing
	}
	pub := s.getPublisher()
	if pub == nil {
		return missing
	}
	event := message.NewMissingPyramid(px, pixelsPath, pyramidPath)
	event.FlatStorage = flatStorage
	pix.Debugf("Publishing missing pyramid %s for pixels %d (attempt %d)\n", event.ID, px.ID, attempt+1)
	if err := pub.Publish(ctx, event); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("waiting for pyramid of pixels %d: %w", px.ID, err)
		}
		return pix.NewResourceError("publish missing pyramid", pyramidPath, err)
	}
	if !event.Retry() {
		return missing
	}
	return nil
}

func (s *Service) openPyramid(px *pix.Pixels, pyramidPath string) (buffer.PixelBuffer, error) {
	r, err := s.formats.OpenPyramid(px, pyramidPath)
	if err != nil {
		return nil, pix.NewResourceError("open pyramid", pyramidPath, err)
	}
	b, err := buffer.NewPyramid(pyramidPath, px, r)
	if err != nil {
		r.Close()
		return nil, pix.NewResourceError("open pyramid", pyramidPath, err)
	}
	return b, nil
}

func (s *Service) openDirect(px *pix.Pixels, path string) (buffer.PixelBuffer, error) {
	r, err := s.formats.Open(path)
	if err != nil {
		return nil, pix.NewResourceError("open", path, err)
	}
	b, err := buffer.NewDirect(path, px, r)
	if err != nil {
		r.Close()
		return nil, pix.NewResourceError("open", path, err)
	}
	return b, nil
}

// openOriginalFile returns a pass-through buffer if px has a DeltaVision
// original file on disk, or nil.
func (s *Service) openOriginalFile(px *pix.Pixels, provider metadata.Provider) (buffer.PixelBuffer, error) {
	if provider == nil {
		return nil, nil
	}
	of, err := provider.OriginalFileWhereFormatStartsWith(px, format.DeltaVisionFormat)
	if err != nil {
		return nil, fmt.Errorf("original file lookup for pixels %d: %w", px.ID, err)
	}
	if of == nil {
		return nil, nil
	}
	path := s.paths.OriginalFilePath(of.ID)
	if !pix.FileExists(path) {
		pix.Debugf("Original file %d of pixels %d not found at %s\n", of.ID, px.ID, path)
		return nil, nil
	}
	dv, err := format.OpenDeltaVision(path)
	if err != nil {
		return nil, pix.NewResourceError("open original file", path, err)
	}
	b, err := buffer.NewPassThrough(path, px, dv, of.ID, of.Format)
	if err != nil {
		dv.Close()
		return nil, pix.NewResourceError("open original file", path, err)
	}
	return b, nil
}

// CreatePixelBuffer (re)initializes flat storage for px at its standard
// location and returns it writable.
func (s *Service) CreatePixelBuffer(px *pix.Pixels) (*buffer.FlatBuffer, error) {
	if err := px.Validate(); err != nil {
		return nil, err
	}
	path := s.paths.PixelsPath(px.ID)
	if err := s.paths.EnsureParent(path); err != nil {
		return nil, err
	}
	if err := s.initPixelBuffer(px, path); err != nil {
		return nil, err
	}
	return buffer.OpenFlat(path, px, true)
}

// writeNullPlanes fills new flat storage.  Tests replace it to fail partway.
var writeNullPlanes = buffer.WriteNullPlanes

// initPixelBuffer writes null planes for px into a temporary file next to
// path and renames it into place, so a partially written file is never
// visible at path.
func (s *Service) initPixelBuffer(px *pix.Pixels, path string) (err error) {
	tlog := pix.NewTimeLog()
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".init-*")
	if err != nil {
		return pix.NewResourceError("initialize", path, err)
	}
	tmpPath := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
			err = pix.NewResourceError("initialize", path, err)
		}
	}()

	w := bufio.NewWriterSize(f, pix.Mega)
	if err = writeNullPlanes(w, px); err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return err
	}
	tlog.Debugf("Initialized %s of flat storage for %s", humanize.Bytes(uint64(px.TotalSize())), px)
	return nil
}

// RemovePixels deletes the flat storage and pyramid of each id in order.
// Missing files are skipped.  The first failure stops the removal.
func (s *Service) RemovePixels(ids []int64) error {
	for _, id := range ids {
		pixelsPath := s.paths.PixelsPath(id)
		for _, path := range []string{pixelsPath, s.paths.PyramidPath(pixelsPath)} {
			if _, err := os.Lstat(path); err != nil {
				if pix.IsNotExist(err) {
					continue
				}
				return pix.NewResourceError(fmt.Sprintf("remove pixels %d", id), path, err)
			}
			if err := os.RemoveAll(path); err != nil {
				return pix.NewResourceError(fmt.Sprintf("remove pixels %d", id), path, err)
			}
			pix.Infof("Removed %s for pixels %d\n", path, id)
		}
	}
	return nil
}
