package format

import (
	"fmt"
	"io"
	"os"

	"github.com/coocood/freecache"

	"github.com/janelia-flyem/pixstore/format/pyramid"
	"github.com/janelia-flyem/pixstore/pix"
)

const (
	DefaultTileCacheMB   = 256
	DefaultDecodedImages = 16
)

// PyramidConfig is the [pyramid] configuration section.
type PyramidConfig struct {
	TileWidth   int    `toml:"tile_width"`
	TileHeight  int    `toml:"tile_height"`
	Compression string // none, snappy, lz4, zstd or gzip
	CacheMB     int    `toml:"cache_mb"`
}

// ImageConfig is the [images] configuration section.
type ImageConfig struct {
	// DecodedImages is the number of decoded image files kept in memory.
	DecodedImages int `toml:"decoded_images"`
}

// Formats is the default Library.
type Formats struct {
	pyramidOpts pyramid.Options
	images      *imageCache
}

// New returns a Library using the given configuration.  Zero values select defaults;
// a negative CacheMB or DecodedImages disables the respective cache.
func New(pc PyramidConfig, ic ImageConfig) (*Formats, error) {
	compression, err := pix.ParseCompression(pc.Compression)
	if err != nil {
		return nil, err
	}
	opts := pyramid.Options{
		TileWidth:   pc.TileWidth,
		TileHeight:  pc.TileHeight,
		Compression: compression,
	}
	cacheMB := pc.CacheMB
	if cacheMB == 0 {
		cacheMB = DefaultTileCacheMB
	}
	if cacheMB > 0 {
		opts.Cache = freecache.NewCache(cacheMB * pix.Mega)
		pix.Infof("Created freecache of ~ %d MB for pyramid tiles.\n", cacheMB)
	}
	numImages := ic.DecodedImages
	if numImages == 0 {
		numImages = DefaultDecodedImages
	}
	return &Formats{
		pyramidOpts: opts,
		images:      newImageCache(numImages),
	}, nil
}

// Open returns a DeltaVision reader for DeltaVision files and a decoded-image
// reader for anything the image package can decode.
func (f *Formats) Open(path string) (Reader, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	header := make([]byte, dvHeaderSize)
	n, err := io.ReadFull(fh, header)
	fh.Close()
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	if IsDeltaVision(header[:n]) {
		return OpenDeltaVision(path)
	}
	r, err := f.images.open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to decode %s: %w", path, err)
	}
	return r, nil
}

// OpenPyramid opens the pyramid at path read-only if it exists, else creates
// a writable one shaped by px.
func (f *Formats) OpenPyramid(px *pix.Pixels, path string) (PyramidReader, error) {
	if !pix.FileExists(path) {
		return pyramid.Create(path, px, f.pyramidOpts)
	}
	p, err := pyramid.Open(path, f.pyramidOpts)
	if err != nil {
		return nil, err
	}
	if stored := p.Pixels(); px != nil && !stored.SameShape(px) {
		p.Close()
		return nil, fmt.Errorf("pyramid %s holds %s, expected %s", path, stored, px)
	}
	return p, nil
}
