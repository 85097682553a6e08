/*
Package format is the boundary to image file formats.  A Library opens
foreign image files for direct access and opens or creates tiled
multi-resolution pyramids.
*/
package format

import (
	"github.com/janelia-flyem/pixstore/pix"
)

// Reader gives read access to the planes of an image file in its native layout.
type Reader interface {
	// Pixels returns the dimensions and type found in the file.  The ID is zero.
	Pixels() pix.Pixels

	ReadPlane(z, c, t int) ([]byte, error)

	ReadRegion(z, c, t int, r pix.Region) ([]byte, error)

	Close() error
}

// PyramidReader is a Reader over a tiled pyramid whose level 0 is full
// resolution.  Plane and region calls on the embedded Reader address level 0.
type PyramidReader interface {
	Reader

	Levels() int

	// LevelSize returns the plane width and height at a level.
	LevelSize(level int) (width, height int)

	TileSize() (width, height int)

	ReadLevelRegion(level, z, c, t int, r pix.Region) ([]byte, error)

	// WriteRegion writes full-resolution data.  Lower levels are regenerated
	// on Flush or Close.
	WriteRegion(z, c, t int, r pix.Region, data []byte) error

	Flush() error

	Writable() bool
}

// Library opens image files and pyramids.
type Library interface {
	// Open returns a Reader for an existing image file of any supported format.
	Open(path string) (Reader, error)

	// OpenPyramid opens the existing pyramid at path read-only, or creates a
	// new writable pyramid for px when nothing exists there.
	OpenPyramid(px *pix.Pixels, path string) (PyramidReader, error)
}
