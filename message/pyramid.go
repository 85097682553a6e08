package message

import (
	"sync/atomic"
	"time"

	"github.com/twinj/uuid"

	"github.com/janelia-flyem/pixstore/pix"
)

// TopicMissingPyramid is the topic of MissingPyramid events.
const TopicMissingPyramid = "pyramid.missing"

// MissingPyramid reports that a pixels set needs a pyramid that does not exist
// yet.  A subscriber that makes the pyramid available calls SetRetry so the
// publisher checks again.
type MissingPyramid struct {
	ID          string
	Time        time.Time
	Pixels      pix.Pixels
	PixelsPath  string // file the pyramid can be built from
	PyramidPath string

	// FlatStorage is false when PixelsPath is an image file given explicitly
	// rather than the pixels set's own flat storage.
	FlatStorage bool

	retry atomic.Bool
}

// NewMissingPyramid returns an event with a fresh ID and the retry flag clear.
// The source at pixelsPath is taken to be flat storage.
func NewMissingPyramid(px *pix.Pixels, pixelsPath, pyramidPath string) *MissingPyramid {
	return &MissingPyramid{
		ID:          uuid.NewV4().String(),
		Time:        time.Now(),
		Pixels:      *px,
		PixelsPath:  pixelsPath,
		PyramidPath: pyramidPath,
		FlatStorage: true,
	}
}

func (e *MissingPyramid) Topic() string { return TopicMissingPyramid }

// PixelsID returns the id of the pixels set missing a pyramid.
func (e *MissingPyramid) PixelsID() int64 { return e.Pixels.ID }

func (e *MissingPyramid) SetRetry() { e.retry.Store(true) }

func (e *MissingPyramid) Retry() bool { return e.retry.Load() }
