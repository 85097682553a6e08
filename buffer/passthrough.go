package buffer

import (
	"github.com/janelia-flyem/pixstore/format"
	"github.com/janelia-flyem/pixstore/pix"
)

// PassThroughBuffer reads pixels straight out of an original DeltaVision file
// that was never converted to flat storage.
type PassThroughBuffer struct {
	readerBuffer
	originalFileID int64
	formatName     string
}

// NewPassThrough wraps an open DeltaVision file belonging to original file id.
func NewPassThrough(path string, px *pix.Pixels, dv *format.DeltaVision, id int64, formatName string) (*PassThroughBuffer, error) {
	b := &PassThroughBuffer{originalFileID: id, formatName: formatName}
	if err := b.init(path, px, dv); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *PassThroughBuffer) Kind() Kind { return PassThrough }

func (b *PassThroughBuffer) OriginalFileID() int64 { return b.originalFileID }

// Format returns the format name recorded for the original file, e.g. "DV".
func (b *PassThroughBuffer) Format() string { return b.formatName }
