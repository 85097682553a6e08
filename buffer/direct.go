package buffer

import (
	"github.com/janelia-flyem/pixstore/format"
	"github.com/janelia-flyem/pixstore/pix"
)

// DirectBuffer reads an image file in its native layout through a format.Reader.
type DirectBuffer struct {
	readerBuffer
}

// NewDirect wraps r, which must hold pixels shaped like px.  On error the
// reader is left open for the caller to close.
func NewDirect(path string, px *pix.Pixels, r format.Reader) (*DirectBuffer, error) {
	b := new(DirectBuffer)
	if err := b.init(path, px, r); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *DirectBuffer) Kind() Kind { return Direct }
