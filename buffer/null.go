package buffer

import (
	"io"

	"github.com/janelia-flyem/pixstore/pix"
)

// NullPlaneSize is the length of the sentinel written at the start of every
// plane of newly initialized flat storage.
const NullPlaneSize = 64

// NullPlane is the sentinel marking a plane that has never been written.
var NullPlane = func() []byte {
	b := make([]byte, NullPlaneSize)
	for i := 0; i < NullPlaneSize; i += 2 {
		b[i] = 0x80
		b[i+1] = 0x7F
	}
	return b
}()

// IsNullPlane returns true if data begins with the null-plane sentinel and is
// zero afterwards.
func IsNullPlane(data []byte) bool {
	n := min(len(data), NullPlaneSize)
	for i := 0; i < n; i++ {
		if data[i] != NullPlane[i] {
			return false
		}
	}
	for _, v := range data[n:] {
		if v != 0 {
			return false
		}
	}
	return true
}

// WriteNullPlanes writes the initial contents of flat storage for px: for
// each plane in T, C, Z order, the null-plane sentinel padded with zeros to
// the plane size.  Planes smaller than the sentinel receive its leading bytes.
func WriteNullPlanes(w io.Writer, px *pix.Pixels) error {
	planeSize := px.PlaneSize()
	plane := make([]byte, min(planeSize, int64(pix.Mega)))
	copy(plane, NullPlane)
	var zeros []byte
	if planeSize > int64(len(plane)) {
		zeros = make([]byte, len(plane))
	}
	for t := 0; t < px.SizeT; t++ {
		for c := 0; c < px.SizeC; c++ {
			for z := 0; z < px.SizeZ; z++ {
				if _, err := w.Write(plane); err != nil {
					return err
				}
				for remain := planeSize - int64(len(plane)); remain > 0; {
					n := min(remain, int64(len(zeros)))
					if _, err := w.Write(zeros[:n]); err != nil {
						return err
					}
					remain -= n
				}
			}
		}
	}
	return nil
}
