package format

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/janelia-flyem/pixstore/pix"
)

// DeltaVisionFormat is the format name prefix of DeltaVision original files.
const DeltaVisionFormat = "DV"

const (
	dvHeaderSize  = 1024
	dvMagic       = 0xC0A0
	dvMagicOffset = 96
)

// DeltaVision image sequences, i.e., the order of planes in the file.
const (
	SequenceZTW = 0
	SequenceWZT = 1
	SequenceZWT = 2
)

var dvPixelTypes = map[int32]pix.PixelType{
	0: pix.Uint8,
	1: pix.Int16,
	2: pix.Float32,
	6: pix.Uint16,
}

// dvHeader holds the header fields needed to address planes.
type dvHeader struct {
	order    binary.ByteOrder
	nx, ny   int32
	sections int32
	mode     int32
	extended int32
	numTimes int16
	sequence int16
	numWaves int16
}

// IsDeltaVision returns true if header starts a DeltaVision file.
func IsDeltaVision(header []byte) bool {
	_, ok := dvByteOrder(header)
	return ok
}

func dvByteOrder(header []byte) (binary.ByteOrder, bool) {
	if len(header) < dvMagicOffset+2 {
		return nil, false
	}
	switch {
	case binary.LittleEndian.Uint16(header[dvMagicOffset:]) == dvMagic:
		return binary.LittleEndian, true
	case binary.BigEndian.Uint16(header[dvMagicOffset:]) == dvMagic:
		return binary.BigEndian, true
	}
	return nil, false
}

func parseDVHeader(b []byte) (*dvHeader, error) {
	if len(b) < dvHeaderSize {
		return nil, fmt.Errorf("DeltaVision header needs %d bytes, got %d", dvHeaderSize, len(b))
	}
	order, ok := dvByteOrder(b)
	if !ok {
		return nil, fmt.Errorf("no DeltaVision magic number")
	}
	i32 := func(off int) int32 { return int32(order.Uint32(b[off:])) }
	i16 := func(off int) int16 { return int16(order.Uint16(b[off:])) }
	return &dvHeader{
		order:    order,
		nx:       i32(0),
		ny:       i32(4),
		sections: i32(8),
		mode:     i32(12),
		extended: i32(92),
		numTimes: i16(180),
		sequence: i16(182),
		numWaves: i16(196),
	}, nil
}

func (h *dvHeader) pixels() (pix.Pixels, error) {
	var px pix.Pixels
	t, found := dvPixelTypes[h.mode]
	if !found {
		return px, fmt.Errorf("unsupported DeltaVision pixel mode %d", h.mode)
	}
	waves, times := int32(h.numWaves), int32(h.numTimes)
	if waves <= 0 {
		waves = 1
	}
	if times <= 0 {
		times = 1
	}
	if h.sections <= 0 || h.sections%(waves*times) != 0 {
		return px, fmt.Errorf("%d DeltaVision sections not divisible by %d waves x %d timepoints",
			h.sections, waves, times)
	}
	if h.sequence < SequenceZTW || h.sequence > SequenceZWT {
		return px, fmt.Errorf("unknown DeltaVision image sequence %d", h.sequence)
	}
	px = pix.Pixels{
		SizeX: int(h.nx),
		SizeY: int(h.ny),
		SizeZ: int(h.sections / (waves * times)),
		SizeC: int(waves),
		SizeT: int(times),
		Type:  t,
	}
	return px, px.Validate()
}

// DeltaVision reads planes of a DeltaVision file in place.  Pixel data is
// returned big-endian regardless of the file's byte order.
type DeltaVision struct {
	path       string
	f          *os.File
	hdr        *dvHeader
	px         pix.Pixels
	dataOffset int64
	closed     atomic.Bool
}

// OpenDeltaVision opens a DeltaVision file and checks that its size matches the header.
func OpenDeltaVision(path string) (*DeltaVision, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, dvHeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading DeltaVision header of %s: %w", path, err)
	}
	hdr, err := parseDVHeader(buf)
	if err == nil && hdr.extended < 0 {
		err = fmt.Errorf("negative extended header size %d", hdr.extended)
	}
	var px pix.Pixels
	if err == nil {
		px, err = hdr.pixels()
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dv := &DeltaVision{
		path:       path,
		f:          f,
		hdr:        hdr,
		px:         px,
		dataOffset: dvHeaderSize + int64(hdr.extended),
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if need := dv.dataOffset + px.TotalSize(); fi.Size() < need {
		f.Close()
		return nil, fmt.Errorf("DeltaVision file %s has %d bytes, header requires %d", path, fi.Size(), need)
	}
	return dv, nil
}

func (dv *DeltaVision) String() string {
	return fmt.Sprintf("DeltaVision @ %s", dv.path)
}

func (dv *DeltaVision) Pixels() pix.Pixels { return dv.px }

// Sequence returns the plane order of the file.
func (dv *DeltaVision) Sequence() int { return int(dv.hdr.sequence) }

func (dv *DeltaVision) planeIndex(z, c, t int) int64 {
	Z, C, T := int64(dv.px.SizeZ), int64(dv.px.SizeC), int64(dv.px.SizeT)
	switch dv.hdr.sequence {
	case SequenceWZT:
		return int64(c) + C*(int64(z)+Z*int64(t))
	case SequenceZWT:
		return int64(z) + Z*(int64(c)+C*int64(t))
	default:
		return int64(z) + Z*(int64(t)+T*int64(c))
	}
}

func (dv *DeltaVision) ReadPlane(z, c, t int) ([]byte, error) {
	return dv.ReadRegion(z, c, t, pix.FullPlane(dv.px.SizeX, dv.px.SizeY))
}

func (dv *DeltaVision) ReadRegion(z, c, t int, r pix.Region) ([]byte, error) {
	if dv.closed.Load() {
		return nil, pix.ErrClosed
	}
	if err := dv.px.CheckPlane(z, c, t); err != nil {
		return nil, err
	}
	if err := r.Within(dv.px.SizeX, dv.px.SizeY); err != nil {
		return nil, err
	}
	bpp := dv.px.BytesPerPixel()
	out := make([]byte, r.Bytes(bpp))
	rowBytes := r.Width * bpp
	planeStart := dv.dataOffset + dv.planeIndex(z, c, t)*dv.px.PlaneSize()
	if r.Width == dv.px.SizeX {
		off := planeStart + int64(r.Y*dv.px.SizeX*bpp)
		if _, err := dv.f.ReadAt(out, off); err != nil {
			return nil, err
		}
	} else {
		for y := 0; y < r.Height; y++ {
			off := planeStart + int64(((r.Y+y)*dv.px.SizeX+r.X)*bpp)
			if _, err := dv.f.ReadAt(out[y*rowBytes:(y+1)*rowBytes], off); err != nil {
				return nil, err
			}
		}
	}
	if dv.hdr.order == binary.LittleEndian {
		swapBytes(out, bpp)
	}
	return out, nil
}

func (dv *DeltaVision) Close() error {
	if dv.closed.Swap(true) {
		return nil
	}
	return dv.f.Close()
}

// swapBytes reverses the byte order of each bpp-sized value in place.
func swapBytes(data []byte, bpp int) {
	if bpp < 2 {
		return
	}
	for i := 0; i+bpp <= len(data); i += bpp {
		for a, b := i, i+bpp-1; a < b; a, b = a+1, b-1 {
			data[a], data[b] = data[b], data[a]
		}
	}
}
