package pix

import "fmt"

// Pixels describes a 5-dimensional pixel set: planes of SizeX x SizeY values
// indexed by Z-section, channel and timepoint.
type Pixels struct {
	ID    int64     `json:"id"`
	SizeX int       `json:"size_x"`
	SizeY int       `json:"size_y"`
	SizeZ int       `json:"size_z"`
	SizeC int       `json:"size_c"`
	SizeT int       `json:"size_t"`
	Type  PixelType `json:"type"`
}

func (px Pixels) String() string {
	return fmt.Sprintf("pixels %d [%d x %d x %d x %d x %d %s]", px.ID,
		px.SizeX, px.SizeY, px.SizeZ, px.SizeC, px.SizeT, px.Type)
}

// Validate checks that all dimensions are positive and the type is known.
func (px *Pixels) Validate() error {
	if px == nil {
		return fmt.Errorf("nil pixels descriptor")
	}
	if px.SizeX <= 0 || px.SizeY <= 0 || px.SizeZ <= 0 || px.SizeC <= 0 || px.SizeT <= 0 {
		return fmt.Errorf("%s has non-positive dimension", px)
	}
	if !px.Type.Valid() {
		return fmt.Errorf("pixels %d has %s", px.ID, px.Type)
	}
	return nil
}

// SameShape returns true if both descriptors have equal dimensions and pixel type.
func (px *Pixels) SameShape(other *Pixels) bool {
	return px.SizeX == other.SizeX && px.SizeY == other.SizeY && px.SizeZ == other.SizeZ &&
		px.SizeC == other.SizeC && px.SizeT == other.SizeT && px.Type == other.Type
}

func (px *Pixels) BytesPerPixel() int {
	return px.Type.BytesPerPixel()
}

// Area is the number of pixels in one plane.
func (px *Pixels) Area() int64 {
	return int64(px.SizeX) * int64(px.SizeY)
}

// PlaneSize is the number of bytes in one plane.
func (px *Pixels) PlaneSize() int64 {
	return px.Area() * int64(px.BytesPerPixel())
}

// PlaneCount is the number of planes, Z * C * T.
func (px *Pixels) PlaneCount() int64 {
	return int64(px.SizeZ) * int64(px.SizeC) * int64(px.SizeT)
}

// TotalSize is the byte length of a flat file holding every plane.
func (px *Pixels) TotalSize() int64 {
	return px.PlaneSize() * px.PlaneCount()
}

// CheckPlane returns an ErrOutOfBounds error if (z, c, t) is not a plane of px.
func (px *Pixels) CheckPlane(z, c, t int) error {
	if z < 0 || z >= px.SizeZ || c < 0 || c >= px.SizeC || t < 0 || t >= px.SizeT {
		return fmt.Errorf("plane (z=%d, c=%d, t=%d) outside %s: %w", z, c, t, px, ErrOutOfBounds)
	}
	return nil
}

// PlaneIndex returns the ordinal of plane (z, c, t) with T outermost, then C, then Z.
func (px *Pixels) PlaneIndex(z, c, t int) int64 {
	return (int64(t)*int64(px.SizeC)+int64(c))*int64(px.SizeZ) + int64(z)
}

// PlaneOffset returns the byte offset of plane (z, c, t) in flat storage.
func (px *Pixels) PlaneOffset(z, c, t int) int64 {
	return px.PlaneIndex(z, c, t) * px.PlaneSize()
}

// Region is a rectangle within a plane.
type Region struct {
	X, Y          int
	Width, Height int
}

func (r Region) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// FullPlane returns the region covering a sizeX x sizeY plane.
func FullPlane(sizeX, sizeY int) Region {
	return Region{Width: sizeX, Height: sizeY}
}

// Within returns an ErrOutOfBounds error unless r is non-empty and lies inside
// a sizeX x sizeY plane.
func (r Region) Within(sizeX, sizeY int) error {
	if r.Width <= 0 || r.Height <= 0 || r.X < 0 || r.Y < 0 || r.X+r.Width > sizeX || r.Y+r.Height > sizeY {
		return fmt.Errorf("region %s outside %d x %d plane: %w", r, sizeX, sizeY, ErrOutOfBounds)
	}
	return nil
}

// Bytes is the size of the region's data at the given byte depth.
func (r Region) Bytes(bytesPerPixel int) int {
	return r.Width * r.Height * bytesPerPixel
}

// Intersect returns the overlap of two regions and whether it is non-empty.
func (r Region) Intersect(o Region) (Region, bool) {
	x0, y0 := max(r.X, o.X), max(r.Y, o.Y)
	x1, y1 := min(r.X+r.Width, o.X+o.Width), min(r.Y+r.Height, o.Y+o.Height)
	if x1 <= x0 || y1 <= y0 {
		return Region{}, false
	}
	return Region{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}, true
}

// CopyRegion copies the pixels of region r from src, laid out as srcRegion, into
// dst, laid out as dstRegion.  Both layouts are row-major with the given byte depth.
func CopyRegion(dst []byte, dstRegion Region, src []byte, srcRegion Region, r Region, bytesPerPixel int) {
	rowBytes := r.Width * bytesPerPixel
	for y := r.Y; y < r.Y+r.Height; y++ {
		si := ((y-srcRegion.Y)*srcRegion.Width + (r.X - srcRegion.X)) * bytesPerPixel
		di := ((y-dstRegion.Y)*dstRegion.Width + (r.X - dstRegion.X)) * bytesPerPixel
		copy(dst[di:di+rowBytes], src[si:si+rowBytes])
	}
}
