package pix

import (
	"encoding/json"
	"math"

	. "github.com/janelia-flyem/go/gocheck"
)

func (s *PixSuite) TestPixelTypeNames(c *C) {
	for t, name := range typeNames {
		parsed, err := ParsePixelType(name)
		c.Assert(err, IsNil)
		c.Assert(parsed, Equals, t)
		c.Assert(t.String(), Equals, name)
	}
	_, err := ParsePixelType("bit")
	c.Assert(err, NotNil)
	c.Assert(Uint16.BytesPerPixel(), Equals, 2)
	c.Assert(Float64.BytesPerPixel(), Equals, 8)
}

func (s *PixSuite) TestPixelsJSON(c *C) {
	px := Pixels{ID: 7, SizeX: 5, SizeY: 6, SizeZ: 1, SizeC: 2, SizeT: 3, Type: Float32}
	b, err := json.Marshal(px)
	c.Assert(err, IsNil)
	c.Assert(string(b), Matches, `.*"type":"float32".*`)

	var got Pixels
	c.Assert(json.Unmarshal(b, &got), IsNil)
	c.Assert(got, Equals, px)

	c.Assert(json.Unmarshal([]byte(`{"id":1,"type":"complex"}`), &got), NotNil)
}

func (s *PixSuite) TestPixelValues(c *C) {
	tests := []struct {
		t PixelType
		v float64
	}{
		{Uint8, 200},
		{Int8, -100},
		{Uint16, 60000},
		{Int16, -30000},
		{Uint32, 4000000000},
		{Int32, -2000000000},
		{Int64, -1 << 40},
		{Float32, 1.5},
		{Float64, math.Pi},
	}
	for _, tc := range tests {
		b := make([]byte, tc.t.BytesPerPixel())
		tc.t.PutValue(b, tc.v)
		c.Assert(tc.t.Value(b), Equals, tc.v)
	}

	// Big-endian storage.
	b := make([]byte, 2)
	Uint16.PutValue(b, 0x0102)
	c.Assert(b, DeepEquals, []byte{1, 2})

	// Integral types round.
	Uint8.PutValue(b, 2.5)
	c.Assert(b[0], Equals, uint8(3))
}
