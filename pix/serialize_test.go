package pix

import (
	"bytes"

	. "github.com/janelia-flyem/go/gocheck"
)

func (s *PixSuite) TestSerializeData(c *C) {
	repetitive := bytes.Repeat([]byte("tile data 0123456789"), 500)
	short := []byte{0x80, 0x7F}

	for _, compression := range []Compression{Uncompressed, Snappy, LZ4, Zstd, Gzip} {
		for _, checksum := range []Checksum{NoChecksum, CRC32} {
			for _, data := range [][]byte{repetitive, short} {
				ser, err := SerializeData(data, compression, checksum)
				c.Assert(err, IsNil)

				got, _, err := DeserializeData(ser)
				c.Assert(err, IsNil)
				c.Assert(got, DeepEquals, data)

				if checksum == CRC32 && len(ser) > 6 {
					ser[6] ^= 0x04
					_, _, err = DeserializeData(ser)
					c.Assert(err, NotNil)
				}
			}
		}
	}
}

func (s *PixSuite) TestSerializeCompresses(c *C) {
	data := make([]byte, 64*Kilo)
	for _, compression := range []Compression{Snappy, LZ4, Zstd, Gzip} {
		ser, err := SerializeData(data, compression, CRC32)
		c.Assert(err, IsNil)
		if len(ser) >= len(data)/4 {
			c.Errorf("%s did not compress %d zero bytes: got %d", compression, len(data), len(ser))
		}
		_, used, err := DeserializeData(ser)
		c.Assert(err, IsNil)
		c.Assert(used, Equals, compression)
	}
}

func (s *PixSuite) TestParseCompression(c *C) {
	for _, name := range []string{"none", "snappy", "lz4", "zstd", "gzip"} {
		compress, err := ParseCompression(name)
		c.Assert(err, IsNil)
		c.Assert(compress.String(), Equals, name)
	}
	compress, err := ParseCompression("")
	c.Assert(err, IsNil)
	c.Assert(compress, Equals, Uncompressed)
	_, err = ParseCompression("brotli")
	c.Assert(err, NotNil)
}

func (s *PixSuite) TestDeserializeEmpty(c *C) {
	_, _, err := DeserializeData(nil)
	c.Assert(err, NotNil)
}
