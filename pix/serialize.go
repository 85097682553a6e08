/*
	This file supports serialization and compression of stored tiles.
*/

package pix

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression is the format of compression for stored data.
// NOTE: Should be no more than 8 (3 bits) of compression types.
type Compression uint8

const (
	Uncompressed Compression = iota
	Snappy
	LZ4
	Zstd
	Gzip
)

func (compress Compression) String() string {
	switch compress {
	case Uncompressed:
		return "none"
	case Snappy:
		return "snappy"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	case Gzip:
		return "gzip"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(compress))
	}
}

// ParseCompression returns the compression with the given name.  An empty
// name selects no compression.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return Uncompressed, nil
	case "snappy":
		return Snappy, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	case "gzip":
		return Gzip, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// Checksum is the type of checksum employed for error checking stored data.
// NOTE: Should be no more than 4 (2 bits) of checksum types.
type Checksum uint8

const (
	NoChecksum Checksum = iota
	CRC32
)

// SerializationFormat is a single byte combining both compression and checksum methods.
type SerializationFormat uint8

func EncodeSerializationFormat(compress Compression, checksum Checksum) SerializationFormat {
	a := (uint8(compress) & 0x07) << 5
	b := (uint8(checksum) & 0x03) << 3
	return SerializationFormat(a | b)
}

func DecodeSerializationFormat(s SerializationFormat) (compress Compression, checksum Checksum) {
	compress = Compression(uint8(s) >> 5)
	checksum = Checksum((uint8(s) >> 3) & 0x03)
	return
}

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

func compressData(data []byte, compress Compression) ([]byte, Compression, error) {
	switch compress {
	case Uncompressed:
		return data, Uncompressed, nil
	case Snappy:
		return snappy.Encode(nil, data), Snappy, nil
	case LZ4:
		out := make([]byte, 4+lz4.CompressBlockBound(len(data)))
		binary.LittleEndian.PutUint32(out[0:4], uint32(len(data)))
		n, err := lz4.CompressBlock(data, out[4:], nil)
		if err != nil {
			return nil, LZ4, err
		}
		if n == 0 {
			// incompressible
			return data, Uncompressed, nil
		}
		return out[:4+n], LZ4, nil
	case Zstd:
		return zstdEncoder.EncodeAll(data, nil), Zstd, nil
	case Gzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, Gzip, err
		}
		if err := zw.Close(); err != nil {
			return nil, Gzip, err
		}
		return buf.Bytes(), Gzip, nil
	default:
		return nil, compress, fmt.Errorf("illegal compression (%s) during serialization", compress)
	}
}

func uncompressData(cdata []byte, compress Compression) ([]byte, error) {
	switch compress {
	case Uncompressed:
		return cdata, nil
	case Snappy:
		return snappy.Decode(nil, cdata)
	case LZ4:
		if len(cdata) < 4 {
			return nil, fmt.Errorf("lz4 data too short (%d bytes)", len(cdata))
		}
		origSize := binary.LittleEndian.Uint32(cdata[0:4])
		data := make([]byte, origSize)
		n, err := lz4.UncompressBlock(cdata[4:], data)
		if err != nil {
			return nil, err
		}
		if n != int(origSize) {
			return nil, fmt.Errorf("lz4 uncompressed %d bytes, expected %d", n, origSize)
		}
		return data, nil
	case Zstd:
		return zstdDecoder.DecodeAll(cdata, nil)
	case Gzip:
		zr, err := gzip.NewReader(bytes.NewReader(cdata))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return nil, fmt.Errorf("illegal compression (%s) during deserialization", compress)
	}
}

// SerializeData returns a format byte, an optional checksum and the
// possibly compressed data.  Data that LZ4 cannot shrink is stored uncompressed.
func SerializeData(data []byte, compress Compression, checksum Checksum) ([]byte, error) {
	byteData, used, err := compressData(data, compress)
	if err != nil {
		return nil, err
	}
	var buffer bytes.Buffer
	buffer.Grow(len(byteData) + 5)
	buffer.WriteByte(byte(EncodeSerializationFormat(used, checksum)))

	switch checksum {
	case NoChecksum:
	case CRC32:
		var crc [4]byte
		binary.LittleEndian.PutUint32(crc[:], crc32.ChecksumIEEE(byteData))
		buffer.Write(crc[:])
	default:
		return nil, fmt.Errorf("illegal checksum (%d) during serialization", checksum)
	}

	// The data is written last so no length is needed when deserializing.
	buffer.Write(byteData)
	return buffer.Bytes(), nil
}

// DeserializeData reverses SerializeData, verifying any stored checksum.
func DeserializeData(s []byte) (data []byte, compress Compression, err error) {
	if len(s) == 0 {
		return nil, Uncompressed, fmt.Errorf("cannot deserialize empty data")
	}
	var checksum Checksum
	compress, checksum = DecodeSerializationFormat(SerializationFormat(s[0]))
	cdata := s[1:]

	switch checksum {
	case NoChecksum:
	case CRC32:
		if len(cdata) < 4 {
			return nil, compress, fmt.Errorf("serialized data too short for checksum")
		}
		stored := binary.LittleEndian.Uint32(cdata[0:4])
		cdata = cdata[4:]
		if got := crc32.ChecksumIEEE(cdata); got != stored {
			return nil, compress, fmt.Errorf("bad checksum: stored %x got %x", stored, got)
		}
	default:
		return nil, compress, fmt.Errorf("illegal checksum in deserializing data")
	}

	data, err = uncompressData(cdata, compress)
	return
}
