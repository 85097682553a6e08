/*
Package pyramid stores tiled multi-resolution pixel pyramids in an embedded
Badger key-value directory.  Level 0 holds full-resolution tiles and every
further level halves both plane dimensions until a level fits in one tile.
*/
package pyramid

//go:generate msgp -o meta_gen.go -io=false -tests=false

import (
	"encoding/binary"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/blang/semver"
	"github.com/coocood/freecache"
	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	"github.com/twinj/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/janelia-flyem/pixstore/pix"
)

const (
	DefaultTileWidth  = 256
	DefaultTileHeight = 256

	// FormatVersion is written into every pyramid.  Pyramids with a different
	// major version cannot be opened.
	FormatVersion = "1.0.0"
)

const (
	keyMeta byte = 0x00
	keyTile byte = 0x01

	tileKeySize = 2 + 5*4
)

var formatVersion = semver.MustParse(FormatVersion)

// Options configure pyramid creation and tile caching.
type Options struct {
	TileWidth   int
	TileHeight  int
	Compression pix.Compression

	// Cache holds decoded tiles and may be shared among pyramids.  Nil disables caching.
	Cache *freecache.Cache
}

func (opts Options) tileSize() (int, int) {
	tw, th := opts.TileWidth, opts.TileHeight
	if tw <= 0 {
		tw = DefaultTileWidth
	}
	if th <= 0 {
		th = DefaultTileHeight
	}
	return tw, th
}

// Meta is the pyramid's stored description.
type Meta struct {
	Version     string `msg:"version"`
	UUID        string `msg:"uuid"`
	PixelsID    int64  `msg:"pixels_id"`
	SizeX       int    `msg:"size_x"`
	SizeY       int    `msg:"size_y"`
	SizeZ       int    `msg:"size_z"`
	SizeC       int    `msg:"size_c"`
	SizeT       int    `msg:"size_t"`
	PixelType   uint8  `msg:"pixel_type"`
	TileWidth   int    `msg:"tile_width"`
	TileHeight  int    `msg:"tile_height"`
	Levels      int    `msg:"levels"`
	Compression uint8  `msg:"compression"`
}

func (m *Meta) pixels() pix.Pixels {
	return pix.Pixels{
		ID:    m.PixelsID,
		SizeX: m.SizeX,
		SizeY: m.SizeY,
		SizeZ: m.SizeZ,
		SizeC: m.SizeC,
		SizeT: m.SizeT,
		Type:  pix.PixelType(m.PixelType),
	}
}

type plane struct {
	z, c, t int
}

// Pyramid is an open pyramid.  Pyramids opened with Open are read-only;
// pyramids made with Create accept full-resolution writes until closed.
type Pyramid struct {
	path  string
	db    *badger.DB
	meta  Meta
	px    pix.Pixels
	sizes [][2]int
	cache *freecache.Cache

	writable bool

	mu     sync.Mutex
	dirty  map[plane]struct{}
	closed bool
}

func (p *Pyramid) String() string {
	return fmt.Sprintf("pyramid @ %s", p.path)
}

// levelSizes halves w x h until it fits within one tile.
func levelSizes(w, h, tw, th int) [][2]int {
	sizes := [][2]int{{w, h}}
	for w > tw || h > th {
		w, h = (w+1)/2, (h+1)/2
		sizes = append(sizes, [2]int{w, h})
	}
	return sizes
}

type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{})   { pix.Errorf(format, args...) }
func (badgerLogger) Warningf(format string, args ...interface{}) { pix.Warningf(format, args...) }
func (badgerLogger) Infof(format string, args ...interface{})    { pix.Debugf(format, args...) }
func (badgerLogger) Debugf(format string, args ...interface{})   { pix.Debugf(format, args...) }

// openDB opens the store at path.  Read-only stores take a shared directory
// lock so any number of readers may hold the same pyramid open.
func openDB(path string, readOnly bool) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(readOnly).
		WithLogger(badgerLogger{}).
		WithNumVersionsToKeep(1).
		WithSyncWrites(false).
		WithCompression(options.None).
		WithBlockCacheSize(0).
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20)
	return badger.Open(opts)
}

// Create makes a new writable pyramid for px at path, which must not exist.
func Create(path string, px *pix.Pixels, opts Options) (*Pyramid, error) {
	if err := px.Validate(); err != nil {
		return nil, err
	}
	if pix.FileExists(path) {
		return nil, fmt.Errorf("cannot create pyramid, %s already exists", path)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("can't make pyramid directory %s: %w", path, err)
	}
	db, err := openDB(path, false)
	if err != nil {
		os.RemoveAll(path)
		return nil, err
	}
	tw, th := opts.tileSize()
	sizes := levelSizes(px.SizeX, px.SizeY, tw, th)
	meta := Meta{
		Version:     FormatVersion,
		UUID:        uuid.NewV4().String(),
		PixelsID:    px.ID,
		SizeX:       px.SizeX,
		SizeY:       px.SizeY,
		SizeZ:       px.SizeZ,
		SizeC:       px.SizeC,
		SizeT:       px.SizeT,
		PixelType:   uint8(px.Type),
		TileWidth:   tw,
		TileHeight:  th,
		Levels:      len(sizes),
		Compression: uint8(opts.Compression),
	}
	buf, err := meta.MarshalMsg(nil)
	if err == nil {
		err = db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte{keyMeta}, buf)
		})
	}
	if err != nil {
		db.Close()
		os.RemoveAll(path)
		return nil, fmt.Errorf("unable to store pyramid metadata in %s: %w", path, err)
	}
	pix.Debugf("Created %d-level pyramid for %s @ %s\n", len(sizes), px, path)
	return &Pyramid{
		path:     path,
		db:       db,
		meta:     meta,
		px:       *px,
		sizes:    sizes,
		cache:    opts.Cache,
		writable: true,
		dirty:    make(map[plane]struct{}),
	}, nil
}

// Open opens an existing pyramid read-only.  An existing pyramid may be open
// in any number of places at once, but not while it is held by Create.  Tile size and compression come
// from the stored metadata, not opts.
func Open(path string, opts Options) (*Pyramid, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a pyramid directory", path)
	}
	db, err := openDB(path, true)
	if err != nil {
		return nil, err
	}
	var buf []byte
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte{keyMeta})
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("no pyramid metadata found in %s", path)
		}
		if err != nil {
			return err
		}
		buf, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	var meta Meta
	if _, err := meta.UnmarshalMsg(buf); err != nil {
		db.Close()
		return nil, fmt.Errorf("bad pyramid metadata in %s: %w", path, err)
	}
	if err := checkVersion(meta.Version); err != nil {
		db.Close()
		return nil, fmt.Errorf("pyramid %s: %w", path, err)
	}
	px := meta.pixels()
	if err := px.Validate(); err != nil {
		db.Close()
		return nil, err
	}
	sizes := levelSizes(px.SizeX, px.SizeY, meta.TileWidth, meta.TileHeight)
	if len(sizes) != meta.Levels {
		db.Close()
		return nil, fmt.Errorf("pyramid %s records %d levels, expected %d", path, meta.Levels, len(sizes))
	}
	return &Pyramid{
		path:  path,
		db:    db,
		meta:  meta,
		px:    px,
		sizes: sizes,
		cache: opts.Cache,
	}, nil
}

func checkVersion(v string) error {
	stored, err := semver.Make(v)
	if err != nil {
		return fmt.Errorf("bad format version %q: %w", v, err)
	}
	if stored.Major != formatVersion.Major {
		return fmt.Errorf("format version %s incompatible with %s", stored, formatVersion)
	}
	return nil
}

func (p *Pyramid) Path() string { return p.path }

// Pixels returns the stored shape and type of the full-resolution level.
func (p *Pyramid) Pixels() pix.Pixels { return p.px }

func (p *Pyramid) Levels() int { return len(p.sizes) }

func (p *Pyramid) Writable() bool { return p.writable }

func (p *Pyramid) TileSize() (int, int) {
	return p.meta.TileWidth, p.meta.TileHeight
}

// LevelSize returns the plane size at a level, or zeros for a bad level.
func (p *Pyramid) LevelSize(level int) (int, int) {
	if level < 0 || level >= len(p.sizes) {
		return 0, 0
	}
	return p.sizes[level][0], p.sizes[level][1]
}

func (p *Pyramid) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pyramid) tileKey(level, z, c, t, tx, ty int) []byte {
	key := make([]byte, tileKeySize)
	key[0] = keyTile
	key[1] = byte(level)
	binary.BigEndian.PutUint32(key[2:6], uint32(z))
	binary.BigEndian.PutUint32(key[6:10], uint32(c))
	binary.BigEndian.PutUint32(key[10:14], uint32(t))
	binary.BigEndian.PutUint32(key[14:18], uint32(ty))
	binary.BigEndian.PutUint32(key[18:22], uint32(tx))
	return key
}

func (p *Pyramid) cacheKey(key []byte) []byte {
	return append([]byte(p.meta.UUID), key...)
}

// tileRegion returns the area of tile (tx, ty) clipped to the level size.
func (p *Pyramid) tileRegion(level, tx, ty int) pix.Region {
	tw, th := p.TileSize()
	w, h := p.LevelSize(level)
	r := pix.Region{X: tx * tw, Y: ty * th, Width: tw, Height: th}
	if r.X+r.Width > w {
		r.Width = w - r.X
	}
	if r.Y+r.Height > h {
		r.Height = h - r.Y
	}
	return r
}

// tileRange returns the inclusive range of tile indices covering r.
func (p *Pyramid) tileRange(r pix.Region) (tx0, ty0, tx1, ty1 int) {
	tw, th := p.TileSize()
	return r.X / tw, r.Y / th, (r.X + r.Width - 1) / tw, (r.Y + r.Height - 1) / th
}

func (p *Pyramid) checkAccess(level, z, c, t int, r pix.Region) error {
	if p.isClosed() {
		return pix.ErrClosed
	}
	if level < 0 || level >= len(p.sizes) {
		return fmt.Errorf("level %d not in %d-level pyramid: %w", level, len(p.sizes), pix.ErrOutOfBounds)
	}
	if err := p.px.CheckPlane(z, c, t); err != nil {
		return err
	}
	w, h := p.LevelSize(level)
	return r.Within(w, h)
}

// getTile returns the decoded tile or nil if the tile was never written.
func (p *Pyramid) getTile(level, z, c, t, tx, ty int) ([]byte, error) {
	key := p.tileKey(level, z, c, t, tx, ty)
	if p.cache != nil {
		if data, err := p.cache.Get(p.cacheKey(key)); err == nil {
			return data, nil
		}
	}
	var value []byte
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil || value == nil {
		return nil, err
	}
	data, _, err := pix.DeserializeData(value)
	if err != nil {
		return nil, fmt.Errorf("tile %d,%d level %d of %s: %w", tx, ty, level, p, err)
	}
	expected := p.tileRegion(level, tx, ty).Bytes(p.px.BytesPerPixel())
	if len(data) != expected {
		return nil, fmt.Errorf("tile %d,%d level %d of %s has %d bytes, expected %d",
			tx, ty, level, p, len(data), expected)
	}
	if p.cache != nil {
		p.cache.Set(p.cacheKey(key), data, 0)
	}
	return data, nil
}

// ReadLevelRegion returns the pixels of r at a level.  Never-written tiles read as zeros.
func (p *Pyramid) ReadLevelRegion(level, z, c, t int, r pix.Region) ([]byte, error) {
	if err := p.checkAccess(level, z, c, t, r); err != nil {
		return nil, err
	}
	bpp := p.px.BytesPerPixel()
	out := make([]byte, r.Bytes(bpp))
	tx0, ty0, tx1, ty1 := p.tileRange(r)
	for ty := ty0; ty <= ty1; ty++ {
		for tx := tx0; tx <= tx1; tx++ {
			data, err := p.getTile(level, z, c, t, tx, ty)
			if err != nil {
				return nil, err
			}
			if data == nil {
				continue
			}
			tr := p.tileRegion(level, tx, ty)
			overlap, ok := tr.Intersect(r)
			if ok {
				pix.CopyRegion(out, r, data, tr, overlap, bpp)
			}
		}
	}
	return out, nil
}

// ReadRegion reads full-resolution pixels.
func (p *Pyramid) ReadRegion(z, c, t int, r pix.Region) ([]byte, error) {
	return p.ReadLevelRegion(0, z, c, t, r)
}

// ReadPlane reads a full-resolution plane.
func (p *Pyramid) ReadPlane(z, c, t int) ([]byte, error) {
	return p.ReadLevelRegion(0, z, c, t, pix.FullPlane(p.px.SizeX, p.px.SizeY))
}

// WriteRegion stores full-resolution pixels for r.  Lower levels of the plane
// are regenerated on Flush or Close.
func (p *Pyramid) WriteRegion(z, c, t int, r pix.Region, data []byte) error {
	if !p.writable {
		return pix.ErrReadOnly
	}
	if err := p.checkAccess(0, z, c, t, r); err != nil {
		return err
	}
	if len(data) != r.Bytes(p.px.BytesPerPixel()) {
		return fmt.Errorf("region %s needs %d bytes, got %d", r, r.Bytes(p.px.BytesPerPixel()), len(data))
	}
	if err := p.writeTiles(0, z, c, t, r, data); err != nil {
		return err
	}
	p.mu.Lock()
	p.dirty[plane{z, c, t}] = struct{}{}
	p.mu.Unlock()
	return nil
}

// writeTiles stores every tile overlapping r at a level, merging with stored
// tiles that r only partially covers.
func (p *Pyramid) writeTiles(level, z, c, t int, r pix.Region, data []byte) error {
	bpp := p.px.BytesPerPixel()
	compression := pix.Compression(p.meta.Compression)
	wb := p.db.NewWriteBatch()
	defer wb.Cancel()

	tx0, ty0, tx1, ty1 := p.tileRange(r)
	for ty := ty0; ty <= ty1; ty++ {
		for tx := tx0; tx <= tx1; tx++ {
			tr := p.tileRegion(level, tx, ty)
			overlap, ok := tr.Intersect(r)
			if !ok {
				continue
			}
			var tile []byte
			if overlap == tr {
				tile = make([]byte, tr.Bytes(bpp))
			} else {
				stored, err := p.getTile(level, z, c, t, tx, ty)
				if err != nil {
					return err
				}
				tile = make([]byte, tr.Bytes(bpp))
				copy(tile, stored)
			}
			pix.CopyRegion(tile, tr, data, r, overlap, bpp)
			value, err := pix.SerializeData(tile, compression, pix.CRC32)
			if err != nil {
				return err
			}
			key := p.tileKey(level, z, c, t, tx, ty)
			if err := wb.Set(key, value); err != nil {
				return err
			}
			if p.cache != nil {
				p.cache.Del(p.cacheKey(key))
			}
		}
	}
	return wb.Flush()
}

// Flush regenerates the lower levels of every plane written since the last flush.
func (p *Pyramid) Flush() error {
	if !p.writable {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return pix.ErrClosed
	}
	planes := make([]plane, 0, len(p.dirty))
	for pl := range p.dirty {
		planes = append(planes, pl)
	}
	p.dirty = make(map[plane]struct{})
	p.mu.Unlock()

	if len(planes) == 0 || len(p.sizes) == 1 {
		return nil
	}
	tlog := pix.NewTimeLog()
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for _, pl := range planes {
		pl := pl
		g.Go(func() error {
			return p.buildLevels(pl)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	tlog.Debugf("Regenerated %d levels for %d planes of %s", len(p.sizes)-1, len(planes), p)
	return nil
}

func (p *Pyramid) buildLevels(pl plane) error {
	w, h := p.LevelSize(0)
	src, err := p.ReadLevelRegion(0, pl.z, pl.c, pl.t, pix.FullPlane(w, h))
	if err != nil {
		return err
	}
	for level := 1; level < len(p.sizes); level++ {
		var dw, dh int
		src, dw, dh = downsample(src, w, h, p.px.Type)
		if err := p.writeTiles(level, pl.z, pl.c, pl.t, pix.FullPlane(dw, dh), src); err != nil {
			return err
		}
		w, h = dw, dh
	}
	return nil
}

// Close flushes pending level regeneration and closes the store.
func (p *Pyramid) Close() error {
	if p.isClosed() {
		return nil
	}
	flushErr := p.Flush()
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	if err := p.db.Close(); err != nil {
		return err
	}
	pix.Debugf("Closed %s\n", p)
	return flushErr
}
