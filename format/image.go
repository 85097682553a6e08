package format

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/DmitriyVTitov/size"
	"github.com/dustin/go-humanize"
	"github.com/golang/groupcache/lru"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/janelia-flyem/pixstore/pix"
)

// imagePlanes holds every plane of a decoded image file, indexed by pix.Pixels.PlaneIndex.
type imagePlanes struct {
	px     pix.Pixels
	format string
	planes [][]byte
}

// imageReader is a Reader over decoded planes shared through the image cache.
type imageReader struct {
	path string
	*imagePlanes
}

func (r *imageReader) Pixels() pix.Pixels { return r.px }

func (r *imageReader) ReadPlane(z, c, t int) ([]byte, error) {
	return r.ReadRegion(z, c, t, pix.FullPlane(r.px.SizeX, r.px.SizeY))
}

func (r *imageReader) ReadRegion(z, c, t int, region pix.Region) ([]byte, error) {
	if err := r.px.CheckPlane(z, c, t); err != nil {
		return nil, err
	}
	if err := region.Within(r.px.SizeX, r.px.SizeY); err != nil {
		return nil, err
	}
	bpp := r.px.BytesPerPixel()
	out := make([]byte, region.Bytes(bpp))
	src := r.planes[r.px.PlaneIndex(z, c, t)]
	pix.CopyRegion(out, region, src, pix.FullPlane(r.px.SizeX, r.px.SizeY), region, bpp)
	return out, nil
}

func (r *imageReader) Close() error { return nil }

func decodeImageFile(path string) (*imagePlanes, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".gif") {
		g, err := gif.DecodeAll(f)
		if err != nil {
			return nil, err
		}
		return gifPlanes(g)
	}
	img, format, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	ip := imageToPlanes(img)
	ip.format = format
	return ip, nil
}

// imageToPlanes splits a decoded image into one gray channel or three RGB channels.
func imageToPlanes(img image.Image) *imagePlanes {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	px := pix.Pixels{SizeX: w, SizeY: h, SizeZ: 1, SizeC: 1, SizeT: 1}

	switch src := img.(type) {
	case *image.Gray:
		px.Type = pix.Uint8
		plane := make([]byte, w*h)
		for y := 0; y < h; y++ {
			copy(plane[y*w:(y+1)*w], src.Pix[y*src.Stride:y*src.Stride+w])
		}
		return &imagePlanes{px: px, planes: [][]byte{plane}}
	case *image.Gray16:
		px.Type = pix.Uint16
		plane := make([]byte, w*h*2)
		for y := 0; y < h; y++ {
			copy(plane[y*w*2:(y+1)*w*2], src.Pix[y*src.Stride:y*src.Stride+w*2])
		}
		return &imagePlanes{px: px, planes: [][]byte{plane}}
	}

	px.SizeC = 3
	deep := img.ColorModel() == color.RGBA64Model || img.ColorModel() == color.NRGBA64Model
	if deep {
		px.Type = pix.Uint16
	} else {
		px.Type = pix.Uint8
	}
	bpp := px.BytesPerPixel()
	planes := [][]byte{make([]byte, w*h*bpp), make([]byte, w*h*bpp), make([]byte, w*h*bpp)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := (y*w + x) * bpp
			for ch, v := range [3]uint32{r, g, bl} {
				if deep {
					pix.ByteOrder.PutUint16(planes[ch][i:], uint16(v))
				} else {
					planes[ch][i] = uint8(v >> 8)
				}
			}
		}
	}
	return &imagePlanes{px: px, planes: planes}
}

// gifPlanes composites each animation frame and stores frames as timepoints.
func gifPlanes(g *gif.GIF) (*imagePlanes, error) {
	if len(g.Image) == 0 {
		return nil, fmt.Errorf("gif has no frames")
	}
	w, h := g.Config.Width, g.Config.Height
	if w == 0 || h == 0 {
		b := g.Image[0].Bounds()
		w, h = b.Max.X, b.Max.Y
	}
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	px := pix.Pixels{SizeX: w, SizeY: h, SizeZ: 1, SizeC: 3, SizeT: len(g.Image), Type: pix.Uint8}
	planes := make([][]byte, 0, px.PlaneCount())
	for _, frame := range g.Image {
		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		fp := imageToPlanes(canvas)
		planes = append(planes, fp.planes...)
	}
	return &imagePlanes{px: px, format: "gif", planes: planes}, nil
}

// imageCache keeps recently decoded image files keyed by path, size and
// modification time.
type imageCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func newImageCache(maxEntries int) *imageCache {
	if maxEntries <= 0 {
		return &imageCache{}
	}
	c := lru.New(maxEntries)
	c.OnEvicted = func(key lru.Key, value interface{}) {
		pix.Debugf("Evicted decoded image %s from cache\n", key)
	}
	return &imageCache{cache: c}
}

func (ic *imageCache) open(path string) (*imageReader, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s@%d:%d", path, fi.ModTime().UnixNano(), fi.Size())
	if ic.cache != nil {
		ic.mu.Lock()
		v, found := ic.cache.Get(key)
		ic.mu.Unlock()
		if found {
			return &imageReader{path: path, imagePlanes: v.(*imagePlanes)}, nil
		}
	}
	tlog := pix.NewTimeLog()
	ip, err := decodeImageFile(path)
	if err != nil {
		return nil, err
	}
	tlog.Debugf("Decoded %s image %s (%s)", ip.format, path, humanize.Bytes(uint64(size.Of(ip))))
	if ic.cache != nil {
		ic.mu.Lock()
		ic.cache.Add(key, ip)
		ic.mu.Unlock()
	}
	return &imageReader{path: path, imagePlanes: ip}, nil
}
