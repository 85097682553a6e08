package pyramid

import "github.com/janelia-flyem/pixstore/pix"

// downsample averages 2x2 blocks of a w x h plane.  Blocks on an odd edge
// average the pixels available.
func downsample(src []byte, w, h int, t pix.PixelType) ([]byte, int, int) {
	dw, dh := (w+1)/2, (h+1)/2
	if t == pix.Uint8 {
		return uint8average(src, w, h, dw, dh), dw, dh
	}
	bpp := t.BytesPerPixel()
	dst := make([]byte, dw*dh*bpp)
	for y := 0; y < dh; y++ {
		for x := 0; x < dw; x++ {
			var sum float64
			var n int
			for sy := 2 * y; sy < min(2*y+2, h); sy++ {
				for sx := 2 * x; sx < min(2*x+2, w); sx++ {
					sum += t.Value(src[(sy*w+sx)*bpp:])
					n++
				}
			}
			t.PutValue(dst[(y*dw+x)*bpp:], sum/float64(n))
		}
	}
	return dst, dw, dh
}

func uint8average(src []byte, w, h, dw, dh int) []byte {
	dst := make([]byte, dw*dh)
	for y := 0; y < dh; y++ {
		for x := 0; x < dw; x++ {
			var sum, n int
			for sy := 2 * y; sy < min(2*y+2, h); sy++ {
				for sx := 2 * x; sx < min(2*x+2, w); sx++ {
					sum += int(src[sy*w+sx])
					n++
				}
			}
			dst[y*dw+x] = uint8((sum + n/2) / n)
		}
	}
	return dst
}
