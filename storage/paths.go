package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/janelia-flyem/pixstore/pix"
)

const (
	pixelsDir = "Pixels"
	filesDir  = "Files"
)

// Resolver maps pixels and original file ids to paths under a storage root.
type Resolver struct {
	root   string
	suffix string
}

// NewResolver returns a resolver for root, which is made absolute.
func NewResolver(root, pyramidSuffix string) (*Resolver, error) {
	if root == "" {
		return nil, fmt.Errorf("no storage root given")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if pyramidSuffix == "" {
		pyramidSuffix = DefaultPyramidSuffix
	}
	return &Resolver{root: abs, suffix: pyramidSuffix}, nil
}

func (r *Resolver) String() string {
	return fmt.Sprintf("storage root %s", r.root)
}

func (r *Resolver) Root() string { return r.root }

// idPath spreads ids over nested directories so no directory holds more
// than a thousand entries: id 1234567 maps to <root>/<kind>/Dir-001/Dir-234/1234567.
func (r *Resolver) idPath(kind string, id int64) string {
	parts := []string{r.root, kind}
	var dirs []string
	for remaining := id; remaining > 999; {
		remaining /= 1000
		if remaining > 0 {
			dirs = append([]string{fmt.Sprintf("Dir-%03d", remaining%1000)}, dirs...)
		}
	}
	parts = append(parts, dirs...)
	parts = append(parts, strconv.FormatInt(id, 10))
	return filepath.Join(parts...)
}

// PixelsPath returns the flat storage path of a pixels set.
func (r *Resolver) PixelsPath(id int64) string {
	return r.idPath(pixelsDir, id)
}

// OriginalFilePath returns the path of an imported original file.
func (r *Resolver) OriginalFilePath(id int64) string {
	return r.idPath(filesDir, id)
}

// PyramidPath returns the pyramid path belonging to flat storage at pixelsPath.
func (r *Resolver) PyramidPath(pixelsPath string) string {
	return pixelsPath + r.suffix
}

// EnsureParent creates any missing directories above path.
func (r *Resolver) EnsureParent(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return pix.NewResourceError("mkdir", dir, err)
	}
	return nil
}
