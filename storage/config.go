package storage

const (
	DefaultPyramidSuffix = "_pyramid"

	// DefaultPyramidThreshold is the plane area above which pixels sets are
	// stored as pyramids.
	DefaultPyramidThreshold = 1024 * 1024
)

// Config is the [storage] configuration section.
type Config struct {
	Root             string
	PyramidSuffix    string `toml:"pyramid_suffix"`
	PyramidThreshold int64  `toml:"pyramid_threshold"`

	// MaxPyramidRetries bounds the publish rounds when waiting for a missing
	// pyramid.  Zero waits until the pyramid appears or the context ends.
	MaxPyramidRetries int `toml:"max_pyramid_retries"`
}

func (c *Config) setDefaults() {
	if c.PyramidSuffix == "" {
		c.PyramidSuffix = DefaultPyramidSuffix
	}
	if c.PyramidThreshold <= 0 {
		c.PyramidThreshold = DefaultPyramidThreshold
	}
	if c.MaxPyramidRetries < 0 {
		c.MaxPyramidRetries = 0
	}
}
