package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/janelia-flyem/pixstore/builder"
	"github.com/janelia-flyem/pixstore/format"
	"github.com/janelia-flyem/pixstore/message"
	"github.com/janelia-flyem/pixstore/pix"
	"github.com/janelia-flyem/pixstore/storage"
)

const (
	// DefaultWebAddress is the default address of the HTTP server.
	DefaultWebAddress = "localhost:8000"

	// DefaultReadTimeout is the default HTTP read timeout in seconds.
	DefaultReadTimeout = 600
)

// DefaultHost is the default most understandable alias for this server.
var DefaultHost = "localhost"

func init() {
	if host, err := os.Hostname(); err == nil && host != "" {
		DefaultHost = host
	}
}

// Config is the parsed TOML server configuration.
type Config struct {
	Server  serverConfig
	Storage storage.Config
	Pyramid format.PyramidConfig
	Images  format.ImageConfig
	Builder builder.Config
	Logging pix.LogConfig
	Kafka   message.KafkaConfig
	Auth    authConfig

	location string
}

type serverConfig struct {
	HTTPAddress string `toml:"httpAddress"`
	Host        string
	Note        string

	// Manifest is a JSON file describing the served pixels sets.
	Manifest    string
	CorsDomains []string `toml:"corsDomains"`
	ReadTimeout int      `toml:"readTimeout"` // seconds
}

// NewConfig returns a configuration with defaults for everything but the
// storage root.
func NewConfig() *Config {
	return &Config{
		Server: serverConfig{
			HTTPAddress: DefaultWebAddress,
			Host:        DefaultHost,
			ReadTimeout: DefaultReadTimeout,
		},
		Builder: builder.Config{Enabled: true},
	}
}

// LoadConfig loads server configuration from a TOML file.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("no server TOML configuration file provided")
	}
	c := NewConfig()
	md, err := toml.DecodeFile(filename, c)
	if err != nil {
		return nil, fmt.Errorf("could not decode TOML config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		pix.Warningf("Ignoring unknown settings in %s: %s\n", filename, strings.Join(keys, ", "))
	}
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, fmt.Errorf("could not convert relative paths to absolute paths in TOML config: %w", err)
	}
	c.location = filename
	if c.Storage.Root == "" {
		return nil, fmt.Errorf("config %s has no [storage] root", filename)
	}
	pix.Debugf("tomlConfig: %+v\n", *c)
	return c, nil
}

// Location returns the file the configuration was loaded from, if any.
func (c *Config) Location() string {
	return c.location
}

// Host returns the most understandable host alias + any port.
func (c *Config) Host() string {
	parts := strings.Split(c.Server.HTTPAddress, ":")
	host := c.Server.Host
	if len(parts) > 1 {
		host = host + ":" + parts[len(parts)-1]
	}
	return host
}

// Some settings in the TOML can be given as relative paths.
// This function converts them in-place to absolute paths,
// assuming the given paths were relative to the TOML file's own directory.
func (c *Config) convertPathsToAbsolute(configPath string) error {
	configDir := filepath.Dir(configPath)
	settings := []struct {
		name string
		path *string
	}{
		{"[storage].root", &c.Storage.Root},
		{"[server].manifest", &c.Server.Manifest},
		{"[logging].logfile", &c.Logging.Logfile},
		{"[auth].auth_file", &c.Auth.AuthFile},
	}
	for _, s := range settings {
		if *s.path == "" {
			continue
		}
		abs, err := convertToAbsolute(*s.path, configDir)
		if err != nil {
			return fmt.Errorf("error converting %s to absolute path: %w", s.name, err)
		}
		*s.path = abs
	}
	return nil
}

func convertToAbsolute(path, dir string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	return filepath.Abs(filepath.Join(dir, path))
}
