package client

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/nczempin/httpc-conn/engine"
	"github.com/nczempin/httpc-conn/errors"
)

// FollowRedirectsPolicy decides which requests follow 3xx responses
type FollowRedirectsPolicy int

const (
	FollowGetHead FollowRedirectsPolicy = iota
	FollowNone
	FollowAll
)

func (p FollowRedirectsPolicy) String() string {
	switch p {
	case FollowNone:
		return "none"
	case FollowAll:
		return "all"
	default:
		return "get_head"
	}
}

// MarshalText implements encoding.TextMarshaler
func (p FollowRedirectsPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *FollowRedirectsPolicy) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "none":
		*p = FollowNone
	case "get_head", "":
		*p = FollowGetHead
	case "all":
		*p = FollowAll
	default:
		return errors.NewInvalidArgumentError(fmt.Sprintf("unknown redirect policy %q", text))
	}
	return nil
}

func (p FollowRedirectsPolicy) follows(m engine.Method) bool {
	switch p {
	case FollowAll:
		return true
	case FollowGetHead:
		return m == engine.MethodGet || m == engine.MethodHead
	default:
		return false
	}
}

// DefaultMaxRedirects bounds a redirect chain when MaxRedirects is unset
const DefaultMaxRedirects = 10

// The engine rejects sessions without a parseable URL, so one is set at init
// and replaced by every request.
const placeholderURL = "http://127.0.0.1"

// Configuration is read once when a connection is created. Zero values
// leave the engine defaults in place.
type Configuration struct {
	BufferSize            int                   `yaml:"buffer_size"`
	BufferSizeTx          int                   `yaml:"buffer_size_tx"`
	Timeout               time.Duration         `yaml:"timeout"`
	FollowRedirectsPolicy FollowRedirectsPolicy `yaml:"follow_redirects"`
	MaxRedirects          int                   `yaml:"max_redirects"`

	// ClientCertificate and PrivateKey are PEM blocks handed to the engine
	// untouched. Both must be present for either to be used.
	ClientCertificate string `yaml:"client_certificate"`
	PrivateKey        string `yaml:"private_key"`
	UseGlobalCAStore  bool   `yaml:"use_global_ca_store"`

	// Transport selects the byte transport of the default engine.
	Transport string `yaml:"transport"`

	Logger *logrus.Logger `yaml:"-"`
}

// LoadConfiguration reads a YAML configuration file
func LoadConfiguration(path string) (Configuration, error) {
	var cfg Configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.NewInvalidArgumentError(fmt.Sprintf("read config %s: %v", path, err))
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.NewInvalidArgumentError(fmt.Sprintf("parse config %s: %v", path, err))
	}
	return cfg, nil
}

func (c *Configuration) maxRedirects() int {
	if c.MaxRedirects <= 0 {
		return DefaultMaxRedirects
	}
	return c.MaxRedirects
}

func (c *Configuration) logger() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log
}

// engineConfig translates the configuration into session init parameters
func (c *Configuration) engineConfig(cb engine.Callback) *engine.Config {
	nc := &engine.Config{
		URL:              placeholderURL,
		Callback:         cb,
		UseGlobalCAStore: c.UseGlobalCAStore,
		MaxRedirects:     c.maxRedirects(),
	}

	if c.BufferSize > 0 {
		nc.BufferSize = c.BufferSize
	}
	if c.BufferSizeTx > 0 {
		nc.BufferSizeTx = c.BufferSizeTx
	}
	if c.Timeout > 0 {
		nc.Timeout = c.Timeout.Truncate(time.Millisecond)
	}
	if c.ClientCertificate != "" && c.PrivateKey != "" {
		nc.ClientCertPEM = []byte(c.ClientCertificate)
		nc.ClientKeyPEM = []byte(c.PrivateKey)
	}

	return nc
}
