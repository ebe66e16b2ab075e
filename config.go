package pipe

import (
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"github.com/raskyld/pipe/pkg/transport"
	"gopkg.in/yaml.v3"
)

// Names of the transports usable in a config file.
const (
	TransportDedicated = "dedicated"
	TransportShared    = "shared"
	TransportQUIC      = "quic"
)

// FileConfig is the on-disk configuration of a caller:
//
//	source: worker.js            # or a list
//	overrides:
//	  worker.js: shared          # dedicated | shared | quic
//	codec: json                  # json | proto
//	dial_timeout: 10s
type FileConfig struct {
	Source      SourceList        `yaml:"source"`
	Overrides   map[string]string `yaml:"overrides"`
	Codec       string            `yaml:"codec"`
	DialTimeout time.Duration     `yaml:"dial_timeout"`
}

// SourceList accepts either a single source or a sequence of them.
type SourceList []string

func (s *SourceList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var one string
		if err := value.Decode(&one); err != nil {
			return err
		}
		*s = SourceList{one}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := value.Decode(&many); err != nil {
			return err
		}
		*s = many
		return nil
	default:
		return fmt.Errorf("source must be a string or a list of strings, line %d", value.Line)
	}
}

// ParseConfig decodes a YAML configuration.
func ParseConfig(buf []byte) (*FileConfig, error) {
	cfg := &FileConfig{}
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
	}
	return cfg, nil
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*FileConfig, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
	}
	return ParseConfig(buf)
}

// Options turns the configuration into options. rt backs the dedicated
// and shared transports; tlsConf is only needed by quic overrides.
func (fc *FileConfig) Options(rt *transport.Runtime, tlsConf *tls.Config) ([]Option, error) {
	codec, err := CodecByName(fc.Codec)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithSource(fc.Source...),
		WithCodec(codec),
	}
	if rt != nil {
		opts = append(opts, WithRuntime(rt))
	}

	for source, name := range fc.Overrides {
		var tr Transport
		switch name {
		case TransportDedicated:
			if rt == nil {
				return nil, fmt.Errorf("%w: %s", ErrNoRuntime, source)
			}
			tr = Dedicated(rt)
		case TransportShared:
			if rt == nil {
				return nil, fmt.Errorf("%w: %s", ErrNoRuntime, source)
			}
			tr = Shared(rt)
		case TransportQUIC:
			if tlsConf == nil {
				return nil, fmt.Errorf("%w: %w: %s", ErrInvalidCfg, transport.ErrNoTLSConfig, source)
			}
			tr = QUIC(tlsConf, fc.DialTimeout)
		default:
			return nil, fmt.Errorf("%w: %q for %s", ErrUnknownTransport, name, source)
		}
		opts = append(opts, WithOverride(source, tr))
	}

	return opts, nil
}
