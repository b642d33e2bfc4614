package assemblefs

import (
	"github.com/gobeaver/beaver-kit/config"
)

type Config struct {
	// Storage driver the engine runs on (local, memory)
	Driver string `env:"ASSEMBLEFS_DRIVER,default:local"`

	// Directory the backend root maps to
	Root string `env:"ASSEMBLEFS_ROOT,default:."`

	// Host root destinations are prepared against
	Templates string `env:"ASSEMBLEFS_TEMPLATES"`

	// Default pipeline options
	AllowEmpty    bool `env:"ASSEMBLEFS_ALLOW_EMPTY,default:true"`
	Overwrite     bool `env:"ASSEMBLEFS_OVERWRITE,default:true"`
	SkipUnchanged bool `env:"ASSEMBLEFS_SKIP_UNCHANGED,default:false"`

	// Output directory served by a separate driver (e.g. memory for dry runs)
	Output       string `env:"ASSEMBLEFS_OUTPUT"`
	OutputDriver string `env:"ASSEMBLEFS_OUTPUT_DRIVER"`

	// Refuse writes outside Output
	ReadOnlySource bool `env:"ASSEMBLEFS_READ_ONLY_SOURCE,default:false"`

	// Parse YAML front matter when views are loaded
	FrontMatter bool `env:"ASSEMBLEFS_FRONT_MATTER,default:false"`

	// Record Prometheus metrics
	Metrics bool `env:"ASSEMBLEFS_METRICS,default:false"`
}

// GetConfig returns config loaded from environment
func GetConfig() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
