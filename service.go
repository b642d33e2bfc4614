package assemblefs

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gobeaver/beaver-kit/config"
	prom "github.com/prometheus/client_golang/prometheus"

	_ "github.com/gobeaver/assemblefs/driver/local"
	_ "github.com/gobeaver/assemblefs/driver/memory"
	"github.com/gobeaver/assemblefs/storage"
	"github.com/gobeaver/assemblefs/templates"
	"github.com/gobeaver/assemblefs/vfs"
)

// Service bundles a host, the engine it reads and writes with, and the
// assembler attached to it.
type Service struct {
	App       *templates.App
	Engine    *vfs.Engine
	Assembler *Assembler
	FS        storage.FileSystem

	// Registry holds the pipeline metrics when Config.Metrics is set.
	Registry *prom.Registry
}

// Builder provides a way to create services with custom prefixes
type Builder struct {
	prefix string
}

// WithPrefix creates a new Builder with the specified prefix
func WithPrefix(prefix string) *Builder {
	return &Builder{prefix: prefix}
}

// New creates a new service using the builder's prefix
func (b *Builder) New(options ...AssemblerOption) (*Service, error) {
	cfg := &Config{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: b.prefix}); err != nil {
		return nil, err
	}
	return New(cfg, options...)
}

// NewFromEnv creates a service from environment config
func NewFromEnv(options ...AssemblerOption) (*Service, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	return New(cfg, options...)
}

// New creates a new service with given config
func New(cfg *Config, options ...AssemblerOption) (*Service, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	fs, err := storage.CreateDriver(cfg.Driver, cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	if cfg.OutputDriver != "" {
		if fs, err = mountOutput(fs, cfg); err != nil {
			return nil, err
		}
	}

	root := cfg.Root
	if cfg.Driver != "local" {
		root = ""
	}
	engine := vfs.New(fs, root)

	app := templates.New(cfg.Templates)
	if cfg.FrontMatter {
		app.Handler(OnLoad)
		if err := app.Observe(OnLoad, "", templates.FrontMatter()); err != nil {
			return nil, err
		}
	}

	defaults := vfs.DefaultOptions()
	defaults.AllowEmpty = cfg.AllowEmpty
	defaults.Overwrite = cfg.Overwrite
	defaults.SkipUnchanged = cfg.SkipUnchanged

	svc := &Service{App: app, Engine: engine, FS: fs}

	opts := []AssemblerOption{WithDefaults(defaults)}
	if cfg.Metrics {
		svc.Registry = prom.NewRegistry()
		opts = append(opts, WithRecorder(NewPrometheusRecorder(svc.Registry)))
	}
	opts = append(opts, options...)

	svc.Assembler, err = Apply(app, engine, opts...)
	if err != nil {
		return nil, err
	}

	slog.Default().Debug("assemblefs service ready", "driver", cfg.Driver, "root", engine.Root())
	return svc, nil
}

// validateConfig checks configuration validity
func validateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if cfg.Driver == "" {
		return errors.New("driver is required")
	}

	switch cfg.Driver {
	case "local":
		if cfg.Root == "" {
			return errors.New("root is required for local driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown driver: %s", cfg.Driver)
	}

	if !driverRegistered(cfg.Driver) {
		return fmt.Errorf("driver %s is not registered", cfg.Driver)
	}

	if cfg.ReadOnlySource && cfg.OutputDriver == "" {
		return errors.New("read-only source requires an output driver")
	}

	if cfg.OutputDriver != "" {
		if cfg.Output == "" {
			return errors.New("output is required for output driver")
		}
		out := filepath.Clean(cfg.Output)
		if filepath.IsAbs(out) || out == "." || out == ".." || strings.HasPrefix(out, ".."+string(filepath.Separator)) {
			return fmt.Errorf("output must be a directory below root: %s", cfg.Output)
		}
		if !driverRegistered(cfg.OutputDriver) {
			return fmt.Errorf("driver %s is not registered", cfg.OutputDriver)
		}
	}
	return nil
}

// mountOutput serves cfg.Output from the output driver and everything else
// from base.
func mountOutput(base storage.FileSystem, cfg *Config) (storage.FileSystem, error) {
	out, err := storage.CreateDriver(cfg.OutputDriver, filepath.Join(cfg.Root, cfg.Output))
	if err != nil {
		return nil, fmt.Errorf("failed to create output driver: %w", err)
	}

	if cfg.ReadOnlySource {
		base = storage.NewReadOnly(base, storage.WithWriteAttemptHandler(func(op, path string) {
			slog.Default().Warn("write refused outside output", "op", op, "path", path)
		}))
	}

	mounts := storage.NewMounts()
	if err := mounts.Mount("", base); err != nil {
		return nil, err
	}
	if err := mounts.Mount(filepath.ToSlash(filepath.Clean(cfg.Output)), out); err != nil {
		return nil, err
	}
	return mounts, nil
}

func driverRegistered(name string) bool {
	for _, d := range storage.Drivers() {
		if d == name {
			return true
		}
	}
	return false
}
