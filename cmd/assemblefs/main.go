package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gobeaver/assemblefs"
	_ "github.com/gobeaver/assemblefs/driver/s3"
	"github.com/gobeaver/assemblefs/storage"
	"github.com/gobeaver/assemblefs/templates"
	"github.com/gobeaver/assemblefs/vfs"
)

// Global carries what every command needs.
type Global struct {
	Service *assemblefs.Service
}

type CLI struct {
	Verbose     bool   `short:"v" help:"Enable verbose logging"`
	Root        string `help:"Directory the storage root maps to (overrides BEAVER_ASSEMBLEFS_ROOT)"`
	Templates   string `help:"Directory destinations are prepared against (overrides BEAVER_ASSEMBLEFS_TEMPLATES)"`
	MetricsAddr string `name:"metrics-addr" help:"Serve Prometheus metrics on this address"`

	Copy    CopyCmd    `cmd:"" help:"Copy files matching patterns into a directory"`
	Build   BuildCmd   `cmd:"" help:"Load files into a collection, run the lifecycle hooks and write them"`
	Symlink SymlinkCmd `cmd:"" help:"Link files matching patterns into a directory"`
}

// AfterApply sets up logging once flags are parsed.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

type CopyCmd struct {
	Patterns []string `arg:"" help:"Glob patterns, prefix with ! to exclude"`
	Dest     string   `short:"d" required:"" help:"Output directory"`
}

func (c *CopyCmd) Run(ctx context.Context, g *Global) error {
	s, err := g.Service.Assembler.Copy(ctx, c.Patterns, vfs.DestDir(c.Dest))
	if err != nil {
		return err
	}
	items, err := s.Collect()
	if err != nil {
		return err
	}
	slog.Info("Copy completed", "files", len(items), "dest", c.Dest)
	return nil
}

type BuildCmd struct {
	Patterns    []string `arg:"" help:"Glob patterns, prefix with ! to exclude"`
	Dest        string   `short:"d" required:"" help:"Output directory"`
	Collection  string   `help:"Collection the files are loaded into" default:"pages"`
	FrontMatter bool     `name:"front-matter" help:"Parse YAML front matter into file data"`
	Watch       bool     `short:"w" help:"Rebuild when matching files change"`
	DryRun      bool     `name:"dry-run" help:"Keep the output in memory and list it instead of writing to disk" xor:"target"`
	Publish     bool     `help:"Write the output to the bucket configured by BEAVER_ASSEMBLEFS_S3_*" xor:"target"`
}

func (c *BuildCmd) Run(ctx context.Context, g *Global) error {
	if c.FrontMatter && g.Service.App.Observers(assemblefs.OnLoad) == 0 {
		if err := g.Service.App.Observe(assemblefs.OnLoad, "", templates.FrontMatter()); err != nil {
			return err
		}
	}

	if err := c.build(ctx, g); err != nil {
		return err
	}
	if !c.Watch {
		return nil
	}

	cancel := storage.OnChange(func(ctx context.Context) (storage.ChangeToken, error) {
		tokens := make([]storage.ChangeToken, 0, len(c.Patterns))
		for _, p := range c.Patterns {
			if strings.HasPrefix(p, "!") {
				continue
			}
			token, err := g.Service.Assembler.Watch(ctx, p)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token)
		}
		return storage.NewCompositeChangeToken(tokens...), nil
	}, func() {
		if err := c.build(ctx, g); err != nil {
			slog.Error("Rebuild failed", "error", err)
		}
	})
	defer cancel()

	slog.Info("Watching for changes", "patterns", c.Patterns)
	<-ctx.Done()
	return nil
}

func (c *BuildCmd) build(ctx context.Context, g *Global) error {
	start := time.Now()
	a := g.Service.Assembler

	s, err := a.Src(ctx, c.Patterns, assemblefs.WithCollection(c.Collection))
	if err != nil {
		return err
	}
	if err := s.Wait(); err != nil {
		return err
	}
	if err := a.WriteFiles(ctx, c.Collection, vfs.DestDir(c.Dest)); err != nil {
		return err
	}

	slog.Info("Build completed", "collection", c.Collection, "dest", c.Dest, "duration", time.Since(start))
	if c.DryRun {
		files, err := g.Service.FS.ListContents(ctx, c.Dest, true)
		if err != nil {
			return err
		}
		for _, f := range files {
			if !f.IsDir {
				slog.Info("Would write", "path", f.Path, "size", f.Size)
			}
		}
	}
	return nil
}

type SymlinkCmd struct {
	Patterns []string `arg:"" help:"Glob patterns, prefix with ! to exclude"`
	Dest     string   `short:"d" required:"" help:"Output directory"`
	Relative bool     `help:"Create relative links"`
}

func (c *SymlinkCmd) Run(ctx context.Context, g *Global) error {
	a := g.Service.Assembler
	src, err := a.Src(ctx, c.Patterns, assemblefs.WithRead(false))
	if err != nil {
		return err
	}
	link, err := a.Symlink(ctx, vfs.DestDir(c.Dest), assemblefs.WithRelativeSymlinks(c.Relative))
	if err != nil {
		src.Abort(err)
		return err
	}
	items, err := src.Pipe(link).Collect()
	if err != nil {
		return err
	}
	slog.Info("Symlink completed", "links", len(items), "dest", c.Dest)
	return nil
}

func main() {
	_ = godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("assemblefs"),
		kong.Description("Read, transform and write files through lifecycle hooks"),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := newService(&cli, kctx.Command())
	if err != nil {
		slog.Error("Failed to create service", "error", err)
		os.Exit(1)
	}

	if cli.MetricsAddr != "" {
		srv := serveMetrics(cli.MetricsAddr, svc)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	kctx.BindTo(ctx, (*context.Context)(nil))
	if err := kctx.Run(&Global{Service: svc}); err != nil {
		slog.Error("Command failed", "command", kctx.Command(), "error", err)
		os.Exit(1)
	}
}

func newService(cli *CLI, command string) (*assemblefs.Service, error) {
	cfg, err := assemblefs.GetConfig()
	if err != nil {
		return nil, err
	}
	if cli.Root != "" {
		cfg.Root = cli.Root
	}
	if cli.Templates != "" {
		cfg.Templates = cli.Templates
	}
	if cli.MetricsAddr != "" {
		cfg.Metrics = true
	}
	if strings.HasPrefix(command, "build") {
		switch {
		case cli.Build.DryRun:
			cfg.Output = cli.Build.Dest
			cfg.OutputDriver = "memory"
			cfg.ReadOnlySource = true
		case cli.Build.Publish:
			cfg.Output = cli.Build.Dest
			cfg.OutputDriver = "s3"
		}
	}
	return assemblefs.New(cfg, assemblefs.WithLogger(slog.Default()))
}

func serveMetrics(addr string, svc *assemblefs.Service) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(svc.Registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	slog.Info("Serving metrics", "addr", addr)
	return srv
}
