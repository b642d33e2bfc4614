// Package assemblefs builds file pipelines around a template host.
//
// An [Assembler] is attached to a host with [Apply]. It installs the
// lifecycle dispatch points onLoad, onStream, preWrite and postWrite and
// exposes four pipelines:
//
//   - [Assembler.Src] reads files, runs onStream and stores the resulting
//     views in a collection, or runs onLoad for each of them.
//   - [Assembler.Dest] prepares the destination of every file, runs
//     preWrite, writes the file and runs postWrite.
//   - [Assembler.Copy] copies files without running any hook.
//   - [Assembler.Symlink] links files into a destination.
//
// Files without contents, such as directories or files read with
// WithRead(false), pass through every hook untouched.
//
// # Basic Usage
//
//	fsys, err := local.New(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	app := templates.New("site")
//	a, err := assemblefs.Apply(app, vfs.New(fsys, "."))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	_ = app.Observe(assemblefs.OnLoad, `\.md$`, templates.FrontMatter())
//
//	src, err := a.Src(ctx, []string{"pages/*.md"}, assemblefs.WithCollection("pages"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := src.Wait(); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := a.WriteFiles(ctx, "pages", vfs.DestDir("out")); err != nil {
//	    log.Fatal(err)
//	}
//
// # Errors
//
// Invalid arguments are reported by the call that builds a pipeline as an
// [*ArgumentError]. Everything that fails while files flow, including hook
// failures reported as [*HookError], ends the stream and is returned by its
// Wait method.
//
// # Configuration
//
// [NewFromEnv] builds a [Service] from environment variables:
//
//	BEAVER_ASSEMBLEFS_DRIVER=local
//	BEAVER_ASSEMBLEFS_ROOT=.
//	BEAVER_ASSEMBLEFS_TEMPLATES=site
//	BEAVER_ASSEMBLEFS_FRONT_MATTER=true
package assemblefs
