package storage

import (
	"context"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// ============================================================================
// FileSelector Interface
// ============================================================================

// FileSelector filters entries during listing operations.
//
//	sel, _ := storage.Glob("pages/**/*.md")
//	files, err := storage.ListWithSelector(ctx, fs, "pages", sel, true)
type FileSelector interface {
	// Match returns true if the entry should be included in results.
	Match(file *FileInfo) bool

	// TraverseDescendants returns true if directory descendants should be traversed.
	// Only called for directories (file.IsDir == true).
	TraverseDescendants(file *FileInfo) bool
}

// ListWithSelector lists entries matching the given selector, depth first in
// the order the backend lists each directory. Directories are matched too, so
// a selector such as Glob("*") yields directory entries as well as files.
func ListWithSelector(ctx context.Context, fs FileReader, dir string, selector FileSelector, recursive bool) ([]FileInfo, error) {
	if selector == nil {
		selector = All()
	}

	var results []FileInfo
	if err := listRecursive(ctx, fs, dir, selector, recursive, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func listRecursive(ctx context.Context, fs FileReader, dir string, selector FileSelector, recursive bool, results *[]FileInfo) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	files, err := fs.ListContents(ctx, dir, false)
	if err != nil {
		return err
	}

	for i := range files {
		file := &files[i]
		file.Path = slashPath(file.Path)

		if selector.Match(file) {
			*results = append(*results, *file)
		}
		if file.IsDir && recursive && selector.TraverseDescendants(file) {
			if err := listRecursive(ctx, fs, file.Path, selector, recursive, results); err != nil {
				return err
			}
		}
	}

	return nil
}

func slashPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimPrefix(p, "/")
}

// ============================================================================
// Built-in Selectors
// ============================================================================

// AllSelector matches everything and traverses every directory.
type AllSelector struct{}

func (s AllSelector) Match(file *FileInfo) bool               { return true }
func (s AllSelector) TraverseDescendants(file *FileInfo) bool { return true }

// All returns a selector that matches all entries.
func All() FileSelector {
	return AllSelector{}
}

// GlobOptions tunes Glob matching.
type GlobOptions struct {
	// Dot lets wildcards match path segments starting with a dot.
	Dot bool
}

type globSelector struct {
	pattern  string
	matchers []glob.Glob
	dot      bool
	// fixed holds the leading literal segments; traversal stops early for
	// directories that leave the literal prefix.
	fixed []string
	// depth is the segment count of a pattern without "**", 0 otherwise.
	depth int
}

// Glob creates a selector that matches the slash-separated entry path
// against pattern. "*" stays within a segment, "**" crosses segments and
// also matches zero directories ("a/**/b" matches "a/b").
func Glob(pattern string, opts ...GlobOptions) (FileSelector, error) {
	var o GlobOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	pattern = slashPath(pattern)
	variants := []string{pattern}
	if collapsed := collapseGlobstar(pattern); collapsed != pattern {
		variants = append(variants, collapsed)
	}

	s := &globSelector{pattern: pattern, dot: o.Dot}
	for _, v := range variants {
		g, err := glob.Compile(v, '/')
		if err != nil {
			return nil, &PathError{Op: "glob", Path: pattern, Err: err}
		}
		s.matchers = append(s.matchers, g)
	}

	for _, seg := range strings.Split(pattern, "/") {
		if HasMagic(seg) {
			break
		}
		s.fixed = append(s.fixed, seg)
	}
	if !strings.Contains(pattern, "**") {
		s.depth = strings.Count(pattern, "/") + 1
	}

	return s, nil
}

func collapseGlobstar(pattern string) string {
	out := strings.ReplaceAll(pattern, "/**/", "/")
	return strings.TrimPrefix(out, "**/")
}

func (s *globSelector) Match(file *FileInfo) bool {
	p := slashPath(file.Path)
	if !s.dot && hiddenOutsidePattern(p, s.pattern) {
		return false
	}
	for _, g := range s.matchers {
		if g.Match(p) {
			return true
		}
	}
	return false
}

func (s *globSelector) TraverseDescendants(file *FileInfo) bool {
	segs := strings.Split(slashPath(file.Path), "/")
	if s.depth > 0 && len(segs) >= s.depth {
		return false
	}
	for i, seg := range segs {
		if i >= len(s.fixed) {
			break
		}
		if seg != s.fixed[i] {
			return false
		}
	}
	if !s.dot && strings.HasPrefix(path.Base(file.Path), ".") && !strings.Contains(s.pattern, "/.") && !strings.HasPrefix(s.pattern, ".") {
		return false
	}
	return true
}

// hiddenOutsidePattern reports whether p has a dot segment that the pattern
// does not name explicitly.
func hiddenOutsidePattern(p, pattern string) bool {
	explicit := strings.HasPrefix(pattern, ".") || strings.Contains(pattern, "/.")
	if explicit {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	return false
}

// HasMagic reports whether pattern contains glob metacharacters.
func HasMagic(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// ============================================================================
// Composable Selectors (And, Or, Not)
// ============================================================================

type andSelector struct {
	selectors []FileSelector
}

// And matches only if ALL selectors match.
func And(selectors ...FileSelector) FileSelector {
	return &andSelector{selectors: selectors}
}

func (s *andSelector) Match(file *FileInfo) bool {
	for _, sel := range s.selectors {
		if !sel.Match(file) {
			return false
		}
	}
	return true
}

func (s *andSelector) TraverseDescendants(file *FileInfo) bool {
	for _, sel := range s.selectors {
		if !sel.TraverseDescendants(file) {
			return false
		}
	}
	return true
}

type orSelector struct {
	selectors []FileSelector
}

// Or matches if ANY selector matches.
func Or(selectors ...FileSelector) FileSelector {
	return &orSelector{selectors: selectors}
}

func (s *orSelector) Match(file *FileInfo) bool {
	for _, sel := range s.selectors {
		if sel.Match(file) {
			return true
		}
	}
	return false
}

func (s *orSelector) TraverseDescendants(file *FileInfo) bool {
	for _, sel := range s.selectors {
		if sel.TraverseDescendants(file) {
			return true
		}
	}
	return false
}

type notSelector struct {
	selector FileSelector
}

// Not inverts a selector's match result. Traversal is never pruned.
func Not(selector FileSelector) FileSelector {
	return &notSelector{selector: selector}
}

func (s *notSelector) Match(file *FileInfo) bool {
	return !s.selector.Match(file)
}

func (s *notSelector) TraverseDescendants(file *FileInfo) bool {
	return true
}

type funcSelector struct {
	matchFn func(*FileInfo) bool
}

// FuncSelector creates a selector from a custom function.
func FuncSelector(fn func(*FileInfo) bool) FileSelector {
	return &funcSelector{matchFn: fn}
}

func (s *funcSelector) Match(file *FileInfo) bool               { return s.matchFn(file) }
func (s *funcSelector) TraverseDescendants(file *FileInfo) bool { return true }
