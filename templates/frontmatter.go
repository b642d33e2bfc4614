package templates

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/gobeaver/assemblefs/vfs"
	"gopkg.in/yaml.v3"
)

// ErrUnclosedFrontMatter is returned for a document that opens a YAML front
// matter block without closing it.
var ErrUnclosedFrontMatter = errors.New("templates: front matter closing delimiter is missing")

// SplitFrontMatter separates a leading "---" delimited YAML block from the
// body. ok is false when the document has no front matter.
func SplitFrontMatter(content []byte) (matter, body []byte, ok bool, err error) {
	nl := "\n"
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		nl = "\r\n"
	}

	delim := []byte("---" + nl)
	if !bytes.HasPrefix(content, delim) {
		return nil, content, false, nil
	}

	rest := content[len(delim):]
	if bytes.HasPrefix(rest, delim) {
		return []byte{}, rest[len(delim):], true, nil
	}

	closing := []byte(nl + "---" + nl)
	idx := bytes.Index(rest, closing)
	if idx < 0 {
		// a closing delimiter at end of input has no trailing newline
		if bytes.HasSuffix(rest, []byte(nl+"---")) {
			return rest[:len(rest)-len("---")], []byte{}, true, nil
		}
		return nil, nil, false, ErrUnclosedFrontMatter
	}
	return rest[:idx+len(nl)], rest[idx+len(closing):], true, nil
}

// ParseFrontMatter decodes a YAML block into a map.
func ParseFrontMatter(matter []byte) (map[string]any, error) {
	fields := map[string]any{}
	if len(bytes.TrimSpace(matter)) == 0 {
		return fields, nil
	}
	if err := yaml.Unmarshal(matter, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

// FrontMatter returns an onLoad observer that moves YAML front matter from
// a file's contents into its Data. Keys already in Data are overwritten.
func FrontMatter() Middleware {
	return func(_ context.Context, item vfs.Item) error {
		f := item.File()
		if f == nil || f.IsNull() {
			return nil
		}

		content, err := f.Bytes()
		if err != nil {
			return err
		}
		matter, body, ok, err := SplitFrontMatter(content)
		if err != nil {
			return fmt.Errorf("%s: %w", f.Path(), err)
		}
		if !ok {
			return nil
		}

		fields, err := ParseFrontMatter(matter)
		if err != nil {
			return fmt.Errorf("%s: front matter: %w", f.Path(), err)
		}
		for k, v := range fields {
			f.SetData(k, v)
		}
		f.SetContents(body)
		return nil
	}
}
