package assemblefs

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/gobeaver/assemblefs/templates"
	"github.com/gobeaver/assemblefs/vfs"
)

// Destination events and data keys.
const (
	EventPrepareDest = "prepareDest"
	EventDest        = "dest"

	DataDest         = "dest"
	DataPreparedDest = "preparedDest"
)

// DestDescriptor is the destination computed for a file before it is
// written.
type DestDescriptor struct {
	Cwd  string
	Base string
	Dest string
	Path string
}

// DestOf returns the descriptor prepared for item.
func DestOf(item vfs.Item) (DestDescriptor, bool) {
	f := fileOf(item)
	if f == nil || f.Data == nil {
		return DestDescriptor{}, false
	}
	bag, ok := f.Data[DataDest].(map[string]any)
	if !ok {
		return DestDescriptor{}, false
	}
	str := func(k string) string {
		s, _ := bag[k].(string)
		return s
	}
	d := DestDescriptor{Cwd: str("cwd"), Base: str("base"), Dest: str("dest"), Path: str("path")}
	return d, d.Path != ""
}

// destPreparer computes destinations for one Dest call. Its id marks the
// files it already handled.
type destPreparer struct {
	id       string
	cwd      string
	dest     vfs.Dest
	baseFunc func(*vfs.File) (string, error)
}

func newDestPreparer(cwd string, dest vfs.Dest, opts Options) *destPreparer {
	return &destPreparer{
		id:       uuid.NewString(),
		cwd:      cwd,
		dest:     dest,
		baseFunc: opts.BaseFunc,
	}
}

// prepare merges the destination of item into its data. Files this
// preparer already handled are left alone.
func (p *destPreparer) prepare(item vfs.Item) error {
	f := fileOf(item)
	if f == nil {
		return nil
	}
	if marker, _ := f.Data[DataPreparedDest].(string); marker == p.id {
		return nil
	}

	destDir, err := p.dest.Resolve(f)
	if err != nil || destDir == "" {
		return &HookError{Hook: EventPrepareDest, Path: f.Path(), Err: invalid(ErrInvalidDest, err)}
	}

	var base string
	if p.baseFunc != nil {
		base, err = p.baseFunc(f)
		if err != nil || base == "" {
			return &HookError{Hook: EventPrepareDest, Path: f.Path(), Err: invalid(ErrInvalidBase, err)}
		}
	} else {
		base = resolvePath(p.cwd, destDir)
	}

	bag, _ := f.Data[DataDest].(map[string]any)
	if bag == nil {
		bag = make(map[string]any, 4)
	}
	bag["cwd"] = p.cwd
	bag["base"] = base
	bag["dest"] = destDir
	bag["path"] = filepath.Join(destDir, f.Basename())

	f.SetData(DataDest, bag)
	f.SetData(DataPreparedDest, p.id)
	return nil
}

// listener handles the prepareDest event.
func (p *destPreparer) listener(_ context.Context, ev templates.Event) error {
	if ev.Item == nil {
		return nil
	}
	return p.prepare(ev.Item)
}

// stage runs the preparer inside the write pipeline.
func (p *destPreparer) stage(_ context.Context, item vfs.Item, push func(vfs.Item) error) error {
	if f := fileOf(item); f == nil || f.Empty() {
		return push(item)
	}
	if err := p.prepare(item); err != nil {
		return err
	}
	return push(item)
}

func resolvePath(cwd, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(cwd, p)
}

// invalid returns sentinel, carrying cause in the message when there is one.
func invalid(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %v", sentinel, cause)
}
