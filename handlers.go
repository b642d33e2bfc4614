package assemblefs

import "github.com/gobeaver/assemblefs/templates"

// Lifecycle hook names.
const (
	OnLoad    = templates.LoadHook
	OnStream  = "onStream"
	PreWrite  = "preWrite"
	PostWrite = "postWrite"
)

// Lifecycle lists the hooks Apply installs.
var Lifecycle = []string{OnLoad, OnStream, PreWrite, PostWrite}

// Registrar installs dispatch points.
type Registrar interface {
	HasHandler(name string) bool
	Handler(name string)
}

// EnsureHandlers installs a dispatch point for every name the host does not
// have yet and returns the names it installed. Existing dispatch points and
// their observers are left alone.
func EnsureHandlers(host Registrar, names ...string) []string {
	var added []string
	for _, name := range names {
		if host.HasHandler(name) {
			continue
		}
		host.Handler(name)
		added = append(added, name)
	}
	return added
}
