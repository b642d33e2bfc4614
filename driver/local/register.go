package local

import "github.com/gobeaver/assemblefs/storage"

func init() {
	storage.RegisterDriver("local", func(root string) (storage.FileSystem, error) {
		return New(root)
	})
}
