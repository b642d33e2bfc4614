package memory

import "github.com/gobeaver/assemblefs/storage"

func init() {
	storage.RegisterDriver("memory", func(string) (storage.FileSystem, error) {
		return New(), nil
	})
}
