package storage

import (
	"fmt"
	"sort"
	"sync"
)

// DriverFactory creates a FileSystem rooted at root.
type DriverFactory func(root string) (FileSystem, error)

var (
	driverFactories = make(map[string]DriverFactory)
	factoryMutex    sync.RWMutex
)

// RegisterDriver registers a driver factory function
func RegisterDriver(name string, factory DriverFactory) {
	factoryMutex.Lock()
	defer factoryMutex.Unlock()
	driverFactories[name] = factory
}

// CreateDriver creates a driver instance by name
func CreateDriver(name, root string) (FileSystem, error) {
	factoryMutex.RLock()
	factory, exists := driverFactories[name]
	factoryMutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("driver %s not registered", name)
	}

	return factory(root)
}

// Drivers returns the registered driver names in sorted order.
func Drivers() []string {
	factoryMutex.RLock()
	defer factoryMutex.RUnlock()

	names := make([]string, 0, len(driverFactories))
	for name := range driverFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
