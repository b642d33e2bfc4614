// Package templates is a minimal templating host: an App owning named
// collections of views, lifecycle dispatch points that observers attach to,
// and an event emitter. Rendering is left to the caller.
package templates
