// Package store defines interfaces for persisting run history next to the
// report stores. Implementations live in the backend subpackages; this package
// must not import database drivers or concrete clients.
package store
