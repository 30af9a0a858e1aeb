// Package middleware decorates job stores with behavior that is independent
// of the backend, such as encrypting results at rest.
package middleware

import "github.com/aretw0/abyss/pkg/ports"

// Middleware allows wrapping a JobStore to add behavior.
type Middleware func(ports.JobStore) ports.JobStore

// Chain applies mws to store so that the first one is outermost.
func Chain(store ports.JobStore, mws ...Middleware) ports.JobStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
