// Package cypherdb is a small entry point wrapping the in-memory
// storage.Engine and engine.Session construction a caller otherwise
// assembles from storage/memstore and engine directly.
package cypherdb

import (
	"github.com/wyrmfield/cypherdb/engine"
	"github.com/wyrmfield/cypherdb/graph"
	"github.com/wyrmfield/cypherdb/storage"
	"github.com/wyrmfield/cypherdb/storage/memstore"
)

// Open returns a fresh in-memory storage.Engine. Callers needing the
// persistent adapter construct storage/badgerstore.Open directly, since
// it takes a database path and a logger.
func Open() storage.Engine {
	return memstore.New()
}

// Session binds an engine.Session to store, ready for Run. params
// supplies `$name` values referenced by queries run through it; it may
// be nil.
func Session(store storage.Engine, params graph.Parameters) *engine.Session {
	return engine.NewSession(store, params)
}
