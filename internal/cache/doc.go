// Package cache implements the content-addressed artifact cache. Artifacts are
// stored under <root>/<2-hex shard of hash(collection)>/<hash(item url)><ext>
// and described by a single index.json document that maps each collection key
// to its metadata and item list. Writes go through temp file + rename, and
// every mutating call holds the manager lock across read-modify-persist so the
// on-disk index never lags behind a successful call. Concurrent processes on
// the same root are not coordinated.
package cache
