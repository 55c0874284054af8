// Package syncer is the entry point consumers use to read portal data.
//
// An [Engine] owns the freshness cache, the request fence, the stream state table and
// the shared request queue. Each resource kind is a [Resource] with three operations:
//
//   - [Resource.Get] answers from the cache when it can and otherwise fetches without
//     publishing events. Concurrent identical misses share one fetch.
//   - [Resource.Refresh] mints a token, publishes a refresh-start marker, streams the
//     fetch and writes the cache if no newer operation started in the meantime.
//   - [Resource.Stream] mints a token, publishes a stream-start marker and returns what
//     the cache holds right away while the fetch continues in the background.
//
// # Fencing
//
// Events reach a [Sink] only while their token is current. The fence check and the
// sink call happen under one lock, so once a start marker for a new token has been
// delivered no event of an older token follows it. Sinks must not call back into the
// engine.
//
// [WorkingSet] applies the same rule on the consumer side: it adopts tokens from start
// markers, drops everything else that does not match and de-duplicates items by id.
//
// # Session expiry
//
// [Engine.HandleSessionExpired] clears the cache, moves every stream to no token and
// resets stream states. In-flight work keeps running but can no longer publish or
// write the cache.
package syncer
