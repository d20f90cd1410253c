// Package memory caches answers from remote collaborators, today the Pro
// entitlement checks, so repeated gated requests skip the network.
//
// InMemoryStore keeps entries in the process. RedisStore keeps them in
// Redis so every nexus sharing a namespace sees the same answers:
//
//	store, err := memory.NewRedisStore("redis://localhost:6379/0", "iln")
//	_ = store.Set(ctx, "entitlement:ab12:4", true, 5*time.Minute)
//
// Missing and expired keys report core.ErrNotFound.
package memory
