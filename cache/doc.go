// Package cache provides a generic, bounded in-memory cache for per-resource
// lookups made by request handlers.
//
// Design
//
//   - Bound: every instance has a MaxSize. When a new key arrives at a full
//     instance the eviction policy (LRU by default) picks a victim and it is
//     dropped before the new key is linked, so Len never exceeds MaxSize,
//     not even transiently.
//
//   - Expiry: every instance has one TTL measured from insertion (or the last
//     overwrite). Reads never return an entry at or past its deadline.
//     Because the TTL is uniform, entries are also kept on an age list and
//     expired ones are purged oldest-first whenever the instance is written
//     to or inspected (Set, Add, Len, Stats).
//
//   - Locking: one mutex per instance. Unrelated instances never contend.
//
//   - Registry: New registers the instance in Options.Registry
//     (DefaultRegistry when nil) so the health monitor and the Prometheus
//     collector can see it without any plumbing by the caller.
//
//   - Validation: Options.Validate lets a caller reject a stored value on
//     read. A rejected value is dropped and reported as a miss; the caller
//     regenerates it from the source of truth.
//
// Basic usage
//
//	accounts := cache.New[string, Account](cache.Options[string, Account]{
//	    Name:    "accounts",
//	    MaxSize: 100,
//	    TTL:     time.Hour,
//	})
//	accounts.Set("acme", acct)
//	if a, ok := accounts.Get("acme"); ok {
//	    _ = a
//	}
//
// With GetOrLoad
//
//	jobs := cache.New[JobKey, []Result](cache.Options[JobKey, []Result]{
//	    Name:    "job_results",
//	    MaxSize: 10,
//	    TTL:     5 * time.Minute,
//	    Loader: func(ctx context.Context, k JobKey) ([]Result, error) {
//	        return platform.FetchResults(ctx, k)
//	    },
//	})
//	res, err := jobs.GetOrLoad(ctx, JobKey{Tenant: "acme", Job: "42"})
//
// Exporting metrics
//
//	m := prom.NewCacheAdapter(nil, "shardgate", "accounts")
//	c := cache.New[string, Account](cache.Options[string, Account]{
//	    Name: "accounts", MaxSize: 100, TTL: time.Hour, Metrics: m,
//	})
package cache
