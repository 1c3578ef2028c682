package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/shardgate/cache"
	"github.com/IvanBrykalov/shardgate/config"
	"github.com/IvanBrykalov/shardgate/metrics/prom"
)

// loadDelay stands in for the upstream round trip a cache miss costs.
const loadDelay = 50 * time.Millisecond

type tenant struct {
	ID   string `json:"id"`
	Plan string `json:"plan"`
}

type catalog struct {
	Tools   []string  `json:"tools"`
	BuiltAt time.Time `json:"builtAt"`
}

// resources are the upstream data the tools read, one cache per type.
type resources struct {
	tenants cache.Cache[string, tenant]
	grants  cache.Cache[string, []string]
	catalog cache.Cache[string, catalog]
}

func newResources(cfg config.Caches, caches *cache.Registry, reg prometheus.Registerer) *resources {
	tenantTier, compositeTier, blobTier := cfg.Tenant(), cfg.Composite(), cfg.Blob()
	return &resources{
		tenants: cache.New(cache.Options[string, tenant]{
			Name:     "tenants",
			MaxSize:  tenantTier.MaxSize,
			TTL:      tenantTier.TTL,
			Registry: caches,
			Metrics:  prom.NewCacheAdapter(reg, "shardgate", "tenants"),
			Loader:   loadTenant,
		}),
		grants: cache.New(cache.Options[string, []string]{
			Name:     "grants",
			MaxSize:  compositeTier.MaxSize,
			TTL:      compositeTier.TTL,
			Registry: caches,
			Metrics:  prom.NewCacheAdapter(reg, "shardgate", "grants"),
			Loader:   loadGrants,
		}),
		catalog: cache.New(cache.Options[string, catalog]{
			Name:     "catalog",
			MaxSize:  blobTier.MaxSize,
			TTL:      blobTier.TTL,
			Registry: caches,
			Metrics:  prom.NewCacheAdapter(reg, "shardgate", "catalog"),
			Loader:   loadCatalog,
			Validate: func(c catalog) bool { return len(c.Tools) > 0 },
		}),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func loadTenant(ctx context.Context, id string) (tenant, error) {
	if err := sleepCtx(ctx, loadDelay); err != nil {
		return tenant{}, err
	}
	plan := "free"
	if strings.HasPrefix(id, "ent-") {
		plan = "enterprise"
	}
	return tenant{ID: id, Plan: plan}, nil
}

// loadGrants takes a "tenant/user" key.
func loadGrants(ctx context.Context, key string) ([]string, error) {
	tenantID, user, ok := strings.Cut(key, "/")
	if !ok || tenantID == "" || user == "" {
		return nil, fmt.Errorf("grants key %q: want tenant/user", key)
	}
	if err := sleepCtx(ctx, loadDelay); err != nil {
		return nil, err
	}
	return []string{"read:" + tenantID, "invoke:" + user}, nil
}

func loadCatalog(ctx context.Context, _ string) (catalog, error) {
	if err := sleepCtx(ctx, 4*loadDelay); err != nil {
		return catalog{}, err
	}
	return catalog{Tools: []string{"describe_tenant", "list_grants"}, BuiltAt: time.Now().UTC()}, nil
}
