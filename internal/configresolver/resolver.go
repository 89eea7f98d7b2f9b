// Package configresolver cascade-resolves LLM parameter overrides across
// the four config tiers (admin, user, channel, personality), per spec.md
// §4.6. Grounded on the teacher's ai/router/service.go cache-first
// layering (Service.cache, RouterCache's Capacity/DefaultTTL, a
// sync-guarded map) generalized from intent-routing cache to
// config-resolution cache, with invalidation wired through
// internal/pubsub instead of the teacher's (absent) pub/sub client.
package configresolver

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/divinesense/internal/cachekit"
	"github.com/hrygo/divinesense/internal/model"
	"github.com/hrygo/divinesense/internal/pubsub"
)

const (
	cacheCapacity = 500
	defaultTTL    = 5 * time.Minute
)

// Store is the persistence surface this resolver needs from
// internal/store/postgres.
type Store interface {
	GetConfigOverride(ctx context.Context, tier model.ConfigTier, key string) (*model.ConfigOverrides, error)
}

// Query identifies which override rows apply to a resolution request.
type Query struct {
	UserID        string
	ChannelID     string
	PersonalityID string
}

func (q Query) cacheKey() string {
	return strings.Join([]string{q.UserID, q.ChannelID, q.PersonalityID}, ":")
}

// Resolver cascade-resolves LLM params and caches the result with a TTL,
// invalidated early via pubsub channel notifications.
type Resolver struct {
	store  Store
	broker pubsub.Broker
	cache  *cachekit.LRUCache[string, model.ResolvedConfig]
	stopCh chan struct{}
}

// New builds a Resolver subscribed to every invalidation channel a tier
// write can publish to.
func New(store Store, broker pubsub.Broker) *Resolver {
	r := &Resolver{
		store:  store,
		broker: broker,
		cache:  cachekit.New[string, model.ResolvedConfig](cacheCapacity, defaultTTL),
		stopCh: make(chan struct{}),
	}
	if broker != nil {
		r.watchInvalidations()
	}
	return r
}

// watchInvalidations subscribes to the admin wildcard channel plus the
// per-tier cascade channels, purging matching cache entries on receipt.
func (r *Resolver) watchInvalidations() {
	channels := []string{
		pubsub.LLMConfigAdminChannel,
		pubsub.ConfigCascadeChannel("admin", "*"),
		pubsub.ConfigCascadeChannel("user", "*"),
		pubsub.ConfigCascadeChannel("channel", "*"),
		pubsub.ConfigCascadeChannel("personality", "*"),
	}
	for _, ch := range channels {
		sub, unsubscribe := r.broker.Subscribe(ch)
		go func(sub *pubsub.Subscription, unsubscribe func()) {
			defer unsubscribe()
			for {
				select {
				case payload, ok := <-sub.C:
					if !ok {
						return
					}
					r.handleInvalidation(payload)
				case <-r.stopCh:
					return
				}
			}
		}(sub, unsubscribe)
	}
}

// handleInvalidation purges the whole resolution cache on any tier
// notification. The composite cache key (userId:channelId:personalityId)
// cannot be pattern-matched by a single tier's id, so invalidation here is
// coarse rather than surgical — acceptable since this cache is a pure
// performance optimization, never a correctness dependency.
func (r *Resolver) handleInvalidation(payload []byte) {
	var msg struct {
		Tier string `json:"tier"`
		Key  string `json:"key"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		slog.Warn("config invalidation payload malformed", "error", err)
	}
	r.cache.Clear()
}

// Stop releases the invalidation-watching goroutines.
func (r *Resolver) Stop() {
	close(r.stopCh)
}

// Resolve cascades personality -> channel -> user -> admin -> hard-coded
// defaults, merging field-by-field (higher-priority tiers win per field),
// per spec.md §4.6.
func (r *Resolver) Resolve(ctx context.Context, q Query) (model.ResolvedConfig, error) {
	if cached, ok := r.cache.Get(q.cacheKey()); ok {
		return cached, nil
	}

	resolved, err := r.resolveUncached(ctx, q)
	if err != nil {
		return model.ResolvedConfig{}, err
	}

	r.cache.Set(q.cacheKey(), resolved, defaultTTL)
	return resolved, nil
}

func (r *Resolver) resolveUncached(ctx context.Context, q Query) (model.ResolvedConfig, error) {
	merged := model.LLMParams{}
	source := model.ConfigSourceSystemDefault
	sourceName := "default"

	apply := func(tier model.ConfigTier, key string, nextSource model.ConfigSource, required bool) error {
		if key == "" && !required {
			return nil
		}
		override, err := r.store.GetConfigOverride(ctx, tier, key)
		if err != nil {
			return err
		}
		if override == nil {
			return nil
		}
		merged = mergeLLMParams(merged, override.Params)
		source = nextSource
		if key != "" {
			sourceName = key
		} else {
			sourceName = "admin"
		}
		return nil
	}

	// Lowest priority first so later calls' present fields win the merge.
	// Admin is a singleton keyed by the empty string.
	if err := apply(model.ConfigTierAdmin, "", model.ConfigSourceUserDefault, true); err != nil {
		return model.ResolvedConfig{}, err
	}
	if err := apply(model.ConfigTierUser, q.UserID, model.ConfigSourceUserDefault, false); err != nil {
		return model.ResolvedConfig{}, err
	}
	if err := apply(model.ConfigTierChannel, q.ChannelID, model.ConfigSourceContextOverride, false); err != nil {
		return model.ResolvedConfig{}, err
	}
	if err := apply(model.ConfigTierPersonality, q.PersonalityID, model.ConfigSourceContextOverride, false); err != nil {
		return model.ResolvedConfig{}, err
	}

	if isEmpty(merged) {
		source = model.ConfigSourceSystemDefault
		sourceName = ""
	}

	return model.ResolvedConfig{Config: merged, Source: source, SourceName: sourceName}, nil
}
