package configresolver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/divinesense/internal/model"
	"github.com/hrygo/divinesense/internal/pubsub"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

type fakeConfigStore struct {
	overrides map[string]*model.ConfigOverrides
	calls     int
}

func newFakeConfigStore() *fakeConfigStore {
	return &fakeConfigStore{overrides: map[string]*model.ConfigOverrides{}}
}

func (s *fakeConfigStore) key(tier model.ConfigTier, key string) string {
	return string(tier) + ":" + key
}

func (s *fakeConfigStore) put(tier model.ConfigTier, key string, params model.LLMParams) {
	s.overrides[s.key(tier, key)] = &model.ConfigOverrides{Tier: tier, Key: key, Params: params}
}

func (s *fakeConfigStore) GetConfigOverride(_ context.Context, tier model.ConfigTier, key string) (*model.ConfigOverrides, error) {
	s.calls++
	return s.overrides[s.key(tier, key)], nil
}

func TestResolve_PersonalityOverridesWinOverUser(t *testing.T) {
	store := newFakeConfigStore()
	store.put(model.ConfigTierUser, "user-1", model.LLMParams{TopP: floatPtr(0.5)})
	store.put(model.ConfigTierPersonality, "persona-1", model.LLMParams{TopP: floatPtr(0.9)})

	r := New(store, nil)
	resolved, err := r.Resolve(context.Background(), Query{UserID: "user-1", PersonalityID: "persona-1"})
	require.NoError(t, err)
	require.NotNil(t, resolved.Config.TopP)
	assert.Equal(t, 0.9, *resolved.Config.TopP)
	assert.Equal(t, model.ConfigSourceContextOverride, resolved.Source)
}

func TestResolve_MergesPartialFieldsAcrossTiers(t *testing.T) {
	store := newFakeConfigStore()
	store.put(model.ConfigTierUser, "user-1", model.LLMParams{TopP: floatPtr(0.5), TopK: intPtr(40)})
	store.put(model.ConfigTierPersonality, "persona-1", model.LLMParams{TopP: floatPtr(0.9)})

	r := New(store, nil)
	resolved, err := r.Resolve(context.Background(), Query{UserID: "user-1", PersonalityID: "persona-1"})
	require.NoError(t, err)
	require.NotNil(t, resolved.Config.TopP)
	require.NotNil(t, resolved.Config.TopK)
	assert.Equal(t, 0.9, *resolved.Config.TopP)
	assert.Equal(t, 40, *resolved.Config.TopK)
}

func TestResolve_FallsBackToSystemDefaultWhenNothingConfigured(t *testing.T) {
	store := newFakeConfigStore()
	r := New(store, nil)
	resolved, err := r.Resolve(context.Background(), Query{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, model.ConfigSourceSystemDefault, resolved.Source)
	assert.Nil(t, resolved.Config.TopP)
}

func TestResolve_CachesResult(t *testing.T) {
	store := newFakeConfigStore()
	store.put(model.ConfigTierUser, "user-1", model.LLMParams{TopP: floatPtr(0.5)})

	r := New(store, nil)
	q := Query{UserID: "user-1"}

	_, err := r.Resolve(context.Background(), q)
	require.NoError(t, err)
	callsAfterFirst := store.calls

	_, err = r.Resolve(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, store.calls)
}

func TestResolve_InvalidationClearsCache(t *testing.T) {
	store := newFakeConfigStore()
	store.put(model.ConfigTierUser, "user-1", model.LLMParams{TopP: floatPtr(0.5)})

	broker := pubsub.NewInProcessBroker()
	r := New(store, broker)
	defer r.Stop()
	q := Query{UserID: "user-1"}

	_, err := r.Resolve(context.Background(), q)
	require.NoError(t, err)
	callsAfterFirst := store.calls

	payload, _ := json.Marshal(map[string]string{"tier": "user", "key": "user-1"})
	require.NoError(t, broker.Publish(context.Background(), pubsub.ConfigCascadeChannel("user", "*"), payload))

	// Give the subscriber goroutine a moment to process the invalidation.
	time.Sleep(50 * time.Millisecond)

	_, err = r.Resolve(context.Background(), q)
	require.NoError(t, err)
	assert.Greater(t, store.calls, callsAfterFirst)
}

func TestMergeLLMParams_PreservesUnsetFields(t *testing.T) {
	base := model.LLMParams{TopP: floatPtr(0.5), Route: "fast"}
	override := model.LLMParams{TopK: intPtr(10)}

	merged := mergeLLMParams(base, override)
	require.NotNil(t, merged.TopP)
	assert.Equal(t, 0.5, *merged.TopP)
	assert.Equal(t, "fast", merged.Route)
	require.NotNil(t, merged.TopK)
	assert.Equal(t, 10, *merged.TopK)
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, isEmpty(model.LLMParams{}))
	assert.False(t, isEmpty(model.LLMParams{Route: "fast"}))
}
