// Package memorystore implements the write/query contract of spec.md
// §4.5's Vector Memory Store: addMemory embeds text and durably writes a
// row through the pending-memory outbox, query embeds the search text and
// delegates to the pgvector similarity search in internal/store/postgres.
//
// Grounded on the teacher's ai/memory/simple.Generator: the same
// store/llm/embedder dependency shape, the same "embed then persist, log
// and return an error on failure" flow, generalized from episodic-memory
// generation to the spec's addMemory/query contract.
package memorystore

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/divinesense/internal/embedding"
	"github.com/hrygo/divinesense/internal/model"
)

// Embedder computes a vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) (embedding.Vector, error)
}

// Store is the persistence surface memorystore needs from
// internal/store/postgres.
type Store interface {
	InsertPendingMemory(ctx context.Context, pm *model.PendingMemory) (string, error)
	DeletePendingMemory(ctx context.Context, id string) error
	MarkPendingMemoryFailed(ctx context.Context, id, lastError string) error
	InsertMemory(ctx context.Context, m *model.Memory) (string, error)
	DeleteMemory(ctx context.Context, id string) error
	Query(ctx context.Context, vector []float32, opts model.MemoryQueryOptions, sessionID string) ([]model.ScoredMemory, error)
}

// AddMemoryRequest carries everything addMemory needs besides the
// embedding vector, which is computed internally.
type AddMemoryRequest struct {
	ChunkGroupID  *string
	ChunkIndex    *int
	TotalChunks   *int
	ChannelID     *string
	GuildID       *string
	SessionID     *string
	PersonaID     string
	PersonalityID string
	Content       string
	SummaryType   string
	CanonScope    model.CanonScope
	Senders       []string
	MessageIDs    []string
}

// MemoryStore is the Vector Memory Store component of spec.md §4.5.
type MemoryStore struct {
	store    Store
	embedder Embedder
}

// New builds a MemoryStore.
func New(store Store, embedder Embedder) *MemoryStore {
	return &MemoryStore{store: store, embedder: embedder}
}

// AddMemory embeds req.Content, writes a PendingMemory outbox row first,
// then the real memory row, deleting the outbox row on success. On
// failure the outbox row is updated with attempts/lastError so a later
// retry sweep can pick it back up, per spec.md §4.5/§4.9.
func (m *MemoryStore) AddMemory(ctx context.Context, req AddMemoryRequest) (string, error) {
	memo := model.Memory{
		PersonaID:     req.PersonaID,
		PersonalityID: req.PersonalityID,
		Content:       req.Content,
		CanonScope:    req.CanonScope,
		SummaryType:   req.SummaryType,
		ChannelID:     req.ChannelID,
		GuildID:       req.GuildID,
		SessionID:     req.SessionID,
		Senders:       req.Senders,
		MessageIDs:    req.MessageIDs,
		ChunkGroupID:  req.ChunkGroupID,
		ChunkIndex:    req.ChunkIndex,
		TotalChunks:   req.TotalChunks,
		CreatedAt:     time.Now(),
	}

	pendingID, err := m.store.InsertPendingMemory(ctx, &model.PendingMemory{Memory: memo})
	if err != nil {
		return "", errors.Wrap(err, "failed to write pending memory")
	}
	memo.ID = pendingID

	id, err := m.commit(ctx, pendingID, &memo)
	if err != nil {
		return "", err
	}
	return id, nil
}

// commit embeds and inserts the real memory row, marking the outbox row
// failed (not deleted) if either step errors.
func (m *MemoryStore) commit(ctx context.Context, pendingID string, memo *model.Memory) (string, error) {
	vec, err := m.embedder.Embed(ctx, memo.Content)
	if err != nil {
		m.markFailed(ctx, pendingID, err)
		return "", errors.Wrap(err, "failed to embed memory content")
	}
	memo.Embedding = vec

	id, err := m.store.InsertMemory(ctx, memo)
	if err != nil {
		m.markFailed(ctx, pendingID, err)
		return "", errors.Wrap(err, "failed to insert memory")
	}

	if err := m.store.DeletePendingMemory(ctx, pendingID); err != nil {
		slog.Warn("memory committed but pending outbox row not cleared", "pending_id", pendingID, "error", err)
	}
	return id, nil
}

func (m *MemoryStore) markFailed(ctx context.Context, pendingID string, cause error) {
	if err := m.store.MarkPendingMemoryFailed(ctx, pendingID, cause.Error()); err != nil {
		slog.Error("failed to mark pending memory failed", "pending_id", pendingID, "error", err)
	}
}

// Retry re-attempts the embed+insert commit for an already-recorded
// pending row, satisfying internal/outbox.Committer so the outbox sweep
// can drive retries without owning embedding/insert logic itself.
func (m *MemoryStore) Retry(ctx context.Context, pm *model.PendingMemory) error {
	memo := pm.Memory
	_, err := m.commit(ctx, memo.ID, &memo)
	return err
}

// Query embeds text and runs a scoped similarity search, per spec.md
// §4.5's query contract.
func (m *MemoryStore) Query(ctx context.Context, text string, opts model.MemoryQueryOptions, sessionID string) ([]model.ScoredMemory, error) {
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed query text")
	}
	return m.store.Query(ctx, vec, opts, sessionID)
}
