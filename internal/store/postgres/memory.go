package postgres

import (
	"context"
	"database/sql"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/divinesense/internal/model"
)

// validateVector enforces spec.md §6's embeddings contract: every
// component must be a finite number before it is handed to the pgvector
// driver, rejecting NaN/Infinity/non-numbers that could otherwise corrupt
// a hand-built vector literal.
func validateVector(v []float32) error {
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return errors.Errorf("embedding component %d is not finite: %v", i, f)
		}
	}
	return nil
}

// InsertMemory writes a new memory row, per spec.md §3's invariant that
// embeddings are written once per row and immutable thereafter. m.ID is
// assigned here if empty.
func (d *DB) InsertMemory(ctx context.Context, m *model.Memory) (string, error) {
	if err := validateVector(m.Embedding); err != nil {
		return "", errors.Wrap(err, "failed to insert memory")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	stmt := `
		INSERT INTO memory (
			id, persona_id, personality_id, content, embedding, canon_scope, summary_type,
			channel_id, guild_id, session_id, senders, message_ids,
			chunk_group_id, chunk_index, total_chunks, created_at
		) VALUES (` + placeholders(16) + `)
	`

	_, err := d.db.ExecContext(ctx, stmt,
		m.ID, m.PersonaID, m.PersonalityID, m.Content, pgvector.NewVector(m.Embedding), string(m.CanonScope), m.SummaryType,
		m.ChannelID, m.GuildID, m.SessionID, pq.Array(m.Senders), pq.Array(m.MessageIDs),
		m.ChunkGroupID, m.ChunkIndex, m.TotalChunks, m.CreatedAt,
	)
	if err != nil {
		return "", errors.Wrap(err, "failed to insert memory")
	}
	return m.ID, nil
}

// DeleteMemory soft-deletes a memory row by stamping deleted_at, rather
// than removing it outright — see DESIGN.md's Open Question decision on
// session-scoped memory deletion: a hard delete would race a concurrent
// reader mid-query, where a soft delete only needs Query to filter
// deleted_at IS NULL.
func (d *DB) DeleteMemory(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `UPDATE memory SET deleted_at = now() WHERE id = `+placeholder(1)+` AND deleted_at IS NULL`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete memory")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errors.Errorf("memory %s not found or already deleted", id)
	}
	return nil
}

// Query performs a pgvector cosine-similarity search with scope and
// owner filters, per spec.md §4.5.
func (d *DB) Query(ctx context.Context, vector []float32, opts model.MemoryQueryOptions, sessionID string) ([]model.ScoredMemory, error) {
	if err := validateVector(vector); err != nil {
		return nil, errors.Wrap(err, "failed to query memory")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = model.DefaultMemoryQueryOptions().Limit
	}
	threshold := opts.ScoreThreshold
	if threshold <= 0 {
		threshold = model.DefaultMemoryQueryOptions().ScoreThreshold
	}
	distanceThreshold := float64(1 - threshold)

	where := []string{"deleted_at IS NULL"}
	args := []any{}
	argIdx := 1

	addArg := func(clause string, val any) {
		where = append(where, clause+placeholder(argIdx))
		args = append(args, val)
		argIdx++
	}

	addArg("persona_id = ", opts.PersonaID)

	if opts.PersonalityID != "" {
		addArg("personality_id = ", opts.PersonalityID)
	}
	if opts.ExcludeNewerThan != nil {
		addArg("created_at <= ", *opts.ExcludeNewerThan)
	}
	if len(opts.ExcludeIDs) > 0 {
		where = append(where, "id != ALL("+placeholder(argIdx)+")")
		args = append(args, pq.Array(opts.ExcludeIDs))
		argIdx++
	}
	if len(opts.ChannelIDs) > 0 {
		where = append(where, "channel_id = ANY("+placeholder(argIdx)+")")
		args = append(args, pq.Array(opts.ChannelIDs))
		argIdx++
	}

	scopeClause := buildScopeClause(opts.AllowedScopes, opts.PersonaID, sessionID, &args, &argIdx)
	where = append(where, scopeClause)

	vecArgIdx := argIdx
	args = append(args, pgvector.NewVector(vector))
	argIdx++
	distArgIdx := argIdx
	args = append(args, distanceThreshold)
	argIdx++
	limitArgIdx := argIdx
	args = append(args, limit)

	query := `
		SELECT id, persona_id, personality_id, content, canon_scope, summary_type,
			channel_id, guild_id, session_id, senders, message_ids,
			chunk_group_id, chunk_index, total_chunks, created_at,
			1 - (embedding <=> ` + placeholder(vecArgIdx) + `) AS score
		FROM memory
		WHERE ` + strings.Join(where, " AND ") + `
			AND (embedding <=> ` + placeholder(vecArgIdx) + `) < ` + placeholder(distArgIdx) + `
		ORDER BY embedding <=> ` + placeholder(vecArgIdx) + ` ASC
		LIMIT ` + placeholder(limitArgIdx)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query memory")
	}
	defer rows.Close()

	var out []model.ScoredMemory
	for rows.Next() {
		var m model.Memory
		var canonScope string
		var channelID, guildID, sessionIDCol sql.NullString
		var chunkGroupID sql.NullString
		var chunkIndex, totalChunks sql.NullInt32
		var score float64

		err := rows.Scan(
			&m.ID, &m.PersonaID, &m.PersonalityID, &m.Content, &canonScope, &m.SummaryType,
			&channelID, &guildID, &sessionIDCol, pq.Array(&m.Senders), pq.Array(&m.MessageIDs),
			&chunkGroupID, &chunkIndex, &totalChunks, &m.CreatedAt,
			&score,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan memory row")
		}

		m.CanonScope = model.CanonScope(canonScope)
		if channelID.Valid {
			m.ChannelID = &channelID.String
		}
		if guildID.Valid {
			m.GuildID = &guildID.String
		}
		if sessionIDCol.Valid {
			m.SessionID = &sessionIDCol.String
		}
		if chunkGroupID.Valid {
			m.ChunkGroupID = &chunkGroupID.String
		}
		if chunkIndex.Valid {
			idx := int(chunkIndex.Int32)
			m.ChunkIndex = &idx
		}
		if totalChunks.Valid {
			total := int(totalChunks.Int32)
			m.TotalChunks = &total
		}

		out = append(out, model.ScoredMemory{Memory: m, Score: float32(score)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// buildScopeClause implements spec.md §4.5's scope filtering: personal
// rows must match the requesting user (carried via personaID — see
// model.Memory's invariant that canonScope=personal implies a userId
// equivalent recoverable via personaId), session rows must match the
// active session, and global rows match everyone.
func buildScopeClause(allowed []model.CanonScope, personaID, sessionID string, args *[]any, argIdx *int) string {
	if len(allowed) == 0 {
		allowed = []model.CanonScope{model.CanonScopeGlobal, model.CanonScopePersonal, model.CanonScopeSession}
	}

	var parts []string
	for _, scope := range allowed {
		switch scope {
		case model.CanonScopeGlobal:
			parts = append(parts, "canon_scope = 'global'")
		case model.CanonScopePersonal:
			parts = append(parts, "(canon_scope = 'personal' AND persona_id = "+placeholder(*argIdx)+")")
			*args = append(*args, personaID)
			*argIdx++
		case model.CanonScopeSession:
			if sessionID == "" {
				continue
			}
			parts = append(parts, "(canon_scope = 'session' AND session_id = "+placeholder(*argIdx)+")")
			*args = append(*args, sessionID)
			*argIdx++
		}
	}

	if len(parts) == 0 {
		return "1 = 0"
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}
