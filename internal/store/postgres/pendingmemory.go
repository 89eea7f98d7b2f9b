package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/divinesense/internal/model"
)

// InsertPendingMemory writes the outbox row a caller creates before
// attempting to embed and insert the real memory row, per spec.md §4.5.
// Returns the assigned id.
func (d *DB) InsertPendingMemory(ctx context.Context, pm *model.PendingMemory) (string, error) {
	if pm.Memory.ID == "" {
		pm.Memory.ID = uuid.NewString()
	}

	stmt := `
		INSERT INTO pending_memory (
			id, persona_id, personality_id, content, canon_scope, summary_type,
			channel_id, guild_id, session_id, senders, message_ids, attempts
		) VALUES (` + placeholders(12) + `)
	`
	_, err := d.db.ExecContext(ctx, stmt,
		pm.Memory.ID, pm.Memory.PersonaID, pm.Memory.PersonalityID, pm.Memory.Content, string(pm.Memory.CanonScope), pm.Memory.SummaryType,
		pm.Memory.ChannelID, pm.Memory.GuildID, pm.Memory.SessionID, pq.Array(pm.Memory.Senders), pq.Array(pm.Memory.MessageIDs), pm.Attempts,
	)
	if err != nil {
		return "", errors.Wrap(err, "failed to insert pending memory")
	}
	return pm.Memory.ID, nil
}

// DeletePendingMemory removes the outbox row once the real memory insert
// has succeeded.
func (d *DB) DeletePendingMemory(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM pending_memory WHERE id = `+placeholder(1), id)
	if err != nil {
		return errors.Wrap(err, "failed to delete pending memory")
	}
	return nil
}

// MarkPendingMemoryFailed increments attempts and records the failure
// reason, per spec.md §4.5 ("On exception, the pending row is updated
// with attempts++, lastAttemptAt = now, lastError = message").
func (d *DB) MarkPendingMemoryFailed(ctx context.Context, id, lastError string) error {
	stmt := `
		UPDATE pending_memory
		SET attempts = attempts + 1, last_attempt_at = now(), last_error = ` + placeholder(2) + `
		WHERE id = ` + placeholder(1)
	_, err := d.db.ExecContext(ctx, stmt, id, lastError)
	if err != nil {
		return errors.Wrap(err, "failed to mark pending memory failed")
	}
	return nil
}

// DrainPendingMemory lists up to limit outstanding outbox rows (100 when
// limit <= 0), for the periodic retry job described in spec.md §4.5.
func (d *DB) DrainPendingMemory(ctx context.Context, limit int) ([]*model.PendingMemory, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, persona_id, personality_id, content, canon_scope, summary_type,
			channel_id, guild_id, session_id, senders, message_ids, attempts, last_attempt_at, last_error
		FROM pending_memory
		ORDER BY id ASC
		LIMIT ` + placeholder(1)

	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to drain pending memory")
	}
	defer rows.Close()

	var out []*model.PendingMemory
	for rows.Next() {
		var pm model.PendingMemory
		var canonScope string
		var channelID, guildID, sessionID, lastError sql.NullString

		err := rows.Scan(
			&pm.Memory.ID, &pm.Memory.PersonaID, &pm.Memory.PersonalityID, &pm.Memory.Content, &canonScope, &pm.Memory.SummaryType,
			&channelID, &guildID, &sessionID, pq.Array(&pm.Memory.Senders), pq.Array(&pm.Memory.MessageIDs),
			&pm.Attempts, &pm.LastAttemptAt, &lastError,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan pending memory row")
		}

		pm.Memory.CanonScope = model.CanonScope(canonScope)
		if channelID.Valid {
			pm.Memory.ChannelID = &channelID.String
		}
		if guildID.Valid {
			pm.Memory.GuildID = &guildID.String
		}
		if sessionID.Valid {
			pm.Memory.SessionID = &sessionID.String
		}
		if lastError.Valid {
			pm.LastError = lastError.String
		}

		out = append(out, &pm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
