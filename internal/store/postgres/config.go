package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/hrygo/divinesense/internal/model"
)

// PutConfigOverride upserts a tier/key override, storing Params as a
// JSONB blob so cascading merges (internal/configresolver) work against
// the same partial-object semantics spec.md §4.6 describes.
func (d *DB) PutConfigOverride(ctx context.Context, o model.ConfigOverrides) error {
	body, err := json.Marshal(o.Params)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config override params")
	}

	stmt := `
		INSERT INTO config_override (tier, key, params, updated_at)
		VALUES (` + placeholders(3) + `, now())
		ON CONFLICT (tier, key) DO UPDATE SET params = EXCLUDED.params, updated_at = now()
	`
	_, err = d.db.ExecContext(ctx, stmt, string(o.Tier), o.Key, body)
	if err != nil {
		return errors.Wrap(err, "failed to upsert config override")
	}
	return nil
}

// GetConfigOverride fetches the override for tier/key. Returns
// (nil, nil) when no row exists — an absent override is not an error,
// since the cascading resolver falls through to the next tier.
func (d *DB) GetConfigOverride(ctx context.Context, tier model.ConfigTier, key string) (*model.ConfigOverrides, error) {
	var body []byte
	err := d.db.QueryRowContext(ctx,
		`SELECT params FROM config_override WHERE tier = `+placeholder(1)+` AND key = `+placeholder(2),
		string(tier), key,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get config override")
	}

	var params model.LLMParams
	if err := json.Unmarshal(body, &params); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config override params")
	}

	return &model.ConfigOverrides{Tier: tier, Key: key, Params: params}, nil
}

// DeleteConfigOverride removes a tier/key override if present.
func (d *DB) DeleteConfigOverride(ctx context.Context, tier model.ConfigTier, key string) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM config_override WHERE tier = `+placeholder(1)+` AND key = `+placeholder(2),
		string(tier), key,
	)
	if err != nil {
		return errors.Wrap(err, "failed to delete config override")
	}
	return nil
}
