package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"vodpick/internal/media"
)

// ErrInvalidSkip rejects negative intro or outro lengths.
var ErrInvalidSkip = errors.New("skip seconds must not be negative")

// SkipConfig returns the skip settings for ref. A title without settings
// gets a disabled config.
func (s *Store) SkipConfig(ctx context.Context, ref media.SourceRef) (media.SkipConfig, error) {
	cfg := media.SkipConfig{Source: ref.Source, ID: ref.ID}
	err := s.conn.QueryRowContext(ctx,
		`SELECT enabled, intro_seconds, outro_seconds FROM skip_configs WHERE source = ? AND vod_id = ?`,
		ref.Source, ref.ID,
	).Scan(&cfg.Enabled, &cfg.IntroSeconds, &cfg.OutroSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading skip config %s: %w", ref, err)
	}
	return cfg, nil
}

// SetSkipConfig stores skip settings for cfg's title.
func (s *Store) SetSkipConfig(ctx context.Context, cfg media.SkipConfig) error {
	if cfg.Source == "" || cfg.ID == "" {
		return fmt.Errorf("saving skip config: missing source or id")
	}
	if cfg.IntroSeconds < 0 || cfg.OutroSeconds < 0 {
		return ErrInvalidSkip
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO skip_configs (source, vod_id, enabled, intro_seconds, outro_seconds)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (source, vod_id) DO UPDATE SET
			enabled       = excluded.enabled,
			intro_seconds = excluded.intro_seconds,
			outro_seconds = excluded.outro_seconds`,
		cfg.Source, cfg.ID, cfg.Enabled, cfg.IntroSeconds, cfg.OutroSeconds,
	)
	if err != nil {
		return fmt.Errorf("saving skip config %s/%s: %w", cfg.Source, cfg.ID, err)
	}
	return nil
}
