package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/samber/mo"

	"vodpick/internal/media"
)

// DefaultRecentLimit is the history length shown when no limit is given.
const DefaultRecentLimit = 50

const playColumns = `source, vod_id, title, year, poster, search_title, episode, total_episodes, position, updated_at`

// GetResumePosition returns the saved position for ref, if any.
func (s *Store) GetResumePosition(ctx context.Context, ref media.SourceRef) (mo.Option[media.ResumePosition], error) {
	rec, err := s.PlayRecord(ctx, ref)
	if errors.Is(err, media.ErrNotFound) {
		return mo.None[media.ResumePosition](), nil
	}
	if err != nil {
		return mo.None[media.ResumePosition](), err
	}
	return mo.Some(rec.ResumePosition), nil
}

// SaveResumePosition upserts the play record for the record's source and id.
// Empty metadata never overwrites what was stored before.
func (s *Store) SaveResumePosition(ctx context.Context, rec media.PlayRecord) error {
	if rec.Source == "" || rec.ID == "" {
		return fmt.Errorf("saving play record: missing source or id")
	}
	if rec.Seconds < 0 {
		rec.Seconds = 0
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO play_records (`+playColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, vod_id) DO UPDATE SET
			title          = COALESCE(NULLIF(excluded.title, ''), title),
			year           = COALESCE(NULLIF(excluded.year, ''), year),
			poster         = COALESCE(NULLIF(excluded.poster, ''), poster),
			search_title   = COALESCE(NULLIF(excluded.search_title, ''), search_title),
			episode        = excluded.episode,
			total_episodes = CASE WHEN excluded.total_episodes > 0 THEN excluded.total_episodes ELSE total_episodes END,
			position       = excluded.position,
			updated_at     = excluded.updated_at`,
		rec.Source, rec.ID, rec.Title, rec.Year, rec.Poster, rec.SearchTitle,
		rec.Episode, rec.TotalEpisodes, rec.Seconds, s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving play record %s: %w", media.SourceRef{Source: rec.Source, ID: rec.ID}, err)
	}
	return nil
}

// PlayRecord returns the record for ref or media.ErrNotFound.
func (s *Store) PlayRecord(ctx context.Context, ref media.SourceRef) (media.PlayRecord, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+playColumns+` FROM play_records WHERE source = ? AND vod_id = ?`,
		ref.Source, ref.ID)

	rec, err := scanPlayRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return media.PlayRecord{}, fmt.Errorf("play record %s: %w", ref, media.ErrNotFound)
	}
	if err != nil {
		return media.PlayRecord{}, fmt.Errorf("reading play record %s: %w", ref, err)
	}
	return rec, nil
}

// RecentPlays returns play records, most recently updated first.
func (s *Store) RecentPlays(ctx context.Context, limit int) ([]media.PlayRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+playColumns+` FROM play_records ORDER BY updated_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing play records: %w", err)
	}
	defer rows.Close()

	var records []media.PlayRecord
	for rows.Next() {
		rec, err := scanPlayRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning play record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeletePlayRecord removes the record for ref.
func (s *Store) DeletePlayRecord(ctx context.Context, ref media.SourceRef) error {
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM play_records WHERE source = ? AND vod_id = ?`, ref.Source, ref.ID)
	if err != nil {
		return fmt.Errorf("deleting play record %s: %w", ref, err)
	}
	return requireAffected(res, ref)
}

// ClearPlayRecords removes every play record.
func (s *Store) ClearPlayRecords(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM play_records`); err != nil {
		return fmt.Errorf("clearing play records: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlayRecord(row scanner) (media.PlayRecord, error) {
	var rec media.PlayRecord
	err := row.Scan(
		&rec.Source, &rec.ID, &rec.Title, &rec.Year, &rec.Poster, &rec.SearchTitle,
		&rec.Episode, &rec.TotalEpisodes, &rec.Seconds, &rec.UpdatedAt,
	)
	return rec, err
}

func requireAffected(res sql.Result, ref media.SourceRef) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", ref, media.ErrNotFound)
	}
	return nil
}
