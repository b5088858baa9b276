package store

import (
	"context"
	"fmt"

	"vodpick/internal/media"
)

// AddFavorite bookmarks a title. Adding an existing favorite refreshes its
// metadata and keeps the original creation time.
func (s *Store) AddFavorite(ctx context.Context, fav media.Favorite) error {
	if fav.Source == "" || fav.ID == "" {
		return fmt.Errorf("adding favorite: missing source or id")
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO favorites (source, vod_id, title, year, poster, total_episodes, search_title, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, vod_id) DO UPDATE SET
			title          = excluded.title,
			year           = excluded.year,
			poster         = excluded.poster,
			total_episodes = excluded.total_episodes,
			search_title   = excluded.search_title`,
		fav.Source, fav.ID, fav.Title, fav.Year, fav.Poster, fav.TotalEpisodes, fav.SearchTitle, s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("adding favorite %s/%s: %w", fav.Source, fav.ID, err)
	}
	return nil
}

// RemoveFavorite deletes a bookmark.
func (s *Store) RemoveFavorite(ctx context.Context, ref media.SourceRef) error {
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM favorites WHERE source = ? AND vod_id = ?`, ref.Source, ref.ID)
	if err != nil {
		return fmt.Errorf("removing favorite %s: %w", ref, err)
	}
	return requireAffected(res, ref)
}

// IsFavorite reports whether ref is bookmarked.
func (s *Store) IsFavorite(ctx context.Context, ref media.SourceRef) (bool, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM favorites WHERE source = ? AND vod_id = ?`, ref.Source, ref.ID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking favorite %s: %w", ref, err)
	}
	return n > 0, nil
}

// Favorites lists bookmarks, newest first.
func (s *Store) Favorites(ctx context.Context) ([]media.Favorite, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT source, vod_id, title, year, poster, total_episodes, search_title, created_at
		FROM favorites ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing favorites: %w", err)
	}
	defer rows.Close()

	var favs []media.Favorite
	for rows.Next() {
		var f media.Favorite
		if err := rows.Scan(&f.Source, &f.ID, &f.Title, &f.Year, &f.Poster, &f.TotalEpisodes, &f.SearchTitle, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning favorite: %w", err)
		}
		favs = append(favs, f)
	}
	return favs, rows.Err()
}
