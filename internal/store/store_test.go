package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"vodpick/internal/media"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "vodpick.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// tick makes every write one second later than the previous one.
func tick(s *Store) {
	base := time.Unix(1_700_000_000, 0)
	n := 0
	s.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func record(source, id, title string, episode int, seconds float64) media.PlayRecord {
	return media.PlayRecord{
		ResumePosition: media.ResumePosition{
			Source:        source,
			ID:            id,
			Title:         title,
			Episode:       episode,
			TotalEpisodes: 12,
			Seconds:       seconds,
		},
		Year:        "2021",
		Poster:      "https://img.example.com/" + id + ".jpg",
		SearchTitle: title,
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vodpick.db")
	for i := 0; i < 2; i++ {
		s, err := Open(path, zerolog.Nop())
		if err != nil {
			t.Fatalf("Open() #%d error: %v", i+1, err)
		}
		if s.Path() != path {
			t.Errorf("Path() = %q, want %q", s.Path(), path)
		}
		s.Close()
	}
}

func TestSaveAndGetResumePosition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ref := media.SourceRef{Source: "alpha", ID: "77"}

	got, err := s.GetResumePosition(ctx, ref)
	if err != nil {
		t.Fatalf("GetResumePosition() error: %v", err)
	}
	if got.IsPresent() {
		t.Fatalf("expected no position before saving, got %+v", got.MustGet())
	}

	if err := s.SaveResumePosition(ctx, record("alpha", "77", "Night Harbor", 3, 1234.5)); err != nil {
		t.Fatalf("SaveResumePosition() error: %v", err)
	}

	got, err = s.GetResumePosition(ctx, ref)
	if err != nil {
		t.Fatalf("GetResumePosition() error: %v", err)
	}
	want := media.ResumePosition{
		Source:        "alpha",
		ID:            "77",
		Title:         "Night Harbor",
		Episode:       3,
		TotalEpisodes: 12,
		Seconds:       1234.5,
	}
	if diff := cmp.Diff(want, got.OrEmpty()); diff != "" {
		t.Errorf("position mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveUpdatesExisting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveResumePosition(ctx, record("alpha", "77", "Night Harbor", 0, 10)); err != nil {
		t.Fatal(err)
	}

	// A bare position update keeps the stored metadata.
	update := media.PlayRecord{ResumePosition: media.ResumePosition{Source: "alpha", ID: "77", Episode: 4, Seconds: 99}}
	if err := s.SaveResumePosition(ctx, update); err != nil {
		t.Fatal(err)
	}

	recs, err := s.RecentPlays(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record after update, got %d", len(recs))
	}
	got := recs[0]
	if got.Episode != 4 || got.Seconds != 99 {
		t.Errorf("position = ep %d @ %v, want ep 4 @ 99", got.Episode, got.Seconds)
	}
	if got.Title != "Night Harbor" || got.TotalEpisodes != 12 || got.Poster == "" {
		t.Errorf("metadata lost on update: %+v", got)
	}
}

func TestSaveRejectsIncompleteRecord(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveResumePosition(context.Background(), media.PlayRecord{}); err == nil {
		t.Error("expected error for record without source and id")
	}
}

func TestRecentPlaysOrder(t *testing.T) {
	s := openTestStore(t)
	tick(s)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		if err := s.SaveResumePosition(ctx, record("alpha", id, "Title "+id, 0, 1)); err != nil {
			t.Fatal(err)
		}
	}
	// Touch the oldest again.
	if err := s.SaveResumePosition(ctx, record("alpha", "1", "Title 1", 1, 5)); err != nil {
		t.Fatal(err)
	}

	recs, err := s.RecentPlays(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"1", "3"}, ids); diff != "" {
		t.Errorf("RecentPlays order mismatch (-want +got):\n%s", diff)
	}
	if recs[0].UpdatedAt <= recs[1].UpdatedAt {
		t.Errorf("UpdatedAt not descending: %d, %d", recs[0].UpdatedAt, recs[1].UpdatedAt)
	}
}

func TestDeletePlayRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ref := media.SourceRef{Source: "alpha", ID: "77"}

	if err := s.SaveResumePosition(ctx, record("alpha", "77", "Night Harbor", 0, 10)); err != nil {
		t.Fatal(err)
	}
	if err := s.DeletePlayRecord(ctx, ref); err != nil {
		t.Fatalf("DeletePlayRecord() error: %v", err)
	}
	if _, err := s.PlayRecord(ctx, ref); !errors.Is(err, media.ErrNotFound) {
		t.Errorf("PlayRecord() after delete error = %v, want ErrNotFound", err)
	}
	if err := s.DeletePlayRecord(ctx, ref); !errors.Is(err, media.ErrNotFound) {
		t.Errorf("second DeletePlayRecord() error = %v, want ErrNotFound", err)
	}
}

func TestClearPlayRecords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"1", "2"} {
		if err := s.SaveResumePosition(ctx, record("alpha", id, "T", 0, 1)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.ClearPlayRecords(ctx); err != nil {
		t.Fatal(err)
	}
	recs, err := s.RecentPlays(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("expected empty history, got %d records", len(recs))
	}
}

func TestFavorites(t *testing.T) {
	s := openTestStore(t)
	tick(s)
	ctx := context.Background()

	first := media.Favorite{Source: "alpha", ID: "1", Title: "Night Harbor", Year: "2021", TotalEpisodes: 8}
	second := media.Favorite{Source: "beta", ID: "2", Title: "Salt Road", Year: "2019", TotalEpisodes: 1}

	for _, f := range []media.Favorite{first, second} {
		if err := s.AddFavorite(ctx, f); err != nil {
			t.Fatalf("AddFavorite() error: %v", err)
		}
	}

	// Re-adding refreshes metadata but keeps the creation time.
	first.Title = "Night Harbour"
	if err := s.AddFavorite(ctx, first); err != nil {
		t.Fatal(err)
	}

	favs, err := s.Favorites(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(favs) != 2 {
		t.Fatalf("expected 2 favorites, got %d", len(favs))
	}
	if favs[0].ID != "2" || favs[1].ID != "1" {
		t.Errorf("favorites order = %s, %s; want 2, 1", favs[0].ID, favs[1].ID)
	}
	if favs[1].Title != "Night Harbour" {
		t.Errorf("title not refreshed: %q", favs[1].Title)
	}

	ok, err := s.IsFavorite(ctx, media.SourceRef{Source: "alpha", ID: "1"})
	if err != nil || !ok {
		t.Errorf("IsFavorite() = %v, %v; want true", ok, err)
	}

	if err := s.RemoveFavorite(ctx, media.SourceRef{Source: "alpha", ID: "1"}); err != nil {
		t.Fatal(err)
	}
	ok, _ = s.IsFavorite(ctx, media.SourceRef{Source: "alpha", ID: "1"})
	if ok {
		t.Error("favorite still present after removal")
	}
	if err := s.RemoveFavorite(ctx, media.SourceRef{Source: "alpha", ID: "1"}); !errors.Is(err, media.ErrNotFound) {
		t.Errorf("RemoveFavorite() twice error = %v, want ErrNotFound", err)
	}
}

func TestSkipConfig(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ref := media.SourceRef{Source: "alpha", ID: "1"}

	got, err := s.SkipConfig(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	if got.Enabled || got.IntroSeconds != 0 {
		t.Errorf("default skip config = %+v, want disabled", got)
	}

	want := media.SkipConfig{Source: "alpha", ID: "1", Enabled: true, IntroSeconds: 85, OutroSeconds: 120}
	if err := s.SetSkipConfig(ctx, want); err != nil {
		t.Fatalf("SetSkipConfig() error: %v", err)
	}
	got, err = s.SkipConfig(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("skip config mismatch (-want +got):\n%s", diff)
	}

	bad := want
	bad.OutroSeconds = -1
	if err := s.SetSkipConfig(ctx, bad); !errors.Is(err, ErrInvalidSkip) {
		t.Errorf("SetSkipConfig() with negative outro error = %v, want ErrInvalidSkip", err)
	}
}
