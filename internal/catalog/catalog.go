// Package catalog searches Apple-CMS style video catalogs and turns their
// entries into media.Candidate values.
package catalog

import (
	"context"

	"vodpick/internal/media"
)

// Source is one upstream catalog.
type Source interface {
	// Key returns the stable source key used in SourceRef.
	Key() string

	// Name returns the human readable source name.
	Name() string

	// Search returns every entry matching title.
	Search(ctx context.Context, title string) ([]media.Candidate, error)

	// Detail returns one entry by its provider id, or media.ErrNotFound.
	Detail(ctx context.Context, id string) (media.Candidate, error)
}
