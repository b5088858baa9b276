package media

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

var folder = cases.Fold()

// NormalizeTitle folds a title for comparison: full-width characters become
// their ASCII forms, case is folded and all whitespace is dropped.
func NormalizeTitle(title string) string {
	s := width.Fold.String(title)
	s = folder.String(s)
	return strings.Join(strings.Fields(s), "")
}
