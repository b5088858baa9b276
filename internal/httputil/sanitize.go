package httputil

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	maxIDLen        = 64
	maxSourceKeyLen = 32
	maxFilenameLen  = 200
)

// ValidateURL accepts absolute http and https URLs. Catalog APIs and stream
// CDNs often serve plain HTTP.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}
	return nil
}

// ValidateID checks a catalog item id. Ids travel as URL path segments and
// query values, so only ASCII letters, digits, '-' and '_' are allowed.
func ValidateID(id string) error {
	switch {
	case id == "":
		return errors.New("id is empty")
	case len(id) > maxIDLen:
		return fmt.Errorf("id longer than %d bytes", maxIDLen)
	case strings.IndexFunc(id, func(r rune) bool { return !isSlugRune(r, true) }) >= 0:
		return fmt.Errorf("id %q contains invalid characters", id)
	}
	return nil
}

// ValidateSourceKey checks a configured source key: a lowercase slug of at
// most 32 bytes.
func ValidateSourceKey(key string) error {
	switch {
	case key == "":
		return errors.New("source key is empty")
	case len(key) > maxSourceKeyLen:
		return fmt.Errorf("source key longer than %d bytes", maxSourceKeyLen)
	case strings.IndexFunc(key, func(r rune) bool { return !isSlugRune(r, false) }) >= 0:
		return fmt.Errorf("source key %q must be lowercase letters, digits, '-' or '_'", key)
	}
	return nil
}

func isSlugRune(r rune, upper bool) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		return true
	case upper && r >= 'A' && r <= 'Z':
		return true
	}
	return false
}

// SanitizeFilename turns a title into a single path element. Separators and
// characters reserved on common filesystems become '_', control characters
// become spaces, runs of whitespace collapse and leading or trailing dots are
// dropped.
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20 || r == 0x7f:
			return ' '
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		}
		return r
	}, name)
	name = strings.Join(strings.Fields(name), " ")

	for len(name) > maxFilenameLen {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	name = strings.Trim(name, ". ")
	if name == "" {
		return "untitled"
	}
	return name
}

// PathWithin sanitises name and joins it onto dir, failing if the result
// would land outside dir.
func PathWithin(dir, name string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	full := filepath.Join(absDir, SanitizeFilename(name))
	rel, err := filepath.Rel(absDir, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q escapes %q", name, absDir)
	}
	return full, nil
}

// JoinURL appends escaped path segments to base.
func JoinURL(base string, segments ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("malformed base URL: %w", err)
	}
	escaped := make([]string, len(segments))
	for i, seg := range segments {
		escaped[i] = url.PathEscape(seg)
	}
	return u.JoinPath(escaped...).String(), nil
}
