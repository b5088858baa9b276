// Package history exports and imports the watch history as TSV so it can be
// backed up or carried to another machine. Exports use atomic writes
// (temp+rename) to prevent data corruption.
package history

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"vodpick/internal/media"
)

// TSV columns: source, id, title, year, episode, total episodes, position, search title
const numColumns = 8

const header = "# source\tid\ttitle\tyear\tepisode\ttotal_episodes\tposition\tsearch_title"

// MaxExport bounds how many records one export writes.
const MaxExport = 10000

// Store is the part of the database export and import use.
type Store interface {
	RecentPlays(ctx context.Context, limit int) ([]media.PlayRecord, error)
	SaveResumePosition(ctx context.Context, rec media.PlayRecord) error
}

// Export writes every play record to path, newest first, and returns how
// many were written.
func Export(ctx context.Context, st Store, path string) (int, error) {
	records, err := st.RecentPlays(ctx, MaxExport)
	if err != nil {
		return 0, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return 0, fmt.Errorf("creating export dir: %w", err)
	}

	// Atomic write: temp file + rename
	tmpFile, err := os.CreateTemp(dir, "history-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	writer := bufio.NewWriter(tmpFile)
	lines := append([]string{header}, lo.Map(records, func(r media.PlayRecord, _ int) string {
		return formatLine(r)
	})...)
	for _, line := range lines {
		if _, err := writer.WriteString(line + "\n"); err != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
			return 0, fmt.Errorf("writing history: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("flushing history: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("renaming history file: %w", err)
	}

	return len(records), nil
}

// Read parses an exported file. Blank lines, comments and malformed lines
// are skipped.
func Read(path string) ([]media.PlayRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	defer f.Close()

	var records []media.PlayRecord
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rec, err := parseLine(line)
		if err != nil {
			continue // Skip malformed lines
		}
		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	return records, nil
}

// Import saves every record of an exported file. Records are saved oldest
// first so the file's order survives as recency order.
func Import(ctx context.Context, st Store, path string) (int, error) {
	records, err := Read(path)
	if err != nil {
		return 0, err
	}
	for _, rec := range lo.Reverse(records) {
		if err := st.SaveResumePosition(ctx, rec); err != nil {
			return 0, fmt.Errorf("importing %s/%s: %w", rec.Source, rec.ID, err)
		}
	}
	return len(records), nil
}

// parseLine parses a TSV line into a PlayRecord.
func parseLine(line string) (media.PlayRecord, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < numColumns {
		return media.PlayRecord{}, fmt.Errorf("expected %d columns, got %d", numColumns, len(fields))
	}
	if fields[0] == "" || fields[1] == "" {
		return media.PlayRecord{}, fmt.Errorf("missing source or id")
	}

	episode, err := strconv.Atoi(fields[4])
	if err != nil || episode < 0 {
		return media.PlayRecord{}, fmt.Errorf("bad episode %q", fields[4])
	}
	total, _ := strconv.Atoi(fields[5])
	position, _ := strconv.ParseFloat(fields[6], 64)

	return media.PlayRecord{
		ResumePosition: media.ResumePosition{
			Source:        fields[0],
			ID:            fields[1],
			Title:         fields[2],
			Episode:       episode,
			TotalEpisodes: total,
			Seconds:       position,
		},
		Year:        fields[3],
		SearchTitle: fields[7],
	}, nil
}

// formatLine converts a PlayRecord to a TSV line.
func formatLine(r media.PlayRecord) string {
	return strings.Join([]string{
		r.Source,
		r.ID,
		clean(r.Title),
		r.Year,
		strconv.Itoa(r.Episode),
		strconv.Itoa(r.TotalEpisodes),
		strconv.FormatFloat(r.Seconds, 'f', 0, 64),
		clean(r.SearchTitle),
	}, "\t")
}

func clean(s string) string {
	return strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(s)
}
