// Package ui holds the terminal front end: fzf pickers and the resolution
// progress view. Items are piped to fzf via stdin as plain text with no
// shell-evaluated preview strings.
package ui

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/term"
)

// ErrCancelled is returned when the user backs out of a picker.
var ErrCancelled = errors.New("selection cancelled")

// IsTerminal reports whether stderr is an interactive terminal, which is
// where pickers and the progress view draw.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// Select presents items via fzf and returns the chosen index.
func Select(prompt string, items []string) (int, error) {
	if len(items) == 0 {
		return -1, errors.New("no items to select from")
	}
	out, err := fzf(selectArgs(prompt), numbered(items))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && (exitErr.ExitCode() == 130 || exitErr.ExitCode() == 1) {
			return -1, ErrCancelled
		}
		return -1, err
	}
	return parseSelection(out, len(items))
}

// Confirm asks a yes/no question via fzf.
func Confirm(prompt string) (bool, error) {
	idx, err := Select(prompt, []string{"Yes", "No"})
	if err != nil {
		return false, err
	}
	return idx == 0, nil
}

// Input prompts for free text via fzf's --print-query.
func Input(prompt string) (string, error) {
	out, err := fzf([]string{
		"--prompt", prompt + " > ",
		"--height", "10%",
		"--reverse",
		"--print-query",
		"--no-info",
	}, "")
	// fzf exits 1 with --print-query and no match; the query is still printed.
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return "", err
	}
	query, _, _ := strings.Cut(out, "\n")
	if query = strings.TrimSpace(query); query == "" {
		return "", ErrCancelled
	}
	return query, nil
}

// fzf runs fzf with args, feeding it stdin, and returns what it printed.
func fzf(args []string, stdin string) (string, error) {
	path, err := exec.LookPath("fzf")
	if err != nil {
		return "", fmt.Errorf("fzf not found in PATH: %w", err)
	}
	var stdout bytes.Buffer
	cmd := exec.Command(path, args...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("fzf: %w", err)
	}
	return stdout.String(), nil
}

func selectArgs(prompt string) []string {
	return []string{
		"--prompt", prompt + " > ",
		"--height", "40%",
		"--reverse",
		"--with-nth", "2..", // hide the index field
		"--delimiter", "\t",
		"--no-multi",
		"--cycle",
	}
}

// numbered prefixes each item with its index so the choice maps back
// reliably even when items repeat.
func numbered(items []string) string {
	var b strings.Builder
	for i, item := range items {
		item = strings.ReplaceAll(item, "\n", " ")
		fmt.Fprintf(&b, "%d\t%s\n", i, item)
	}
	return b.String()
}

func parseSelection(output string, n int) (int, error) {
	selected := strings.TrimSpace(output)
	if selected == "" {
		return -1, ErrCancelled
	}

	field, _, _ := strings.Cut(selected, "\t")
	var idx int
	if _, err := fmt.Sscanf(field, "%d", &idx); err != nil {
		return -1, fmt.Errorf("parsing selection index: %w", err)
	}
	if idx < 0 || idx >= n {
		return -1, fmt.Errorf("selection index %d out of range", idx)
	}
	return idx, nil
}
