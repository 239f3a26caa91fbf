// Package edit reads a line range out of a file and writes a replacement back
// only if that range is still exactly what was read.
package edit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrSelectionChanged is returned by Apply when the file no longer holds the
// snapshotted text at the snapshotted position.
var ErrSelectionChanged = errors.New("edit: selection changed since it was read")

// Selection names a 1-based inclusive line range. StartLine 0 selects the
// whole file.
type Selection struct {
	Path      string
	StartLine int
	EndLine   int
}

// Whole reports whether the selection covers the entire file.
func (s Selection) Whole() bool { return s.StartLine == 0 }

func (s Selection) String() string {
	if s.Whole() {
		return s.Path
	}

	return fmt.Sprintf("%s:%d-%d", s.Path, s.StartLine, s.EndLine)
}

// ParseLines parses "a:b", "a-b" or "a" into a line range. An empty string
// means the whole file.
func ParseLines(path, lines string) (Selection, error) {
	sel := Selection{Path: path}

	lines = strings.TrimSpace(lines)
	if lines == "" {
		return sel, nil
	}

	from, to, found := strings.Cut(lines, ":")
	if !found {
		from, to, found = strings.Cut(lines, "-")
	}

	if !found {
		to = from
	}

	start, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return Selection{}, fmt.Errorf("edit: invalid line range %q", lines)
	}

	end, err := strconv.Atoi(strings.TrimSpace(to))
	if err != nil {
		return Selection{}, fmt.Errorf("edit: invalid line range %q", lines)
	}

	if start < 1 || end < start {
		return Selection{}, fmt.Errorf("edit: invalid line range %q", lines)
	}

	sel.StartLine = start
	sel.EndLine = end

	return sel, nil
}

// Snapshot is the selected text as read, plus where it sits in the file.
type Snapshot struct {
	Selection Selection
	Path      string // Absolute path.
	Content   string // Whole file at read time.
	Text      string // Selected region.
	start     int
	end       int
}

// Read loads the file and slices out the selection.
func Read(sel Selection) (Snapshot, error) {
	abs, err := filepath.Abs(sel.Path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("edit: %w", err)
	}

	data, err := os.ReadFile(abs) //nolint:gosec // path is chosen by the user
	if err != nil {
		return Snapshot{}, fmt.Errorf("edit: %w", err)
	}

	content := string(data)

	start, end, err := region(content, sel)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		Selection: sel,
		Path:      abs,
		Content:   content,
		Text:      content[start:end],
		start:     start,
		end:       end,
	}, nil
}

// region returns the byte offsets of the selected lines, including the
// newline that ends the last one.
func region(content string, sel Selection) (int, int, error) {
	if sel.Whole() {
		return 0, len(content), nil
	}

	var starts []int
	if content != "" {
		starts = append(starts, 0)
	}

	for i := 0; i < len(content)-1; i++ {
		if content[i] == '\n' {
			starts = append(starts, i+1)
		}
	}

	if sel.StartLine < 1 || sel.EndLine < sel.StartLine || sel.EndLine > len(starts) {
		return 0, 0, fmt.Errorf("edit: lines %d-%d out of range for %s (%d lines)",
			sel.StartLine, sel.EndLine, sel.Path, len(starts))
	}

	start := starts[sel.StartLine-1]

	end := len(content)
	if sel.EndLine < len(starts) {
		end = starts[sel.EndLine]
	}

	return start, end, nil
}
