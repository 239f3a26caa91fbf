package edit

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Editor applies replacements. Applies to the same path are serialized.
type Editor struct {
	locks *locker
}

// New creates an Editor.
func New() *Editor {
	return &Editor{locks: newLocker()}
}

// Apply replaces the snapshotted region with replacement. The file is
// re-read first; if the region no longer matches, nothing is written and
// ErrSelectionChanged is returned. The write goes through a temporary file
// and a rename.
func (e *Editor) Apply(snap Snapshot, replacement string) error {
	e.locks.lock(snap.Path)
	defer e.locks.unlock(snap.Path)

	data, err := os.ReadFile(snap.Path)
	if err != nil {
		return fmt.Errorf("edit: %w", err)
	}

	current := string(data)
	if !snap.matches(current) {
		return ErrSelectionChanged
	}

	updated := current[:snap.start] + Fit(snap.Text, replacement) + current[snap.end:]

	return writeAtomic(snap.Path, []byte(updated))
}

// matches reports whether content still holds the snapshotted region at the
// same offsets. A whole-file snapshot only matches an identical file.
func (s Snapshot) matches(content string) bool {
	if s.Selection.Whole() {
		return content == s.Content
	}

	return s.end <= len(content) && content[s.start:s.end] == s.Text
}

// Preview returns the whole file as it would look after Apply.
func Preview(snap Snapshot, replacement string) string {
	return snap.Content[:snap.start] + Fit(snap.Text, replacement) + snap.Content[snap.end:]
}

// Fit makes replacement end with a newline exactly when original does, so a
// line-range replacement does not merge into the following line.
func Fit(original, replacement string) string {
	switch {
	case strings.HasSuffix(original, "\n") && !strings.HasSuffix(replacement, "\n"):
		return replacement + "\n"
	case !strings.HasSuffix(original, "\n") && strings.HasSuffix(replacement, "\n"):
		return strings.TrimRight(replacement, "\n")
	default:
		return replacement
	}
}

// Diff returns a unified diff between oldContent and newContent labeled with
// name. It returns an empty string when the contents are equal.
func Diff(name, oldContent, newContent string) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldContent),
		B:        difflib.SplitLines(newContent),
		FromFile: name,
		ToFile:   name,
		Context:  3,
	}

	result, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return fmt.Sprintf("(diff error: %v)", err)
	}

	return result
}

func fileMode(path string) fs.FileMode {
	info, err := os.Stat(path)
	if err != nil {
		return 0o600
	}

	return info.Mode().Perm()
}

func writeAtomic(path string, data []byte) error {
	mode := fileMode(path)

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".mender-*")
	if err != nil {
		return fmt.Errorf("edit: %w", err)
	}

	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()

		return fmt.Errorf("edit: write %s: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("edit: write %s: %w", path, err)
	}

	if err := os.Chmod(tmpName, mode); err != nil {
		cleanup()
		return fmt.Errorf("edit: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("edit: %w", err)
	}

	return nil
}
