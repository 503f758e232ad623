package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxRenameAttempts bounds the " (n)" suffix search.
const maxRenameAttempts = 1000

// RenameTarget returns the path a file would get when named after name, keeping its
// directory and extension. The name must already be sanitized.
func RenameTarget(path, name string) string {
	ext := strings.ToLower(filepath.Ext(path))
	return filepath.Join(filepath.Dir(path), name+ext)
}

// RenameToName renames path after name. An existing file is never overwritten: a
// " (2)", " (3)", ... suffix is added instead. Renaming to the current path is a no-op.
func RenameToName(path, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	target := RenameTarget(path, name)
	if target == path {
		return path, nil
	}
	ext := filepath.Ext(target)
	base := strings.TrimSuffix(target, ext)
	for i := 1; i <= maxRenameAttempts; i++ {
		candidate := target
		if i > 1 {
			candidate = fmt.Sprintf("%s (%d)%s", base, i, ext)
		}
		if candidate == path {
			return path, nil
		}
		if _, err := os.Lstat(candidate); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		if err := os.Rename(path, candidate); err != nil {
			return "", fmt.Errorf("rename: %w", err)
		}
		return candidate, nil
	}
	return "", fmt.Errorf("no free name for %q after %d attempts", name, maxRenameAttempts)
}
