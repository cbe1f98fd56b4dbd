package workspace

import (
	"fmt"
	"path/filepath"
	"strings"
)

// cleanAbs returns the absolute path, resolving symlinks if possible
func cleanAbs(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

// isSubpath checks if candidate is a subpath of parent
func isSubpath(candidate, parent string) bool {
	rel, err := filepath.Rel(parent, candidate)
	if err != nil {
		return false
	}
	rel = filepath.Clean(rel)
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// PathOverlaps reports whether one path equals or contains the other.
func PathOverlaps(a, b string) bool {
	return isSubpath(a, b) || isSubpath(b, a)
}

// IsFilesystemRoot reports whether path points to filesystem root (POSIX or Windows volume root).
func IsFilesystemRoot(path string) bool {
	clean := filepath.Clean(path)
	if clean == string(filepath.Separator) {
		return true
	}
	volume := filepath.VolumeName(clean)
	return volume != "" && clean == volume+string(filepath.Separator)
}

// CheckCopyPaths rejects a copy whose source and destination overlap, or
// whose destination is a filesystem root.
func CheckCopyPaths(src, dst string) error {
	absSrc, err := cleanAbs(src)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", src, err)
	}
	absDst, err := cleanAbs(dst)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dst, err)
	}
	if IsFilesystemRoot(absDst) {
		return fmt.Errorf("refusing to copy into filesystem root %s", absDst)
	}
	if PathOverlaps(absSrc, absDst) {
		return fmt.Errorf("source %s and destination %s overlap", absSrc, absDst)
	}
	return nil
}
