// Package workspace handles the files of a deployment: the build folder and
// the scratch worktree it is copied into.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/otiai10/copy"
	pagepushlog "github.com/pagepush/pagepush/pkg/log"
)

// GitDirName is never copied into or removed from a worktree.
const GitDirName = ".git"

// CNAMEFile is the custom domain marker read by the pages host.
const CNAMEFile = "CNAME"

// Copier copies the contents of one directory into another.
type Copier interface {
	CopyDir(src, dst string) error
}

// DirCopier copies with otiai10/copy. Hidden entries are copied, existing
// files are overwritten, symlinks are recreated as links, and the top-level
// .git entry and nested .git directories are skipped.
type DirCopier struct{}

// CopyDir implements Copier.
func (DirCopier) CopyDir(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", src)
	}
	if err := CheckCopyPaths(src, dst); err != nil {
		return err
	}

	opts := copy.Options{
		Skip: func(info os.FileInfo, path, _ string) (bool, error) {
			return skipGit(src, info, path), nil
		},
		OnSymlink: func(string) copy.SymlinkAction {
			return copy.Shallow
		},
		PermissionControl: copy.PerservePermission,
	}
	if err := copy.Copy(src, dst, opts); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// skipGit matches the .git entry at the top of src, whatever its type, and
// nested .git directories. A regular file named .git deeper in the tree is
// ordinary content.
func skipGit(src string, info os.FileInfo, path string) bool {
	if filepath.Base(path) != GitDirName {
		return false
	}
	if filepath.Clean(path) == filepath.Join(src, GitDirName) {
		return true
	}
	return info != nil && info.IsDir()
}

// Clear removes every entry of dir except .git, leaving an empty checkout
// ready to receive a full replacement of its content.
func Clear(dir string) error {
	abs, err := cleanAbs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	if IsFilesystemRoot(abs) {
		return fmt.Errorf("refusing to clear filesystem root %s", abs)
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", abs, err)
	}
	for _, entry := range entries {
		if entry.Name() == GitDirName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(abs, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// WriteCNAME writes domain as the single line of folder/CNAME.
func WriteCNAME(folder, domain string) error {
	path := filepath.Join(folder, CNAMEFile)
	if err := os.WriteFile(path, []byte(domain+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	pagepushlog.Debug("wrote custom domain marker", "path", path, "domain", domain)
	return nil
}

// RemoveAll deletes path, tolerating its absence.
func RemoveAll(path string) error {
	abs, err := cleanAbs(path)
	if err != nil {
		return err
	}
	if IsFilesystemRoot(abs) {
		return fmt.Errorf("refusing to remove filesystem root %s", abs)
	}
	return os.RemoveAll(abs)
}
