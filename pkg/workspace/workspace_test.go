package workspace

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestDirCopier_CopiesHiddenEntries(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	writeFile(t, filepath.Join(src, "index.html"), "<h1>home</h1>")
	writeFile(t, filepath.Join(src, ".nojekyll"), "")
	writeFile(t, filepath.Join(src, ".well-known", "security.txt"), "contact: me")
	writeFile(t, filepath.Join(src, "assets", "app.js"), "console.log(1)")

	require.NoError(t, DirCopier{}.CopyDir(src, dst))

	assert.Equal(t, "<h1>home</h1>", readFile(t, filepath.Join(dst, "index.html")))
	assert.Equal(t, "", readFile(t, filepath.Join(dst, ".nojekyll")))
	assert.Equal(t, "contact: me", readFile(t, filepath.Join(dst, ".well-known", "security.txt")))
	assert.Equal(t, "console.log(1)", readFile(t, filepath.Join(dst, "assets", "app.js")))
}

func TestDirCopier_OverwritesAndSkipsGit(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	writeFile(t, filepath.Join(src, "index.html"), "new")
	writeFile(t, filepath.Join(src, ".git", "HEAD"), "ref: refs/heads/src")
	writeFile(t, filepath.Join(dst, "index.html"), "old")
	writeFile(t, filepath.Join(dst, ".git"), "gitdir: /somewhere/worktrees/tmp")

	require.NoError(t, DirCopier{}.CopyDir(src, dst))

	assert.Equal(t, "new", readFile(t, filepath.Join(dst, "index.html")))
	assert.Equal(t, "gitdir: /somewhere/worktrees/tmp", readFile(t, filepath.Join(dst, ".git")))
}

func TestDirCopier_NestedGitEntries(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	writeFile(t, filepath.Join(src, ".git"), "gitdir: /elsewhere")
	writeFile(t, filepath.Join(src, "docs", "examples", ".git"), "literal file content")
	writeFile(t, filepath.Join(src, "vendor", "lib", ".git", "HEAD"), "ref: refs/heads/main")
	writeFile(t, filepath.Join(src, "vendor", "lib", "lib.js"), "lib")

	require.NoError(t, DirCopier{}.CopyDir(src, dst))

	assert.NoFileExists(t, filepath.Join(dst, ".git"))
	assert.Equal(t, "literal file content", readFile(t, filepath.Join(dst, "docs", "examples", ".git")))
	assert.NoDirExists(t, filepath.Join(dst, "vendor", "lib", ".git"))
	assert.Equal(t, "lib", readFile(t, filepath.Join(dst, "vendor", "lib", "lib.js")))
}

func TestDirCopier_KeepsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	src := t.TempDir()
	dst := t.TempDir()

	writeFile(t, filepath.Join(src, "latest.html"), "v2")
	require.NoError(t, os.Symlink("latest.html", filepath.Join(src, "index.html")))

	require.NoError(t, DirCopier{}.CopyDir(src, dst))

	target, err := os.Readlink(filepath.Join(dst, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "latest.html", target)
}

func TestDirCopier_Errors(t *testing.T) {
	t.Run("missing source", func(t *testing.T) {
		err := DirCopier{}.CopyDir(filepath.Join(t.TempDir(), "missing"), t.TempDir())
		assert.Error(t, err)
	})

	t.Run("source is a file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		writeFile(t, file, "x")
		assert.Error(t, DirCopier{}.CopyDir(file, t.TempDir()))
	})

	t.Run("destination inside source", func(t *testing.T) {
		src := t.TempDir()
		dst := filepath.Join(src, "nested")
		require.NoError(t, os.Mkdir(dst, 0755))
		assert.Error(t, DirCopier{}.CopyDir(src, dst))
	})
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "stale.html"), "old")
	writeFile(t, filepath.Join(dir, ".hidden"), "old")
	writeFile(t, filepath.Join(dir, "blog", "post.html"), "old")
	writeFile(t, filepath.Join(dir, ".git"), "gitdir: elsewhere")

	require.NoError(t, Clear(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".git", entries[0].Name())

	assert.Error(t, Clear(string(filepath.Separator)))
	assert.Error(t, Clear(filepath.Join(dir, "missing")))
}

func TestWriteCNAME(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteCNAME(dir, "example.com"))
	assert.Equal(t, "example.com\n", readFile(t, filepath.Join(dir, CNAMEFile)))

	require.NoError(t, WriteCNAME(dir, "docs.example.com"))
	assert.Equal(t, "docs.example.com\n", readFile(t, filepath.Join(dir, CNAMEFile)))
}

func TestRemoveAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tmp-deployment-folder")
	writeFile(t, filepath.Join(dir, "a", "b.txt"), "x")

	require.NoError(t, RemoveAll(dir))
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, RemoveAll(dir), "removing a missing path is not an error")
	assert.Error(t, RemoveAll(string(filepath.Separator)))
}

func TestPathOverlaps(t *testing.T) {
	sep := string(filepath.Separator)
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"same path", sep + "ws", sep + "ws", true},
		{"child", sep + "ws", filepath.Join(sep+"ws", "build"), true},
		{"parent", filepath.Join(sep+"ws", "build"), sep + "ws", true},
		{"siblings", filepath.Join(sep+"ws", "build"), filepath.Join(sep+"ws", "tmp-deployment-folder"), false},
		{"dot-dot prefixed name", filepath.Join(sep+"ws", "a"), filepath.Join(sep+"ws", "..a"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PathOverlaps(tt.a, tt.b))
		})
	}
}

func TestIsFilesystemRoot(t *testing.T) {
	assert.True(t, IsFilesystemRoot(string(filepath.Separator)))
	assert.False(t, IsFilesystemRoot(t.TempDir()))
}
