package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestGitCheck(t *testing.T) {
	check := &GitCheck{}
	ctx := context.Background()

	result := check.Run(ctx)

	if result.Name != "git" {
		t.Errorf("expected name 'git', got '%s'", result.Name)
	}

	// Git should be available in test environment
	if result.Level == LevelError {
		t.Errorf("expected git to be available, got %v: %s", result.Level, result.Message)
	}

	t.Logf("GitCheck result: level=%d, message=%s", result.Level, result.Message)
}

func TestGitVersionAtLeast(t *testing.T) {
	tests := []struct {
		output string
		want   bool
	}{
		{"git version 2.43.0", true},
		{"git version 2.17.1", true},
		{"git version 2.16.6", false},
		{"git version 1.9.5", false},
		{"git version 3.0.0", true},
		{"git version 2.39.3 (Apple Git-146)", true},
		{"something odd", true},
	}

	for _, tt := range tests {
		if got := gitVersionAtLeast(tt.output, minWorktreeRemove); got != tt.want {
			t.Errorf("gitVersionAtLeast(%q) = %v, want %v", tt.output, got, tt.want)
		}
	}
}

func TestWorkspaceCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("git checkout", func(t *testing.T) {
		tempDir := t.TempDir()
		if err := os.Mkdir(filepath.Join(tempDir, ".git"), 0755); err != nil {
			t.Fatal(err)
		}
		result := (&WorkspaceCheck{Path: tempDir}).Run(ctx)

		if result.Name != "workspace" {
			t.Errorf("expected name 'workspace', got '%s'", result.Name)
		}
		if result.Level != LevelInfo {
			t.Errorf("expected LevelInfo for valid directory, got %v: %s", result.Level, result.Message)
		}
	})

	t.Run("plain directory warns", func(t *testing.T) {
		result := (&WorkspaceCheck{Path: t.TempDir()}).Run(ctx)
		if result.Level != LevelWarn {
			t.Errorf("expected LevelWarn for directory without .git, got %v", result.Level)
		}
	})

	t.Run("non-existent path", func(t *testing.T) {
		result := (&WorkspaceCheck{Path: "/nonexistent/path/that/does/not/exist"}).Run(ctx)
		if result.Level != LevelError {
			t.Errorf("expected LevelError for non-existent path, got %v", result.Level)
		}
	})

	t.Run("filesystem root", func(t *testing.T) {
		result := (&WorkspaceCheck{Path: string(filepath.Separator)}).Run(ctx)
		if result.Level != LevelError {
			t.Errorf("expected LevelError for filesystem root, got %v", result.Level)
		}
	})
}

func TestBuildFolderCheck(t *testing.T) {
	ctx := context.Background()
	ws := t.TempDir()
	build := filepath.Join(ws, "build")
	if err := os.Mkdir(build, 0755); err != nil {
		t.Fatal(err)
	}

	t.Run("empty folder warns", func(t *testing.T) {
		result := (&BuildFolderCheck{Path: build, Workspace: ws}).Run(ctx)
		if result.Level != LevelWarn {
			t.Errorf("expected LevelWarn, got %v: %s", result.Level, result.Message)
		}
	})

	if err := os.WriteFile(filepath.Join(build, "index.html"), []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		check BuildFolderCheck
		want  CheckLevel
	}{
		{"ready", BuildFolderCheck{Path: build, Workspace: ws, WorktreePath: filepath.Join(ws, "tmp-deployment-folder")}, LevelInfo},
		{"missing", BuildFolderCheck{Path: filepath.Join(ws, "dist"), Workspace: ws}, LevelError},
		{"file", BuildFolderCheck{Path: filepath.Join(build, "index.html"), Workspace: ws}, LevelError},
		{"workspace itself", BuildFolderCheck{Path: ws, Workspace: ws}, LevelError},
		{"overlaps worktree", BuildFolderCheck{Path: build, Workspace: ws, WorktreePath: filepath.Join(build, "tmp")}, LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.check.Run(ctx)
			if result.Level != tt.want {
				t.Errorf("expected level %v, got %v: %s", tt.want, result.Level, result.Message)
			}
		})
	}
}

func TestNetworkCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("reachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		result := (&NetworkCheck{URL: srv.URL}).Run(ctx)
		if result.Level != LevelInfo {
			t.Errorf("expected LevelInfo, got %v: %s", result.Level, result.Message)
		}
	})

	t.Run("server error warns", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		result := (&NetworkCheck{URL: srv.URL}).Run(ctx)
		if result.Level != LevelWarn {
			t.Errorf("expected LevelWarn, got %v", result.Level)
		}
	})

	t.Run("unreachable warns", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		result := (&NetworkCheck{URL: url}).Run(ctx)
		if result.Level != LevelWarn {
			t.Errorf("expected LevelWarn, got %v", result.Level)
		}
	})
}

func TestChecker(t *testing.T) {
	ws := t.TempDir()
	build := filepath.Join(ws, "build")
	if err := os.MkdirAll(build, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(build, "index.html"), []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := Config{
		RequireGit:    true,
		WorkspacePath: ws,
		FolderPath:    build,
		WorktreePath:  filepath.Join(ws, "tmp-deployment-folder"),
	}

	checker := NewChecker(cfg)
	ctx := context.Background()

	// Warnings (no .git in the workspace) do not fail the run
	if err := checker.Run(ctx); err != nil {
		t.Errorf("expected success, got error: %v", err)
	}
}

func TestCheckerSkip(t *testing.T) {
	checker := NewChecker(Config{Skip: true, WorkspacePath: "/nonexistent"})

	if err := checker.Run(context.Background()); err != nil {
		t.Errorf("expected success when skipped, got error: %v", err)
	}
}

func TestCheckerWithMissingGit(t *testing.T) {
	t.Setenv("PATH", "")

	checker := NewChecker(Config{RequireGit: true})

	err := checker.Run(context.Background())
	if err == nil {
		t.Error("expected error when git is required but not found")
	}

	t.Logf("Expected error: %v", err)
}

func TestCheckerWithMissingFolder(t *testing.T) {
	ws := t.TempDir()
	checker := NewChecker(Config{
		WorkspacePath: ws,
		FolderPath:    filepath.Join(ws, "build"),
	})

	err := checker.Run(context.Background())
	if err == nil {
		t.Fatal("expected error when the build folder is missing")
	}

	t.Logf("Expected error: %v", err)
}
