package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pagepush/pagepush/pkg/config"
	"github.com/pagepush/pagepush/pkg/deploy"
	"github.com/pagepush/pagepush/pkg/github"
	pagepushlog "github.com/pagepush/pagepush/pkg/log"
	"github.com/pagepush/pagepush/pkg/logs/redact"
	"github.com/pagepush/pagepush/pkg/preflight"
	"github.com/spf13/cobra"
)

// apiTimeout bounds each GitHub API request made while resolving defaults.
const apiTimeout = 15 * time.Second

var (
	logLevel      string
	skipPreflight bool
)

var rootCmd = &cobra.Command{
	Use:   "pagepush",
	Short: "Publish a static site build folder to a branch of a GitHub repository",
	Long: `pagepush copies a build folder into a dedicated branch (gh-pages by
convention) and force-pushes it, creating the branch without history the
first time.

Settings are read the way GitHub Actions passes them to a step:
  INPUT_ACCESS_TOKEN / INPUT_GITHUB_TOKEN   credential (one is required)
  INPUT_BRANCH                              branch to deploy to (required)
  INPUT_FOLDER                              build folder, relative to the workspace (required)
  INPUT_BASE_BRANCH                         branch to return to (default: repository default)
  INPUT_CNAME                               custom domain written to FOLDER/CNAME

Bare names (BRANCH, FOLDER, ...) are accepted for local runs, and a YAML file
named by PAGEPUSH_CONFIG supplies defaults.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(cmd, config.EnvSource{})
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		env := config.EnvSource{}
		resolver := github.BranchResolver{Options: []github.Option{
			github.WithBaseURL(apiURL(env)),
			github.WithTimeout(apiTimeout),
		}}
		return runDeploy(cmd.Context(), deployOptions{
			Env:           env,
			Resolver:      resolver,
			Publisher:     deploy.New(),
			SkipPreflight: skipPreflight,
		})
	},
}

// setupLogging applies --log-level, falling back to the LOG_LEVEL input.
func setupLogging(cmd *cobra.Command, env config.Source) error {
	level := logLevel
	if !cmd.Flags().Changed("log-level") {
		if v, ok := env.Lookup("INPUT_LOG_LEVEL"); ok && v != "" {
			level = v
		}
	}
	parsed, err := pagepushlog.ParseLevel(level)
	if err != nil {
		return err
	}

	cfg := pagepushlog.DefaultConfig()
	cfg.Level = parsed
	return pagepushlog.Init(cfg)
}

// apiURL prefers the runner-provided API root over one derived from the server URL.
func apiURL(env config.Source) string {
	if v, ok := env.Lookup("GITHUB_API_URL"); ok && v != "" {
		return v
	}
	server, _ := env.Lookup("GITHUB_SERVER_URL")
	return github.APIURLForServer(server)
}

type publisher interface {
	Publish(ctx context.Context, cfg *config.Config) (deploy.Result, error)
}

type deployOptions struct {
	Env           config.Source
	Resolver      config.BranchResolver
	Publisher     publisher
	SkipPreflight bool
}

func runDeploy(ctx context.Context, opts deployOptions) error {
	cfg, err := config.Load(ctx, config.Options{Env: opts.Env, Resolver: opts.Resolver})
	if err != nil {
		return &deploy.StepError{Kind: deploy.KindConfiguration, Step: deploy.StepValidate, Err: err}
	}

	checker := preflight.NewChecker(preflight.Config{
		Skip:          opts.SkipPreflight,
		RequireGit:    true,
		WorkspacePath: cfg.Workspace,
		FolderPath:    cfg.FolderPath(),
		WorktreePath:  filepath.Join(cfg.Workspace, deploy.TempFolder),
		ServerURL:     cfg.ServerURL,
	})
	if err := checker.Run(ctx); err != nil {
		return &deploy.StepError{Kind: deploy.KindConfiguration, Step: "preflight", Err: err}
	}

	res, err := opts.Publisher.Publish(ctx, cfg)
	if err != nil {
		return err
	}

	if res.NoChanges {
		pagepushlog.Progress("deployment skipped, branch already up to date", "branch", res.Branch)
	} else {
		pagepushlog.Progress("deployment complete", "branch", res.Branch, "commit", res.Commit)
	}
	return nil
}

// reportError writes err as an Actions error annotation.
func reportError(w io.Writer, err error) {
	fmt.Fprintf(w, "::error::%s\n", escapeWorkflowData(redact.String(err.Error())))
}

// escapeWorkflowData escapes a workflow command message so multi-line
// errors stay one annotation.
func escapeWorkflowData(s string) string {
	return strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A").Replace(s)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "progress", "Log level: debug, info, progress, minimal, warn, error (default from INPUT_LOG_LEVEL)")
	rootCmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip the environment checks run before deploying")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = pagepushlog.Sync()
	if err != nil {
		reportError(os.Stdout, err)
		os.Exit(1)
	}
}
