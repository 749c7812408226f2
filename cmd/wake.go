package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/idxwake/idxwake/internal/auth"
	"github.com/idxwake/idxwake/internal/automation"
	"github.com/idxwake/idxwake/internal/browser"
	"github.com/idxwake/idxwake/internal/config"
	"github.com/idxwake/idxwake/internal/cookiejar"
	"github.com/idxwake/idxwake/internal/observability"
	"github.com/idxwake/idxwake/internal/readiness"
)

// shutdownGrace bounds the browser teardown once the run is over.
const shutdownGrace = 15 * time.Second

// wakeResult captures what the run proved about the workspace.
type wakeResult struct {
	Authenticated bool
	Ready         bool
}

// wakeWorkspace is a seam for the command tests; production runs runWake.
var wakeWorkspace = runWake

// newWakeCmd creates and configures the `wake` command.
func newWakeCmd(v *viper.Viper) *cobra.Command {
	wakeCmd := &cobra.Command{
		Use:   "wake",
		Short: "Signs in to the workspace and polls it until the dev server starts",
		Args:  cobra.NoArgs,
		// Bind flags to their viper keys here so command-line values override
		// the config file and environment with the right precedence.
		PreRunE: func(cmd *cobra.Command, args []string) error {
			bindings := []struct {
				key  string
				flag string
			}{
				{"auth.app_url", "url"},
				{"auth.cookie_file", "cookie-file"},
				{"browser.engine", "engine"},
				{"browser.headless", "headless"},
				{"readiness.max_reload_attempts", "attempts"},
				{"readiness.total_budget", "budget"},
			}
			for _, b := range bindings {
				if err := v.BindPFlag(b.key, cmd.Flags().Lookup(b.flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// The context passed from main is signal-aware.
			ctx := cmd.Context()

			// Rebuild the config now that the flags are bound.
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to apply flag overrides: %w", err)
			}

			if _, err := cfg.Auth.Credential(); err != nil {
				// A missing credential is an operator problem, not a run
				// failure. Print the fix and stop before any browser starts.
				fmt.Fprintln(cmd.OutOrStdout(), config.CredentialGuidance)
				return nil
			}

			runID := uuid.New().String()
			logger := observability.GetLogger().With(zap.String("run_id", runID))
			logger.Info("Waking workspace.",
				zap.String("url", cfg.Auth.AppURL),
				zap.String("engine", cfg.Browser.Engine),
				zap.Int("max_reload_attempts", cfg.Readiness.MaxReloadAttempts),
				zap.Duration("total_budget", cfg.Readiness.TotalBudget),
			)

			result, err := wakeWorkspace(ctx, cfg, logger)
			if err != nil {
				return err
			}

			switch {
			case !result.Authenticated:
				fmt.Fprintln(cmd.OutOrStdout(), "\nSign-in did not converge. Check the credential and try again.")
			case result.Ready:
				fmt.Fprintf(cmd.OutOrStdout(), "\nWorkspace is awake: %s\n", cfg.Auth.AppURL)
			default:
				fmt.Fprintln(cmd.OutOrStdout(), "\nWorkspace did not report readiness within the budget. See the logs for the last probe results.")
			}
			return nil
		},
	}

	flags := wakeCmd.Flags()
	flags.StringP("url", "u", "", "Workspace URL to wake. (Overrides config/env)")
	flags.String("cookie-file", "", "Path of the saved session cookies. (Overrides config/env)")
	flags.String("engine", "", "Browser engine: firefox, chromium or webkit. (Overrides config/env)")
	flags.Bool("headless", true, "Run the browser headless. (Overrides config/env)")
	flags.IntP("attempts", "n", 0, "Maximum workspace reloads while polling. (Overrides config/env)")
	flags.Duration("budget", 0, "Total wall-clock budget for the readiness poll. (Overrides config/env)")

	return wakeCmd
}

// wakeComponents holds the initialized services for one run.
type wakeComponents struct {
	Manager      *browser.Manager
	Session      *browser.Session
	Jar          *cookiejar.Jar
	Bootstrapper *auth.Bootstrapper
	Poller       *readiness.Poller

	logger       *zap.Logger
	shutdownOnce sync.Once
}

// Shutdown gracefully closes the session, then the browser. Safe to call
// more than once and with partially initialized components.
func (wc *wakeComponents) Shutdown() {
	wc.shutdownOnce.Do(func() {
		if wc.Session != nil {
			if err := wc.Session.Close(); err != nil {
				wc.logger.Warn("Session close reported an error.", zap.Error(err))
			}
		}
		if wc.Manager != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := wc.Manager.Shutdown(shutdownCtx); err != nil {
				wc.logger.Warn("Browser shutdown did not finish cleanly.", zap.Error(err))
			}
		}
	})
}

// initializeWakeComponents handles dependency injection for the run.
func initializeWakeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*wakeComponents, error) {
	components := &wakeComponents{logger: logger}

	components.Manager = browser.NewManager(cfg, logger)

	session, err := components.Manager.NewSession(ctx)
	if err != nil {
		return components, fmt.Errorf("failed to start a browser session: %w", err)
	}
	components.Session = session

	components.Jar = cookiejar.NewJar(afero.NewOsFs(), cfg.Auth.CookieFile, logger)
	components.Bootstrapper = auth.NewBootstrapper(cfg, components.Jar, logger)
	components.Poller = readiness.NewWorkspacePoller(session, session.Page(), cfg.Readiness, logger)

	return components, nil
}

// runWake owns the whole browser lifecycle for one wake run.
func runWake(ctx context.Context, cfg *config.Config, logger *zap.Logger) (wakeResult, error) {
	components, err := initializeWakeComponents(ctx, cfg, logger)
	if err != nil {
		components.Shutdown()
		return wakeResult{}, err
	}
	defer components.Shutdown()

	authed, err := components.Bootstrapper.EnsureSession(ctx, components.Session)
	if err != nil {
		return wakeResult{}, err
	}
	if !authed {
		logger.Error("Authentication did not converge; skipping the readiness poll.")
		return wakeResult{}, nil
	}

	ready := components.Poller.Poll(ctx, cfg.Auth.AppURL, cfg.Readiness.MaxReloadAttempts, cfg.Readiness.TotalBudget)
	if ready {
		// The dev server keeps warming up after the heading appears; tearing
		// the browser down immediately would cut that short.
		logger.Info("Holding the workspace open while the dev server warms up.",
			zap.Duration("hold", cfg.Readiness.SuccessHold))
		automation.Wait(ctx, cfg.Readiness.SuccessHold)
	}

	components.Bootstrapper.PersistCookies(ctx, components.Session)

	return wakeResult{Authenticated: true, Ready: ready}, nil
}
