package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/jrsteele09/go-session-keeper/crosstab"
	"github.com/jrsteele09/go-session-keeper/lifecycle"
	"github.com/jrsteele09/go-session-keeper/refresh"
	"github.com/jrsteele09/go-session-keeper/sessions"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

const tracerName = "github.com/jrsteele09/go-session-keeper"

var (
	login    bool
	email    string
	password string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sign in and keep the session fresh until it ends",
	Long: `Signs in, mounts the session lifecycle manager and refreshes the credential
ahead of its expiry. The command returns when the session ends: a refresh
failure, a logout from another instance, or an interrupt.

SIGCONT is treated as the host becoming visible again and SIGHUP forces a
refresh.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runKeeper(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&login, "login", true, "Sign in before mounting the manager")
	runCmd.Flags().StringVar(&email, "email", "", "Account email (defaults to the dev server user)")
	runCmd.Flags().StringVar(&password, "password", "", "Account password (defaults to the dev server user)")
}

func runKeeper(ctx context.Context) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	printBanner(appConfig.GetAppName())

	store, err := openStore(appConfig)
	if err != nil {
		return err
	}
	defer store.Close()
	expirySignal := crosstab.NewSignal(store, crosstab.WithLogger(logger))

	conn, err := connect(ctx, appConfig)
	if err != nil {
		return err
	}

	sessionStore := sessions.NewMemoryStore(expirySignal,
		sessions.WithLogger(logger),
		sessions.WithLogoutHook(conn.logout),
	)
	sessionID, err := sessionStore.SignIn(conn.user, conn.expiresAt)
	if err != nil {
		return err
	}
	logger.Info().Str("session", sessionID).Str("user", conn.user.ID).Time("expiry", conn.expiresAt).Msg("session opened")

	m := lifecycle.New(conn.endpoint, expirySignal, sessionStore,
		lifecycle.WithBuffer(appConfig.GetRefreshBuffer()),
		lifecycle.WithHeartbeat(appConfig.GetHeartbeatInterval()),
		lifecycle.WithLogger(logger),
		lifecycle.WithStateChange(func(from, to lifecycle.State) {
			logger.Debug().Stringer("from", from).Stringer("to", to).Msg("state change")
		}),
		lifecycle.WithRefresherOptions(
			refresh.WithTimeout(appConfig.GetRefreshTimeout()),
			refresh.WithTracer(otel.Tracer(tracerName)),
			refresh.WithLogger(logger),
		),
	)
	if err := m.Start(ctx); err != nil {
		return err
	}
	defer m.Stop()

	unsubscribe := sessionStore.Subscribe(func(*sessions.User) { m.SessionChanged() })
	defer unsubscribe()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, append(visibilitySignals, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)...)
	defer signal.Stop(signals)

	for {
		select {
		case sig := <-signals:
			switch {
			case isVisibilitySignal(sig):
				m.VisibilityRegained()
			case sig == syscall.SIGHUP:
				m.RefreshNow()
			default:
				logger.Info().Str("signal", sig.String()).Msg("shutting down")
				return nil
			}
		case <-m.Done():
			logger.Info().Stringer("state", m.State()).Msg("session ended")
			return nil
		}
	}
}
