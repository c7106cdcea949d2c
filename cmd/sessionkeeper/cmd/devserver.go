package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jrsteele09/go-session-keeper/internal/devserver"
	"github.com/spf13/cobra"
)

var devServerCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local refresh endpoint for development",
	RunE: func(cmd *cobra.Command, args []string) error {
		handler, err := devserver.New(appConfig)
		if err != nil {
			return err
		}

		server := &http.Server{
			Addr:              appConfig.GetPort(),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server.ListenAndServe %w", err)
				return
			}
			done <- nil
		}()

		printBanner(appConfig.GetAppName())
		logger.Info().Str("addr", server.Addr).Str("issuer", handler.Issuer()).Str("user", handler.User().Email).Msg("dev server listening")

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server.Shutdown: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(devServerCmd)
}
