package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-session-keeper/crosstab/boltstore"
	"github.com/jrsteele09/go-session-keeper/internal/config"
	"github.com/jrsteele09/go-session-keeper/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath string

	appConfig config.Config
	logger    zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sessionkeeper",
	Short: "Session Keeper keeps a signed-in session's credential fresh",
	Long: `Session Keeper refreshes a short lived access credential shortly before it
expires, shares the expiry with every other instance using the same store, and
logs the session out when a refresh fails.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		appConfig = cfg
		logger = logging.Setup(cfg)
		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file")
}

// openStore opens the shared session store, creating its folder if needed.
func openStore(cfg config.StoreConfig) (*boltstore.Store, error) {
	path := cfg.GetStorePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store folder: %w", err)
	}
	store, err := boltstore.New(path,
		boltstore.WithOpenTimeout(cfg.GetStoreOpenTimeout()),
		boltstore.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store %s: %w", path, err)
	}
	return store, nil
}

func printBanner(appName string) {
	myFigure := figure.NewFigure(appName, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
