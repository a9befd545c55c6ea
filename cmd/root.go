// -- cmd/root.go --
package cmd

import (
	"context"
	"fmt"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/puppetry-cli/internal/config"
	"github.com/xkilldash9x/puppetry-cli/internal/observability"
)

var (
	cfgFile string
	// cfg is populated in PersistentPreRunE and read by every subcommand.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "puppetry",
	Short:   "Puppetry drives a headless Chrome over the DevTools protocol.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initializeConfig(); err != nil {
			return err
		}

		loaded, err := config.Load(viper.GetViper())
		if err != nil {
			// Initialize a fallback logger so the error is at least visible.
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "puppetry"})
			return err
		}
		cfg = loaded

		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Debug("Starting puppetry.", zap.String("version", Version))
		return nil
	},
}

// Execute runs the root command with the given signal-aware context.
func Execute(ctx context.Context) error {
	defer observability.Sync()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (default is ~/.puppetry.yaml, then ./.puppetry.yaml)")
	pf.String("remote-url", "", "attach to a running browser's debugging endpoint instead of launching one")
	pf.Bool("headless", true, "run the browser headless")
	pf.String("exec-path", "", "path to the Chrome/Chromium binary")
	pf.String("log-level", "", "log level (debug, info, warn, error)")

	cobra.CheckErr(viper.BindPFlag("browser.remote_url", pf.Lookup("remote-url")))
	cobra.CheckErr(viper.BindPFlag("browser.headless", pf.Lookup("headless")))
	cobra.CheckErr(viper.BindPFlag("browser.exec_path", pf.Lookup("exec-path")))
	cobra.CheckErr(viper.BindPFlag("logger.level", pf.Lookup("log-level")))

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// initializeConfig reads the config file and environment into viper.
func initializeConfig() error {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := homedir.Dir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".puppetry")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("PUPPETRY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file found; defaults and env vars apply.
	}
	return nil
}
