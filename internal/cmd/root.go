package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/flightontime/flightontime/internal/appid"
	"github.com/flightontime/flightontime/internal/config"
	"github.com/flightontime/flightontime/internal/observability"
	"github.com/flightontime/flightontime/internal/server/handlers"
)

var (
	cfgFile string
	verbose bool

	appIdentity *appidentity.Identity

	// Version info set by main package
	versionInfo handlers.BuildInfo
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo = handlers.BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
	}
}

// GetAppIdentity returns the application identity.
func GetAppIdentity() *appidentity.Identity {
	return appIdentity
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           filepath.Base(os.Args[0]),
	Short:         appid.Description,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Keep library telemetry quiet until serve installs the exporter.
	observability.DisableGlobalTelemetry()

	identity, _ := appid.Get(context.Background())
	appIdentity = identity
	rootCmd.Use = identity.BinaryName
	rootCmd.Long = fmt.Sprintf("%s - %s\n\nUse the subcommands to perform specific operations.", identity.BinaryName, identity.Description)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", identity.ConfigName))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig registers defaults, environment bindings and the optional
// config file on the global viper instance.
func initConfig() {
	observability.InitCLILogger(appIdentity.BinaryName, verbose)

	v := viper.GetViper()
	config.SetDefaults(v)
	config.BindEnv(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if dir := gfconfig.GetAppConfigDir(appIdentity.ConfigName); dir != "" {
			v.AddConfigPath(dir)
		} else if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, "."+appIdentity.ConfigName))
		}
		v.AddConfigPath("./config")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err == nil {
		observability.CLILogger.Debug("Using config file", zap.String("path", v.ConfigFileUsed()))
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		observability.CLILogger.Debug("No config file found, using defaults and environment variables")
	} else {
		observability.CLILogger.Warn("Error reading config file", zap.Error(err))
	}
}

// loadConfig decodes and validates the global viper state.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}
