package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charliek/catview/internal/config"
	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/daemon"
	"github.com/charliek/catview/internal/domain"
)

// Version is set during build
var Version = "dev"

// Global flags
var (
	configPath           string
	apiAddr              string
	apiAddrExplicitlySet bool
	verbose              bool
)

// clientCommands talk to a running server and need its address
var clientCommands = map[string]bool{
	"status":  true,
	"devices": true,
	"pids":    true,
	"logs":    true,
	"start":   true,
	"stop":    true,
	"pause":   true,
	"resume":  true,
	"restart": true,
	"select":  true,
	"down":    true,
	"attach":  true,
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "catview",
	Short: "An Android log viewer",
	Long: `catview streams Android device logs into a terminal viewer. It supports:
  - Starting, pausing and restarting logcat per device and package
  - Filtering, find and pattern clustering over the backlog
  - Following devices as they disconnect and come back
  - Exporting and importing log files
  - A background server with an HTTP API for remote viewers`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(verbose)

		// Check if --addr was explicitly provided
		if cmd.Flags().Changed("addr") {
			apiAddrExplicitlySet = true
		}

		// For client commands, try to discover API address if not explicitly set
		if clientCommands[cmd.Name()] && !apiAddrExplicitlySet {
			apiAddr = discoverAPIAddress()
		}
	},
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, daemon.ErrNotRunning) || isConnectionError(err) {
			fmt.Fprintf(os.Stderr, "Is catview running? Try 'catview serve -d' first.\n")
		}
		os.Exit(1)
	}
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "catview version %s\n", Version)
	},
}

func init() {
	// Persistent flags available to all subcommands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", constants.DefaultConfigFile, "Config file")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", constants.DefaultAPIAddress, "API address for remote commands")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	// Set version template
	rootCmd.SetVersionTemplate("catview version {{.Version}}\n")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// setupLogging configures the package-level logger
func setupLogging(debug bool) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// loadConfig reads the config file, falling back to defaults when there is
// none. Explicitly named files must exist.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, domain.ErrConfigNotFound) && !cmd.Flags().Changed("config") {
		log.WithField("path", configPath).Debug("no config file, using defaults")
		return config.Default(), nil
	}
	return nil, err
}

// loadAPIAddrFromConfig attempts to read the API address from the config file.
// Returns empty string if config doesn't exist or can't be read.
func loadAPIAddrFromConfig() string {
	cfg, err := config.Load(configPath)
	if err != nil {
		return "" // Config doesn't exist or is invalid, use default
	}

	host := cfg.API.Host
	if host == "" {
		host = constants.DefaultAPIHost
	}
	port := cfg.API.Port
	if port == 0 {
		port = constants.DefaultAPIPort
	}

	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// discoverAPIAddress attempts to discover the API address.
// Priority:
// 1. State file (.catview/catview.state) - for running servers
// 2. Config file (catview.yaml) - for configured port
// 3. Default address
func discoverAPIAddress() string {
	// First, try to load from state file
	cwd, err := os.Getwd()
	if err == nil {
		state, err := daemon.LoadState(cwd)
		if err == nil {
			return state.Addr()
		}
	}

	// Fall back to config file
	if addr := loadAPIAddrFromConfig(); addr != "" {
		return addr
	}

	// Fall back to default
	return constants.DefaultAPIAddress
}

// isConnectionError reports whether err means the server could not be reached
func isConnectionError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
