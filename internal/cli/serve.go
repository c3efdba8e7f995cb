package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/charliek/catview/internal/adb"
	"github.com/charliek/catview/internal/api"
	"github.com/charliek/catview/internal/config"
	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/daemon"
	"github.com/charliek/catview/internal/domain"
	"github.com/charliek/catview/internal/logs"
	"github.com/charliek/catview/internal/provider"
	"github.com/charliek/catview/internal/supervisor"
)

// serveFlags are the options of the serve command
type serveFlags struct {
	detach  bool
	port    int
	anyPort bool
	quiet   bool
	noColor bool
}

var serveOpts serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the catview server",
	Long: `Run the log provider with its HTTP API. Viewers connect with
'catview attach'; client commands find the server through the state
file in .catview/. Without -d, log lines are printed to the terminal.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, serveOpts)
	},
}

func init() {
	serveCmd.Flags().BoolVarP(&serveOpts.detach, "detach", "d", false, "Run in background (daemon mode)")
	serveCmd.Flags().IntVarP(&serveOpts.port, "port", "p", 0, "API port (overrides config)")
	serveCmd.Flags().BoolVar(&serveOpts.anyPort, "any-port", false, "Pick a free API port")
	serveCmd.Flags().BoolVarP(&serveOpts.quiet, "quiet", "q", false, "Do not print log lines")
	serveCmd.Flags().BoolVar(&serveOpts.noColor, "no-color", false, "Disable colored output")
	rootCmd.AddCommand(serveCmd)
}

// isLocalhost checks if the host is a localhost address
func isLocalhost(host string) bool {
	return host == "" || host == "127.0.0.1" || host == "localhost" || host == "::1"
}

// isAuthRequired determines if authentication should be enabled based on config
func isAuthRequired(cfg *config.Config) bool {
	// Explicit config takes precedence
	if cfg.API.Auth != nil {
		return *cfg.API.Auth
	}
	// Auto-determine: auth required unless binding to localhost only
	return !isLocalhost(cfg.API.Host)
}

// configDir returns the directory relative paths in the config resolve against
func configDir() string {
	if abs, err := filepath.Abs(configPath); err == nil {
		return filepath.Dir(abs)
	}
	return filepath.Dir(configPath)
}

// newProvider wires the device bridge, producer command and message hub
// described by cfg
func newProvider(cfg *config.Config) (*provider.Provider, error) {
	env, err := config.LoadProducerEnv(cfg.EnvFile, cfg.ADB.Env, configDir())
	if err != nil {
		return nil, err
	}

	build := supervisor.LogcatCommand(cfg.ADB.Path, env)
	if cfg.ADB.Script != "" {
		build = supervisor.ScriptCommand(config.ExpandHome(cfg.ADB.Script), env)
	}

	return provider.New(provider.Options{
		Bridge:      adb.New(cfg.ADB.Path, adb.ExecRunner{}),
		Hub:         logs.NewManager(logs.DefaultManagerConfig()),
		Store:       config.NewStore(cfg.StateFile),
		Runner:      supervisor.NewExecRunner(),
		Build:       build,
		Defaults:    cfg.DefaultLastConfig(),
		Debug:       cfg.Debug || verbose,
		AutoStart:   cfg.AutoStartEnabled(),
		ExportDir:   config.ExpandHome(cfg.ExportDir),
		PidInterval: cfg.PidRefreshInterval(),
	}), nil
}

// runServe handles the 'serve' command
func runServe(cmd *cobra.Command, opts serveFlags) (err error) {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	if opts.detach && !daemon.IsDaemonChild() {
		if err := daemon.CleanupStaleFiles(cwd); err != nil {
			return err
		}
		return daemon.Daemonize(cwd, constants.DaemonReadyTimeout)
	}
	if daemon.IsDaemonChild() {
		logFile, err := daemon.SetupLogging(cwd)
		if err != nil {
			daemon.NotifyFailed(err)
			return err
		}
		defer logFile.Close()
		opts.quiet = true
		defer func() {
			if err != nil {
				daemon.NotifyFailed(err)
			}
		}()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.port > 0 {
		cfg.API.Port = opts.port
	}
	if opts.anyPort {
		if cfg.API.Port, err = daemon.FindAvailablePort(cfg.API.Host); err != nil {
			return err
		}
	}

	// The lock makes a second server in this directory fail fast
	if err := daemon.EnsureStateDir(cwd); err != nil {
		return err
	}
	lock := daemon.NewServerLock(daemon.LockPath(cwd))
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.WithError(err).Warn("releasing server lock")
		}
	}()

	// Determine if authentication is required
	authEnabled := isAuthRequired(cfg)
	var token string
	if authEnabled {
		if token, err = daemon.GenerateToken(); err != nil {
			return fmt.Errorf("generating auth token: %w", err)
		}
		if err := daemon.SaveToken(cwd, token); err != nil {
			return err
		}
	} else if !isLocalhost(cfg.API.Host) {
		// Warning: auth explicitly disabled on non-localhost
		log.Warnf("Auth disabled while binding to all interfaces (%s); any network client can control this server", cfg.API.Host)
	}

	p, err := newProvider(cfg)
	if err != nil {
		return err
	}
	hub := p.Hub()
	defer hub.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	handlers := api.NewHandlers(p, cfg.ADB.Path, cancel)
	apiServer := api.NewServer(api.ServerConfig{
		Host:        cfg.API.Host,
		Port:        cfg.API.Port,
		AuthEnabled: authEnabled,
		Token:       token,
	}, handlers)

	listener, err := net.Listen("tcp", apiServer.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", apiServer.Addr(), err)
	}

	state := &daemon.State{
		PID:         os.Getpid(),
		Port:        cfg.API.Port,
		Host:        cfg.API.Host,
		StartedAt:   time.Now(),
		ADBPath:     cfg.ADB.Path,
		AuthEnabled: authEnabled,
	}
	if err := lock.SetAddr(state.Addr()); err != nil {
		log.WithError(err).Warn("publishing server address")
	}
	if _, err := os.Stat(configPath); err == nil {
		state.ConfigFile, _ = filepath.Abs(configPath)
	}
	if err := state.Write(cwd); err != nil {
		listener.Close()
		return err
	}
	defer func() {
		if err := daemon.RemoveState(cwd); err != nil {
			log.WithError(err).Debug("removing state file")
		}
	}()
	daemon.NotifyReady(daemon.Ready{PID: state.PID, Addr: state.Addr(), Serial: p.Selected()})

	out := cmd.OutOrStdout()
	scope := "local only"
	if !isLocalhost(cfg.API.Host) {
		scope = "network accessible"
	}
	auth := "no auth"
	if authEnabled {
		auth = "auth enabled"
	}
	fmt.Fprintf(out, "API server: http://%s (%s, %s)\n", apiServer.Addr(), scope, auth)
	if authEnabled {
		fmt.Fprintf(out, "Auth token saved to: %s\n", daemon.TokenPath(cwd))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Run(gctx)
	})
	g.Go(func() error {
		return apiServer.Serve(listener)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
		defer shutdownCancel()
		p.Close()
		return apiServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		trackSelection(gctx, hub, lock, p.Selected)
		return nil
	})
	if !opts.quiet {
		printer := NewLogPrinter(out, opts.noColor)
		g.Go(func() error {
			printHub(gctx, hub, printer)
			return nil
		})
	}

	err = g.Wait()
	fmt.Fprintln(out, "Shutdown complete")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// printHub prints outbound messages until ctx is done
func printHub(ctx context.Context, hub *logs.Manager, printer *LogPrinter) {
	id, ch := hub.Subscribe(logs.Filter{})
	defer hub.Unsubscribe(id)
	defer printer.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			printer.PrintMessage(entry.Message)
		}
	}
}

// trackSelection keeps the lock record naming the selected device. Device
// selection changes are always followed by a devices, status or config
// message.
func trackSelection(ctx context.Context, hub *logs.Manager, lock *daemon.ServerLock, selected func() string) {
	id, ch := hub.Subscribe(logs.Filter{Kinds: []domain.Kind{domain.KindDevices, domain.KindStatus, domain.KindConfig}})
	defer hub.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			if err := lock.SetSerial(selected()); err != nil {
				log.WithError(err).Debug("publishing selected device")
			}
		}
	}
}

// logToFile sends the logger to the server log file so it does not draw
// over a terminal viewer
func logToFile(dir string) (io.Closer, error) {
	if err := daemon.EnsureStateDir(dir); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(daemon.LogPath(dir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	log.SetOutput(f)
	return f, nil
}
