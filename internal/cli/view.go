package cli

import (
	"context"
	"errors"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/charliek/catview/internal/config"
	"github.com/charliek/catview/internal/domain"
	"github.com/charliek/catview/internal/tui"
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Open the log viewer with an in-process provider",
	Args:  cobra.NoArgs,
	RunE:  runView,
}

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Open the log viewer on a running server",
	Args:  cobra.NoArgs,
	RunE:  runAttach,
}

func init() {
	rootCmd.AddCommand(viewCmd, attachCmd)
	// Running catview without a command opens the viewer
	rootCmd.RunE = runView
}

// viewOptions builds the viewer options shared by view and attach
func viewOptions(cfg *config.Config, host tui.Host) tui.Options {
	return tui.Options{
		Host:      host,
		PrefsPath: cfg.PrefsFile,
		Defaults: domain.ViewState{
			Wrap:          cfg.View.Wrap,
			CaseSensitive: cfg.View.CaseSensitive,
			Serial:        cfg.Stream.Serial,
		},
		MaxChars: cfg.View.MaxChars,
	}
}

// runView runs the provider and the terminal viewer side by side. The
// viewer quitting stops the provider.
func runView(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	logFile, err := logToFile(cwd)
	if err != nil {
		return err
	}
	defer logFile.Close()

	p, err := newProvider(cfg)
	if err != nil {
		return err
	}
	defer p.Hub().Close()

	g, ctx := errgroup.WithContext(cmd.Context())
	viewCtx, stopViewer := context.WithCancel(ctx)
	defer stopViewer()

	g.Go(func() error {
		return p.Run(viewCtx)
	})
	g.Go(func() error {
		defer stopViewer()
		return tui.Run(viewCtx, viewOptions(cfg, p.Local()))
	})

	err = g.Wait()
	p.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runAttach connects the terminal viewer to a running server. Quitting
// leaves the server running.
func runAttach(cmd *cobra.Command, args []string) error {
	addr, err := runningAddr()
	if err != nil {
		return err
	}

	client := NewClient(addr)
	if _, err := client.GetStatus(cmd.Context()); err != nil {
		return err
	}

	// Viewer preferences are local; a missing config means defaults
	cfg, err := loadConfig(cmd)
	if err != nil {
		log.WithError(err).Debug("using default viewer settings")
		cfg = config.Default()
	}

	opts := viewOptions(cfg, client)
	opts.Attached = true
	opts.Title = "catview (attached)"
	return tui.Run(cmd.Context(), opts)
}
