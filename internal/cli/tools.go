package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/charliek/catview/internal/adb"
	"github.com/charliek/catview/internal/config"
	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/domain"
	"github.com/charliek/catview/internal/provider"
	"github.com/charliek/catview/internal/render"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the device log history without a server",
	Args:  cobra.NoArgs,
	RunE:  runDump,
}

var clusterCmd = &cobra.Command{
	Use:   "cluster <file>",
	Short: "Group the lines of a log file by pattern",
	Long: `Group the lines of a log file by pattern. Identifiers, addresses,
paths and numbers are replaced by placeholders, so lines that differ only
in those are counted together. Files ending in .zst are decompressed.`,
	Args: cobra.ExactArgs(1),
	RunE: runCluster,
}

var (
	dumpSerial   string
	dumpLines    int
	dumpOutput   string
	clusterTop   int
	clusterShown int
)

func init() {
	dumpCmd.Flags().StringVarP(&dumpSerial, "serial", "s", "", "Device serial (default: configured or only online device)")
	dumpCmd.Flags().IntVarP(&dumpLines, "lines", "n", constants.MaxHistoryLines, "Number of lines")
	dumpCmd.Flags().StringVarP(&dumpOutput, "output", "o", "", "Write to a file instead of the terminal (.zst compresses)")
	dumpCmd.Flags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output")

	clusterCmd.Flags().IntVar(&clusterTop, "top", 20, "Number of patterns to show (0 for all)")
	clusterCmd.Flags().IntVar(&clusterShown, "samples", 0, "Sample lines to show per pattern")
	clusterCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	rootCmd.AddCommand(dumpCmd, clusterCmd)
}

// runDump handles the 'dump' command
func runDump(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if dumpLines < 1 {
		return fmt.Errorf("invalid lines value %d (must be a positive integer)", dumpLines)
	}

	ctx := cmd.Context()
	bridge := adb.New(cfg.ADB.Path, adb.ExecRunner{})
	serial, err := dumpTarget(ctx, bridge, cfg)
	if err != nil {
		return err
	}

	text, err := bridge.DumpHistory(ctx, serial, dumpLines)
	if err != nil {
		return err
	}

	if dumpOutput != "" {
		path := provider.ExportPath(cfg.ExportDir, dumpOutput)
		if err := provider.WriteExport(path, text); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	}

	printer := NewLogPrinter(cmd.OutOrStdout(), noColorFlag)
	printer.PrintMessage(domain.HistoryDumpMsg{Text: text})
	return nil
}

// dumpTarget picks the device to dump: the flag, the configured serial,
// or the only online device
func dumpTarget(ctx context.Context, bridge *adb.Bridge, cfg *config.Config) (string, error) {
	if dumpSerial != "" {
		return dumpSerial, nil
	}
	if cfg.Stream.Serial != "" {
		return cfg.Stream.Serial, nil
	}

	devices, err := bridge.Devices(ctx)
	if err != nil {
		return "", err
	}
	var online []string
	for _, d := range devices {
		if d.Status.IsOnline() {
			online = append(online, d.Serial)
		}
	}
	switch len(online) {
	case 0:
		return "", domain.ErrNoDeviceSelected
	case 1:
		return online[0], nil
	default:
		return "", fmt.Errorf("%w: several devices online (%s), pick one with --serial",
			domain.ErrNoDeviceSelected, strings.Join(online, ", "))
	}
}

// runCluster handles the 'cluster' command
func runCluster(cmd *cobra.Command, args []string) error {
	text, err := provider.ReadImport(args[0])
	if err != nil {
		return err
	}
	clusters := render.BuildClusters(provider.TailLines(text, constants.MaxImportLines), render.ClusterOptions{})
	if clusterTop > 0 && len(clusters) > clusterTop {
		clusters = clusters[:clusterTop]
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if clusters == nil {
			clusters = []render.Cluster{}
		}
		return writeJSON(out, clusters)
	}
	if len(clusters) == 0 {
		fmt.Fprintln(out, "No lines")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COUNT\tPATTERN")
	for _, c := range clusters {
		fmt.Fprintf(w, "%d\t%s\n", c.Count, c.Pattern)
		for i, sample := range c.Samples {
			if i >= clusterShown {
				break
			}
			fmt.Fprintf(w, "\t  %s\n", sample)
		}
	}
	return w.Flush()
}
