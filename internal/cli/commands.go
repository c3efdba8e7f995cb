package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/charliek/catview/internal/config"
	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/daemon"
	"github.com/charliek/catview/internal/domain"
	"github.com/charliek/catview/internal/logs"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and stream status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List attached devices",
	Args:  cobra.NoArgs,
	RunE:  runDevices,
}

var pidsCmd = &cobra.Command{
	Use:   "pids",
	Short: "Show the process names known for the selected device",
	Args:  cobra.NoArgs,
	RunE:  runPids,
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print recent log output from the server",
	Args:  cobra.NoArgs,
	RunE:  runLogs,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a stream",
	Args:  cobra.NoArgs,
	RunE:  runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the stream",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendAndReport(cmd, domain.StopMsg{}, "Stream stopped")
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the stream, keeping its configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendAndReport(cmd, domain.PauseMsg{}, "Stream paused")
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused stream",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := NewClient(apiAddr).Resume(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Stream resumed")
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart [serial]",
	Short: "Restart the stream, optionally on another device",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg := domain.RestartMsg{}
		if len(args) == 1 {
			msg.Serial = args[0]
		}
		return sendAndReport(cmd, msg, "Stream restarted")
	},
}

var selectCmd = &cobra.Command{
	Use:   "select <serial>",
	Short: "Select the device to stream from",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendAndReport(cmd, domain.SelectDeviceMsg{Serial: args[0]}, "Selected "+args[0])
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Shut down the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := NewClient(apiAddr).Shutdown(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Shutdown initiated")
		return nil
	},
}

// Command flags
var (
	jsonOutput    bool
	refreshFlag   bool
	followFlag    bool
	linesFlag     int
	kindsFlag     string
	noColorFlag   bool
	startFlags    domain.StartMsg
	startSinceNow bool
)

func init() {
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	devicesCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	devicesCmd.Flags().BoolVarP(&refreshFlag, "refresh", "r", false, "Rescan devices first")

	pidsCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	logsCmd.Flags().BoolVarP(&followFlag, "follow", "f", false, "Follow new output")
	logsCmd.Flags().IntVarP(&linesFlag, "lines", "n", constants.DefaultLogLimit, "Number of stored messages to show")
	logsCmd.Flags().StringVar(&kindsFlag, "kinds", "append,status", "Message kinds to show, comma separated")
	logsCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output raw messages as JSON")
	logsCmd.Flags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output")

	startCmd.Flags().StringVarP(&startFlags.Serial, "serial", "s", "", "Device serial (default: selected device)")
	startCmd.Flags().StringVarP(&startFlags.Pkg, "pkg", "p", "", "Only show this package")
	startCmd.Flags().StringVarP(&startFlags.Tag, "tag", "t", "", "Tag filter")
	startCmd.Flags().StringVarP(&startFlags.Level, "level", "l", "", "Minimum priority (V, D, I, W, E, F)")
	startCmd.Flags().StringVarP(&startFlags.Buffer, "buffer", "b", "", "Log buffer (main, system, crash, events, all)")
	startCmd.Flags().BoolVar(&startFlags.Save, "save", false, "Keep a copy of the output on the host")
	startCmd.Flags().BoolVar(&startSinceNow, "since-now", false, "Skip output logged before the start")

	rootCmd.AddCommand(statusCmd, devicesCmd, pidsCmd, logsCmd, startCmd, stopCmd, pauseCmd,
		resumeCmd, restartCmd, selectCmd, downCmd)
}

// sendAndReport sends one inbound message and prints done on success
func sendAndReport(cmd *cobra.Command, msg domain.Message, done string) error {
	if err := NewClient(apiAddr).Send(cmd.Context(), msg); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), done)
	return nil
}

// runStatus handles the 'status' command
func runStatus(cmd *cobra.Command, args []string) error {
	client := NewClient(apiAddr)
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	status, err := client.GetStatus(ctx)
	if err != nil {
		return err
	}
	stream, err := client.GetStream(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(out, map[string]interface{}{
			"status": status,
			"stream": stream,
		})
	}

	fmt.Fprintf(out, "Status:   %s\n", status.Status)
	fmt.Fprintf(out, "Uptime:   %s\n", formatDuration(time.Duration(status.UptimeSeconds)*time.Second))
	fmt.Fprintf(out, "ADB:      %s\n", status.ADBPath)
	fmt.Fprintf(out, "Selected: %s\n", valueOr(status.Selected, "none"))
	fmt.Fprintf(out, "Messages: %d stored, %d subscribers\n", status.Hub.BufferSize, status.Hub.Subscribers)
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STREAM\tSERIAL\tPKG\tTAG\tLEVEL\tBUFFER\tPID\tUPTIME")
	fmt.Fprintln(w, "------\t------\t---\t---\t-----\t------\t---\t------")
	uptime := "-"
	if stream.StartedAt != "" {
		uptime = formatDuration(time.Duration(stream.UptimeSeconds) * time.Second)
	}
	pid := "-"
	if stream.PID > 0 {
		pid = fmt.Sprint(stream.PID)
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		stream.State, valueOr(stream.Serial, "-"), valueOr(stream.Package, "-"),
		valueOr(stream.Tag, "-"), valueOr(stream.Level, "-"), valueOr(stream.Buffer, "-"),
		pid, uptime)
	return w.Flush()
}

// runDevices handles the 'devices' command
func runDevices(cmd *cobra.Command, args []string) error {
	resp, err := NewClient(apiAddr).GetDevices(cmd.Context(), refreshFlag)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if jsonOutput {
		return writeJSON(out, resp)
	}
	if len(resp.Devices) == 0 {
		fmt.Fprintln(out, "No devices attached")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tSERIAL\tMODEL\tSTATUS")
	for _, d := range resp.Devices {
		marker := ""
		if d.Serial == resp.Selected {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", marker, d.Serial, valueOr(d.Model, "-"), d.Status)
	}
	return w.Flush()
}

// runPids handles the 'pids' command
func runPids(cmd *cobra.Command, args []string) error {
	resp, err := NewClient(apiAddr).GetPids(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if jsonOutput {
		return writeJSON(out, resp)
	}
	if len(resp.Pids) == 0 {
		fmt.Fprintln(out, "No processes known")
		return nil
	}

	pids := make([]int, 0, len(resp.Pids))
	for k := range resp.Pids {
		if pid, err := strconv.Atoi(k); err == nil {
			pids = append(pids, pid)
		}
	}
	sort.Ints(pids)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PID\tNAME")
	for _, pid := range pids {
		fmt.Fprintf(w, "%d\t%s\n", pid, resp.Pids[strconv.Itoa(pid)])
	}
	return w.Flush()
}

// runLogs handles the 'logs' command
func runLogs(cmd *cobra.Command, args []string) error {
	if linesFlag < 1 {
		return fmt.Errorf("invalid lines value %d (must be a positive integer)", linesFlag)
	}
	kinds, err := logs.ParseKinds(kindsFlag)
	if err != nil {
		return err
	}

	client := NewClient(apiAddr)
	out := cmd.OutOrStdout()
	printer := NewLogPrinter(out, noColorFlag)
	defer printer.Flush()

	print := func(entry logs.Entry) {
		if jsonOutput {
			if err := json.NewEncoder(out).Encode(entry); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to encode message: %v\n", err)
			}
			return
		}
		printer.PrintMessage(entry.Message)
	}
	params := MessageParams{Kinds: kinds, Limit: linesFlag}

	if followFlag {
		return client.StreamEvents(cmd.Context(), params, linesFlag, print)
	}

	resp, err := client.GetMessages(cmd.Context(), params)
	if err != nil {
		return err
	}
	for _, entry := range resp.Messages {
		print(entry)
	}
	return nil
}

// runStart handles the 'start' command
func runStart(cmd *cobra.Command, args []string) error {
	msg := startFlags
	if msg.Level != "" {
		if err := config.ValidateLevel(msg.Level); err != nil {
			return err
		}
	}
	if msg.Buffer != "" {
		if err := config.ValidateBuffer(msg.Buffer); err != nil {
			return err
		}
	}
	if startSinceNow {
		msg.Since = time.Now().Format(constants.SinceTimeFormat)
	}

	client := NewClient(apiAddr)
	if msg.Serial == "" {
		status, err := client.GetStatus(cmd.Context())
		if err != nil {
			return err
		}
		if status.Selected == "" {
			return domain.ErrNoDeviceSelected
		}
		msg.Serial = status.Selected
	}

	if err := client.Send(cmd.Context(), msg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stream starting on %s\n", msg.Serial)
	return nil
}

// runningAddr resolves the address of a running server, preferring an
// explicit --addr
func runningAddr() (string, error) {
	if apiAddrExplicitlySet {
		return apiAddr, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	state, err := daemon.GetRunningState(cwd)
	switch {
	case err == nil:
		return state.Addr(), nil
	case errors.Is(err, daemon.ErrNotRunning):
		return "", fmt.Errorf("%w; start it with 'catview serve -d' first", err)
	case errors.Is(err, daemon.ErrStateNotFound):
		// a server still starting has published its lock but not its state
		if rec, lerr := daemon.Serving(cwd); lerr == nil && rec.Addr != "" {
			return rec.Addr, nil
		}
	}
	return "", err
}

// writeJSON writes v as indented JSON
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// valueOr returns def for an empty value
func valueOr(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
