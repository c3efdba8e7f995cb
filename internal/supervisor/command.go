package supervisor

import (
	"strings"

	"github.com/charliek/catview/internal/domain"
)

// CommandBuilder turns a session into the producer invocation
type CommandBuilder func(domain.Session) Command

// ScriptCommand invokes a logcat wrapper script with the flag contract
// -s serial -p package -t tag -l level -b buffer --no-color [-f] [--since ts].
func ScriptCommand(path string, env map[string]string) CommandBuilder {
	return func(s domain.Session) Command {
		merged := map[string]string{"DISABLE_SCRIPT": "1"}
		for k, v := range env {
			merged[k] = v
		}
		return Command{Name: path, Args: ScriptArgs(s), Env: merged}
	}
}

// ScriptArgs builds the wrapper script arguments
func ScriptArgs(s domain.Session) []string {
	var args []string
	if s.Serial != "" {
		args = append(args, "-s", s.Serial)
	}
	if s.Package != "" {
		args = append(args, "-p", s.Package)
	}
	if tag := strings.TrimSpace(s.Tag); tag != "" {
		args = append(args, "-t", tag)
	}
	if s.Level != "" {
		args = append(args, "-l", s.Level)
	}
	if s.Buffer != "" {
		args = append(args, "-b", s.Buffer)
	}
	args = append(args, "--no-color")
	if s.Save {
		args = append(args, "-f")
	}
	if s.Since != "" {
		args = append(args, "--since", s.Since)
	}
	return args
}

// LogcatCommand runs the device bridge's logcat directly. Package
// filtering is left to the viewer in this mode.
func LogcatCommand(adbPath string, env map[string]string) CommandBuilder {
	return func(s domain.Session) Command {
		return Command{Name: adbPath, Args: LogcatArgs(s), Env: env}
	}
}

// LogcatArgs builds native logcat arguments equivalent to ScriptArgs
func LogcatArgs(s domain.Session) []string {
	var args []string
	if s.Serial != "" {
		args = append(args, "-s", s.Serial)
	}
	args = append(args, "logcat", "-v", "threadtime")
	for _, b := range bufferNames(s.Buffer) {
		args = append(args, "-b", b)
	}
	if s.Since != "" {
		args = append(args, "-T", s.Since)
	}

	level := strings.ToUpper(s.Level)
	if level == "" {
		level = "V"
	}
	tag := strings.TrimSpace(s.Tag)
	if tag == "" || tag == "*" {
		args = append(args, "*:"+level)
	} else {
		args = append(args, tag+":"+level, "*:S")
	}
	return args
}

// BufferMarkers returns the synthetic start lines for a buffer selection
func BufferMarkers(buffer string) []string {
	names := bufferNames(buffer)
	lines := make([]string, 0, len(names))
	for _, b := range names {
		lines = append(lines, "--------- beginning of "+b+"\n")
	}
	return lines
}

func bufferNames(buffer string) []string {
	b := strings.ToLower(strings.TrimSpace(buffer))
	switch b {
	case "", "main":
		return []string{"main"}
	case "all":
		return []string{"main", "system", "events", "radio"}
	default:
		return []string{b}
	}
}

const processRule = "----------------------------"

// ProcessStartedMarker is injected once the package pid is known
func ProcessStartedMarker(pid, pkg string) string {
	return processMarker("PROCESS STARTED", pid, pkg)
}

// ProcessEndedMarker is injected when a package-targeted stream exits
func ProcessEndedMarker(pid, pkg string) string {
	return processMarker("PROCESS ENDED", pid, pkg)
}

func processMarker(event, pid, pkg string) string {
	if pid == "" {
		pid = "unknown"
	}
	return processRule + " " + event + " (" + pid + ") for package " + pkg + " " + processRule + "\n"
}
