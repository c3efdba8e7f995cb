package supervisor

import (
	"os"
	"syscall"
)

// Signal definitions for cross-platform compatibility
var (
	sigint  os.Signal = syscall.SIGINT
	sigterm os.Signal = syscall.SIGTERM
	sigkill os.Signal = syscall.SIGKILL
)
