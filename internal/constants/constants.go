// Package constants provides shared configuration values used across the catview application.
package constants

import "time"

// Configuration file defaults
const (
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "catview.yaml"

	// DefaultAPIHost is the default host for the API server
	DefaultAPIHost = "127.0.0.1"

	// DefaultAPIPort is the default port for the API server
	DefaultAPIPort = 5577

	// DefaultAPIAddress is the default API address for client connections
	DefaultAPIAddress = "http://127.0.0.1:5577"

	// DefaultADBPath is the device bridge executable looked up on PATH
	DefaultADBPath = "adb"

	// DefaultStateFile stores the last used stream configuration
	DefaultStateFile = "~/.config/catview/state.json"

	// DefaultPrefsFile stores viewer preferences
	DefaultPrefsFile = "~/.config/catview/prefs.toml"

	// DefaultExportFilename is suggested when exporting the backlog
	DefaultExportFilename = "AndroidLog.txt"
)

// Timeout and duration defaults
const (
	// DefaultRequestTimeout is the default timeout for API requests
	DefaultRequestTimeout = 30 * time.Second

	// DefaultShutdownTimeout is the default timeout for graceful shutdown
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultCommandTimeout bounds one-shot device bridge commands
	DefaultCommandTimeout = 10 * time.Second

	// DaemonReadyTimeout bounds the wait for a detached server to serve
	DaemonReadyTimeout = 15 * time.Second
)

// Stream controller timings
const (
	// AppendFlushInterval is the coalescing window for forwarded output
	AppendFlushInterval = 33 * time.Millisecond

	// AppendSizeThreshold forces an immediate flush of pending output
	AppendSizeThreshold = 64 * 1024

	// OutputDrainTimeout bounds the wait for output readers after exit
	OutputDrainTimeout = 5 * time.Second

	// ChunkReadSize is the read size used for raw process output
	ChunkReadSize = 64 * 1024
)

// Device lifecycle timings
var (
	// DeviceRefreshDelay debounces device list updates
	DeviceRefreshDelay = 150 * time.Millisecond

	// DevicePollInterval is how often the device list is rescanned
	DevicePollInterval = 2 * time.Second

	// DeviceRetryDelays are the backoff steps used while no device is listed
	DeviceRetryDelays = []time.Duration{
		300 * time.Millisecond,
		800 * time.Millisecond,
		1500 * time.Millisecond,
		2500 * time.Millisecond,
		4000 * time.Millisecond,
	}

	// DeviceWaitTimeouts are the escalating windows for an offline device
	DeviceWaitTimeouts = []time.Duration{
		15 * time.Second,
		30 * time.Second,
		60 * time.Second,
	}
)

// PID map timings
const (
	// PidMapRefreshInterval is the default polling interval
	PidMapRefreshInterval = time.Second

	// PidMapMinInterval is the lower bound on the polling interval
	PidMapMinInterval = 500 * time.Millisecond

	// PidMapDemandThrottle limits refreshes triggered by misses
	PidMapDemandThrottle = 500 * time.Millisecond

	// PidMapRebuildDelay coalesces view rebuilds after map updates
	PidMapRebuildDelay = 50 * time.Millisecond
)

// Stream defaults
const (
	DefaultTag    = "*"
	DefaultLevel  = "D"
	DefaultBuffer = "main"

	// MaxHistoryLines is the default line count for history dumps
	MaxHistoryLines = 5000

	// MaxDumpHistoryLines is the line count requested by the viewer
	MaxDumpHistoryLines = 10000

	// MaxImportLines truncates oversized imports to their tail
	MaxImportLines = 10000

	// SinceTimeFormat is the logcat -T timestamp layout
	SinceTimeFormat = "01-02 15:04:05.000"
)

// Render engine limits
const (
	// MaxBacklogChars caps the backlog, trimmed from the head
	MaxBacklogChars = 2_000_000

	// FrameInterval is the render frame period used by the terminal viewer
	FrameInterval = 16 * time.Millisecond

	// TagColumnWidth is the display width of the tag column
	TagColumnWidth = 23

	// PackageColumnWidth is the display width of the package column
	PackageColumnWidth = 30

	// MaxPatternLength bounds filter and find expressions
	MaxPatternLength = 256

	// FollowToleranceLines is how far above the bottom the view still follows
	FollowToleranceLines = 2
)

// Clustering limits
const (
	// MaxClusters caps distinct patterns tracked by the clusterer
	MaxClusters = 2000

	// MaxClusterSamples is the number of sample lines kept per cluster
	MaxClusterSamples = 5
)

// API limits
const (
	// DefaultLogLimit is the default number of messages returned by queries
	DefaultLogLimit = 100

	// MaxLogLines caps the number of messages returned by queries
	MaxLogLines = 10000
)

// Buffer sizes
const (
	// DefaultMessageBufferSize is the number of outbound messages kept for replay
	DefaultMessageBufferSize = 1000

	// DefaultSubscriptionBuffer is the default size for subscription buffers
	DefaultSubscriptionBuffer = 256

	// ScannerBufferSize is the read buffer size for event streams
	ScannerBufferSize = 64 * 1024 // 64KB
)
