package debug

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var (
	file    *os.File
	logger  *slog.Logger
	mu      sync.Mutex
	enabled bool
)

// Enable starts debug logging to ~/.config/go-conductor/debug.log
func Enable() error {
	homeDir, _ := os.UserHomeDir()
	dir := filepath.Join(homeDir, ".config", "go-conductor")

	// Ensure directory exists
	os.MkdirAll(dir, 0755)

	return EnableFile(filepath.Join(dir, "debug.log"))
}

// EnableFile starts debug logging to the given path (truncated).
func EnableFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	mu.Lock()
	if file != nil {
		file.Close()
	}
	file = f
	mu.Unlock()

	EnableWriter(f)
	return nil
}

// EnableWriter routes debug logging to w. The console owns stdout, so this is
// never os.Stdout while the TUI runs.
func EnableWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	enabled = true

	// Write directly (can't call Log - we hold the mutex)
	logger.Info("=== Debug logging started ===", "category", "debug")
}

// Disable stops debug logging
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		file.Close()
		file = nil
	}
	logger = nil
	enabled = false
}

// Enabled reports whether Log writes anywhere.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// Log writes a message to the debug log
func Log(category, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()

	if !enabled || logger == nil {
		return
	}

	logger.Info(fmt.Sprintf(format, args...), "category", category)
	if file != nil {
		file.Sync() // flush immediately so we see logs even on crash
	}
}

// LogEvery logs only every N calls (use for high-frequency events)
var counters = make(map[string]int)

func LogEvery(n int, category, format string, args ...any) {
	mu.Lock()
	key := category + format
	counters[key]++
	count := counters[key]
	mu.Unlock()

	if count%n == 0 {
		Log(category, format+" (every %d, count=%d)", append(args, n, count)...)
	}
}
