package simulate

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/tastegraph/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging sends logs to stdout and to logFile. An empty logFile gets a
// timestamped name.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	if logFile == "" {
		logFile = "simulate_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}
	if err := logger.InitWith(io.MultiWriter(os.Stdout, file), logger.FormatText); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file, nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`TasteGraph Simulator
====================

Seeds a catalog, submits clustered sentiment and duel events, runs the
neighbor job and checks the resulting personalized feeds.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string        Base URL of the service (default "http://localhost:9080")
  -users int         Number of simulated users (default 60)
  -media int         Number of catalog media (default 90)
  -clusters int      Number of taste clusters (default 3)
  -ratings int       Sentiment events per user (default 12)
  -duels int         Duel events per user (default 2)
  -feed int          Feed page size to verify (default 10)
  -workers int       Number of concurrent HTTP workers (default CPU cores * 2)
  -timeout duration  HTTP request timeout (default 10s)
  -wait duration     Time allowed for draining and the neighbor job (default 2m)
  -seed int          Workload seed (default 1)
  -log string        Log file (default: simulate_TIMESTAMP.log)
  -verbose           Enable verbose logging
  -help              Show this help message

Examples:
  go run ./cmd/simulate -users 300 -media 600 -clusters 5
  go run ./cmd/simulate -url http://localhost:8080 -verbose
`)
}
