package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/tastegraph/internal/simulate"
	"github.com/okian/tastegraph/pkg/logger"
)

const (
	defaultWorkers  = 2 // multiplier for runtime.NumCPU()
	defaultDeadline = 10 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		users    = flag.Int("users", 60, "Number of simulated users")
		media    = flag.Int("media", 90, "Number of catalog media")
		clusters = flag.Int("clusters", 3, "Number of taste clusters")
		ratings  = flag.Int("ratings", 12, "Sentiment events per user")
		duels    = flag.Int("duels", 2, "Duel events per user")
		feed     = flag.Int("feed", 10, "Feed page size to verify")
		workers  = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent HTTP workers")
		timeout  = flag.Duration("timeout", 10*time.Second, "HTTP request timeout")
		wait     = flag.Duration("wait", 2*time.Minute, "Time allowed for draining and the neighbor job")
		seed     = flag.Int64("seed", 1, "Workload seed")
		logFile  = flag.String("log", "", "Log file (default: simulate_TIMESTAMP.log)")
		verbose  = flag.Bool("verbose", false, "Enable verbose logging")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	closer, err := simulate.SetupLogging(*logFile, *verbose)
	if err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultDeadline)
	_, err = simulate.Run(ctx, &simulate.Config{
		BaseURL:        *baseURL,
		Users:          *users,
		Media:          *media,
		Clusters:       *clusters,
		RatingsPerUser: *ratings,
		DuelsPerUser:   *duels,
		FeedLimit:      *feed,
		Workers:        *workers,
		Timeout:        *timeout,
		DrainTimeout:   *wait,
		Seed:           *seed,
		Verbose:        *verbose,
	})
	cancel()
	_ = closer.Close()
	if err != nil {
		logger.Get().Error(context.Background(), "simulation failed", logger.Error(err))
		os.Exit(1)
	}
}
