// Package neighbors discovers taste neighbors by comparing affinity profiles.
package neighbors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/tastegraph/internal/domain/model"
	"github.com/okian/tastegraph/internal/domain/similarity"
	"github.com/okian/tastegraph/pkg/logger"
	"github.com/okian/tastegraph/pkg/metrics"
)

// ErrAlreadyRunning is returned when Run is called while a run is in progress.
var ErrAlreadyRunning = errors.New("neighbor job already running")

// Report summarizes one run.
type Report struct {
	UsersScanned   int           `json:"users_scanned"`
	UsersWithEdges int           `json:"users_with_edges"`
	UsersFailed    int           `json:"users_failed"`
	EdgesWritten   int           `json:"edges_written"`
	Duration       time.Duration `json:"duration"`
}

// Job rebuilds the neighbor graph.
type Job struct {
	source AffinitySource
	edges  EdgeWriter
	sim    *similarity.Calculator
	log    logger.Logger

	minShared int
	minScore  int
	topK      int
	workers   int
	pageSize  int

	running atomic.Bool
	mu      sync.Mutex
	last    Report
}

// NewJob creates a Job.
func NewJob(source AffinitySource, edges EdgeWriter, sim *similarity.Calculator, opts ...Option) *Job {
	j := &Job{
		source:    source,
		edges:     edges,
		sim:       sim,
		log:       logger.Nop(),
		minShared: 3,
		minScore:  1200,
		topK:      20,
		workers:   4,
		pageSize:  500,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// LastReport returns the report of the most recent completed run.
func (j *Job) LastReport() Report {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

// Running reports whether a run is in progress.
func (j *Job) Running() bool {
	return j.running.Load()
}

// Run walks every user with affinities and replaces their neighbor set.
// A failure for one user is logged and counted; the run carries on. Run fails
// only when the user universe cannot be read or ctx ends.
func (j *Job) Run(ctx context.Context) (Report, error) {
	if !j.running.CompareAndSwap(false, true) {
		return Report{}, ErrAlreadyRunning
	}
	defer j.running.Store(false)

	start := time.Now()
	var scanned, withEdges, failed, edges atomic.Int64

	cursor := ""
	var runErr error
	for {
		page, err := j.source.UsersAfter(ctx, cursor, j.pageSize)
		if err != nil {
			runErr = fmt.Errorf("list users after %q: %w", cursor, err)
			break
		}
		if len(page) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(j.workers)
		for _, userID := range page {
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				scanned.Add(1)
				n, err := j.processUser(gctx, userID)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					failed.Add(1)
					j.log.Error(gctx, "neighbor computation failed for user",
						logger.String("user_id", userID), logger.Error(err))
					return nil
				}
				if n > 0 {
					withEdges.Add(1)
					edges.Add(int64(n))
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			runErr = err
			break
		}
		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}
		cursor = page[len(page)-1]
	}

	report := Report{
		UsersScanned:   int(scanned.Load()),
		UsersWithEdges: int(withEdges.Load()),
		UsersFailed:    int(failed.Load()),
		EdgesWritten:   int(edges.Load()),
		Duration:       time.Since(start),
	}
	status := "success"
	if runErr != nil {
		status = "failed"
	}
	metrics.RecordNeighborRun(status, report.Duration, report.UsersScanned, report.UsersWithEdges, report.UsersFailed, report.EdgesWritten)

	if runErr != nil {
		j.log.Error(ctx, "neighbor job aborted", logger.Int("users_scanned", report.UsersScanned), logger.Error(runErr))
		return report, runErr
	}

	j.mu.Lock()
	j.last = report
	j.mu.Unlock()
	j.log.Info(ctx, "neighbor job finished",
		logger.Int("users_scanned", report.UsersScanned),
		logger.Int("users_with_edges", report.UsersWithEdges),
		logger.Int("users_failed", report.UsersFailed),
		logger.Int("edges_written", report.EdgesWritten),
		logger.Duration("duration", report.Duration))
	return report, nil
}

// processUser recomputes and stores one user's neighbors, returning how many
// edges were written. Users without candidates get their old edges cleared.
func (j *Job) processUser(ctx context.Context, userID string) (int, error) {
	candidates, err := j.source.Candidates(ctx, userID, j.minShared, j.minScore)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, j.edges.Replace(ctx, userID, nil)
	}

	vectors, err := j.source.Vectors(ctx, append([]string{userID}, candidates...)...)
	if err != nil {
		return 0, err
	}
	mine := similarity.Vector(vectors[userID])

	found := make([]model.Neighbor, 0, len(candidates))
	for _, c := range candidates {
		s := j.sim.CenteredCosine(mine, similarity.Vector(vectors[c]))
		if s > 0 {
			found = append(found, model.Neighbor{UserID: userID, NeighborID: c, Similarity: s})
		}
	}
	found = TopK(found, j.topK)

	if err := j.edges.Replace(ctx, userID, found); err != nil {
		return 0, err
	}
	return len(found), nil
}

// TopK sorts by similarity desc, neighbor id asc on ties, and keeps k.
func TopK(ns []model.Neighbor, k int) []model.Neighbor {
	sort.SliceStable(ns, func(a, b int) bool {
		if ns[a].Similarity != ns[b].Similarity {
			return ns[a].Similarity > ns[b].Similarity
		}
		return ns[a].NeighborID < ns[b].NeighborID
	})
	if len(ns) > k {
		ns = ns[:k]
	}
	return ns
}
