package neighbors

import "github.com/okian/tastegraph/pkg/logger"

// Option applies a configuration option to the Job.
type Option func(*Job)

// WithMinShared sets how many co-liked media make a candidate.
func WithMinShared(n int) Option {
	return func(j *Job) {
		if n > 0 {
			j.minShared = n
		}
	}
}

// WithMinScore sets the affinity both users must exceed on a shared media.
func WithMinScore(score int) Option {
	return func(j *Job) {
		if score > 0 {
			j.minScore = score
		}
	}
}

// WithTopK bounds the number of neighbors kept per user.
func WithTopK(k int) Option {
	return func(j *Job) {
		if k > 0 {
			j.topK = k
		}
	}
}

// WithWorkers bounds how many users are processed concurrently.
func WithWorkers(n int) Option {
	return func(j *Job) {
		if n > 0 {
			j.workers = n
		}
	}
}

// WithPageSize sets how many user ids are read per page.
func WithPageSize(n int) Option {
	return func(j *Job) {
		if n > 0 {
			j.pageSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(j *Job) {
		if l != nil {
			j.log = l
		}
	}
}
