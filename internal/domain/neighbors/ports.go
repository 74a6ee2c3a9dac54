package neighbors

import (
	"context"

	"github.com/okian/tastegraph/internal/domain/model"
)

// AffinitySource is the read side the job scans.
type AffinitySource interface {
	UsersAfter(ctx context.Context, cursor string, limit int) ([]string, error)
	Candidates(ctx context.Context, userID string, minShared, minScore int) ([]string, error)
	Vectors(ctx context.Context, userIDs ...string) (map[string]map[string]int, error)
}

// EdgeWriter persists a user's neighbor set, replacing the previous one.
type EdgeWriter interface {
	Replace(ctx context.Context, userID string, neighbors []model.Neighbor) error
}
