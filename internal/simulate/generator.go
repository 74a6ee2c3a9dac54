package simulate

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

// Every user in a cluster rates the cluster's first coreMedia items, which
// guarantees enough shared media for neighbor candidates.
const coreMedia = 4

// Event kinds posted by the simulator.
const (
	KindSentiment = "sentiment"
	KindDuel      = "duel"
)

// Media is one seeded catalog item.
type Media struct {
	ID      string `json:"-"`
	Title   string `json:"title"`
	Type    string `json:"type"`
	Cluster int    `json:"-"`
}

// Event is one request body for the events endpoints.
type Event struct {
	Kind string
	Body EventBody
}

// EventBody is the union of the sentiment and duel payloads.
type EventBody struct {
	EventID   string `json:"event_id"`
	UserID    string `json:"user_id"`
	MediaID   string `json:"media_id,omitempty"`
	Sentiment string `json:"sentiment,omitempty"`
	WinnerID  string `json:"winner_id,omitempty"`
	LoserID   string `json:"loser_id,omitempty"`
}

// Plan is a generated workload together with the ground truth used to verify
// the feeds it produces.
type Plan struct {
	Media        []Media
	Users        []string
	UserCluster  map[string]int
	MediaCluster map[string]int
	Rated        map[string]map[string]bool
	Events       []Event
}

// Generate builds a deterministic workload from cfg. Users like media from
// their own cluster and dislike media from the others.
func Generate(cfg *Config) (*Plan, error) {
	if cfg.Clusters > cfg.Media {
		return nil, fmt.Errorf("clusters (%d) exceed media (%d)", cfg.Clusters, cfg.Media)
	}
	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)^0x9e3779b97f4a7c15))

	p := &Plan{
		UserCluster:  make(map[string]int, cfg.Users),
		MediaCluster: make(map[string]int, cfg.Media),
		Rated:        make(map[string]map[string]bool, cfg.Users),
	}

	byCluster := make([][]string, cfg.Clusters)
	for i := 0; i < cfg.Media; i++ {
		m := Media{
			ID:      fmt.Sprintf("media-%03d", i),
			Title:   fmt.Sprintf("Track %d", i),
			Type:    "track",
			Cluster: i % cfg.Clusters,
		}
		p.Media = append(p.Media, m)
		p.MediaCluster[m.ID] = m.Cluster
		byCluster[m.Cluster] = append(byCluster[m.Cluster], m.ID)
	}

	for i := 0; i < cfg.Users; i++ {
		userID := fmt.Sprintf("user-%03d", i)
		cluster := i % cfg.Clusters
		p.Users = append(p.Users, userID)
		p.UserCluster[userID] = cluster
		p.Rated[userID] = make(map[string]bool)

		liked, disliked := pickMedia(rng, byCluster, cluster, cfg.RatingsPerUser)
		for j, mediaID := range liked {
			sentiment := "GOOD"
			if j%3 == 0 {
				sentiment = "BANGER"
			}
			p.addSentiment(userID, mediaID, sentiment)
		}
		for _, mediaID := range disliked {
			p.addSentiment(userID, mediaID, "DISLIKE")
		}

		for j := 0; j < cfg.DuelsPerUser && len(liked) > 0 && len(disliked) > 0; j++ {
			p.Events = append(p.Events, Event{Kind: KindDuel, Body: EventBody{
				EventID:  uuid.NewString(),
				UserID:   userID,
				WinnerID: liked[rng.IntN(len(liked))],
				LoserID:  disliked[rng.IntN(len(disliked))],
			}})
		}
	}

	rng.Shuffle(len(p.Events), func(i, j int) {
		p.Events[i], p.Events[j] = p.Events[j], p.Events[i]
	})
	return p, nil
}

func (p *Plan) addSentiment(userID, mediaID, sentiment string) {
	p.Rated[userID][mediaID] = true
	p.Events = append(p.Events, Event{Kind: KindSentiment, Body: EventBody{
		EventID:   uuid.NewString(),
		UserID:    userID,
		MediaID:   mediaID,
		Sentiment: sentiment,
	}})
}

// pickMedia returns n media for a user: about three quarters from the own
// cluster, always including its core items, and the rest from other clusters.
// At least one own-cluster item stays unrated so the feed has something to
// recommend.
func pickMedia(rng *rand.Rand, byCluster [][]string, cluster, n int) (liked, disliked []string) {
	own := byCluster[cluster]
	ownQuota := max(min(n*3/4, len(own)-1), min(coreMedia, len(own)-1))
	ownQuota = max(ownQuota, 0)

	core := min(coreMedia, ownQuota)
	liked = append(liked, own[:core]...)
	rest := append([]string(nil), own[core:]...)
	rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	liked = append(liked, rest[:ownQuota-core]...)

	var others []string
	for c, ids := range byCluster {
		if c != cluster {
			others = append(others, ids...)
		}
	}
	rng.Shuffle(len(others), func(i, j int) { others[i], others[j] = others[j], others[i] })
	disliked = others[:min(max(n-ownQuota, 0), len(others))]
	return liked, disliked
}
