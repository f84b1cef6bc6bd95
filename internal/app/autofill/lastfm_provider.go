package autofill

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rhythmbot/internal/infra/lastfm"
)

// LastFmClient defines the interface for Last.fm operations.
type LastFmClient interface {
	GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.SimilarTrack, error)
	GetTopTags(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.Tag, error)
	GetTopTracks(ctx context.Context, tagName string, limit int) ([]lastfm.TopTrack, error)
	GetChartTopTracks(ctx context.Context, limit int) ([]lastfm.TopTrack, error)
}

type LastFmProviderConfig struct {
	APIKey         string  `yaml:"api_key" mapstructure:"api_key" validate:"required"`
	SeedTrackCount int     `yaml:"seed_track_count" mapstructure:"seed_track_count" validate:"gte=0"` // Zero follows autofill.seed_count
	TagCount       int     `yaml:"tag_count" mapstructure:"tag_count" default:"5" validate:"gte=1"`
	TagWeight      float64 `yaml:"tag_weight" mapstructure:"tag_weight" default:"0.4" validate:"gte=0,lte=1.0"`
	SimilarWeight  float64 `yaml:"similar_weight" mapstructure:"similar_weight" default:"0.6" validate:"gte=0,lte=1.0"`
}

// LastFmProvider provides candidates using the Last.fm API with hybrid scoring.
// Combines tag-based and similar-based strategies with configurable weights, and
// falls back to the global chart when nothing has been played yet.
type LastFmProvider struct {
	lastfm LastFmClient
	config *LastFmProviderConfig
	rng    *rand.Rand
}

// ScoredCandidate represents a candidate with its hybrid score.
type ScoredCandidate struct {
	Candidate Candidate
	Score     float64
}

// NewLastFmProvider creates a new LastFmProvider.
func NewLastFmProvider(seedCount int, settings map[string]any) (*LastFmProvider, error) {
	if len(settings) == 0 {
		return nil, errors.New("settings are required")
	}

	var config LastFmProviderConfig
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := mapstructure.WeakDecode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	if config.TagWeight+config.SimilarWeight < 0.999 || config.TagWeight+config.SimilarWeight > 1.001 {
		return nil, errors.New("tag weight and similar weight must sum to 1.0")
	}
	if config.SeedTrackCount == 0 {
		config.SeedTrackCount = seedCount
	}

	client, err := lastfm.New(lastfm.Config{APIKey: config.APIKey})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}

	return &LastFmProvider{
		lastfm: client,
		config: &config,
		rng:    newRand(),
	}, nil
}

// GetCandidates retrieves candidates using hybrid scoring.
func (p *LastFmProvider) GetCandidates(ctx context.Context, count int, seeds []Seed, exclude map[string]bool) ([]Candidate, error) {
	if count <= 0 {
		return []Candidate{}, nil
	}

	seeds = usableSeeds(seeds, p.config.SeedTrackCount)
	if len(seeds) == 0 {
		// No seeds available, use global charts as fallback
		return p.getChartBasedCandidates(ctx, count, exclude)
	}

	// 1. Get tag-based candidates
	tagCandidates := p.getTagBasedCandidates(ctx, seeds, exclude)

	// 2. Get similar-based candidates
	similarCandidates := p.getSimilarBasedCandidates(ctx, seeds, exclude)

	// 3. Score and merge
	scored := p.scoreAndMerge(tagCandidates, similarCandidates)
	if len(scored) == 0 {
		zlog.Debug().Msg("autofill: last.fm returned nothing for seeds, using chart")
		return p.getChartBasedCandidates(ctx, count, exclude)
	}

	// 4. Sort by score (descending), ties by key for a stable order
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Candidate.Key() < scored[j].Candidate.Key()
	})

	// 5. Pick randomly among the top count*2 to add variety
	poolSize := count * 2
	if poolSize > len(scored) {
		poolSize = len(scored)
	}
	top := scored[:poolSize]
	p.rng.Shuffle(len(top), func(i, j int) {
		top[i], top[j] = top[j], top[i]
	})

	result := make([]Candidate, 0, count)
	for i := 0; i < count && i < len(top); i++ {
		result = append(result, top[i].Candidate)
	}
	return result, nil
}

// Name returns the provider name.
func (p *LastFmProvider) Name() string {
	return "lastfm"
}

// getTagBasedCandidates retrieves candidates using tag-based strategy.
func (p *LastFmProvider) getTagBasedCandidates(ctx context.Context, seeds []Seed, exclude map[string]bool) []Candidate {
	// Collect tags from seeds
	tagCounts := make(map[string]int)
	for _, seed := range seeds {
		tags, err := p.lastfm.GetTopTags(ctx, seed.Title, seed.Artist, 10)
		if err != nil {
			continue // Skip on error
		}
		for _, tag := range tags {
			tagCounts[tag.Name] += tag.Count
		}
	}

	if len(tagCounts) == 0 {
		return []Candidate{}
	}

	var candidates []Candidate
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, tagName := range sortAndTakeTopTags(tagCounts, p.config.TagCount) {
		wg.Add(1)
		go func(tag string) {
			defer wg.Done()
			tracks, err := p.lastfm.GetTopTracks(ctx, tag, 20)
			if err != nil {
				return // Skip on error
			}

			mu.Lock()
			defer mu.Unlock()
			for _, t := range tracks {
				if c := toCandidate(t.Artist, t.Name); !exclude[c.Key()] {
					candidates = append(candidates, c)
				}
			}
		}(tagName)
	}
	wg.Wait()

	return deduplicate(candidates)
}

// getSimilarBasedCandidates retrieves candidates using similar-based strategy.
func (p *LastFmProvider) getSimilarBasedCandidates(ctx context.Context, seeds []Seed, exclude map[string]bool) []Candidate {
	var candidates []Candidate
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, seed := range seeds {
		wg.Add(1)
		go func(s Seed) {
			defer wg.Done()
			similar, err := p.lastfm.GetSimilarTracks(ctx, s.Title, s.Artist, 10)
			if err != nil {
				return // Skip on error
			}

			mu.Lock()
			defer mu.Unlock()
			for _, sim := range similar {
				if c := toCandidate(sim.Artist, sim.Name); !exclude[c.Key()] {
					candidates = append(candidates, c)
				}
			}
		}(seed)
	}
	wg.Wait()

	return deduplicate(candidates)
}

// scoreAndMerge scores and merges tag-based and similar-based candidates.
func (p *LastFmProvider) scoreAndMerge(tagCandidates, similarCandidates []Candidate) []ScoredCandidate {
	scoreMap := make(map[string]*ScoredCandidate)

	for _, c := range tagCandidates {
		scoreMap[c.Key()] = &ScoredCandidate{Candidate: c, Score: p.config.TagWeight}
	}

	for _, c := range similarCandidates {
		if existing, ok := scoreMap[c.Key()]; ok {
			// Found by both strategies
			existing.Score += p.config.SimilarWeight
		} else {
			scoreMap[c.Key()] = &ScoredCandidate{Candidate: c, Score: p.config.SimilarWeight}
		}
	}

	result := make([]ScoredCandidate, 0, len(scoreMap))
	for _, scored := range scoreMap {
		result = append(result, *scored)
	}
	return result
}

// getChartBasedCandidates retrieves candidates using global chart strategy.
func (p *LastFmProvider) getChartBasedCandidates(ctx context.Context, count int, exclude map[string]bool) ([]Candidate, error) {
	// Fetch more than needed for filtering
	chart, err := p.lastfm.GetChartTopTracks(ctx, 50)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get chart")
	}

	// Shuffle to avoid always picking the same top tracks
	p.rng.Shuffle(len(chart), func(i, j int) {
		chart[i], chart[j] = chart[j], chart[i]
	})

	var candidates []Candidate
	for _, t := range chart {
		if c := toCandidate(t.Artist, t.Name); !exclude[c.Key()] {
			candidates = append(candidates, c)
		}
		if len(candidates) >= count {
			break
		}
	}
	return deduplicate(candidates), nil
}

// sortAndTakeTopTags sorts tags by count and returns top N tag names.
func sortAndTakeTopTags(tagCounts map[string]int, topN int) []string {
	type tagCount struct {
		name  string
		count int
	}

	tags := make([]tagCount, 0, len(tagCounts))
	for name, count := range tagCounts {
		tags = append(tags, tagCount{name: name, count: count})
	}

	sort.Slice(tags, func(i, j int) bool {
		if tags[i].count != tags[j].count {
			return tags[i].count > tags[j].count
		}
		return tags[i].name < tags[j].name
	})

	result := make([]string, 0, topN)
	for i := 0; i < topN && i < len(tags); i++ {
		result = append(result, tags[i].name)
	}
	return result
}

// usableSeeds keeps at most n seeds that have both artist and title.
func usableSeeds(seeds []Seed, n int) []Seed {
	out := make([]Seed, 0, n)
	for _, s := range seeds {
		if len(out) >= n {
			break
		}
		if s.Artist != "" && s.Title != "" {
			out = append(out, s)
		}
	}
	return out
}

func toCandidate(artist, title string) Candidate {
	return Candidate{
		Reference: fmt.Sprintf("%s - %s", artist, title),
		Title:     title,
		Artist:    artist,
	}
}

// deduplicate removes duplicate candidates by key.
func deduplicate(cands []Candidate) []Candidate {
	seen := make(map[string]bool)
	result := make([]Candidate, 0, len(cands))

	for _, c := range cands {
		if !seen[c.Key()] {
			seen[c.Key()] = true
			result = append(result, c)
		}
	}
	return result
}
