// Package pipeline orchestrates one ingestion run: fetch recent tweets,
// filter by location, normalize, label, and persist.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/crisis-tweet-etl/internal/domain"
	"github.com/couchcryptid/crisis-tweet-etl/internal/labeler"
	"github.com/couchcryptid/crisis-tweet-etl/internal/observability"
	"github.com/couchcryptid/crisis-tweet-etl/internal/store"
	"github.com/couchcryptid/crisis-tweet-etl/internal/xapi"
)

// Fetcher pulls one page of recent tweets from the search API.
type Fetcher interface {
	SearchRecent(ctx context.Context, req xapi.SearchRequest) ([]domain.Tweet, error)
}

// Labeler classifies one cleaned text.
type Labeler interface {
	Label(ctx context.Context, text string) (labeler.Result, error)
}

// Saver merges labeled tweets into the corpus.
type Saver interface {
	Save(tweets []domain.LabeledTweet) (store.SaveResult, error)
}

// Options bound one ingestion run.
type Options struct {
	Criteria  domain.SearchCriteria
	Filter    domain.LocationFilter
	Normalize domain.NormalizeOptions
	Count     int
	StartTime string
	EndTime   string
	SinceID   string
	UntilID   string
}

// Counts reports what one run did at each stage.
type Counts struct {
	Fetched              int
	LocationFiltered     int
	NormalizationDropped int
	LabelingDropped      int
	Saved                int
	Added                int
	Updated              int
}

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	fetcher Fetcher
	labeler Labeler
	saver   Saver
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates a Pipeline with the given stages and observability.
func New(f Fetcher, l Labeler, s Saver, metrics *observability.Metrics, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		fetcher: f,
		labeler: l,
		saver:   s,
		metrics: metrics,
		logger:  logger,
	}
}

// maxResultsFor clamps the page size to the search API's [10, 100] window.
func maxResultsFor(count int) int {
	switch {
	case count < 10:
		return 10
	case count > 100:
		return 100
	default:
		return count
	}
}

// Run executes one fetch-normalize-label-save pass. A fetch failure aborts
// the run; a labeling failure drops only that tweet. Nothing is written when
// no tweet survives.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Counts, error) {
	p.metrics.IngestRunning.Set(1)
	defer p.metrics.IngestRunning.Set(0)

	query := domain.BuildSearchQuery(opts.Criteria)
	p.logger.Info("ingestion run starting", "query", query, "count", opts.Count)

	tweets, err := p.fetcher.SearchRecent(ctx, xapi.SearchRequest{
		Query:      query,
		MaxResults: maxResultsFor(opts.Count),
		StartTime:  opts.StartTime,
		EndTime:    opts.EndTime,
		SinceID:    opts.SinceID,
		UntilID:    opts.UntilID,
	})
	if err != nil {
		return Counts{}, fmt.Errorf("fetch tweets: %w", err)
	}

	var counts Counts
	kept := make([]domain.Tweet, 0, len(tweets))
	for _, t := range tweets {
		if !opts.Filter.Allows(t.Place) {
			counts.LocationFiltered++
			p.metrics.LocationFiltered.Inc()
			continue
		}
		kept = append(kept, t)
		if opts.Count > 0 && len(kept) >= opts.Count {
			break
		}
	}

	counts.Fetched = len(kept)
	p.metrics.TweetsFetched.Add(float64(len(kept)))

	labeled := make([]domain.LabeledTweet, 0, len(kept))
	for _, t := range kept {
		normalized, ok := domain.NormalizeTweet(t, opts.Normalize)
		if !ok {
			counts.NormalizationDropped++
			p.metrics.NormalizationDropped.Inc()
			p.logger.Debug("tweet dropped by normalization", "id", t.ID)
			continue
		}

		result, err := p.labeler.Label(ctx, normalized.CleanText)
		if err != nil {
			if ctx.Err() != nil {
				return counts, ctx.Err()
			}
			counts.LabelingDropped++
			p.metrics.LabelingDropped.Inc()
			p.logger.Warn("tweet dropped, labeler failed", "id", t.ID, "error", err)
			continue
		}

		labeled = append(labeled, domain.LabeledTweet{
			NormalizedTweet: normalized,
			Label:           result.IsDisaster,
			Raw:             t.Raw,
		})
	}

	if len(labeled) == 0 {
		p.logger.Info("ingestion run finished, nothing to save",
			"fetched", counts.Fetched,
			"location_filtered", counts.LocationFiltered,
			"normalization_dropped", counts.NormalizationDropped,
			"labeling_dropped", counts.LabelingDropped,
		)
		return counts, nil
	}

	res, err := p.saver.Save(labeled)
	if err != nil {
		return counts, fmt.Errorf("save labeled tweets: %w", err)
	}
	counts.Saved = len(labeled)
	counts.Added = res.Added
	counts.Updated = res.Updated
	p.metrics.TweetsSaved.Add(float64(len(labeled)))

	p.logger.Info("ingestion run finished",
		"fetched", counts.Fetched,
		"location_filtered", counts.LocationFiltered,
		"normalization_dropped", counts.NormalizationDropped,
		"labeling_dropped", counts.LabelingDropped,
		"saved", counts.Saved,
		"added", res.Added,
		"updated", res.Updated,
	)
	return counts, nil
}
