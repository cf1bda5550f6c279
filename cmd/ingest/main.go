package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/crisis-tweet-etl/internal/config"
	"github.com/couchcryptid/crisis-tweet-etl/internal/domain"
	"github.com/couchcryptid/crisis-tweet-etl/internal/labeler"
	"github.com/couchcryptid/crisis-tweet-etl/internal/observability"
	"github.com/couchcryptid/crisis-tweet-etl/internal/pipeline"
	"github.com/couchcryptid/crisis-tweet-etl/internal/store"
	"github.com/couchcryptid/crisis-tweet-etl/internal/xapi"
)

type ingestFlags struct {
	count           int
	hashtag         string
	keywords        []string
	includeRetweets bool
	lang            string
	location        string
	country         string
	place           string
	geoPoint        string
	radiusKm        float64
	startTime       string
	endTime         string
	sinceID         string
	untilID         string
	storagePath     string
}

func main() {
	var flags ingestFlags

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch recent tweets, label them, and merge them into the corpus",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd.Context(), flags)
		},
		SilenceUsage: true,
	}

	cmd.Flags().IntVar(&flags.count, "count", 10, "number of tweets to ingest")
	cmd.Flags().StringVar(&flags.hashtag, "hashtag", "", "hashtag to search, with or without #")
	cmd.Flags().StringSliceVar(&flags.keywords, "keyword", nil, "keyword to OR into the query (repeatable)")
	cmd.Flags().BoolVar(&flags.includeRetweets, "include-retweets", false, "do not exclude retweets")
	cmd.Flags().StringVar(&flags.lang, "lang", "", "language hint, e.g. en")
	cmd.Flags().StringVar(&flags.location, "location", "", "plain-text place match against full name or country code")
	cmd.Flags().StringVar(&flags.country, "country", "", "ISO country code filter, e.g. US")
	cmd.Flags().StringVar(&flags.place, "place", "", "substring filter on the place full name")
	cmd.Flags().StringVar(&flags.geoPoint, "geo", "", "center point as lat,lon")
	cmd.Flags().Float64Var(&flags.radiusKm, "radius-km", 0, "search radius in km around --geo")
	cmd.Flags().StringVar(&flags.startTime, "start-time", "", "RFC 3339 lower bound for tweet creation")
	cmd.Flags().StringVar(&flags.endTime, "end-time", "", "RFC 3339 upper bound for tweet creation")
	cmd.Flags().StringVar(&flags.sinceID, "since-id", "", "only tweets newer than this ID")
	cmd.Flags().StringVar(&flags.untilID, "until-id", "", "only tweets older than this ID")
	cmd.Flags().StringVar(&flags.storagePath, "storage", "", "override the JSONL corpus path")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runIngest(ctx context.Context, flags ingestFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.RequireBearerTokens(); err != nil {
		return err
	}
	if err := cfg.RequireModelURL(); err != nil {
		return err
	}
	if flags.storagePath != "" {
		cfg.StoragePath = flags.storagePath
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	geoPoint, err := parseGeoPoint(flags.geoPoint)
	if err != nil {
		return err
	}

	rotator, err := xapi.NewRotator(cfg.BearerTokens, logger)
	if err != nil {
		return err
	}
	trail := xapi.NewTrail(cfg.RequestHistoryPath, cfg.SuccessLogPath, clockwork.NewRealClock(), logger)
	fetcher := xapi.NewClient(cfg, rotator, trail, metrics, logger)
	model := labeler.NewClient(cfg, metrics, logger)
	corpus := store.NewJSONLStore(cfg.StoragePath, cfg.AtomicWrites, metrics, logger)

	normalize := domain.DefaultNormalizeOptions()
	normalize.MinLength = cfg.MinCleanLength

	opts := pipeline.Options{
		Criteria: domain.SearchCriteria{
			Hashtag:         flags.hashtag,
			Keywords:        flags.keywords,
			IncludeRetweets: flags.includeRetweets,
			LangHint:        flags.lang,
			GeoPoint:        geoPoint,
			RadiusKm:        flags.radiusKm,
		},
		Filter: domain.LocationFilter{
			Match:       flags.location,
			CountryCode: strings.ToUpper(flags.country),
			PlaceSubstr: flags.place,
		},
		Normalize: normalize,
		Count:     flags.count,
		StartTime: flags.startTime,
		EndTime:   flags.endTime,
		SinceID:   flags.sinceID,
		UntilID:   flags.untilID,
	}

	counts, err := pipeline.New(fetcher, model, corpus, metrics, logger).Run(ctx, opts)
	if err != nil {
		logger.Error("ingestion failed", "error", err)
		return err
	}

	fmt.Printf("fetched=%d location_filtered=%d normalization_dropped=%d labeling_dropped=%d saved=%d (added=%d updated=%d)\n",
		counts.Fetched, counts.LocationFiltered, counts.NormalizationDropped,
		counts.LabelingDropped, counts.Saved, counts.Added, counts.Updated)
	return nil
}

// parseGeoPoint parses "lat,lon" into a coordinate pair.
func parseGeoPoint(raw string) (*domain.Geo, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid --geo %q, expected lat,lon", raw)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid --geo latitude %q", parts[0])
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid --geo longitude %q", parts[1])
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("--geo %q out of range", raw)
	}
	return &domain.Geo{Lat: lat, Lon: lon}, nil
}
