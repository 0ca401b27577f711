package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aluiziolira/go-resolve-collections/browser"
	"github.com/aluiziolira/go-resolve-collections/config"
	"github.com/aluiziolira/go-resolve-collections/models"
	"github.com/aluiziolira/go-resolve-collections/parser"
)

// Resolution stages, in the order they run.
const (
	StageStart           = "start"
	StagePremiumBadge    = "premium_badge"
	StageAssetAnchor     = "asset_anchor"
	StageCollectionLabel = "collection_label"
	StageFollowAsset     = "follow_asset"
	StageAssetStats      = "asset_stats"
	StageAssetFields     = "asset_fields"
	StageAssemble        = "assemble"
)

// Resolver walks one address from its collection page to the top asset
// page and builds a record from what it finds.
type Resolver struct {
	cfg     *config.Config
	retry   *retryPolicy
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewResolver builds a resolver from cfg. metrics may be nil.
func NewResolver(cfg *config.Config, metrics *Metrics, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		cfg:     cfg,
		retry:   newRetryPolicy(cfg.MaxRetries, cfg.RetryBackoff, cfg.RetryBackoffMax, metrics, logger),
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// TotalRetries reports navigation retries scheduled so far.
func (r *Resolver) TotalRetries() int {
	return r.retry.TotalRetries()
}

type resolution struct {
	session  browser.Session
	address  models.Address
	logger   *slog.Logger
	record   models.ResolvedRecord
	assetURL string
}

type step struct {
	stage string
	run   func(context.Context, *resolution) error
}

func (r *Resolver) steps() []step {
	return []step{
		{StageStart, r.navigateHome},
		{StagePremiumBadge, r.awaitPremiumBadge},
		{StageAssetAnchor, r.awaitAssetAnchor},
		{StageCollectionLabel, r.extractCollectionLabel},
		{StageFollowAsset, r.followAsset},
		{StageAssetStats, r.awaitAssetStats},
		{StageAssetFields, r.extractAssetFields},
		{StageAssemble, r.assemble},
	}
}

// Resolve runs every stage for address on session. A *SkipError means the
// address has no record; any other error means it could not be resolved.
func (r *Resolver) Resolve(ctx context.Context, session browser.Session, address models.Address) (*models.ResolvedRecord, error) {
	start := time.Now()
	defer func() { r.metrics.ObserveDuration(time.Since(start)) }()

	res := &resolution{
		session: session,
		address: address,
		logger:  r.logger.With(slog.String("address", string(address))),
		record:  models.ResolvedRecord{ScanAddress: string(address)},
	}

	for _, s := range r.steps() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.logger.Debug("stage", slog.String("stage", s.stage))
		if err := s.run(ctx, res); err != nil {
			return nil, err
		}
	}

	record := res.record
	return &record, nil
}

func (r *Resolver) navigateHome(ctx context.Context, res *resolution) error {
	url := r.cfg.HomeURL(string(res.address))
	res.logger.Info("opening collection", slog.String("url", url))
	return r.navigate(ctx, res, "collection", url)
}

func (r *Resolver) awaitPremiumBadge(ctx context.Context, res *resolution) error {
	owner := browser.CSS(r.cfg.Selectors.OwnerName)
	if err := res.session.WaitVisible(ctx, owner, r.cfg.PremiumTimeout); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res.logger.Debug("owner name not visible", slog.Any("error", err))
		r.metrics.IncFieldMissing("premium")
		return nil
	}

	name, found, err := res.session.Text(ctx, owner)
	if err != nil || !found {
		res.logger.Debug("owner name unreadable", slog.Any("error", err))
		r.metrics.IncFieldMissing("premium")
		return nil
	}
	res.record.Premium = parser.PremiumFlag(strings.TrimSpace(name), true)
	return nil
}

func (r *Resolver) awaitAssetAnchor(ctx context.Context, res *resolution) error {
	res.logger.Info("waiting for asset anchor")
	return r.awaitStructural(ctx, res, StageAssetAnchor, browser.CSS(r.cfg.Selectors.AssetAnchor), r.cfg.AnchorTimeout)
}

func (r *Resolver) extractCollectionLabel(ctx context.Context, res *resolution) error {
	label := r.optional(ctx, res, "collection", func(ctx context.Context) (string, bool, error) {
		return res.session.Text(ctx, browser.CSS(r.cfg.Selectors.CollectionLabel))
	})
	res.record.Collection = parser.NormalizeCollection(label)
	return nil
}

func (r *Resolver) followAsset(ctx context.Context, res *resolution) error {
	href, found, err := res.session.Attribute(ctx, browser.CSS(r.cfg.Selectors.AssetAnchor), "href")
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &SkipError{Stage: StageFollowAsset, Err: err}
	}
	href = strings.TrimSpace(href)
	if !found || href == "" {
		return &SkipError{Stage: StageFollowAsset, Err: errMissingHref}
	}

	res.assetURL = href
	res.logger.Info("opening asset", slog.String("url", href))
	return r.navigate(ctx, res, "asset", href)
}

func (r *Resolver) awaitAssetStats(ctx context.Context, res *resolution) error {
	res.logger.Info("waiting for asset stats")
	return r.awaitStructural(ctx, res, StageAssetStats, browser.CSS(r.cfg.Selectors.CollectionLink), r.cfg.StatsTimeout)
}

func (r *Resolver) extractAssetFields(ctx context.Context, res *resolution) error {
	res.record.CollectionName = r.optional(ctx, res, "collection_name", func(ctx context.Context) (string, bool, error) {
		return res.session.Text(ctx, browser.CSS(r.cfg.Selectors.CollectionLink))
	})
	res.record.BestOffer = r.optional(ctx, res, "best_offer", func(ctx context.Context) (string, bool, error) {
		return res.session.Text(ctx, browser.CSS(r.cfg.Selectors.BestOffer))
	})
	return nil
}

func (r *Resolver) assemble(_ context.Context, res *resolution) error {
	res.record.AssetNumber = parser.AssetNumber(res.assetURL)
	res.record.TodaysDate = parser.FormatDate(r.now())
	res.logger.Info("stats",
		slog.String("collection_name", res.record.CollectionName),
		slog.String("collection", res.record.Collection),
		slog.String("asset_number", res.record.AssetNumber),
		slog.String("best_offer", res.record.BestOffer),
		slog.String("premium", res.record.Premium),
	)
	return nil
}

func (r *Resolver) navigate(ctx context.Context, res *resolution, page, url string) error {
	err := r.retry.Do(ctx, "navigate "+page, func(ctx context.Context) error {
		r.metrics.IncNavigation(page)
		return res.session.Navigate(ctx, url)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &NavigationError{URL: url, Err: err}
}

// awaitStructural turns a wait timeout into a terminal skip for stage.
func (r *Resolver) awaitStructural(ctx context.Context, res *resolution, stage string, loc browser.Locator, timeout time.Duration) error {
	err := res.session.WaitVisible(ctx, loc, timeout)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, browser.ErrWaitTimeout) {
		return &SkipError{Stage: stage, Err: err}
	}
	return fmt.Errorf("%s: %w", stage, err)
}

// optional reads a best-effort field. Any failure leaves it empty.
func (r *Resolver) optional(ctx context.Context, res *resolution, field string, read func(context.Context) (string, bool, error)) string {
	value, found, err := read(ctx)
	if err != nil || !found {
		res.logger.Debug("field not found", slog.String("field", field), slog.Any("error", err))
		r.metrics.IncFieldMissing(field)
		return ""
	}
	return strings.TrimSpace(value)
}
