// Package scheduler drives the archive: the discovery sweep over the source
// listing and the freshness pass over already archived galleries.
package scheduler

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sakuramoe/galarc/internal/announce"
	"github.com/sakuramoe/galarc/internal/gallery"
	"github.com/sakuramoe/galarc/internal/metrics"
)

// lister walks the source listing newest-first.
type lister interface {
	Iterate(ctx context.Context, params url.Values, fn func(gallery.Identity) bool) error
}

// ingester runs the media pipeline for one gallery.
type ingester interface {
	Ingest(ctx context.Context, meta *gallery.Meta) (articleURL string, err error)
}

// Config controls the scheduler.
type Config struct {
	// SearchParams filter the listing sweep.
	SearchParams url.Values
	// MaxPerSweep caps how many new galleries one sweep ingests.
	MaxPerSweep int
	// Pace is the minimum spacing between galleries within a sweep.
	Pace time.Duration
	// SweepInterval separates consecutive sweep+refresh rounds.
	SweepInterval time.Duration
}

// Scheduler owns the periodic archive work.
type Scheduler struct {
	source   gallery.SourceClient
	listing  lister
	pipeline ingester
	host     gallery.Host
	repo     gallery.Repo
	images   gallery.ImageRepo
	pubs     gallery.PublicationRepo
	polls    gallery.PollRepo
	bot      gallery.Announcer
	clock    gallery.Clock
	limiter  *rate.Limiter
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Scheduler.
func New(
	source gallery.SourceClient,
	listing lister,
	pipeline ingester,
	host gallery.Host,
	repo gallery.Repo,
	images gallery.ImageRepo,
	pubs gallery.PublicationRepo,
	polls gallery.PollRepo,
	bot gallery.Announcer,
	clock gallery.Clock,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if cfg.MaxPerSweep <= 0 {
		cfg.MaxPerSweep = 50
	}
	if cfg.Pace <= 0 {
		cfg.Pace = time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}
	return &Scheduler{
		source:   source,
		listing:  listing,
		pipeline: pipeline,
		host:     host,
		repo:     repo,
		images:   images,
		pubs:     pubs,
		polls:    polls,
		bot:      bot,
		clock:    clock,
		limiter:  rate.NewLimiter(rate.Every(cfg.Pace), 1),
		cfg:      cfg,
		logger:   logger,
	}
}

// Run loops sweep and refresh rounds until the context finishes.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		if err := s.Sweep(ctx); err != nil {
			s.logger.Error("sweep failed", zap.Error(err))
		}
		if err := s.Refresh(ctx); err != nil {
			s.logger.Error("refresh failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep walks the listing newest-first and archives every gallery not seen
// before, up to the per-sweep cap. Soft-deleted galleries count as seen and
// are never re-archived by discovery.
func (s *Scheduler) Sweep(ctx context.Context) error {
	runID := uuid.NewString()
	log := s.logger.With(zap.String("sweep_id", runID))
	log.Info("sweep started")

	ingested := 0
	var sweepErr error
	err := s.listing.Iterate(ctx, s.cfg.SearchParams, func(id gallery.Identity) bool {
		if err := s.limiter.Wait(ctx); err != nil {
			sweepErr = err
			return false
		}

		seen, err := s.repo.ExistsRaw(ctx, id.SiteID)
		if err != nil {
			sweepErr = err
			return false
		}
		if seen {
			return true
		}

		if err := s.archive(ctx, id); err != nil {
			// One bad gallery must not end the sweep.
			log.Warn("gallery skipped", zap.Uint32("gallery_id", id.SiteID), zap.Error(err))
			return true
		}
		ingested++
		return ingested < s.cfg.MaxPerSweep
	})
	if err != nil {
		return fmt.Errorf("sweep %s: %w", runID, err)
	}
	if sweepErr != nil {
		return fmt.Errorf("sweep %s: %w", runID, sweepErr)
	}

	log.Info("sweep finished", zap.Int("ingested", ingested))
	return nil
}

// archive runs the full path for one new gallery: metadata, media pipeline,
// record, announcement and poll.
func (s *Scheduler) archive(ctx context.Context, id gallery.Identity) error {
	meta, err := s.source.Gallery(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch metadata: %w", err)
	}

	articleURL, err := s.pipeline.Ingest(ctx, meta)
	if err != nil {
		return err
	}

	rec := recordFromMeta(meta)
	if err := s.repo.CreateOrReplace(ctx, rec); err != nil {
		return err
	}

	replyTo := 0
	if meta.Parent != nil {
		parentPub, err := s.pubs.CurrentByGallery(ctx, meta.Parent.SiteID)
		if err != nil {
			return err
		}
		if parentPub != nil {
			replyTo = parentPub.MessageID
		}
	}

	msgID, err := s.bot.Post(ctx, announce.Caption(rec, articleURL), replyTo)
	if err != nil {
		return fmt.Errorf("announce: %w", err)
	}

	if err := s.pubs.Upsert(ctx, gallery.Publication{
		MessageID:   msgID,
		GalleryID:   id.SiteID,
		ArticleURL:  articleURL,
		PublishDate: s.clock.Now(),
	}); err != nil {
		return err
	}

	if err := s.polls.Create(ctx, int64(msgID), id.SiteID); err != nil {
		return err
	}
	return nil
}

// Refresh revisits archived galleries on their age cadence, re-syncing tags,
// re-ingesting on integrity failures and re-threading under new parents.
func (s *Scheduler) Refresh(ctx context.Context) error {
	candidates, err := s.repo.ListIngestionCandidates(ctx)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	now := s.clock.Now()
	for _, rec := range candidates {
		pub, err := s.pubs.CurrentByGallery(ctx, rec.Identity.SiteID)
		if err != nil {
			return fmt.Errorf("refresh: %w", err)
		}
		if pub == nil {
			s.logger.Warn("candidate without publication",
				zap.Uint32("gallery_id", rec.Identity.SiteID))
			continue
		}
		// Cadence runs off the announcement date, not the source posted
		// date: an old gallery archived yesterday still refreshes daily.
		if !due(pub.PublishDate, now) {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("refresh: %w", err)
		}
		if err := s.refreshOne(ctx, rec, pub); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("refresh: %w", err)
			}
			s.logger.Warn("refresh skipped",
				zap.Uint32("gallery_id", rec.Identity.SiteID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *Scheduler) refreshOne(ctx context.Context, rec gallery.Record, pub *gallery.Publication) error {
	meta, err := s.source.Gallery(ctx, rec.Identity)
	if err != nil {
		return fmt.Errorf("fetch metadata: %w", err)
	}

	// Integrity: the stored page set and the live article must both match
	// the source. Either mismatch forces a fresh ingestion.
	stored, err := s.images.PageCount(ctx, rec.Identity.SiteID)
	if err != nil {
		return err
	}
	alive, err := s.host.Probe(ctx, pub.ArticleURL)
	if err != nil {
		return err
	}

	articleURL := pub.ArticleURL
	reingested := stored != len(meta.Pages) || !alive
	if reingested {
		s.logger.Info("re-ingesting gallery",
			zap.Uint32("gallery_id", rec.Identity.SiteID),
			zap.Int("stored_pages", stored),
			zap.Int("source_pages", len(meta.Pages)),
			zap.Bool("article_alive", alive),
		)
		articleURL, err = s.pipeline.Ingest(ctx, meta)
		if err != nil {
			return err
		}
		if err := s.pubs.UpdateArticle(ctx, rec.Identity.SiteID, articleURL); err != nil {
			return err
		}
	}

	// The stored snapshot always follows the source, so favorites and other
	// soft fields never drift. The channel message is only rewritten when
	// the caption content changed or the article link moved.
	fresh := recordFromMeta(meta)
	if err := s.repo.CreateOrReplace(ctx, fresh); err != nil {
		return err
	}
	captionChanged := !fresh.Tags.Equal(rec.Tags) || fresh.Title != rec.Title || fresh.TitleJP != rec.TitleJP
	if reingested || captionChanged {
		if err := s.bot.Edit(ctx, pub.MessageID, announce.Caption(fresh, articleURL)); err != nil {
			return err
		}
	}

	metrics.ObserveGallery("refreshed", 0)
	return nil
}

func recordFromMeta(meta *gallery.Meta) gallery.Record {
	rec := gallery.Record{
		Identity:  meta.Identity,
		Title:     meta.Title,
		TitleJP:   meta.TitleJP,
		Tags:      meta.Tags,
		PageCount: len(meta.Pages),
		Favorites: meta.Favorites,
		Posted:    meta.Posted,
	}
	if meta.Parent != nil {
		parent := meta.Parent.SiteID
		rec.Parent = &parent
	}
	return rec
}
