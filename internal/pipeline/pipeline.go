// Package pipeline executes the per-gallery media pipeline: sequential page
// resolution feeding a bounded queue of upload workers, ending with the
// rehosted article.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sakuramoe/galarc/internal/dedup"
	"github.com/sakuramoe/galarc/internal/gallery"
	"github.com/sakuramoe/galarc/internal/metrics"
	"github.com/sakuramoe/galarc/internal/store"
)

// Config controls Pipeline behavior.
type Config struct {
	// Workers is the upload worker count; the job queue holds twice that.
	Workers int
}

const defaultWorkers = 4

// Pipeline turns a resolved gallery into hosted assets and an article.
type Pipeline struct {
	source gallery.SourceClient
	host   gallery.Host
	dedup  *dedup.Store
	images gallery.ImageRepo
	hasher gallery.Hasher
	cfg    Config
	logger *zap.Logger
}

// New constructs a Pipeline.
func New(
	source gallery.SourceClient,
	host gallery.Host,
	dd *dedup.Store,
	images gallery.ImageRepo,
	hasher gallery.Hasher,
	cfg Config,
	logger *zap.Logger,
) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	return &Pipeline{
		source: source,
		host:   host,
		dedup:  dd,
		images: images,
		hasher: hasher,
		cfg:    cfg,
		logger: logger,
	}
}

type uploadJob struct {
	page      gallery.PageURL
	contentID uint32
	assetURL  string
}

// Ingest archives every page of the gallery and creates the hosted article.
// Page resolution runs strictly sequentially; fetch and rehost fan out to the
// worker pool. Any page failure aborts the whole gallery: a partial archive
// is never published.
func (p *Pipeline) Ingest(ctx context.Context, meta *gallery.Meta) (string, error) {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan uploadJob, p.cfg.Workers*2)

	var (
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				metrics.WorkerActive(1)
				err := p.upload(ctx, meta.Identity.SiteID, job)
				metrics.WorkerActive(-1)
				if err != nil {
					fail(err)
					return
				}
			}
		}()
	}

	if err := p.resolve(ctx, meta, jobs); err != nil {
		fail(err)
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		metrics.ObserveGallery("failed", time.Since(start))
		return "", fmt.Errorf("ingest gallery %s: %w", meta.Identity, firstErr)
	}

	articleURL, err := p.publishArticle(ctx, meta)
	if err != nil {
		metrics.ObserveGallery("failed", time.Since(start))
		return "", fmt.Errorf("ingest gallery %s: %w", meta.Identity, err)
	}

	metrics.ObserveGallery("archived", time.Since(start))
	p.logger.Info("gallery archived",
		zap.Uint32("gallery_id", meta.Identity.SiteID),
		zap.Int("pages", len(meta.Pages)),
		zap.String("article", articleURL),
		zap.Duration("elapsed", time.Since(start)),
	)
	return articleURL, nil
}

// resolve walks the pages in order. Already-archived content short-circuits
// straight to a page-slot write; everything else is resolved against the
// source site one request at a time and queued for upload.
func (p *Pipeline) resolve(ctx context.Context, meta *gallery.Meta, jobs chan<- uploadJob) error {
	for _, page := range meta.Pages {
		img, err := p.dedup.Lookup(ctx, page.Hash)
		if err != nil {
			return err
		}
		if img != nil {
			if err := p.images.InsertPage(ctx, gallery.Page{
				GalleryID: meta.Identity.SiteID,
				Number:    page.Number,
				ContentID: img.ContentID,
			}); err != nil {
				return fmt.Errorf("page %d: %w", page.Number, err)
			}
			metrics.ObservePage("deduped", 0)
			continue
		}

		contentID, assetURL, err := p.source.ResolveImage(ctx, page)
		if err != nil {
			return fmt.Errorf("page %d: %w", page.Number, err)
		}

		select {
		case jobs <- uploadJob{page: page, contentID: contentID, assetURL: assetURL}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *Pipeline) upload(ctx context.Context, galleryID uint32, job uploadJob) error {
	data, err := p.source.FetchBytes(ctx, job.assetURL)
	if err != nil {
		metrics.ObservePage("failed", 0)
		return fmt.Errorf("page %d: fetch asset: %w", job.page.Number, err)
	}

	hash := job.page.Hash
	if hash == "" {
		hash = p.hasher.Hash(data)
	}

	hostedURL, err := p.host.UploadAsset(ctx, data)
	if err != nil {
		metrics.ObservePage("failed", len(data))
		return fmt.Errorf("page %d: upload asset: %w", job.page.Number, err)
	}

	img := gallery.Image{ContentID: job.contentID, ContentHash: hash, HostedURL: hostedURL}
	if err := p.dedup.Remember(ctx, img); err != nil {
		// A concurrent upload of the same content won the race; the page
		// slot still points at the surviving row.
		if !errors.Is(err, store.ErrDuplicateHash) {
			metrics.ObservePage("failed", len(data))
			return fmt.Errorf("page %d: record image: %w", job.page.Number, err)
		}
		existing, lookupErr := p.dedup.Lookup(ctx, hash)
		if lookupErr != nil {
			return fmt.Errorf("page %d: %w", job.page.Number, lookupErr)
		}
		if existing != nil {
			img = *existing
		}
	}

	if err := p.images.InsertPage(ctx, gallery.Page{
		GalleryID: galleryID,
		Number:    job.page.Number,
		ContentID: img.ContentID,
	}); err != nil {
		return fmt.Errorf("page %d: %w", job.page.Number, err)
	}

	metrics.ObservePage("uploaded", len(data))
	p.logger.Debug("page archived",
		zap.Uint32("gallery_id", galleryID),
		zap.Int("page", job.page.Number),
		zap.String("hash", hash),
	)
	return nil
}

// publishArticle builds the hosted article from the stored pages, in page
// order, and verifies nothing went missing along the way.
func (p *Pipeline) publishArticle(ctx context.Context, meta *gallery.Meta) (string, error) {
	imgs, err := p.images.ByGallery(ctx, meta.Identity.SiteID)
	if err != nil {
		return "", err
	}
	if len(imgs) < len(meta.Pages) {
		return "", fmt.Errorf("archived %d of %d pages", len(imgs), len(meta.Pages))
	}

	urls := make([]string, 0, len(imgs))
	for _, img := range imgs {
		urls = append(urls, img.HostedURL)
	}
	articleURL, err := p.host.CreateArticle(ctx, meta.BestTitle(), urls, len(meta.Pages))
	if err != nil {
		return "", fmt.Errorf("create article: %w", err)
	}
	return articleURL, nil
}
