package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sakuramoe/galarc/internal/gallery"
)

// PublicationRepo persists announcement/article pairings.
type PublicationRepo struct {
	db DB
}

// NewPublicationRepo builds a PublicationRepo over the given pool.
func NewPublicationRepo(db DB) *PublicationRepo {
	return &PublicationRepo{db: db}
}

// Upsert writes a publication row keyed by the channel message id.
func (r *PublicationRepo) Upsert(ctx context.Context, pub gallery.Publication) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO publications (message_id, gallery_id, article_url, publish_date)
VALUES ($1, $2, $3, $4)
ON CONFLICT (message_id) DO UPDATE SET
	gallery_id = EXCLUDED.gallery_id,
	article_url = EXCLUDED.article_url,
	publish_date = EXCLUDED.publish_date`,
		int64(pub.MessageID), int64(pub.GalleryID), pub.ArticleURL, pub.PublishDate)
	if err != nil {
		return fmt.Errorf("upsert publication %d: %w", pub.MessageID, err)
	}
	return nil
}

// CurrentByGallery returns the gallery's latest publication, or nil when it
// was never published.
func (r *PublicationRepo) CurrentByGallery(ctx context.Context, galleryID uint32) (*gallery.Publication, error) {
	var (
		pub gallery.Publication
		mid int64
		gid int64
	)
	err := r.db.QueryRow(ctx, `
SELECT message_id, gallery_id, article_url, publish_date
FROM publications
WHERE gallery_id = $1
ORDER BY publish_date DESC
LIMIT 1`, int64(galleryID)).Scan(&mid, &gid, &pub.ArticleURL, &pub.PublishDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("publication of gallery %d: %w", galleryID, err)
	}
	pub.MessageID = int(mid)
	pub.GalleryID = uint32(gid)
	return &pub, nil
}

// UpdateArticle points the gallery's publications at a rebuilt article.
func (r *PublicationRepo) UpdateArticle(ctx context.Context, galleryID uint32, articleURL string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE publications SET article_url = $1 WHERE gallery_id = $2`,
		articleURL, int64(galleryID))
	if err != nil {
		return fmt.Errorf("update article of gallery %d: %w", galleryID, err)
	}
	return nil
}
