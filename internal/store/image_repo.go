package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sakuramoe/galarc/internal/gallery"
)

// ImageRepo persists distinct assets and the page slots referencing them.
type ImageRepo struct {
	db DB
}

// NewImageRepo builds an ImageRepo over the given pool.
func NewImageRepo(db DB) *ImageRepo {
	return &ImageRepo{db: db}
}

// ByHash looks an image up by its content hash. Returns nil when unknown.
func (r *ImageRepo) ByHash(ctx context.Context, hash string) (*gallery.Image, error) {
	var (
		img gallery.Image
		id  int64
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, hash, url FROM images WHERE hash = $1`, hash).
		Scan(&id, &img.ContentHash, &img.HostedURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("image by hash %s: %w", hash, err)
	}
	img.ContentID = uint32(id)
	return &img, nil
}

// Insert writes a new image row. A second row with the same content hash is
// rejected with ErrDuplicateHash; the store never silently overwrites the
// first writer.
func (r *ImageRepo) Insert(ctx context.Context, img gallery.Image) error {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO images (id, hash, url) VALUES ($1, $2, $3) ON CONFLICT (hash) DO NOTHING`,
		int64(img.ContentID), img.ContentHash, img.HostedURL)
	if err != nil {
		return fmt.Errorf("insert image %s: %w", img.ContentHash, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("insert image %s: %w", img.ContentHash, ErrDuplicateHash)
	}
	return nil
}

// InsertPage records a page slot. A conflicting (gallery, page) pair is
// ignored, not an error, so repeat ingestions are idempotent.
func (r *ImageRepo) InsertPage(ctx context.Context, page gallery.Page) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO pages (gallery_id, page, image_id) VALUES ($1, $2, $3)
ON CONFLICT (gallery_id, page) DO NOTHING`,
		int64(page.GalleryID), page.Number, int64(page.ContentID))
	if err != nil {
		return fmt.Errorf("insert page %d/%d: %w", page.GalleryID, page.Number, err)
	}
	return nil
}

// ByGallery returns the gallery's images ordered by page number. Article
// assembly always uses this order, never upload completion order.
func (r *ImageRepo) ByGallery(ctx context.Context, galleryID uint32) ([]gallery.Image, error) {
	rows, err := r.db.Query(ctx, `
SELECT i.id, i.hash, i.url
FROM images i
JOIN pages p ON p.image_id = i.id
WHERE p.gallery_id = $1
ORDER BY p.page`, int64(galleryID))
	if err != nil {
		return nil, fmt.Errorf("images of gallery %d: %w", galleryID, err)
	}
	defer rows.Close()

	var out []gallery.Image
	for rows.Next() {
		var (
			img gallery.Image
			id  int64
		)
		if err := rows.Scan(&id, &img.ContentHash, &img.HostedURL); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		img.ContentID = uint32(id)
		out = append(out, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate images: %w", err)
	}
	return out, nil
}

// PageCount counts the recorded page slots of a gallery.
func (r *ImageRepo) PageCount(ctx context.Context, galleryID uint32) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM pages WHERE gallery_id = $1`, int64(galleryID)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("page count of %d: %w", galleryID, err)
	}
	return count, nil
}

// ChallengeCandidates picks random images from high-scored single-artist
// galleries for the guess-the-artist game.
func (r *ImageRepo) ChallengeCandidates(ctx context.Context, limit int) ([]gallery.ChallengeCandidate, error) {
	rows, err := r.db.Query(ctx, `
SELECT g.id, g.token, pg.page, g.tags->'artist'->>0, i.hash, i.url, p.score
FROM images i
JOIN pages pg ON pg.image_id = i.id
JOIN galleries g ON g.id = pg.gallery_id
JOIN polls p ON p.gallery_id = g.id
WHERE p.score > 0.8
  AND g.deleted = FALSE
  AND jsonb_array_length(g.tags->'artist') = 1
ORDER BY random()
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("challenge candidates: %w", err)
	}
	defer rows.Close()

	var out []gallery.ChallengeCandidate
	for rows.Next() {
		var (
			c   gallery.ChallengeCandidate
			gid int64
		)
		if err := rows.Scan(&gid, &c.Token, &c.Page, &c.Artist, &c.Hash, &c.URL, &c.Score); err != nil {
			return nil, fmt.Errorf("scan challenge candidate: %w", err)
		}
		c.GalleryID = uint32(gid)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate challenge candidates: %w", err)
	}
	return out, nil
}
