package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sakuramoe/galarc/internal/gallery"
)

// candidateWindow is how far back recently posted galleries stay in the
// scheduler's working set.
const candidateWindow = 60 * 24 * time.Hour

// GalleryRepo persists gallery rows.
type GalleryRepo struct {
	db  DB
	now func() time.Time
}

// NewGalleryRepo builds a GalleryRepo over the given pool.
func NewGalleryRepo(db DB) *GalleryRepo {
	return &GalleryRepo{db: db, now: time.Now}
}

// CreateOrReplace upserts a gallery row. The soft-delete flag is left
// untouched on update so re-ingestion cannot resurrect a removed gallery.
func (r *GalleryRepo) CreateOrReplace(ctx context.Context, rec gallery.Record) error {
	tagsJSON, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = r.db.Exec(ctx, `
INSERT INTO galleries (id, token, title, title_jp, tags, pages, parent, favorites, posted, deleted)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE)
ON CONFLICT (id) DO UPDATE SET
	token = EXCLUDED.token,
	title = EXCLUDED.title,
	title_jp = EXCLUDED.title_jp,
	tags = EXCLUDED.tags,
	pages = EXCLUDED.pages,
	parent = EXCLUDED.parent,
	favorites = EXCLUDED.favorites,
	posted = EXCLUDED.posted`,
		int64(rec.Identity.SiteID), rec.Identity.Token, rec.Title, nullIfEmpty(rec.TitleJP),
		tagsJSON, rec.PageCount, parentArg(rec.Parent), rec.Favorites, rec.Posted)
	if err != nil {
		return fmt.Errorf("upsert gallery %d: %w", rec.Identity.SiteID, err)
	}
	return nil
}

// Get loads a gallery, excluding soft-deleted rows.
func (r *GalleryRepo) Get(ctx context.Context, id uint32) (*gallery.Record, error) {
	row := r.db.QueryRow(ctx, `
SELECT id, token, title, COALESCE(title_jp, ''), tags, pages, parent, COALESCE(favorites, 0), COALESCE(posted, 'epoch'::timestamptz), deleted
FROM galleries WHERE id = $1 AND deleted = FALSE`, int64(id))
	rec, err := scanGallery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get gallery %d: %w", id, err)
	}
	return rec, nil
}

// ExistsRaw reports whether the gallery was ever ingested, soft-deleted rows
// included.
func (r *GalleryRepo) ExistsRaw(ctx context.Context, id uint32) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM galleries WHERE id = $1)`, int64(id)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check gallery %d: %w", id, err)
	}
	return exists, nil
}

// UpdateTags replaces the tag snapshot of a gallery.
func (r *GalleryRepo) UpdateTags(ctx context.Context, id uint32, tags *gallery.Tags) error {
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	if _, err := r.db.Exec(ctx,
		`UPDATE galleries SET tags = $1 WHERE id = $2`, tagsJSON, int64(id)); err != nil {
		return fmt.Errorf("update tags of %d: %w", id, err)
	}
	return nil
}

// SetDeleted flips the soft-delete flag. The row and its children are kept
// for audit and child linking.
func (r *GalleryRepo) SetDeleted(ctx context.Context, id uint32, deleted bool) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE galleries SET deleted = $1 WHERE id = $2`, deleted, int64(id)); err != nil {
		return fmt.Errorf("set deleted of %d: %w", id, err)
	}
	return nil
}

// HardDelete removes the gallery and all dependent page and publication
// rows in one transaction. Images are shared and stay.
func (r *GalleryRepo) HardDelete(ctx context.Context, id uint32) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin hard delete: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, q := range []string{
		`DELETE FROM pages WHERE gallery_id = $1`,
		`DELETE FROM publications WHERE gallery_id = $1`,
		`DELETE FROM galleries WHERE id = $1`,
	} {
		if _, err := tx.Exec(ctx, q, int64(id)); err != nil {
			return fmt.Errorf("hard delete gallery %d: %w", id, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit hard delete: %w", err)
	}
	return nil
}

// ListTopScored returns galleries published within the date range, best
// score first. Only the latest publication of each gallery counts.
func (r *GalleryRepo) ListTopScored(ctx context.Context, from, to time.Time, limit, offset int) ([]gallery.ScoredGallery, error) {
	rows, err := r.db.Query(ctx, `
SELECT p.score, g.title, pub.message_id, g.id
FROM polls p
JOIN galleries g ON g.id = p.gallery_id
JOIN (
	SELECT DISTINCT ON (gallery_id) gallery_id, message_id, publish_date
	FROM publications
	ORDER BY gallery_id, publish_date DESC
) pub ON pub.gallery_id = g.id
WHERE g.deleted = FALSE AND pub.publish_date BETWEEN $1 AND $2
ORDER BY p.score DESC
LIMIT $3 OFFSET $4`, from, to, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list top scored: %w", err)
	}
	defer rows.Close()

	var out []gallery.ScoredGallery
	for rows.Next() {
		var (
			sg  gallery.ScoredGallery
			gid int64
			mid int64
		)
		if err := rows.Scan(&sg.Score, &sg.Title, &mid, &gid); err != nil {
			return nil, fmt.Errorf("scan top scored: %w", err)
		}
		sg.MessageID = int(mid)
		sg.GalleryID = uint32(gid)
		out = append(out, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top scored: %w", err)
	}
	return out, nil
}

// ListIngestionCandidates returns the working set the scheduler re-examines:
// galleries scored at least 0.8 or posted within the last 60 days.
func (r *GalleryRepo) ListIngestionCandidates(ctx context.Context) ([]gallery.Record, error) {
	cutoff := r.now().Add(-candidateWindow)
	rows, err := r.db.Query(ctx, `
SELECT g.id, g.token, g.title, COALESCE(g.title_jp, ''), g.tags, g.pages, g.parent, COALESCE(g.favorites, 0), COALESCE(g.posted, 'epoch'::timestamptz), g.deleted
FROM galleries g
LEFT JOIN polls p ON p.gallery_id = g.id
WHERE g.deleted = FALSE AND (p.score >= 0.8 OR g.posted >= $1)
ORDER BY g.posted DESC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list ingestion candidates: %w", err)
	}
	defer rows.Close()

	var out []gallery.Record
	for rows.Next() {
		rec, err := scanGallery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}

func scanGallery(row pgx.Row) (*gallery.Record, error) {
	var (
		rec      gallery.Record
		id       int64
		parent   *int64
		tagsJSON []byte
	)
	if err := row.Scan(&id, &rec.Identity.Token, &rec.Title, &rec.TitleJP, &tagsJSON,
		&rec.PageCount, &parent, &rec.Favorites, &rec.Posted, &rec.Deleted); err != nil {
		return nil, err
	}
	rec.Identity.SiteID = uint32(id)
	if parent != nil {
		p := uint32(*parent)
		rec.Parent = &p
	}
	rec.Tags = gallery.NewTags()
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, rec.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	return &rec, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func parentArg(parent *uint32) *int64 {
	if parent == nil {
		return nil
	}
	p := int64(*parent)
	return &p
}
