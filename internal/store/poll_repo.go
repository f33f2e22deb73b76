package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sakuramoe/galarc/internal/gallery"
	"github.com/sakuramoe/galarc/internal/score"
)

// PollRepo persists polls and votes. Score writes happen in the same
// transaction as the vote that triggered them, so a poll's score is never
// stale relative to its own votes.
type PollRepo struct {
	db  DB
	now func() time.Time
}

// NewPollRepo builds a PollRepo over the given pool.
func NewPollRepo(db DB) *PollRepo {
	return &PollRepo{db: db, now: time.Now}
}

// Create registers a poll for a gallery. Creating an existing poll is a
// no-op: multiple code paths race to create the first poll of a freshly
// announced gallery, first writer wins.
func (r *PollRepo) Create(ctx context.Context, pollID int64, galleryID uint32) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO polls (id, gallery_id, score) VALUES ($1, $2, 0)
ON CONFLICT (gallery_id) DO NOTHING`,
		pollID, int64(galleryID))
	if err != nil {
		return fmt.Errorf("create poll %d: %w", pollID, err)
	}
	return nil
}

// ByGallery returns the gallery's poll, or nil when none exists.
func (r *PollRepo) ByGallery(ctx context.Context, galleryID uint32) (*gallery.Poll, error) {
	var (
		p   gallery.Poll
		gid int64
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, gallery_id, score FROM polls WHERE gallery_id = $1`, int64(galleryID)).
		Scan(&p.ID, &gid, &p.Score)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("poll of gallery %d: %w", galleryID, err)
	}
	p.GalleryID = uint32(gid)
	return &p, nil
}

// Vote upserts the user's vote (a re-vote overwrites, never accumulates),
// recomputes the histogram including legacy counts, and writes the new
// Wilson score — all in one transaction.
func (r *PollRepo) Vote(ctx context.Context, userID, pollID int64, option int) (float64, error) {
	if option < 1 || option > 5 {
		return 0, fmt.Errorf("vote option %d out of range", option)
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin vote: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
INSERT INTO votes (user_id, poll_id, option, voted_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, poll_id) DO UPDATE SET option = EXCLUDED.option, voted_at = EXCLUDED.voted_at`,
		userID, pollID, option, r.now())
	if err != nil {
		return 0, fmt.Errorf("upsert vote: %w", err)
	}

	votes, err := histogram(ctx, tx, pollID)
	if err != nil {
		return 0, err
	}
	newScore := score.Wilson(votes)

	if _, err := tx.Exec(ctx, `UPDATE polls SET score = $1 WHERE id = $2`, newScore, pollID); err != nil {
		return 0, fmt.Errorf("update score of poll %d: %w", pollID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit vote: %w", err)
	}
	return newScore, nil
}

// Histogram returns the poll's five-bucket vote counts, legacy counts
// merged in.
func (r *PollRepo) Histogram(ctx context.Context, pollID int64) ([5]int, error) {
	return histogram(ctx, r.db, pollID)
}

// Rank returns the fraction of all polls with strictly greater score:
// 0 is top-ranked, values approaching 1 are bottom.
func (r *PollRepo) Rank(ctx context.Context, pollID int64) (float64, error) {
	var greater, total int
	err := r.db.QueryRow(ctx, `
SELECT COUNT(*) FILTER (WHERE score > (SELECT score FROM polls WHERE id = $1)), COUNT(*)
FROM polls`, pollID).Scan(&greater, &total)
	if err != nil {
		return 0, fmt.Errorf("rank of poll %d: %w", pollID, err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(greater) / float64(total), nil
}

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func histogram(ctx context.Context, q rowQuerier, pollID int64) ([5]int, error) {
	var votes [5]int

	rows, err := q.Query(ctx,
		`SELECT option, COUNT(*) FROM votes WHERE poll_id = $1 GROUP BY option`, pollID)
	if err != nil {
		return votes, fmt.Errorf("histogram of poll %d: %w", pollID, err)
	}
	if err := accumulate(rows, &votes); err != nil {
		return votes, fmt.Errorf("histogram of poll %d: %w", pollID, err)
	}

	legacy, err := q.Query(ctx,
		`SELECT option, count FROM legacy_votes WHERE poll_id = $1`, pollID)
	if err != nil {
		return votes, fmt.Errorf("legacy histogram of poll %d: %w", pollID, err)
	}
	if err := accumulate(legacy, &votes); err != nil {
		return votes, fmt.Errorf("legacy histogram of poll %d: %w", pollID, err)
	}
	return votes, nil
}

func accumulate(rows pgx.Rows, votes *[5]int) error {
	defer rows.Close()
	for rows.Next() {
		var option, count int
		if err := rows.Scan(&option, &count); err != nil {
			return err
		}
		if option < 1 || option > 5 {
			return fmt.Errorf("option %d out of range", option)
		}
		votes[option-1] += count
	}
	return rows.Err()
}
