// Package vote accepts ratings from channel members, throttled per user, and
// exposes the derived score views.
package vote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sakuramoe/galarc/internal/gallery"
	"github.com/sakuramoe/galarc/internal/metrics"
	"github.com/sakuramoe/galarc/internal/ratelimit"
)

// ErrRateLimited rejects a vote from a user over their sliding-window budget.
var ErrRateLimited = errors.New("vote: rate limited")

const (
	windowInterval = time.Minute
	windowLimit    = 10
)

// Service is the voting front door.
type Service struct {
	polls   gallery.PollRepo
	limiter *ratelimit.Window
	logger  *zap.Logger
}

// NewService builds a Service with the standard per-user budget of ten votes
// per minute.
func NewService(polls gallery.PollRepo, logger *zap.Logger) *Service {
	return &Service{
		polls:   polls,
		limiter: ratelimit.NewWindow(windowInterval, windowLimit),
		logger:  logger,
	}
}

// Cast records the user's vote and returns the poll's recomputed score. A
// revote replaces the user's previous option.
func (s *Service) Cast(ctx context.Context, userID, pollID int64, option int) (float64, error) {
	if wait := s.limiter.Reserve(userID); wait > 0 {
		metrics.ObserveVote("throttled")
		return 0, fmt.Errorf("%w: retry in %s", ErrRateLimited, wait.Round(time.Second))
	}

	score, err := s.polls.Vote(ctx, userID, pollID, option)
	if err != nil {
		metrics.ObserveVote("rejected")
		return 0, err
	}

	metrics.ObserveVote("accepted")
	s.logger.Debug("vote recorded",
		zap.Int64("poll_id", pollID),
		zap.Int("option", option),
		zap.Float64("score", score),
	)
	return score, nil
}

// Histogram returns the poll's merged vote counts, legacy votes included.
func (s *Service) Histogram(ctx context.Context, pollID int64) ([5]int, error) {
	return s.polls.Histogram(ctx, pollID)
}

// Rank returns the fraction of polls scoring strictly higher than this one.
func (s *Service) Rank(ctx context.Context, pollID int64) (float64, error) {
	return s.polls.Rank(ctx, pollID)
}
