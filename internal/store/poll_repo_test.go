package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/sakuramoe/galarc/internal/score"
)

func TestPollCreateIsIdempotent(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPollRepo(mock)

	// First creation inserts, the racing second one hits the conflict and
	// is still not an error.
	mock.ExpectExec("INSERT INTO polls").
		WithArgs(int64(9001), int64(100)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO polls").
		WithArgs(int64(9001), int64(100)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, repo.Create(context.Background(), 9001, 100))
	require.NoError(t, repo.Create(context.Background(), 9001, 100))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVoteRecomputesScoreTransactionally(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPollRepo(mock)
	now := time.Unix(1700000000, 0).UTC()
	repo.now = func() time.Time { return now }

	votes := [5]int{0, 0, 5, 0, 0}
	want := score.Wilson(votes)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO votes").
		WithArgs(int64(7), int64(9001), 3, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT option, COUNT").
		WithArgs(int64(9001)).
		WillReturnRows(pgxmock.NewRows([]string{"option", "count"}).AddRow(3, 4))
	mock.ExpectQuery("SELECT option, count FROM legacy_votes").
		WithArgs(int64(9001)).
		WillReturnRows(pgxmock.NewRows([]string{"option", "count"}).AddRow(3, 1))
	mock.ExpectExec("UPDATE polls SET score").
		WithArgs(want, int64(9001)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	got, err := repo.Vote(context.Background(), 7, 9001, 3)
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.InDelta(t, 0.3765, got, 1e-3)
	require.Less(t, got, 0.5)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVoteRejectsOutOfRangeOption(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPollRepo(mock)
	_, err = repo.Vote(context.Background(), 7, 9001, 0)
	require.Error(t, err)
	_, err = repo.Vote(context.Background(), 7, 9001, 6)
	require.Error(t, err)
}

func TestHistogramMergesLegacyCounts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPollRepo(mock)

	mock.ExpectQuery("SELECT option, COUNT").
		WithArgs(int64(9001)).
		WillReturnRows(pgxmock.NewRows([]string{"option", "count"}).
			AddRow(1, 2).
			AddRow(5, 3))
	mock.ExpectQuery("SELECT option, count FROM legacy_votes").
		WithArgs(int64(9001)).
		WillReturnRows(pgxmock.NewRows([]string{"option", "count"}).
			AddRow(5, 7))

	votes, err := repo.Histogram(context.Background(), 9001)
	require.NoError(t, err)
	require.Equal(t, [5]int{2, 0, 0, 0, 10}, votes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRank(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPollRepo(mock)

	mock.ExpectQuery("FROM polls").
		WithArgs(int64(9001)).
		WillReturnRows(pgxmock.NewRows([]string{"greater", "total"}).AddRow(1, 4))

	rank, err := repo.Rank(context.Background(), 9001)
	require.NoError(t, err)
	require.InDelta(t, 0.25, rank, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}
