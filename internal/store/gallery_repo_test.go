package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/sakuramoe/galarc/internal/gallery"
)

func testRecord() gallery.Record {
	tags := gallery.NewTags()
	tags.Set("artist", []string{"alpha"})
	tags.Set("language", []string{"japanese"})
	return gallery.Record{
		Identity:  gallery.Identity{SiteID: 2079186, Token: "b716e07dc6"},
		Title:     "Some Doujin",
		TitleJP:   "何かの同人誌",
		Tags:      tags,
		PageCount: 24,
		Favorites: 120,
		Posted:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCreateOrReplaceUpserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewGalleryRepo(mock)
	rec := testRecord()
	tagsJSON, err := json.Marshal(rec.Tags)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO galleries").
		WithArgs(int64(2079186), "b716e07dc6", rec.Title, &rec.TitleJP,
			tagsJSON, 24, (*int64)(nil), 120, rec.Posted).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.CreateOrReplace(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetExcludesSoftDeleted(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewGalleryRepo(mock)

	mock.ExpectQuery("deleted = FALSE").
		WithArgs(int64(2079186)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "token", "title", "title_jp", "tags", "pages", "parent", "favorites", "posted", "deleted",
		}))

	rec, err := repo.Get(context.Background(), 2079186)
	require.NoError(t, err)
	require.Nil(t, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRoundTripsTags(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewGalleryRepo(mock)
	posted := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("deleted = FALSE").
		WithArgs(int64(2079186)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "token", "title", "title_jp", "tags", "pages", "parent", "favorites", "posted", "deleted",
		}).AddRow(int64(2079186), "b716e07dc6", "Some Doujin", "何かの同人誌",
			[]byte(`{"artist":["alpha"],"language":["japanese"]}`), 24, (*int64)(nil), 120, posted, false))

	rec, err := repo.Get(context.Background(), 2079186)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, []string{"artist", "language"}, rec.Tags.Namespaces())
	require.Equal(t, []string{"alpha"}, rec.Tags.Get("artist"))
	require.Equal(t, 24, rec.PageCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExistsRawIncludesSoftDeleted(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewGalleryRepo(mock)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(2079186)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.ExistsRaw(context.Background(), 2079186)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHardDeleteCascades(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewGalleryRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM pages").
		WithArgs(int64(2079186)).
		WillReturnResult(pgxmock.NewResult("DELETE", 24))
	mock.ExpectExec("DELETE FROM publications").
		WithArgs(int64(2079186)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM galleries").
		WithArgs(int64(2079186)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.HardDelete(context.Background(), 2079186))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTopScored(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewGalleryRepo(mock)
	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("ORDER BY p.score DESC").
		WithArgs(from, to, 20, 0).
		WillReturnRows(pgxmock.NewRows([]string{"score", "title", "message_id", "id"}).
			AddRow(0.91, "Best One", int64(555), int64(2079186)).
			AddRow(0.73, "Runner Up", int64(556), int64(2079187)))

	out, err := repo.ListTopScored(context.Background(), from, to, 20, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "Best One", out[0].Title)
	require.Equal(t, 555, out[0].MessageID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListIngestionCandidates(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewGalleryRepo(mock)
	now := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	mock.ExpectQuery("LEFT JOIN polls").
		WithArgs(now.Add(-candidateWindow)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "token", "title", "title_jp", "tags", "pages", "parent", "favorites", "posted", "deleted",
		}).AddRow(int64(2079186), "b716e07dc6", "Some Doujin", "",
			[]byte(`{}`), 24, (*int64)(nil), 120, now.AddDate(0, 0, -10), false))

	out, err := repo.ListIngestionCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, uint32(2079186), out[0].Identity.SiteID)
	require.NoError(t, mock.ExpectationsWereMet())
}
