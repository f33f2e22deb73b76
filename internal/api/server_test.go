package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sakuramoe/galarc/internal/gallery"
	"github.com/sakuramoe/galarc/internal/vote"
)

type fakeRepo struct {
	records     map[uint32]*gallery.Record
	top         []gallery.ScoredGallery
	softDeleted []uint32
	hardDeleted []uint32
}

func (r *fakeRepo) CreateOrReplace(context.Context, gallery.Record) error { panic("not used") }

func (r *fakeRepo) Get(_ context.Context, id uint32) (*gallery.Record, error) {
	return r.records[id], nil
}

func (r *fakeRepo) ExistsRaw(context.Context, uint32) (bool, error) { panic("not used") }

func (r *fakeRepo) UpdateTags(context.Context, uint32, *gallery.Tags) error { panic("not used") }

func (r *fakeRepo) SetDeleted(_ context.Context, id uint32, _ bool) error {
	r.softDeleted = append(r.softDeleted, id)
	return nil
}

func (r *fakeRepo) HardDelete(_ context.Context, id uint32) error {
	r.hardDeleted = append(r.hardDeleted, id)
	return nil
}

func (r *fakeRepo) ListTopScored(context.Context, time.Time, time.Time, int, int) ([]gallery.ScoredGallery, error) {
	return r.top, nil
}

func (r *fakeRepo) ListIngestionCandidates(context.Context) ([]gallery.Record, error) {
	panic("not used")
}

type fakePolls struct{ voteErr error }

func (p *fakePolls) Create(context.Context, int64, uint32) error { panic("not used") }

func (p *fakePolls) ByGallery(context.Context, uint32) (*gallery.Poll, error) { panic("not used") }

func (p *fakePolls) Vote(context.Context, int64, int64, int) (float64, error) {
	if p.voteErr != nil {
		return 0, p.voteErr
	}
	return 0.42, nil
}

func (p *fakePolls) Histogram(context.Context, int64) ([5]int, error) {
	return [5]int{0, 0, 5, 0, 0}, nil
}

func (p *fakePolls) Rank(context.Context, int64) (float64, error) { return 0.25, nil }

type fakeChallenge struct{ picks []gallery.ChallengeCandidate }

func (c fakeChallenge) ChallengeCandidates(_ context.Context, limit int) ([]gallery.ChallengeCandidate, error) {
	if limit < len(c.picks) {
		return c.picks[:limit], nil
	}
	return c.picks, nil
}

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

func newTestServer(t *testing.T, cfg Config) (*httptest.Server, *fakeRepo) {
	t.Helper()
	repo := &fakeRepo{records: map[uint32]*gallery.Record{}}
	votes := vote.NewService(&fakePolls{}, zap.NewNop())
	challenge := fakeChallenge{picks: []gallery.ChallengeCandidate{
		{GalleryID: 1, Token: "aaaaaaaaaa", Page: 3, Artist: "alpha", Score: 0.9},
	}}
	srv := NewServer(repo, votes, challenge, fakeClock{now: time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)},
		cfg, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, repo
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, Config{})
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestListTop(t *testing.T) {
	t.Parallel()

	ts, repo := newTestServer(t, Config{})
	repo.top = []gallery.ScoredGallery{
		{Score: 0.91, Title: "Best One", MessageID: 555, GalleryID: 2079186},
	}

	resp, err := http.Get(ts.URL + "/v1/galleries/top?from=2026-07-01&to=2026-08-01")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Galleries []gallery.ScoredGallery `json:"galleries"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Galleries, 1)
	require.Equal(t, "Best One", body.Galleries[0].Title)
}

func TestListTopRejectsBadDate(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, Config{})
	resp, err := http.Get(ts.URL + "/v1/galleries/top?from=yesterday")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetGallery(t *testing.T) {
	t.Parallel()

	ts, repo := newTestServer(t, Config{})
	repo.records[2079186] = &gallery.Record{
		Identity: gallery.Identity{SiteID: 2079186, Token: "b716e07dc6"},
		Title:    "Some Doujin",
		Tags:     gallery.NewTags(),
	}

	resp, err := http.Get(ts.URL + "/v1/galleries/2079186/")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/v1/galleries/1/")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteGallerySoftAndPurge(t *testing.T) {
	t.Parallel()

	ts, repo := newTestServer(t, Config{})

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/galleries/10/", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []uint32{10}, repo.softDeleted)

	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/v1/galleries/11/?purge=true", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []uint32{11}, repo.hardDeleted)
}

func TestCastVote(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, Config{})

	body, _ := json.Marshal(map[string]any{"user_id": 7, "option": 4})
	resp, err := http.Post(ts.URL+"/v1/polls/100/votes", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Score float64 `json:"score"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, 0.42, out.Score)
}

func TestCastVoteThrottled(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, Config{})

	var last int
	for i := 0; i < 11; i++ {
		body, _ := json.Marshal(map[string]any{"user_id": 9, "option": 4})
		resp, err := http.Post(ts.URL+"/v1/polls/100/votes", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		last = resp.StatusCode
	}
	require.Equal(t, http.StatusTooManyRequests, last)
}

func TestCastVoteRejectsBadPayload(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, Config{})
	resp, err := http.Post(ts.URL+"/v1/polls/100/votes", "application/json", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetPoll(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, Config{})
	resp, err := http.Get(ts.URL + "/v1/polls/100/")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Histogram [5]int  `json:"histogram"`
		Rank      float64 `json:"rank"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, [5]int{0, 0, 5, 0, 0}, out.Histogram)
	require.Equal(t, 0.25, out.Rank)
}

func TestChallenge(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, Config{})
	resp, err := http.Get(ts.URL + "/v1/challenge")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Candidates []gallery.ChallengeCandidate `json:"candidates"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Candidates, 1)
	require.Equal(t, "alpha", out.Candidates[0].Artist)
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, Config{APIKey: "secret"})

	resp, err := http.Get(ts.URL + "/v1/challenge")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/challenge", nil)
	req.Header.Set("X-API-Key", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Health endpoints stay open.
	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
