package gallery

import (
	"context"
	"net/url"
	"time"
)

// SourceClient is the authenticated session against the source site.
type SourceClient interface {
	// Search fetches one listing page. An empty next cursor ends the sweep.
	Search(ctx context.Context, params url.Values, cursor string) (ids []Identity, next string, err error)
	// Gallery fetches metadata and the ordered page URLs of a gallery,
	// walking paginated detail views.
	Gallery(ctx context.Context, id Identity) (*Meta, error)
	// ResolveImage resolves one page to its site-native content id and the
	// real asset URL. Callers must not invoke this concurrently.
	ResolveImage(ctx context.Context, page PageURL) (contentID uint32, assetURL string, err error)
	// FetchBytes downloads raw asset bytes.
	FetchBytes(ctx context.Context, assetURL string) ([]byte, error)
}

// Host rehosts assets and articles.
type Host interface {
	UploadAsset(ctx context.Context, data []byte) (string, error)
	CreateArticle(ctx context.Context, title string, imageURLs []string, pageCount int) (string, error)
	Probe(ctx context.Context, articleURL string) (bool, error)
}

// Announcer posts and maintains channel messages. replyTo of zero posts
// standalone.
type Announcer interface {
	Post(ctx context.Context, text string, replyTo int) (messageID int, err error)
	Edit(ctx context.Context, messageID int, text string) error
	Delete(ctx context.Context, messageID int) error
}

// Repo persists gallery rows.
type Repo interface {
	CreateOrReplace(ctx context.Context, rec Record) error
	// Get excludes soft-deleted rows.
	Get(ctx context.Context, id uint32) (*Record, error)
	// ExistsRaw includes soft-deleted rows, distinguishing "never seen"
	// from "seen but removed".
	ExistsRaw(ctx context.Context, id uint32) (bool, error)
	UpdateTags(ctx context.Context, id uint32, tags *Tags) error
	SetDeleted(ctx context.Context, id uint32, deleted bool) error
	HardDelete(ctx context.Context, id uint32) error
	ListTopScored(ctx context.Context, from, to time.Time, limit, offset int) ([]ScoredGallery, error)
	ListIngestionCandidates(ctx context.Context) ([]Record, error)
}

// ImageRepo persists distinct assets and the page slots referencing them.
type ImageRepo interface {
	// ByHash returns nil when the hash is unknown.
	ByHash(ctx context.Context, hash string) (*Image, error)
	// Insert writes a new image row; a duplicate hash is rejected with
	// ErrDuplicateHash.
	Insert(ctx context.Context, img Image) error
	// InsertPage is idempotent: a (gallery, page) conflict is ignored.
	InsertPage(ctx context.Context, page Page) error
	// ByGallery returns the gallery's images ordered by page number.
	ByGallery(ctx context.Context, galleryID uint32) ([]Image, error)
	PageCount(ctx context.Context, galleryID uint32) (int, error)
}

// PublicationRepo persists the announcement/article pairing. The latest
// publication by publish date is the current one.
type PublicationRepo interface {
	Upsert(ctx context.Context, pub Publication) error
	// CurrentByGallery returns nil when the gallery was never published.
	CurrentByGallery(ctx context.Context, galleryID uint32) (*Publication, error)
	UpdateArticle(ctx context.Context, galleryID uint32, articleURL string) error
}

// PollRepo persists polls and votes.
type PollRepo interface {
	// Create is idempotent: an existing poll for the gallery is a no-op.
	Create(ctx context.Context, pollID int64, galleryID uint32) error
	ByGallery(ctx context.Context, galleryID uint32) (*Poll, error)
	// Vote upserts the user's vote and recomputes the score in the same
	// transaction, returning the new score.
	Vote(ctx context.Context, userID, pollID int64, option int) (float64, error)
	Histogram(ctx context.Context, pollID int64) ([5]int, error)
	// Rank returns the fraction of polls with strictly greater score.
	Rank(ctx context.Context, pollID int64) (float64, error)
}

// Hasher digests asset bytes for pages whose URL carries no usable hash.
type Hasher interface {
	Hash(data []byte) string
}

// Clock returns the current time (swap out in tests).
type Clock interface {
	Now() time.Time
}
