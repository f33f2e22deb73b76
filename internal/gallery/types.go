// Package gallery defines the core domain types and collaborator contracts
// shared by the crawler, pipeline, scheduler and repositories.
package gallery

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Identity uniquely names a gallery on the source site.
// Immutable once created.
type Identity struct {
	SiteID uint32
	Token  string
}

// URL returns the canonical gallery URL.
func (id Identity) URL() string {
	return fmt.Sprintf("https://exhentai.org/g/%d/%s/", id.SiteID, id.Token)
}

func (id Identity) String() string {
	return fmt.Sprintf("%d/%s", id.SiteID, id.Token)
}

var galleryURLRe = regexp.MustCompile(`/g/(\d+)/([0-9a-f]+)`)

// ParseIdentity extracts an Identity from a gallery URL.
func ParseIdentity(rawURL string) (Identity, error) {
	m := galleryURLRe.FindStringSubmatch(rawURL)
	if m == nil {
		return Identity{}, fmt.Errorf("not a gallery url: %q", rawURL)
	}
	id, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return Identity{}, fmt.Errorf("parse gallery id: %w", err)
	}
	return Identity{SiteID: uint32(id), Token: m[2]}, nil
}

// PageURL names one page slot of a gallery on the source site. The URL path
// carries the first ten hex chars of the image's SHA-1, which doubles as the
// dedup key.
type PageURL struct {
	GalleryID uint32
	Number    int
	Hash      string
	URL       string
}

var pageURLRe = regexp.MustCompile(`/s/([0-9a-f]{10})/(\d+)-(\d+)`)

// ParsePageURL extracts a PageURL from a page link.
func ParsePageURL(rawURL string) (PageURL, error) {
	m := pageURLRe.FindStringSubmatch(rawURL)
	if m == nil {
		return PageURL{}, fmt.Errorf("not a page url: %q", rawURL)
	}
	gid, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil {
		return PageURL{}, fmt.Errorf("parse gallery id: %w", err)
	}
	num, err := strconv.Atoi(m[3])
	if err != nil {
		return PageURL{}, fmt.Errorf("parse page number: %w", err)
	}
	return PageURL{GalleryID: uint32(gid), Number: num, Hash: m[1], URL: rawURL}, nil
}

// Meta is the metadata scraped from a gallery's detail view, including the
// ordered list of page URLs.
type Meta struct {
	Identity  Identity
	Title     string
	TitleJP   string
	Tags      *Tags
	Favorites int
	Posted    time.Time
	Parent    *Identity
	Pages     []PageURL
}

// BestTitle prefers the localized title when the source provides one.
func (m *Meta) BestTitle() string {
	if m.TitleJP != "" {
		return m.TitleJP
	}
	return m.Title
}

// Record is the persisted form of a gallery.
type Record struct {
	Identity  Identity
	Title     string
	TitleJP   string
	Tags      *Tags
	PageCount int
	Parent    *uint32
	Favorites int
	Posted    time.Time
	Deleted   bool
}

// Image is one distinct rehosted asset. ContentHash is the authoritative
// dedup key: no two rows may share it.
type Image struct {
	ContentID   uint32
	ContentHash string
	HostedURL   string
}

// Page binds one gallery page slot to an Image. Many pages across galleries
// may reference the same image.
type Page struct {
	GalleryID uint32
	Number    int
	ContentID uint32
}

// Publication pairs the channel announcement with its hosted article.
type Publication struct {
	MessageID   int
	GalleryID   uint32
	ArticleURL  string
	PublishDate time.Time
}

// Poll is the per-gallery rating. Score is the Wilson lower bound of the
// vote histogram, recomputed transactionally with every vote write.
type Poll struct {
	ID        int64
	GalleryID uint32
	Score     float64
}

// Vote is one user's current rating on a poll. Re-voting overwrites.
type Vote struct {
	UserID  int64
	PollID  int64
	Option  int
	VotedAt time.Time
}

// ScoredGallery is one row of a ranking query.
type ScoredGallery struct {
	Score     float64
	Title     string
	MessageID int
	GalleryID uint32
}

// ChallengeCandidate is a random high-scored image pick used by the
// guess-the-artist game in the bot layer.
type ChallengeCandidate struct {
	GalleryID uint32
	Token     string
	Page      int
	Artist    string
	Hash      string
	URL       string
	Score     float64
}
