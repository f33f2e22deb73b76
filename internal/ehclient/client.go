// Package ehclient implements the authenticated session against the source
// site: listing search, gallery metadata, page resolution and asset bytes.
package ehclient

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/sakuramoe/galarc/internal/gallery"
)

// Config controls the session.
type Config struct {
	BaseURL   string
	Cookie    string
	UserAgent string
	Timeout   time.Duration
	// Delay is the per-domain politeness delay between requests.
	Delay time.Duration
}

// Client is an authenticated source-site session. All methods are safe for
// sequential use; page resolution must not be called concurrently (site
// anti-abuse requirement).
type Client struct {
	cfg    Config
	base   *colly.Collector
	logger *zap.Logger
}

// New builds a Client. The collector is cloned per request; cookie and
// referer headers ride on every fetch.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://exhentai.org"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.Delay > 0 {
		if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Delay: cfg.Delay}); err != nil {
			return nil, fmt.Errorf("set limit rule: %w", err)
		}
	}

	return &Client{cfg: cfg, base: c, logger: logger}, nil
}

func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	var body []byte
	col := c.base.Clone()
	col.OnRequest(func(r *colly.Request) {
		if c.cfg.Cookie != "" {
			r.Headers.Set("Cookie", c.cfg.Cookie)
		}
		r.Headers.Set("Referer", c.cfg.BaseURL)
	})
	col.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})

	if err := col.Visit(rawURL); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	col.Wait()
	return body, nil
}

func (c *Client) document(ctx context.Context, rawURL string) (*goquery.Document, error) {
	body, err := c.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	return doc, nil
}

// Search fetches one listing page. The returned cursor feeds the next call;
// an empty cursor means the listing is exhausted.
func (c *Client) Search(ctx context.Context, params url.Values, cursor string) ([]gallery.Identity, string, error) {
	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	if cursor != "" {
		q.Set("next", cursor)
	}
	listURL := c.cfg.BaseURL + "/?" + q.Encode()

	doc, err := c.document(ctx, listURL)
	if err != nil {
		return nil, "", err
	}

	var (
		ids      []gallery.Identity
		parseErr error
	)
	doc.Find("table.itg.gltc tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 || parseErr != nil {
			// First row is the table header.
			return
		}
		href, ok := row.Find("td.gl3c.glname a").Attr("href")
		if !ok {
			return
		}
		id, err := gallery.ParseIdentity(href)
		if err != nil {
			parseErr = err
			return
		}
		ids = append(ids, id)
	})
	if parseErr != nil {
		return nil, "", fmt.Errorf("parse listing: %w", parseErr)
	}
	if len(ids) == 0 {
		return nil, "", nil
	}
	// The site pages by "everything older than id".
	next := strconv.FormatUint(uint64(ids[len(ids)-1].SiteID), 10)
	c.logger.Debug("listing page fetched",
		zap.Int("galleries", len(ids)),
		zap.String("next", next),
	)
	return ids, next, nil
}

var favoritesRe = regexp.MustCompile(`\d+`)

// Gallery fetches a gallery's metadata and the ordered page URLs, walking
// paginated thumbnail views.
func (c *Client) Gallery(ctx context.Context, id gallery.Identity) (*gallery.Meta, error) {
	doc, err := c.document(ctx, fmt.Sprintf("%s/g/%d/%s/", c.cfg.BaseURL, id.SiteID, id.Token))
	if err != nil {
		return nil, err
	}

	meta := &gallery.Meta{Identity: id, Tags: gallery.NewTags()}
	if err := c.parseGalleryDoc(ctx, doc, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func (c *Client) parseGalleryDoc(ctx context.Context, doc *goquery.Document, meta *gallery.Meta) error {
	id := meta.Identity
	meta.Title = strings.TrimSpace(doc.Find("h1#gn").Text())
	if meta.Title == "" {
		return fmt.Errorf("gallery %s: missing title", id)
	}
	meta.TitleJP = strings.TrimSpace(doc.Find("h1#gj").Text())

	if href, ok := doc.Find("td.gdt2 a").Attr("href"); ok {
		if parent, err := gallery.ParseIdentity(href); err == nil {
			meta.Parent = &parent
		}
	}

	doc.Find("div#taglist tr").Each(func(_ int, row *goquery.Selection) {
		ns := strings.Trim(strings.TrimSpace(row.Find("td.tc").Text()), ":")
		if ns == "" {
			return
		}
		var tags []string
		row.Find("td div a").Each(func(_ int, a *goquery.Selection) {
			tags = append(tags, strings.TrimSpace(a.Text()))
		})
		meta.Tags.Set(ns, tags)
	})

	if fav := favoritesRe.FindString(doc.Find("#favcount").Text()); fav != "" {
		meta.Favorites, _ = strconv.Atoi(fav)
	}

	if postedText := strings.TrimSpace(doc.Find("td.gdt2").First().Text()); postedText != "" {
		posted, err := time.Parse("2006-01-02 15:04", postedText)
		if err != nil {
			return fmt.Errorf("gallery %s: parse posted %q: %w", id, postedText, err)
		}
		meta.Posted = posted
	}

	pages, err := c.collectPages(ctx, doc)
	if err != nil {
		return fmt.Errorf("gallery %s: %w", id, err)
	}
	meta.Pages = pages
	return nil
}

// collectPages gathers page links from the first document and any follow-up
// thumbnail pages.
func (c *Client) collectPages(ctx context.Context, doc *goquery.Document) ([]gallery.PageURL, error) {
	var pages []gallery.PageURL
	appendPages := func(d *goquery.Document) error {
		var err error
		d.Find("div.gdtl a, div.gdtm a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, ok := a.Attr("href")
			if !ok {
				return true
			}
			var p gallery.PageURL
			if p, err = gallery.ParsePageURL(href); err != nil {
				return false
			}
			pages = append(pages, p)
			return true
		})
		return err
	}
	if err := appendPages(doc); err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	for {
		next, ok := doc.Find("table.ptt td:last-child a").Attr("href")
		if !ok {
			break
		}
		if _, dup := seen[next]; dup {
			break
		}
		seen[next] = struct{}{}

		var err error
		doc, err = c.document(ctx, next)
		if err != nil {
			return nil, err
		}
		if err := appendPages(doc); err != nil {
			return nil, err
		}
	}
	return pages, nil
}

var fileindexRe = regexp.MustCompile(`fileindex=(\d+)`)

// ResolveImage resolves one page to its site-native content id and the real
// asset URL. One request per page, strictly sequential by contract.
func (c *Client) ResolveImage(ctx context.Context, page gallery.PageURL) (uint32, string, error) {
	doc, err := c.document(ctx, page.URL)
	if err != nil {
		return 0, "", err
	}
	src, ok := doc.Find("img#img").Attr("src")
	if !ok {
		return 0, "", fmt.Errorf("page %d/%d: missing image element", page.GalleryID, page.Number)
	}
	m := fileindexRe.FindStringSubmatch(src)
	if m == nil {
		// Some mirrors serve the asset without a fileindex; fall back to
		// the nl reload link which always carries it.
		if href, ok := doc.Find("#i6 a").Attr("href"); ok {
			m = fileindexRe.FindStringSubmatch(href)
		}
	}
	if m == nil {
		return 0, "", fmt.Errorf("page %d/%d: missing fileindex", page.GalleryID, page.Number)
	}
	contentID, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return 0, "", fmt.Errorf("page %d/%d: parse fileindex: %w", page.GalleryID, page.Number, err)
	}
	return uint32(contentID), src, nil
}

// FetchBytes downloads raw asset bytes.
func (c *Client) FetchBytes(ctx context.Context, assetURL string) ([]byte, error) {
	return c.fetch(ctx, assetURL)
}
