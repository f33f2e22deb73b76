package ehclient

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sakuramoe/galarc/internal/gallery"
)

// Iterate walks the listing from the newest gallery onward, calling fn for
// each identity in order. Pages are fetched strictly sequentially; fn
// returning false stops the walk. The walk ends when a listing fetch fails
// or the site stops returning a next cursor. No cursor survives a restart:
// every sweep begins from scratch.
func (c *Client) Iterate(ctx context.Context, params url.Values, fn func(gallery.Identity) bool) error {
	cursor := ""
	for {
		ids, next, err := c.Search(ctx, params, cursor)
		if err != nil {
			return fmt.Errorf("listing sweep: %w", err)
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("listing sweep: %w", err)
			}
			if !fn(id) {
				return nil
			}
		}
		if next == "" {
			return nil
		}
		cursor = next
	}
}
