package announce

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sakuramoe/galarc/internal/gallery"
)

// hashtagClean maps characters Telegram would split a hashtag on.
var hashtagClean = regexp.MustCompile(`[-/· ]`)

// Caption renders the channel message: one hashtag line per tag namespace,
// namespaces padded to a common width, then the article link and the source
// link.
func Caption(rec gallery.Record, articleURL string) string {
	var b strings.Builder

	width := 0
	for _, ns := range rec.Tags.Namespaces() {
		if n := utf8.RuneCountInString(ns); n > width {
			width = n
		}
	}
	for _, ns := range rec.Tags.Namespaces() {
		pad := strings.Repeat(" ", width-utf8.RuneCountInString(ns))
		b.WriteString(fmt.Sprintf("%s%s:", pad, html.EscapeString(ns)))
		for _, tag := range rec.Tags.Get(ns) {
			b.WriteString(" #")
			b.WriteString(hashtagClean.ReplaceAllString(html.EscapeString(tag), "_"))
		}
		b.WriteString("\n")
	}

	title := rec.Title
	if rec.TitleJP != "" {
		title = rec.TitleJP
	}
	fmt.Fprintf(&b, `<code>%s</code>`, html.EscapeString(title))
	b.WriteString("\n")
	fmt.Fprintf(&b, `<a href="%s">%s</a>`, articleURL, html.EscapeString("阅读"))
	fmt.Fprintf(&b, ` | <a href="%s">%s</a>`, rec.Identity.URL(), html.EscapeString("原始地址"))
	return b.String()
}
