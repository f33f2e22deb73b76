package gallery

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTagsRoundTripPreservesOrder(t *testing.T) {
	t.Parallel()

	tags := NewTags()
	tags.Set("artist", []string{"alpha"})
	tags.Set("female", []string{"tag b", "tag a"})
	tags.Set("language", []string{"japanese"})

	data, err := json.Marshal(tags)
	require.NoError(t, err)
	require.Equal(t, `{"artist":["alpha"],"female":["tag b","tag a"],"language":["japanese"]}`, string(data))

	decoded := NewTags()
	require.NoError(t, json.Unmarshal(data, decoded))
	require.Equal(t, []string{"artist", "female", "language"}, decoded.Namespaces())
	require.True(t, tags.Equal(decoded))

	again, err := json.Marshal(decoded)
	require.NoError(t, err)
	require.Equal(t, string(data), string(again))
}

func TestTagsEqualDetectsDifferences(t *testing.T) {
	t.Parallel()

	a := NewTags()
	a.Set("artist", []string{"alpha"})
	a.Set("parody", []string{"original"})

	b := NewTags()
	b.Set("parody", []string{"original"})
	b.Set("artist", []string{"alpha"})

	// Same content, different namespace order: not equal.
	require.False(t, a.Equal(b))

	c := NewTags()
	c.Set("artist", []string{"alpha"})
	c.Set("parody", []string{"original"})
	require.True(t, a.Equal(c))

	c.Set("parody", []string{"other"})
	require.False(t, a.Equal(c))
}

func TestParseIdentity(t *testing.T) {
	t.Parallel()

	id, err := ParseIdentity("https://exhentai.org/g/2079186/b716e07dc6/")
	require.NoError(t, err)
	require.Equal(t, Identity{SiteID: 2079186, Token: "b716e07dc6"}, id)
	require.Equal(t, "https://exhentai.org/g/2079186/b716e07dc6/", id.URL())

	_, err = ParseIdentity("https://exhentai.org/favorites.php")
	require.Error(t, err)
}

func TestParsePageURL(t *testing.T) {
	t.Parallel()

	p, err := ParsePageURL("https://exhentai.org/s/03af734602/2079186-12")
	require.NoError(t, err)
	require.Equal(t, uint32(2079186), p.GalleryID)
	require.Equal(t, 12, p.Number)
	require.Equal(t, "03af734602", p.Hash)

	_, err = ParsePageURL("https://exhentai.org/g/2079186/b716e07dc6/")
	require.Error(t, err)
}
