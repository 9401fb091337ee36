package bot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediasniff/internal/domain"
)

func TestParseTabArg(t *testing.T) {
	cases := []struct {
		text    string
		want    domain.TabID
		wantErr bool
	}{
		{"/links 3", 3, false},
		{"  /links   0  ", 0, false},
		{"/links@mediasniff_bot 12", 12, false},
		{"/links -1", -1, false},
		{"/links", domain.NoTab, true},
		{"/links@mediasniff_bot", domain.NoTab, true},
		{"/links abc", domain.NoTab, true},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got, err := parseTabArg(tc.text, "/links")
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExtractURL(t *testing.T) {
	u, ok := extractURL(" https://example.com/watch?v=1 ")
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/watch?v=1", u)

	for _, text := range []string{"", "hello there", "ftp://example.com/file", "example.com", "/links 3"} {
		_, ok := extractURL(text)
		assert.False(t, ok, text)
	}
}

func TestFormatLinks(t *testing.T) {
	assert.Equal(t, []string{"No video or audio links found yet. Browse or reload the page."}, formatLinks(1, nil))

	msgs := formatLinks(2, []string{"https://a.example.com/x.mp4", "https://b.example.com/y.m3u8"})
	require.Len(t, msgs, 1)
	assert.Equal(t, "Media links for tab 2:\nhttps://a.example.com/x.mp4\nhttps://b.example.com/y.m3u8", msgs[0])
}

func TestFormatTabs(t *testing.T) {
	assert.Equal(t, []string{"No tabs are being watched."}, formatTabs(nil))

	msgs := formatTabs([]domain.Tab{{ID: 0, URL: ""}, {ID: 4, URL: "https://example.com"}})
	require.Len(t, msgs, 1)
	assert.Equal(t, "Watched tabs:\n0  (blank)\n4  https://example.com", msgs[0])
}

func TestChunkLines(t *testing.T) {
	lines := []string{strings.Repeat("a", 6), strings.Repeat("b", 3), strings.Repeat("c", 12)}
	msgs := chunkLines(lines, 10)

	assert.Equal(t, []string{"aaaaaa\nbbb", strings.Repeat("c", 10)}, msgs)
	for _, m := range msgs {
		assert.LessOrEqual(t, len(m), 10)
	}
	assert.Empty(t, chunkLines(nil, 10))
}
