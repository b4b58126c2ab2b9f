// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package site

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/ptengine/pkg/types"
)

const torznabFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:torznab="http://torznab.com/schemas/2015/feed">
<channel>
  <title>indexer</title>
  <item>
    <title>The.Bear.S03E01-E05.1080p.WEB.H264-SuccessfulCrab</title>
    <guid>https://indexer.example/details/9001</guid>
    <link>https://indexer.example/dl/9001.torrent</link>
    <pubDate>Wed, 26 Jun 2024 12:00:00 +0000</pubDate>
    <enclosure url="https://indexer.example/dl/9001.torrent" length="5368709120" type="application/x-bittorrent"/>
    <torznab:attr name="seeders" value="40"/>
    <torznab:attr name="peers" value="55"/>
    <torznab:attr name="grabs" value="300"/>
    <torznab:attr name="category" value="5040"/>
    <torznab:attr name="infohash" value="DEADBEEF"/>
    <torznab:attr name="downloadvolumefactor" value="0"/>
  </item>
  <item>
    <title></title>
  </item>
</channel>
</rss>`

func TestTorznabSearchAndDetail(t *testing.T) {
	a := newTestAdapter(t, types.FrameworkTorznab, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "search", q.Get("t"))
		assert.Equal(t, "the bear", q.Get("q"))
		assert.Equal(t, "key123", q.Get("apikey"))
		fmt.Fprint(w, torznabFeedXML)
	}))

	results, err := a.Search(context.Background(), Query{Keyword: "the bear"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "The.Bear.S03E01-E05.1080p.WEB.H264-SuccessfulCrab", r.Title)
	assert.Equal(t, "5368709120", r.SizeText)
	assert.Equal(t, 40, r.Seeders)
	assert.Equal(t, 15, r.Leechers)
	assert.Equal(t, 300, r.Grabs)
	assert.Equal(t, "5040", r.Category)
	assert.Equal(t, "deadbeef", r.InfoHash)
	assert.True(t, r.Free)
	assert.Equal(t, time.Date(2024, 6, 26, 12, 0, 0, 0, time.UTC), r.PublishedAt)

	detail, err := a.FetchDetail(context.Background(), r.DetailRef)
	require.NoError(t, err)
	assert.Equal(t, r, detail)

	_, err = a.FetchDetail(context.Background(), "https://indexer.example/details/unknown")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestTorznabErrorDocuments(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"wrong api key", `<?xml version="1.0"?><error code="100" description="Incorrect user credentials"/>`, ErrAuthExpired},
		{"request limit", `<error code="429" description="Request limit reached"/>`, ErrParse},
		{"unknown failure", `<error code="900" description="Unknown error"/>`, ErrSiteUnavailable},
		{"garbage", `not xml at all`, ErrParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(t, types.FrameworkTorznab, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			_, err := a.Search(context.Background(), Query{Keyword: "x"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTorznabAuthenticate(t *testing.T) {
	a := newTestAdapter(t, types.FrameworkTorznab, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "caps", r.URL.Query().Get("t"))
		fmt.Fprint(w, `<caps><server title="indexer"/></caps>`)
	}))
	state, err := a.Authenticate(context.Background())
	require.NoError(t, err)
	assert.True(t, state.LoggedIn)
}
