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

const gazelleBrowseJSON = `{
  "status": "success",
  "response": {
    "results": [
      {
        "groupId": 7,
        "groupName": "Blade Runner",
        "groupYear": 1982,
        "category": "Movies",
        "torrents": [
          {"torrentId": 70, "releaseName": "Blade.Runner.1982.Final.Cut.1080p.BluRay.x264-AMIABLE", "size": 12884901888, "seeders": 30, "leechers": 2, "snatches": 400, "time": "2023-05-06 07:08:09", "isFreeleech": true},
          {"torrentId": 71, "resolution": "2160p", "media": "Blu-ray", "codec": "x265", "releaseGroup": "HDR", "size": 60129542144, "seeders": 4, "leechers": 1, "snatches": 12, "time": "2023-06-01 00:00:00"}
        ]
      }
    ]
  }
}`

func gazelleServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) Adapter {
	return newTestAdapter(t, types.FrameworkGazelle, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ajax.php", r.URL.Path)
		assert.Equal(t, "key123", r.Header.Get("Authorization"))
		handler(w, r)
	}))
}

func TestGazelleSearch(t *testing.T) {
	a := gazelleServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "browse", r.URL.Query().Get("action"))
		assert.Equal(t, "blade runner", r.URL.Query().Get("searchstr"))
		fmt.Fprint(w, gazelleBrowseJSON)
	})

	results, err := a.Search(context.Background(), Query{Keyword: "blade runner"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, "Blade.Runner.1982.Final.Cut.1080p.BluRay.x264-AMIABLE", first.Title)
	assert.Equal(t, "12884901888", first.SizeText)
	assert.Equal(t, 30, first.Seeders)
	assert.Equal(t, 400, first.Grabs)
	assert.True(t, first.Free)
	assert.Equal(t, "Movies", first.Category)
	assert.Equal(t, time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC), first.PublishedAt)
	assert.Equal(t, "torrents.php?id=7&torrentid=70", first.DetailRef)
	assert.Contains(t, first.DownloadURL, "torrents.php?action=download&id=70&torrent_pass=pk")

	assert.Equal(t, "Blade Runner 1982 2160p Blu-ray x265-HDR", results[1].Title)
}

func TestGazelleSearchLimit(t *testing.T) {
	a := gazelleServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, gazelleBrowseJSON)
	})
	results, err := a.Search(context.Background(), Query{Keyword: "x", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestGazelleFailureStatus(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"bad credentials", `{"status":"failure","error":"bad credentials"}`, ErrAuthExpired},
		{"not logged in", `{"status":"failure","error":"You are not logged in"}`, ErrAuthExpired},
		{"other failure", `{"status":"failure","error":"bad id parameter"}`, ErrParse},
		{"not json", `<html>oops</html>`, ErrParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := gazelleServer(t, func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, tt.body)
			})
			_, err := a.Search(context.Background(), Query{Keyword: "x"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGazelleFetchDetail(t *testing.T) {
	a := gazelleServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "torrent", r.URL.Query().Get("action"))
		assert.Equal(t, "70", r.URL.Query().Get("id"))
		fmt.Fprint(w, `{"status":"success","response":{
			"group":{"groupId":7,"groupName":"Blade Runner","groupYear":1982,"category":"Movies"},
			"torrent":{"torrentId":70,"releaseName":"Blade.Runner.1982.1080p-AMIABLE","size":100,"seeders":3}}}`)
	})
	r, err := a.FetchDetail(context.Background(), "torrents.php?id=7&torrentid=70")
	require.NoError(t, err)
	assert.Equal(t, "Blade.Runner.1982.1080p-AMIABLE", r.Title)
	assert.Equal(t, 3, r.Seeders)
}

func TestGazelleAuthenticate(t *testing.T) {
	a := gazelleServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "index", r.URL.Query().Get("action"))
		fmt.Fprint(w, `{"status":"success","response":{"username":"bob","id":9}}`)
	})
	state, err := a.Authenticate(context.Background())
	require.NoError(t, err)
	assert.True(t, state.LoggedIn)
	assert.Equal(t, "bob", state.Username)
}
