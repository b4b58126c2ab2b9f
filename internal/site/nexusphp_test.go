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

const nexusListingHTML = `<html><body>
<a href="userdetails.php?id=42">alice</a> <a href="logout.php">logout</a>
<table class="torrents">
<tr>
  <td class="colhead">Type</td>
  <td class="colhead">Name</td>
  <td class="colhead"><img class="comments" /></td>
  <td class="colhead"><img class="time" /></td>
  <td class="colhead"><img class="size" /></td>
  <td class="colhead"><img class="seeders" /></td>
  <td class="colhead"><img class="leechers" /></td>
  <td class="colhead"><img class="snatched" /></td>
</tr>
<tr>
  <td><a href="?cat=401"><img alt="Movies" /></a></td>
  <td><table class="torrentname"><tr><td class="embedded">
    <a title="Avengers.Endgame.2019.2160p.UHD.BluRay.x264-GROUPX" href="details.php?id=101&amp;hit=1"><b>Avengers.Endgame.2019...</b></a>
    <img class="pro_free" /><br />复仇者联盟4
  </td><td><a href="download.php?id=101"><img class="download" /></a></td></tr></table></td>
  <td>3</td>
  <td><span title="2024-03-01 10:20:30">1 day</span></td>
  <td>20.1<br />GB</td>
  <td>12</td>
  <td>1,204</td>
  <td>88</td>
</tr>
<tr>
  <td><a href="?cat=402"><img alt="TV" /></a></td>
  <td><table class="torrentname"><tr><td class="embedded">
    <a title="Show.S01E02.1080p.WEB-DL.H264-TEAM" href="details.php?id=102"><b>Show.S01E02</b></a>
    <img class="hitandrun" alt="H&amp;R" />
  </td></tr></table></td>
  <td>0</td>
  <td><span title="2024-03-02 00:00:00">now</span></td>
  <td>1.2<br />GB</td>
  <td>5</td>
  <td>0</td>
  <td>1</td>
</tr>
<tr><td colspan="8">advert row</td></tr>
</table></body></html>`

const nexusDetailHTML = `<html><body>
<a href="logout.php">logout</a>
<h1 id="top">Avengers.Endgame.2019.2160p.UHD.BluRay.x264-GROUPX <b>[Free]</b></h1>
<table>
<tr><td class="rowhead">副标题</td><td class="rowfollow">复仇者联盟4：终局之战</td></tr>
<tr><td class="rowhead">基本信息</td><td class="rowfollow">大小：20.10 GB 类型: Movie</td></tr>
</table>
<a href="download.php?id=101">download</a>
</body></html>`

func nexusServer(t *testing.T, loggedIn bool) Adapter {
	mux := http.NewServeMux()
	mux.HandleFunc("/torrents.php", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "avengers", r.URL.Query().Get("search"))
		if !loggedIn {
			fmt.Fprint(w, `<html><form action="takelogin.php"></form></html>`)
			return
		}
		fmt.Fprint(w, nexusListingHTML)
	})
	mux.HandleFunc("/details.php", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, nexusDetailHTML)
	})
	mux.HandleFunc("/index.php", func(w http.ResponseWriter, _ *http.Request) {
		if !loggedIn {
			fmt.Fprint(w, `<html>please log in</html>`)
			return
		}
		fmt.Fprint(w, `<html><a href="userdetails.php?id=42">alice</a></html>`)
	})
	return newTestAdapter(t, types.FrameworkNexusPHP, mux)
}

func TestNexusPHPSearch(t *testing.T) {
	a := nexusServer(t, true)
	results, err := a.Search(context.Background(), Query{Keyword: "avengers"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	r := results[0]
	assert.Equal(t, "Avengers.Endgame.2019.2160p.UHD.BluRay.x264-GROUPX", r.Title)
	assert.Equal(t, "复仇者联盟4", r.Subtitle)
	assert.Equal(t, "401", r.Category)
	assert.Equal(t, "20.1GB", r.SizeText)
	assert.Equal(t, 12, r.Seeders)
	assert.Equal(t, 1204, r.Leechers)
	assert.Equal(t, 88, r.Grabs)
	assert.True(t, r.Free)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC), r.PublishedAt)
	assert.Contains(t, r.DownloadURL, "/download.php?id=101&passkey=pk")
	assert.Equal(t, "details.php?id=101&hit=1", r.DetailRef)

	assert.False(t, r.HNR)

	assert.False(t, results[1].Free)
	assert.True(t, results[1].HNR)
	assert.Contains(t, results[1].DownloadURL, "/download.php?id=102")
}

func TestNexusPHPSearchLimit(t *testing.T) {
	a := nexusServer(t, true)
	results, err := a.Search(context.Background(), Query{Keyword: "avengers", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestNexusPHPLoggedOut(t *testing.T) {
	a := nexusServer(t, false)
	_, err := a.Search(context.Background(), Query{Keyword: "avengers"})
	assert.ErrorIs(t, err, ErrAuthExpired)

	_, err = a.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrAuthExpired)
}

func TestNexusPHPFetchDetail(t *testing.T) {
	a := nexusServer(t, true)
	r, err := a.FetchDetail(context.Background(), "details.php?id=101")
	require.NoError(t, err)
	assert.Equal(t, "Avengers.Endgame.2019.2160p.UHD.BluRay.x264-GROUPX", r.Title)
	assert.Equal(t, "复仇者联盟4：终局之战", r.Subtitle)
	assert.Equal(t, "20.10 GB", r.SizeText)
	assert.False(t, r.HNR)
	assert.Contains(t, r.DownloadURL, "download.php?id=101")
}

func TestNexusPHPAuthenticate(t *testing.T) {
	a := nexusServer(t, true)
	state, err := a.Authenticate(context.Background())
	require.NoError(t, err)
	assert.True(t, state.LoggedIn)
	assert.Equal(t, "alice", state.Username)
}
