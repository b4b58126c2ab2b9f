// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package site

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/ptengine/pkg/types"
)

func init() {
	Register(types.FrameworkGazelle, func(p types.SiteProfile, d Deps) (Adapter, error) {
		s, err := NewSession(p, d)
		if err != nil {
			return nil, err
		}
		return &Gazelle{session: s}, nil
	})
}

const gazelleTimeLayout = "2006-01-02 15:04:05"

// Gazelle queries the ajax.php JSON API of Gazelle-based sites. Torrents
// are grouped under a release group; each torrent becomes one listing.
type Gazelle struct {
	session *Session
}

// Name returns the site name.
func (g *Gazelle) Name() string { return g.session.Profile().Name }

func (g *Gazelle) header() http.Header {
	h := http.Header{"Accept": {"application/json"}}
	if key := g.session.APIKey(); key != "" {
		h.Set("Authorization", key)
	}
	return h
}

// Search calls ajax.php?action=browse.
func (g *Gazelle) Search(ctx context.Context, q Query) ([]types.RawSearchResult, error) {
	params := url.Values{
		"action":    {"browse"},
		"searchstr": {q.Keyword},
	}
	if q.Category != "" {
		params.Set("filter_cat["+q.Category+"]", "1")
	}

	var resp gazelleEnvelope[gazelleBrowse]
	if err := g.call(ctx, params, &resp); err != nil {
		return nil, err
	}

	var results []types.RawSearchResult
	for _, grp := range resp.Response.Results {
		for _, t := range grp.Torrents {
			results = append(results, g.toRaw(grp.gazelleGroup, t))
			if q.Limit > 0 && len(results) >= q.Limit {
				return results, nil
			}
		}
	}
	return results, nil
}

// FetchDetail calls ajax.php?action=torrent for the torrent id in ref.
func (g *Gazelle) FetchDetail(ctx context.Context, ref string) (types.RawSearchResult, error) {
	id := ref
	if u, err := url.Parse(ref); err == nil && u.Query().Get("torrentid") != "" {
		id = u.Query().Get("torrentid")
	}
	params := url.Values{"action": {"torrent"}, "id": {id}}

	var resp gazelleEnvelope[gazelleDetail]
	if err := g.call(ctx, params, &resp); err != nil {
		return types.RawSearchResult{}, err
	}
	if resp.Response.Torrent.TorrentID == 0 {
		return types.RawSearchResult{}, fmt.Errorf("%w: torrent %s missing from response", ErrParse, id)
	}
	return g.toRaw(resp.Response.Group, resp.Response.Torrent), nil
}

// Authenticate calls ajax.php?action=index, which only succeeds for a
// logged-in session.
func (g *Gazelle) Authenticate(ctx context.Context) (types.AuthState, error) {
	if err := g.session.Refresh(ctx); err != nil {
		return types.AuthState{}, err
	}
	var resp gazelleEnvelope[gazelleIndex]
	if err := g.call(ctx, url.Values{"action": {"index"}}, &resp); err != nil {
		return types.AuthState{}, err
	}
	return types.AuthState{
		LoggedIn:  true,
		Username:  resp.Response.Username,
		CheckedAt: time.Now(),
	}, nil
}

func (g *Gazelle) call(ctx context.Context, params url.Values, out any) error {
	body, err := g.session.Get(ctx, "ajax.php", params, g.header())
	if err != nil {
		return err
	}

	var status struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	if status.Status != "success" {
		msg := strings.ToLower(status.Error)
		if strings.Contains(msg, "credential") || strings.Contains(msg, "login") || strings.Contains(msg, "not logged") {
			return fmt.Errorf("%w: %s", ErrAuthExpired, status.Error)
		}
		return fmt.Errorf("%w: API status %q: %s", ErrParse, status.Status, status.Error)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	return nil
}

func (g *Gazelle) toRaw(grp gazelleGroup, t gazelleTorrent) types.RawSearchResult {
	id := strconv.Itoa(t.TorrentID)
	r := types.RawSearchResult{
		Site:      g.Name(),
		Title:     gazelleTitle(grp, t),
		DetailRef: "torrents.php?id=" + strconv.Itoa(grp.GroupID) + "&torrentid=" + id,
		SizeText:  strconv.FormatInt(t.Size, 10),
		Seeders:   t.Seeders,
		Leechers:  t.Leechers,
		Grabs:     t.Snatches,
		Category:  grp.Category,
		Free:      t.IsFreeleech,
	}
	if ts, err := time.ParseInLocation(gazelleTimeLayout, t.Time, time.UTC); err == nil {
		r.PublishedAt = ts
	}
	dl := "torrents.php?action=download&id=" + id
	if pk := g.session.Profile().Passkey; pk != "" {
		dl += "&torrent_pass=" + url.QueryEscape(pk)
	}
	r.DownloadURL = g.session.Resolve(dl)
	return r
}

// gazelleTitle prefers the release name when the site exposes one and
// otherwise builds a scene-style title from the group and encode fields.
func gazelleTitle(grp gazelleGroup, t gazelleTorrent) string {
	if t.ReleaseName != "" {
		return t.ReleaseName
	}
	parts := []string{grp.GroupName}
	if grp.GroupYear > 0 {
		parts = append(parts, strconv.Itoa(grp.GroupYear))
	}
	for _, p := range []string{t.RemasterTitle, t.Resolution, t.Media, t.Codec, t.Format, t.Encoding} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	title := strings.Join(parts, " ")
	if t.ReleaseGroup != "" {
		title += "-" + t.ReleaseGroup
	}
	return title
}

type gazelleEnvelope[T any] struct {
	Status   string `json:"status"`
	Response T      `json:"response"`
}

type gazelleBrowse struct {
	Results []struct {
		gazelleGroup
		Torrents []gazelleTorrent `json:"torrents"`
	} `json:"results"`
}

type gazelleDetail struct {
	Group   gazelleGroup   `json:"group"`
	Torrent gazelleTorrent `json:"torrent"`
}

type gazelleIndex struct {
	Username string `json:"username"`
	ID       int    `json:"id"`
}

type gazelleGroup struct {
	GroupID   int    `json:"groupId"`
	GroupName string `json:"groupName"`
	GroupYear int    `json:"groupYear"`
	Category  string `json:"category"`
}

type gazelleTorrent struct {
	TorrentID     int    `json:"torrentId"`
	ReleaseName   string `json:"releaseName"`
	ReleaseGroup  string `json:"releaseGroup"`
	RemasterTitle string `json:"remasterTitle"`
	Resolution    string `json:"resolution"`
	Media         string `json:"media"`
	Codec         string `json:"codec"`
	Format        string `json:"format"`
	Encoding      string `json:"encoding"`
	Size          int64  `json:"size"`
	Seeders       int    `json:"seeders"`
	Leechers      int    `json:"leechers"`
	Snatches      int    `json:"snatches"`
	Time          string `json:"time"`
	IsFreeleech   bool   `json:"isFreeleech"`
}
