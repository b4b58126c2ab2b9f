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
	Register(types.FrameworkUnit3D, func(p types.SiteProfile, d Deps) (Adapter, error) {
		s, err := NewSession(p, d)
		if err != nil {
			return nil, err
		}
		return &Unit3D{session: s}, nil
	})
}

// Unit3D queries the REST API of Unit3D-based sites using the account's
// API token.
type Unit3D struct {
	session *Session
}

// Name returns the site name.
func (u *Unit3D) Name() string { return u.session.Profile().Name }

func (u *Unit3D) params(extra url.Values) url.Values {
	p := url.Values{"api_token": {u.session.APIKey()}}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

var jsonAccept = http.Header{"Accept": {"application/json"}}

// Search calls api/torrents/filter.
func (u *Unit3D) Search(ctx context.Context, q Query) ([]types.RawSearchResult, error) {
	extra := url.Values{"name": {q.Keyword}}
	if q.Category != "" {
		extra.Set("categories[]", q.Category)
	}
	if q.Limit > 0 {
		extra.Set("perPage", strconv.Itoa(q.Limit))
	}

	body, err := u.session.Get(ctx, "api/torrents/filter", u.params(extra), jsonAccept)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []unit3dTorrent `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	results := make([]types.RawSearchResult, 0, len(resp.Data))
	for _, t := range resp.Data {
		if t.Attributes.Name == "" {
			u.session.log.Warn().Str("id", t.ID.String()).Msg("unit3d torrent without name skipped")
			continue
		}
		results = append(results, u.toRaw(t))
	}
	return results, nil
}

// FetchDetail calls api/torrents/{id}.
func (u *Unit3D) FetchDetail(ctx context.Context, ref string) (types.RawSearchResult, error) {
	id := ref[strings.LastIndex(ref, "/")+1:]
	body, err := u.session.Get(ctx, "api/torrents/"+url.PathEscape(id), u.params(nil), jsonAccept)
	if err != nil {
		return types.RawSearchResult{}, err
	}
	var resp struct {
		Data *unit3dTorrent `json:"data"`
		unit3dTorrent
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return types.RawSearchResult{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	t := resp.unit3dTorrent
	if resp.Data != nil {
		t = *resp.Data
	}
	if t.Attributes.Name == "" {
		return types.RawSearchResult{}, fmt.Errorf("%w: torrent %s has no name", ErrParse, id)
	}
	return u.toRaw(t), nil
}

// Authenticate calls api/user, which rejects invalid tokens with 401.
func (u *Unit3D) Authenticate(ctx context.Context) (types.AuthState, error) {
	if err := u.session.Refresh(ctx); err != nil {
		return types.AuthState{}, err
	}
	body, err := u.session.Get(ctx, "api/user", u.params(nil), jsonAccept)
	if err != nil {
		return types.AuthState{}, err
	}
	var user struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(body, &user); err != nil {
		return types.AuthState{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return types.AuthState{LoggedIn: true, Username: user.Username, CheckedAt: time.Now()}, nil
}

func (u *Unit3D) toRaw(t unit3dTorrent) types.RawSearchResult {
	a := t.Attributes
	r := types.RawSearchResult{
		Site:        u.Name(),
		Title:       a.Name,
		DetailRef:   a.DetailsLink,
		DownloadURL: a.DownloadLink,
		SizeText:    strconv.FormatInt(a.Size, 10),
		Seeders:     a.Seeders,
		Leechers:    a.Leechers,
		Grabs:       a.TimesCompleted,
		Category:    a.Category,
		InfoHash:    strings.ToLower(a.InfoHash),
		Free:        strings.TrimSuffix(a.Freeleech, "%") == "100",
	}
	if r.DetailRef == "" {
		r.DetailRef = "torrents/" + t.ID.String()
	}
	if ts, err := time.Parse(time.RFC3339Nano, a.CreatedAt); err == nil {
		r.PublishedAt = ts
	}
	return r
}

type unit3dTorrent struct {
	ID         json.Number `json:"id"`
	Attributes struct {
		Name           string `json:"name"`
		Size           int64  `json:"size"`
		Seeders        int    `json:"seeders"`
		Leechers       int    `json:"leechers"`
		TimesCompleted int    `json:"times_completed"`
		CreatedAt      string `json:"created_at"`
		Category       string `json:"category"`
		Freeleech      string `json:"freeleech"`
		InfoHash       string `json:"info_hash"`
		DownloadLink   string `json:"download_link"`
		DetailsLink    string `json:"details_link"`
	} `json:"attributes"`
}
