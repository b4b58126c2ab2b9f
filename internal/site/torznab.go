// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package site

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pdiddy/ptengine/pkg/types"
)

func init() {
	Register(types.FrameworkTorznab, func(p types.SiteProfile, d Deps) (Adapter, error) {
		s, err := NewSession(p, d)
		if err != nil {
			return nil, err
		}
		return &Torznab{session: s, seen: make(map[string]types.RawSearchResult)}, nil
	})
}

// maxRemembered bounds the listings kept for FetchDetail.
const maxRemembered = 1000

// Torznab reads Torznab/RSS feeds, the format custom indexers and indexer
// proxies expose. The protocol has no detail endpoint, so FetchDetail
// serves listings remembered from earlier searches.
type Torznab struct {
	session *Session

	mu   sync.Mutex
	seen map[string]types.RawSearchResult
}

// Name returns the site name.
func (t *Torznab) Name() string { return t.session.Profile().Name }

// Search calls api?t=search.
func (t *Torznab) Search(ctx context.Context, q Query) ([]types.RawSearchResult, error) {
	params := url.Values{
		"t":      {"search"},
		"q":      {q.Keyword},
		"apikey": {t.session.APIKey()},
	}
	if q.Category != "" {
		params.Set("cat", q.Category)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	body, err := t.session.Get(ctx, "api", params, nil)
	if err != nil {
		return nil, err
	}
	if err := torznabError(body); err != nil {
		return nil, err
	}

	var feed torznabFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	results := make([]types.RawSearchResult, 0, len(feed.Channel.Items))
	for _, it := range feed.Channel.Items {
		if it.Title == "" {
			continue
		}
		results = append(results, t.toRaw(it))
	}
	t.remember(results)
	return results, nil
}

// FetchDetail returns the listing remembered under ref.
func (t *Torznab) FetchDetail(_ context.Context, ref string) (types.RawSearchResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.seen[ref]
	if !ok {
		return types.RawSearchResult{}, fmt.Errorf("%w: torznab detail for %q", ErrUnsupported, ref)
	}
	return r, nil
}

// Authenticate calls api?t=caps, which indexers reject for bad API keys.
func (t *Torznab) Authenticate(ctx context.Context) (types.AuthState, error) {
	if err := t.session.Refresh(ctx); err != nil {
		return types.AuthState{}, err
	}
	params := url.Values{"t": {"caps"}, "apikey": {t.session.APIKey()}}
	body, err := t.session.Get(ctx, "api", params, nil)
	if err != nil {
		return types.AuthState{}, err
	}
	if err := torznabError(body); err != nil {
		return types.AuthState{}, err
	}
	return types.AuthState{LoggedIn: true, CheckedAt: time.Now()}, nil
}

func (t *Torznab) remember(results []types.RawSearchResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.seen)+len(results) > maxRemembered {
		t.seen = make(map[string]types.RawSearchResult)
	}
	for _, r := range results {
		t.seen[r.DetailRef] = r
	}
}

func (t *Torznab) toRaw(it torznabItem) types.RawSearchResult {
	r := types.RawSearchResult{
		Site:        t.Name(),
		Title:       strings.TrimSpace(it.Title),
		DetailRef:   it.GUID,
		DownloadURL: it.Link,
		Category:    it.Category,
	}
	if r.DetailRef == "" {
		r.DetailRef = it.Comments
	}
	if r.DownloadURL == "" {
		r.DownloadURL = it.Enclosure.URL
	}
	size := it.Size
	if size == 0 {
		size = it.Enclosure.Length
	}
	var peers int
	for _, a := range it.Attrs {
		switch a.Name {
		case "seeders":
			r.Seeders, _ = strconv.Atoi(a.Value)
		case "peers":
			peers, _ = strconv.Atoi(a.Value)
		case "leechers":
			r.Leechers, _ = strconv.Atoi(a.Value)
		case "grabs":
			r.Grabs, _ = strconv.Atoi(a.Value)
		case "size":
			if size == 0 {
				size, _ = strconv.ParseInt(a.Value, 10, 64)
			}
		case "infohash":
			r.InfoHash = strings.ToLower(a.Value)
		case "downloadvolumefactor":
			r.Free = a.Value == "0"
		case "category":
			if r.Category == "" {
				r.Category = a.Value
			}
		}
	}
	// Torznab peers counts seeders and leechers together.
	if r.Leechers == 0 && peers > r.Seeders {
		r.Leechers = peers - r.Seeders
	}
	r.SizeText = strconv.FormatInt(size, 10)
	if ts, err := time.Parse(time.RFC1123Z, it.PubDate); err == nil {
		r.PublishedAt = ts.UTC()
	} else if ts, err := time.Parse(time.RFC1123, it.PubDate); err == nil {
		r.PublishedAt = ts.UTC()
	}
	return r
}

// torznabError maps an <error code=".." description=".."/> document to an
// error. Codes 100-199 are account and credential problems.
func torznabError(body []byte) error {
	var e struct {
		XMLName     xml.Name `xml:"error"`
		Code        int      `xml:"code,attr"`
		Description string   `xml:"description,attr"`
	}
	if err := xml.Unmarshal(body, &e); err != nil {
		return nil
	}
	if e.Code >= 100 && e.Code < 200 {
		return fmt.Errorf("%w: torznab error %d: %s", ErrAuthExpired, e.Code, e.Description)
	}
	if e.Code >= 900 {
		return fmt.Errorf("%w: torznab error %d: %s", ErrSiteUnavailable, e.Code, e.Description)
	}
	return fmt.Errorf("%w: torznab error %d: %s", ErrParse, e.Code, e.Description)
}

type torznabFeed struct {
	Channel struct {
		Items []torznabItem `xml:"item"`
	} `xml:"channel"`
}

type torznabItem struct {
	Title     string `xml:"title"`
	GUID      string `xml:"guid"`
	Link      string `xml:"link"`
	Comments  string `xml:"comments"`
	PubDate   string `xml:"pubDate"`
	Size      int64  `xml:"size"`
	Category  string `xml:"category"`
	Enclosure struct {
		URL    string `xml:"url,attr"`
		Length int64  `xml:"length,attr"`
	} `xml:"enclosure"`
	Attrs []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:"value,attr"`
	} `xml:"attr"`
}
