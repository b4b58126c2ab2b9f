// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package site

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pdiddy/ptengine/pkg/types"
)

func init() {
	Register(types.FrameworkNexusPHP, func(p types.SiteProfile, d Deps) (Adapter, error) {
		s, err := NewSession(p, d)
		if err != nil {
			return nil, err
		}
		return &NexusPHP{session: s}, nil
	})
}

// nexusTimeLayout is the layout of the title attribute on listing time cells.
const nexusTimeLayout = "2006-01-02 15:04:05"

var (
	nexusIDRE   = regexp.MustCompile(`[?&]id=(\d+)`)
	nexusSizeRE = regexp.MustCompile(`(?i)(?:size|大小|体积)\s*[:：]?\s*([\d.,]+\s*[KMGTP]?i?B)`)
)

// NexusPHP scrapes the HTML listing of NexusPHP-based sites.
type NexusPHP struct {
	session *Session
}

// Name returns the site name.
func (n *NexusPHP) Name() string { return n.session.Profile().Name }

// Search fetches torrents.php and parses the torrent table.
func (n *NexusPHP) Search(ctx context.Context, q Query) ([]types.RawSearchResult, error) {
	params := url.Values{
		"search":      {q.Keyword},
		"search_area": {"0"},
		"notnewword":  {"1"},
	}
	if q.Category != "" {
		params.Set("cat", q.Category)
	}

	body, err := n.session.Get(ctx, "torrents.php", params, nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if !nexusLoggedIn(doc) {
		return nil, fmt.Errorf("%w: listing page shows logged-out state", ErrAuthExpired)
	}

	results := n.parseListing(doc)
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

// parseListing reads table.torrents. Column positions differ between
// NexusPHP forks, so the header icons decide which cell holds what.
func (n *NexusPHP) parseListing(doc *goquery.Document) []types.RawSearchResult {
	rows := doc.Find("table.torrents > tbody > tr")
	if rows.Length() == 0 {
		rows = doc.Find("table.torrents tr")
	}
	if rows.Length() < 2 {
		return nil
	}

	cols := nexusColumns(rows.First())
	log := n.session.log
	var results []types.RawSearchResult

	rows.Slice(1, rows.Length()).Each(func(i int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() <= cols.leechers {
			return
		}
		link := cells.Find(`a[href*="details.php?id="]`).First()
		href, _ := link.Attr("href")
		if href == "" {
			log.Warn().Int("row", i).Msg("nexusphp row without detail link skipped")
			return
		}
		title, _ := link.Attr("title")
		if title == "" {
			title = strings.TrimSpace(link.Text())
		}

		r := types.RawSearchResult{
			Site:      n.Name(),
			Title:     title,
			DetailRef: href,
			Category:  nexusCategory(cells.Eq(0)),
			SizeText:  strings.TrimSpace(cells.Eq(cols.size).Text()),
			Seeders:   atoiLoose(cells.Eq(cols.seeders).Text()),
			Leechers:  atoiLoose(cells.Eq(cols.leechers).Text()),
		}
		if cols.grabs < cells.Length() {
			r.Grabs = atoiLoose(cells.Eq(cols.grabs).Text())
		}
		r.Subtitle = nexusSubtitle(link)
		r.PublishedAt = nexusTime(cells.Eq(cols.time))
		r.Free = row.Find(`img.pro_free, img.pro_free2up`).Length() > 0
		r.HNR = row.Find(nexusHNRBadges).Length() > 0 || LooksHitAndRun(title, r.Subtitle)
		r.DownloadURL = n.downloadURL(row, href)
		results = append(results, r)
	})
	return results
}

type nexusCols struct {
	time, size, seeders, leechers, grabs int
}

func nexusColumns(header *goquery.Selection) nexusCols {
	cols := nexusCols{time: 3, size: 4, seeders: 5, leechers: 6, grabs: 7}
	header.Children().Each(func(i int, cell *goquery.Selection) {
		class, _ := cell.Find("img").Attr("class")
		switch class {
		case "time":
			cols.time = i
		case "size":
			cols.size = i
		case "seeders":
			cols.seeders = i
		case "leechers":
			cols.leechers = i
		case "snatched":
			cols.grabs = i
		}
	})
	return cols
}

func nexusLoggedIn(doc *goquery.Document) bool {
	return doc.Find(`a[href*="logout.php"], a[href*="userdetails.php?id="]`).Length() > 0
}

func nexusCategory(cell *goquery.Selection) string {
	if href, ok := cell.Find("a").Attr("href"); ok {
		if u, err := url.Parse(href); err == nil {
			if c := u.Query().Get("cat"); c != "" {
				return c
			}
		}
	}
	alt, _ := cell.Find("img").Attr("alt")
	return strings.TrimSpace(alt)
}

// nexusSubtitle returns the text after the title link inside its cell.
func nexusSubtitle(link *goquery.Selection) string {
	cell := link.Closest("td")
	full := strings.TrimSpace(cell.Text())
	linkText := strings.TrimSpace(link.Text())
	return strings.TrimSpace(strings.TrimPrefix(full, linkText))
}

func nexusTime(cell *goquery.Selection) time.Time {
	if ts, ok := cell.Find("span[title]").Attr("title"); ok {
		if t, err := time.ParseInLocation(nexusTimeLayout, ts, time.UTC); err == nil {
			return t
		}
	}
	text := strings.Join(strings.Fields(cell.Text()), " ")
	if t, err := time.ParseInLocation(nexusTimeLayout, text, time.UTC); err == nil {
		return t
	}
	return time.Time{}
}

func (n *NexusPHP) downloadURL(row *goquery.Selection, detailHref string) string {
	if href, ok := row.Find(`a[href*="download.php?id="]`).Attr("href"); ok {
		return n.withPasskey(n.session.Resolve(href))
	}
	m := nexusIDRE.FindStringSubmatch(detailHref)
	if m == nil {
		return ""
	}
	return n.withPasskey(n.session.Resolve("download.php?id=" + m[1]))
}

func (n *NexusPHP) withPasskey(u string) string {
	pk := n.session.Profile().Passkey
	if pk == "" || strings.Contains(u, "passkey=") {
		return u
	}
	return u + "&passkey=" + url.QueryEscape(pk)
}

// FetchDetail parses details.php for the title, subtitle, and size.
func (n *NexusPHP) FetchDetail(ctx context.Context, ref string) (types.RawSearchResult, error) {
	body, err := n.session.Get(ctx, ref, nil, nil)
	if err != nil {
		return types.RawSearchResult{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return types.RawSearchResult{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if !nexusLoggedIn(doc) {
		return types.RawSearchResult{}, fmt.Errorf("%w: detail page shows logged-out state", ErrAuthExpired)
	}

	h1 := doc.Find("h1#top").First()
	h1.Find("b, font, span").Remove()
	title := strings.TrimSpace(h1.Text())
	if title == "" {
		return types.RawSearchResult{}, fmt.Errorf("%w: detail page has no title", ErrParse)
	}

	r := types.RawSearchResult{
		Site:      n.Name(),
		Title:     title,
		DetailRef: ref,
	}
	doc.Find("td.rowhead").Each(func(_ int, head *goquery.Selection) {
		label := strings.TrimSpace(head.Text())
		value := strings.TrimSpace(head.Next().Text())
		switch {
		case strings.Contains(label, "副标题") || strings.EqualFold(label, "Small Description"):
			r.Subtitle = value
		case strings.Contains(label, "基本信息") || strings.EqualFold(label, "Basic Info"):
			if m := nexusSizeRE.FindStringSubmatch(value); m != nil {
				r.SizeText = m[1]
			}
		}
	})
	if r.SizeText == "" {
		if m := nexusSizeRE.FindStringSubmatch(doc.Text()); m != nil {
			r.SizeText = m[1]
		}
	}
	r.Free = doc.Find(`img.pro_free, img.pro_free2up`).Length() > 0
	r.HNR = doc.Find(nexusHNRBadges).Length() > 0 || LooksHitAndRun(title, r.Subtitle)
	r.DownloadURL = n.downloadURL(doc.Selection, ref)
	return r, nil
}

// Authenticate refreshes session material and checks index.php for a
// logged-in user link.
func (n *NexusPHP) Authenticate(ctx context.Context) (types.AuthState, error) {
	if err := n.session.Refresh(ctx); err != nil {
		return types.AuthState{}, err
	}
	body, err := n.session.Get(ctx, "index.php", nil, nil)
	if err != nil {
		return types.AuthState{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return types.AuthState{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	state := types.AuthState{CheckedAt: time.Now()}
	user := doc.Find(`a[href*="userdetails.php?id="]`).First()
	if user.Length() == 0 {
		return state, fmt.Errorf("%w: no user link on index page", ErrAuthExpired)
	}
	state.LoggedIn = true
	state.Username = strings.TrimSpace(user.Text())
	return state, nil
}

// atoiLoose parses counts that may carry thousands separators or markup
// leftovers; anything unparseable counts as zero.
func atoiLoose(s string) int {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
