package website

import (
	"bytes"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// scope decides which discovered URLs belong to a crawl.
type scope struct {
	host   string
	prefix string
}

// Canonicalize strips the query and fragment from a URL and lowercases
// scheme and host. Only absolute http(s) URLs are accepted.
func Canonicalize(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return canonical(u)
}

func canonical(u *url.URL) (string, bool) {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" || u.Host == "" {
		return "", false
	}
	c := url.URL{
		Scheme: scheme,
		Host:   strings.ToLower(u.Host),
		Path:   u.Path,
	}
	if c.Path == "" {
		c.Path = "/"
	}
	return c.String(), true
}

// allows reports whether a canonical URL is inside the crawl scope.
func (s scope) allows(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Host == s.host && strings.HasPrefix(u.Path, s.prefix) && !isAsset(u.Path)
}

// assetExts are links that never lead to documentation pages.
var assetExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".ico": true, ".webp": true,
	".css": true, ".js": true, ".map": true, ".woff": true, ".woff2": true, ".ttf": true,
	".zip": true, ".gz": true, ".tgz": true, ".tar": true, ".pdf": true, ".exe": true, ".dmg": true,
	".mp4": true, ".mp3": true, ".webm": true, ".xml": true, ".rss": true,
}

func isAsset(p string) bool {
	return assetExts[strings.ToLower(path.Ext(p))]
}

// page is the parsed part of an HTML page the crawler needs.
type page struct {
	title string
	links []string
}

// parsePage extracts the title and the in-scope links of an HTML page.
// Links are returned canonical, deduplicated, in document order.
func parsePage(body []byte, base *url.URL, s scope) page {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return page{}
	}

	// A <base href> changes how relative links resolve.
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(href); err == nil {
			base = b
		}
	}

	p := page{title: strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")}
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		if rel, _ := a.Attr("rel"); strings.Contains(rel, "nofollow") {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		link, ok := canonical(resolved)
		if !ok || seen[link] || !s.allows(link) {
			return
		}
		seen[link] = true
		p.links = append(p.links, link)
	})
	return p
}
