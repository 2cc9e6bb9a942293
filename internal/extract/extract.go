// Package extract turns a fetched listing page into postings using the
// selector rules of a crawler.SiteConfig.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/jobwatch/internal/crawler"
	"github.com/JakeFAU/jobwatch/internal/textnorm"
)

// Extract parses body and returns the postings that pass the site's year and
// keyword filters. finalURL is the post-redirect URL used to resolve
// relative links. Items missing a title or link node are skipped silently.
func Extract(body []byte, finalURL string, site crawler.SiteConfig) ([]crawler.Posting, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	base, err := url.Parse(finalURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", finalURL, err)
	}
	keywords := crawler.CleanTerms(site.TitleKeywordsAll)

	var postings []crawler.Posting
	doc.Find(site.ItemSelector).Each(func(_ int, item *goquery.Selection) {
		posting, ok := extractItem(item, base, site)
		if !ok {
			return
		}
		if site.YearFilter != 0 && !postedInYear(posting.PostedAt, site.YearFilter) {
			return
		}
		if !titleHasAll(posting.Title, keywords) {
			return
		}
		postings = append(postings, posting)
	})
	return postings, nil
}

func extractItem(item *goquery.Selection, base *url.URL, site crawler.SiteConfig) (crawler.Posting, bool) {
	titleNode := item.Find(site.TitleSelector).First()
	linkNode := item.Find(site.LinkSelector).First()
	if titleNode.Length() == 0 || linkNode.Length() == 0 {
		return crawler.Posting{}, false
	}
	link, ok := resolveLink(base, linkNode)
	if !ok {
		return crawler.Posting{}, false
	}
	return crawler.Posting{
		Site:     site.Name,
		Title:    textnorm.Normalize(strings.TrimSpace(titleNode.Text())),
		URL:      link,
		PostedAt: postedAt(item, site),
	}, true
}

func resolveLink(base *url.URL, node *goquery.Selection) (string, bool) {
	href, _ := node.Attr("href")
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	if !resolved.IsAbs() || resolved.Host == "" {
		return "", false
	}
	return resolved.String(), true
}

func postedAt(item *goquery.Selection, site crawler.SiteConfig) string {
	if site.DateSelector == "" {
		return ""
	}
	node := item.Find(site.DateSelector).First()
	if node.Length() == 0 {
		return ""
	}
	if site.DateAttr != "" {
		if v, ok := node.Attr(site.DateAttr); ok && strings.TrimSpace(v) != "" {
			return textnorm.Normalize(v)
		}
	}
	return textnorm.Normalize(strings.TrimSpace(node.Text()))
}

func postedInYear(postedAt string, year int) bool {
	if postedAt == "" {
		return false
	}
	ts, err := ParseISO(postedAt)
	if err != nil {
		return false
	}
	return ts.Year() == year
}

func titleHasAll(title string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(title)
	for _, kw := range keywords {
		if !strings.Contains(lower, kw) {
			return false
		}
	}
	return true
}
