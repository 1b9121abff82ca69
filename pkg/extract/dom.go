package extract

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"xqcrawler/pkg/models"
)

// DOMItem is one search result scraped from the rendered page.
type DOMItem struct {
	ID            string
	Text          string
	CreatedAtText string
	StatusHref    string
	UserID        string
	UserName      string
	Avatar        string
}

var digits = regexp.MustCompile(`\d+`)

// statusIDFromLink takes the last run of digits in a status link. Links
// look like /{uid}/{status_id}, so the first run is the author.
func statusIDFromLink(href string) string {
	runs := digits.FindAllString(href, -1)
	if len(runs) == 0 {
		return ""
	}
	return runs[len(runs)-1]
}

// ParseSearchHTML extracts result items from a rendered search page. Items
// with neither an id nor text are dropped.
func ParseSearchHTML(page string) ([]DOMItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, err
	}

	var items []DOMItem
	doc.Find("article.timeline_item").Each(func(_ int, s *goquery.Selection) {
		author := s.Find(".user-name").First()
		authorHref, _ := author.Attr("href")
		avatar, _ := s.Find(".avatar img, img.avatar").First().Attr("src")

		detail := s.Find(".date-and-source").First()
		href, _ := detail.Attr("href")
		id, _ := detail.Attr("data-id")
		if id == "" {
			id = statusIDFromLink(href)
		}

		body := s.Find(".timeline_item_bd").First()
		if body.Length() == 0 {
			body = s.Find(".timeline_item_ft").First()
		}

		item := DOMItem{
			ID:            id,
			Text:          strings.TrimSpace(body.Text()),
			CreatedAtText: strings.TrimSpace(detail.Text()),
			StatusHref:    absoluteLink(href),
			UserID:        digits.FindString(authorHref),
			UserName:      strings.TrimSpace(author.Text()),
			Avatar:        avatar,
		}
		if item.ID != "" || item.Text != "" {
			items = append(items, item)
		}
	})
	return items, nil
}

func absoluteLink(href string) string {
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "http"):
		return href
	default:
		return BaseURL + href
	}
}

// SynthesizeID derives a stable key for an item the page rendered without
// one. It changes whenever the link, the text or the keyword changes.
func SynthesizeID(link, text, keyword string) string {
	sum := md5.Sum([]byte(link + "|" + text + "|" + keyword))
	return hex.EncodeToString(sum[:])
}

// DOMPost shapes a scraped item like an API status so Post can map it.
func DOMPost(item DOMItem, keyword string) map[string]any {
	id := item.ID
	kind := models.IDKindNative
	if id == "" {
		id = SynthesizeID(item.StatusHref, item.Text, keyword)
		kind = models.IDKindDerived
	}
	return map[string]any{
		"id":         id,
		"id_kind":    string(kind),
		"type":       "timeline",
		"title":      "",
		"text":       item.Text,
		"topic_desc": keyword,
		"source":     "dom_search",
		"created_at": item.CreatedAtText,
		"status_url": item.StatusHref,
		"user": map[string]any{
			"id":                item.UserID,
			"screen_name":       item.UserName,
			"profile_image_url": item.Avatar,
		},
		"like_count":    0,
		"reply_count":   0,
		"retweet_count": 0,
	}
}
