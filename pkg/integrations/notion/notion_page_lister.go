package notionintegration

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/studyhub/connector/pkg/domain"

	"github.com/tidwall/gjson"
)

const (
	DefaultMaxSearchPages = 10

	searchPageSize = 100
)

// PageLister enumerates the pages a token can see through the search API.
type PageLister struct {
	client   *NotionClient
	maxPages int
}

var _ domain.ResourceLister = (*PageLister)(nil)

func NewPageLister(client *NotionClient, maxPages int) *PageLister {
	if maxPages <= 0 {
		maxPages = DefaultMaxSearchPages
	}

	return &PageLister{
		client:   client,
		maxPages: maxPages,
	}
}

// ListPages follows search cursors until the provider reports no more results
// or maxPages requests have been made.
func (l *PageLister) ListPages(ctx context.Context, accessToken domain.SecretToken) ([]domain.ListedResource, error) {
	var resources []domain.ListedResource
	cursor := ""

	for page := 0; page < l.maxPages; page++ {
		reqBody := map[string]interface{}{
			"filter": map[string]interface{}{
				"value":    "page",
				"property": "object",
			},
			"page_size": searchPageSize,
		}

		if cursor != "" {
			reqBody["start_cursor"] = cursor
		}

		respBody, err := l.client.makeRequest(ctx, accessToken, "POST", "/search", reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to search pages: %w", err)
		}

		if !gjson.ValidBytes(respBody) {
			return nil, fmt.Errorf("failed to parse search response")
		}

		gjson.GetBytes(respBody, "results").ForEach(func(_, result gjson.Result) bool {
			resources = append(resources, domain.ListedResource{
				ID:     result.Get("id").String(),
				Object: result.Get("object").String(),
				Name:   PageTitle(result),
				URL:    result.Get("url").String(),
			})
			return true
		})

		if !gjson.GetBytes(respBody, "has_more").Bool() {
			break
		}

		cursor = gjson.GetBytes(respBody, "next_cursor").String()
		if cursor == "" {
			break
		}
	}

	return resources, nil
}

// PageTitle returns the display name of a page object: the "title" property
// when present, otherwise the first title-typed property by name, otherwise
// the Untitled placeholder.
func PageTitle(page gjson.Result) string {
	properties := page.Get("properties")

	if title := plainText(properties.Get("title.title")); title != "" {
		return title
	}

	byName := properties.Map()

	names := make([]string, 0, len(byName))
	for name, property := range byName {
		if property.Get("type").String() == "title" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if title := plainText(byName[name].Get("title")); title != "" {
			return title
		}
	}

	return domain.UntitledResourceName
}

func plainText(richText gjson.Result) string {
	var b strings.Builder

	richText.ForEach(func(_, segment gjson.Result) bool {
		b.WriteString(segment.Get("plain_text").String())
		return true
	})

	return strings.TrimSpace(b.String())
}
