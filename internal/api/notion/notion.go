// Package notion provides a client for the small part of the Notion API that
// this bot needs: reading a database's schema and creating pages in it.
//
// See https://developers.notion.com/reference.
package notion

import (
	"context"
	"net/http"
	"strings"

	"github.com/jacobdcastro/xiv-wiki-telegram-bot/internal/request"
)

// APIEndpoint is the base URL of the Notion API.
const APIEndpoint = "https://api.notion.com"

// apiVersion is sent in the Notion-Version header with every request.
const apiVersion = "2022-06-28"

// Client represents a Notion API client.
type Client struct {
	// Token is the integration token used for authentication.
	Token string
	// HTTPClient is an optional custom HTTP client object to use for
	// requests.
	HTTPClient *http.Client
	// Scrubber is an optional strings.Replacer that scrubs unwanted data
	// (like the token) from error messages.
	Scrubber *strings.Replacer
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		"Authorization":  "Bearer " + c.Token,
		"Notion-Version": apiVersion,
	}
}

// SelectOption is a single option of a select or multi-select property.
type SelectOption struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// MultiSelectConfig holds the configured options of a multi-select property.
type MultiSelectConfig struct {
	Options []SelectOption `json:"options"`
}

// Property describes one property of a database schema.
type Property struct {
	ID          string             `json:"id"`
	Type        string             `json:"type"`
	MultiSelect *MultiSelectConfig `json:"multi_select,omitempty"`
}

// Database represents a database's schema.
type Database struct {
	ID         string              `json:"id"`
	Properties map[string]Property `json:"properties"`
}

// RetrieveDatabase fetches the schema of the database with the given ID.
func (c *Client) RetrieveDatabase(ctx context.Context, databaseID string) (*Database, error) {
	return request.Make[*Database](ctx, request.Params{
		Method:     http.MethodGet,
		URL:        APIEndpoint + "/v1/databases/" + databaseID,
		Headers:    c.headers(),
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
}

// Text holds the plain content of a rich text object.
type Text struct {
	Content string `json:"content"`
}

// RichText is a minimal rich text object: plain text, no annotations.
type RichText struct {
	Text Text `json:"text"`
}

// PropertyValue is the value of one page property. Exactly one field should
// be set, matching the property's type in the database schema.
type PropertyValue struct {
	Title       []RichText     `json:"title,omitempty"`
	URL         string         `json:"url,omitempty"`
	MultiSelect []SelectOption `json:"multi_select,omitempty"`
}

// Parent identifies the database a page is created in.
type Parent struct {
	DatabaseID string `json:"database_id"`
}

// CreatePageParams are the parameters of CreatePage.
type CreatePageParams struct {
	Parent     Parent                   `json:"parent"`
	Properties map[string]PropertyValue `json:"properties"`
}

// Page represents a created page.
type Page struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// CreatePage creates a new page in a database.
func (c *Client) CreatePage(ctx context.Context, params CreatePageParams) (*Page, error) {
	return request.Make[*Page](ctx, request.Params{
		Method:     http.MethodPost,
		URL:        APIEndpoint + "/v1/pages",
		Headers:    c.headers(),
		Body:       params,
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
}
