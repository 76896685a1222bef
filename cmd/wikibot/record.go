package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jacobdcastro/xiv-wiki-telegram-bot/internal/api/notion"
)

// Names of the target database's properties.
const (
	propName    = "Name"
	propLink    = "Link"
	propAuthors = "Authors"
	propTags    = "Tags"
)

// record is the parsed article metadata awaiting user confirmation. Authors
// and tags are comma-separated, as the model returns them and as the user
// edits them.
type record struct {
	url     string
	title   string
	authors string
	tags    string
}

func (r record) summary(header string) string {
	return fmt.Sprintf("%s\n\nTitle: %s\nAuthors: %s\nTags: %s\n\nIs this correct?",
		header, r.title, r.authors, r.tags)
}

// reconcileOptions splits a comma-separated list of names and maps each entry
// to a multi-select option: an entry matching an existing option
// case-insensitively reuses that option's canonical name, anything else
// becomes a new option with the trimmed entry as its name. Repeated names
// are emitted once.
func reconcileOptions(namesCsv string, existing []notion.SelectOption) []notion.SelectOption {
	var (
		opts []notion.SelectOption
		seen = make(map[string]bool)
	)
	for name := range strings.SplitSeq(namesCsv, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		canonical := name
		for _, opt := range existing {
			if strings.EqualFold(opt.Name, name) {
				canonical = opt.Name
				break
			}
		}
		key := strings.ToLower(canonical)
		if seen[key] {
			continue
		}
		seen[key] = true
		opts = append(opts, notion.SelectOption{Name: canonical})
	}
	return opts
}

// saveRecord reconciles the record's authors and tags against the database's
// existing options and creates a new page. Multi-select properties are left
// out entirely when the record has no values for them.
func (b *bot) saveRecord(ctx context.Context, rec record) error {
	db, err := b.notion.RetrieveDatabase(ctx, b.databaseID)
	if err != nil {
		return fmt.Errorf("retrieving database %s: %w", b.databaseID, err)
	}

	existing := func(prop string) []notion.SelectOption {
		p, ok := db.Properties[prop]
		if !ok || p.MultiSelect == nil {
			return nil
		}
		return p.MultiSelect.Options
	}

	props := map[string]notion.PropertyValue{
		propName: {
			Title: []notion.RichText{{Text: notion.Text{Content: rec.title}}},
		},
		propLink: {URL: rec.url},
	}
	if authors := reconcileOptions(rec.authors, existing(propAuthors)); len(authors) > 0 {
		props[propAuthors] = notion.PropertyValue{MultiSelect: authors}
	}
	if tags := reconcileOptions(rec.tags, existing(propTags)); len(tags) > 0 {
		props[propTags] = notion.PropertyValue{MultiSelect: tags}
	}

	page, err := b.notion.CreatePage(ctx, notion.CreatePageParams{
		Parent:     notion.Parent{DatabaseID: b.databaseID},
		Properties: props,
	})
	if err != nil {
		return fmt.Errorf("creating page: %w", err)
	}
	b.slog.Info("created page", "page_id", page.ID, "title", rec.title)
	return nil
}
