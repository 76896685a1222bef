/*
Wikibot is a Telegram bot that files articles into a Notion database.

Send it a URL and it fetches the page, asks a language model to extract the
title, authors and tags, and shows you the result with Yes/No buttons. Yes
creates a page in the configured Notion database; No lets you edit any of
the three fields before saving. Only the single user named in AUTHORIZED_USER
may talk to the bot.

# Configuration

Wikibot is configured entirely through environment variables, optionally
loaded from a .env file in the working directory:

  - TELEGRAM_API_TOKEN: Telegram Bot API token. Required.
  - OPENAI_API_KEY: OpenAI API key. Required.
  - OPENAI_MODEL: chat model used for extraction. Defaults to gpt-4o-mini.
  - OPENAI_BASE_URL: override the OpenAI API base URL, for compatible
    providers.
  - NOTION_API_TOKEN: Notion integration token. Required.
  - NOTION_DATABASE_ID: ID of the target database. Required. The database
    must have a "Name" title property, a "Link" URL property, and "Authors"
    and "Tags" multi-select properties.
  - AUTHORIZED_USER: Telegram username allowed to use the bot. Required.
*/
package main

import (
	_ "embed"

	"github.com/jacobdcastro/xiv-wiki-telegram-bot/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
