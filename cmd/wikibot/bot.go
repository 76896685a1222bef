package main

import (
	"context"
	"strings"
	"time"

	"github.com/jacobdcastro/xiv-wiki-telegram-bot/internal/api/telegram"
)

// Replies sent by the bot.
const (
	msgNotAuthorized = "You are not authorized to use this bot."
	msgInvalidURL    = "Please send a valid URL."
	msgReceived      = "Message received."
	msgFetching      = "Getting web content..."
	msgParsing       = "Parsing metadata..."
	msgProcessFailed = "Failed to process the article."
	msgSubmitting    = "Submitting to Notion..."
	msgSaved         = "Saved successfully!"
	msgSaveFailed    = "Failed to save the article to Notion."
	msgNoSession     = "Issue reading state."
	msgPickField     = "Which part would you like to edit?"
	msgNewTitle      = "Please provide the new title."
	msgNewAuthors    = "Please provide the new authors, separated by commas."
	msgNewTags       = "Please provide the new tags, separated by commas."
	msgPickFieldHint = "Please choose a field to edit using the buttons above."
	msgUsage         = "Send me an article URL and I'll file it into Notion."
)

// Per-stage deadlines for external calls.
const (
	fetchTimeout = 30 * time.Second
	modelTimeout = 60 * time.Second
	writeTimeout = 30 * time.Second
)

func (b *bot) handleUpdate(ctx context.Context, u telegram.Update) {
	switch {
	case u.Message != nil:
		b.handleMessage(ctx, u.Message)
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	}
}

func (b *bot) reply(ctx context.Context, chatID int64, text string, keyboard telegram.InlineKeyboard) {
	if err := b.tg.SendMessage(ctx, chatID, text, keyboard); err != nil {
		b.slog.Error("sending message failed", "chat_id", chatID, "error", err)
	}
}

func confirmKeyboard(username string) telegram.InlineKeyboard {
	return telegram.InlineKeyboard{{
		{Text: "Yes", CallbackData: "confirm_yes|" + username},
		{Text: "No", CallbackData: "confirm_no|" + username},
	}}
}

func editKeyboard(username string) telegram.InlineKeyboard {
	return telegram.InlineKeyboard{{
		{Text: "Title", CallbackData: "edit_title|" + username},
		{Text: "Authors", CallbackData: "edit_authors|" + username},
		{Text: "Tags", CallbackData: "edit_tags|" + username},
	}}
}

func (b *bot) handleMessage(ctx context.Context, m *telegram.Message) {
	if m.Chat == nil || m.From == nil {
		return
	}
	chatID := m.Chat.ID
	username := m.From.Username

	if username != b.authorizedUser {
		b.slog.Warn("rejected message from unauthorized user", "username", username)
		b.reply(ctx, chatID, msgNotAuthorized, nil)
		return
	}

	if sess, ok := b.sessions.get(username); ok {
		switch sess.state {
		case stateAwaitingEditValue:
			b.applyEdit(ctx, chatID, username, sess, m.Text)
			return
		case stateAwaitingEditField:
			b.reply(ctx, chatID, msgPickFieldHint, nil)
			return
		}
	}

	switch m.Text {
	case "/start", "/help":
		b.reply(ctx, chatID, msgUsage, nil)
		return
	}

	if !strings.HasPrefix(m.Text, "http") {
		b.reply(ctx, chatID, msgInvalidURL, nil)
		return
	}

	b.submitURL(ctx, chatID, username, m.Text)
}

// submitURL runs the fetch and extract stages for a new URL and presents the
// parsed record for confirmation. Any stage failure drops the session so the
// user starts over from a clean slate.
func (b *bot) submitURL(ctx context.Context, chatID int64, username, url string) {
	b.reply(ctx, chatID, msgReceived, nil)
	b.reply(ctx, chatID, msgFetching, nil)

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	content, err := b.fetchArticle(fetchCtx, url)
	cancel()
	if err != nil {
		b.slog.Error("fetching article failed", "url", url, "error", err)
		b.sessions.clear(username)
		b.reply(ctx, chatID, msgProcessFailed, nil)
		return
	}

	b.reply(ctx, chatID, msgParsing, nil)

	modelCtx, cancel := context.WithTimeout(ctx, modelTimeout)
	md, err := extractMetadata(modelCtx, b.llm, content)
	cancel()
	if err != nil {
		b.slog.Error("extracting metadata failed", "url", url, "error", err)
		b.sessions.clear(username)
		b.reply(ctx, chatID, msgProcessFailed, nil)
		return
	}

	rec := record{url: url, title: md.title, authors: md.authors, tags: md.tags}
	b.sessions.set(username, session{state: stateAwaitingConfirmation, rec: rec})
	b.slog.Info("parsed article", "url", url, "title", rec.title)
	b.reply(ctx, chatID, rec.summary("Parsed Metadata:"), confirmKeyboard(username))
}

func (b *bot) applyEdit(ctx context.Context, chatID int64, username string, sess session, value string) {
	switch sess.editField {
	case "title":
		sess.rec.title = value
	case "authors":
		sess.rec.authors = value
	case "tags":
		sess.rec.tags = value
	}
	sess.state = stateAwaitingConfirmation
	sess.editField = ""
	b.sessions.set(username, sess)
	b.reply(ctx, chatID, sess.rec.summary("Updated Metadata:"), confirmKeyboard(username))
}

func (b *bot) handleCallback(ctx context.Context, q *telegram.CallbackQuery) {
	if err := b.tg.AnswerCallbackQuery(ctx, q.ID); err != nil {
		b.slog.Warn("answering callback query failed", "error", err)
	}
	if q.From == nil || q.Message == nil || q.Message.Chat == nil {
		return
	}
	chatID := q.Message.Chat.ID

	if q.From.Username != b.authorizedUser {
		b.slog.Warn("rejected callback from unauthorized user", "username", q.From.Username)
		b.reply(ctx, chatID, msgNotAuthorized, nil)
		return
	}

	action, username, ok := strings.Cut(q.Data, "|")
	if !ok {
		b.slog.Warn("malformed callback data", "data", q.Data)
		return
	}

	sess, ok := b.sessions.get(username)
	if !ok || sess.state == stateIdle {
		b.reply(ctx, chatID, msgNoSession, nil)
		return
	}

	switch action {
	case "confirm_yes":
		b.submitRecord(ctx, chatID, username, sess)
	case "confirm_no":
		sess.state = stateAwaitingEditField
		sess.editField = ""
		b.sessions.set(username, sess)
		b.reply(ctx, chatID, msgPickField, editKeyboard(username))
	case "edit_title":
		b.promptEdit(ctx, chatID, username, sess, "title", msgNewTitle)
	case "edit_authors":
		b.promptEdit(ctx, chatID, username, sess, "authors", msgNewAuthors)
	case "edit_tags":
		b.promptEdit(ctx, chatID, username, sess, "tags", msgNewTags)
	default:
		b.slog.Warn("unknown callback action", "action", action)
	}
}

// submitRecord writes the session's record to Notion. The session survives a
// failed write, so the user can retry Yes or go back to editing.
func (b *bot) submitRecord(ctx context.Context, chatID int64, username string, sess session) {
	b.reply(ctx, chatID, msgSubmitting, nil)

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	err := b.saveRecord(writeCtx, sess.rec)
	cancel()
	if err != nil {
		b.slog.Error("saving record failed", "url", sess.rec.url, "error", err)
		b.reply(ctx, chatID, msgSaveFailed, nil)
		return
	}

	b.sessions.clear(username)
	b.reply(ctx, chatID, msgSaved, nil)
}

func (b *bot) promptEdit(ctx context.Context, chatID int64, username string, sess session, field, prompt string) {
	sess.state = stateAwaitingEditValue
	sess.editField = field
	b.sessions.set(username, sess)
	b.reply(ctx, chatID, prompt, nil)
}
