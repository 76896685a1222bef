package main

import (
	"context"
	"testing"

	"github.com/jacobdcastro/xiv-wiki-telegram-bot/internal/testutil"
)

func TestRejectsUnauthorizedUser(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	e.bot.handleUpdate(context.Background(), textUpdate("mallory", "https://example.com/article"))

	testutil.AssertEqual(t, e.sentTexts(), []string{msgNotAuthorized})
	testutil.AssertEqual(t, e.fetchCalls, 0)
	testutil.AssertEqual(t, e.modelCalls, 0)
	testutil.AssertEqual(t, len(e.createdPages), 0)
	if _, ok := e.bot.sessions.get("mallory"); ok {
		t.Fatal("no session should be created for an unauthorized user")
	}
}

func TestRejectsUnauthorizedCallback(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	e.bot.handleUpdate(context.Background(), callbackUpdate("mallory", "confirm_yes|"+testUser))

	testutil.AssertEqual(t, e.sentTexts(), []string{msgNotAuthorized})
	testutil.AssertEqual(t, len(e.createdPages), 0)
}

func TestRejectsNonURLText(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	e.bot.handleUpdate(context.Background(), textUpdate(testUser, "hello there"))

	testutil.AssertEqual(t, e.sentTexts(), []string{msgInvalidURL})
	if _, ok := e.bot.sessions.get(testUser); ok {
		t.Fatal("no session should be created for invalid input")
	}
}

func TestHelpCommand(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	e.bot.handleUpdate(context.Background(), textUpdate(testUser, "/start"))
	testutil.AssertEqual(t, e.sentTexts(), []string{msgUsage})
}

func TestSubmitURLPresentsParsedRecord(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	e.bot.handleUpdate(context.Background(), textUpdate(testUser, "https://example.com/article"))

	texts := e.sentTexts()
	testutil.AssertEqual(t, texts[:3], []string{msgReceived, msgFetching, msgParsing})

	last := e.lastSent(t)
	assertContains(t, last.Text, "Parsed Metadata:")
	assertContains(t, last.Text, "Title: The Go Memory Model")
	assertContains(t, last.Text, "Authors: Rob Pike, Russ Cox")
	assertContains(t, last.Text, "Tags: go, concurrency")
	assertContains(t, last.Text, "Is this correct?")

	kb := last.ReplyMarkup.InlineKeyboard
	testutil.AssertEqual(t, kb[0][0].CallbackData, "confirm_yes|"+testUser)
	testutil.AssertEqual(t, kb[0][1].CallbackData, "confirm_no|"+testUser)

	sess, ok := e.bot.sessions.get(testUser)
	if !ok {
		t.Fatal("session should exist after submission")
	}
	testutil.AssertEqual(t, sess.state, stateAwaitingConfirmation)
	testutil.AssertEqual(t, sess.rec.url, "https://example.com/article")
	testutil.AssertEqual(t, sess.rec.title, "The Go Memory Model")
}

func TestFetchFailureLeavesNoSession(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	e.fetchFail = true
	e.bot.handleUpdate(context.Background(), textUpdate(testUser, "https://example.com/article"))

	testutil.AssertEqual(t, e.lastSent(t).Text, msgProcessFailed)
	testutil.AssertEqual(t, e.modelCalls, 0)
	if _, ok := e.bot.sessions.get(testUser); ok {
		t.Fatal("session should not survive a fetch failure")
	}
}

func TestMalformedModelOutputLeavesNoSession(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	e.llmContent = `{"title": "No Authors Key", "tags": ""}`
	e.bot.handleUpdate(context.Background(), textUpdate(testUser, "https://example.com/article"))

	testutil.AssertEqual(t, e.lastSent(t).Text, msgProcessFailed)
	if _, ok := e.bot.sessions.get(testUser); ok {
		t.Fatal("session should not survive an extraction failure")
	}
}

func TestConfirmYesCreatesPageAndClearsSession(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	ctx := context.Background()
	e.bot.handleUpdate(ctx, textUpdate(testUser, "https://example.com/article"))
	e.resetSent()

	e.bot.handleUpdate(ctx, callbackUpdate(testUser, "confirm_yes|"+testUser))

	testutil.AssertEqual(t, e.sentTexts(), []string{msgSubmitting, msgSaved})
	testutil.AssertEqual(t, len(e.createdPages), 1)

	page := testutil.UnmarshalJSON[createdPage](t, e.createdPages[0])
	testutil.AssertEqual(t, page.Parent.DatabaseID, "db1")
	assertContains(t, string(page.Properties[propName]), "The Go Memory Model")
	assertContains(t, string(page.Properties[propLink]), "https://example.com/article")
	// "go" matches the existing option and reuses its canonical casing.
	assertContains(t, string(page.Properties[propTags]), `"Go"`)

	if _, ok := e.bot.sessions.get(testUser); ok {
		t.Fatal("session should be cleared after a successful save")
	}

	// A second Yes has nothing to work with anymore.
	e.resetSent()
	e.bot.handleUpdate(ctx, callbackUpdate(testUser, "confirm_yes|"+testUser))
	testutil.AssertEqual(t, e.sentTexts(), []string{msgNoSession})
	testutil.AssertEqual(t, len(e.createdPages), 1)
}

func TestFailedSaveKeepsSessionForRetry(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	ctx := context.Background()
	e.bot.handleUpdate(ctx, textUpdate(testUser, "https://example.com/article"))
	before, _ := e.bot.sessions.get(testUser)

	e.notionFail = true
	e.resetSent()
	e.bot.handleUpdate(ctx, callbackUpdate(testUser, "confirm_yes|"+testUser))
	testutil.AssertEqual(t, e.sentTexts(), []string{msgSubmitting, msgSaveFailed})

	after, ok := e.bot.sessions.get(testUser)
	if !ok {
		t.Fatal("session should survive a failed save")
	}
	testutil.AssertEqual(t, after.state, stateAwaitingConfirmation)
	if after.rec != before.rec {
		t.Fatalf("record changed across a failed save: got %+v, want %+v", after.rec, before.rec)
	}

	// Retrying Yes after the outage saves the same record.
	e.notionFail = false
	e.resetSent()
	e.bot.handleUpdate(ctx, callbackUpdate(testUser, "confirm_yes|"+testUser))
	testutil.AssertEqual(t, e.sentTexts(), []string{msgSubmitting, msgSaved})
	testutil.AssertEqual(t, len(e.createdPages), 1)
}

func TestEditCycle(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	ctx := context.Background()
	e.bot.handleUpdate(ctx, textUpdate(testUser, "https://example.com/article"))

	e.resetSent()
	e.bot.handleUpdate(ctx, callbackUpdate(testUser, "confirm_no|"+testUser))
	last := e.lastSent(t)
	testutil.AssertEqual(t, last.Text, msgPickField)
	kb := last.ReplyMarkup.InlineKeyboard
	testutil.AssertEqual(t, kb[0][0].CallbackData, "edit_title|"+testUser)
	testutil.AssertEqual(t, kb[0][1].CallbackData, "edit_authors|"+testUser)
	testutil.AssertEqual(t, kb[0][2].CallbackData, "edit_tags|"+testUser)

	e.resetSent()
	e.bot.handleUpdate(ctx, callbackUpdate(testUser, "edit_title|"+testUser))
	testutil.AssertEqual(t, e.sentTexts(), []string{msgNewTitle})
	sess, _ := e.bot.sessions.get(testUser)
	testutil.AssertEqual(t, sess.state, stateAwaitingEditValue)
	testutil.AssertEqual(t, sess.editField, "title")

	e.resetSent()
	e.bot.handleUpdate(ctx, textUpdate(testUser, "A Better Title"))
	last = e.lastSent(t)
	assertContains(t, last.Text, "Updated Metadata:")
	assertContains(t, last.Text, "Title: A Better Title")
	assertContains(t, last.Text, "Authors: Rob Pike, Russ Cox")
	assertContains(t, last.Text, "Tags: go, concurrency")

	sess, _ = e.bot.sessions.get(testUser)
	testutil.AssertEqual(t, sess.state, stateAwaitingConfirmation)
	testutil.AssertEqual(t, sess.editField, "")
	testutil.AssertEqual(t, sess.rec.title, "A Better Title")
	testutil.AssertEqual(t, sess.rec.authors, "Rob Pike, Russ Cox")
	testutil.AssertEqual(t, sess.rec.tags, "go, concurrency")
}

func TestStrayTextWhileChoosingField(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	ctx := context.Background()
	e.bot.handleUpdate(ctx, textUpdate(testUser, "https://example.com/article"))
	e.bot.handleUpdate(ctx, callbackUpdate(testUser, "confirm_no|"+testUser))

	e.resetSent()
	e.bot.handleUpdate(ctx, textUpdate(testUser, "https://example.com/article"))
	testutil.AssertEqual(t, e.sentTexts(), []string{msgPickFieldHint})

	sess, _ := e.bot.sessions.get(testUser)
	testutil.AssertEqual(t, sess.state, stateAwaitingEditField)
}

func TestCallbackWithoutSession(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	for _, data := range []string{
		"confirm_yes|" + testUser,
		"confirm_no|" + testUser,
		"edit_title|" + testUser,
	} {
		e.resetSent()
		e.bot.handleUpdate(context.Background(), callbackUpdate(testUser, data))
		testutil.AssertEqual(t, e.sentTexts(), []string{msgNoSession})
	}
	testutil.AssertEqual(t, len(e.createdPages), 0)
}

func TestEmptyAuthorsAndTagsAreOmitted(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	e.llmContent = `{"title": "Lonely Page", "authors": "", "tags": ""}`
	ctx := context.Background()
	e.bot.handleUpdate(ctx, textUpdate(testUser, "https://example.com/article"))
	e.bot.handleUpdate(ctx, callbackUpdate(testUser, "confirm_yes|"+testUser))

	testutil.AssertEqual(t, len(e.createdPages), 1)
	page := testutil.UnmarshalJSON[createdPage](t, e.createdPages[0])
	if _, ok := page.Properties[propAuthors]; ok {
		t.Fatal("empty Authors should not be written")
	}
	if _, ok := page.Properties[propTags]; ok {
		t.Fatal("empty Tags should not be written")
	}
	assertContains(t, string(page.Properties[propName]), "Lonely Page")
}

func TestNewSubmissionReplacesPendingRecord(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	ctx := context.Background()
	e.bot.handleUpdate(ctx, textUpdate(testUser, "https://example.com/article"))

	e.llmContent = `{"title": "Second Thoughts", "authors": "Carol", "tags": "revisions"}`
	e.bot.handleUpdate(ctx, textUpdate(testUser, "https://example.com/article"))

	sess, _ := e.bot.sessions.get(testUser)
	testutil.AssertEqual(t, sess.state, stateAwaitingConfirmation)
	testutil.AssertEqual(t, sess.rec.title, "Second Thoughts")
}
