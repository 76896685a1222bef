package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/openai/openai-go/option"

	"github.com/jacobdcastro/xiv-wiki-telegram-bot/internal/api/notion"
	"github.com/jacobdcastro/xiv-wiki-telegram-bot/internal/api/telegram"
	"github.com/jacobdcastro/xiv-wiki-telegram-bot/internal/cli"
	"github.com/jacobdcastro/xiv-wiki-telegram-bot/internal/logger"
)

func main() { cli.Main(new(bot)) }

func (b *bot) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&b.debug, "debug", false, "Enable debug logging.")
	fs.DurationVar(&b.pollTimeout, "poll-timeout", 30*time.Second, "Long polling timeout for receiving updates.")
	fs.DurationVar(&b.sessionTTL, "session-ttl", 24*time.Hour, "Drop unfinished conversations older than this.")
}

type bot struct {
	init sync.Once

	// configuration
	authorizedUser string
	databaseID     string
	debug          bool
	notionToken    string
	openaiBaseURL  string
	openaiKey      string
	openaiModel    string
	pollTimeout    time.Duration
	sessionTTL     time.Duration
	tgToken        string
	// now acts as time.Now, but can be mocked for testing.
	now func() time.Time

	// initialized by doInit
	httpc     *http.Client
	llm       completer
	logf      logger.Logf
	notion    *notion.Client
	scrubber  *strings.Replacer
	sessions  *sessionStore
	slog      *slog.Logger
	slogLevel *slog.LevelVar
	tg        *telegram.Client
}

func (b *bot) Run(ctx context.Context, env *cli.Env) error {
	// A .env file in the working directory supplements the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	// Load configuration from environment variables.
	b.authorizedUser = cmp.Or(b.authorizedUser, env.Getenv("AUTHORIZED_USER"))
	b.databaseID = cmp.Or(b.databaseID, env.Getenv("NOTION_DATABASE_ID"))
	b.notionToken = cmp.Or(b.notionToken, env.Getenv("NOTION_API_TOKEN"))
	b.openaiBaseURL = cmp.Or(b.openaiBaseURL, env.Getenv("OPENAI_BASE_URL"))
	b.openaiKey = cmp.Or(b.openaiKey, env.Getenv("OPENAI_API_KEY"))
	b.openaiModel = cmp.Or(b.openaiModel, env.Getenv("OPENAI_MODEL"), "gpt-4o-mini")
	b.tgToken = cmp.Or(b.tgToken, env.Getenv("TELEGRAM_API_TOKEN"))

	var missing []string
	for name, val := range map[string]string{
		"AUTHORIZED_USER":    b.authorizedUser,
		"NOTION_API_TOKEN":   b.notionToken,
		"NOTION_DATABASE_ID": b.databaseID,
		"OPENAI_API_KEY":     b.openaiKey,
		"TELEGRAM_API_TOKEN": b.tgToken,
	} {
		if val == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	b.init.Do(func() { b.doInit(env) })

	if b.debug {
		b.slogLevel.Set(slog.LevelDebug)
	}

	me, err := b.tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("verifying bot token: %w", err)
	}
	b.logf("Bot @%s is running, press Ctrl+C to stop.", me.Username)

	return b.poll(ctx)
}

func (b *bot) doInit(env *cli.Env) {
	b.logf = env.Logf
	if b.now == nil {
		b.now = time.Now
	}
	if b.pollTimeout <= 0 {
		b.pollTimeout = 30 * time.Second
	}
	if b.sessionTTL <= 0 {
		b.sessionTTL = 24 * time.Hour
	}

	if b.httpc == nil {
		// The timeout must cover a full long polling cycle.
		b.httpc = &http.Client{Timeout: b.pollTimeout + 30*time.Second}
	}

	b.scrubber = strings.NewReplacer(
		b.tgToken, "[EXPUNGED]",
		b.openaiKey, "[EXPUNGED]",
		b.notionToken, "[EXPUNGED]",
	)

	b.slogLevel = new(slog.LevelVar)
	b.slog = slog.New(slog.NewTextHandler(b.logf, &slog.HandlerOptions{Level: b.slogLevel}))

	b.tg = &telegram.Client{Token: b.tgToken, HTTPClient: b.httpc, Scrubber: b.scrubber}
	b.notion = &notion.Client{Token: b.notionToken, HTTPClient: b.httpc, Scrubber: b.scrubber}

	if b.llm == nil {
		opts := []option.RequestOption{
			option.WithAPIKey(b.openaiKey),
			option.WithHTTPClient(b.httpc),
		}
		if b.openaiBaseURL != "" {
			opts = append(opts, option.WithBaseURL(b.openaiBaseURL))
		}
		b.llm = newOpenaiLLM(b.openaiModel, opts...)
	}

	b.sessions = newSessionStore(b.sessionTTL, b.now)
}

// poll receives updates over long polling and handles them one at a time, in
// order. Sequential handling is what keeps the session store consistent: a
// double-tapped button can't observe a half-applied state transition.
func (b *bot) poll(ctx context.Context) error {
	var offset int64
	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, next, err := b.tg.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.slog.Warn("receiving updates failed", "error", err)
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		offset = next

		for _, u := range updates {
			b.handleUpdate(ctx, u)
		}

		if evicted := b.sessions.evictStale(); evicted > 0 {
			b.slog.Debug("evicted stale sessions", "count", evicted)
		}
	}
}
