// Package telegram connects the bot to Telegram through TDLib in bot mode.
//
// Bot implements conversation.Messenger and access.MembershipSource, and
// turns TDLib updates into conversation events.
package telegram

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/zelenin/go-tdlib/client"
)

// DefaultSendTimeout bounds the wait for a sent message's permanent id.
const DefaultSendTimeout = 30 * time.Second

// Config holds TDLib settings.
type Config struct {
	APIID    int32
	APIHash  string
	BotToken string
	// Dir holds the TDLib database and files.
	Dir         string
	SendTimeout time.Duration
	Logger      *slog.Logger
}

// api is the part of *client.Client the bot uses.
type api interface {
	SendMessage(req *client.SendMessageRequest) (*client.Message, error)
	EditMessageText(req *client.EditMessageTextRequest) (*client.Message, error)
	DeleteMessages(req *client.DeleteMessagesRequest) (*client.Ok, error)
	GetChatMember(req *client.GetChatMemberRequest) (*client.ChatMember, error)
	AnswerCallbackQuery(req *client.AnswerCallbackQueryRequest) (*client.Ok, error)
}

// Bot is an authorized TDLib bot session.
type Bot struct {
	tdlib       *client.Client
	api         api
	sends       *sendTracker
	sendTimeout time.Duration
	logger      *slog.Logger
}

// Open starts TDLib and authorizes with the bot token. It blocks until
// the session is ready.
func Open(cfg Config) (*Bot, error) {
	if cfg.BotToken == "" || cfg.APIID == 0 || cfg.APIHash == "" {
		return nil, fmt.Errorf("bot token, api id and api hash are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	dir := cfg.Dir
	if dir == "" {
		dir = "tdlib"
	}
	dbDir := filepath.Join(dir, "database")
	filesDir := filepath.Join(dir, "files")
	for _, d := range []string{dbDir, filesDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", d, err)
		}
	}

	if _, err := client.SetLogVerbosityLevel(&client.SetLogVerbosityLevelRequest{
		NewVerbosityLevel: 1,
	}); err != nil {
		logger.Warn("setting tdlib verbosity failed", slog.String("error", err.Error()))
	}

	params := &client.SetTdlibParametersRequest{
		DatabaseDirectory:   dbDir,
		FilesDirectory:      filesDir,
		UseFileDatabase:     false,
		UseChatInfoDatabase: true,
		UseMessageDatabase:  true,
		ApiId:               cfg.APIID,
		ApiHash:             cfg.APIHash,
		SystemLanguageCode:  "pt",
		DeviceModel:         "Server",
		SystemVersion:       "Linux",
		ApplicationVersion:  "1.0",
	}

	tdCli, err := client.NewClient(client.BotAuthorizer(params, cfg.BotToken))
	if err != nil {
		return nil, fmt.Errorf("starting tdlib: %w", err)
	}

	me, err := tdCli.GetMe()
	if err != nil {
		tdCli.Close()
		return nil, fmt.Errorf("getting bot user: %w", err)
	}
	logger.Info("telegram bot authorized", slog.Int64("bot_id", me.Id))

	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}

	return &Bot{
		tdlib:       tdCli,
		api:         tdCli,
		sends:       newSendTracker(),
		sendTimeout: timeout,
		logger:      logger,
	}, nil
}

// Close stops the TDLib session.
func (b *Bot) Close() error {
	if b.tdlib == nil {
		return nil
	}
	_, err := b.tdlib.Close()
	return err
}
