package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mercator-hq/foreman/pkg/conversation"
	"mercator-hq/foreman/pkg/limits/ratelimit"
	"mercator-hq/foreman/pkg/messages"
	"mercator-hq/foreman/pkg/telemetry/metrics"
)

// updateTimeout is the long-poll timeout in seconds.
const updateTimeout = 30

// attachmentLimit caps a downloaded photo or voice note.
const attachmentLimit = 20 << 20

// TelegramOptions configures the Telegram adapter.
type TelegramOptions struct {
	// BotToken is the bot API token.
	BotToken string

	// AllowedUsers lists Telegram user ids permitted to talk to the bot.
	// Empty allows everyone.
	AllowedUsers []string

	// RateLimitPerHour caps accepted messages per user per hour.
	RateLimitPerHour int

	// Transcriber converts voice notes to text. Nil refuses voice notes.
	Transcriber *Transcriber

	// History is the per-user conversation store. Nil disables history.
	History *conversation.Store

	// Metrics counts rate limit rejections. Nil disables counting.
	Metrics *metrics.Collector

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Telegram is the long-polling Telegram channel adapter.
type Telegram struct {
	opts       TelegramOptions
	dispatcher Dispatcher
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
	client     *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI

	stopOnce sync.Once
	stop     chan struct{}
}

// NewTelegram creates the adapter. The bot connection is established in
// Start so construction never touches the network.
func NewTelegram(dispatcher Dispatcher, opts TelegramOptions) *Telegram {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Telegram{
		opts:       opts,
		dispatcher: dispatcher,
		limiter:    ratelimit.NewLimiter(opts.RateLimitPerHour),
		logger:     logger,
		client:     &http.Client{Timeout: 60 * time.Second},
		stop:       make(chan struct{}),
	}
}

// Name returns the channel identifier.
func (t *Telegram) Name() string { return messages.ChannelTelegram.String() }

// Start connects the bot and runs the long-poll receive loop until Stop is
// called or the context is cancelled. Each update is handled on its own
// goroutine so a slow skill does not block the poll.
func (t *Telegram) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.opts.BotToken)
	if err != nil {
		return fmt.Errorf("connecting telegram bot: %w", err)
	}
	t.mu.Lock()
	t.bot = bot
	t.mu.Unlock()

	t.logger.Info("telegram adapter started", "bot", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeout
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			return ctx.Err()
		case <-t.stop:
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			go t.handleMessage(ctx, update.Message)
		}
	}
}

// Stop terminates the receive loop.
func (t *Telegram) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// handleMessage processes one Telegram message end to end: gate, normalize,
// dispatch, deliver.
func (t *Telegram) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	userID := strconv.FormatInt(m.From.ID, 10)
	chatID := m.Chat.ID

	if !userAllowed(t.opts.AllowedUsers, userID) {
		t.logger.Warn("telegram user not in allow-list", "user", userID, "username", m.From.UserName)
		t.reply(chatID, "Sorry, you are not authorized to use this assistant.")
		return
	}

	if allowed, retryAfter := t.limiter.Check(userID); !allowed {
		if t.opts.Metrics != nil {
			t.opts.Metrics.RecordRateLimitRejection(t.Name())
		}
		t.reply(chatID, fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", retryAfter))
		return
	}

	msg, transcript, err := t.normalize(ctx, m, userID)
	if err != nil {
		t.logger.Error("failed to normalize telegram message", "user", userID, "error", err)
		t.reply(chatID, "I couldn't read that message. Please try again.")
		return
	}

	if t.opts.History != nil && msg.Text != "" {
		msg.Metadata[messages.MetaHistory] = conversation.Format(t.opts.History.Get(userID))
	}

	out := t.dispatcher.Dispatch(ctx, msg)

	if t.opts.History != nil && msg.Text != "" {
		t.opts.History.Add(userID, "user", msg.Text)
		t.opts.History.Add(userID, "assistant", out.Text)
	}

	if transcript != "" {
		out.Text = fmt.Sprintf("Heard: \"%s\"\n\n%s", transcript, out.Text)
	}

	// Replies go to the chat the message arrived in.
	out.UserID = strconv.FormatInt(chatID, 10)
	if err := t.Send(ctx, out); err != nil {
		t.logger.Error("failed to send telegram reply", "chat", chatID, "error", err)
	}
}

// normalize converts one Telegram message into the shared inbound form,
// downloading the largest photo size and transcribing voice notes. The
// transcript is returned separately so the reply can echo it.
func (t *Telegram) normalize(ctx context.Context, m *tgbotapi.Message, userID string) (messages.InboundMessage, string, error) {
	text := m.Text
	if text == "" {
		text = m.Caption
	}

	msg := messages.NewInbound(messages.ChannelTelegram, userID, text)
	msg.UserName = m.From.UserName
	if msg.UserName == "" {
		msg.UserName = m.From.FirstName
	}

	if len(m.Photo) > 0 {
		// Telegram orders sizes ascending; the last one is the original.
		largest := m.Photo[len(m.Photo)-1]
		data, err := t.download(ctx, largest.FileID)
		if err != nil {
			return msg, "", fmt.Errorf("downloading photo: %w", err)
		}
		msg.Attachments = append(msg.Attachments, messages.Attachment{
			Type:     messages.AttachmentImage,
			Data:     data,
			MIMEType: "image/jpeg",
		})
	}

	if m.Voice != nil {
		if t.opts.Transcriber == nil {
			msg.Text = ""
			return msg, "", fmt.Errorf("voice transcription not configured")
		}
		data, err := t.download(ctx, m.Voice.FileID)
		if err != nil {
			return msg, "", fmt.Errorf("downloading voice note: %w", err)
		}
		transcript, err := t.opts.Transcriber.Transcribe(ctx, data, "voice.ogg")
		if err != nil {
			return msg, "", fmt.Errorf("transcribing voice note: %w", err)
		}
		msg.Text = transcript
		return msg, transcript, nil
	}

	return msg, "", nil
}

// download fetches one Telegram file by id.
func (t *Telegram) download(ctx context.Context, fileID string) ([]byte, error) {
	t.mu.Lock()
	bot := t.bot
	t.mu.Unlock()
	if bot == nil {
		return nil, fmt.Errorf("bot not connected")
	}

	url, err := bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download failed: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, attachmentLimit))
}

// Send delivers an outbound message: attachments first, then the text in
// chunks. Markdown rendering falls back to plain text when Telegram rejects
// the formatted chunk.
func (t *Telegram) Send(_ context.Context, out messages.OutboundMessage) error {
	t.mu.Lock()
	bot := t.bot
	t.mu.Unlock()
	if bot == nil {
		return fmt.Errorf("telegram adapter not started")
	}

	chatID, err := strconv.ParseInt(out.UserID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", out.UserID, err)
	}

	for _, att := range out.Attachments {
		if err := sendAttachment(bot, chatID, att); err != nil {
			return err
		}
	}

	if out.Text == "" {
		return nil
	}
	for _, chunk := range messages.Chunk(out.Text, messages.MaxChunkLen) {
		if err := sendChunk(bot, chatID, chunk, out.ParseMode); err != nil {
			return err
		}
	}
	return nil
}

// reply sends a short plain-text message outside the dispatch flow.
func (t *Telegram) reply(chatID int64, text string) {
	t.mu.Lock()
	bot := t.bot
	t.mu.Unlock()
	if bot == nil {
		return
	}
	if _, err := bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		t.logger.Error("failed to send telegram message", "chat", chatID, "error", err)
	}
}

// sendChunk sends one text chunk, retrying without Markdown when the
// formatted send is rejected.
func sendChunk(bot *tgbotapi.BotAPI, chatID int64, chunk, parseMode string) error {
	msg := tgbotapi.NewMessage(chatID, chunk)
	if parseMode != messages.ParseModePlain {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	if _, err := bot.Send(msg); err != nil {
		if msg.ParseMode == "" {
			return err
		}
		plain := tgbotapi.NewMessage(chatID, stripMarkdown(chunk))
		if _, err := bot.Send(plain); err != nil {
			return err
		}
	}
	return nil
}

// sendAttachment sends one attachment: images as photos, everything else as
// a document.
func sendAttachment(bot *tgbotapi.BotAPI, chatID int64, att messages.Attachment) error {
	name := att.Filename
	if name == "" {
		name = "attachment"
	}
	file := tgbotapi.FileBytes{Name: name, Bytes: att.Data}

	var err error
	if att.Type == messages.AttachmentImage {
		_, err = bot.Send(tgbotapi.NewPhoto(chatID, file))
	} else {
		_, err = bot.Send(tgbotapi.NewDocument(chatID, file))
	}
	return err
}

// userAllowed reports whether the user passes the allow-list. An empty list
// allows everyone.
func userAllowed(allowed []string, userID string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, u := range allowed {
		if u == userID {
			return true
		}
	}
	return false
}
