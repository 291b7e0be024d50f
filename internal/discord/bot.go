// Package discord adapts Discord events to the talk use case: the /talk
// slash command and messages that mention the bot.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"xhiqi-bot/internal/usecase"
)

const (
	commandErrorMessage = "コマンド実行時にエラーが発生しました…"
	emptyMessageText    = "話しかけたい内容を入力してください。"
	tooLongMessageText  = "メッセージが長すぎます…"
)

// Talker is the use case the bot forwards messages to.
type Talker interface {
	Reply(ctx context.Context, in usecase.TalkInput) (usecase.TalkOutput, error)
}

// API is the subset of *discordgo.Session used to answer events.
type API interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

type Bot struct {
	talk     Talker
	logger   *slog.Logger
	guildID  string
	mentions bool
	newID    func() string

	selfID atomic.Value // string
	ready  atomic.Bool

	mu      sync.Mutex
	baseCtx context.Context
}

type Option func(*Bot)

func WithLogger(l *slog.Logger) Option {
	return func(b *Bot) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithGuild syncs commands to a single guild instead of globally.
func WithGuild(guildID string) Option {
	return func(b *Bot) {
		b.guildID = strings.TrimSpace(guildID)
	}
}

// WithMentionReplies toggles answering messages that mention the bot.
func WithMentionReplies(enabled bool) Option {
	return func(b *Bot) {
		b.mentions = enabled
	}
}

func withRequestIDs(f func() string) Option {
	return func(b *Bot) {
		b.newID = f
	}
}

func New(talk Talker, opts ...Option) (*Bot, error) {
	if talk == nil {
		return nil, errors.New("discord: talker must not be nil")
	}
	b := &Bot{
		talk:     talk,
		logger:   slog.Default(),
		mentions: true,
		newID:    uuid.NewString,
		baseCtx:  context.Background(),
	}
	b.selfID.Store("")
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Run opens session, answers events until ctx is done, then closes it.
func (b *Bot) Run(ctx context.Context, s *discordgo.Session) error {
	if s == nil {
		return errors.New("discord: session must not be nil")
	}
	b.mu.Lock()
	b.baseCtx = ctx
	b.mu.Unlock()

	b.identify(s)
	for _, remove := range []func(){
		s.AddHandler(b.onReady),
		s.AddHandler(b.onDisconnect),
		s.AddHandler(b.onInteraction),
		s.AddHandler(b.onMessage),
	} {
		defer remove()
	}

	if err := s.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	b.logger.Info("discord session opened")

	<-ctx.Done()
	b.ready.Store(false)
	if err := s.Close(); err != nil {
		return fmt.Errorf("discord: close session: %w", err)
	}
	b.logger.Info("discord session closed")
	return nil
}

// identify sets the gateway intents. Discord delivers the content of
// messages that mention the bot without the privileged message content
// intent, so it is never requested.
func (b *Bot) identify(s *discordgo.Session) {
	s.Identify.Intents = discordgo.IntentsGuilds
	if b.mentions {
		s.Identify.Intents |= discordgo.IntentsGuildMessages
	}
}

// Check reports whether the gateway connection is ready.
func (b *Bot) Check(context.Context) error {
	if !b.ready.Load() {
		return errors.New("discord gateway not ready")
	}
	return nil
}

func (b *Bot) context() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.baseCtx
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	if r.User != nil {
		b.selfID.Store(r.User.ID)
	}
	b.ready.Store(true)

	appID := ""
	if r.Application != nil {
		appID = r.Application.ID
	}
	if appID == "" && r.User != nil {
		appID = r.User.ID
	}
	b.logger.Info("discord ready", "user_id", b.selfID.Load(), "guilds", len(r.Guilds))
	if err := b.syncCommands(s, appID); err != nil {
		b.logger.Error("failed to sync slash commands", "err", err)
	}
}

func (b *Bot) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	b.ready.Store(false)
	b.logger.Warn("discord gateway disconnected")
}

func (b *Bot) onInteraction(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	b.HandleInteraction(b.context(), s, ic.Interaction)
}

func (b *Bot) onMessage(s *discordgo.Session, mc *discordgo.MessageCreate) {
	b.HandleMessage(b.context(), s, mc.Message)
}

// HandleInteraction answers a /talk invocation: a deferred "thinking"
// response first, then the reply as a follow-up.
func (b *Bot) HandleInteraction(ctx context.Context, api API, i *discordgo.Interaction) {
	if i == nil || i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != talkCommand {
		return
	}

	requestID := b.newID()
	logger := b.logger.With("request_id", requestID, "channel_id", i.ChannelID, "interaction_id", i.ID)

	if err := api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		logger.Error("failed to defer interaction", "err", err)
		return
	}

	var text string
	for _, opt := range data.Options {
		if opt.Name == talkOption && opt.Type == discordgo.ApplicationCommandOptionString {
			text = opt.StringValue()
		}
	}

	out, err := b.talk.Reply(ctx, usecase.TalkInput{
		Speaker:   interactionSpeaker(i),
		Text:      text,
		Scope:     i.ChannelID,
		RequestID: requestID,
	})
	switch {
	case err != nil:
		logger.Warn("talk rejected", "err", err)
		b.followup(logger, api, i, userMessage(err), true)
	case out.Failed:
		b.followup(logger, api, i, out.Reply, true)
	default:
		b.followup(logger, api, i, out.Reply, false)
	}
}

func (b *Bot) followup(logger *slog.Logger, api API, i *discordgo.Interaction, content string, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	for _, part := range chunks(content, maxContentLen) {
		if _, err := api.FollowupMessageCreate(i, true, &discordgo.WebhookParams{Content: part, Flags: flags}); err != nil {
			logger.Error("failed to send follow-up", "err", err)
			b.commandError(logger, api, i)
			return
		}
	}
}

// commandError is the last-resort notice after a Discord call failed.
func (b *Bot) commandError(logger *slog.Logger, api API, i *discordgo.Interaction) {
	if _, err := api.FollowupMessageCreate(i, true, &discordgo.WebhookParams{
		Content: commandErrorMessage,
		Flags:   discordgo.MessageFlagsEphemeral,
	}); err != nil {
		logger.Debug("failed to send command error notice", "err", err)
	}
}

// HandleMessage answers a message that mentions the bot with a reply to
// that message.
func (b *Bot) HandleMessage(ctx context.Context, api API, m *discordgo.Message) {
	if !b.mentions || m == nil || m.Author == nil || m.Author.Bot {
		return
	}
	selfID, _ := b.selfID.Load().(string)
	if selfID == "" || m.Author.ID == selfID || !mentionsUser(m, selfID) {
		return
	}
	text := stripMention(m.Content, selfID)
	if text == "" {
		return
	}

	requestID := b.newID()
	logger := b.logger.With("request_id", requestID, "channel_id", m.ChannelID, "message_id", m.ID)

	if err := api.ChannelTyping(m.ChannelID); err != nil {
		logger.Debug("failed to send typing indicator", "err", err)
	}

	out, err := b.talk.Reply(ctx, usecase.TalkInput{
		Speaker:   messageSpeaker(m),
		Text:      text,
		Scope:     m.ChannelID,
		RequestID: requestID,
	})
	reply := out.Reply
	if err != nil {
		logger.Warn("talk rejected", "err", err)
		reply = userMessage(err)
	}

	ref := m.Reference()
	for _, part := range chunks(reply, maxContentLen) {
		if _, err := api.ChannelMessageSendReply(m.ChannelID, part, ref); err != nil {
			logger.Error("failed to send reply", "err", err)
			return
		}
	}
}

// userMessage turns a use case error into the text shown to the user.
func userMessage(err error) string {
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) && ucErr.Code == usecase.ErrorInvalidInput {
		switch ucErr.Reason {
		case usecase.ReasonEmptyMessage:
			return emptyMessageText
		case usecase.ReasonMessageTooLong:
			return tooLongMessageText
		}
	}
	return commandErrorMessage
}

func mentionsUser(m *discordgo.Message, userID string) bool {
	for _, u := range m.Mentions {
		if u != nil && u.ID == userID {
			return true
		}
	}
	return false
}

func stripMention(content, userID string) string {
	content = strings.ReplaceAll(content, "<@"+userID+">", "")
	content = strings.ReplaceAll(content, "<@!"+userID+">", "")
	return strings.TrimSpace(content)
}

func interactionSpeaker(i *discordgo.Interaction) string {
	if i.Member != nil {
		if i.Member.Nick != "" {
			return i.Member.Nick
		}
		if name := userName(i.Member.User); name != "" {
			return name
		}
	}
	return userName(i.User)
}

func messageSpeaker(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	return userName(m.Author)
}

func userName(u *discordgo.User) string {
	if u == nil {
		return ""
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}
