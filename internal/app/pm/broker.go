/*
Package pm brokers consent-based private messages between players.

Every attempt is evaluated from scratch: the sender's moderation state, the block
lists of both sides, the recipient's presence, friendship and the recipient
connection's session-scoped consent. Only the per-connection consent state and the
pair history keep state; the former is dropped when the connection closes.

Messages that trigger a request are held on the recipient connection until it
answers: accept delivers and stores them, decline or block discards them.
*/
package pm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"loungechat/internal/app/event"
	"loungechat/internal/app/moderation"
	"loungechat/internal/app/user"
	"loungechat/internal/pkg/logx"
	"loungechat/internal/pkg/randx"
)

// Reason explains a private message outcome.
type Reason string

const (
	ReasonDelivered                Reason = "delivered"
	ReasonRequestSent              Reason = "request_sent"
	ReasonShadowEcho               Reason = "shadow_echo"
	ReasonSelf                     Reason = "self_message"
	ReasonEmpty                    Reason = "empty_message"
	ReasonTooLong                  Reason = "message_too_long"
	ReasonMuted                    Reason = "muted"
	ReasonFriendsOnly              Reason = "friends_only"
	ReasonBlockedBySender          Reason = "blocked_by_sender"
	ReasonOffline                  Reason = "offline"
	ReasonBlockedByRecipient       Reason = "blocked_by_recipient"
	ReasonRecipientDeclinedSession Reason = "recipient_declined_session"
)

// Response is the recipient's answer to a request.
type Response string

const (
	ResponseAccept  Response = "accept"
	ResponseDecline Response = "decline"
	ResponseBlock   Response = "block"
)

// ErrUnknownResponse is returned by Respond for anything but accept, decline or block.
var ErrUnknownResponse = errors.New("unknown private message response")

const (
	// DefaultHistoryLimit is how many messages are replayed on accept.
	DefaultHistoryLimit = 50

	// DefaultMaxLength caps the length of one private message in runes.
	DefaultMaxLength = 500

	// MaxPendingPerSender bounds the messages held per sender while a request is unanswered.
	MaxPendingPerSender = 5
)

// Directory resolves an online user to a connection.
type Directory interface {
	GetConnectionByUser(battleTag string) (string, bool)
}

// Moderation evaluates the sender's mute state.
type Moderation interface {
	Evaluate(ctx context.Context, battleTag string, action moderation.Action) moderation.Decision
}

// Friends answers friendship questions.
type Friends interface {
	AreFriends(ctx context.Context, a, b string) bool
}

// BlockRepository stores who blocked whom.
type BlockRepository interface {
	IsBlocked(ctx context.Context, blocker, blocked string) (bool, error)
	AddBlock(ctx context.Context, blocker, blocked string) error
	ListBlocked(ctx context.Context, blocker string) ([]string, error)
}

// Result is the outcome of one Send.
type Result struct {
	Reason  Reason
	Message *event.PrivateMessage
}

// Delivered reports whether the body reached the recipient.
func (r Result) Delivered() bool {
	return r.Reason == ReasonDelivered
}

// consent is the session-scoped memory of one recipient connection.
type consent struct {
	declined map[string]struct{}
	accepted map[string]struct{}
	pending  map[string][]event.PrivateMessage
}

// Broker runs the private message protocol.
type Broker struct {
	directory  Directory
	moderation Moderation
	friends    Friends
	blocks     BlockRepository
	history    History
	sender     event.Sender

	historyLimit int
	maxLength    int
	timeout      time.Duration
	now          func() time.Time

	mu       sync.Mutex
	sessions map[string]*consent

	logger zerolog.Logger
}

// Options tunes a Broker; zero values fall back to the defaults.
type Options struct {
	HistoryLimit   int
	MaxLength      int
	BackendTimeout time.Duration
	Clock          func() time.Time
}

// NewBroker wires a Broker to its collaborators.
func NewBroker(dir Directory, mod Moderation, fr Friends, blocks BlockRepository, history History, sender event.Sender, opts Options) *Broker {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}
	if opts.BackendTimeout <= 0 {
		opts.BackendTimeout = 3 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Broker{
		directory:    dir,
		moderation:   mod,
		friends:      fr,
		blocks:       blocks,
		history:      history,
		sender:       sender,
		historyLimit: opts.HistoryLimit,
		maxLength:    opts.MaxLength,
		timeout:      opts.BackendTimeout,
		now:          opts.Clock,
		sessions:     make(map[string]*consent),
		logger:       logx.Component("PrivateMessageBroker"),
	}
}

// Send runs one private message attempt from the connection senderConn, owned by from,
// to the user recipient. Events for both sides are emitted before it returns.
func (b *Broker) Send(ctx context.Context, senderConn string, from user.User, recipient, text string) Result {
	text = strings.TrimSpace(text)
	recipient = strings.TrimSpace(recipient)

	switch {
	case text == "":
		return b.reject(senderConn, recipient, ReasonEmpty)
	case len([]rune(text)) > b.maxLength:
		return b.reject(senderConn, recipient, ReasonTooLong)
	case user.SameIdentity(from.BattleTag, recipient):
		return b.reject(senderConn, recipient, ReasonSelf)
	}

	pm := event.PrivateMessage{
		ID:   randx.MessageID(),
		From: from,
		To:   recipient,
		Text: text,
		Time: b.now().UTC(),
	}

	friendsChecked, areFriends := false, false

	decision := b.moderation.Evaluate(ctx, from.BattleTag, moderation.ActionSendPrivateMessage)
	switch decision.Outcome {
	case moderation.OutcomeRejectTerminate:
		b.sender.Send(senderConn, event.BanNoticeEvent(*decision.Mute))
		b.sender.Send(senderConn, rejectedEvent(recipient, ReasonMuted))
		b.sender.Terminate(senderConn, "muted")
		return Result{Reason: ReasonMuted}

	case moderation.OutcomeShadowEcho:
		pm.Delivered = true
		b.sender.Send(senderConn, event.Event{Type: event.TypePrivateMessageDelivered, Payload: pm})
		return Result{Reason: ReasonShadowEcho, Message: &pm}

	case moderation.OutcomeFriendsOnly:
		friendsChecked, areFriends = true, b.friends.AreFriends(ctx, from.BattleTag, recipient)
		if !areFriends {
			return b.reject(senderConn, recipient, ReasonFriendsOnly)
		}
	}

	if b.isBlocked(ctx, from.BattleTag, recipient) {
		return b.reject(senderConn, recipient, ReasonBlockedBySender)
	}

	recipientConn, online := b.directory.GetConnectionByUser(recipient)
	if !online {
		return b.reject(senderConn, recipient, ReasonOffline)
	}

	if b.isBlocked(ctx, recipient, from.BattleTag) {
		return b.reject(senderConn, recipient, ReasonBlockedByRecipient)
	}

	if !friendsChecked {
		areFriends = b.friends.AreFriends(ctx, from.BattleTag, recipient)
	}

	if !areFriends {
		declined, accepted := b.consentOf(recipientConn, from.BattleTag)
		if declined {
			return b.reject(senderConn, recipient, ReasonRecipientDeclinedSession)
		}
		if !accepted {
			b.holdPending(recipientConn, pm)
			b.sender.Send(recipientConn, event.Event{
				Type:    event.TypePrivateMessageRequest,
				Payload: event.PrivateMessageRequest{From: from},
			})
			b.sender.Send(senderConn, event.Event{
				Type:    event.TypePrivateMessageRequestSent,
				Payload: event.PrivateMessageTarget{BattleTag: recipient},
			})
			return Result{Reason: ReasonRequestSent}
		}
	}

	pm.Delivered = true
	b.sender.Send(recipientConn, event.Event{Type: event.TypePrivateMessageReceived, Payload: pm})
	b.sender.Send(senderConn, event.Event{Type: event.TypePrivateMessageDelivered, Payload: pm})

	b.storeHistory(ctx, pm)

	return Result{Reason: ReasonDelivered, Message: &pm}
}

// Respond applies the answer of recipient (on recipientConn) to sender's request.
// For ResponseBlock the returned error reports whether the block was persisted.
func (b *Broker) Respond(ctx context.Context, recipientConn string, recipient user.User, sender string, response Response) error {
	sender = strings.TrimSpace(sender)
	senderKey := user.Key(sender)

	switch response {
	case ResponseAccept:
		b.mu.Lock()
		c := b.sessionLocked(recipientConn)
		delete(c.declined, senderKey)
		c.accepted[senderKey] = struct{}{}
		pending := c.pending[senderKey]
		delete(c.pending, senderKey)
		b.mu.Unlock()

		b.notifyBoth(recipientConn, sender, event.TypePrivateMessageAccepted, event.PrivateMessageConsent{
			Sender:    sender,
			Recipient: recipient.BattleTag,
		})
		b.deliverPending(ctx, recipientConn, pending)
		b.replayHistory(ctx, recipientConn, recipient.BattleTag, sender)
		return nil

	case ResponseDecline:
		b.mu.Lock()
		c := b.sessionLocked(recipientConn)
		delete(c.accepted, senderKey)
		delete(c.pending, senderKey)
		c.declined[senderKey] = struct{}{}
		b.mu.Unlock()

		b.notifyBoth(recipientConn, sender, event.TypePrivateMessageDeclined, event.PrivateMessageConsent{
			Sender:    sender,
			Recipient: recipient.BattleTag,
		})
		return nil

	case ResponseBlock:
		blockCtx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()

		b.mu.Lock()
		delete(b.sessionLocked(recipientConn).pending, senderKey)
		b.mu.Unlock()

		err := b.blocks.AddBlock(blockCtx, recipient.BattleTag, sender)
		if err != nil {
			b.logger.Error().Err(err).
				Str("blocker", recipient.BattleTag).
				Str("blocked", sender).
				Msg("Failed to store block")
		} else {
			b.mu.Lock()
			delete(b.sessionLocked(recipientConn).accepted, senderKey)
			b.mu.Unlock()
		}

		b.sender.Send(recipientConn, event.Event{
			Type:    event.TypePrivateMessageBlockResult,
			Payload: event.PrivateMessageBlockResult{BattleTag: sender, Success: err == nil},
		})
		return err

	default:
		return ErrUnknownResponse
	}
}

// ForgetConnection drops the consent state of a closed connection.
func (b *Broker) ForgetConnection(connKey string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.sessions, connKey)
}

// SessionCount returns how many connections currently hold consent state.
func (b *Broker) SessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.sessions)
}

func (b *Broker) sessionLocked(connKey string) *consent {
	c, ok := b.sessions[connKey]
	if !ok {
		c = &consent{
			declined: make(map[string]struct{}),
			accepted: make(map[string]struct{}),
			pending:  make(map[string][]event.PrivateMessage),
		}
		b.sessions[connKey] = c
	}
	return c
}

func (b *Broker) consentOf(recipientConn, sender string) (declined, accepted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.sessions[recipientConn]
	if !ok {
		return false, false
	}
	key := user.Key(sender)
	_, declined = c.declined[key]
	_, accepted = c.accepted[key]
	return declined, accepted
}

// PendingCount returns how many messages recipientConn holds from sender.
func (b *Broker) PendingCount(recipientConn, sender string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.sessions[recipientConn]
	if !ok {
		return 0
	}
	return len(c.pending[user.Key(sender)])
}

// holdPending keeps the newest MaxPendingPerSender messages of a request.
func (b *Broker) holdPending(recipientConn string, pm event.PrivateMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.sessionLocked(recipientConn)
	key := user.Key(pm.From.BattleTag)
	held := append(c.pending[key], pm)
	if over := len(held) - MaxPendingPerSender; over > 0 {
		held = held[over:]
	}
	c.pending[key] = held
}

func (b *Broker) deliverPending(ctx context.Context, recipientConn string, pending []event.PrivateMessage) {
	for _, pm := range pending {
		pm.Delivered = true
		b.sender.Send(recipientConn, event.Event{Type: event.TypePrivateMessageReceived, Payload: pm})
		if senderConn, ok := b.directory.GetConnectionByUser(pm.From.BattleTag); ok {
			b.sender.Send(senderConn, event.Event{Type: event.TypePrivateMessageDelivered, Payload: pm})
		}
		b.storeHistory(ctx, pm)
	}
}

func (b *Broker) storeHistory(ctx context.Context, pm event.PrivateMessage) {
	histCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.history.Append(histCtx, pm.From.BattleTag, pm.To, pm); err != nil {
		b.logger.Error().Err(err).
			Str("from", pm.From.BattleTag).
			Str("to", pm.To).
			Msg("Failed to store private message history")
	}
}

// isBlocked treats a failed lookup as blocked.
func (b *Broker) isBlocked(ctx context.Context, blocker, blocked string) bool {
	blockCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	isBlocked, err := b.blocks.IsBlocked(blockCtx, blocker, blocked)
	if err != nil {
		b.logger.Warn().Err(err).
			Str("blocker", blocker).
			Str("blocked", blocked).
			Msg("Block lookup failed, treating as blocked")
		return true
	}
	return isBlocked
}

func (b *Broker) reject(senderConn, recipient string, reason Reason) Result {
	b.sender.Send(senderConn, rejectedEvent(recipient, reason))
	return Result{Reason: reason}
}

func rejectedEvent(recipient string, reason Reason) event.Event {
	return event.Event{
		Type:    event.TypePrivateMessageRejected,
		Payload: event.PrivateMessageRejected{Recipient: recipient, Reason: string(reason)},
	}
}

func (b *Broker) notifyBoth(recipientConn, sender string, t event.Type, payload any) {
	ev := event.Event{Type: t, Payload: payload}
	b.sender.Send(recipientConn, ev)

	if senderConn, ok := b.directory.GetConnectionByUser(sender); ok {
		b.sender.Send(senderConn, ev)
	}
}

func (b *Broker) replayHistory(ctx context.Context, recipientConn, recipient, sender string) {
	histCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	messages, err := b.history.Recent(histCtx, recipient, sender, b.historyLimit)
	if err != nil {
		b.logger.Error().Err(err).
			Str("recipient", recipient).
			Str("sender", sender).
			Msg("Failed to load private message history")
		messages = nil
	}
	if messages == nil {
		messages = []event.PrivateMessage{}
	}

	b.sender.Send(recipientConn, event.Event{
		Type:    event.TypePrivateMessageHistory,
		Payload: event.PrivateMessageHistory{With: sender, Messages: messages},
	})
}
