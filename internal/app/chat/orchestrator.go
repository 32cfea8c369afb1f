/*
Package chat contains the session and room orchestration of the lounge chat.

This file defines the Orchestrator, which composes the Registry, the HistoryStore,
the moderation Gate and the private message Broker into the connection protocol:
connect, talk, switch rooms, disconnect and the moderator actions.

Ordering: every registry mutation and the enqueueing of the room events it causes
happen under one lock, so each recipient observes a room's UserEntered, UserLeft and
message events in the order the mutations were applied. Senders only enqueue, so the
lock is never held across network I/O; calls to collaborators (auth, profile backend,
repositories, friend checks) run before the lock is taken.
*/
package chat

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"loungechat/internal/app/event"
	"loungechat/internal/app/message"
	"loungechat/internal/app/moderation"
	"loungechat/internal/app/pm"
	"loungechat/internal/app/user"
	"loungechat/internal/pkg/auth"
	"loungechat/internal/pkg/errs"
	"loungechat/internal/pkg/logx"
)

const (
	// FallbackRoom is joined when no default room is configured or stored.
	FallbackRoom = "W3C Lounge"

	// MaxRoomNameLength bounds ad-hoc room keys.
	MaxRoomNameLength = 64

	// DefaultMaxMessageLength bounds a public message in runes.
	DefaultMaxMessageLength = 500

	// SystemBattleTag authors stored system broadcasts.
	SystemBattleTag = "System"
)

// ErrNotConnected is returned for operations on a connection that never completed Connect.
var ErrNotConnected = errors.New("connection is not in a room")

// ProfileBackend supplies clan and cosmetic data of a player.
type ProfileBackend interface {
	GetChatDetails(ctx context.Context, battleTag string) (*user.Cosmetics, error)
}

// SettingsRepository stores per-player chat preferences.
type SettingsRepository interface {
	// LoadDefaultRoom returns "" when nothing is stored.
	LoadDefaultRoom(ctx context.Context, battleTag string) (string, error)
	SaveDefaultRoom(ctx context.Context, battleTag, room string) error
}

// BlockLister lists whom a player has blocked.
type BlockLister interface {
	ListBlocked(ctx context.Context, blocker string) ([]string, error)
}

// Archiver keeps an audit copy of messages removed by moderators.
type Archiver interface {
	ArchiveRemoved(ctx context.Context, action, actor string, messages []message.Message) error
}

// Options tunes an Orchestrator; zero values fall back to the defaults.
type Options struct {
	DefaultRoom      string
	DefaultRooms     []string
	BackendTimeout   time.Duration
	MaxMessageLength int
	Clock            func() time.Time
}

// Deps are the collaborators of an Orchestrator. Archiver may be nil.
type Deps struct {
	Registry *Registry
	History  *HistoryStore
	Gate     *moderation.Gate
	Broker   *pm.Broker
	Sender   event.Sender
	Auth     auth.Authenticator
	Profiles ProfileBackend
	Settings SettingsRepository
	Blocks   BlockLister
	Archiver Archiver
}

// session is what the orchestrator remembers about a connected caller.
type session struct {
	identity *auth.Identity

	// blocked holds the lower-cased battle tags this caller has blocked.
	blocked map[string]struct{}
}

// Orchestrator drives the connection protocol.
type Orchestrator struct {
	registry *Registry
	history  *HistoryStore
	gate     *moderation.Gate
	broker   *pm.Broker
	sender   event.Sender
	auth     auth.Authenticator
	profiles ProfileBackend
	settings SettingsRepository
	blocks   BlockLister
	archiver Archiver

	opts Options

	// order serializes registry mutations, session changes and room fan-out.
	order    sync.Mutex
	sessions map[string]*session

	logger zerolog.Logger
}

// NewOrchestrator wires an Orchestrator.
func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	if opts.DefaultRoom == "" {
		opts.DefaultRoom = FallbackRoom
	}
	if opts.BackendTimeout <= 0 {
		opts.BackendTimeout = 3 * time.Second
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = DefaultMaxMessageLength
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Orchestrator{
		registry: deps.Registry,
		history:  deps.History,
		gate:     deps.Gate,
		broker:   deps.Broker,
		sender:   deps.Sender,
		auth:     deps.Auth,
		profiles: deps.Profiles,
		settings: deps.Settings,
		blocks:   deps.Blocks,
		archiver: deps.Archiver,
		opts:     opts,
		sessions: make(map[string]*session),
		logger:   logx.Component("Orchestrator"),
	}
}

func (o *Orchestrator) backendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.opts.BackendTimeout)
}

// Connect authenticates connKey with credential and, if moderation allows, places it in
// the caller's default room. A non-nil error means the connection has been terminated.
func (o *Orchestrator) Connect(ctx context.Context, connKey, credential string) error {
	identity, err := o.auth.ResolveIdentity(ctx, credential)
	if err != nil || identity == nil {
		o.logger.Info().Err(err).Str("conn", connKey).Msg("Authorization failed")
		o.sender.Send(connKey, event.ErrorEvent(event.TypeAuthorizationFailed, errs.NewError(errs.ErrUnauthorized)))
		o.sender.Terminate(connKey, "authorization failed")
		if err == nil {
			err = auth.ErrUnauthenticated
		}
		return err
	}

	u := user.New(identity.BattleTag, identity.IsAdmin, o.loadCosmetics(ctx, identity.BattleTag))

	decision := o.gate.Evaluate(ctx, identity.BattleTag, moderation.ActionEstablishSession)
	if decision.Outcome == moderation.OutcomeRejectTerminate {
		o.logger.Info().Str("battle_tag", identity.BattleTag).Msg("Muted user refused at connect")
		o.sender.Send(connKey, event.BanNoticeEvent(*decision.Mute))
		o.sender.Terminate(connKey, "muted")
		return errs.NewError(errs.ErrMuted, decision.Mute.EndsAt.Format(time.RFC3339))
	}

	room := o.loadDefaultRoom(ctx, identity.BattleTag)
	blocked := o.loadBlocked(ctx, identity.BattleTag)

	o.order.Lock()
	defer o.order.Unlock()

	if !o.registry.Add(connKey, room, u) {
		o.logger.Warn().Str("conn", connKey).Msg("Connect on an already registered connection ignored")
		return nil
	}
	o.sessions[connKey] = &session{identity: identity, blocked: blocked}

	o.broadcastLocked(room, event.UserEvent(event.TypeUserEntered, room, u))
	o.sendSnapshotLocked(connKey, room)

	o.logger.Info().
		Str("conn", connKey).
		Str("battle_tag", u.BattleTag).
		Str("room", room).
		Msg("User connected")
	return nil
}

func (o *Orchestrator) loadCosmetics(ctx context.Context, battleTag string) user.Cosmetics {
	fallback := user.Cosmetics{ProfilePicture: user.DefaultProfilePicture()}
	if o.profiles == nil {
		return fallback
	}

	backendCtx, cancel := o.backendContext(ctx)
	defer cancel()

	details, err := o.profiles.GetChatDetails(backendCtx, battleTag)
	if err != nil {
		o.logger.Warn().Err(err).Str("battle_tag", battleTag).Msg("Profile backend failed, using default cosmetics")
		return fallback
	}
	if details == nil {
		return fallback
	}
	return *details
}

func (o *Orchestrator) loadDefaultRoom(ctx context.Context, battleTag string) string {
	if o.settings == nil {
		return o.opts.DefaultRoom
	}

	backendCtx, cancel := o.backendContext(ctx)
	defer cancel()

	room, err := o.settings.LoadDefaultRoom(backendCtx, battleTag)
	if err != nil {
		o.logger.Warn().Err(err).Str("battle_tag", battleTag).Msg("Failed to load chat settings")
		return o.opts.DefaultRoom
	}
	if room = strings.TrimSpace(room); room == "" {
		return o.opts.DefaultRoom
	}
	return room
}

func (o *Orchestrator) loadBlocked(ctx context.Context, battleTag string) map[string]struct{} {
	blocked := make(map[string]struct{})
	if o.blocks == nil {
		return blocked
	}

	backendCtx, cancel := o.backendContext(ctx)
	defer cancel()

	tags, err := o.blocks.ListBlocked(backendCtx, battleTag)
	if err != nil {
		o.logger.Warn().Err(err).Str("battle_tag", battleTag).Msg("Failed to load block list")
		return blocked
	}
	for _, tag := range tags {
		blocked[user.Key(tag)] = struct{}{}
	}
	return blocked
}

// SendMessage handles a line typed by the caller in their current room.
func (o *Orchestrator) SendMessage(ctx context.Context, connKey, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	conn, ok := o.registry.Get(connKey)
	if !ok {
		o.sender.Send(connKey, event.ErrorEvent(event.TypeError, errs.NewError(errs.ErrNotInRoom)))
		return ErrNotConnected
	}

	if utf8.RuneCountInString(text) > o.opts.MaxMessageLength {
		o.sender.Send(connKey, event.ErrorEvent(event.TypeError, errs.NewError(errs.ErrMessageContentTooLong, o.opts.MaxMessageLength)))
		return nil
	}

	if isCommand(text) {
		o.replyToCommand(connKey, conn.User, text)
		return nil
	}

	decision := o.gate.Evaluate(ctx, conn.User.BattleTag, moderation.ActionSendPublicMessage)
	switch decision.Outcome {
	case moderation.OutcomeRejectTerminate:
		o.sender.Send(connKey, event.BanNoticeEvent(*decision.Mute))
		o.sender.Terminate(connKey, "muted")
		return nil

	case moderation.OutcomeShadowEcho:
		o.sender.Send(connKey, event.MessageEvent(message.NewAt(conn.User, text, o.opts.Clock())))
		return nil

	case moderation.OutcomeFriendsOnly:
		o.sender.Send(connKey, event.ErrorEvent(event.TypeFriendsOnlyNotice, errs.NewError(errs.ErrFriendsOnly)))
		return nil
	}

	o.order.Lock()
	defer o.order.Unlock()

	// Re-read under the lock: the caller may have switched rooms meanwhile.
	conn, ok = o.registry.Get(connKey)
	if !ok {
		return ErrNotConnected
	}

	msg := message.NewAt(conn.User, text, o.opts.Clock())
	o.history.Append(conn.Room, msg)
	o.fanOutMessageLocked(conn.Room, msg, connKey)

	return nil
}

// fanOutMessageLocked delivers msg to room except the exclude connection, flagging
// copies for recipients who blocked the author.
func (o *Orchestrator) fanOutMessageLocked(room string, msg message.Message, exclude string) {
	authorKey := user.Key(msg.User.BattleTag)

	for _, key := range o.registry.GetConnectionsOfRoom(room) {
		if key == exclude {
			continue
		}
		out := msg
		if s, ok := o.sessions[key]; ok {
			if _, blocked := s.blocked[authorKey]; blocked {
				out = msg.AsBlockedView()
			}
		}
		o.sender.Send(key, event.MessageEvent(out))
	}
}

// SwitchRoom moves the caller to newRoom and remembers it as their default room.
func (o *Orchestrator) SwitchRoom(ctx context.Context, connKey, newRoom string) error {
	newRoom = strings.TrimSpace(newRoom)
	if newRoom == "" || utf8.RuneCountInString(newRoom) > MaxRoomNameLength {
		o.sender.Send(connKey, event.ErrorEvent(event.TypeError, errs.NewError(errs.ErrRoomNameInvalid)))
		return nil
	}

	o.order.Lock()

	oldRoom, ok := o.registry.Move(connKey, newRoom)
	if !ok {
		o.order.Unlock()
		o.sender.Send(connKey, event.ErrorEvent(event.TypeError, errs.NewError(errs.ErrNotInRoom)))
		return ErrNotConnected
	}

	u, _ := o.registry.GetUser(connKey)
	if oldRoom != newRoom {
		o.broadcastLocked(oldRoom, event.UserEvent(event.TypeUserLeft, oldRoom, u))
		o.broadcastLocked(newRoom, event.UserEvent(event.TypeUserEntered, newRoom, u))
	}
	o.sendSnapshotLocked(connKey, newRoom)

	o.order.Unlock()

	if o.settings != nil {
		backendCtx, cancel := o.backendContext(ctx)
		defer cancel()

		if err := o.settings.SaveDefaultRoom(backendCtx, u.BattleTag, newRoom); err != nil {
			o.logger.Warn().Err(err).Str("battle_tag", u.BattleTag).Msg("Failed to save default room")
		}
	}

	o.logger.Debug().Str("conn", connKey).Str("from", oldRoom).Str("to", newRoom).Msg("Room switched")
	return nil
}

// Disconnect unregisters connKey and tells its room. Unknown keys are ignored.
func (o *Orchestrator) Disconnect(connKey string) {
	o.order.Lock()
	conn, ok := o.registry.Remove(connKey)
	delete(o.sessions, connKey)
	if ok {
		o.broadcastLocked(conn.Room, event.UserEvent(event.TypeUserLeft, conn.Room, conn.User))
	}
	o.order.Unlock()

	if o.broker != nil {
		o.broker.ForgetConnection(connKey)
	}

	if ok {
		o.logger.Info().
			Str("conn", connKey).
			Str("battle_tag", conn.User.BattleTag).
			Str("room", conn.Room).
			Msg("User disconnected")
	}
}

// UpdateProfilePicture changes the caller's picture and re-announces them to their room.
func (o *Orchestrator) UpdateProfilePicture(_ context.Context, connKey string, picture user.ProfilePicture) error {
	o.order.Lock()
	defer o.order.Unlock()

	conn, ok := o.registry.UpdateUser(connKey, func(u user.User) user.User {
		return u.WithProfilePicture(picture)
	})
	if !ok {
		return ErrNotConnected
	}

	o.broadcastLocked(conn.Room, event.UserEvent(event.TypeUserUpdated, conn.Room, conn.User))
	return nil
}

// SendPrivateMessage forwards a private message attempt to the broker.
func (o *Orchestrator) SendPrivateMessage(ctx context.Context, connKey, recipient, text string) (pm.Result, error) {
	u, ok := o.registry.GetUser(connKey)
	if !ok {
		return pm.Result{}, ErrNotConnected
	}
	return o.broker.Send(ctx, connKey, u, recipient, text), nil
}

// RespondToPrivateMessage forwards the caller's answer to a private message request.
func (o *Orchestrator) RespondToPrivateMessage(ctx context.Context, connKey, sender string, response pm.Response) error {
	u, ok := o.registry.GetUser(connKey)
	if !ok {
		return ErrNotConnected
	}

	if err := o.broker.Respond(ctx, connKey, u, sender, response); err != nil {
		return err
	}

	if response == pm.ResponseBlock {
		o.order.Lock()
		if s, ok := o.sessions[connKey]; ok {
			s.blocked[user.Key(sender)] = struct{}{}
		}
		o.order.Unlock()
	}
	return nil
}

// DeleteMessage removes one message and tells every connection except the author's.
func (o *Orchestrator) DeleteMessage(ctx context.Context, actor, messageID string) (message.Message, error) {
	o.order.Lock()

	msg, ok := o.history.DeleteByID(messageID)
	if !ok {
		o.order.Unlock()
		return message.Message{}, errs.NewError(errs.ErrMessageNotFound)
	}
	o.broadcastAllExceptAuthorLocked(msg.User.BattleTag, event.Event{
		Type:    event.TypeMessageDeleted,
		Payload: event.MessageDeleted{ID: msg.ID},
	})

	o.order.Unlock()

	o.logger.Info().Str("actor", actor).Str("message_id", msg.ID).Str("author", msg.User.BattleTag).Msg("Message deleted")
	o.archive(ctx, "delete", actor, []message.Message{msg})
	return msg, nil
}

// PurgeMessagesFromUser removes every message of battleTag. Nothing is broadcast when
// nothing matched.
func (o *Orchestrator) PurgeMessagesFromUser(ctx context.Context, actor, battleTag string) []message.Message {
	o.order.Lock()

	purged := o.history.PurgeByAuthor(battleTag)
	if len(purged) > 0 {
		ids := make([]string, len(purged))
		for i, m := range purged {
			ids[i] = m.ID
		}
		o.broadcastAllExceptAuthorLocked(battleTag, event.Event{
			Type:    event.TypeBulkMessageDeleted,
			Payload: event.BulkMessageDeleted{IDs: ids},
		})
	}

	o.order.Unlock()

	if len(purged) > 0 {
		o.logger.Info().Str("actor", actor).Str("author", battleTag).Int("count", len(purged)).Msg("Messages purged")
		o.archive(ctx, "purge", actor, purged)
	}
	return purged
}

func (o *Orchestrator) archive(ctx context.Context, action, actor string, messages []message.Message) {
	if o.archiver == nil {
		return
	}

	backendCtx, cancel := o.backendContext(ctx)
	defer cancel()

	if err := o.archiver.ArchiveRemoved(backendCtx, action, actor, messages); err != nil {
		o.logger.Warn().Err(err).Str("action", action).Msg("Failed to archive removed messages")
	}
}

// ClearRoom drops the whole history of room. Members still in the room get one
// BulkMessageDeleted event listing the removed ids.
func (o *Orchestrator) ClearRoom(ctx context.Context, actor, room string) []message.Message {
	o.order.Lock()

	removed := o.history.FullLog(room)
	o.history.ClearRoom(room)
	if len(removed) > 0 {
		ids := make([]string, len(removed))
		for i, m := range removed {
			ids[i] = m.ID
		}
		o.broadcastLocked(room, event.Event{
			Type:    event.TypeBulkMessageDeleted,
			Payload: event.BulkMessageDeleted{IDs: ids},
		})
	}

	o.order.Unlock()

	if len(removed) > 0 {
		o.logger.Info().Str("actor", actor).Str("room", room).Int("count", len(removed)).Msg("Room history cleared")
		o.archive(ctx, "clear", actor, removed)
	}
	return removed
}

// BanRequest describes a mute issued by a moderator.
type BanRequest struct {
	BattleTag string          `json:"battleTag"`
	EndDate   string          `json:"endDate"`
	Kind      moderation.Kind `json:"kind"`
	Reason    string          `json:"reason"`
}

// BanUser composes a mute from req and stores it, replacing any existing one.
func (o *Orchestrator) BanUser(ctx context.Context, actor string, req BanRequest) (moderation.Mute, error) {
	if strings.TrimSpace(req.BattleTag) == "" {
		return moderation.Mute{}, errs.NewError(errs.ErrInvalidParams)
	}

	endsAt, err := moderation.ParseEndDate(req.EndDate)
	now := o.opts.Clock().UTC()
	if err != nil || !endsAt.After(now) {
		return moderation.Mute{}, errs.NewError(errs.ErrInvalidEndDate)
	}

	mute := moderation.Mute{
		BattleTag:  user.Key(req.BattleTag),
		EndsAt:     endsAt,
		Kind:       req.Kind,
		Author:     actor,
		Reason:     strings.TrimSpace(req.Reason),
		InsertedAt: now,
	}

	backendCtx, cancel := o.backendContext(ctx)
	defer cancel()

	if err := o.gate.Upsert(backendCtx, mute); err != nil {
		o.logger.Error().Err(err).Str("battle_tag", mute.BattleTag).Msg("Failed to store mute")
		return moderation.Mute{}, errs.NewError(errs.ErrUnknown, err)
	}
	return mute, nil
}

// SystemBroadcast is a client-translated notice for one room.
type SystemBroadcast struct {
	ChatRoomID    string         `json:"chatRoomId"`
	MessageKey    string         `json:"messageKey"`
	MessageParams map[string]any `json:"messageParams"`
	IsVolatile    bool           `json:"isVolatile"`
}

// BroadcastSystemMessage sends a system notice to a room; non-volatile notices are
// also kept in the room history. It returns the number of connections reached.
func (o *Orchestrator) BroadcastSystemMessage(_ context.Context, req SystemBroadcast) (int, error) {
	room := strings.TrimSpace(req.ChatRoomID)
	if room == "" || strings.TrimSpace(req.MessageKey) == "" {
		return 0, errs.NewError(errs.ErrInvalidParams)
	}
	if req.MessageParams == nil {
		req.MessageParams = map[string]any{}
	}

	now := o.opts.Clock().UTC()
	payload := event.SystemMessage{
		RoomID:        room,
		MessageKey:    req.MessageKey,
		MessageParams: req.MessageParams,
		Timestamp:     now,
	}

	o.order.Lock()
	defer o.order.Unlock()

	if !req.IsVolatile {
		systemUser := user.New(SystemBattleTag, true, user.Cosmetics{})
		msg := message.NewAt(systemUser, "System Message: "+req.MessageKey, now)
		msg.IsSystemMessage = true
		msg.SystemMessageKey = req.MessageKey
		msg.SystemMessageParams = req.MessageParams
		o.history.Append(room, msg)
	}

	conns := o.registry.GetConnectionsOfRoom(room)
	for _, key := range conns {
		o.sender.Send(key, event.Event{Type: event.TypeSystemMessage, Payload: payload})
	}
	return len(conns), nil
}

// RoomSummary is one entry of the room list.
type RoomSummary struct {
	Name      string `json:"name"`
	Users     int    `json:"users"`
	IsDefault bool   `json:"isDefault"`
}

// RoomSummaries lists the default rooms in configured order, followed by any other
// non-empty room by name.
func (o *Orchestrator) RoomSummaries() []RoomSummary {
	counts := o.registry.RoomCounts()

	out := make([]RoomSummary, 0, len(o.opts.DefaultRooms)+len(counts))
	for _, room := range o.opts.DefaultRooms {
		out = append(out, RoomSummary{Name: room, Users: counts[room], IsDefault: true})
	}

	var adHoc []string
	for room := range counts {
		if !slices.Contains(o.opts.DefaultRooms, room) {
			adHoc = append(adHoc, room)
		}
	}
	sort.Strings(adHoc)
	for _, room := range adHoc {
		out = append(out, RoomSummary{Name: room, Users: counts[room]})
	}
	return out
}

// FullLog returns the retained history of room for moderators.
func (o *Orchestrator) FullLog(room string) []message.Message {
	return o.history.FullLog(room)
}

// Identity returns the authenticated identity of connKey, or nil.
func (o *Orchestrator) Identity(connKey string) *auth.Identity {
	o.order.Lock()
	defer o.order.Unlock()

	if s, ok := o.sessions[connKey]; ok {
		return s.identity
	}
	return nil
}

// sendSnapshotLocked sends the member list and the visible history of room to connKey.
func (o *Orchestrator) sendSnapshotLocked(connKey, room string) {
	messages := o.history.RecentWindow(room)

	if s, ok := o.sessions[connKey]; ok && len(s.blocked) > 0 {
		for i, m := range messages {
			if _, blocked := s.blocked[user.Key(m.User.BattleTag)]; blocked {
				messages[i] = m.AsBlockedView()
			}
		}
	}

	o.sender.Send(connKey, event.StartChatEvent(room, o.registry.GetUsersOfRoom(room), messages))
}

func (o *Orchestrator) broadcastLocked(room string, ev event.Event) {
	for _, key := range o.registry.GetConnectionsOfRoom(room) {
		o.sender.Send(key, ev)
	}
}

func (o *Orchestrator) broadcastAllExceptAuthorLocked(author string, ev event.Event) {
	for _, key := range o.registry.AllConnections() {
		if u, ok := o.registry.GetUser(key); ok && user.SameIdentity(u.BattleTag, author) {
			continue
		}
		o.sender.Send(key, ev)
	}
}
