/*
Package chat contains the session and room orchestration of the lounge chat.

This file defines the Client struct, representing an active WebSocket connection. It manages the
connection's lifecycle, the read and write loops (ReadPump and WritePump), and the dispatch of
inbound frames to the Orchestrator.
*/
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"loungechat/internal/app/event"
	"loungechat/internal/app/pm"
	"loungechat/internal/app/user"
	"loungechat/internal/pkg/auth"
	"loungechat/internal/pkg/errs"
	"loungechat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// capacity of the outbound queue of one connection.
	sendQueueSize = 256

	// inbound frames allowed per second per connection, and the burst on top of it.
	inboundRate  = 5
	inboundBurst = 10

	// WsCloseCodeSessionTerminated is a custom WebSocket Close Code (4000-4999 range)
	// used when the server ends a session, e.g. on failed authorization or a mute.
	WsCloseCodeSessionTerminated = 4003
)

// Inbound frame types.
const (
	InSendMessage             = "SendMessage"
	InSwitchRoom              = "SwitchRoom"
	InSendPrivateMessage      = "SendPrivateMessage"
	InRespondToPrivateMessage = "RespondToPrivateMessage"
	InUpdateProfilePicture    = "UpdateProfilePicture"
	InDeleteMessage           = "DeleteMessage"
	InPurgeMessagesFromUser   = "PurgeMessagesFromUser"
	InBanUser                 = "BanUser"
)

type inboundFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client struct represents an active WebSocket connection.
type Client struct {
	// Key identifies the connection in the Registry and the Manager.
	Key string

	// underlying WebSocket connection object.
	conn *websocket.Conn

	orch    *Orchestrator
	manager *Manager

	// ctx is the server lifetime context; inbound handlers derive from it.
	ctx context.Context

	// a buffered channel used to queue frames waiting to be sent to the client.
	send chan []byte

	// done is closed by terminate; WritePump then flushes send and closes the socket.
	done        chan struct{}
	closeOnce   sync.Once
	closeReason string

	// writerDone is closed when WritePump returns.
	writerDone chan struct{}

	limiter *rate.Limiter

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewClient constructs a Client for an upgraded connection.
func NewClient(ctx context.Context, key string, wsConn *websocket.Conn, orch *Orchestrator, manager *Manager) *Client {
	return &Client{
		Key:        key,
		conn:       wsConn,
		orch:       orch,
		manager:    manager,
		ctx:        ctx,
		send:       make(chan []byte, sendQueueSize),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		limiter:    rate.NewLimiter(rate.Limit(inboundRate), inboundBurst),
		logger:     logx.Logger().With().Str("conn", key).Logger(),
	}
}

// Serve registers the client, authenticates it with credential and runs its loops until
// the connection ends. It blocks.
func (c *Client) Serve(credential string) {
	c.manager.Register(c)
	go c.WritePump()

	if err := c.orch.Connect(c.ctx, c.Key, credential); err != nil {
		// Connect already asked for termination; let the writer flush the notice.
		<-c.writerDone
		c.manager.Unregister(c)
		return
	}

	c.ReadPump()
}

// ReadPump handles reading frames from the WebSocket connection.
// It handles heartbeats (Pong), frame parsing, and performs cleanup upon connection closure.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		if !c.limiter.Allow() {
			c.sendError(event.TypeError, errs.NewError(errs.ErrRateLimitExceeded))
			continue
		}

		c.processInbound(frame)
	}
}

// cleanupOnDisconnect handles the necessary cleanup steps when the client's ReadPump terminates.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Debug().Msg("Client connection cleanup starting.")

	c.orch.Disconnect(c.Key)
	c.manager.Unregister(c)
	c.terminate("connection closed")

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// processInbound decodes one client frame and dispatches it.
func (c *Client) processInbound(frame []byte) {
	var in inboundFrame
	if err := json.Unmarshal(frame, &in); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON")
		c.sendError(event.TypeError, errs.NewError(errs.ErrInvalidJSONFormat))
		return
	}

	var err error
	switch in.Type {
	case InSendMessage:
		err = c.handleSendMessage(in.Payload)
	case InSwitchRoom:
		err = c.handleSwitchRoom(in.Payload)
	case InSendPrivateMessage:
		err = c.handleSendPrivateMessage(in.Payload)
	case InRespondToPrivateMessage:
		err = c.handleRespondToPrivateMessage(in.Payload)
	case InUpdateProfilePicture:
		err = c.handleUpdateProfilePicture(in.Payload)
	case InDeleteMessage, InPurgeMessagesFromUser, InBanUser:
		err = c.handleModeratorAction(in.Type, in.Payload)
	default:
		c.logger.Warn().Str("msg_type", in.Type).Msg("Client sent unsupported message type")
		err = errs.NewError(errs.ErrInvalidParams)
	}

	if err != nil {
		c.reportError(err)
	}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}
	return nil
}

func (c *Client) handleSendMessage(raw json.RawMessage) error {
	var p struct {
		Message string `json:"message"`
	}
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	return c.orch.SendMessage(c.ctx, c.Key, p.Message)
}

func (c *Client) handleSwitchRoom(raw json.RawMessage) error {
	var p struct {
		ChatRoom string `json:"chatRoom"`
	}
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	return c.orch.SwitchRoom(c.ctx, c.Key, p.ChatRoom)
}

func (c *Client) handleSendPrivateMessage(raw json.RawMessage) error {
	var p struct {
		Recipient string `json:"recipient"`
		Message   string `json:"message"`
	}
	if err := decodePayload(raw, &p); err != nil {
		return err
	}

	// The broker reports every outcome to the sender itself.
	_, err := c.orch.SendPrivateMessage(c.ctx, c.Key, p.Recipient, p.Message)
	return err
}

func (c *Client) handleRespondToPrivateMessage(raw json.RawMessage) error {
	var p struct {
		Sender   string      `json:"sender"`
		Response pm.Response `json:"response"`
	}
	if err := decodePayload(raw, &p); err != nil {
		return err
	}

	err := c.orch.RespondToPrivateMessage(c.ctx, c.Key, p.Sender, p.Response)
	switch {
	case errors.Is(err, pm.ErrUnknownResponse):
		return errs.NewError(errs.ErrInvalidParams)
	case err != nil && p.Response == pm.ResponseBlock:
		// The block result event has already told the caller.
		return nil
	}
	return err
}

func (c *Client) handleUpdateProfilePicture(raw json.RawMessage) error {
	var p user.ProfilePicture
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	return c.orch.UpdateProfilePicture(c.ctx, c.Key, p)
}

// handleModeratorAction runs a moderator frame behind the Moderation permission guard.
func (c *Client) handleModeratorAction(frameType string, raw json.RawMessage) error {
	guarded := auth.Guard(auth.PermissionModeration, func(ctx context.Context, caller *auth.Identity, raw json.RawMessage) error {
		switch frameType {
		case InDeleteMessage:
			var p struct {
				ID string `json:"id"`
			}
			if err := decodePayload(raw, &p); err != nil {
				return err
			}
			_, err := c.orch.DeleteMessage(ctx, caller.BattleTag, p.ID)
			return err

		case InPurgeMessagesFromUser:
			var p struct {
				BattleTag string `json:"battleTag"`
			}
			if err := decodePayload(raw, &p); err != nil {
				return err
			}
			c.orch.PurgeMessagesFromUser(ctx, caller.BattleTag, p.BattleTag)
			return nil

		default:
			var req BanRequest
			if err := decodePayload(raw, &req); err != nil {
				return err
			}
			_, err := c.orch.BanUser(ctx, caller.BattleTag, req)
			return err
		}
	})

	return guarded(c.ctx, c.orch.Identity(c.Key), raw)
}

// reportError turns a handler error into an event for this connection.
func (c *Client) reportError(err error) {
	var customErr *errs.CustomError

	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		c.sendError(event.TypeUnauthorized, errs.NewError(errs.ErrUnauthorized))
	case errors.Is(err, auth.ErrForbidden):
		c.sendError(event.TypeUnauthorized, errs.NewError(errs.ErrForbidden))
	case errors.Is(err, ErrNotConnected):
		// The orchestrator already told the client, or the session is closing.
	case errors.As(err, &customErr):
		c.sendError(event.TypeError, customErr)
	default:
		c.logger.Error().Err(err).Msg("Inbound handler failed")
		c.sendError(event.TypeError, errs.NewError(errs.ErrUnknown))
	}
}

func (c *Client) sendError(t event.Type, err *errs.CustomError) {
	c.manager.Send(c.Key, event.ErrorEvent(t, err))
}

// enqueue queues an encoded frame. It returns false if the session is closing or the
// queue is full.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send channel full, dropping message")
		return false
	}
}

// terminate stops accepting new frames and asks WritePump to flush and close.
func (c *Client) terminate(reason string) {
	c.closeOnce.Do(func() {
		c.closeReason = reason
		close(c.done)
	})
}

// WritePump handles writing frames from the Client.send channel to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
		close(c.writerDone)
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.writeFrame(frame) {
				return
			}

		case <-c.done:
			c.flushAndClose()
			return

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// flushAndClose writes every frame still queued, then the close frame.
func (c *Client) flushAndClose() {
	// WritePump is the only reader of send.
	for len(c.send) > 0 {
		if !c.writeFrame(<-c.send) {
			return
		}
	}

	c.logger.Debug().
		Int("close_code", WsCloseCodeSessionTerminated).
		Str("reason", c.closeReason).
		Msg("Sending WS close message.")

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return
	}

	closeMessage := websocket.FormatCloseMessage(WsCloseCodeSessionTerminated, c.closeReason)
	if err := c.conn.WriteMessage(websocket.CloseMessage, closeMessage); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to send WS close message.")
	}
}

// writeFrame writes one queued frame. Returns false if the WritePump loop should terminate.
func (c *Client) writeFrame(frame []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}
