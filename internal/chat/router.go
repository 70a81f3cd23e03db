package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultMaxBodyLength  = 2000
	DefaultPersistTimeout = 5 * time.Second
)

type RouterConfig struct {
	MaxBodyLength  int
	PersistTimeout time.Duration
}

// Router turns inbound events of one connection into persistence calls and
// outbound events for the right connections. It holds no message state of
// its own; the Store is the source of truth and the Registry says who is
// online.
//
// Events of one connection must be handed to the Router one at a time (the
// websocket Client does so from its read loop); that is what keeps sends from
// a single connection in order.
type Router struct {
	directory *Directory
	presence  *Registry
	reads     *ReadTracker
	log       *log.Logger
	validate  *validator.Validate

	maxBodyLength  int
	persistTimeout time.Duration
}

func NewRouter(directory *Directory, presence *Registry, reads *ReadTracker, logger *log.Logger, cfg RouterConfig) *Router {
	if cfg.MaxBodyLength <= 0 {
		cfg.MaxBodyLength = DefaultMaxBodyLength
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Router{
		directory:      directory,
		presence:       presence,
		reads:          reads,
		log:            logger,
		validate:       validator.New(),
		maxBodyLength:  cfg.MaxBodyLength,
		persistTimeout: cfg.PersistTimeout,
	}
}

// Handle decodes one inbound frame and dispatches it. Failures are reported
// to c and returned.
func (r *Router) Handle(ctx context.Context, c *Conn, frame []byte) error {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		eventsTotal.WithLabelValues("malformed").Inc()
		err = &ValidationError{Field: "frame", Message: "malformed envelope"}
		r.reject(c, "", err)
		return err
	}

	switch env.Type {
	case EventJoin:
		eventsTotal.WithLabelValues(env.Type).Inc()
		var req JoinRequest
		if err := r.decode(env.Data, &req); err != nil {
			r.reject(c, env.Type, err)
			return err
		}
		if err := r.Join(c, req.Identity); err != nil {
			r.reject(c, env.Type, err)
			return err
		}
		return nil

	case EventSend:
		eventsTotal.WithLabelValues(env.Type).Inc()
		var req SendRequest
		if err := r.decode(env.Data, &req); err != nil {
			r.failSend(c, err)
			return err
		}
		_, err := r.Send(ctx, c, req)
		return err

	case EventMarkRead:
		eventsTotal.WithLabelValues(env.Type).Inc()
		var req MarkReadRequest
		if err := r.decode(env.Data, &req); err != nil {
			r.reject(c, env.Type, err)
			return err
		}
		_, err := r.MarkRead(ctx, c, req)
		return err

	case EventTypingStart, EventTypingStop:
		eventsTotal.WithLabelValues(env.Type).Inc()
		var req TypingRequest
		if err := r.decode(env.Data, &req); err != nil {
			r.log.Debug("typing event dropped", "conn", c.ID, "err", err)
			return nil
		}
		return r.Typing(c, req, env.Type == EventTypingStart)

	default:
		eventsTotal.WithLabelValues("unknown").Inc()
		err := &ValidationError{Field: "type", Message: fmt.Sprintf("unknown event %q", env.Type)}
		r.reject(c, env.Type, err)
		return err
	}
}

// Join registers c under identity. Joining again as the same identity is a
// no-op.
func (r *Router) Join(c *Conn, identity string) error {
	if identity == "" {
		return &ValidationError{Field: "identity", Message: "must not be empty"}
	}
	if c.principal.Identity != "" && identity != c.principal.Identity {
		return &ValidationError{Field: "identity", Message: "does not match the authenticated caller"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateClosed:
		return ErrConnectionClosed
	case StateJoined:
		if c.identity == identity {
			return nil
		}
		return &ValidationError{Field: "identity", Message: "connection already joined as another identity"}
	}
	c.state = StateJoined
	c.identity = identity
	// Registered while holding c.mu so a concurrent Disconnect cannot miss it.
	r.presence.Register(identity, c)
	r.log.Debug("connection joined", "conn", c.ID, "identity", identity)
	return nil
}

// Disconnect closes c and removes it from presence. Safe to call more than
// once.
func (r *Router) Disconnect(c *Conn) {
	c.mu.Lock()
	if c.state == StateJoined {
		r.presence.Unregister(c.identity, c)
	}
	c.state = StateClosed
	c.mu.Unlock()
	c.Close()
	r.log.Debug("connection closed", "conn", c.ID)
}

// Send validates and persists a message, then pushes messageDelivered to
// the receiver's connections and messageSent to all of the sender's. On any
// failure only c hears about it (sendFailed) and nothing reaches the
// receiver.
func (r *Router) Send(ctx context.Context, c *Conn, req SendRequest) (*Message, error) {
	msg, err := r.persist(ctx, c, req)
	if err != nil {
		r.failSend(c, err)
		return nil, err
	}
	r.deliver(msg.Receiver.Identity, EventMessageDelivered, msg)
	r.deliver(msg.Sender.Identity, EventMessageSent, msg)
	return msg, nil
}

func (r *Router) persist(ctx context.Context, c *Conn, req SendRequest) (*Message, error) {
	identity, err := r.joinedIdentity(c, EventSend)
	if err != nil {
		return nil, err
	}
	if err := r.validateRoute(c, identity, req.Sender, req.Receiver); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Body) == "" {
		return nil, &ValidationError{Field: "body", Message: "must not be empty"}
	}
	if utf8.RuneCountInString(req.Body) > r.maxBodyLength {
		return nil, &ValidationError{Field: "body", Message: fmt.Sprintf("must be at most %d characters", r.maxBodyLength)}
	}

	msg := &Message{
		ConversationID: req.ConversationID,
		Sender:         req.Sender,
		Receiver:       req.Receiver,
		Body:           req.Body,
	}
	ctx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	defer cancel()
	if err := r.directory.Append(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// MarkRead flips the caller's unread messages in a conversation and confirms
// with readStateUpdated. A failure is logged and reported to c only.
func (r *Router) MarkRead(ctx context.Context, c *Conn, req MarkReadRequest) (int, error) {
	n, err := r.markRead(ctx, c, req)
	if err != nil {
		r.log.Error("mark read failed", "conn", c.ID, "conversation", req.ConversationID, "err", err)
		r.reject(c, EventMarkRead, err)
		return 0, err
	}
	r.emit(c, EventReadStateUpdated, ReadStateUpdated{ConversationID: req.ConversationID, Count: n})
	return n, nil
}

func (r *Router) markRead(ctx context.Context, c *Conn, req MarkReadRequest) (int, error) {
	identity, err := r.joinedIdentity(c, EventMarkRead)
	if err != nil {
		return 0, err
	}
	if req.ReaderIdentity != identity {
		return 0, &ValidationError{Field: "readerIdentity", Message: "must be the identity this connection joined as"}
	}
	ctx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	defer cancel()
	return r.reads.MarkRead(ctx, req.ConversationID, req.ReaderIdentity)
}

// Typing forwards a typing indicator to the receiver's live connections.
// Nothing is stored and nothing is retried: an offline receiver or a bad
// payload just drops the indicator.
func (r *Router) Typing(c *Conn, req TypingRequest, started bool) error {
	inbound, eventType := EventTypingStop, EventUserStoppedTyping
	if started {
		inbound, eventType = EventTypingStart, EventUserTyping
	}
	identity, err := r.joinedIdentity(c, inbound)
	if err != nil {
		r.reject(c, inbound, err)
		return err
	}
	if err := r.validateRoute(c, identity, req.Sender, req.Receiver); err != nil {
		r.log.Debug("typing event dropped", "conn", c.ID, "err", err)
		return nil
	}
	r.deliver(req.Receiver.Identity, eventType, TypingNotice{Identity: req.Sender.Identity})
	return nil
}

func (r *Router) validateRoute(c *Conn, identity string, sender, receiver Participant) error {
	if err := sender.validate("sender"); err != nil {
		return err
	}
	if err := receiver.validate("receiver"); err != nil {
		return err
	}
	if sender.Identity != identity {
		return &ValidationError{Field: "sender.identity", Message: "must be the identity this connection joined as"}
	}
	// The same identity under the other role is a different user.
	if c.principal.Role != "" && sender.Role != c.principal.Role {
		return &ValidationError{Field: "sender.role", Message: "must be the role of the authenticated caller"}
	}
	if sender.Identity == receiver.Identity {
		return &ValidationError{Field: "receiver.identity", Message: "must differ from sender"}
	}
	return nil
}

func (r *Router) joinedIdentity(c *Conn, event string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateJoined:
		return c.identity, nil
	case StateClosed:
		return "", ErrConnectionClosed
	default:
		return "", &NotJoinedError{Event: event}
	}
}

func (r *Router) decode(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return &ValidationError{Field: "data", Message: "missing payload"}
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return &ValidationError{Field: "data", Message: "malformed payload"}
	}
	if err := r.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{Field: fe.Namespace(), Message: "failed " + fe.Tag()}
		}
		return &ValidationError{Field: "data", Message: err.Error()}
	}
	return nil
}

// deliver fans an event out to every live connection of identity. It never
// blocks: a connection whose buffer is full is dropped from presence and
// closed.
func (r *Router) deliver(identity, eventType string, payload any) int {
	conns := r.presence.ConnectionsFor(identity)
	if len(conns) == 0 {
		return 0
	}
	b, err := encode(eventType, payload)
	if err != nil {
		r.log.Error("encode event", "type", eventType, "err", err)
		return 0
	}
	delivered := 0
	for _, conn := range conns {
		if conn.enqueue(b) {
			delivered++
			continue
		}
		deliveriesDropped.Inc()
		r.log.Warn("dropping slow connection", "conn", conn.ID, "identity", identity, "type", eventType)
		r.presence.Unregister(identity, conn)
		conn.Close()
	}
	return delivered
}

func (r *Router) emit(c *Conn, eventType string, payload any) {
	b, err := encode(eventType, payload)
	if err != nil {
		r.log.Error("encode event", "type", eventType, "err", err)
		return
	}
	if !c.enqueue(b) {
		deliveriesDropped.Inc()
		r.log.Warn("reply dropped", "conn", c.ID, "type", eventType)
	}
}

func (r *Router) failSend(c *Conn, err error) {
	code := errorCode(err)
	sendFailures.WithLabelValues(code).Inc()
	reason := err.Error()
	if code == CodePersistence {
		reason = "message could not be stored"
		r.log.Error("send failed", "conn", c.ID, "err", err)
	} else {
		r.log.Debug("send rejected", "conn", c.ID, "err", err)
	}
	r.emit(c, EventSendFailed, SendFailed{Reason: reason, Code: code})
}

func (r *Router) reject(c *Conn, event string, err error) {
	reason := err.Error()
	code := errorCode(err)
	if code == CodePersistence {
		reason = "storage unavailable"
	}
	r.emit(c, EventError, ErrorNotice{Event: event, Code: code, Reason: reason})
}
