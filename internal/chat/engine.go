// Package chat implements the live-chat conversation engine: conversation
// lifecycle, agent assignment, assistant first response with human handoff,
// typing and read tracking, snooze scheduling, merging and analytics.
//
// All state lives in a Repository that is only changed through id-scoped,
// whole-collection transforms. Operations addressed to an unknown id are
// no-ops. Deferred work (assignment timers, completion calls) re-reads the
// repository by id before committing anything.
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/livechat-engine/internal/llm"
	"github.com/capitalize-ai/livechat-engine/internal/model"
	"github.com/capitalize-ai/livechat-engine/pkg/logger"
)

// ErrAssistUnavailable is returned by Assist when no completion is available.
var ErrAssistUnavailable = errors.New("assistance unavailable")

// Clock returns the current time.
type Clock func() time.Time

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Store is the durability boundary. The engine writes through to it after
// every persistent mutation.
type Store interface {
	SaveConversation(ctx context.Context, conv *model.Conversation) error
	DeleteConversation(ctx context.Context, id string) error
}

// Publisher receives every event the engine emits.
type Publisher interface {
	Publish(ctx context.Context, event *model.ChatEvent) error
}

// Notification asks an external collaborator to alert a party that is not
// looking at the conversation.
type Notification struct {
	ConversationID string        `json:"conversation_id"`
	RecipientID    string        `json:"recipient_id,omitempty"`
	RecipientRole  model.Role    `json:"recipient_role"`
	Message        model.Message `json:"message"`
}

// Notifier delivers audible/visual notifications.
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
}

// Config holds engine tuning.
type Config struct {
	Clock     Clock
	Scheduler Scheduler

	// SweepInterval is the snooze-expiry sweep cadence.
	SweepInterval time.Duration
	// SettleDelay is the pause before an automatic assignment commits.
	SettleDelay time.Duration
	// CompletionTimeout bounds each completion call.
	CompletionTimeout time.Duration

	// Hours restricts assistant replies to business hours. Nil means always open.
	Hours *OperatingHours

	SystemInstruction string
	HandoffMarker     string
	FallbackReply     string
	OffHoursReply     string
	AssistantName     string
	Model             string
}

const (
	DefaultSweepInterval     = 5 * time.Second
	DefaultSettleDelay       = time.Second
	DefaultCompletionTimeout = 20 * time.Second
	DefaultHandoffMarker     = "[HANDOFF]"
)

const defaultInstruction = "You are the friendly support assistant for a restaurant's online ordering site. " +
	"Answer questions about the menu, opening hours, orders and deliveries briefly and politely. " +
	"If the customer asks for a person, is upset, or needs something you cannot do such as refunds " +
	"or changing a placed order, reply with a short acknowledgement and include the token " +
	DefaultHandoffMarker + " in your reply."

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Scheduler == nil {
		c.Scheduler = systemScheduler{}
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.CompletionTimeout <= 0 {
		c.CompletionTimeout = DefaultCompletionTimeout
	}
	if c.HandoffMarker == "" {
		c.HandoffMarker = DefaultHandoffMarker
	}
	if c.SystemInstruction == "" {
		c.SystemInstruction = defaultInstruction
	}
	if c.FallbackReply == "" {
		c.FallbackReply = "Sorry, I'm having trouble answering right now. Please try again in a moment."
	}
	if c.OffHoursReply == "" {
		c.OffHoursReply = "Thanks for reaching out! We're closed right now, but a member of our team will reply as soon as we open."
	}
	if c.AssistantName == "" {
		c.AssistantName = "Assistant"
	}
	return c
}

// Deps are the engine's external collaborators. Every field is optional.
type Deps struct {
	Store     Store
	Publisher Publisher
	Notifier  Notifier
	LLM       llm.Client
	Logger    *logger.Logger
	// Agents are seed agents; they start online unless a status is given.
	Agents []model.Agent
}

// Engine is the conversation engine.
type Engine struct {
	cfg Config

	repo   *Repository
	roster *Roster
	router *Router
	focus  *focusTracker

	store     Store
	publisher Publisher
	notifier  Notifier
	llm       llm.Client
	logger    *logger.Logger

	mergeMu    sync.Mutex
	mergedInto map[string]string

	// persistMu orders store writes. Each save re-reads the repository, so
	// the last write always carries the newest state.
	persistMu sync.Mutex

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	closed  bool
	mu      sync.Mutex
}

// NewEngine creates an engine. Call Start to run the snooze sweep.
func NewEngine(cfg Config, deps Deps) *Engine {
	cfg = cfg.withDefaults()
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:        cfg,
		repo:       NewRepository(),
		roster:     NewRoster(deps.Agents...),
		focus:      newFocusTracker(),
		store:      deps.Store,
		publisher:  deps.Publisher,
		notifier:   deps.Notifier,
		llm:        deps.LLM,
		logger:     log,
		mergedInto: make(map[string]string),
		ctx:        ctx,
		cancel:     cancel,
	}
	e.router = newRouter(e)
	return e
}

// Load replaces the working set, typically with conversations read back from
// the store at startup.
func (e *Engine) Load(convs []model.Conversation) {
	e.repo.Replace(convs)
	e.logger.Info("conversations loaded", zap.Int("count", len(convs)))
	e.router.Evaluate()
}

// Start runs the snooze-expiry sweep until ctx is done or Shutdown is called.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started || e.closed {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-e.ctx.Done():
				return
			case <-ticker.C:
				e.SweepSnoozes(e.ctx)
			}
		}
	}()
	e.router.Evaluate()
}

// Shutdown stops the sweep, cancels pending timers and in-flight completion
// calls, and waits for background work to finish.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.router.Stop()
	e.cancel()
	e.wg.Wait()
}

// Wait blocks until in-flight background work has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// track registers background work with Shutdown. It reports false once the
// engine is shutting down; otherwise the caller must call e.wg.Done.
func (e *Engine) track() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.wg.Add(1)
	return true
}

// Get returns the conversation with the given id.
func (e *Engine) Get(id string) (model.Conversation, bool) {
	return e.repo.Get(id)
}

// Snapshot returns every conversation in repository order.
func (e *Engine) Snapshot() []model.Conversation {
	return e.repo.Snapshot()
}

// Roster exposes the agent directory and presence.
func (e *Engine) Roster() *Roster {
	return e.roster
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

func (e *Engine) now() time.Time {
	return e.cfg.Clock()
}

// commit persists conv, publishes the event and re-evaluates auto-assignment.
func (e *Engine) commit(ctx context.Context, conv model.Conversation, typ model.EventType, msg *model.Message) {
	e.persist(ctx, conv.ID)
	e.emit(ctx, typ, conv, msg)
	e.router.Evaluate()
}

// persist writes the current state of the conversation. A conversation that
// has left the repository is not written back.
func (e *Engine) persist(ctx context.Context, id string) {
	if e.store == nil {
		return
	}
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	conv, ok := e.repo.Get(id)
	if !ok {
		return
	}
	if err := e.store.SaveConversation(ctx, &conv); err != nil {
		e.logger.Warn("failed to persist conversation",
			logger.ConversationID(id),
			zap.Error(err),
		)
	}
}

// unpersist removes a conversation that has left the repository.
func (e *Engine) unpersist(ctx context.Context, id string) {
	if e.store == nil {
		return
	}
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	if err := e.store.DeleteConversation(ctx, id); err != nil {
		e.logger.Warn("failed to delete conversation",
			logger.ConversationID(id),
			zap.Error(err),
		)
	}
}

func (e *Engine) emit(ctx context.Context, typ model.EventType, conv model.Conversation, msg *model.Message) {
	if e.publisher == nil {
		return
	}
	event := &model.ChatEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		Type:           typ,
		Conversation:   &conv,
		Message:        msg,
		CreatedAt:      e.now(),
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("failed to publish event",
			logger.ConversationID(conv.ID),
			logger.EventType(string(typ)),
			zap.Error(err),
		)
	}
}

func (e *Engine) notify(ctx context.Context, n *Notification) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.logger.Warn("failed to notify",
			logger.ConversationID(n.ConversationID),
			zap.Error(err),
		)
	}
}

var systemSender = model.Sender{ID: "system", DisplayName: "System", Role: model.RoleSystem}

func (e *Engine) newMessage(convID string, sender model.Sender, content model.Content, vis model.Visibility) model.Message {
	return model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: convID,
		Sender:         sender,
		Content:        content,
		Timestamp:      e.now(),
		Visibility:     vis,
	}
}

func (e *Engine) systemMessage(convID, text string) model.Message {
	m := e.newMessage(convID, systemSender, model.TextContent(text), model.VisibilityPublic)
	m.Read = true
	return m
}

func (e *Engine) assistantSender() model.Sender {
	return model.Sender{ID: "assistant", DisplayName: e.cfg.AssistantName, Role: model.RoleAgent}
}

func lastMessage(c model.Conversation) *model.Message {
	if len(c.Messages) == 0 {
		return nil
	}
	m := c.Messages[len(c.Messages)-1]
	return &m
}

func displayName(s model.Sender) string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	if s.ID != "" {
		return s.ID
	}
	return "an agent"
}
