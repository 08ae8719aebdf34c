package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/capitalize-ai/livechat-engine/internal/llm"
	"github.com/capitalize-ai/livechat-engine/internal/model"
)

type fakeTimer struct {
	s       *fakeScheduler
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeScheduler records AfterFunc calls; tests fire them explicitly.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) pending() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fireAll runs every pending timer once.
func (s *fakeScheduler) fireAll() int {
	timers := s.pending()
	s.mu.Lock()
	for _, t := range timers {
		t.fired = true
	}
	s.mu.Unlock()
	for _, t := range timers {
		t.f()
	}
	return len(timers)
}

// fakeLLM answers every request with reply or err. When block is set each
// call waits for it to close.
type fakeLLM struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []*llm.CompletionRequest
	started  chan struct{}
	block    chan struct{}
}

func (f *fakeLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.reply, TokensIn: 10, TokensOut: 5}, nil
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type memoryStore struct {
	mu      sync.Mutex
	saved   map[string]model.Conversation
	deleted []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{saved: make(map[string]model.Conversation)}
}

func (s *memoryStore) SaveConversation(_ context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[conv.ID] = conv.Clone()
	return nil
}

func (s *memoryStore) get(id string) (model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.saved[id]
	return conv, ok
}

func (s *memoryStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saved, id)
	s.deleted = append(s.deleted, id)
	return nil
}

// gatedStore blocks the next save after arm until it is released.
type gatedStore struct {
	*memoryStore

	mu      sync.Mutex
	entered chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{memoryStore: newMemoryStore()}
}

// arm blocks the next SaveConversation. entered closes once that save has
// started; release lets it through.
func (s *gatedStore) arm() (entered <-chan struct{}, release func()) {
	in, out := make(chan struct{}), make(chan struct{})
	s.mu.Lock()
	s.entered, s.release = in, out
	s.mu.Unlock()
	return in, func() { close(out) }
}

func (s *gatedStore) SaveConversation(ctx context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	in, out := s.entered, s.release
	s.entered, s.release = nil, nil
	s.mu.Unlock()

	if in != nil {
		close(in)
		<-out
	}
	return s.memoryStore.SaveConversation(ctx, conv)
}

// steppingClock advances a second on every read. holdNext parks the next
// reader after it has taken its time.
type steppingClock struct {
	mu      sync.Mutex
	now     time.Time
	reached chan struct{}
	release chan struct{}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	c.now = c.now.Add(time.Second)
	now := c.now
	in, out := c.reached, c.release
	c.reached, c.release = nil, nil
	c.mu.Unlock()

	if in != nil {
		close(in)
		<-out
	}
	return now
}

func (c *steppingClock) holdNext() (reached <-chan struct{}, release func()) {
	in, out := make(chan struct{}), make(chan struct{})
	c.mu.Lock()
	c.reached, c.release = in, out
	c.mu.Unlock()
	return in, func() { close(out) }
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.ChatEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event *model.ChatEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count(typ model.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note *Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return nil
}

func (n *recordingNotifier) forRole(role model.Role) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.RecipientRole == role {
			c++
		}
	}
	return c
}

type testEnv struct {
	engine    *Engine
	now       *time.Time
	scheduler *fakeScheduler
	llm       *fakeLLM
	store     *memoryStore
	publisher *recordingPublisher
	notifier  *recordingNotifier
}

func (env *testEnv) advance(d time.Duration) {
	*env.now = env.now.Add(d)
}

type envOption func(*Config, *Deps)

func withClock(clock Clock) envOption {
	return func(c *Config, _ *Deps) { c.Clock = clock }
}

func withStore(store Store) envOption {
	return func(_ *Config, d *Deps) { d.Store = store }
}

func withLLM(f *fakeLLM) envOption {
	return func(_ *Config, d *Deps) { d.LLM = f }
}

func withHours(open, close int) envOption {
	return func(c *Config, _ *Deps) {
		c.Hours = &OperatingHours{OpenHour: open, CloseHour: close, Location: time.UTC}
	}
}

func withAgents(agents ...model.Agent) envOption {
	return func(_ *Config, d *Deps) { d.Agents = agents }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	env := &testEnv{
		now:       &now,
		scheduler: &fakeScheduler{},
		store:     newMemoryStore(),
		publisher: &recordingPublisher{},
		notifier:  &recordingNotifier{},
	}
	cfg := Config{
		Clock:     func() time.Time { return *env.now },
		Scheduler: env.scheduler,
	}
	deps := Deps{
		Store:     env.store,
		Publisher: env.publisher,
		Notifier:  env.notifier,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	if f, ok := deps.LLM.(*fakeLLM); ok {
		env.llm = f
	}
	if g, ok := deps.Store.(*gatedStore); ok {
		env.store = g.memoryStore
	}
	env.engine = NewEngine(cfg, deps)
	t.Cleanup(env.engine.Shutdown)
	return env
}

var (
	alice    = model.Sender{ID: "cust-alice", DisplayName: "Alice", Role: model.RoleCustomer}
	agentBob = model.Sender{ID: "agent-bob", DisplayName: "Bob", Role: model.RoleAgent}
	agentCat = model.Sender{ID: "agent-cat", DisplayName: "Cat", Role: model.RoleAgent}
)

func mustCreate(t *testing.T, env *testEnv, text string) model.Conversation {
	t.Helper()
	conv, ok := env.engine.Create(context.Background(), alice.ID, alice.DisplayName, model.TextContent(text), nil)
	if !ok {
		t.Fatalf("create %q: rejected", text)
	}
	return conv
}

func mustGet(t *testing.T, env *testEnv, id string) model.Conversation {
	t.Helper()
	conv, ok := env.engine.Get(id)
	if !ok {
		t.Fatalf("conversation %s not found", id)
	}
	return conv
}

// waitFor polls cond until it holds or a second has passed.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func lastText(c model.Conversation) string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[len(c.Messages)-1].Content.Text
}

// seedConversation builds an open conversation whose customer messages carry
// the given timestamps.
func seedConversation(id string, stamps ...time.Time) model.Conversation {
	conv := model.Conversation{
		ID:           id,
		CustomerID:   alice.ID,
		CustomerName: alice.DisplayName,
		Status:       model.StatusOpen,
		CreatedAt:    stamps[0],
	}
	for i, ts := range stamps {
		conv.Messages = append(conv.Messages, model.Message{
			ID:             id + "-m" + string(rune('0'+i)),
			ConversationID: id,
			Sender:         alice,
			Content:        model.TextContent("message"),
			Timestamp:      ts,
			Visibility:     model.VisibilityPublic,
		})
	}
	return conv
}
