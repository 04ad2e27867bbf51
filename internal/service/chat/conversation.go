package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vetlink/companion/backend/internal/analysis/classify"
	"github.com/vetlink/companion/backend/internal/analysis/crisis"
	"github.com/vetlink/companion/backend/internal/analysis/sentiment"
	"github.com/vetlink/companion/backend/internal/model/chat"
	"github.com/vetlink/companion/backend/internal/model/profile"
	"github.com/vetlink/companion/backend/internal/model/role"
	"github.com/vetlink/companion/backend/internal/service/ai"
	"github.com/vetlink/companion/backend/internal/service/analytics"
	auditservice "github.com/vetlink/companion/backend/internal/service/audit"
	"github.com/vetlink/companion/backend/internal/service/escalation"
	"github.com/vetlink/companion/backend/internal/service/safety"
	"github.com/vetlink/companion/backend/internal/service/suggest"
)

// State is the lifecycle state of a conversation.
type State string

const (
	StateClosed            State = "CLOSED"
	StateInitializing      State = "INITIALIZING"
	StateReady             State = "READY"
	StateAwaitingResponse  State = "AWAITING_RESPONSE"
	StateEscalationOffered State = "ESCALATION_OFFERED"
)

// Fixed assistant texts used when no generated reply is shown.
const (
	ClarificationText = "Could you tell me a little more about what you need? You can also pick one of the options below."
	ApologyText       = "I'm sorry, I couldn't put together a response just now. Please try again in a moment, or choose one of the options below."
	HandoffText       = "Thank you. I've asked a member of our support team to reach out to you. " +
		"If you need help right away, the Veterans Crisis Line is available 24/7: dial 988 and press 1."
)

const (
	minInputRunes      = 3
	defaultPromptTurns = 5
	subscriberBuffer   = 32
)

// Escalation outcomes offered to the user.
const (
	OutcomeAccept  = "accept"
	OutcomeDecline = "decline"
)

// EventType names the kind of update a subscriber receives.
type EventType string

const (
	EventMessage           EventType = "message"
	EventSuggestions       EventType = "suggestions"
	EventState             EventType = "state"
	EventEscalationOffered EventType = "escalation_offered"
)

// EscalationOffer asks the user whether to hand off to a person.
type EscalationOffer struct {
	Reason   string   `json:"reason"`
	Outcomes []string `json:"outcomes"`
}

// Event is one update published to subscribers.
type Event struct {
	Type        EventType        `json:"type"`
	Message     *chat.Message    `json:"message,omitempty"`
	Suggestions []string         `json:"suggestions,omitempty"`
	State       State            `json:"state,omitempty"`
	Escalation  *EscalationOffer `json:"escalation,omitempty"`
}

// Snapshot is a read-only copy of the conversation for rendering.
type Snapshot struct {
	SessionID         string           `json:"sessionId"`
	RoleID            string           `json:"roleId"`
	UserID            string           `json:"userId,omitempty"`
	State             State            `json:"state"`
	IsOpen            bool             `json:"isOpen"`
	IsLoading         bool             `json:"isLoading"`
	Messages          []chat.Message   `json:"messages"`
	ActiveSuggestions []string         `json:"activeSuggestions"`
	PendingEscalation *EscalationOffer `json:"pendingEscalation,omitempty"`
}

// TranscriptSink mirrors transcript messages to durable storage.
type TranscriptSink interface {
	AppendMessage(ctx context.Context, msg chat.Message) error
}

// Deps are the collaborators shared by every conversation.
type Deps struct {
	Gateway     ai.Gateway
	Prompts     *ai.PromptManager
	Safety      *safety.Pipeline
	Suggestions *suggest.Engine
	Escalation  *escalation.Policy
	Profiles    profile.Store
	Analytics   analytics.Sink
	Transcript  TranscriptSink
	Dispatcher  safety.Submitter
	Logger      *zap.Logger
	Now         func() time.Time
	PromptTurns int
}

func (d Deps) withDefaults() Deps {
	if d.Gateway == nil {
		d.Gateway = ai.Unavailable{}
	}
	if d.Prompts == nil {
		d.Prompts = ai.NewPromptManager()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Safety == nil {
		d.Safety = safety.New(safety.Config{Logger: d.Logger, Now: d.Now})
	}
	if d.Suggestions == nil {
		d.Suggestions = suggest.New(0)
	}
	if d.Escalation == nil {
		d.Escalation = escalation.New(0)
	}
	if d.Analytics == nil {
		d.Analytics = analytics.Nop{}
	}
	if d.PromptTurns <= 0 {
		d.PromptTurns = defaultPromptTurns
	}
	return d
}

// Conversation owns the state of one chat session. All methods are safe for
// concurrent use; SendMessage is not reentrant and drops input while a reply
// is pending.
type Conversation struct {
	deps   Deps
	scorer *sentiment.Scorer
	logger *zap.Logger

	session chat.Session
	role    role.Role

	mu             sync.Mutex
	state          State
	profile        *profile.Profile
	messages       []chat.Message
	suggestions    []string
	offered        map[string]bool // escalation reasons already offered
	pending        *EscalationOffer
	openedRecorded bool
	subs           map[int]chan Event
	nextSub        int
}

// NewConversation creates a closed conversation; call Open before sending.
func NewConversation(session chat.Session, r role.Role, deps Deps) *Conversation {
	deps = deps.withDefaults()
	return &Conversation{
		deps:    deps,
		scorer:  deps.Safety.Scorer(),
		logger:  deps.Logger.Named("conversation").With(zap.String("session_id", session.ID), zap.String("role", r.ID)),
		session: session,
		role:    r,
		state:   StateClosed,
		offered: make(map[string]bool),
		subs:    make(map[int]chan Event),
	}
}

// Session returns the session this conversation belongs to.
func (c *Conversation) Session() chat.Session {
	return c.session
}

// Role returns the assistant role.
func (c *Conversation) Role() role.Role {
	return c.role
}

// Open loads the profile, seeds the welcome message and moves to READY.
// Opening an open conversation is a no-op.
func (c *Conversation) Open(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateClosed {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateInitializing)
	if c.subs == nil {
		c.subs = make(map[int]chan Event)
	}
	c.mu.Unlock()

	p := c.loadProfile(ctx)

	c.mu.Lock()
	c.profile = p
	if len(c.messages) == 0 {
		initial := c.deps.Suggestions.Suggest(nil, c.role)
		welcome := c.newMessageLocked(chat.SenderAssistant, welcomeText(c.role, p))
		welcome.Category = chat.CategoryGeneral
		applySentiment(&welcome, c.scorer.Analyze(welcome.Text))
		welcome.Suggestions = initial
		c.appendLocked(welcome)
		c.setSuggestionsLocked(initial)
	} else {
		c.setSuggestionsLocked(c.deps.Suggestions.Suggest(c.messages, c.role))
	}
	c.setStateLocked(StateReady)
	recordOpen := c.session.UserID != "" && !c.openedRecorded
	c.openedRecorded = c.openedRecorded || recordOpen
	c.mu.Unlock()

	if recordOpen {
		c.deps.Analytics.Record(analytics.EventChatOpened, c.attrs(nil))
	}
}

func (c *Conversation) loadProfile(ctx context.Context) (p *profile.Profile) {
	if c.session.UserID == "" || c.deps.Profiles == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("profile store panicked", zap.Any("panic", r))
			p = nil
		}
	}()

	p, err := c.deps.Profiles.GetProfile(ctx, c.session.UserID)
	if err != nil {
		c.logger.Warn("load profile failed", zap.Error(err))
		return nil
	}
	return p
}

// SendMessage runs one turn and returns the assistant reply. It returns false
// when the input is blank, the conversation is not open, or a reply is
// already pending.
func (c *Conversation) SendMessage(ctx context.Context, text string) (chat.Message, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return chat.Message{}, false
	}

	category := classify.Classify(trimmed)
	userSentiment := c.scorer.Analyze(trimmed)
	_, userCrisis := crisis.Match(trimmed)

	c.mu.Lock()
	if c.state != StateReady && c.state != StateEscalationOffered {
		state := c.state
		c.mu.Unlock()
		c.logger.Debug("dropping message", zap.String("state", string(state)))
		return chat.Message{}, false
	}

	userMsg := c.newMessageLocked(chat.SenderUser, trimmed)
	userMsg.Category = category
	userMsg.Crisis = userCrisis
	applySentiment(&userMsg, userSentiment)

	history := c.tailLocked(c.deps.PromptTurns)
	c.appendLocked(userMsg)
	c.setStateLocked(StateAwaitingResponse)
	p := c.profile
	c.mu.Unlock()

	c.deps.Analytics.Record(analytics.EventMessageSent, c.attrs(map[string]string{"category": string(category)}))

	reply, fallback, exchanged := c.respond(ctx, userMsg, history, p)

	c.mu.Lock()
	defer c.mu.Unlock()

	reply.ID = uuid.NewString()
	reply.SessionID = c.session.ID
	reply.Sender = chat.SenderAssistant
	reply.CreatedAt = c.nextTimeLocked()

	if c.state == StateClosed {
		c.logger.Debug("conversation closed while awaiting reply")
		c.persist(reply)
		return copyMessage(reply), true
	}

	withReply := append(append([]chat.Message(nil), c.messages...), reply)
	if fallback != nil {
		reply.Suggestions = fallback
	} else {
		reply.Suggestions = c.deps.Suggestions.Suggest(withReply, c.role)
	}

	// Clarifications and apologies are not exchanges and never escalate.
	var triggers []string
	if exchanged {
		triggers = c.deps.Escalation.Triggers(withReply)
	}
	if len(triggers) > 0 {
		reply.NeedsEscalation = true
		reply.EscalationReason = triggers[0]
	}

	c.appendLocked(reply)
	c.setSuggestionsLocked(reply.Suggestions)

	next := StateReady
	if c.pending != nil {
		next = StateEscalationOffered
	}
	if reason := c.nextOfferLocked(triggers); reason != "" {
		c.offered[reason] = true
		c.pending = &EscalationOffer{Reason: reason, Outcomes: []string{OutcomeAccept, OutcomeDecline}}
		next = StateEscalationOffered
		c.publishLocked(Event{Type: EventEscalationOffered, Escalation: copyOffer(c.pending)})
		c.deps.Analytics.Record(analytics.EventEscalationOffered, c.attrs(map[string]string{"reason": reason}))
	}
	c.setStateLocked(next)

	return copyMessage(reply), true
}

// nextOfferLocked picks the first triggered reason not yet offered. A declined
// reason stays quiet; a different one may still be offered.
func (c *Conversation) nextOfferLocked(triggers []string) string {
	if c.pending != nil {
		return ""
	}
	for _, reason := range triggers {
		if !c.offered[reason] {
			return reason
		}
	}
	return ""
}

// SelectSuggestion sends the chosen suggestion as the user's message.
func (c *Conversation) SelectSuggestion(ctx context.Context, text string) (chat.Message, bool) {
	return c.SendMessage(ctx, text)
}

// respond produces the assistant reply for userMsg. The returned message has
// its content and analysis fields set; identity and escalation fields are
// filled in by the caller. A non-nil fallback replaces the suggestion refresh.
// exchanged is false for clarifications and apologies.
func (c *Conversation) respond(ctx context.Context, userMsg chat.Message, history []chat.Message, p *profile.Profile) (reply chat.Message, fallback []string, exchanged bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("turn panicked", zap.Any("panic", r))
			reply, fallback, exchanged = c.apology(userMsg.Category), nil, false
		}
	}()

	if utf8.RuneCountInString(userMsg.Text) < minInputRunes {
		msg := chat.Message{Text: ClarificationText, Category: userMsg.Category}
		applySentiment(&msg, c.scorer.Analyze(msg.Text))
		return msg, c.deps.Suggestions.Fallback(p, c.role), false
	}

	if out, hit := c.deps.Safety.ScreenUserInput(ctx, userMsg.Text, c.session.UserID); hit {
		c.deps.Analytics.Record(analytics.EventCrisisDetected, c.attrs(map[string]string{"family": string(out.CrisisFamily), "source": "user"}))
		return outcomeMessage(out, userMsg.Category), nil, true
	}

	var text string
	if userMsg.Category == chat.CategoryResume {
		text = resumeSummary(p)
	} else {
		system := c.deps.Prompts.BuildSystemPrompt(c.role, p, userMsg.Category)
		generated, err := c.generate(ctx, system, history, userMsg.Text)
		if err != nil {
			c.logger.Warn("generation failed", zap.Error(err))
			c.deps.Analytics.Record(analytics.EventGatewayFailed, c.attrs(nil))
			return c.apology(userMsg.Category), nil, false
		}
		text = generated
	}

	out := c.deps.Safety.Review(ctx, safety.Input{
		Reply:         text,
		AssistantType: c.role.ID,
		UserID:        c.session.UserID,
	})
	switch {
	case out.Crisis:
		c.deps.Analytics.Record(analytics.EventCrisisDetected, c.attrs(map[string]string{"family": string(out.CrisisFamily), "source": "reply"}))
	case out.Flagged:
		c.deps.Analytics.Record(analytics.EventReplyFlagged, c.attrs(map[string]string{"sentiment": string(out.Sentiment.Sentiment)}))
	}
	return outcomeMessage(out, userMsg.Category), nil, true
}

func (c *Conversation) generate(ctx context.Context, system string, history []chat.Message, text string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("gateway panicked: %v", r)
		}
	}()
	return c.deps.Gateway.Generate(ctx, system, history, text)
}

func (c *Conversation) apology(category chat.Category) chat.Message {
	msg := chat.Message{Text: ApologyText, Category: category}
	applySentiment(&msg, c.scorer.Analyze(msg.Text))
	return msg
}

// RespondToEscalation resolves a pending escalation offer. It returns false
// when no offer is pending.
func (c *Conversation) RespondToEscalation(ctx context.Context, accept bool) (chat.Message, bool) {
	c.mu.Lock()
	if c.pending == nil || c.state == StateClosed {
		c.mu.Unlock()
		return chat.Message{}, false
	}
	reason := c.pending.Reason
	c.pending = nil

	var ack chat.Message
	if accept {
		ack = c.newMessageLocked(chat.SenderAssistant, HandoffText)
		ack.Category = chat.CategoryGeneral
		applySentiment(&ack, c.scorer.Analyze(ack.Text))
		ack.Suggestions = append([]string(nil), c.suggestions...)
		c.appendLocked(ack)
	}
	if c.state != StateAwaitingResponse {
		c.setStateLocked(StateReady)
	}
	c.mu.Unlock()

	attrs := c.attrs(map[string]string{"reason": reason})
	if !accept {
		c.deps.Analytics.Record(analytics.EventEscalationDeclined, attrs)
		return chat.Message{}, true
	}

	c.deps.Analytics.Record(analytics.EventEscalationAccepted, attrs)
	if userID := c.session.UserID; userID != "" && c.deps.Profiles != nil && c.deps.Dispatcher != nil {
		at := c.deps.Now()
		profiles := c.deps.Profiles
		c.deps.Dispatcher.Submit(auditservice.Job{
			Key:  "handoff:" + ack.ID,
			Kind: "urgent_outreach",
			Run: func(ctx context.Context) error {
				return profiles.MarkUrgentOutreach(ctx, userID, at)
			},
		})
	}
	return copyMessage(ack), true
}

// Close detaches subscribers and stops accepting input. Background writes
// already dispatched keep running.
func (c *Conversation) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}

// Snapshot returns a copy of the current conversation state.
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	messages := make([]chat.Message, len(c.messages))
	for i, m := range c.messages {
		messages[i] = copyMessage(m)
	}
	return Snapshot{
		SessionID:         c.session.ID,
		RoleID:            c.role.ID,
		UserID:            c.session.UserID,
		State:             c.state,
		IsOpen:            c.state != StateClosed,
		IsLoading:         c.state == StateAwaitingResponse,
		Messages:          messages,
		ActiveSuggestions: append([]string{}, c.suggestions...),
		PendingEscalation: copyOffer(c.pending),
	}
}

// Subscribe streams conversation events. Slow subscribers miss events rather
// than block the turn. The returned function unsubscribes.
func (c *Conversation) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if c.state == StateClosed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				close(sub)
				delete(c.subs, id)
			}
		})
	}
}

func (c *Conversation) publishLocked(ev Event) {
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.logger.Debug("subscriber lagging, dropping event", zap.String("type", string(ev.Type)))
		}
	}
}

func (c *Conversation) setStateLocked(s State) {
	c.state = s
	c.publishLocked(Event{Type: EventState, State: s})
}

func (c *Conversation) setSuggestionsLocked(s []string) {
	c.suggestions = append([]string(nil), s...)
	c.publishLocked(Event{Type: EventSuggestions, Suggestions: append([]string(nil), s...)})
}

func (c *Conversation) appendLocked(m chat.Message) {
	c.messages = append(c.messages, m)
	published := copyMessage(m)
	c.publishLocked(Event{Type: EventMessage, Message: &published})
	c.persist(m)
}

// persist mirrors m to the transcript store in the background.
func (c *Conversation) persist(m chat.Message) {
	if c.deps.Transcript == nil || c.deps.Dispatcher == nil {
		return
	}
	sink := c.deps.Transcript
	msg := copyMessage(m)
	c.deps.Dispatcher.Submit(auditservice.Job{
		Key:  "msg:" + msg.ID,
		Kind: "transcript",
		Run: func(ctx context.Context) error {
			return sink.AppendMessage(ctx, msg)
		},
	})
}

func (c *Conversation) newMessageLocked(sender chat.Sender, text string) chat.Message {
	return chat.Message{
		ID:        uuid.NewString(),
		SessionID: c.session.ID,
		Text:      text,
		Sender:    sender,
		CreatedAt: c.nextTimeLocked(),
	}
}

// nextTimeLocked returns a timestamp strictly after the last message so the
// transcript order survives a round trip through storage.
func (c *Conversation) nextTimeLocked() time.Time {
	now := c.deps.Now().UTC()
	if n := len(c.messages); n > 0 {
		if last := c.messages[n-1].CreatedAt; !now.After(last) {
			now = last.Add(time.Nanosecond)
		}
	}
	return now
}

func (c *Conversation) tailLocked(n int) []chat.Message {
	start := 0
	if len(c.messages) > n {
		start = len(c.messages) - n
	}
	out := make([]chat.Message, len(c.messages)-start)
	copy(out, c.messages[start:])
	return out
}

func (c *Conversation) attrs(extra map[string]string) map[string]string {
	out := map[string]string{
		"session_id": c.session.ID,
		"role":       c.role.ID,
	}
	if c.session.UserID != "" {
		out["user_id"] = c.session.UserID
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func applySentiment(m *chat.Message, r sentiment.Result) {
	m.Sentiment = r.Sentiment
	m.SentimentScore = r.Score
	m.Confidence = r.Confidence
}

func outcomeMessage(out safety.Outcome, category chat.Category) chat.Message {
	msg := chat.Message{
		Text:     out.Text,
		Category: category,
		Flagged:  out.Flagged,
		Crisis:   out.Crisis,
		Replaced: out.Replaced,
	}
	applySentiment(&msg, out.Sentiment)
	return msg
}

func welcomeText(r role.Role, p *profile.Profile) string {
	welcome := r.Welcome
	if welcome == "" {
		welcome = "Hello! How can I help you today?"
	}
	if p != nil && p.FirstName != "" {
		return "Hi " + p.FirstName + ". " + welcome
	}
	return welcome
}

func copyMessage(m chat.Message) chat.Message {
	m.Suggestions = append([]string(nil), m.Suggestions...)
	return m
}

func copyOffer(o *EscalationOffer) *EscalationOffer {
	if o == nil {
		return nil
	}
	return &EscalationOffer{Reason: o.Reason, Outcomes: append([]string(nil), o.Outcomes...)}
}
