package safety

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vetlink/companion/backend/internal/analysis/crisis"
	"github.com/vetlink/companion/backend/internal/analysis/sentiment"
	auditmodel "github.com/vetlink/companion/backend/internal/model/audit"
	"github.com/vetlink/companion/backend/internal/model/chat"
	auditservice "github.com/vetlink/companion/backend/internal/service/audit"
)

// CrisisMessage replaces any reply, or answers any user message, that
// contains crisis language.
const CrisisMessage = "I'm really concerned about what you've shared, and you don't have to face this alone. " +
	"If you are in immediate danger, call 911. You can reach the Veterans Crisis Line any time: " +
	"dial 988 and press 1, text 838255, or chat online at VeteransCrisisLine.net. " +
	"I can also connect you with a member of our team."

// EmpatheticFallback replaces replies that score confidently negative.
const EmpatheticFallback = "I hear you, and I'm sorry things have been this hard. " +
	"We can take this one step at a time. I can point you to people and programs that can help, " +
	"or connect you with a member of our team."

// DefaultReplaceConfidence is the confidence above which a negative reply is
// replaced.
const DefaultReplaceConfidence = 0.8

// Sink durably stores review records.
type Sink interface {
	AppendFlag(ctx context.Context, entry auditmodel.FlaggedEntry) error
	AppendCrisisAlert(ctx context.Context, alert auditmodel.CrisisAlert) error
}

// OutreachMarker records that a user needs urgent human follow-up.
type OutreachMarker interface {
	MarkUrgentOutreach(ctx context.Context, userID string, at time.Time) error
}

// Submitter schedules background writes.
type Submitter interface {
	Submit(job auditservice.Job) bool
}

// Input is one assistant reply to review.
type Input struct {
	Reply         string
	AssistantType string
	UserID        string
}

// Outcome is the text to show and how it was judged.
type Outcome struct {
	Text         string
	Flagged      bool
	Crisis       bool
	Replaced     bool
	CrisisFamily crisis.Family
	Sentiment    sentiment.Result
}

// Config wires a Pipeline. Sink, Outreach and Dispatcher are optional; without
// a Dispatcher no durable writes are made.
type Config struct {
	Scorer            *sentiment.Scorer
	Buffer            *auditservice.Buffer
	Sink              Sink
	Outreach          OutreachMarker
	Dispatcher        Submitter
	Logger            *zap.Logger
	Now               func() time.Time
	ReplaceConfidence float64
}

// Pipeline reviews generated replies before they reach the user.
type Pipeline struct {
	scorer            *sentiment.Scorer
	buffer            *auditservice.Buffer
	sink              Sink
	outreach          OutreachMarker
	dispatcher        Submitter
	logger            *zap.Logger
	now               func() time.Time
	replaceConfidence float64
}

// New builds a Pipeline from cfg.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		scorer:            cfg.Scorer,
		buffer:            cfg.Buffer,
		sink:              cfg.Sink,
		outreach:          cfg.Outreach,
		dispatcher:        cfg.Dispatcher,
		logger:            cfg.Logger,
		now:               cfg.Now,
		replaceConfidence: cfg.ReplaceConfidence,
	}
	if p.scorer == nil {
		p.scorer = sentiment.New(sentiment.Options{})
	}
	if p.buffer == nil {
		p.buffer = auditservice.NewBuffer(auditservice.DefaultBufferSize)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	p.logger = p.logger.Named("safety")
	if p.now == nil {
		p.now = time.Now
	}
	if p.replaceConfidence <= 0 {
		p.replaceConfidence = DefaultReplaceConfidence
	}
	return p
}

// Buffer returns the flag buffer the pipeline appends to.
func (p *Pipeline) Buffer() *auditservice.Buffer {
	return p.buffer
}

// Scorer returns the sentiment scorer in use.
func (p *Pipeline) Scorer() *sentiment.Scorer {
	return p.scorer
}

// Review scores a reply and decides what the user sees. Persistence happens in
// the background and never changes the outcome.
func (p *Pipeline) Review(ctx context.Context, in Input) Outcome {
	result := p.scorer.Analyze(in.Reply)

	if family, ok := crisis.Match(in.Reply); ok {
		p.raiseCrisis(ctx, in.Reply, in.UserID, family)
		return Outcome{
			Text:         CrisisMessage,
			Flagged:      true,
			Crisis:       true,
			Replaced:     true,
			CrisisFamily: family,
			Sentiment:    result,
		}
	}

	flagged := result.Sentiment != chat.SentimentPositive
	if flagged {
		p.flag(in, result)
	}

	if result.Sentiment == chat.SentimentNegative && result.Confidence > p.replaceConfidence {
		p.logger.Info("replacing negative reply",
			zap.String("assistant_type", in.AssistantType),
			zap.Float64("score", result.Score),
			zap.Float64("confidence", result.Confidence),
		)
		return Outcome{Text: EmpatheticFallback, Flagged: true, Replaced: true, Sentiment: result}
	}

	return Outcome{Text: in.Reply, Flagged: flagged, Sentiment: result}
}

// ScreenUserInput checks the user's own message for crisis language. When it
// matches, the crisis alert is raised and the crisis outcome is returned.
func (p *Pipeline) ScreenUserInput(ctx context.Context, text, userID string) (Outcome, bool) {
	family, ok := crisis.Match(text)
	if !ok {
		return Outcome{}, false
	}
	p.raiseCrisis(ctx, text, userID, family)
	return Outcome{
		Text:         CrisisMessage,
		Flagged:      true,
		Crisis:       true,
		Replaced:     true,
		CrisisFamily: family,
		Sentiment:    p.scorer.Analyze(CrisisMessage),
	}, true
}

func (p *Pipeline) raiseCrisis(_ context.Context, text, userID string, family crisis.Family) {
	at := p.now()
	alert := auditmodel.NewCrisisAlert(text, at, userID)

	p.logger.Warn("crisis language detected",
		zap.String("alert_id", alert.ID),
		zap.String("family", string(family)),
		zap.String("user_id", userID),
	)

	if p.sink != nil {
		p.submit(auditservice.Job{
			Key:  "crisis:" + alert.ID,
			Kind: "crisis_alert",
			Run: func(ctx context.Context) error {
				return p.sink.AppendCrisisAlert(ctx, alert)
			},
		})
	}

	if userID != "" && p.outreach != nil {
		p.submit(auditservice.Job{
			Key:  "outreach:" + alert.ID,
			Kind: "urgent_outreach",
			Run: func(ctx context.Context) error {
				return p.outreach.MarkUrgentOutreach(ctx, userID, at)
			},
		})
	}
}

func (p *Pipeline) flag(in Input, result sentiment.Result) {
	entry := auditmodel.NewFlaggedEntry(in.Reply, auditmodel.SentimentSnapshot{
		Sentiment:  result.Sentiment,
		Score:      result.Score,
		Confidence: result.Confidence,
	}, p.now(), in.UserID, in.AssistantType)

	p.buffer.Append(entry)

	if p.sink == nil {
		return
	}
	p.submit(auditservice.Job{
		Key:  "flag:" + entry.ID,
		Kind: "flagged_reply",
		Run: func(ctx context.Context) error {
			return p.sink.AppendFlag(ctx, entry)
		},
	})
}

func (p *Pipeline) submit(job auditservice.Job) {
	if p.dispatcher == nil {
		p.logger.Debug("no dispatcher configured, skipping durable write", zap.String("kind", job.Kind))
		return
	}
	p.dispatcher.Submit(job)
}
