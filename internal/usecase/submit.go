package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"hta-chat/internal/domain"
)

const defaultGenerateTimeout = 60 * time.Second

// GenerationService produces the next assistant reply from conversation
// context.
type GenerationService interface {
	// CheckCredential fails with domain.ErrMissingCredential, without any
	// network call to the provider, when no API key is available.
	CheckCredential(ctx context.Context) error
	// AssistantRole is the provider's name for model-authored turns.
	AssistantRole() string
	Generate(ctx context.Context, req domain.GenerationRequest) (string, error)
}

// Orchestrator turns a session history plus one new user text into the
// assistant message to append. Provider failures become assistant messages;
// they are never returned as errors.
type Orchestrator struct {
	gen     GenerationService
	timeout time.Duration
	logger  *slog.Logger
	flights *flightGate
}

type OrchestratorOption func(*Orchestrator)

func WithGenerateTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithOrchestratorLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator builds an Orchestrator. A nil gen is allowed: every
// submission then yields the configuration-error message.
func NewOrchestrator(gen GenerationService, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		gen:     gen,
		timeout: defaultGenerateTimeout,
		logger:  slog.Default(),
		flights: newFlightGate(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit asks the Generation Service for a reply to text given history,
// which must not include text itself. It returns ErrEmptyInput for blank
// text and ErrSessionBusy when another submission for sessionID is in
// flight; every other outcome is an assistant message. An empty sessionID
// names an unsaved session and is never gated.
func (o *Orchestrator) Submit(ctx context.Context, sessionID string, history []domain.Message, text string) (domain.Message, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Message{}, ErrEmptyInput
	}
	if sessionID != "" {
		release, ok := o.flights.tryAcquire(sessionID)
		if !ok {
			return domain.Message{}, ErrSessionBusy
		}
		defer release()
	}

	log := o.logger.With("session_id", sessionID)

	if o.gen == nil {
		log.Warn("generation service not configured")
		return failureMessage(domain.ErrMissingCredential), nil
	}
	if err := o.gen.CheckCredential(ctx); err != nil {
		log.Warn("generation credential unavailable", "err", err)
		return failureMessage(err), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	reply, err := o.gen.Generate(callCtx, buildGenerationRequest(history, text, o.gen.AssistantRole()))
	if err != nil {
		log.Error("generation failed", "category", string(classifyFailure(err)), "err", err)
		return failureMessage(err), nil
	}
	return domain.AssistantMessage(reply), nil
}

// Busy reports whether a submission for sessionID is in flight.
func (o *Orchestrator) Busy(sessionID string) bool {
	return o.flights.isBusy(sessionID)
}
