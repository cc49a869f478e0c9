package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hupe1980/vizier/core"
	"github.com/hupe1980/vizier/internal/prompt"
	"github.com/hupe1980/vizier/logging"
	"github.com/hupe1980/vizier/model"
)

// DefaultInstruction is the system prompt used when Options.Instruction is empty.
const DefaultInstruction = "You are Vizier, a helpful assistant taking part in a conversation. " +
	"User messages are prefixed with the sender's name. Reply to the latest message."

// DefaultSummaryPrompt asks the model to condense the recall window.
const DefaultSummaryPrompt = "Provided below is our recent conversation. " +
	"Summarize it, make it as concise as possible, yet maintain clarity and avoid information loss as much as possible."

// Options configures a ModelEngine.
type Options struct {
	// Instruction is the system prompt for chats. It may be a text/template
	// over InstructionData.
	Instruction string

	// SummaryPrompt prefixes the transcript handed to the model when summarizing.
	SummaryPrompt string

	// MaxRetries bounds retries of a failed provider call. Default 2.
	MaxRetries uint64

	// InitialBackoff is the first retry delay. Default 500ms.
	InitialBackoff time.Duration

	// Callbacks run around every provider attempt.
	Callbacks *CallbackManager

	Logger logging.Logger
}

// InstructionData is the template data for Options.Instruction.
type InstructionData struct {
	Session string
	Channel string
	Sender  string
	Now     time.Time
}

// ModelEngine adapts a model.Model to core.CompletionEngine and core.Summarizer.
type ModelEngine struct {
	model          model.Model
	instruction    string
	summaryPrompt  string
	maxRetries     uint64
	initialBackoff time.Duration
	callbacks      *CallbackManager
	logger         logging.Logger
}

var (
	_ core.CompletionEngine = (*ModelEngine)(nil)
	_ core.Summarizer       = (*ModelEngine)(nil)
)

// New returns a ModelEngine driving m.
func New(m model.Model, optFns ...func(o *Options)) *ModelEngine {
	opts := Options{
		Instruction:    DefaultInstruction,
		SummaryPrompt:  DefaultSummaryPrompt,
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Instruction == "" {
		opts.Instruction = DefaultInstruction
	}

	if opts.SummaryPrompt == "" {
		opts.SummaryPrompt = DefaultSummaryPrompt
	}

	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}

	return &ModelEngine{
		model:          m,
		instruction:    opts.Instruction,
		summaryPrompt:  opts.SummaryPrompt,
		maxRetries:     opts.MaxRetries,
		initialBackoff: opts.InitialBackoff,
		callbacks:      opts.Callbacks,
		logger:         logging.OrNoOp(opts.Logger),
	}
}

// Info describes the underlying model.
func (e *ModelEngine) Info() model.Info { return e.model.Info() }

// Chat renders the session context as a chat transcript and returns the
// model's reply as generated. Reasoning preambles are removed by the session
// registry.
func (e *ModelEngine) Chat(ctx context.Context, sc core.SessionContext, req core.Request) (string, error) {
	recall := sc.Recall
	if n := len(recall); n == 0 || recall[n-1].IsAgent || recall[n-1].Content != req.Content {
		recall = append(recall[:n:n], core.Memory{Sender: req.Sender, Content: req.Content, At: req.ReceivedAt})
	}

	mreq := model.Request{
		Instructions: withSummary(e.renderInstruction(sc.Session, req.Sender), sc.Summary),
		Messages:     renderMessages(recall),
	}

	resp, err := e.generate(ctx, sc.Session, "chat", mreq)
	if err != nil {
		return "", err
	}

	return resp.Text, nil
}

// Summarize condenses the recall window, folding in any previous summary.
func (e *ModelEngine) Summarize(ctx context.Context, sc core.SessionContext) (string, error) {
	var b strings.Builder

	b.WriteString(e.summaryPrompt)
	b.WriteString("\n\n")

	if sc.Summary != "" {
		fmt.Fprintf(&b, "Earlier context: %s\n\n", sc.Summary)
	}

	for _, m := range sc.Recall {
		fmt.Fprintf(&b, "- %s: %q\n", m.Sender, m.Content)
	}

	mreq := model.Request{
		Instructions: e.renderInstruction(sc.Session, ""),
		Messages:     []model.Message{{Role: model.RoleUser, Content: b.String()}},
	}

	resp, err := e.generate(ctx, sc.Session, "summarize", mreq)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(resp.Text), nil
}

// generate calls the model, retrying transient failures with exponential
// backoff. Context errors are not retried.
func (e *ModelEngine) generate(ctx context.Context, id core.SessionID, purpose string, req model.Request) (model.Response, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = e.initialBackoff
	exp.MaxElapsedTime = 0

	var (
		resp    model.Response
		attempt int
	)

	op := func() error {
		attempt++

		cc := &CallbackContext{Session: id, Purpose: purpose, Attempt: attempt, Request: &req}
		if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeModel, cc); err != nil {
			return backoff.Permanent(err)
		}

		r, err := model.Collect(ctx, e.model, req)
		if err != nil {
			cc.Err = err
			_ = e.callbacks.ExecuteCallbacks(ctx, CallbackOnError, cc)

			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(err)
			}

			e.logger.Debug("Model call failed", "session", id.String(), "purpose", purpose, "attempt", attempt, "error", err)

			return err
		}

		cc.Response = &r
		if err := e.callbacks.ExecuteCallbacks(ctx, CallbackAfterModel, cc); err != nil {
			return backoff.Permanent(err)
		}

		resp = *cc.Response

		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(exp, e.maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		info := e.model.Info()
		return model.Response{}, fmt.Errorf("%s/%s after %d attempt(s): %w", info.Provider, info.Name, attempt, err)
	}

	return resp, nil
}

func (e *ModelEngine) renderInstruction(id core.SessionID, sender string) string {
	text, err := prompt.Render(e.instruction, InstructionData{
		Session: id.String(),
		Channel: string(id.Kind),
		Sender:  sender,
		Now:     time.Now(),
	})
	if err != nil {
		e.logger.Warn("Instruction template failed, using raw text", "session", id.String(), "error", err)
		return e.instruction
	}

	return text
}

// withSummary appends the rolling summary to the instruction as session context.
func withSummary(instruction, summary string) string {
	if summary == "" {
		return instruction
	}

	return fmt.Sprintf("%s\n\n## Context\n\nContext for our current session: %s", instruction, summary)
}

// renderMessages maps recall entries to chat turns. User turns carry the
// sender's name so the model can tell participants apart.
func renderMessages(recall []core.Memory) []model.Message {
	msgs := make([]model.Message, 0, len(recall))

	for _, m := range recall {
		if m.IsAgent {
			msgs = append(msgs, model.Message{Role: model.RoleAssistant, Content: m.Content})
			continue
		}

		content := m.Content
		if m.Sender != "" {
			content = m.Sender + ": " + m.Content
		}

		msgs = append(msgs, model.Message{Role: model.RoleUser, Content: content})
	}

	return msgs
}
