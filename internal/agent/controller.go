// Package agent implements the core agent loop: assemble context,
// invoke the model with the tool schemas, dispatch requested tools,
// and finalize the answer.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fitstack/coach/internal/gateway"
	"github.com/fitstack/coach/internal/identity"
	"github.com/fitstack/coach/internal/llm"
	"github.com/fitstack/coach/internal/memory"
	"github.com/fitstack/coach/internal/observability"
	"github.com/fitstack/coach/internal/tools"
	"github.com/fitstack/coach/internal/usage"
)

// ErrLoopExceeded fails a turn whose model kept requesting tools
// past the round limit.
var ErrLoopExceeded = errors.New("agent loop exceeded maximum rounds")

// apologyMessage is what the user sees when a turn fails in a way
// they cannot act on.
const apologyMessage = "Sorry, I wasn't able to finish working on that. Please try asking again."

// Options tunes the controller.
type Options struct {
	MaxRounds   int
	TurnTimeout time.Duration
}

// Controller is the top-level per-turn orchestrator.
type Controller struct {
	llm      llm.ChatClient
	memory   *memory.Manager
	registry *tools.Registry
	logger   *slog.Logger
	metrics  *observability.Metrics
	opts     Options
	locks    *userLocks
	tracker  *usage.Tracker
	now      func() time.Time
}

func NewController(client llm.ChatClient, mem *memory.Manager, registry *tools.Registry, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 5
	}
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = 60 * time.Second
	}
	return &Controller{
		llm:      client,
		memory:   mem,
		registry: registry,
		logger:   logger.With("component", "agent"),
		metrics:  metrics,
		opts:     opts,
		locks:    newUserLocks(),
		now:      time.Now,
	}
}

// SetUsageTracker enables token usage accounting for model calls.
func (c *Controller) SetUsageTracker(t *usage.Tracker) { c.tracker = t }

// HandleTurn runs one conversation turn for the user and returns the
// final answer. Turns for the same user are serialized; turns for
// different users run fully in parallel. When the round limit is hit
// the returned answer is a generic apology and the error is
// ErrLoopExceeded.
func (c *Controller) HandleTurn(ctx context.Context, user identity.UserHash, message string) (string, error) {
	// The boundary must hand us a derived hash, never a raw token.
	if !user.Valid() {
		return "", fmt.Errorf("malformed user hash %q", user.Short())
	}

	release := c.locks.acquire(user)
	defer release()

	ctx, cancel := context.WithTimeout(ctx, c.opts.TurnTimeout)
	defer cancel()

	start := c.now()
	answer, rounds, err := c.runTurn(ctx, user, message)
	outcome := "ok"
	switch {
	case errors.Is(err, ErrLoopExceeded):
		outcome = "loop_exceeded"
	case err != nil:
		outcome = "error"
	}
	c.metrics.ObserveTurn(c.now().Sub(start), outcome, rounds)
	c.logger.Info("turn finished",
		"user", user.Short(), "outcome", outcome, "rounds", rounds,
		"duration", c.now().Sub(start).Round(time.Millisecond))
	return answer, err
}

func (c *Controller) runTurn(ctx context.Context, user identity.UserHash, message string) (string, int, error) {
	entries := c.memory.AssembleContext(ctx, user, message)
	c.logger.Debug("context assembled", "user", user.Short(), "entries", len(entries))

	messages := []llm.Message{
		{Role: "system", Content: buildSystemPrompt(entries)},
		{Role: "user", Content: message},
	}
	schemas := c.registry.List()

	rounds := 0
	for rounds < c.opts.MaxRounds {
		resp, err := c.llm.Chat(ctx, messages, schemas)
		rounds++
		if err != nil {
			return apologyMessage, rounds, fmt.Errorf("model call: %w", err)
		}
		if c.tracker != nil {
			c.tracker.Add(usage.Record{
				Timestamp:    c.now(),
				Model:        resp.Model,
				InputTokens:  resp.InputTokens,
				OutputTokens: resp.OutputTokens,
			})
		}
		messages = append(messages, resp.Message)

		if len(resp.Message.ToolCalls) == 0 {
			answer := resp.Message.Content
			// Persistence survives caller disconnects so the two
			// tiers are not left half-written.
			persistCtx := context.WithoutCancel(ctx)
			c.memory.PersistTurn(persistCtx, user, "user", message)
			c.memory.PersistTurn(persistCtx, user, "assistant", answer)
			return answer, rounds, nil
		}

		messages = append(messages, c.dispatch(ctx, user, resp.Message.ToolCalls)...)
	}

	c.logger.Warn("round limit reached", "user", user.Short(), "rounds", rounds)
	return apologyMessage, rounds, ErrLoopExceeded
}

// dispatch executes all tool calls from one model round concurrently
// and returns their result messages in call order. Failures become
// structured tool-error payloads for the model, never raw errors to
// the user.
func (c *Controller) dispatch(ctx context.Context, user identity.UserHash, calls []llm.ToolCall) []llm.Message {
	// Once dispatched, tool calls run to completion even if the
	// caller disconnects; only the turn deadline still applies.
	toolCtx := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		toolCtx, cancel = context.WithDeadline(toolCtx, deadline)
		defer cancel()
	}

	results := make([]llm.Message, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			results[i] = c.executeCall(toolCtx, user, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

func (c *Controller) executeCall(ctx context.Context, user identity.UserHash, call llm.ToolCall) llm.Message {
	out, err := c.registry.Execute(ctx, call.Name, call.Arguments)
	msg := llm.Message{Role: "tool", ToolCallID: call.ID, Name: call.Name}
	if err == nil {
		c.metrics.RecordToolCall(call.Name, "ok")
		msg.Content = out
		return msg
	}

	kind := classifyToolError(err)
	c.metrics.RecordToolCall(call.Name, kind)
	c.logger.Warn("tool call failed",
		"user", user.Short(), "tool", call.Name, "kind", kind, "error", err)

	payload, _ := json.Marshal(map[string]string{
		"error":   kind,
		"message": err.Error(),
	})
	msg.Content = string(payload)
	return msg
}

func classifyToolError(err error) string {
	var verr *tools.ValidationError
	var open *gateway.CircuitOpenError
	var serr *gateway.ServiceError
	switch {
	case errors.As(err, &verr):
		return "validation_error"
	case errors.As(err, &open):
		return "circuit_open"
	case errors.As(err, &serr):
		return "external_service_error"
	default:
		return "tool_error"
	}
}

// DeleteUser erases all stored memory for the user.
func (c *Controller) DeleteUser(ctx context.Context, user identity.UserHash) error {
	if !user.Valid() {
		return fmt.Errorf("malformed user hash %q", user.Short())
	}

	release := c.locks.acquire(user)
	defer release()
	return c.memory.DeleteUser(ctx, user)
}
