package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kaiwa-ai/kaiwa/internal/config"
	"github.com/kaiwa-ai/kaiwa/internal/gateway"
	"github.com/kaiwa-ai/kaiwa/internal/memory"
	"github.com/kaiwa-ai/kaiwa/internal/observability"
	"github.com/kaiwa-ai/kaiwa/internal/store"
	"github.com/kaiwa-ai/kaiwa/internal/tools"
	"github.com/kaiwa-ai/kaiwa/internal/usage"
)

// ErrEmptyMessage rejects turns with no user utterance.
var ErrEmptyMessage = errors.New("message is required")

// Well-known tool ids expected in the registry.
const (
	toolAvatarAction   = "avatar_action"
	toolSuggestReplies = "suggest_replies"
	toolSummarizeState = "summarize_state"
	toolSticker        = "sticker_picker"
)

const memoryTopK = 5

// PersonaLoader resolves persona ids to persona documents.
type PersonaLoader interface {
	Get(id string) (*config.Persona, error)
}

// Observer is an optional post-turn hook (persona evolution, analytics).
// It runs after the response is assembled; errors are logged, not
// surfaced to the caller.
type Observer interface {
	AfterTurn(ctx context.Context, req *Request, resp *Response) error
}

// Config wires an Orchestrator. Monitor, Metrics, and Observer may be
// nil; Planner empty disables the planning pass.
type Config struct {
	Gateway  *gateway.Gateway
	Memory   *memory.Service
	Tools    *tools.Runner
	Personas PersonaLoader
	Monitor  *usage.Monitor
	Metrics  *observability.Metrics
	Observer Observer

	Model   string
	Planner string

	Logger *slog.Logger
}

// Orchestrator runs the turn state machine. Construct once; safe for
// concurrent use. Turns for the same session are serialized.
type Orchestrator struct {
	gateway  *gateway.Gateway
	memory   *memory.Service
	tools    *tools.Runner
	personas PersonaLoader
	monitor  *usage.Monitor
	metrics  *observability.Metrics
	observer Observer

	model   string
	planner string

	locker     *sessionLocker
	chunkWords int
	chunkDelay time.Duration
	logger     *slog.Logger
}

// New builds an Orchestrator from its collaborators.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		gateway:    cfg.Gateway,
		memory:     cfg.Memory,
		tools:      cfg.Tools,
		personas:   cfg.Personas,
		monitor:    cfg.Monitor,
		metrics:    cfg.Metrics,
		observer:   cfg.Observer,
		model:      cfg.Model,
		planner:    cfg.Planner,
		locker:     newSessionLocker(),
		chunkWords: 5,
		chunkDelay: 30 * time.Millisecond,
		logger:     logger.With("component", "dialogue"),
	}
}

// Process runs one complete turn and returns the structured result.
// A gateway failure is fatal to the turn; memory fetch and tool
// failures degrade in-band.
func (o *Orchestrator) Process(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || req.Message == "" {
		return nil, ErrEmptyMessage
	}
	start := time.Now()

	persona, err := o.personas.Get(req.PersonaID)
	if err != nil {
		return nil, fmt.Errorf("load persona: %w", err)
	}

	unlock := o.locker.lock(req.SessionID)
	defer unlock()

	memories := o.fetchMemories(ctx, req)
	history := o.fetchHistory(ctx, req)
	plan := o.planTurn(ctx, req, memories, history)

	system := composeSystem(persona.SystemPrompt(), plan, persona.Behavior.Emoji)
	prompt := composePrompt(memories, history, req.Message)

	genStart := time.Now()
	result, err := o.gateway.Generate(ctx, o.model, prompt, &gateway.GenerateOptions{System: system})
	genDuration := time.Since(genStart)
	if err != nil {
		o.observeModelRequest("error", genDuration)
		o.observeTurn("error", time.Since(start))
		return nil, fmt.Errorf("generate reply: %w", err)
	}
	o.observeModelRequest("success", genDuration)

	stats := o.recordUsage(ctx, req, result, genDuration)

	reply, outcomes, err := o.runToolPhase(ctx, req, persona, result)
	if err != nil {
		o.observeTurn("error", time.Since(start))
		return nil, err
	}

	if !req.MemoryBarrier() {
		if err := o.persistTurn(ctx, req, reply, plan); err != nil {
			o.observeTurn("error", time.Since(start))
			return nil, err
		}
	}

	resp := &Response{
		Reply:     reply,
		SessionID: req.SessionID,
		PersonaID: persona.ID,
		Memories:  memoryContents(memories),
		Plan:      plan,
		Tools:     outcomes,
		Stats:     stats,
	}

	o.observeTurn("success", time.Since(start))

	if o.observer != nil {
		if err := o.observer.AfterTurn(ctx, req, resp); err != nil {
			o.logger.Warn("post-turn observer failed", "error", err)
		}
	}
	return resp, nil
}

// Stream runs one turn and emits the reply as word chunks followed by a
// done frame. The completion is generated in one call; chunking is a
// delivery affordance, and persistence happens before the first chunk.
func (o *Orchestrator) Stream(ctx context.Context, req *Request, emit func(StreamFrame) error) error {
	resp, err := o.Process(ctx, req)
	if err != nil {
		return err
	}

	for _, chunk := range chunkWords(resp.Reply, o.chunkWords) {
		if err := emit(StreamFrame{Type: FrameChunk, Content: chunk}); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.chunkDelay):
		}
	}

	return emit(StreamFrame{
		Type:      FrameDone,
		SessionID: resp.SessionID,
		PersonaID: resp.PersonaID,
		Stats:     &resp.Stats,
	})
}

// fetchMemories retrieves semantically related memories; failure
// degrades to none.
func (o *Orchestrator) fetchMemories(ctx context.Context, req *Request) []store.MemoryRow {
	memories, err := o.memory.Search(ctx, req.Message, memoryTopK)
	if err != nil {
		o.logger.Warn("memory search failed", "session_id", req.SessionID, "error", err)
		return nil
	}
	return memories
}

// fetchHistory prefers caller-supplied history, then the short-term
// window; failure degrades to empty history.
func (o *Orchestrator) fetchHistory(ctx context.Context, req *Request) []Turn {
	if len(req.History) > 0 {
		return req.History
	}

	turns, err := o.memory.Recent(ctx, req.SessionID, req.Branch)
	if err != nil {
		o.logger.Warn("history fetch failed", "session_id", req.SessionID, "error", err)
		return nil
	}
	history := make([]Turn, len(turns))
	for i, turn := range turns {
		history[i] = Turn{Role: turn.Role, Content: turn.Content}
	}
	return history
}

// planTurn runs the optional planning pass. No planner model means no
// plan; a planner failure logs and degrades to an empty plan.
func (o *Orchestrator) planTurn(ctx context.Context, req *Request, memories []store.MemoryRow, history []Turn) string {
	if o.planner == "" {
		return ""
	}

	result, err := o.gateway.Generate(ctx, o.planner, planningPrompt(memories, history, req.Message), &gateway.GenerateOptions{MaxTokens: 200})
	if err != nil {
		o.logger.Warn("planning pass failed", "session_id", req.SessionID, "error", err)
		return ""
	}
	return result.Text
}

// recordUsage prices and records the completion. Recording failure is
// logged, never fatal to the turn. A memory-barrier turn keeps the
// in-memory totals and metrics but writes no usage row and no audit
// line, so the barrier really means zero durable writes.
func (o *Orchestrator) recordUsage(ctx context.Context, req *Request, result *gateway.CompletionResult, duration time.Duration) Stats {
	stats := Stats{
		Model:      o.model,
		TokensIn:   result.Usage.InputTokens,
		TokensOut:  result.Usage.OutputTokens,
		DurationMS: duration.Milliseconds(),
	}
	if o.metrics != nil {
		o.metrics.ModelTokens.WithLabelValues(o.model, "input").Add(float64(stats.TokensIn))
		o.metrics.ModelTokens.WithLabelValues(o.model, "output").Add(float64(stats.TokensOut))
	}
	if o.monitor == nil {
		return stats
	}

	tokens := usage.Usage{InputTokens: stats.TokensIn, OutputTokens: stats.TokensOut}
	price := o.monitor.Price(o.model)
	stats.CostUSD = price.Estimate(&tokens)

	rec := usage.Record{
		RequestID: req.RequestID(),
		SessionID: req.SessionID,
		Model:     o.model,
		Usage:     tokens,
		Duration:  duration,
	}
	if req.MemoryBarrier() {
		o.monitor.Accumulate(rec)
		return stats
	}

	if err := o.monitor.Track(ctx, rec); err != nil {
		o.logger.Warn("usage recording failed", "session_id", req.SessionID, "error", err)
	}
	return stats
}

// runToolPhase executes the fixed tool sequence: caller-requested tools
// first, then the persona sticker, then model-requested calls. Only a
// successful sticker result may change the outgoing text.
func (o *Orchestrator) runToolPhase(ctx context.Context, req *Request, persona *config.Persona, result *gateway.CompletionResult) (string, []ToolOutcome, error) {
	reply := result.Text
	var outcomes []ToolOutcome

	appendSticker := func(outcome ToolOutcome) {
		if outcome.Error == "" && outcome.Result != "" {
			reply += "\n[sticker] " + outcome.Result
		}
	}

	if action := req.AvatarAction(); action != "" {
		outcome, err := o.invokeTool(ctx, toolAvatarAction, map[string]any{"action": action})
		if err != nil {
			return "", nil, err
		}
		outcomes = append(outcomes, outcome)
	}

	if req.SuggestReplies() {
		outcome, err := o.invokeTool(ctx, toolSuggestReplies, map[string]any{"reply": reply})
		if err != nil {
			return "", nil, err
		}
		outcomes = append(outcomes, outcome)
	}

	if req.SummarizeState() {
		outcome, err := o.invokeTool(ctx, toolSummarizeState, map[string]any{
			"session_id": req.SessionID,
			"branch":     req.Branch,
		})
		if err != nil {
			return "", nil, err
		}
		outcomes = append(outcomes, outcome)
	}

	modelPickedSticker := false
	for _, call := range result.ToolCalls {
		if call.ID == toolSticker {
			modelPickedSticker = true
		}
	}

	if persona.Behavior.Emoji && !modelPickedSticker {
		mood := req.Sentiment()
		if mood == "" {
			mood = "happy"
		}
		outcome, err := o.invokeTool(ctx, toolSticker, map[string]any{"mood": mood})
		if err != nil {
			return "", nil, err
		}
		appendSticker(outcome)
		outcomes = append(outcomes, outcome)
	}

	for _, call := range result.ToolCalls {
		outcome, err := o.invokeTool(ctx, call.ID, call.Input)
		if err != nil {
			return "", nil, err
		}
		if call.ID == toolSticker {
			appendSticker(outcome)
		}
		outcomes = append(outcomes, outcome)
	}

	return reply, outcomes, nil
}

// invokeTool runs one tool and folds an execution failure into the
// outcome. Registration-level failures (unknown tool or kind) are
// programmer errors and propagate.
func (o *Orchestrator) invokeTool(ctx context.Context, name string, input map[string]any) (ToolOutcome, error) {
	start := time.Now()
	result, err := o.tools.Invoke(ctx, name, input)

	if o.metrics != nil {
		o.metrics.ToolExecutionDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		var execErr *tools.ExecutionError
		if !errors.As(err, &execErr) {
			return ToolOutcome{}, fmt.Errorf("invoke %s: %w", name, err)
		}
		o.logger.Warn("tool execution failed", "tool", name, "error", execErr.Cause)
		if o.metrics != nil {
			o.metrics.ToolExecutionCounter.WithLabelValues(name, "error").Inc()
		}
		return ToolOutcome{Tool: name, Error: execErr.Cause.Error()}, nil
	}

	if o.metrics != nil {
		o.metrics.ToolExecutionCounter.WithLabelValues(name, "success").Inc()
	}
	return ToolOutcome{Tool: name, Result: result}, nil
}

// persistTurn writes the scored interaction memory, then the user row,
// then the assistant row. The plan lands in the assistant row's thought
// column.
func (o *Orchestrator) persistTurn(ctx context.Context, req *Request, reply, plan string) error {
	_, err := o.memory.StoreMemory(ctx, store.MemoryRow{
		SessionID: req.SessionID,
		Branch:    req.Branch,
		Category:  "interaction",
		Content:   fmt.Sprintf("user: %s\nassistant: %s", req.Message, reply),
		Score:     1.0,
	})
	if err != nil {
		return fmt.Errorf("persist interaction memory: %w", err)
	}

	_, err = o.memory.AddTurn(ctx, store.ConversationRow{
		SessionID: req.SessionID,
		Branch:    req.Branch,
		Role:      "user",
		Content:   req.Message,
	})
	if err != nil {
		return fmt.Errorf("persist user turn: %w", err)
	}

	_, err = o.memory.AddTurn(ctx, store.ConversationRow{
		SessionID: req.SessionID,
		Branch:    req.Branch,
		Role:      "assistant",
		Content:   reply,
		Model:     o.model,
		Provider:  gateway.Provider(o.model),
		Thought:   plan,
	})
	if err != nil {
		return fmt.Errorf("persist assistant turn: %w", err)
	}
	return nil
}

func (o *Orchestrator) observeTurn(status string, elapsed time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.TurnCounter.WithLabelValues(status).Inc()
	o.metrics.TurnDuration.Observe(elapsed.Seconds())
}

func (o *Orchestrator) observeModelRequest(status string, elapsed time.Duration) {
	if o.metrics == nil {
		return
	}
	backend := gateway.Provider(o.model)
	o.metrics.ModelRequestCounter.WithLabelValues(backend, o.model, status).Inc()
	o.metrics.ModelRequestDuration.WithLabelValues(backend, o.model).Observe(elapsed.Seconds())
}

func memoryContents(rows []store.MemoryRow) []string {
	contents := make([]string, len(rows))
	for i, row := range rows {
		contents[i] = row.Content
	}
	return contents
}
