package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/ports"
)

const (
	apologyAnswer         = "I encountered an error processing your query. Please try again or rephrase your question."
	defaultConfidence     = 0.5
	fallbackDocumentCount = 3
	defaultSQLLimit       = 100
)

// OrchestratorConfig bounds an orchestrator run.
type OrchestratorConfig struct {
	Limits         domain.AgentLimits
	SQLLimit       int
	SemanticWeight float64
}

// Orchestrator answers a question end to end: classify, enhance, let the
// model call tools, then synthesize. It always returns a response; failures
// walk down the fallback ladder instead of escaping.
type Orchestrator struct {
	classifier     *QueryClassifier
	enhancer       *QueryEnhancer
	retriever      ports.KnowledgeRetriever
	tables         ports.TableEngine
	chat           ports.ChatModel
	conversations  ports.ConversationStore
	dataSources    ports.DataSourceStore
	logs           ports.QueryLogStore
	limits         domain.AgentLimits
	sqlLimit       int
	semanticWeight float64
	now            func() time.Time
}

func NewOrchestrator(
	classifier *QueryClassifier,
	enhancer *QueryEnhancer,
	retriever ports.KnowledgeRetriever,
	tables ports.TableEngine,
	chat ports.ChatModel,
	conversations ports.ConversationStore,
	dataSources ports.DataSourceStore,
	logs ports.QueryLogStore,
	cfg OrchestratorConfig,
) *Orchestrator {
	limits := cfg.Limits
	if limits.MaxIterations <= 0 {
		limits.MaxIterations = 10
	}
	if limits.Timeout <= 0 {
		limits.Timeout = 120 * time.Second
	}
	if limits.PlannerTimeout <= 0 {
		limits.PlannerTimeout = 30 * time.Second
	}
	if limits.ToolTimeout <= 0 {
		limits.ToolTimeout = 30 * time.Second
	}
	if limits.ContextMessages <= 0 {
		limits.ContextMessages = 5
	}
	if limits.KnowledgeTopK <= 0 {
		limits.KnowledgeTopK = defaultRetrieverK
	}
	if limits.SourceContentLength <= 0 {
		limits.SourceContentLength = 200
	}
	if cfg.SQLLimit <= 0 {
		cfg.SQLLimit = defaultSQLLimit
	}
	if cfg.SemanticWeight <= 0 || cfg.SemanticWeight > 1 {
		cfg.SemanticWeight = defaultSemanticWeight
	}

	return &Orchestrator{
		classifier:     classifier,
		enhancer:       enhancer,
		retriever:      retriever,
		tables:         tables,
		chat:           chat,
		conversations:  conversations,
		dataSources:    dataSources,
		logs:           logs,
		limits:         limits,
		sqlLimit:       cfg.SQLLimit,
		semanticWeight: cfg.SemanticWeight,
		now:            time.Now,
	}
}

// run carries the mutable state of one Process call.
type run struct {
	state          domain.RunState
	question       string
	input          string
	context        string
	classification domain.QueryClassification
	hints          []string
	chat           *countingChat

	answer     string
	reason     string
	iterations int
	events     []domain.ToolEvent
	toolsUsed  []string
	documents  []domain.RetrievalResult
	sqlUsed    bool
	ragUsed    bool
	toolFailed bool
}

func (r *run) advance(state domain.RunState) {
	r.state = state
	slog.Debug("orchestrator_state", "state", state)
}

func (o *Orchestrator) Process(ctx context.Context, req domain.QueryRequest) domain.QueryResponse {
	started := o.now()
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	question := strings.TrimSpace(req.Query)
	if question == "" {
		return domain.QueryResponse{
			Answer:     "Please provide a question.",
			Sources:    []domain.Source{},
			SessionID:  sessionID,
			QueryType:  domain.QueryTypeUnknown,
			ToolsUsed:  []string{},
			Confidence: 0,
			Outcome:    domain.Failed("empty_query"),
		}
	}

	r := &run{
		state:    domain.StateReceived,
		question: question,
		context:  strings.TrimSpace(req.Context),
		chat:     &countingChat{inner: o.chat},
	}

	o.prepareSession(ctx, sessionID, r)

	resp := o.answer(ctx, r)
	resp.SessionID = sessionID

	o.persistTurn(ctx, sessionID, r, resp, o.now().Sub(started))
	r.advance(domain.StateReturned)
	return resp
}

func (o *Orchestrator) prepareSession(ctx context.Context, sessionID string, r *run) {
	if o.conversations == nil {
		return
	}
	if _, err := o.conversations.EnsureSession(ctx, sessionID); err != nil {
		slog.Warn("ensure_session_failed", "session_id", sessionID, "error", err)
		return
	}
	if r.context == "" {
		messages, err := o.conversations.ListRecentMessages(ctx, sessionID, o.limits.ContextMessages)
		if err != nil {
			slog.Warn("load_context_failed", "session_id", sessionID, "error", err)
		} else {
			r.context = RenderConversationContext(messages)
		}
	}
	if err := o.conversations.AppendMessage(ctx, domain.ConversationMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   r.question,
		CreatedAt: o.now().UTC(),
	}); err != nil {
		slog.Warn("append_user_message_failed", "session_id", sessionID, "error", err)
	}
}

func (o *Orchestrator) answer(ctx context.Context, r *run) (resp domain.QueryResponse) {
	defer func() {
		if recovered := recover(); recovered != nil {
			slog.Error("orchestrator_panic", "panic", recovered)
			r.advance(domain.StateDegraded)
			resp = o.apology(r, "internal_error")
		}
	}()

	r.classification = o.classifier.Classify(ctx, r.question, o.tables.Tables())
	r.advance(domain.StateClassified)

	r.input = r.question
	if o.enhancer != nil {
		enhanced := o.enhancer.Enhance(ctx, r.question, r.context)
		r.input = enhanced.Expanded
	}
	if r.classification.RequiresSQL {
		r.hints = o.planningHints(ctx, r.question)
	}
	r.advance(domain.StateEnhanced)

	o.runAgent(ctx, r)

	if r.answer != "" {
		r.advance(domain.StateSynthesized)
		return o.response(r, domain.Ok())
	}

	r.advance(domain.StateDegraded)
	slog.Warn("agent_loop_degraded", "reason", r.reason, "iterations", r.iterations)
	if answer, ok := o.groundedFallback(ctx, r); ok {
		r.answer = answer
		return o.response(r, domain.Degraded(r.reason))
	}
	return o.apology(r, r.reason)
}

// planningHints gives the planner a suggested table, the extracted SQL intent
// and a SQL-friendly restatement for questions that need the tables.
func (o *Orchestrator) planningHints(ctx context.Context, question string) []string {
	tables := o.tables.Tables()
	if len(tables) == 0 {
		return nil
	}
	hints := make([]string, 0, 3)
	if table := o.classifier.SuggestTable(ctx, question, tables); table != "" {
		hints = append(hints, "Most relevant table: "+table)
	}
	if intent := o.classifier.ExtractSQLIntent(ctx, question); intent.Operation != "" && intent.Operation != "UNKNOWN" {
		hints = append(hints, formatSQLIntent(intent))
	}
	if o.enhancer != nil {
		if optimized := o.enhancer.OptimizeForSQL(ctx, question, tables); optimized != question {
			hints = append(hints, "SQL-friendly restatement: "+optimized)
		}
	}
	return hints
}

func (o *Orchestrator) runAgent(ctx context.Context, r *run) {
	tools := toolsFor(r.classification.QueryType)
	loopCtx, cancel := context.WithTimeout(ctx, o.limits.Timeout)
	defer cancel()

	scratchpad := make([]string, 0, o.limits.MaxIterations)
	toolSet := make(map[string]struct{})

	for i := 1; i <= o.limits.MaxIterations; i++ {
		if loopCtx.Err() != nil {
			r.reason = "timeout"
			return
		}
		r.iterations = i

		step, reason := o.nextStep(loopCtx, r.chat, buildAgentPrompt(r.input, r.context, r.classification, r.hints, tools, scratchpad))
		if reason != "" {
			r.reason = reason
			return
		}

		switch step.Type {
		case "final":
			r.answer = strings.TrimSpace(step.Answer)
			if r.answer == "" {
				r.reason = "empty_final_answer"
			}
			return
		case "tool_call", "tool":
			r.advance(domain.StateToolExecution)
			tool, offered := findTool(tools, step.Tool)
			if !offered {
				payload, _ := json.Marshal(map[string]string{"error": fmt.Sprintf("tool %q is not available for this query", step.Tool)})
				scratchpad = append(scratchpad, fmt.Sprintf("%s: %s", step.Tool, payload))
				continue
			}

			toolCtx, toolCancel := context.WithTimeout(loopCtx, o.limits.ToolTimeout)
			result, err := o.executeTool(toolCtx, tool.name, step.Input, r.input)
			toolCancel()
			if err != nil {
				payload, _ := json.Marshal(map[string]string{"error": err.Error()})
				r.events = append(r.events, domain.ToolEvent{Tool: tool.name, Status: "error", Output: string(payload)})
				if domain.IsKind(err, domain.ErrInvalidInput) {
					scratchpad = append(scratchpad, fmt.Sprintf("%s: %s", tool.name, payload))
					continue
				}
				r.toolFailed = true
				if isAgentTimeoutError(err) {
					r.reason = "timeout"
				} else {
					r.reason = "tool_error"
				}
				return
			}

			r.events = append(r.events, domain.ToolEvent{Tool: tool.name, Status: "ok", Output: result.output})
			r.documents = append(r.documents, result.documents...)
			if _, seen := toolSet[tool.name]; !seen {
				toolSet[tool.name] = struct{}{}
				r.toolsUsed = append(r.toolsUsed, tool.name)
			}
			switch tool.family {
			case toolFamilySQL:
				r.sqlUsed = true
			case toolFamilyRAG:
				r.ragUsed = true
			}
			scratchpad = append(scratchpad, fmt.Sprintf("%s:\n%s", tool.name, result.output))
		default:
			r.reason = "unsupported_step_type"
			return
		}
	}
	r.reason = "max_iterations"
}

// nextStep asks the model for one step and gives it one chance to repair
// malformed JSON.
func (o *Orchestrator) nextStep(ctx context.Context, chat ports.ChatModel, prompt string) (domain.AgentPlanStep, string) {
	opts := domain.CompletionOptions{Temperature: 0.2, MaxTokens: 2000, JSON: true}

	plannerCtx, cancel := context.WithTimeout(ctx, o.limits.PlannerTimeout)
	raw, err := chat.Complete(plannerCtx, prompt, opts)
	cancel()
	if err != nil {
		if isAgentTimeoutError(err) {
			return domain.AgentPlanStep{}, "timeout"
		}
		return domain.AgentPlanStep{}, "planner_error"
	}

	step, err := parseAgentStep(raw)
	if err == nil {
		return step, ""
	}
	repairCtx, repairCancel := context.WithTimeout(ctx, o.limits.PlannerTimeout)
	repaired, err := chat.Complete(repairCtx, buildAgentRepairPrompt(raw), opts)
	repairCancel()
	if err != nil {
		if isAgentTimeoutError(err) {
			return domain.AgentPlanStep{}, "timeout"
		}
		return domain.AgentPlanStep{}, "planner_invalid_json"
	}
	step, err = parseAgentStep(repaired)
	if err != nil {
		return domain.AgentPlanStep{}, "planner_invalid_json"
	}
	return step, ""
}

// groundedFallback answers from the top retrieved documents without tools.
func (o *Orchestrator) groundedFallback(ctx context.Context, r *run) (string, bool) {
	documents := r.documents
	if len(documents) == 0 && o.retriever != nil {
		fallbackCtx, cancel := context.WithTimeout(ctx, o.limits.ToolTimeout)
		query := r.question
		if o.enhancer != nil {
			query = o.enhancer.OptimizeForSemantic(fallbackCtx, r.question)
		}
		found, err := o.retriever.HybridSearch(fallbackCtx, query, domain.HybridSearchOptions{
			K:              o.limits.KnowledgeTopK,
			SemanticWeight: o.semanticWeight,
			UseRerank:      true,
		})
		cancel()
		if err != nil {
			slog.Warn("fallback_retrieval_failed", "error", err)
		}
		documents = found
	}
	if len(documents) == 0 {
		return "", false
	}
	if len(documents) > fallbackDocumentCount {
		documents = documents[:fallbackDocumentCount]
	}

	question := r.question
	if r.context != "" {
		question = fmt.Sprintf("Based on our conversation:\n%s\n\nCurrent question: %s", lastRunes(r.context, contextWindowChars), r.question)
	}
	fallbackCtx, cancel := context.WithTimeout(ctx, o.limits.PlannerTimeout)
	defer cancel()
	answer, err := r.chat.Complete(fallbackCtx, buildGroundedAnswerPrompt(question, documents), domain.CompletionOptions{Temperature: 0.7, MaxTokens: 2000})
	if err != nil {
		slog.Warn("fallback_answer_failed", "error", err)
		return "", false
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", false
	}

	r.documents = documents
	r.ragUsed = true
	r.events = append(r.events, domain.ToolEvent{Tool: ToolRAGSearch, Status: "ok", Output: formatRAGResults(documents)})
	return answer, true
}

func (o *Orchestrator) response(r *run, outcome domain.Outcome) domain.QueryResponse {
	classification := r.classification
	sources := make([]domain.Source, 0, len(r.events))
	for _, event := range r.events {
		if event.Status != "ok" {
			continue
		}
		sources = append(sources, domain.Source{
			Type:    ToolFamily(event.Tool),
			Tool:    event.Tool,
			Content: truncateRunes(event.Output, o.limits.SourceContentLength),
		})
	}
	toolsUsed := r.toolsUsed
	if toolsUsed == nil {
		toolsUsed = []string{}
	}
	return domain.QueryResponse{
		Answer:         r.answer,
		Sources:        sources,
		QueryType:      classification.QueryType,
		Classification: &classification,
		ToolsUsed:      toolsUsed,
		SQLUsed:        r.sqlUsed,
		RAGUsed:        r.ragUsed,
		HybridMode:     r.sqlUsed && r.ragUsed,
		Confidence:     confidenceFrom(r.documents),
		Iterations:     r.iterations,
		Outcome:        outcome,
		ToolEvents:     r.events,
	}
}

func (o *Orchestrator) apology(r *run, reason string) domain.QueryResponse {
	resp := domain.QueryResponse{
		Answer:     apologyAnswer,
		Sources:    []domain.Source{},
		QueryType:  r.classification.QueryType,
		ToolsUsed:  []string{},
		Confidence: 0,
		Iterations: r.iterations,
		Outcome:    domain.Failed(reason),
		ToolEvents: r.events,
	}
	if resp.QueryType == "" {
		resp.QueryType = domain.QueryTypeUnknown
	} else {
		classification := r.classification
		resp.Classification = &classification
	}
	r.answer = resp.Answer
	return resp
}

// confidenceFrom is the best retrieval score among contributing documents,
// clamped to [0,1], or 0.5 when nothing was retrieved.
func confidenceFrom(documents []domain.RetrievalResult) float64 {
	if len(documents) == 0 {
		return defaultConfidence
	}
	best := documents[0].BestScore()
	for _, doc := range documents[1:] {
		if score := doc.BestScore(); score > best {
			best = score
		}
	}
	switch {
	case best < 0:
		return 0
	case best > 1:
		return 1
	default:
		return best
	}
}

func (o *Orchestrator) persistTurn(ctx context.Context, sessionID string, r *run, resp domain.QueryResponse, elapsed time.Duration) {
	if o.conversations != nil && strings.TrimSpace(resp.Answer) != "" {
		if err := o.conversations.AppendMessage(ctx, domain.ConversationMessage{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Role:      domain.RoleAssistant,
			Content:   resp.Answer,
			CreatedAt: o.now().UTC(),
		}); err != nil {
			slog.Warn("append_assistant_message_failed", "session_id", sessionID, "error", err)
		}
	}
	if o.logs == nil {
		return
	}

	promptTokens, completionTokens := r.chat.usage()
	entry := domain.QueryLogEntry{
		ID:               uuid.NewString(),
		SessionID:        sessionID,
		QueryText:        r.question,
		QueryType:        resp.QueryType,
		Method:           string(r.classification.Method),
		ResponseTime:     elapsed,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		SQLUsed:          resp.SQLUsed,
		RAGUsed:          resp.RAGUsed,
		SourcesCount:     len(resp.Sources),
		Confidence:       resp.Confidence,
		Outcome:          resp.Outcome.Kind,
		ErrorMessage:     resp.Outcome.Reason,
		CreatedAt:        o.now().UTC(),
	}
	if err := o.logs.AppendQueryLog(ctx, entry); err != nil {
		slog.Warn("append_query_log_failed", "session_id", sessionID, "error", err)
	}
}

// RenderConversationContext formats messages as "User:" and "Assistant:"
// lines, oldest first.
func RenderConversationContext(messages []domain.ConversationMessage) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch msg.Role {
		case domain.RoleUser:
			lines = append(lines, "User: "+content)
		case domain.RoleAssistant:
			lines = append(lines, "Assistant: "+content)
		}
	}
	return strings.Join(lines, "\n")
}

func parseAgentStep(raw string) (domain.AgentPlanStep, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.AgentPlanStep{}, fmt.Errorf("empty planner response")
	}
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	var step domain.AgentPlanStep
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &step); err != nil {
		return domain.AgentPlanStep{}, fmt.Errorf("unmarshal planner json: %w", err)
	}
	step.Type = strings.ToLower(strings.TrimSpace(step.Type))
	step.Tool = strings.ToLower(strings.TrimSpace(step.Tool))
	return step, nil
}

func isAgentTimeoutError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// countingChat tallies approximate token usage for one run.
type countingChat struct {
	inner      ports.ChatModel
	mu         sync.Mutex
	prompt     int
	completion int
}

func (c *countingChat) Complete(ctx context.Context, prompt string, opts domain.CompletionOptions) (string, error) {
	if c.inner == nil {
		return "", fmt.Errorf("no chat model configured")
	}
	reply, err := c.inner.Complete(ctx, prompt, opts)
	c.mu.Lock()
	c.prompt += domain.EstimateTokenCount(prompt)
	c.completion += domain.EstimateTokenCount(reply)
	c.mu.Unlock()
	return reply, err
}

func (c *countingChat) usage() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompt, c.completion
}
