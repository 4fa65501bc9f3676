package domain

import "time"

type OutcomeKind string

const (
	OutcomeOK       OutcomeKind = "ok"
	OutcomeDegraded OutcomeKind = "degraded"
	OutcomeFailed   OutcomeKind = "failed"
)

// Outcome tells the caller how far down the fallback ladder a run went.
type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Reason string      `json:"reason,omitempty"`
}

func Ok() Outcome { return Outcome{Kind: OutcomeOK} }

func Degraded(reason string) Outcome { return Outcome{Kind: OutcomeDegraded, Reason: reason} }

func Failed(reason string) Outcome { return Outcome{Kind: OutcomeFailed, Reason: reason} }

func (o Outcome) IsOK() bool { return o.Kind == OutcomeOK }

// RunState is the orchestrator's position in the request lifecycle.
type RunState string

const (
	StateReceived      RunState = "received"
	StateClassified    RunState = "classified"
	StateEnhanced      RunState = "enhanced"
	StateToolExecution RunState = "tool_execution"
	StateSynthesized   RunState = "synthesized"
	StateReturned      RunState = "returned"
	StateDegraded      RunState = "degraded_response"
)

type AgentLimits struct {
	MaxIterations       int           `json:"max_iterations"`
	Timeout             time.Duration `json:"timeout"`
	PlannerTimeout      time.Duration `json:"planner_timeout"`
	ToolTimeout         time.Duration `json:"tool_timeout"`
	ContextMessages     int           `json:"context_messages"`
	KnowledgeTopK       int           `json:"knowledge_top_k"`
	SourceContentLength int           `json:"source_content_length"`
}

type AgentPlanStep struct {
	Type   string                 `json:"type"`
	Tool   string                 `json:"tool,omitempty"`
	Answer string                 `json:"answer,omitempty"`
	Input  map[string]interface{} `json:"input,omitempty"`
}

type ToolEvent struct {
	Tool   string `json:"tool"`
	Status string `json:"status"`
	Output string `json:"output"`
}

type Source struct {
	Type    string `json:"type"`
	Tool    string `json:"tool"`
	Content string `json:"content"`
}

type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
	Context   string `json:"context,omitempty"`
}

type QueryResponse struct {
	Answer         string               `json:"answer"`
	Sources        []Source             `json:"sources"`
	SessionID      string               `json:"session_id"`
	QueryType      QueryType            `json:"query_type"`
	Classification *QueryClassification `json:"classification,omitempty"`
	ToolsUsed      []string             `json:"tools_used"`
	SQLUsed        bool                 `json:"sql_used"`
	RAGUsed        bool                 `json:"rag_used"`
	HybridMode     bool                 `json:"hybrid_mode"`
	Confidence     float64              `json:"confidence_score"`
	Iterations     int                  `json:"iterations"`
	Outcome        Outcome              `json:"outcome"`
	ToolEvents     []ToolEvent          `json:"tool_events,omitempty"`
}

// CompletionOptions tune a single language model call.
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
	JSON        bool
}
