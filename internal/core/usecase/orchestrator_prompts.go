package usecase

import (
	"fmt"
	"strings"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

const counselorPersona = `You are a friendly and supportive StudyNet Education Counselor helping international students plan their studies in Australia.

You have access to:
1. SQL tables: course fees, provider information, requirements. Use them for specific data questions.
2. Knowledge base: application processes, visa information, living costs and procedures. Use it for guidance.
3. Both together for study plans, budget planning and comparisons.

Counselling approach:
- Never discourage a student because of budget. Offer alternatives, price ranges, scholarships and part-time work options (20 hours per week).
- Use SQL for fees, course lists, provider data and statistics.
- Use document search for processes, visa requirements, application steps and living advice.
- Be warm and encouraging, honest about uncertainty, and cite the sources you used.

Answer format: Markdown with a short title, "Key Information" bullets, "Next Steps" as a numbered list and "Helpful Tips" where relevant.`

func buildAgentPrompt(question, conversationContext string, classification domain.QueryClassification, hints []string, tools []agentTool, scratchpad []string) string {
	toolLines := make([]string, 0, len(tools))
	for _, tool := range tools {
		toolLines = append(toolLines, fmt.Sprintf("- %s: %s Input: %s", tool.name, tool.description, tool.inputHint))
	}
	if strings.TrimSpace(conversationContext) == "" {
		conversationContext = "(empty)"
	}
	if len(scratchpad) == 0 {
		scratchpad = []string{"(no tool outputs yet)"}
	}
	hintBlock := ""
	if len(hints) > 0 {
		hintBlock = "\nPlanning hints:\n- " + strings.Join(hints, "\n- ") + "\n"
	}

	return fmt.Sprintf(`%s

You work in steps. Return ONLY one valid JSON object per step.
Schema:
{"type":"tool_call","tool":"<tool name>","input":{...}}
or
{"type":"final","answer":"..."}

Available tools:
%s

Query type: %s
%s
Previous conversation:
%s

Tool outputs so far:
%s

Question: %s
`, counselorPersona, strings.Join(toolLines, "\n"), classification.QueryType, hintBlock, conversationContext, strings.Join(scratchpad, "\n\n"), question)
}

// formatSQLIntent renders an extracted intent as a single hint line.
func formatSQLIntent(intent domain.SQLIntent) string {
	parts := []string{"operation " + intent.Operation}
	if len(intent.Columns) > 0 {
		parts = append(parts, "columns "+strings.Join(intent.Columns, ", "))
	}
	if intent.Conditions != "" {
		parts = append(parts, "conditions "+intent.Conditions)
	}
	if intent.Aggregation != "" {
		parts = append(parts, "aggregation "+intent.Aggregation)
	}
	return "SQL intent: " + strings.Join(parts, "; ")
}

func buildAgentRepairPrompt(raw string) string {
	return fmt.Sprintf(`Convert the following text into a valid JSON object for this schema:
{"type":"tool_call","tool":"<tool name>","input":{...}}
or {"type":"final","answer":"..."}
Return only JSON.
Text:
%s`, raw)
}

func buildGroundedAnswerPrompt(question string, documents []domain.RetrievalResult) string {
	parts := make([]string, 0, len(documents))
	for _, doc := range documents {
		parts = append(parts, doc.Chunk.Text)
	}
	return fmt.Sprintf(`Answer the question using the following information.

Information:
%s

Question: %s

Provide a direct, comprehensive answer. If the information doesn't fully answer the question, acknowledge what's missing.`, strings.Join(parts, "\n\n"), question)
}
