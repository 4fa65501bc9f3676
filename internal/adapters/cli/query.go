package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

const snippetChars = 240

func newSearchCommand(r *runner) *cobra.Command {
	var (
		k            int
		conversation string
		asJSON       bool
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search documents with query variations and reranking",
		Long: `Runs hybrid search (BM25 keyword and semantic vector retrieval fused with
reciprocal rank fusion) for every variation of the query and reranks the
best results.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := r.services(cmd.Context())
			if err != nil {
				return err
			}
			if svc.Retriever == nil {
				return errNotConfigured
			}
			if k <= 0 {
				k = svc.SearchK
			}
			results, err := svc.Retriever.IntelligentSearch(cmd.Context(), args[0], k, conversation)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if asJSON {
				return printJSON(cmd, results)
			}
			printSearchResults(cmd, results)
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of results (default from RERANK_TOP_N)")
	cmd.Flags().StringVar(&conversation, "context", "", "conversation context used to expand the query")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func printSearchResults(cmd *cobra.Command, results []domain.RetrievalResult) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}
	for i, result := range results {
		cmd.Printf("[%d] %s (%.3f)\n", i+1, result.SourceLabel, result.BestScore())
		cmd.Printf("    %s\n", snippet(result.Chunk.Text))
	}
}

func newAskCommand(r *runner) *cobra.Command {
	var (
		sessionID string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question with the full agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := r.services(cmd.Context())
			if err != nil {
				return err
			}
			if svc.Queries == nil {
				return errNotConfigured
			}
			resp := svc.Queries.Process(cmd.Context(), domain.QueryRequest{Query: args[0], SessionID: sessionID})
			if asJSON {
				return printJSON(cmd, resp)
			}
			cmd.Println(resp.Answer)
			cmd.Println()
			cmd.Printf("session: %s  type: %s  tools: %s  confidence: %.2f  outcome: %s\n",
				resp.SessionID, resp.QueryType, strings.Join(resp.ToolsUsed, ","), resp.Confidence, resp.Outcome.Kind)
			if resp.Outcome.Reason != "" {
				cmd.Printf("reason: %s\n", resp.Outcome.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "conversation to continue")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= snippetChars {
		return text
	}
	return string(runes[:snippetChars]) + "..."
}
