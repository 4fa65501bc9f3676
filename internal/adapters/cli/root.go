// Package cli is the kbctl command tree: knowledge base loading and the
// query tools run from a terminal.
package cli

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/ports"
)

var errNotConfigured = errors.New("service not configured")

type KnowledgeLoader interface {
	LoadDirectory(ctx context.Context, dir string, hardKB bool, opts domain.LoadOptions) (domain.LoadReport, error)
	Status(ctx context.Context) (domain.KnowledgeBaseStatus, error)
}

type Searcher interface {
	IntelligentSearch(ctx context.Context, query string, k int, conversationContext string) ([]domain.RetrievalResult, error)
	RebuildKeywordIndex(ctx context.Context) (int, error)
}

type ToolExecutor interface {
	ExecuteTool(ctx context.Context, name string, input map[string]interface{}) (string, error)
}

// Services is what the commands run against. KnowledgeBaseDir and
// UploadsDir are the two folders load-kb imports.
type Services struct {
	Loader    KnowledgeLoader
	Tables    ports.TableEngine
	Retriever Searcher
	Queries   ports.QueryProcessor
	Tools     ToolExecutor

	KnowledgeBaseDir string
	UploadsDir       string
	SearchK          int
	SQLLimit         int

	Close func()
}

// ServiceFactory builds the services on first use so help and flag errors
// never touch the database.
type ServiceFactory func(ctx context.Context) (*Services, error)

type runner struct {
	factory ServiceFactory
	svc     *Services
}

func (r *runner) services(ctx context.Context) (*Services, error) {
	if r.svc != nil {
		return r.svc, nil
	}
	svc, err := r.factory(ctx)
	if err != nil {
		return nil, err
	}
	r.svc = svc
	return svc, nil
}

func (r *runner) close() {
	if r.svc != nil && r.svc.Close != nil {
		r.svc.Close()
	}
	r.svc = nil
}

func NewRootCommand(factory ServiceFactory) *cobra.Command {
	return newRootCommand(&runner{factory: factory})
}

func newRootCommand(r *runner) *cobra.Command {
	root := &cobra.Command{
		Use:           "kbctl",
		Short:         "Manage and query the study counselling knowledge base",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newLoadCommand(r),
		newStatusCommand(r),
		newTablesCommand(r),
		newPreviewCommand(r),
		newSQLCommand(r),
		newSearchCommand(r),
		newAskCommand(r),
		newReindexCommand(r),
		newMCPCommand(r),
	)
	return root
}

// Execute runs the command tree with args and writes to out.
func Execute(ctx context.Context, factory ServiceFactory, args []string, out io.Writer) error {
	r := &runner{factory: factory}
	defer r.close()
	root := newRootCommand(r)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	return root.ExecuteContext(ctx)
}
