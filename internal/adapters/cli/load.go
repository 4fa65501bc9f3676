package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

type loadFlags struct {
	hardKBOnly  bool
	uploadsOnly bool
	csvOnly     bool
	docsOnly    bool
	force       bool
}

func newLoadCommand(r *runner) *cobra.Command {
	var flags loadFlags
	cmd := &cobra.Command{
		Use:   "load-kb",
		Short: "Import the knowledge base and upload folders",
		Long: `Imports documents into the document store and CSV/XLSX files into the
table engine. Files already recorded as data sources are skipped unless
--force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.hardKBOnly && flags.uploadsOnly {
				return errors.New("--hard-kb-only and --uploads-only are mutually exclusive")
			}
			if flags.csvOnly && flags.docsOnly {
				return errors.New("--csv-only and --docs-only are mutually exclusive")
			}
			svc, err := r.services(cmd.Context())
			if err != nil {
				return err
			}
			if svc.Loader == nil {
				return errNotConfigured
			}

			opts := domain.LoadOptions{Force: flags.force, CSVOnly: flags.csvOnly, DocsOnly: flags.docsOnly}
			type folder struct {
				dir    string
				hardKB bool
			}
			var folders []folder
			if !flags.uploadsOnly && svc.KnowledgeBaseDir != "" {
				folders = append(folders, folder{dir: svc.KnowledgeBaseDir, hardKB: true})
			}
			if !flags.hardKBOnly && svc.UploadsDir != "" {
				folders = append(folders, folder{dir: svc.UploadsDir, hardKB: false})
			}

			var failed int
			for _, f := range folders {
				report, err := svc.Loader.LoadDirectory(cmd.Context(), f.dir, f.hardKB, opts)
				if err != nil {
					return fmt.Errorf("load %s: %w", f.dir, err)
				}
				printLoadReport(cmd, report)
				failed += len(report.Failed)
			}
			if failed > 0 {
				return fmt.Errorf("%d file(s) failed to load", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&flags.hardKBOnly, "hard-kb-only", false, "only import the knowledge base folder")
	cmd.Flags().BoolVar(&flags.uploadsOnly, "uploads-only", false, "only import the uploads folder")
	cmd.Flags().BoolVar(&flags.csvOnly, "csv-only", false, "only import CSV and XLSX files")
	cmd.Flags().BoolVar(&flags.docsOnly, "docs-only", false, "only import documents")
	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "re-import files already loaded")
	return cmd
}

func printLoadReport(cmd *cobra.Command, report domain.LoadReport) {
	cmd.Printf("%s: %d document(s), %d table(s), %d skipped\n",
		report.Folder, report.DocumentsLoaded, report.TablesLoaded, report.Skipped)
	for _, name := range report.Failed {
		cmd.Printf("  failed: %s\n", name)
	}
}

func newStatusCommand(r *runner) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show what the knowledge base holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := r.services(cmd.Context())
			if err != nil {
				return err
			}
			if svc.Loader == nil {
				return errNotConfigured
			}
			status, err := svc.Loader.Status(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, status)
			}
			cmd.Printf("Parent chunks: %d\n", status.ParentChunks)
			cmd.Printf("Child chunks:  %d\n", status.ChildChunks)
			cmd.Printf("Tables:        %d\n", len(status.Tables))
			for _, table := range status.Tables {
				cmd.Printf("  %s\n", table)
			}
			cmd.Printf("Data sources:  %d\n", len(status.DataSources))
			for _, source := range status.DataSources {
				cmd.Printf("  %s (%s, queried %d times)\n", source.SourceName, source.SourceType, source.QueryCount)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newReindexCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the BM25 keyword index from stored chunks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := r.services(cmd.Context())
			if err != nil {
				return err
			}
			if svc.Retriever == nil {
				return errNotConfigured
			}
			n, err := svc.Retriever.RebuildKeywordIndex(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("Indexed %d chunk(s)\n", n)
			return nil
		},
	}
}
