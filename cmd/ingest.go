package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"neowhatai/internal/infrastructure"
	"neowhatai/internal/usecases"
)

var (
	ingestTenant string
	ingestFile   string
	ingestSource string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Replace a client's knowledge base with the text of a file",
	Long: `Chunk, embed and store the text of a file as the knowledge base of a client.
The previous documents of the client are replaced. The file must contain
already extracted text.

Example:
  neowhatai ingest --tenant 7f1c8a5e-3b2d-4c6f-9a1e-2d3c4b5a6f70 --file carte.txt --source carte.pdf`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTenant, "tenant", "", "client id")
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "text file to ingest")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "source name stored with each chunk (default: file name)")
	_ = ingestCmd.MarkFlagRequired("tenant")
	_ = ingestCmd.MarkFlagRequired("file")
}

func runIngest(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(ingestFile)
	if err != nil {
		return err
	}
	source := ingestSource
	if source == "" {
		source = filepath.Base(ingestFile)
	}

	ctx := cmd.Context()
	st, err := openStores(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	llm, err := infrastructure.NewLLM(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init LLM: %w", err)
	}
	defer llm.Close()

	svc := usecases.NewIngestService(st.tenants, st.documents, llm.Embedder, cfg.IngestBatchSize, cfg.IngestBatchPause, logger)
	result, err := svc.Ingest(ctx, ingestTenant, source, string(content))
	if err != nil {
		return fmt.Errorf("ingest %s: %w", ingestFile, err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
