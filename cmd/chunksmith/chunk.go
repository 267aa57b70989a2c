package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dkellner/chunksmith/internal/processor"
)

var chunkCmd = &cobra.Command{
	Use:   "chunk <file>",
	Short: "Chunk a document and print the result as JSON",
	Long: `Parses and chunks a single markdown or HTML file without touching
any embedding provider or vector store. The chunks and the chunking
metrics are written to stdout as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		p := processor.New(nil, logger)
		chunks, result, err := p.ChunkDocument(string(data), path, "", filepath.Base(path), &cfg.Chunking)
		if err != nil {
			return err
		}

		out := struct {
			Chunks any `json:"chunks"`
			Result any `json:"result"`
		}{chunks, result}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(chunkCmd)
}
