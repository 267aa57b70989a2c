package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkellner/chunksmith/internal/processor"
)

var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Chunk and index a file or directory into a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		ix, err := openIndex(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer ix.Close()

		p := processor.New(ix, logger)
		pcfg := &processor.Config{Workers: cfg.Workers, Chunking: cfg.Chunking}

		path := args[0]
		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		var stats *processor.Statistics
		if info.IsDir() {
			stats, err = p.ProcessDirectory(ctx, projectID, path, pcfg)
		} else {
			data, rerr := os.ReadFile(path)
			if rerr != nil {
				return rerr
			}
			ext := strings.ToLower(filepath.Ext(path))
			doc := processor.Document{
				ID:       filepath.Base(path),
				FileName: filepath.Base(path),
				Text:     string(data),
				HTML:     ext == ".html" || ext == ".htm",
			}
			stats, err = p.ProcessProject(ctx, projectID, []processor.Document{doc}, pcfg)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Processed: %d documents, %d chunks, %d tokens in %s\n",
			stats.DocumentsProcessed, stats.ChunksCreated, stats.TokensProcessed, stats.Duration.Round(time.Millisecond))
		if stats.DocumentsFailed > 0 {
			fmt.Printf("Failed: %d documents\n", stats.DocumentsFailed)
			for _, msg := range stats.ErrorMessages {
				fmt.Printf("  %s\n", msg)
			}
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Remove an indexed document from a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		ix, err := openIndex(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer ix.Close()

		if err := ix.DeleteDocument(ctx, projectID, args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted document %s from project %s\n", args[0], projectID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(deleteCmd)
}
