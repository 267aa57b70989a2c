package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/dkellner/chunksmith/internal/retriever"
)

var (
	structureDepth   int
	structureContent bool
)

var structureCmd = &cobra.Command{
	Use:   "structure",
	Short: "Print the heading outline of a project's indexed documents",
	Args:  cobra.NoArgs,
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

		r := retriever.New(ix, logger)
		entries, err := r.BrowseStructure(ctx, projectID, structureDepth, structureContent)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	},
}

func init() {
	rootCmd.AddCommand(structureCmd)

	structureCmd.Flags().IntVarP(&structureDepth, "depth", "d", 0, "maximum heading depth (0 for full depth)")
	structureCmd.Flags().BoolVar(&structureContent, "content", false, "include a content preview per heading")
}
