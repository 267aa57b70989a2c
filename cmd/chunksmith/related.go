package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/dkellner/chunksmith/internal/retriever"
	"github.com/dkellner/chunksmith/pkg/types"
)

var (
	relatedLimit     int
	relatedThreshold float64
	relatedSiblings  bool
	relatedParent    bool
)

var relatedCmd = &cobra.Command{
	Use:   "related <chunk-id>",
	Short: "Find chunks related to a chunk by structure and similarity",
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

		r := retriever.New(ix, logger)
		chunks, err := r.Related(ctx, projectID, args[0], types.RelatedOptions{
			IncludeSiblings:       relatedSiblings,
			IncludeParentChildren: relatedParent,
			MaxResults:            relatedLimit,
			SimilarityThreshold:   relatedThreshold,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(chunks)
	},
}

func init() {
	rootCmd.AddCommand(relatedCmd)

	relatedCmd.Flags().IntVarP(&relatedLimit, "limit", "n", 10, "maximum results")
	relatedCmd.Flags().Float64VarP(&relatedThreshold, "threshold", "t", 0, "minimum similarity score")
	relatedCmd.Flags().BoolVar(&relatedSiblings, "siblings", true, "include sibling chunks")
	relatedCmd.Flags().BoolVar(&relatedParent, "parent-children", true, "include parent and child chunks")
}
