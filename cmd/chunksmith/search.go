package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkellner/chunksmith/internal/retriever"
	"github.com/dkellner/chunksmith/pkg/types"
)

var (
	searchStrategy    string
	searchLimit       int
	searchThreshold   float64
	searchDocument    string
	searchHeading     string
	searchContext     int
	searchBoostRecent bool
	searchTimeout     time.Duration
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Retrieve chunks matching a query",
	Long: `Runs one of the five retrieval strategies (semantic, hierarchical,
hybrid, contextual, keyword) against the indexed chunks of a project
and prints the ranked result as JSON.`,
	Args: cobra.ExactArgs(1),
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

		opts := types.RetrievalOptions{
			MaxResults:          searchLimit,
			SimilarityThreshold: searchThreshold,
			FilterByDocument:    searchDocument,
			FilterByHeading:     searchHeading,
			BoostRecent:         searchBoostRecent,
			Timeout:             searchTimeout,
		}
		if searchLimit == 0 {
			opts.MaxResults = cfg.Retrieval.MaxResults
		}
		if searchThreshold == 0 {
			opts.SimilarityThreshold = cfg.Retrieval.SimilarityThreshold
		}
		if searchContext > 0 {
			opts.IncludeContext = true
			opts.ContextWindow = searchContext
		}

		r := retriever.New(ix, logger)
		r.SetCacheTTL(cfg.Retrieval.CacheTTL)
		result, err := r.Retrieve(ctx, projectID, args[0], types.RetrievalStrategy(searchStrategy), opts)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringVarP(&searchStrategy, "strategy", "s", "semantic", "retrieval strategy (semantic, hierarchical, hybrid, contextual, keyword)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum results (default from config)")
	searchCmd.Flags().Float64VarP(&searchThreshold, "threshold", "t", 0, "minimum similarity score")
	searchCmd.Flags().StringVar(&searchDocument, "document", "", "restrict results to one document")
	searchCmd.Flags().StringVar(&searchHeading, "heading", "", "restrict results to a heading path substring")
	searchCmd.Flags().IntVar(&searchContext, "context", 0, "attach this many neighbor chunks on each side")
	searchCmd.Flags().BoolVar(&searchBoostRecent, "boost-recent", false, "boost recently indexed chunks")
	searchCmd.Flags().DurationVar(&searchTimeout, "timeout", 0, "bound the retrieval call")
}
