package main

import (
	"github.com/spf13/cobra"

	"github.com/mnemos-ai/mnemos/internal/service"
)

func newConsolidateCmd() *cobra.Command {
	var (
		agent  string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Run consolidation agents (all, or one by name)",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newStack()
			if err != nil {
				return err
			}
			if agent != "" {
				report, err := s.scheduler.RunAgent(cmd.Context(), agent, dryRun)
				if err != nil {
					return err
				}
				return printJSON(report)
			}
			reports, err := s.scheduler.Tick(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			return printJSON(reports)
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "run a single agent (decay_analyzer, cluster_detector, semantic_merge, ltm_promoter, relationship_discovery)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report intended actions without applying them")
	return cmd
}

func newGCCmd() *cobra.Command {
	var (
		dryRun  bool
		archive bool
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Remove (or archive) memories below the forget threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newStack()
			if err != nil {
				return err
			}
			resp, err := s.memories.GC(service.GCRequest{
				DryRun:         dryRun,
				ArchiveInstead: archive,
				Limit:          limit,
			})
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without deleting")
	cmd.Flags().BoolVar(&archive, "archive", false, "archive instead of delete")
	cmd.Flags().IntVar(&limit, "limit", 0, "cap the number of memories affected")
	return cmd
}

func newCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Rewrite the append-only storage files without dead lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newStack()
			if err != nil {
				return err
			}
			result, err := s.memories.Compact()
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func newSearchCmd() *cobra.Command {
	var (
		topK    int
		unified bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories (add --unified to include the LTM vault)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newStack()
			if err != nil {
				return err
			}
			if unified {
				resp, err := s.unified.Search(cmd.Context(), service.UnifiedRequest{Query: args[0], TopK: topK})
				if err != nil {
					return err
				}
				return printJSON(resp)
			}
			resp, err := s.memories.Search(cmd.Context(), service.SearchRequest{Query: args[0], TopK: topK})
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 10, "maximum results")
	cmd.Flags().BoolVar(&unified, "unified", false, "search short-term and long-term tiers together")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show storage file statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newStack()
			if err != nil {
				return err
			}
			stats, err := s.memories.StorageStats()
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}
