package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"genescore/adapters/hybrid"
	"genescore/app"
	"genescore/domain/core"
	"genescore/domain/score"
	"genescore/internal"
	"genescore/internal/config"
	"genescore/internal/container"
	"genescore/internal/migration"
	"genescore/internal/refresh"
	"genescore/internal/scoring"
	"genescore/internal/testkit"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "genescore-cli",
		Short: "Administer the gene evidence scoring store",
	}

	rootCmd.AddCommand(
		newMigrateCmd(),
		newSeedCmd(),
		newImportCmd(),
		newTemplateCmd(),
		newRefreshCmd(),
		newScoresCmd(),
		newDemoCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withContainer builds an initialized container and shuts it down afterwards
func withContainer(ctx context.Context, fn func(c *container.Container) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	c, err := container.New(cfg)
	if err != nil {
		return err
	}
	if err := c.Init(ctx); err != nil {
		return err
	}
	defer c.Shutdown(context.Background())
	return fn(c)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := container.Connect(cmd.Context(), cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()

			runner := migration.NewRunner()
			if err := runner.Run(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Printf("schema at version %s\n", runner.Version())
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-sources [file]",
		Short: "Create or update source definitions from a YAML seed file",
		Long: `Apply a seed file to the source registry. Sources missing from the file
are left alone; an existing source keeps its active flag unless the file sets is_active.

Example: genescore-cli seed-sources config/sources.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(c *container.Container) error {
				if len(args) == 1 {
					c.Config.Sources.File = args[0]
				}
				if c.Config.Sources.File == "" {
					return fmt.Errorf("no seed file given and SOURCES_FILE is unset")
				}
				res, err := c.SeedSources(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [source] [file]",
		Short: "Replace a hybrid source's evidence with an .xlsx or .csv upload",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			return withContainer(cmd.Context(), func(c *container.Container) error {
				mut, err := c.IngestionService.ImportUpload(cmd.Context(), core.SourceName(args[0]), args[1], f)
				if err != nil {
					return err
				}
				fmt.Printf("imported %s: %d records in, %d out, %d genes affected\n",
					args[0], mut.Inserted, mut.Deleted, mut.AffectedGeneCount())
				fmt.Println("scores update on the next recompute (genescore-cli refresh)")
				return nil
			})
		},
	}
}

func newTemplateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "template [out.xlsx] [extra-columns...]",
		Short: "Write an empty upload workbook",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return hybrid.WriteTemplate(f, args[1:]...)
		},
	}
}

func newRefreshCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Recompute every score and store the aggregates",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return withContainer(ctx, func(c *container.Container) error {
				c.Coordinator.Start(ctx)
				if err := c.ScoreService.Refresh(ctx); err != nil {
					return err
				}
				return printJSON(c.ScoreService.Status())
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Give up after this long")
	return cmd
}

func newScoresCmd() *cobra.Command {
	var (
		limit      int
		minSources int
		minPct     float64
		tier       string
		sortBy     string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "scores",
		Short: "List the stored gene aggregates",
		Long: `List the aggregates of the last stored recompute.

Example: genescore-cli scores --limit 20 --tier comprehensive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(c *container.Container) error {
				if _, err := c.Coordinator.Restore(cmd.Context()); err != nil {
					return err
				}
				page, err := c.ScoreService.List(score.Query{
					Limit:         limit,
					MinSources:    minSources,
					MinPercentage: minPct,
					Tier:          score.Tier(tier),
					Sort:          score.SortField(sortBy),
				})
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(page)
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "GENE\tSYMBOL\tPERCENTAGE\tSOURCES\tTIER")
				for _, agg := range page.Items {
					fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\t%s\n", agg.GeneID, agg.GeneSymbol, agg.PercentageScore, agg.SourceCount, agg.Tier)
				}
				fmt.Fprintf(w, "\n%d of %d genes (generation %d)\n", len(page.Items), page.Total, page.Generation)
				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum genes to list")
	cmd.Flags().IntVar(&minSources, "min-sources", 0, "Minimum contributing sources")
	cmd.Flags().Float64Var(&minPct, "min-percentage", 0, "Minimum percentage score")
	cmd.Flags().StringVar(&tier, "tier", "", "Only this tier")
	cmd.Flags().StringVar(&sortBy, "sort", "", "percentage_score, tier or source_count")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newDemoCmd() *cobra.Command {
	var (
		genes int
		seed  int64
		top   int
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Score synthetic evidence in memory and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			config := testkit.DefaultEvidenceConfig()
			config.GeneCount = genes
			config.Seed = seed

			kit, err := testkit.NewTestKit(ctx, config)
			if err != nil {
				return err
			}
			logger := internal.DefaultLogger.With("demo")
			engine := scoring.NewEngine(scoring.Options{Logger: logger})
			coord := refresh.New(engine, kit.Sources, kit.Evidence, kit.Cache, refresh.Config{Logger: logger})
			coord.Start(ctx)
			defer coord.Stop()

			if err := coord.Refresh(ctx); err != nil {
				return err
			}
			fmt.Println(app.NewScoreService(coord).Report(top))
			return nil
		},
	}

	cmd.Flags().IntVar(&genes, "genes", 500, "Synthetic genes to generate")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for deterministic generation")
	cmd.Flags().IntVar(&top, "top", 20, "Genes in the report")
	return cmd
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
