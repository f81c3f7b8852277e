package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/raphaelgruber/aiact-go/internal/client"
	"github.com/raphaelgruber/aiact-go/internal/lexindex"
	"github.com/raphaelgruber/aiact-go/internal/retriever"
	"github.com/raphaelgruber/aiact-go/internal/service"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the TF-IDF index",
}

var indexBuildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"rebuild"},
	Short:   "Rebuild the index from the corpus",
	Long: `Rebuild the TF-IDF index from the corpus file and replace the persisted
index. Queries keep using the previous index until the new one is ready.

With --server the rebuild runs on the server as a background job.

Examples:
  aiact index build
  aiact index build --server http://localhost:8484`,
	Args: cobra.NoArgs,
	RunE: runIndexBuild,
}

var indexQueryCmd = &cobra.Command{
	Use:   "query <query>",
	Short: "Rank passages against a query (same as aiact search)",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the size of the index",
	Args:  cobra.NoArgs,
	RunE:  runIndexStats,
}

func init() {
	indexQueryCmd.Flags().IntVarP(&searchLimit, "limit", "k", 10, "max results")
	indexCmd.AddCommand(indexBuildCmd, indexQueryCmd, indexStatsCmd)
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if remote() {
		return rebuildRemote(ctx, client.New(serverURL))
	}
	return rebuildLocal(ctx)
}

func rebuildRemote(ctx context.Context, c *client.Client) error {
	job, err := c.RebuildIndex(ctx)
	if err != nil {
		return fmt.Errorf("start rebuild: %w", err)
	}

	if isTerminal() {
		fetch := func(ctx context.Context) (*service.Job, error) { return c.GetJob(ctx, job.ID) }
		return RunJobProgress(fetch, job, true)
	}

	fmt.Printf("Started job %s\n", job.ID)
	done, err := c.WaitJob(ctx, job.ID, pollInterval, nil)
	if err != nil {
		return err
	}
	fmt.Print(renderRebuildResult(defaultTheme, done))
	return nil
}

func rebuildLocal(ctx context.Context) error {
	local := newLocalBackend()
	svc := service.NewIndexService(ctx, local.retriever, local.catalog, service.NewJobManager(logger), logger)
	job := svc.StartRebuild("cli")

	if isTerminal() {
		fetch := func(ctx context.Context) (*service.Job, error) {
			j := svc.Jobs().GetJob(job.ID)
			if j == nil {
				return nil, fmt.Errorf("job not found: %s", job.ID)
			}
			return j.Snapshot(), nil
		}
		err := RunJobProgress(fetch, job.Snapshot(), false)
		svc.Wait()
		return err
	}

	svc.Wait()
	final := job.Snapshot()
	if final.Status == service.JobStatusFailed {
		return fmt.Errorf("rebuild index: %w", jobError(final))
	}
	fmt.Print(renderRebuildResult(defaultTheme, final))
	return nil
}

func runIndexStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var stats *service.IndexStats
	if remote() {
		resp, err := client.New(serverURL).Stats(ctx)
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}
		stats = resp.Index
	} else {
		// No corpus source: a missing index is reported, not rebuilt.
		r := retriever.New(lexindex.NewHandle(nil), nil, retriever.Options{Dir: cfg.IndexDir, Logger: logger})
		s, err := service.NewIndexService(ctx, r, nil, nil, logger).Stats(ctx)
		if errors.Is(err, lexindex.ErrIndexMissing) {
			return fmt.Errorf("%w (run 'aiact index build')", err)
		}
		if err != nil {
			return fmt.Errorf("load index: %w", err)
		}
		stats = &s
	}

	if stats == nil {
		fmt.Fprintln(os.Stderr, "Index is not loaded")
		return nil
	}
	fmt.Printf("Passages: %d\n", stats.Passages)
	fmt.Printf("Terms:    %d\n", stats.Terms)
	return nil
}
