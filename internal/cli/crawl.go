package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kraklabs/crawlcache-core/internal/crawl"
	"github.com/kraklabs/crawlcache-core/internal/metadata"
)

var crawlRedisAddr string

// crawlCmd wires the Orchestrator (C9) to the flag-bound config the
// root command already builds, so a real crawl job actually runs
// instead of only printing the resolved configuration. It reuses
// root.go's InitConfigWithError so every existing --seed-url/--max-*
// flag keeps working unchanged.
var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run a distributed crawl job against the Priority URL Queue and worker pool.",
	Long: `crawl starts a Crawl Orchestrator job (C9): it seeds the Redis-backed
Priority URL Queue (C3) with the configured seed URLs, runs a pool of
worker goroutines honoring robots.txt (C4) and the Rate Governor (C2),
and reports progress until the job reaches a terminal state.`,
	RunE: func(c *cobra.Command, args []string) error {
		if len(seedURLs) == 0 {
			return fmt.Errorf("--seed-url is required")
		}
		parsedURLs, err := parseSeedURLs(seedURLs)
		if err != nil {
			return err
		}
		cfg, err := InitConfigWithError(parsedURLs)
		if err != nil {
			return err
		}

		logger, _ := zap.NewProduction()
		defer logger.Sync()

		redisClient := goredis.NewClient(&goredis.Options{Addr: crawlRedisAddr})
		defer redisClient.Close()

		sink := metadata.NewRecorder(logger)

		orch, orchErr := crawl.NewOrchestrator(redisClient, sink)
		if orchErr != nil {
			return orchErr
		}

		job, jobErr := orch.CreateJob(cfg, func(result crawl.CrawlResult) {
			logger.Info("crawl result",
				zap.String("url", result.URL),
				zap.String("outcome", string(result.Outcome)),
				zap.Int("status", result.StatusCode),
			)
		})
		if jobErr != nil {
			return jobErr
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if startErr := orch.StartJob(ctx, job.ID); startErr != nil {
			return startErr
		}

		fmt.Printf("crawl job %s started\n", job.ID)
		if waitErr := orch.Wait(job.ID); waitErr != nil {
			return waitErr
		}

		status, _ := orch.Status(job.ID)
		stats, _ := orch.Stats(job.ID)
		fmt.Printf("crawl job %s finished: status=%s pages_written=%d pages_duplicate=%d pages_failed=%d\n",
			job.ID, status, stats.PagesWritten, stats.PagesDuplicate, stats.PagesFailed)
		return nil
	},
}

func init() {
	crawlCmd.Flags().StringVar(&crawlRedisAddr, "redis-addr", "localhost:6379", "address of the Redis instance backing the queue, bloom snapshot, and dedup store")
	rootCmd.AddCommand(crawlCmd)
}
