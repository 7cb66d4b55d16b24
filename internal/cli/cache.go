package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/kraklabs/crawlcache-core/internal/appcache"
	"github.com/kraklabs/crawlcache-core/internal/cachemgr"
	"github.com/kraklabs/crawlcache-core/internal/config"
	"github.com/kraklabs/crawlcache-core/internal/distcache"
	"github.com/kraklabs/crawlcache-core/internal/distsync"
	"github.com/kraklabs/crawlcache-core/internal/edgecache"
	"github.com/kraklabs/crawlcache-core/internal/invalidator"
)

var (
	cacheRedisAddr  string
	cacheConfigFile string
	cacheNodeID     string
)

// cacheServerCmd is a REPL-style demo that wires every cache-fabric
// component (C10-C15) into one cachemgr.Manager and lets an operator
// exercise get/set/del/invalidate-tag against it, the same
// cosmetic-status-output role root.go's plain Printf lines play for
// the crawler, using fatih/color the way vjache-cie does for
// human-readable CLI status.
var cacheServerCmd = &cobra.Command{
	Use:   "cache-server",
	Short: "Run an interactive session over the layered cache fabric (C10-C15).",
	Long: `cache-server assembles the Application (C10), Distributed (C11), and
Edge (C12) cache layers behind a Cache Manager (C13), wires the Cache
Invalidator (C14) to it, and fans invalidations out over Distributed
Sync (C15). It then reads get/set/del/tag commands from stdin so the
wiring can be exercised interactively.`,
	RunE: func(c *cobra.Command, args []string) error {
		cacheCfg := config.WithDefaultCacheConfig()
		if cacheConfigFile != "" {
			loaded, err := config.WithCacheConfigFile(cacheConfigFile)
			if err != nil {
				return err
			}
			cacheCfg = &loaded
		}

		redisClient := goredis.NewClient(&goredis.Options{Addr: cacheRedisAddr})
		defer redisClient.Close()

		application := appcache.New(
			appcache.WithMaxEntries(cacheCfg.ApplicationMaxEntries()),
			appcache.WithMaxSize(cacheCfg.ApplicationMaxSizeBytes()),
		)
		distributed := distcache.New(redisClient, cacheCfg.DistributedNamespace(), distcache.FormatJSON)
		edge := edgecache.NewManager(edgecache.NewCloudFrontProvider(), nil)

		manager := cachemgr.NewManager(
			cachemgr.NewEdgeLayer(edge),
			cachemgr.NewDistributedLayer(distributed),
			cachemgr.NewApplicationLayer(application),
			cachemgr.NewLocalLayer(),
		)
		defer manager.Close()

		node := distsync.NewNode(redisClient, cacheNodeID, distsync.StrategyBroadcast, 3, nil)
		if err := node.Start(context.Background()); err != nil {
			return err
		}
		defer node.Stop()

		graph := invalidator.NewDependencyGraph()
		sink := cachemgr.NewSyncingSink(cachemgr.NewInvalidatorSink(manager, application), node)
		processor := invalidator.NewProcessor(sink, graph)

		color.Green("cache-server ready (node=%s, namespace=%s) — commands: set/get/del/tag/dep/invalidate/quit", cacheNodeID, cacheCfg.DistributedNamespace())
		return runCacheREPL(c.Context(), manager, graph, processor)
	},
}

// runCacheREPL is the interactive loop; it's deliberately tiny since
// the point is exercising the wiring, not building a shell.
func runCacheREPL(ctx context.Context, manager *cachemgr.Manager, graph *invalidator.DependencyGraph, processor *invalidator.Processor) error {
	if ctx == nil {
		ctx = context.Background()
	}
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "quit", "exit":
			return nil
		case "set":
			if len(fields) < 3 {
				fmt.Println("usage: set <key> <value>")
				continue
			}
			if err := manager.Set(ctx, fields[1], []byte(fields[2]), 5*time.Minute); err != nil {
				color.Red("set failed: %v", err)
				continue
			}
			fmt.Println("OK")
		case "get":
			if len(fields) < 2 {
				fmt.Println("usage: get <key>")
				continue
			}
			value, found, err := manager.Get(ctx, fields[1])
			if err != nil {
				color.Red("get failed: %v", err)
				continue
			}
			if !found {
				fmt.Println("(nil)")
				continue
			}
			fmt.Println(string(value))
		case "del":
			if len(fields) < 2 {
				fmt.Println("usage: del <key>")
				continue
			}
			if err := manager.Delete(ctx, fields[1], nil); err != nil {
				color.Red("del failed: %v", err)
				continue
			}
			fmt.Println("OK")
		case "dep":
			if len(fields) < 3 {
				fmt.Println("usage: dep <key> <dependsOn>")
				continue
			}
			graph.AddDependency(fields[1], fields[2])
			fmt.Println("OK")
		case "invalidate":
			if len(fields) < 2 {
				fmt.Println("usage: invalidate <key> [cascade]")
				continue
			}
			ruleType := invalidator.RuleImmediate
			if len(fields) > 2 && fields[2] == "cascade" {
				ruleType = invalidator.RuleCascade
			}
			processor.Submit(invalidator.Event{
				Type:         ruleType,
				Source:       "cache-server",
				Timestamp:    time.Now(),
				AffectedKeys: []string{fields[1]},
			})
			processor.Flush()
			fmt.Println("OK")
		case "tag":
			if len(fields) < 2 {
				fmt.Println("usage: tag <tag>")
				continue
			}
			processor.Submit(invalidator.Event{
				Type:         invalidator.RuleTag,
				Source:       "cache-server",
				Timestamp:    time.Now(),
				AffectedTags: []string{fields[1]},
			})
			processor.Flush()
			fmt.Println("OK")
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
	return scanner.Err()
}

func init() {
	cacheServerCmd.Flags().StringVar(&cacheRedisAddr, "redis-addr", "localhost:6379", "address of the Redis instance backing the distributed cache, invalidation graph sync, and heartbeats")
	cacheServerCmd.Flags().StringVar(&cacheConfigFile, "cache-config-file", "", "cache config file (JSON or YAML)")
	cacheServerCmd.Flags().StringVar(&cacheNodeID, "node-id", "cache-node-1", "stable node id for distributed sync heartbeats")
	rootCmd.AddCommand(cacheServerCmd)
}
