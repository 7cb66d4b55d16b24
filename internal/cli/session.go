package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/kraklabs/crawlcache-core/internal/config"
	"github.com/kraklabs/crawlcache-core/internal/session"
	"github.com/kraklabs/crawlcache-core/internal/token"
)

var (
	sessionRedisAddr    string
	sessionConfigFile   string
	sessionSecretKey    string
)

// sessionDemoCmd wires the Session/Token Core (C16) to a stdin REPL
// the same way cache-server exercises the cache fabric: login issues
// a session and a token pair, lookup/refresh/revoke exercise the rest
// of the state machine, and the login path goes through RateLimiter
// first so the per-purpose windows from spec.md §4.16 are live.
var sessionDemoCmd = &cobra.Command{
	Use:   "session-demo",
	Short: "Exercise the Session & Token Core (C16) from an interactive REPL.",
	Long: `session-demo builds a token.Service and a session.Manager over Redis
and reads login/lookup/refresh/revoke commands from stdin, enforcing
the login rate limits a real auth handler would sit in front of.`,
	RunE: func(c *cobra.Command, args []string) error {
		sessCfg := config.WithDefaultSessionConfig(sessionSecretKey)
		if sessionConfigFile != "" {
			loaded, err := config.WithSessionConfigFile(sessionConfigFile)
			if err != nil {
				return err
			}
			sessCfg = &loaded
		}
		if sessCfg.SecretKey() == "" {
			return fmt.Errorf("--secret-key or a --session-config-file with secretKey is required")
		}

		redisClient := goredis.NewClient(&goredis.Options{Addr: sessionRedisAddr})
		defer redisClient.Close()

		store := session.NewStore(redisClient)
		tokens := token.NewService([]byte(sessCfg.SecretKey()),
			token.WithBlacklist(session.NewAccessBlacklistAdapter(store)))
		manager := session.NewManager(store, tokens, session.Config{
			AccessTokenTTL:     sessCfg.AccessTokenTTL(),
			RefreshTokenTTL:    sessCfg.RefreshTokenTTL(),
			IdleTimeout:        sessCfg.IdleTimeout(),
			MaxSessionsPerUser: sessCfg.MaxSessionsPerUser(),
			BlacklistMinTTL:    sessCfg.BlacklistTTLMin(),
		}, nil)
		limiter := session.NewRateLimiter(redisClient).WithLockPolicy(
			int64(sessCfg.LoginFailureThreshold()), sessCfg.LoginLockDuration())

		color.Green("session-demo ready (namespace=%s) — commands: login/lookup/refresh/revoke/quit", sessCfg.Namespace())
		return runSessionREPL(c.Context(), manager, limiter)
	},
}

func runSessionREPL(ctx context.Context, manager *session.Manager, limiter *session.RateLimiter) error {
	if ctx == nil {
		ctx = context.Background()
	}
	scanner := bufio.NewScanner(os.Stdin)
	var last *session.Tokens
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "quit", "exit":
			return nil
		case "login":
			if len(fields) < 2 {
				fmt.Println("usage: login <user-id>")
				continue
			}
			userID := fields[1]
			allowed, retryAfter, lerr := limiter.Allow(ctx, "login", userID, session.LoginLimits())
			if lerr != nil {
				color.Red("login rate check failed: %v", lerr)
				continue
			}
			if !allowed {
				color.Yellow("login rejected: retry after %v", retryAfter)
				continue
			}
			toks, serr := manager.Create(ctx, session.LoginInput{
				UserID:      userID,
				UserStatus:  session.UserStatusActive,
				LoginMethod: session.LoginMethodPassword,
				DeviceComponents: session.DeviceComponents{
					UserAgent: "session-demo-cli",
				},
			})
			if serr != nil {
				color.Red("login failed: %v", serr)
				continue
			}
			last = toks
			fmt.Printf("session=%s access=%s refresh=%s\n", toks.Session.ID, toks.AccessToken, toks.RefreshToken)
		case "lookup":
			if last == nil {
				fmt.Println("no session yet; login first")
				continue
			}
			rec, serr := manager.Lookup(ctx, last.AccessToken, "")
			if serr != nil {
				color.Red("lookup failed: %v", serr)
				continue
			}
			fmt.Printf("session=%s user=%s status=%s\n", rec.ID, rec.UserID, rec.StoredStatus)
		case "refresh":
			if last == nil {
				fmt.Println("no session yet; login first")
				continue
			}
			toks, serr := manager.Refresh(ctx, last.RefreshToken)
			if serr != nil {
				color.Red("refresh failed: %v", serr)
				continue
			}
			last = toks
			fmt.Printf("access=%s refresh=%s\n", toks.AccessToken, toks.RefreshToken)
		case "revoke":
			if last == nil {
				fmt.Println("no session yet; login first")
				continue
			}
			if serr := manager.Revoke(ctx, last.Session.ID, session.RevokeReasonLogout); serr != nil {
				color.Red("revoke failed: %v", serr)
				continue
			}
			fmt.Println("OK")
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
	return scanner.Err()
}

func init() {
	sessionDemoCmd.Flags().StringVar(&sessionRedisAddr, "redis-addr", "localhost:6379", "address of the Redis instance backing session storage and blacklists")
	sessionDemoCmd.Flags().StringVar(&sessionConfigFile, "session-config-file", "", "session config file (JSON or YAML)")
	sessionDemoCmd.Flags().StringVar(&sessionSecretKey, "secret-key", "", "HS256 signing secret for the token service")
	rootCmd.AddCommand(sessionDemoCmd)
}
