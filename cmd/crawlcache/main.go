// Command crawlcache is the single binary entrypoint for the crawler,
// cache fabric, and session/token core: crawl, cache-server, and
// session-demo are subcommands of the same cobra root.
package main

import cmd "github.com/kraklabs/crawlcache-core/internal/cli"

func main() {
	cmd.Execute()
}
