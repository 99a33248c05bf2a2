// Command mapperd is the volume mapper daemon: it maps a volume's logical
// block range onto content-addressed objects, coordinating with a data
// blocker and a map blocker over their RPC ports.
package main

import (
	"os"

	"github.com/marmos91/mapperd/cmd/mapperd/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		commands.PrintErr("%v", err)
		os.Exit(1)
	}
}
