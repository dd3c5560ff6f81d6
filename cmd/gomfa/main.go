// Command gomfa operates the Postgres backend of goMFA: schema migrations,
// expired challenge reclamation and a Prometheus metrics endpoint.
package main

import (
	"fmt"
	"os"
)

// Set at build time.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s)", version, commit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
