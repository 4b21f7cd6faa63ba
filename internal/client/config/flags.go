package config

import (
	"flag"
	"os"

	"github.com/pocketchat/pocketchat/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   path to the local database file
//	-b int      cache budget in bytes
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-b"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path to the local database file")
	fs.Int64Var(&cfg.CacheBudgetBytes, "b", cfg.CacheBudgetBytes, "cache budget in bytes")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
