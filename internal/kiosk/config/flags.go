package config

import (
	"flag"
	"os"

	"github.com/rostermark/kiosk/internal/flagx"
)

// parseFlags overlays cfg with command-line flags:
//
//	-a string   backend base URL
//	-d string   kiosk database path
//	-p string   program id served by this kiosk
//
// Only the flags above are parsed; the argument list is pre-filtered with
// flagx.FilterArgs so flags owned by other components are ignored.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-p"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.BackendBaseURL, "a", cfg.BackendBaseURL, "backend base URL")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "kiosk database path")
	fs.StringVar(&cfg.ProgramID, "p", cfg.ProgramID, "program id")

	_ = fs.Parse(args)
}
