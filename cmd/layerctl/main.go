// Command layerctl works with ATT&CK bundles and layer files offline.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
)

const usage = `usage: layerctl <command> [flags] [args]

commands:
  changelog  compare two bundle files
  compose    combine layer files with a score expression
  chains     list the attack chains through a technique
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "layerctl: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return flag.ErrHelp
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	switch args[0] {
	case "changelog":
		return runChangelog(args[1:], stdout, stderr, logger)
	case "compose":
		return runCompose(args[1:], stdout, stderr, logger)
	case "chains":
		return runChains(args[1:], stdout, stderr, logger)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}
