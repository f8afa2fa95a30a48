package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"attacknav/internal/changelog"
	"attacknav/internal/domain"
	"attacknav/internal/loader"
)

func runChangelog(args []string, stdout, stderr io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("changelog", flag.ContinueOnError)
	fs.SetOutput(stderr)
	asJSON := fs.Bool("json", false, "print the changelog as JSON")
	identifier := fs.String("domain", "enterprise-attack", "domain identifier of both bundles")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: layerctl changelog [-json] [-domain id] old.json new.json")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return fmt.Errorf("changelog needs exactly two bundle files")
	}

	parser := loader.NewParser(loader.Options{IncludeInactive: true}, logger)
	older, _, err := parser.ParseFiles(domain.Meta{Identifier: *identifier, Version: "old"}, fs.Arg(0))
	if err != nil {
		return err
	}
	newer, _, err := parser.ParseFiles(domain.Meta{Identifier: *identifier, Version: "new"}, fs.Arg(1))
	if err != nil {
		return err
	}

	diff := changelog.Compare(older, newer)
	removed := changelog.Removed(older, newer)

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*changelog.Changelog
			Removed []string `json:"removed"`
		}{diff, removed})
	}

	sections := []struct {
		title string
		ids   []string
	}{
		{"Additions", diff.Additions},
		{"Changes", diff.Changes},
		{"Minor changes", diff.MinorChanges},
		{"Deprecations", diff.Deprecations},
		{"Revocations", diff.Revocations},
		{"Removed", removed},
	}
	for _, s := range sections {
		fmt.Fprintf(stdout, "%s (%d)\n", s.title, len(s.ids))
		if len(s.ids) > 0 {
			fmt.Fprintf(stdout, "  %s\n", strings.Join(s.ids, ", "))
		}
	}
	fmt.Fprintf(stdout, "Unchanged (%d)\n", len(diff.Unchanged))
	return nil
}
