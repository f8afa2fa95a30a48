package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"attacknav/internal/chain"
	"attacknav/internal/domain"
	"attacknav/internal/loader"
)

func runChains(args []string, stdout, stderr io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("chains", flag.ContinueOnError)
	fs.SetOutput(stderr)
	technique := fs.String("technique", "", "ATT&CK id of the technique, e.g. T1078")
	index := fs.Bool("index", false, "list every technique that has chains instead")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: layerctl chains -technique T1078 bundle.json...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 || (*technique == "" && !*index) {
		fs.Usage()
		return fmt.Errorf("chains needs -technique (or -index) and at least one bundle file")
	}

	d, _, err := loader.NewParser(loader.Options{}, logger).ParseFiles(domain.Meta{Identifier: "enterprise-attack"}, fs.Args()...)
	if err != nil {
		return err
	}

	if *index {
		for _, id := range chain.Index(d) {
			fmt.Fprintln(stdout, id)
		}
		return nil
	}

	result, err := chain.Build(d, strings.ToUpper(*technique))
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s %s: %d group(s)\n", result.AttackID, result.Name, len(result.Chains))
	for _, c := range result.Chains {
		fmt.Fprintf(stdout, "\n%s %s\n", c.GroupID, c.GroupName)
		for _, ref := range c.Campaigns {
			fmt.Fprintf(stdout, "  campaign %s %s\n", ref.AttackID, ref.Name)
		}
		tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		for _, s := range c.Steps {
			marker := " "
			if s.Focus {
				marker = "*"
			}
			via := ""
			if s.ViaCampaign {
				via = "(campaign)"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", marker, s.AttackID, s.Tactic, s.Name, via)
		}
		tw.Flush()
	}
	return nil
}
