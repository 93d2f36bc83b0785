package cmd

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

const modelsUsage = `Usage:
  thanos-chat models [--config <path>]

Flags:
  --config string   Path to YAML configuration file (defaults built in)`

func listModels(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, modelsUsage)
	}

	var cfgPath string
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: parse models flags: %v", ErrUsage, err)
	}

	cfg, _, err := loadConfig(cfgPath, "")
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPROVIDER\tUPSTREAM\tFREE\tSTRENGTHS")
	for _, m := range cfg.Models {
		free := "no"
		if m.FreeTier {
			free = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Provider, m.ModelID, free, strings.Join(m.Strengths, ", "))
	}
	return tw.Flush()
}
