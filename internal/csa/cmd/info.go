package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/spf13/cobra"

	"csa/internal/analysis"
	"csa/internal/csa/styles"
)

// InfoOptions are the parsed arguments of `csa info`.
type InfoOptions struct {
	Path       string
	Types      bool
	Fields     bool
	Properties bool
	Methods    bool
	Exports    bool
	EntryStub  bool
	JSON       bool
	TUI        bool
}

// Analysis maps the flags to inspector options. Any member flag implies
// Types.
func (o InfoOptions) Analysis() analysis.Options {
	return analysis.Options{
		Types:      o.Types || o.Fields || o.Properties || o.Methods,
		Fields:     o.Fields,
		Properties: o.Properties,
		Methods:    o.Methods,
		Exports:    o.Exports,
		EntryStub:  o.EntryStub,
	}
}

var errTUINeedsTerminal = errors.New("--tui needs an interactive terminal")

func newInfoCmd(a *app) *cobra.Command {
	var opts InfoOptions

	c := &cobra.Command{
		Use:   "info <path>",
		Short: "Print assembly metadata and, optionally, its members",
		Long: `Print the metadata of a .NET assembly: path, full name, target framework,
architecture, global type and entry point. Member flags add the type tree.`,
		Example: `
# Basic metadata
csa info ./bin/App.dll

# Every type with its fields, properties and methods
csa info ./bin/App.dll --fields --props --methods

# Machine-readable report
csa info ./bin/App.dll --types --json
  `,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Flags and arguments are valid; what follows is not a usage error.
			cmd.SilenceUsage = true
			opts.Path = args[0]
			return runInfo(cmd.Context(), a, opts, cmd.OutOrStdout())
		},
	}

	f := c.Flags()
	f.BoolVarP(&opts.Types, "types", "t", false, "List every type")
	f.BoolVarP(&opts.Fields, "fields", "f", false, "List fields (implies --types)")
	f.BoolVarP(&opts.Properties, "props", "p", false, "List properties (implies --types)")
	f.BoolVarP(&opts.Methods, "methods", "m", false, "List methods (implies --types)")
	f.BoolVarP(&opts.Exports, "exports", "e", false, "List native exports of mixed-mode images")
	f.BoolVar(&opts.EntryStub, "entry-stub", false, "Disassemble the native entry stub")
	f.BoolVarP(&opts.JSON, "json", "j", false, "Print the report as JSON")
	f.BoolVar(&opts.TUI, "tui", false, "Browse the report interactively")
	c.MarkFlagsMutuallyExclusive("json", "tui")

	return c
}

func runInfo(ctx context.Context, a *app, opts InfoOptions, w io.Writer) error {
	aopts := opts.Analysis()
	a.logger.Debug("Inspecting assembly", "path", opts.Path, "options", fmt.Sprintf("%+v", aopts))

	if opts.TUI {
		if !a.interactive {
			return errTUINeedsTerminal
		}
		return runInfoTUI(ctx, opts.Path, aopts)
	}

	r, err := analysis.Open(opts.Path, aopts)
	if err != nil {
		return err
	}
	if aopts.Exports {
		symbols, hits := analysis.DemangleCacheStats()
		a.logger.Debug("Demangled exports", "exports", len(r.Exports), "cached", symbols, "hits", hits)
	}
	if opts.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	WriteReport(w, r, aopts, styles.NewReport(a.color))
	return nil
}

func runInfoTUI(ctx context.Context, path string, opts analysis.Options) error {
	program := tea.NewProgram(
		newInfoModel(path, opts),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	final, err := program.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	if m, ok := final.(infoModel); ok && m.err != nil {
		return m.err
	}
	return nil
}
