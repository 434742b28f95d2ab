package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"csa/internal/decompiler"
)

// DecompileOptions are the parsed arguments of `csa decompile`.
type DecompileOptions struct {
	Path        string
	OutputDir   string
	Tool        string
	Parallelism int
	KeepLog     bool
}

func newDecompileCmd(a *app) *cobra.Command {
	var opts DecompileOptions

	c := &cobra.Command{
		Use:   "decompile <path>",
		Short: "Decompile an assembly into a C# project",
		Long: `Run the external ilspycmd decompiler over an assembly and write a C# project.
The output directory defaults to the assembly name in the current directory.`,
		Example: `
# Decompile into ./App
csa decompile ./bin/App.dll

# Choose the output directory and keep the decompiler log
csa decompile ./bin/App.dll -o /tmp/App --keep-log
  `,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Flags and arguments are valid; what follows is not a usage error.
			cmd.SilenceUsage = true
			opts.Path = args[0]
			if !cmd.Flags().Changed("decompiler") && a.cfg.Decompiler != "" {
				opts.Tool = a.cfg.Decompiler
			}
			if !cmd.Flags().Changed("parallelism") && a.cfg.Parallelism > 0 {
				opts.Parallelism = a.cfg.Parallelism
			}
			return runDecompile(cmd.Context(), a, opts, &decompiler.ILSpyCmd{Tool: opts.Tool}, cmd.OutOrStdout())
		},
	}

	f := c.Flags()
	f.StringVarP(&opts.OutputDir, "output", "o", "", "Output directory (default: the assembly name)")
	f.StringVar(&opts.Tool, "decompiler", decompiler.DefaultTool, "Decompiler executable")
	f.IntVar(&opts.Parallelism, "parallelism", 0, "Worker hint for the decompiler (default: CPUs - 1)")
	f.BoolVar(&opts.KeepLog, "keep-log", false, "Keep "+decompiler.LogName+" in the output directory")

	return c
}

func runDecompile(ctx context.Context, a *app, opts DecompileOptions, backend decompiler.Backend, w io.Writer) error {
	return decompiler.Run(ctx, decompiler.Options{
		Input:       opts.Path,
		OutputDir:   opts.OutputDir,
		OutputRoot:  a.cfg.OutputRoot,
		Parallelism: opts.Parallelism,
		KeepLog:     opts.KeepLog,
	}, backend, w, a.logger.Logger)
}
