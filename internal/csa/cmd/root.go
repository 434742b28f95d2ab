// Package cmd is the csa command line: the info and decompile subcommands,
// their option structs and the report renderers.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"csa/internal/config"
	csalog "csa/internal/csa/log"
	"csa/internal/logging"
	"csa/internal/ui/colorize"
)

// app is the state shared by the subcommands once global flags and the
// config file have been read.
type app struct {
	configPath string
	debug      bool
	noColor    bool

	cfg         *config.Config
	logger      *logging.LoggerCloser
	color       bool
	interactive bool
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

// setup runs after flag parsing and argument validation.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		cmd.SilenceUsage = true
		return err
	}
	a.cfg = cfg

	debug := a.debug || cfg.Debug
	if cfg.LogFile == "" && os.Getenv("CSA_LOG_TO_FILE") != "1" {
		a.logger = logging.NewLoggerWithWriter(cmd.ErrOrStderr(), debug)
	} else {
		a.logger = logging.NewLogger(cfg.LogFile, debug)
	}
	csalog.Setup(cfg.LogFile, debug || logging.IsDebug())

	// Renderers get the colour decision through styles.Report.
	a.interactive = isTerminal(cmd.OutOrStdout())
	a.color = a.interactive && !a.noColor && !cfg.NoColor && !colorize.Disabled()
	a.logger.Debug("Configured", "config", a.configPath, "color", a.color, "interactive", a.interactive)
	return nil
}

func newApp() *app {
	return &app{
		cfg:    &config.Config{},
		logger: logging.NewLoggerWithWriter(io.Discard, false),
	}
}

// close releases the logger. cobra skips PersistentPostRun when RunE
// fails, so it runs after the whole command instead.
func (a *app) close() {
	if err := a.logger.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "csa: close log:", err)
	}
}

// execute runs fn and then closes the logger.
func (a *app) execute(fn func() error) error {
	defer a.close()
	return fn()
}

// NewRootCmd builds the csa command tree.
func NewRootCmd() *cobra.Command {
	return newApp().command()
}

func (a *app) command() *cobra.Command {
	root := &cobra.Command{
		Use:   "csa",
		Short: "Inspect and decompile .NET assemblies",
		Long: `csa reads the PE headers and CLI metadata of a .NET assembly to report its
architecture, target framework and types, and drives ilspycmd to turn it
back into a C# project.`,
		Example: `
# Show assembly metadata
csa info ./bin/App.dll

# Decompile with debug logging
csa -d decompile ./bin/App.dll
  `,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (default $"+config.EnvPath+")")
	pf.BoolVarP(&a.debug, "debug", "d", false, "Debug")
	pf.BoolVar(&a.noColor, "no-color", false, "Disable coloured output")

	root.AddCommand(newInfoCmd(a), newDecompileCmd(a), newSchemaCmd())
	return root
}

// Execute runs the command line and exits non-zero on failure. fang
// renders help and errors on terminals; piped output gets plain cobra.
func Execute() {
	a := newApp()
	root := a.command()

	if term.IsTerminal(os.Stdout.Fd()) {
		if err := a.execute(func() error {
			return fang.Execute(
				context.Background(),
				root,
				fang.WithNotifySignal(os.Interrupt),
			)
		}); err != nil {
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := a.execute(func() error { return root.ExecuteContext(ctx) })
	stop()
	if err != nil {
		os.Exit(1)
	}
}
