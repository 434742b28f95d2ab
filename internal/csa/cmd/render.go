package cmd

import (
	"fmt"
	"io"
	"strings"

	"csa/internal/analysis"
	"csa/internal/csa/styles"
	"csa/internal/ui/colorize"
)

// displayFramework spaces the moniker's comma the way the .NET tools print
// it: ".NETCoreApp, Version=v8.0".
func displayFramework(moniker string) string {
	return strings.ReplaceAll(moniker, ",", ", ")
}

// WriteReport prints r in the plain-text info layout. opts decides which
// member sections are printed; an empty section still ends in a blank line.
func WriteReport(w io.Writer, r *analysis.Report, opts analysis.Options, st styles.Report) {
	field := func(label, value string) {
		fmt.Fprintf(w, "%s%s\n", st.Label(label), st.Value(value))
	}
	member := func(indent int, line string) {
		line = strings.Repeat("\t", indent) + line
		if st.Enabled() {
			line = colorize.Member(line)
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w, st.Header("--- Assembly Metadata ---"))
	fmt.Fprintln(w)
	field("Assembly Path: ", r.Path)
	field("Assembly Name: ", r.Name)
	field(".NET Version:  ", displayFramework(r.Framework))
	field("Architecture:  ", r.Architecture)
	if r.GlobalType != "" {
		field("Global type:   ", r.GlobalType)
	}
	if r.EntryPoint != "" {
		field("Entry point:   ", r.EntryPoint)
	}

	if opts.Types || opts.Fields || opts.Properties || opts.Methods {
		fmt.Fprintln(w)
		fmt.Fprintln(w, st.Header("--- Assembly Members --- "))
		for _, t := range r.Types {
			fmt.Fprintf(w, "%s%s:\n", strings.Repeat("\t", t.Depth), st.Type(t.FullName))
			if opts.Fields {
				for _, f := range t.Fields {
					member(t.Depth+1, f.String())
				}
				fmt.Fprintln(w)
			}
			if opts.Properties {
				for _, p := range t.Properties {
					member(t.Depth+1, p.String())
				}
				fmt.Fprintln(w)
			}
			if opts.Methods {
				for _, m := range t.Methods {
					member(t.Depth+1, m.String())
				}
				fmt.Fprintln(w)
			}
		}
	}

	if opts.Exports {
		fmt.Fprintln(w)
		fmt.Fprintln(w, st.Header("--- Native Exports ---"))
		if len(r.Exports) == 0 {
			fmt.Fprintln(w, st.Warn("(none)"))
		}
		for _, e := range r.Exports {
			fmt.Fprintln(w, exportLine(e))
		}
	}

	if opts.EntryStub {
		fmt.Fprintln(w)
		fmt.Fprintln(w, st.Header("--- Entry Stub ---"))
		if len(r.EntryStub) == 0 {
			fmt.Fprintln(w, st.Warn("(no native entry point)"))
		}
		for _, inst := range r.EntryStub {
			line := inst.String()
			if st.Enabled() {
				line = colorize.Instruction(line)
			}
			fmt.Fprintln(w, line)
		}
	}
}

func exportLine(e analysis.ExportSymbol) string {
	name := e.Name
	if e.Demangled != "" && e.Demangled != e.Name {
		name = fmt.Sprintf("%s (%s)", e.Demangled, e.Name)
	}
	if e.Forwarder != "" {
		return fmt.Sprintf("%4d  %-8s  %s -> %s", e.Ordinal, "forward", name, e.Forwarder)
	}
	return fmt.Sprintf("%4d  %08x  %s", e.Ordinal, e.RVA, name)
}

// ReportMarkdown renders r for the interactive view.
func ReportMarkdown(r *analysis.Report, opts analysis.Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Name)
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "| **%s** | `%s` |\n", k, strings.ReplaceAll(v, "|", `\|`))
		}
	}
	row("Assembly Path", r.Path)
	row(".NET Version", displayFramework(r.Framework))
	row("Architecture", r.Architecture)
	row("Runtime", r.RuntimeVersion)
	row("CorFlags", strings.Join(r.CorFlags, ", "))
	row("Global type", r.GlobalType)
	row("Entry point", r.EntryPoint)

	if len(r.Types) > 0 {
		b.WriteString("\n## Members\n")
		for _, t := range r.Types {
			fmt.Fprintf(&b, "\n### %s%s\n", strings.Repeat("› ", t.Depth), t.FullName)
			var lines []string
			for _, f := range t.Fields {
				lines = append(lines, f.String()+";")
			}
			for _, p := range t.Properties {
				lines = append(lines, p.String()+";")
			}
			for _, m := range t.Methods {
				lines = append(lines, m.String()+";")
			}
			if len(lines) > 0 {
				fmt.Fprintf(&b, "\n```csharp\n%s\n```\n", strings.Join(lines, "\n"))
			}
		}
	}

	if opts.Exports && len(r.Exports) > 0 {
		b.WriteString("\n## Native Exports\n\n```\n")
		for _, e := range r.Exports {
			b.WriteString(exportLine(e) + "\n")
		}
		b.WriteString("```\n")
	}
	if len(r.EntryStub) > 0 {
		fmt.Fprintf(&b, "\n## Entry Stub\n\n```nasm\n%s```\n", r.EntryStub.String())
	}
	return b.String()
}
