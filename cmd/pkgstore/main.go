package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"pkgstore/internal/app"
	"pkgstore/internal/importer"
	"pkgstore/internal/pkgerr"
)

type ExitCoder interface {
	ExitCode() int
}

type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
func (e *exitError) ExitCode() int { return e.code }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if ex, ok := err.(ExitCoder); ok {
			os.Exit(ex.ExitCode())
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var storeRoot string
	var jsonOutput bool

	newSvc := func() (*app.Service, error) {
		return app.New(app.Options{ConfigPath: configPath, StoreRoot: storeRoot})
	}

	cmd := &cobra.Command{
		Use:           "pkgstore",
		Short:         "Import package archives into a local versioned store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	cmd.PersistentFlags().StringVar(&storeRoot, "store", "", "store root (overrides config and $PKGSTORE_ROOT)")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")

	cmd.AddCommand(newImportCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newListCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newVerifyCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newDoctorCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newHistoryCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newVersionCmd(&jsonOutput))

	return cmd
}

type importFailure struct {
	Archive string `json:"archive"`
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

type importOutput struct {
	Imported []importer.Result `json:"imported"`
	Error    *importFailure    `json:"error,omitempty"`
}

func newImportCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "import <archive>...",
		Aliases: []string{"i", "add"},
		Short:   "Import package archives (.tgz, .gz, .zip) into the store",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			results, importErr := svc.Import(cmd.Context(), args)
			out := cmd.OutOrStdout()
			if *jsonOutput {
				payload := importOutput{Imported: results}
				if importErr != nil {
					payload.Error = &importFailure{
						Archive: failedArchive(args, results),
						Code:    pkgerr.CodeOf(importErr),
						Kind:    string(pkgerr.KindOf(importErr)),
						Message: importErr.Error(),
					}
				}
				if err := print(out, true, payload, ""); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					switch {
					case r.ManifestStale:
						fmt.Fprintf(out, "installed %s@%s -> %s (stale manifest at %s)\n", r.Name, r.Version, r.Path, r.ManifestPath)
						continue
					case r.ManifestMissing:
						fmt.Fprintf(out, "installed %s@%s -> %s (manifest missing)\n", r.Name, r.Version, r.Path)
						continue
					}
					if r.AlreadyInstalled {
						fmt.Fprintf(out, "%s@%s already installed at %s\n", r.Name, r.Version, r.Path)
						continue
					}
					fmt.Fprintf(out, "imported %s@%s -> %s (%d files)\n", r.Name, r.Version, r.Path, r.Files)
				}
			}
			if importErr != nil {
				return &exitError{code: 2, msg: importErr.Error()}
			}
			return nil
		},
	}
}

func newListCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "list [name]",
		Aliases: []string{"ls"},
		Short:   "List installed packages",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			items, err := svc.List(name)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if *jsonOutput {
				return print(out, true, items, "")
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "no packages installed")
				return nil
			}
			for _, it := range items {
				note := ""
				if !it.HasManifest {
					note = " (no manifest)"
				}
				fmt.Fprintf(out, "- %s@%s%s\n", it.Name, it.Version, note)
			}
			return nil
		},
	}
}

func newVerifyCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <name> <version>",
		Short: "Check an installed package against its checksum manifest",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			report, err := svc.Verify(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if *jsonOutput {
				if err := print(out, true, report, ""); err != nil {
					return err
				}
			} else if report.Clean {
				fmt.Fprintf(out, "%s@%s matches manifest %s\n", report.Name, report.Version, report.Digest)
			} else {
				for _, p := range report.Diff.Modified {
					fmt.Fprintf(out, "modified: %s\n", p)
				}
				for _, p := range report.Diff.Missing {
					fmt.Fprintf(out, "missing: %s\n", p)
				}
				for _, p := range report.Diff.Added {
					fmt.Fprintf(out, "added: %s\n", p)
				}
			}
			if !report.Clean {
				return &exitError{code: 3, msg: fmt.Sprintf("VFY_MISMATCH: %s@%s differs from its manifest", report.Name, report.Version)}
			}
			return nil
		},
	}
}

func newDoctorCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:     "doctor",
		Aliases: []string{"diag", "checkup"},
		Short:   "Run store diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			report := svc.DoctorRun(cmd.Context(), verify)
			out := cmd.OutOrStdout()
			if *jsonOutput {
				return print(out, true, report, "")
			}
			if len(report.Findings) == 0 {
				fmt.Fprintf(out, "healthy (%d packages)\n", report.Packages)
				return nil
			}
			fmt.Fprintln(out, "issues found:")
			for _, f := range report.Findings {
				fmt.Fprintf(out, "- [%s] %s\n", f.Code, f.Message)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "rehash every installed package")
	return cmd
}

func newHistoryCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent import events",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			events, err := svc.History(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if *jsonOutput {
				return print(out, true, events, "")
			}
			if len(events) == 0 {
				fmt.Fprintln(out, "no import history")
				return nil
			}
			for _, ev := range events {
				line := fmt.Sprintf("%s %s/%s %s", ev.Timestamp, ev.Operation, ev.Phase, ev.Status)
				if name := ev.Fields["name"]; name != "" {
					line += " " + name + "@" + ev.Fields["version"]
				} else if archive := ev.Fields["archive"]; archive != "" {
					line += " " + archive
				}
				if ev.Code != "" {
					line += " [" + ev.Code + "]"
				}
				fmt.Fprintln(out, strings.TrimSpace(line))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of events to show (0 for all)")
	return cmd
}

// failedArchive names the archive that stopped a batch import.
func failedArchive(args []string, results []importer.Result) string {
	n := len(results)
	if n > 0 && (results[n-1].ManifestMissing || results[n-1].ManifestStale) {
		return results[n-1].Archive
	}
	if n < len(args) {
		return args[n]
	}
	return ""
}

func print(w io.Writer, jsonOutput bool, payload any, message string) error {
	if jsonOutput {
		blob, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(blob))
		return nil
	}
	if message != "" {
		fmt.Fprintln(w, message)
	}
	return nil
}
