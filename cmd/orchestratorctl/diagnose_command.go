package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ai-orchestrator/internal/app"
)

func newDiagnoseCommand(ctx *commandContext) *cobra.Command {
	var html bool
	var output string
	var failOnError bool

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Probe every configured service and print the diagnostics report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *app.Runtime) error {
				rt.Monitor.RunFullDiagnostics(cmd.Context())

				report := rt.Monitor.ExportReport()
				if html {
					doc, err := rt.Monitor.ExportHTML()
					if err != nil {
						return err
					}
					report = doc
				}
				if output != "" {
					if err := os.WriteFile(output, []byte(report), 0o644); err != nil {
						return fmt.Errorf("write report: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "report written to %s\n", output)
				} else {
					fmt.Fprint(cmd.OutOrStdout(), report)
				}

				s := rt.Monitor.Summary()
				if failOnError && (s.Offline > 0 || s.Error > 0) {
					return fmt.Errorf("%d offline, %d in error", s.Offline, s.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&html, "html", false, "Render the report as HTML")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().BoolVar(&failOnError, "fail", false, "Exit non-zero when any service is not online")
	return cmd
}
