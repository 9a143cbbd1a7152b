package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ai-orchestrator/internal/app"
	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var clearCompleted bool

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List persisted tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *app.Runtime) error {
				if clearCompleted {
					n := rt.Tasks.ClearCompleted(cmd.Context())
					fmt.Fprintf(cmd.OutOrStdout(), "removed %d finished tasks\n", n)
					return nil
				}
				tasks := rt.Tasks.GetRecentTasks(limit)
				if len(tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no tasks")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTasks(tasks))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum tasks to show (0 for all)")
	cmd.Flags().BoolVar(&clearCompleted, "clear-completed", false, "Remove completed, failed and cancelled tasks instead of listing")
	return cmd
}

func renderTasks(tasks []domain.AITask) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"ID", "Type", "Name", "Status", "Progress", "Created", "Error"})
	for _, t := range tasks {
		tw.AppendRow(table.Row{
			t.ID, t.Type, t.Name, strings.ToUpper(string(t.Status)),
			fmt.Sprintf("%d%%", t.Progress),
			t.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			t.Error,
		})
	}
	return tw.Render()
}
