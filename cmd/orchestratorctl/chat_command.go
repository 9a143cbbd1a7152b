package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ai-orchestrator/internal/app"
	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

func newChatCommand(ctx *commandContext) *cobra.Command {
	var mode string
	var sysContext string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "chat <message...>",
		Short: "Send one user message through the orchestrator",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := domain.ParseProviderID(mode)
			if !ok {
				return fmt.Errorf("unknown mode %q", mode)
			}
			msgs := []domain.Message{{Role: domain.RoleUser, Content: strings.Join(args, " ")}}
			return ctx.withRuntime(cmd, func(rt *app.Runtime) error {
				resp, err := rt.Orchestrator.Chat(cmd.Context(), msgs, id, sysContext)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(resp)
				}
				fmt.Fprintln(out, resp.Content)
				if resp.FallbackUsed {
					fmt.Fprintf(cmd.ErrOrStderr(), "answered by %s after %s\n", resp.Model, resp.OriginalModel)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "auto", "Provider mode: auto, personal, cloud, specialized or local")
	cmd.Flags().StringVar(&sysContext, "context", "", "System context prepended to the conversation")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full response as JSON")
	return cmd
}
