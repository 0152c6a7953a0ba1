package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/config"
	"github.com/Stormster/hytale-server-manager-sub000/pkg/sdk"
	"github.com/spf13/cobra"
)

var (
	Client  *sdk.Client
	BaseURL string
	Token   string
	Plain   bool
)

var RootCmd = &cobra.Command{
	Use:           "hsm",
	Short:         "CLI for the Hytale server manager",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if Token == "" {
			Token = os.Getenv("HSM_TOKEN")
		}
		if Token == "" {
			if dir, err := config.Dir(); err == nil {
				Token = config.ReadSecret(dir)
			}
		}
		Client = sdk.NewClient(BaseURL, Token)
	},
	Run: func(cmd *cobra.Command, args []string) {
		RunDashboard()
	},
}

// requestContext bounds a single non-streaming API call.
func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

// instanceArg returns the first argument, or "" to target the active
// instance.
func instanceArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func Execute(port int) {
	RootCmd.PersistentFlags().StringVar(&BaseURL, "url", fmt.Sprintf("http://localhost:%d", port), "URL of the manager API")
	RootCmd.PersistentFlags().StringVar(&Token, "token", "", "API token (defaults to HSM_TOKEN or the local secret)")
	RootCmd.PersistentFlags().BoolVar(&Plain, "plain", false, "Print progress as plain lines instead of a live view")

	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
