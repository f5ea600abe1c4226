package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

var recoverCmd = &cobra.Command{
	Use:   "recover [component]",
	Short: "Force a recovery attempt, including for a permanently failed component",
	Args:  cobra.ExactArgs(1),
	Run:   runRecover,
}

var resetCmd = &cobra.Command{
	Use:   "reset [component]",
	Short: "Reset a component to healthy and clear its counters",
	Args:  cobra.ExactArgs(1),
	Run:   runReset,
}

var resetErrorsCmd = &cobra.Command{
	Use:   "reset-errors [category]",
	Short: "Clear tracked error counts for one category, or all categories",
	Args:  cobra.MaximumNArgs(1),
	Run:   runResetErrors,
}

func init() {
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(resetErrorsCmd)
}

func runRecover(cmd *cobra.Command, args []string) {
	var resp struct {
		Component string `json:"component"`
		Recovered bool   `json:"recovered"`
	}
	post(cmd, "/components/"+escape(args[0])+"/recover", &resp)

	if !resp.Recovered {
		fmt.Printf("Recovery of %s failed\n", resp.Component)
		os.Exit(2)
	}
	fmt.Printf("Component %s recovered\n", resp.Component)
}

func runReset(cmd *cobra.Command, args []string) {
	post(cmd, "/components/"+escape(args[0])+"/reset", nil)
	fmt.Printf("Component %s reset\n", args[0])
}

func runResetErrors(cmd *cobra.Command, args []string) {
	path := "/errors/reset"
	target := "all categories"
	if len(args) == 1 {
		path += "?category=" + url.QueryEscape(args[0])
		target = args[0]
	}
	post(cmd, path, nil)
	fmt.Printf("Error counts cleared for %s\n", target)
}

func post(cmd *cobra.Command, path string, out any) {
	client, err := newAPIClient(cmd)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if err := client.do(context.Background(), "POST", path, out); err != nil {
		slog.Error("Request failed", "error", err)
		os.Exit(1)
	}
}
