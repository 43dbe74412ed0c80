package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags are shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createCrawlerCommand(globalFlags),
		createLoginCommand(globalFlags),
		createScheduleCommand(),
		createVersionCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:           "crawlpost",
		Short:         "Crawler supervisor and publishing automation daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `crawlpost supervises a crawler process, drives platform login flows,
checks stored browser cookies and publishes media on a schedule.

Examples:
  crawlpost serve config.toml
  crawlpost crawler start --platform=xhs --keywords=coffee
  crawlpost crawler status --api-url=http://remote:8080
  crawlpost schedule --count=5 --quota=2 --times=10:00,18:00`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (default http://127.0.0.1:8080)")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	return root
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
