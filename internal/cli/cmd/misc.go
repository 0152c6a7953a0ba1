package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "Manage the game port range used for new instances",
}

var portsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Get port range",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		pr, err := Client.GetPortRange(ctx)
		if err != nil {
			return fmt.Errorf("getting port range: %w", err)
		}
		printKV(os.Stdout,
			"Start port", fmt.Sprint(pr.Start),
			"End port", fmt.Sprint(pr.End),
			"Range", fmt.Sprintf("%d ports", pr.End-pr.Start+1),
		)
		return nil
	},
}

var portsStart, portsEnd int

var portsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set port range",
	RunE: func(cmd *cobra.Command, args []string) error {
		if portsStart == 0 || portsEnd == 0 {
			return fmt.Errorf("specify both --start and --end")
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()
		if err := Client.SetPortRange(ctx, portsStart, portsEnd); err != nil {
			return fmt.Errorf("setting port range: %w", err)
		}
		fmt.Printf("New range: %d - %d\n", portsStart, portsEnd)
		return nil
	},
}

var checkRelease bool

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show manager, Java and downloader details",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		info, err := Client.Info(ctx, checkRelease)
		if err != nil {
			return err
		}

		java := info.JavaPath
		if info.JavaError != "" {
			java = failureStyle.Render(info.JavaError)
		}
		downloader := failureStyle.Render("not installed")
		if info.DownloaderPresent {
			downloader = successStyle.Render("installed")
			if !info.DownloaderLoggedIn {
				downloader += " (not logged in)"
			}
		}
		running := strings.Join(info.RunningInstances, ", ")
		if running == "" {
			running = "-"
		}

		printKV(os.Stdout,
			"Manager", info.ManagerVersion,
			"Platform", info.OS+"/"+info.Arch,
			"API", Client.BaseURL(),
			"Java", java,
			"Downloader", downloader,
			"Running", running,
		)
		if rel := info.ManagerRelease; rel != nil {
			if rel.UpdateAvailable {
				fmt.Printf("\nManager %s is available: %s\n", rel.LatestVersion, rel.ReleaseURL)
			} else {
				fmt.Println("\nThe manager is up to date.")
			}
		}
		return nil
	},
}

func init() {
	portsSetCmd.Flags().IntVar(&portsStart, "start", 0, "Start port")
	portsSetCmd.Flags().IntVar(&portsEnd, "end", 0, "End port")
	portsCmd.AddCommand(portsGetCmd, portsSetCmd)

	infoCmd.Flags().BoolVar(&checkRelease, "check-release", false, "Also look for a newer manager release")

	RootCmd.AddCommand(portsCmd, infoCmd)
}
