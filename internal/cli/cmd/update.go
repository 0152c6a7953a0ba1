package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/Stormster/hytale-server-manager-sub000/internal/cli/ui"
	"github.com/Stormster/hytale-server-manager-sub000/pkg/sdk"
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Install and update Hytale server builds",
}

var (
	patchline    string
	stopRunning  bool
	graceMinutes  int
)

var updateCheckAll bool

var updateCheckCmd = &cobra.Command{
	Use:   "check [instance]",
	Short: "Compare installed builds with the newest available",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		if updateCheckAll {
			all, err := Client.CheckAll(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Latest release:     %s\n", orDash(all.RemoteRelease))
			fmt.Printf("Latest pre-release: %s\n\n", orDash(all.RemotePrerelease))

			names := make([]string, 0, len(all.Instances))
			for name := range all.Instances {
				names = append(names, name)
			}
			sort.Strings(names)
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				a := all.Instances[name]
				rows = append(rows, []string{name, a.InstalledVersion, string(a.InstalledChannel), yesNo(a.UpdateAvailable)})
			}
			printTable(os.Stdout, []string{"Instance", "Installed", "Patchline", "Update"}, rows)
			return nil
		}

		a, err := Client.CheckUpdate(ctx, instanceArg(args))
		if err != nil {
			return err
		}
		printAvailability(a)
		return nil
	},
}

var updateInstallCmd = &cobra.Command{
	Use:   "install [instance]",
	Short: "Download and install the server into an instance",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := instanceArg(args)
		return runOperation("Installing "+displayName(name), func(fn sdk.EventHandler) error {
			return Client.Install(context.Background(), name, patchline, fn)
		})
	},
}

var updateRunCmd = &cobra.Command{
	Use:   "run [instance]",
	Short: "Update an instance, switching patchline with --patchline",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := instanceArg(args)
		return runOperation("Updating "+displayName(name), func(fn sdk.EventHandler) error {
			return Client.Update(context.Background(), name, patchline, updateOptions(), fn)
		})
	},
}

var updateAllCmd = &cobra.Command{
	Use:   "all [instance...]",
	Short: "Update every installed instance, or the ones named",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation("Updating all instances", func(fn sdk.EventHandler) error {
			return Client.UpdateAll(context.Background(), args, updateOptions(), fn)
		})
	},
}

func updateOptions() sdk.UpdateOptions {
	return sdk.UpdateOptions{StopRunning: stopRunning || graceMinutes > 0, GraceMinutes: graceMinutes}
}

var updateCancelCmd = &cobra.Command{
	Use:   "cancel [instance]",
	Short: "Cancel a running install or update",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		ok, err := Client.CancelUpdate(ctx, instanceArg(args))
		if err != nil {
			return err
		}
		if ok {
			fmt.Println("Cancellation requested.")
		} else {
			fmt.Println("Nothing to cancel.")
		}
		return nil
	},
}

var updateStatusCmd = &cobra.Command{
	Use:   "status [instance]",
	Short: "Show the installed build",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		st, err := Client.UpdaterStatus(ctx, instanceArg(args))
		if err != nil {
			return err
		}
		printKV(os.Stdout,
			"Installed", yesNo(st.Installed),
			"Version", st.InstalledVersion,
			"Patchline", string(st.InstalledChannel),
			"Degraded", yesNo(st.Degraded),
		)
		return nil
	},
}

var updateLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Check the downloader and log it in when needed",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		ready, err := Client.SetupReady(ctx)
		if err != nil {
			return err
		}
		if ready.OK {
			fmt.Println("Downloader is ready.")
			return nil
		}
		fmt.Println("Downloader is not ready:", ready.Error)

		res := ui.PrintProgress(func(fn sdk.EventHandler) error {
			return Client.Authenticate(context.Background(), fn)
		})
		return operationError(res)
	},
}

func init() {
	updateInstallCmd.Flags().StringVar(&patchline, "patchline", "", "release or pre-release")
	updateRunCmd.Flags().StringVar(&patchline, "patchline", "", "release or pre-release (default: current)")
	updateCheckCmd.Flags().BoolVar(&updateCheckAll, "all", false, "Check every instance")
	for _, c := range []*cobra.Command{updateRunCmd, updateAllCmd} {
		c.Flags().BoolVar(&stopRunning, "stop", false, "Stop a running server for the update and restart it afterwards")
		c.Flags().IntVar(&graceMinutes, "grace", 0, "Warn players in game and wait this many minutes before stopping (implies --stop)")
	}

	updateCmd.AddCommand(updateCheckCmd, updateInstallCmd, updateRunCmd, updateAllCmd,
		updateCancelCmd, updateStatusCmd, updateLoginCmd)
	RootCmd.AddCommand(updateCmd)
}

func runOperation(title string, op func(sdk.EventHandler) error) error {
	var res ui.ProgressResult
	if Plain {
		res = ui.PrintProgress(op)
	} else {
		res = ui.RunProgress(title, op)
	}
	return operationError(res)
}

func operationError(res ui.ProgressResult) error {
	if res.Message != "" {
		if res.OK || res.Detached {
			fmt.Println(successStyle.Render(res.Message))
		} else {
			fmt.Println(failureStyle.Render(res.Message))
		}
	}
	switch {
	case res.OK, res.Detached:
		return nil
	case res.Err != nil:
		return res.Err
	}
	return errors.New("operation failed")
}

func printAvailability(a *sdk.Availability) {
	printKV(os.Stdout,
		"Installed", a.InstalledVersion,
		"Patchline", string(a.InstalledChannel),
		"Latest release", orDash(a.RemoteRelease),
		"Latest pre-release", orDash(a.RemotePrerelease),
		"Update available", yesNo(a.UpdateAvailable),
	)
	if a.CanSwitchRelease {
		note := ""
		if a.SwitchToReleaseIsDowngrade {
			note = " (downgrade)"
		}
		fmt.Println("Can switch to release" + note + ": hsm update run --patchline release")
	}
	if a.CanSwitchPrerelease {
		note := ""
		if a.SwitchToPrereleaseIsDowngrade {
			note = " (downgrade)"
		}
		fmt.Println("Can switch to pre-release" + note + ": hsm update run --patchline pre-release")
	}
}

func displayName(name string) string {
	if name == "" {
		return "active instance"
	}
	return name
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
