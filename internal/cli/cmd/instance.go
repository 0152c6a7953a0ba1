package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/Stormster/hytale-server-manager-sub000/internal/cli/ui"
	"github.com/Stormster/hytale-server-manager-sub000/pkg/sdk"
	"github.com/spf13/cobra"
)

var instanceCmd = &cobra.Command{
	Use:     "instance",
	Aliases: []string{"instances", "i"},
	Short:   "Manage server instances",
}

var instanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List instances",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		list, err := Client.ListInstances(ctx)
		if err != nil {
			return fmt.Errorf("listing instances: %w", err)
		}
		printInstances(list)
		return nil
	},
}

var instanceCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		inst, err := Client.CreateInstance(ctx, args[0])
		if err != nil {
			return fmt.Errorf("creating instance: %w", err)
		}
		fmt.Printf("Instance %s created at %s (game port %s).\n", inst.Name, inst.Dir, ui.FormatPort(inst.GamePort))
		fmt.Printf("Install it with: hsm update install %s\n", inst.Name)
		return nil
	},
}

var instanceImportCmd = &cobra.Command{
	Use:   "import <name> <path>",
	Short: "Import a copy of an existing server folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		inst, err := Client.ImportInstance(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("importing instance: %w", err)
		}
		fmt.Printf("Imported %s (version %s, %s).\n", inst.Name, inst.Version, inst.Channel)
		return nil
	},
}

var instanceUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Make an instance the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		if err := Client.SetActiveInstance(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Active instance is now %s.\n", args[0])
		return nil
	},
}

var instanceRenameCmd = &cobra.Command{
	Use:   "rename <name> <new-name>",
	Short: "Rename an instance and its folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		inst, err := Client.RenameInstance(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Renamed to %s.\n", inst.Name)
		return nil
	},
}

var deleteFiles bool

var instanceDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove an instance from the manager",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		if err := Client.DeleteInstance(ctx, args[0], deleteFiles); err != nil {
			return err
		}
		if deleteFiles {
			fmt.Printf("Instance %s and its files were deleted.\n", args[0])
		} else {
			fmt.Printf("Instance %s was removed; its folder was kept.\n", args[0])
		}
		return nil
	},
}

var gamePort, webPort int

var instancePortsCmd = &cobra.Command{
	Use:   "ports <name>",
	Short: "Assign the game and web ports of an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var req sdk.AssignPortsRequest
		if cmd.Flags().Changed("game") {
			req.GamePort = &gamePort
		}
		if cmd.Flags().Changed("web") {
			req.WebPort = &webPort
		}
		if req.GamePort == nil && req.WebPort == nil {
			return fmt.Errorf("specify --game and/or --web")
		}

		ctx, cancel := requestContext(cmd)
		defer cancel()
		inst, err := Client.AssignPorts(ctx, args[0], req)
		if err != nil {
			return err
		}
		fmt.Printf("%s: game port %s, web port %s.\n", inst.Name, ui.FormatPort(inst.GamePort), ui.FormatPort(inst.WebPort))
		return nil
	},
}

var startup sdk.StartupArgs

var instanceStartupCmd = &cobra.Command{
	Use:   "startup <name>",
	Short: "Set memory limits, JVM and server arguments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		current, err := Client.GetInstance(ctx, args[0])
		if err != nil {
			return err
		}
		next := current.Startup
		flags := cmd.Flags()
		if flags.Changed("min-ram") {
			next.MinRAM = startup.MinRAM
		}
		if flags.Changed("max-ram") {
			next.MaxRAM = startup.MaxRAM
		}
		if flags.Changed("jvm-args") {
			next.JVMArgs = startup.JVMArgs
		}
		if flags.Changed("server-args") {
			next.ServerArgs = startup.ServerArgs
		}
		if flags.Changed("launcher") {
			next.Launcher = startup.Launcher
		}
		if flags.Changed("disable-aot") {
			next.DisableAOT = startup.DisableAOT
		}

		inst, err := Client.UpdateStartup(ctx, args[0], next)
		if err != nil {
			return err
		}
		printStartup(inst.Startup)
		return nil
	},
}

var instanceShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		inst, err := Client.GetInstance(ctx, args[0])
		if err != nil {
			return err
		}
		printKV(os.Stdout,
			"Name", inst.Name,
			"Path", inst.Dir,
			"Version", inst.Version,
			"Patchline", string(inst.Channel),
			"Game port", ui.FormatPort(inst.GamePort),
			"Web port", ui.FormatPort(inst.WebPort),
			"Degraded", strconv.FormatBool(inst.Degraded),
		)
		printStartup(inst.Startup)
		return nil
	},
}

func init() {
	instanceDeleteCmd.Flags().BoolVar(&deleteFiles, "delete-files", false, "Also delete the instance folder")
	instancePortsCmd.Flags().IntVar(&gamePort, "game", 0, "Game (UDP) port")
	instancePortsCmd.Flags().IntVar(&webPort, "web", 0, "Web server port")

	f := instanceStartupCmd.Flags()
	f.IntVar(&startup.MinRAM, "min-ram", 0, "Minimum heap in MB (0 for JVM default)")
	f.IntVar(&startup.MaxRAM, "max-ram", 0, "Maximum heap in MB (0 for JVM default)")
	f.StringVar(&startup.JVMArgs, "jvm-args", "", "Extra JVM arguments")
	f.StringVar(&startup.ServerArgs, "server-args", "", "Extra server arguments")
	f.StringVar(&startup.Launcher, "launcher", "", "Launcher: java or script")
	f.BoolVar(&startup.DisableAOT, "disable-aot", false, "Do not use the AOT cache")

	instanceCmd.AddCommand(instanceListCmd, instanceShowCmd, instanceCreateCmd, instanceImportCmd,
		instanceUseCmd, instanceRenameCmd, instanceDeleteCmd, instancePortsCmd, instanceStartupCmd)
	RootCmd.AddCommand(instanceCmd)
}

func instanceRows(list []sdk.InstanceSummary) [][]string {
	rows := make([][]string, 0, len(list))
	for _, inst := range list {
		active := ""
		if inst.Active {
			active = "*"
		}
		installed := "no"
		if inst.Installed {
			installed = "yes"
		}
		if inst.Degraded {
			installed = "degraded"
		}
		last := "-"
		if inst.LastBackupCreated != nil {
			last = inst.LastBackupCreated.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			active,
			inst.Name,
			installed,
			inst.Version,
			string(inst.Channel),
			ui.FormatPort(inst.GamePort),
			ui.FormatPort(inst.WebPort),
			last,
		})
	}
	return rows
}

func printInstances(list []sdk.InstanceSummary) {
	if len(list) == 0 {
		fmt.Println("No instances yet. Create one with: hsm instance create <name>")
		return
	}
	printTable(os.Stdout,
		[]string{"", "Name", "Installed", "Version", "Patchline", "Game", "Web", "Last backup"},
		instanceRows(list))
}

func printStartup(s sdk.StartupArgs) {
	ram := func(mb int) string {
		if mb <= 0 {
			return "default"
		}
		return fmt.Sprintf("%d MB", mb)
	}
	launcher := s.Launcher
	if launcher == "" {
		launcher = "java"
	}
	printKV(os.Stdout,
		"Min RAM", ram(s.MinRAM),
		"Max RAM", ram(s.MaxRAM),
		"JVM args", s.JVMArgs,
		"Server args", s.ServerArgs,
		"Launcher", launcher,
		"AOT cache", strconv.FormatBool(!s.DisableAOT),
	)
}
