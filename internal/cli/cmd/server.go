package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/Stormster/hytale-server-manager-sub000/internal/cli/ui"
	"github.com/Stormster/hytale-server-manager-sub000/pkg/sdk"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start, stop and watch game servers",
	Long:  "Server commands take an instance name; without one they act on the active instance.",
}

var serverStartCmd = &cobra.Command{
	Use:   "start [instance]",
	Short: "Start a server",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		if err := Client.StartServer(ctx, instanceArg(args)); err != nil {
			return fmt.Errorf("starting server: %w", err)
		}
		fmt.Println("Server started.")
		return nil
	},
}

var forceStop bool

var serverStopCmd = &cobra.Command{
	Use:   "stop [instance]",
	Short: "Stop a server",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		res, err := Client.StopServer(ctx, instanceArg(args), forceStop)
		if err != nil {
			return fmt.Errorf("stopping server: %w", err)
		}
		switch {
		case res.Forced:
			fmt.Println("Server did not stop in time and was killed.")
		case res.Exited:
			fmt.Println("Server stopped.")
		default:
			fmt.Println("Stop requested; the server is still shutting down. Use --force to kill it.")
		}
		return nil
	},
}

var serverRestartCmd = &cobra.Command{
	Use:   "restart [instance]",
	Short: "Restart a server",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		if err := Client.RestartServer(ctx, instanceArg(args)); err != nil {
			return fmt.Errorf("restarting server: %w", err)
		}
		fmt.Println("Server restarted.")
		return nil
	},
}

var statusAll bool

var serverStatusCmd = &cobra.Command{
	Use:   "status [instance]",
	Short: "Show server status",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		if statusAll {
			all, err := Client.ServerStatusAll(ctx)
			if err != nil {
				return err
			}
			printTable(os.Stdout,
				[]string{"Instance", "State", "Uptime", "RAM", "CPU", "Players", "Last exit"},
				statusRows(all))
			return nil
		}

		st, err := Client.ServerStatus(ctx, instanceArg(args))
		if err != nil {
			return err
		}
		row := statusRows([]sdk.ServerStatus{*st})[0]
		printKV(os.Stdout,
			"Instance", row[0],
			"State", row[1],
			"Uptime", row[2],
			"RAM", row[3],
			"CPU", row[4],
			"Players", row[5],
			"Last exit", row[6],
		)
		return nil
	},
}

var serverCommandCmd = &cobra.Command{
	Use:   "command [instance] -- <command...>",
	Short: "Send a console command",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, command := "", args
		if dash := cmd.ArgsLenAtDash(); dash == 1 {
			name, command = args[0], args[1:]
		}
		line := strings.TrimSpace(strings.Join(command, " "))
		if line == "" {
			return fmt.Errorf("no command given")
		}

		ctx, cancel := requestContext(cmd)
		defer cancel()
		return Client.SendCommand(ctx, name, line)
	},
}

var serverConsoleCmd = &cobra.Command{
	Use:   "console <instance>",
	Short: "Open an interactive console",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ui.RunConsole(Client, args[0])
	},
}

var serverLogsCmd = &cobra.Command{
	Use:   "logs [instance]",
	Short: "Follow console output until the server exits",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		err := Client.StreamConsole(ctx, instanceArg(args), func(ev sdk.Event) {
			switch ev.Type {
			case sdk.EventOutput:
				fmt.Println(ev.Line)
			case sdk.EventDone:
				if ev.Code != nil {
					fmt.Printf("[Manager] Server exited with code %d.\n", *ev.Code)
				} else if ev.Message != "" {
					fmt.Println("[Manager]", ev.Message)
				}
			}
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	serverStopCmd.Flags().BoolVar(&forceStop, "force", false, "Kill the process if it does not exit in time")
	serverStatusCmd.Flags().BoolVar(&statusAll, "all", false, "Show every instance")

	serverCmd.AddCommand(serverStartCmd, serverStopCmd, serverRestartCmd, serverStatusCmd,
		serverCommandCmd, serverConsoleCmd, serverLogsCmd)
	RootCmd.AddCommand(serverCmd)
}

func statusRows(all []sdk.ServerStatus) [][]string {
	rows := make([][]string, 0, len(all))
	for _, st := range all {
		state := failureStyle.Render("stopped")
		switch {
		case st.Running:
			state = successStyle.Render("running")
		case st.UpdateInProgress:
			state = "updating"
		case !st.Installed:
			state = "not installed"
		}

		uptime, ram, cpu, players, lastExit := "-", "-", "-", "-", "-"
		if st.UptimeSeconds != nil {
			uptime = ui.FormatUptime(*st.UptimeSeconds)
		}
		if st.RAMMB != nil {
			ram = fmt.Sprintf("%.0f MB", *st.RAMMB)
		}
		if st.CPUPercent != nil {
			cpu = fmt.Sprintf("%.1f%%", *st.CPUPercent)
		}
		if st.Players != nil {
			players = fmt.Sprintf("%d", *st.Players)
		}
		if st.LastExitCode != nil {
			lastExit = fmt.Sprintf("%d", *st.LastExitCode)
			if st.LastExitTime != nil {
				lastExit += " at " + st.LastExitTime.Local().Format("2006-01-02 15:04")
			}
		}
		rows = append(rows, []string{st.Instance, state, uptime, ram, cpu, players, lastExit})
	}
	return rows
}
