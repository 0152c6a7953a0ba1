package cmd

import (
	"github.com/Stormster/hytale-server-manager-sub000/internal/cli/ui"
)

// RunDashboard alternates between the instance table and a console until
// the user quits.
func RunDashboard() {
	for {
		name := ui.RunDashboard(Client)
		if name == "" {
			return
		}
		if !ui.RunConsole(Client, name) {
			return
		}
	}
}
