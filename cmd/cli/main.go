package main

import (
	"github.com/Stormster/hytale-server-manager-sub000/internal/cli/cmd"
	"github.com/Stormster/hytale-server-manager-sub000/internal/config"
)

func main() {
	port := config.GetPort()
	cmd.Execute(port)
}
