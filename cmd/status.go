package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Davincible/llm-bridge/internal/process"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bridge server status",
	Long:  `Display whether the bridge server is running and which upstreams it forwards to.`,
	Run:   runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) {
	procMgr := process.NewManager(baseDir, logger)
	cfg := cfgMgr.Get()

	running := procMgr.IsRunning()

	color.Blue("Status for %s:", AppName)
	if running {
		fmt.Printf("  %-15s: %s\n", "Running", color.GreenString("yes"))
		fmt.Printf("  %-15s: %d\n", "PID", procMgr.ReadPID())
	} else {
		fmt.Printf("  %-15s: %s\n", "Running", color.RedString("no"))
	}

	fmt.Printf("  %-15s: http://%s\n", "Endpoint", cfg.Address())
	fmt.Printf("  %-15s: %s\n", "Config Path", cfgMgr.GetPath())

	for _, name := range upstreamNames {
		up, _ := cfg.Upstream(name)
		fmt.Printf("  %-15s: %s\n", "Upstream "+name, valueOrUnset(up.BaseURL))
	}

	fmt.Printf("  %-15s: v%s\n", "Version", Version)
}
