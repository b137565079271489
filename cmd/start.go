package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Davincible/llm-bridge/internal/process"
	"github.com/Davincible/llm-bridge/internal/server"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the bridge server",
	Long:  `Start the bridge server in the foreground, or in the background with --detach.`,
	RunE:  runStart,
}

func init() {
	startCmd.Flags().BoolP("detach", "d", false, "run the server in the background")
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := cfgMgr.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	procMgr := process.NewManager(baseDir, logger)

	if detach, _ := cmd.Flags().GetBool("detach"); detach {
		started, err := procMgr.StartDetached("start")
		if err != nil {
			return err
		}
		if !started {
			color.Yellow("Service is already running (PID %d)", procMgr.ReadPID())
			return nil
		}

		color.Green("%s started in the background on http://%s", AppName, cfg.Address())
		return nil
	}

	if procMgr.IsRunning() {
		color.Yellow("Service is already running (PID %d)", procMgr.ReadPID())
		return nil
	}

	color.Green("Starting %s v%s...", AppName, Version)
	logger.Info("Starting server",
		"address", cfg.Address(),
		"config", cfgMgr.GetPath(),
	)

	if err := procMgr.WritePID(); err != nil {
		return err
	}
	defer procMgr.CleanupPID()

	return server.New(cfgMgr, logger).Start()
}
