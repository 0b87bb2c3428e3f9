package cli

import (
	"github.com/spf13/cobra"

	"location-spoof-guard/internal/app"
)

var (
	simulateScenario string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay a synthetic spoofing scenario through the guard",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SimulateOptions{
			Scenario: simulateScenario,
		}
		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateScenario, "scenario", "clean", "Scenario to replay (clean, os-mock, altitude-zero, teleport, static-position, static-accuracy, joystick-walk)")
}
