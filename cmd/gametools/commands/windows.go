package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"gametools/internal/gamewin"
)

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "List visible windows",
	Long:  `List all titled top-level windows, to find the title to configure.`,
	Example: `  # List windows
  gametools windows`,
	RunE: runWindows,
}

func init() {
	rootCmd.AddCommand(windowsCmd)
}

func runWindows(cmd *cobra.Command, args []string) error {
	backend := gamewin.NewX11Backend("", false)
	if err := backend.Connect(); err != nil {
		return fmt.Errorf("failed to connect to display server: %w", err)
	}
	defer backend.Close()

	windows, err := backend.ListWindows()
	if err != nil {
		return fmt.Errorf("failed to list windows: %w", err)
	}

	if len(windows) == 0 {
		fmt.Println("No titled windows found.")
		return nil
	}

	fmt.Printf("%-12s %s\n", "ID", "TITLE")
	for _, w := range windows {
		fmt.Printf("%-12d %s\n", w.ID, w.Title)
	}
	return nil
}
