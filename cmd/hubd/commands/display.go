package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/externos/hubd/internal/display"
	"github.com/externos/hubd/internal/executor"
	"github.com/spf13/cobra"
)

var displayCmd = &cobra.Command{
	Use:   "display",
	Short: "Inspect monitors and set brightness",
}

var displayListCmd = &cobra.Command{
	Use:   "list",
	Short: "List xrandr outputs",
	RunE:  runDisplayList,
}

var displayBrightnessCmd = &cobra.Command{
	Use:   "brightness OUTPUT LEVEL",
	Short: "Set output brightness (0.0 - 1.0)",
	Long: `Set the software brightness of a connected output.

The level is clamped to [display.min_brightness, 1.0] so the screen never
goes fully black.`,
	Example: `  # Dim the laptop panel
  hubd display brightness eDP-1 0.6`,
	Args: cobra.ExactArgs(2),
	RunE: runDisplayBrightness,
}

var displayFormat string

func init() {
	rootCmd.AddCommand(displayCmd)
	displayCmd.AddCommand(displayListCmd)
	displayCmd.AddCommand(displayBrightnessCmd)

	displayListCmd.Flags().StringVarP(&displayFormat, "format", "f", "table", "output format (table or json)")
}

func newDisplayController() (*display.Controller, error) {
	configMgr, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return display.NewController(executor.New(nil), configMgr.Get().Display), nil
}

func runDisplayList(cmd *cobra.Command, args []string) error {
	displays, err := newDisplayController()
	if err != nil {
		return err
	}
	outputs, err := displays.Outputs(cmd.Context())
	if err != nil {
		return err
	}

	if displayFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(outputs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "OUTPUT\tCONNECTED\tPRIMARY\tMODE\tBRIGHTNESS")
	for _, o := range outputs {
		mode := "-"
		if o.Active() {
			mode = fmt.Sprintf("%dx%d+%d+%d", o.Width, o.Height, o.X, o.Y)
		}
		fmt.Fprintf(w, "%s\t%t\t%t\t%s\t%.2f\n", o.Name, o.Connected, o.Primary, mode, o.Brightness)
	}
	return nil
}

func runDisplayBrightness(cmd *cobra.Command, args []string) error {
	level, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid brightness: %s", args[1])
	}

	displays, err := newDisplayController()
	if err != nil {
		return err
	}
	applied, err := displays.SetBrightness(cmd.Context(), args[0], level)
	if err != nil {
		return err
	}

	fmt.Printf("✅ %s brightness set to %.2f\n", args[0], applied)
	return nil
}
