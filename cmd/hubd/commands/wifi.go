package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/externos/hubd/internal/executor"
	"github.com/externos/hubd/internal/network"
	"github.com/externos/hubd/internal/notify"
	"github.com/spf13/cobra"
)

var wifiCmd = &cobra.Command{
	Use:   "wifi",
	Short: "Manage Wi-Fi connections",
	Long:  `Scan for, join and leave Wi-Fi networks through NetworkManager.`,
}

var wifiScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List visible networks",
	Example: `  # Scan in table format (default)
  hubd wifi scan

  # Scan in JSON format
  hubd wifi scan --format json`,
	RunE: runWifiScan,
}

var wifiConnectCmd = &cobra.Command{
	Use:   "connect SSID [PASSWORD]",
	Short: "Join a network",
	Example: `  # Join a protected network
  hubd wifi connect HomeNet hunter22

  # Join an open network
  hubd wifi connect "Cafe Guest"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runWifiConnect,
}

var wifiDisconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect every active Wi-Fi interface",
	RunE:  runWifiDisconnect,
}

var wifiStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show active Wi-Fi connections",
	RunE:  runWifiStatus,
}

var wifiFormat string

func init() {
	rootCmd.AddCommand(wifiCmd)
	wifiCmd.AddCommand(wifiScanCmd)
	wifiCmd.AddCommand(wifiConnectCmd)
	wifiCmd.AddCommand(wifiDisconnectCmd)
	wifiCmd.AddCommand(wifiStatusCmd)

	wifiCmd.PersistentFlags().StringVarP(&wifiFormat, "format", "f", "table", "output format (table or json)")
}

func newWifiController() (*network.Controller, error) {
	configMgr, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg := configMgr.Get()

	// The CLI prints results itself
	return network.NewController(executor.New(nil), cfg.Network, notify.Nop{}), nil
}

func runWifiScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	wifi, err := newWifiController()
	if err != nil {
		return err
	}
	// Populate the active list first so connected networks are marked
	if _, err := wifi.ActiveConnections(ctx); err != nil {
		return err
	}
	networks, err := wifi.Scan(ctx)
	if err != nil {
		return err
	}

	if wifiFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(networks)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "\tSSID\tSIGNAL\tSECURITY\tBSSID")
	for _, n := range networks {
		mark := ""
		if n.Connected {
			mark = "*"
		}
		security := n.Security
		if n.Open() {
			security = "open"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", mark, n.SSID, n.Signal, security, n.MAC)
	}
	return nil
}

func runWifiConnect(cmd *cobra.Command, args []string) error {
	wifi, err := newWifiController()
	if err != nil {
		return err
	}

	password := ""
	if len(args) == 2 {
		password = args[1]
	}
	if err := wifi.Connect(cmd.Context(), args[0], password); err != nil {
		return err
	}

	fmt.Printf("✅ Connected to %s\n", args[0])
	return nil
}

func runWifiDisconnect(cmd *cobra.Command, args []string) error {
	wifi, err := newWifiController()
	if err != nil {
		return err
	}
	if err := wifi.Disconnect(cmd.Context()); err != nil {
		return err
	}

	fmt.Println("✅ Disconnected")
	return nil
}

func runWifiStatus(cmd *cobra.Command, args []string) error {
	wifi, err := newWifiController()
	if err != nil {
		return err
	}
	active, err := wifi.ActiveConnections(cmd.Context())
	if err != nil {
		return err
	}

	if wifiFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(active)
	}

	if len(active) == 0 {
		fmt.Println("Not connected")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "INTERFACE\tSSID\tSIGNAL\tFREQ\tBSSID")
	for _, a := range active {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d MHz\t%s\n", a.Interface, a.SSID, a.Signal, a.Frequency, a.MAC)
	}
	return nil
}
