package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/solarkit/goodwe-lan/internal/config"
	"github.com/solarkit/goodwe-lan/internal/discovery"
	"github.com/solarkit/goodwe-lan/internal/inverter"
)

// Connection command flags
var (
	flagHost      string
	flagPort      int
	flagProtocol  string
	flagFamily    string
	flagTimeoutMs int
	flagRetries   int
	flagProfile   string

	scanTimeout   int
	scanBroadcast string
	scanSave      string

	readFormat string
	readJSON   bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagHost, "host", "", "Inverter IP address")
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", inverter.DefaultPort, "Inverter command port")
	rootCmd.PersistentFlags().StringVar(&flagProtocol, "protocol", "udp", "Protocol variant (udp, tcp, modbus)")
	rootCmd.PersistentFlags().StringVar(&flagFamily, "family", "ET", "Inverter family (ET, DT, ES)")
	rootCmd.PersistentFlags().IntVar(&flagTimeoutMs, "timeout", 1000, "Exchange timeout in milliseconds")
	rootCmd.PersistentFlags().IntVar(&flagRetries, "retries", inverter.DefaultRetries, "Retries after a failed attempt")
	rootCmd.PersistentFlags().StringVar(&flagProfile, "profile", "", "Use a saved connection profile")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(checkSettingCmd)
}

// handlerConfig assembles the connection configuration from flags,
// optionally starting from a saved profile.
func handlerConfig() (inverter.Config, error) {
	cfg := inverter.Config{
		Host:     flagHost,
		Port:     flagPort,
		Protocol: inverter.Protocol(flagProtocol),
		Family:   inverter.Family(flagFamily),
		Timeout:  time.Duration(flagTimeoutMs) * time.Millisecond,
		Retries:  flagRetries,
	}

	if flagProfile != "" {
		registry, err := config.LoadRegistry()
		if err != nil {
			return cfg, err
		}
		profile := registry.Profile(flagProfile)
		if profile == nil {
			return cfg, fmt.Errorf("profile %q not found (config: run 'goodwe-cli scan --save %s' first)", flagProfile, flagProfile)
		}
		cfg = profile.HandlerConfig()
		// Explicit flags still win over the profile for the transport tuning.
		if flagTimeoutMs != 1000 {
			cfg.Timeout = time.Duration(flagTimeoutMs) * time.Millisecond
		}
	}

	if cfg.Host == "" {
		return cfg, errors.New("no inverter address: pass --host, --profile, or run 'goodwe-cli scan'")
	}
	return cfg, nil
}

// connect builds a handler, connects it, and returns it with a cleanup func.
func connect() (*inverter.Handler, func(), error) {
	cfg, err := handlerConfig()
	if err != nil {
		return nil, nil, err
	}

	h := inverter.NewHandler(cfg)
	if err := h.Connect(); err != nil {
		return nil, nil, describeFailure(err)
	}
	return h, func() { _ = h.Disconnect() }, nil
}

// describeFailure appends enrichment suggestions to an error for display.
func describeFailure(err error) error {
	var ce *inverter.CommError
	if !errors.As(err, &ce) || len(ce.Suggestions) == 0 {
		return err
	}

	out := ce.Message
	for _, s := range ce.Suggestions {
		out += "\n  " + hintStyle.Render("- "+s)
	}
	return errors.New(out)
}

// scanCmd discovers inverters on the network
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for inverters on the network",
	Long: `Scan for inverters using UDP broadcast discovery.

This command broadcasts a probe frame and displays every inverter that
answers within the collection window, with its IP address, command port,
and family code.`,
	Example: `  # Scan with the default 5-second window
  goodwe-cli scan

  # Quick 2-second scan
  goodwe-cli scan --window 2

  # Directed broadcast for routed networks
  goodwe-cli scan --broadcast 192.168.1.255

  # Save the first result as a profile named "roof"
  goodwe-cli scan --save roof`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanTimeout, "window", 5, "Collection window in seconds")
	scanCmd.Flags().StringVar(&scanBroadcast, "broadcast", "", "Broadcast address (default 255.255.255.255)")
	scanCmd.Flags().StringVar(&scanSave, "save", "", "Save the first discovered inverter as a named profile")
}

func runScan(cmd *cobra.Command, args []string) error {
	fmt.Printf("Scanning for inverters (window: %ds)...\n\n", scanTimeout)

	records, err := discovery.Discover(discovery.Options{
		Timeout:       time.Duration(scanTimeout) * time.Second,
		BroadcastAddr: scanBroadcast,
	})
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No inverters found.")
		fmt.Println()
		fmt.Println("Troubleshooting:")
		fmt.Println("  - Ensure the inverter's WiFi module is powered and joined to this network")
		fmt.Println("  - Check that UDP port 8899 is not blocked by a firewall")
		fmt.Println("  - Try --broadcast with your subnet's directed broadcast address")
		fmt.Println("  - Use --host to target a known IP directly if discovery fails")
		return nil
	}

	fmt.Printf("Found %d inverter(s):\n\n", len(records))
	for i, r := range records {
		fmt.Printf("%d. %s\n", i+1, headerStyle.Render(r.IP))
		fmt.Printf("   Family: %s\n", valueStyle.Render(string(r.Family)))
		fmt.Printf("   Port:   %s\n", valueStyle.Render(strconv.Itoa(r.Port)))
		fmt.Println()
	}

	if scanSave != "" {
		registry, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		r := records[0]
		registry.SetProfile(scanSave, &config.Profile{
			Host:     r.IP,
			Port:     r.Port,
			Family:   string(r.Family),
			LastSeen: time.Now(),
		})
		if err := config.SaveRegistry(registry); err != nil {
			return err
		}
		fmt.Printf("Saved %s as profile %q\n", r.IP, scanSave)
	}

	fmt.Println("Use 'goodwe-cli info --host <ip>' to identify a device")
	return nil
}

// infoCmd reads the device identification block
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show inverter identification",
	Long: `Read and display the inverter's identification block: model name,
serial number, firmware versions, rated power, and output type.`,
	Example: `  goodwe-cli info --host 192.168.1.100
  goodwe-cli info --profile roof
  goodwe-cli info --host 192.168.1.100 --protocol modbus --port 502`,
	RunE: runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	h, done, err := connect()
	if err != nil {
		return err
	}
	defer done()

	info, err := h.ReadDeviceInfo()
	if err != nil {
		return describeFailure(err)
	}

	fmt.Println(headerStyle.Render("=== Inverter Information ==="))
	fmt.Printf("Model:        %s\n", valueStyle.Render(info.ModelName))
	fmt.Printf("Serial:       %s\n", valueStyle.Render(info.SerialNumber))
	fmt.Printf("Family:       %s\n", valueStyle.Render(string(info.Family)))
	fmt.Printf("Firmware:     %s (ARM %s)\n", info.FirmwareVersion, info.ArmVersion)
	fmt.Printf("Rated power:  %d W\n", info.RatedPower)
	fmt.Printf("Output type:  %s\n", info.OutputTypeString())
	return nil
}

// readCmd reads runtime sensor data
var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read runtime sensor data",
	Long: `Read the inverter's runtime sensor block and display it.

The register set depends on the configured family: three-phase families
carry per-phase grid registers, hybrid families carry battery registers.`,
	Example: `  # Flat listing
  goodwe-cli read --host 192.168.1.100

  # Grouped by pv/battery/grid/energy/status
  goodwe-cli read --host 192.168.1.100 --format categorized

  # JSON for scripting
  goodwe-cli read --profile roof --json`,
	RunE: runRead,
}

func init() {
	readCmd.Flags().StringVar(&readFormat, "format", "flat", "Output shape (flat, categorized, array)")
	readCmd.Flags().BoolVar(&readJSON, "json", false, "Emit JSON instead of text")
}

func runRead(cmd *cobra.Command, args []string) error {
	h, done, err := connect()
	if err != nil {
		return err
	}
	defer done()

	data, err := h.ReadRuntimeData()
	if err != nil {
		if readJSON {
			resp := inverter.NewErrorResponse(err, "read-runtime-data")
			encoded, _ := json.MarshalIndent(resp, "", "  ")
			fmt.Println(string(encoded))
			return nil
		}
		return describeFailure(err)
	}

	shaped, err := inverter.FormatOutput(data, inverter.OutputMode(readFormat))
	if err != nil {
		return err
	}

	if readJSON {
		encoded, err := json.MarshalIndent(shaped, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
		return nil
	}

	switch out := shaped.(type) {
	case inverter.RuntimeData:
		printFlat(out)
	case map[string]inverter.RuntimeData:
		for _, bucket := range []string{"pv", "battery", "grid", "energy", "status"} {
			if len(out[bucket]) == 0 {
				continue
			}
			fmt.Println(headerStyle.Render(bucket))
			printFlat(out[bucket])
			fmt.Println()
		}
	case []inverter.Reading:
		for _, r := range out {
			fmt.Printf("%-22s %g\n", r.ID, r.Value)
		}
	}
	return nil
}

func printFlat(data inverter.RuntimeData) {
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-22s %s\n", name, valueStyle.Render(strconv.FormatFloat(data[name], 'g', -1, 64)))
	}
}

// checkSettingCmd validates a setting value without touching the device
var checkSettingCmd = &cobra.Command{
	Use:   "check-setting <name> <value>",
	Short: "Validate a setting value against the descriptor table",
	Long: `Check whether a value would be accepted for a writable setting.

This consults the static setting descriptor table only; it never contacts
the inverter, so it is safe to run against production systems.`,
	Example: `  goodwe-cli check-setting grid_export_limit 5000
  goodwe-cli check-setting work_mode 2`,
	Args: cobra.ExactArgs(2),
	RunE: runCheckSetting,
}

func runCheckSetting(cmd *cobra.Command, args []string) error {
	name := args[0]
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("value %q is not numeric", args[1])
	}

	if err := inverter.ValidateSetting(name, value); err != nil {
		fmt.Printf("%s %v\n", errorStyle.Render("invalid:"), err)
		if _, ok := inverter.LookupSetting(name); !ok {
			fmt.Println("\nKnown settings:")
			for _, n := range inverter.SettingNames() {
				fmt.Println("  -", n)
			}
		}
		return nil
	}

	fmt.Printf("%s %s = %g\n", okStyle.Render("valid:"), name, value)
	return nil
}
