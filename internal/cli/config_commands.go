package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dashpull/dashpull/internal/config"
	"github.com/dashpull/dashpull/internal/http"
)

const connectionTestTimeout = 15 * time.Second

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage dashpull configuration",
		Long: `Configuration management commands for dashpull.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  test  - Check that the dashboard is reachable
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for dashpull.

The configuration is saved to ~/.config/dashpull/dashpull.conf. Passwords and
secret keys are never written; supply them through the environment or at the
prompt when a run starts.

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Printf("Configuration already exists at: %s\n", path)
					fmt.Println("Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			fmt.Println("dashpull Configuration Setup")
			fmt.Println("============================")
			fmt.Println()

			cfg := config.NewConfig()
			reader := bufio.NewReader(os.Stdin)

			cfg.Session.LoginURL = promptLine(reader, "Login URL", cfg.Session.LoginURL)
			cfg.Session.Username = promptLine(reader, "Username (optional)", "")
			cfg.Download.Dir = promptLine(reader, "Download directory", cfg.Download.Dir)
			cfg.Logging.File = promptLine(reader, "Log file (\"none\" to disable)", config.DefaultLogFile())
			if cfg.Logging.File == "none" {
				cfg.Logging.File = ""
			}

			fmt.Println()
			if yes(promptLine(reader, "Toggle a VPN shortcut around runs? (y/N)", "n")) {
				cfg.VPN.Enabled = true
				cfg.VPN.Executable = promptLine(reader, "VPN client executable", "")
				cfg.VPN.ShortcutID = promptLine(reader, "VPN shortcut id", "")
			}

			fmt.Println()
			mode, err := promptChoice("Proxy mode", []string{
				http.ModeNoProxy, http.ModeSystem, http.ModeBasic, http.ModeNTLM,
			}, cfg.Proxy.Mode)
			if err != nil {
				return err
			}
			cfg.Proxy.Mode = mode
			if mode == http.ModeBasic || mode == http.ModeNTLM {
				cfg.Proxy.Host = promptLine(reader, "Proxy host", "")
				if port, err := strconv.Atoi(promptLine(reader, "Proxy port", "8080")); err == nil {
					cfg.Proxy.Port = port
				}
				cfg.Proxy.User = promptLine(reader, "Proxy user (optional)", "")
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.SaveConfig(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			GetLogger().Info().Str("path", path).Msg("Configuration saved")
			fmt.Println()
			fmt.Printf("✓ Configuration saved to: %s\n", path)
			fmt.Println()
			fmt.Println("Next steps:")
			fmt.Println("  dashpull config test   # check the dashboard is reachable")
			fmt.Println("  dashpull tasks         # list available tasks")
			fmt.Println("  dashpull run           # pick tasks and run them")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

func yes(s string) bool {
	switch s {
	case "y", "Y", "yes", "Yes", "YES":
		return true
	}
	return false
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

Values come from the configuration file, then environment variables
(DASHPULL_USERNAME, DASHPULL_PASSWORD, DASHPULL_PROXY_PASSWORD,
DASHPULL_S3_SECRET_KEY). Secrets are masked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			cfg, err := config.LoadConfig(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			printConfig(cmd.OutOrStdout(), cfg, path)
			return nil
		},
	}

	return cmd
}

func printConfig(w io.Writer, cfg *config.Config, path string) {
	fmt.Fprintln(w, "Current Configuration")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Session:")
	fmt.Fprintf(w, "  Login URL: %s\n", cfg.Session.LoginURL)
	fmt.Fprintf(w, "  Username:  %s\n", orUnset(cfg.Session.Username))
	fmt.Fprintf(w, "  Password:  %s\n", orUnset(config.MaskSecret(cfg.Session.Password)))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Browser:")
	fmt.Fprintf(w, "  Headless:  %t\n", cfg.Browser.Headless)
	fmt.Fprintf(w, "  Viewport:  %dx%d\n", cfg.Browser.Width, cfg.Browser.Height)
	if cfg.Browser.Bin != "" {
		fmt.Fprintf(w, "  Binary:    %s\n", cfg.Browser.Bin)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Downloads:")
	fmt.Fprintf(w, "  Directory:      %s\n", cfg.Download.Dir)
	fmt.Fprintf(w, "  Output:         %s\n", cfg.OutputDirectory())
	fmt.Fprintf(w, "  Single timeout: %s\n", cfg.Download.SingleTimeout)
	fmt.Fprintf(w, "  Batch timeout:  %s\n", cfg.Download.BatchTimeout)
	fmt.Fprintf(w, "  Summary:        %s\n", cfg.SummaryPath())
	fmt.Fprintln(w)

	fmt.Fprintln(w, "VPN:")
	if cfg.VPN.Enabled {
		fmt.Fprintf(w, "  Shortcut:  %s (%s)\n", cfg.VPN.ShortcutID, cfg.VPN.Executable)
	} else {
		fmt.Fprintln(w, "  Disabled")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Proxy:")
	fmt.Fprintf(w, "  Mode: %s\n", cfg.Proxy.Mode)
	if cfg.Proxy.Host != "" {
		fmt.Fprintf(w, "  Host: %s:%d\n", cfg.Proxy.Host, cfg.Proxy.Port)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Publishing:")
	if !publishConfigured(cfg.Publish) {
		fmt.Fprintln(w, "  Disabled")
	}
	if cfg.Publish.S3Bucket != "" {
		fmt.Fprintf(w, "  S3:      s3://%s/%s (%s)\n", cfg.Publish.S3Bucket, cfg.Publish.S3Prefix, cfg.Publish.S3Region)
		fmt.Fprintf(w, "  Secret:  %s\n", orUnset(config.MaskSecret(cfg.Publish.S3SecretKey)))
	}
	if cfg.Publish.AzureContainerURL != "" {
		fmt.Fprintf(w, "  Azure:   %s\n", publishWarmupURL(config.PublishConfig{AzureContainerURL: cfg.Publish.AzureContainerURL}))
	}
	if cfg.Publish.WebhookURL != "" {
		fmt.Fprintf(w, "  Webhook: %s\n", cfg.Publish.WebhookURL)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Log file: %s\n", orUnset(cfg.Logging.File))

	catalog := cfg.Tasks.Catalog
	if catalog == "" {
		catalog = "(built-in)"
	}
	fmt.Fprintf(w, "Task catalog: %s\n", catalog)
	fmt.Fprintf(w, "Configuration file: %s\n", path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(w, "  (file does not exist - using defaults)")
	}
}

func orUnset(s string) string {
	if s == "" {
		return "<not set>"
	}
	return s
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Check that the dashboard is reachable",
		Long: `Send a request to the login URL through the configured proxy.

Use this to verify network connectivity (and VPN, when already connected)
before starting a run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if http.NeedsProxyPassword(cfg.Proxy) && isInteractive() {
				p, err := promptSecret(fmt.Sprintf("Proxy password for %s", cfg.Proxy.User))
				if err != nil {
					return err
				}
				cfg.Proxy.Password = p
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Login URL: %s\n", cfg.Session.LoginURL)
			fmt.Fprintf(out, "Proxy:     %s\n", cfg.Proxy.Mode)
			fmt.Fprintln(out, "Testing connection...")

			client, err := http.NewClient(cfg.Proxy, "", logger)
			if err != nil {
				return fmt.Errorf("failed to create HTTP client: %w", err)
			}

			ctx, cancel := context.WithTimeout(GetContext(), connectionTestTimeout)
			defer cancel()

			if err := http.Warmup(ctx, client, cfg.Session.LoginURL); err != nil {
				logger.Error().Err(err).Msg("Connection test failed")
				fmt.Fprintln(out, "✗ Connection FAILED")
				fmt.Fprintf(out, "  Error: %v\n", err)
				return fmt.Errorf("connection test failed")
			}

			logger.Info().Msg("Connection test successful")
			fmt.Fprintln(out, "✓ Connection SUCCESSFUL")
			return nil
		},
	}

	return cmd
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Long:  `Display the path to the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path, err := configPath()
			if err != nil {
				return err
			}
			if cfgFile == "" {
				fmt.Fprintln(out, "Default configuration path:")
			} else {
				fmt.Fprintln(out, "Configuration path (from --config flag):")
			}
			fmt.Fprintf(out, "  %s\n", path)
			fmt.Fprintln(out)

			if info, err := os.Stat(path); err == nil {
				fmt.Fprintln(out, "Status: ✓ File exists")
				fmt.Fprintf(out, "Size:   %d bytes\n", info.Size())
				fmt.Fprintf(out, "Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "Status: File does not exist")
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Create a configuration file with: dashpull config init")
			}
			return nil
		},
	}

	return cmd
}
