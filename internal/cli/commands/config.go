// Copyright 2024 The cowfs Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cowfs/internal/config"
	"cowfs/internal/eventlog"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change storage root settings",
	Long: `Show or change the settings in <root>/settings.yaml.

Without flags the current settings are printed. Changes take effect on the
next command.

Examples:
  cowfs config
  cowfs config --logging debug
  cowfs config --cache-entries 0 --fsync on`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

// Flag variables
var (
	configLogLevel     string
	configCacheEntries int
	configFsync        string
	configLockTimeout  int
)

func init() {
	configCmd.Flags().StringVar(&configLogLevel, "logging", "", "Event log level: "+strings.Join(eventlog.Levels, ", "))
	configCmd.Flags().IntVar(&configCacheEntries, "cache-entries", 0, "Blocks kept in the read cache (0 disables it)")
	configCmd.Flags().StringVar(&configFsync, "fsync", "", "Flush files before they become visible: on or off")
	configCmd.Flags().IntVar(&configLockTimeout, "lock-timeout", 0, "Milliseconds to wait for another process to release the root")
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	if current == nil {
		return fmt.Errorf("storage root is not open")
	}
	root, settings := current.root, current.settings
	flags := cmd.Flags()

	if !flags.Changed("logging") && !flags.Changed("cache-entries") &&
		!flags.Changed("fsync") && !flags.Changed("lock-timeout") {
		printSettings(cmd, root, settings)
		return nil
	}

	if flags.Changed("logging") {
		if _, _, err := eventlog.ParseLevel(configLogLevel); err != nil {
			return err
		}
		settings.LogLevel = strings.ToLower(strings.TrimSpace(configLogLevel))
	}
	if flags.Changed("cache-entries") {
		if configCacheEntries < 0 {
			return fmt.Errorf("invalid --cache-entries %d: must not be negative", configCacheEntries)
		}
		n := configCacheEntries
		settings.BlockCacheEntries = &n
	}
	if flags.Changed("fsync") {
		switch configFsync {
		case "on":
			settings.Fsync = true
		case "off":
			settings.Fsync = false
		default:
			return fmt.Errorf("invalid --fsync value %q: must be 'on' or 'off'", configFsync)
		}
	}
	if flags.Changed("lock-timeout") {
		if configLockTimeout <= 0 {
			return fmt.Errorf("invalid --lock-timeout %d: must be positive", configLockTimeout)
		}
		settings.LockTimeoutMs = configLockTimeout
	}

	if err := config.SaveSettings(root, settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	fmt.Fprintln(out(cmd), "Settings saved")
	printSettings(cmd, root, settings)
	return nil
}

func printSettings(cmd *cobra.Command, root string, settings *config.Settings) {
	level := settings.Level()
	if level == "" {
		level = "none"
	}
	fsync := "off"
	if settings.Fsync {
		fsync = "on"
	}
	w := out(cmd)
	fmt.Fprintf(w, "Settings: %s\n", config.SettingsPath(root))
	fmt.Fprintf(w, "  Log level: %s\n", level)
	fmt.Fprintf(w, "  Block cache entries: %d\n", settings.CacheEntries())
	fmt.Fprintf(w, "  Fsync: %s\n", fsync)
	fmt.Fprintf(w, "  Lock timeout: %d ms\n", settings.LockTimeoutMs)
}
