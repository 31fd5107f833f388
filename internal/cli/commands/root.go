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
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/fang"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"cowfs/internal/config"
	"cowfs/internal/engine"
	"cowfs/internal/eventlog"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersion sets the version info for --version flag
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

// getVersionString returns the version string with build info
func getVersionString() string {
	buildDate := formatBuildDate(date)
	if strings.HasSuffix(version, "-dev") {
		return fmt.Sprintf("%s (%s, epoch: %s, commit: %s)", version, buildDate, date, commit)
	}
	return fmt.Sprintf("%s (%s)", version, buildDate)
}

// formatBuildDate converts epoch timestamp to readable date
func formatBuildDate(epoch string) string {
	ts, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return epoch
	}
	return time.Unix(ts, 0).Format("2006-01-02")
}

// Global flags
var (
	rootDir  string
	logLevel string
)

// session is the per-invocation state set up before a command runs.
type session struct {
	root     string
	settings *config.Settings
	eventLog *eventlog.Log
	lock     *config.RootLock
	engine   *engine.Engine
}

var current *session

var rootCmd = &cobra.Command{
	Use:   "cowfs",
	Short: "Versioned copy-on-write file store",
	Long: `cowfs stores files as immutable blocks with an append-only version history.

Every write creates a new version that shares unchanged blocks with the
previous one. Any version can be read back, undo steps back through history,
and gc removes blocks no version references.

The storage root is taken from --root, then $COWFS_ROOT, then ./cow_filesystem.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for help commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		return setup(cmd.Context())
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("cowfs version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Storage root directory (default $COWFS_ROOT or ./cow_filesystem)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Event log level: trace, debug, info, warn, none (overrides settings.yaml)")
	cobra.OnFinalize(teardown)
}

// setup resolves the root and takes the root lock, then opens the event log
// and the engine.
func setup(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	root, err := config.ResolveRoot(rootDir)
	if err != nil {
		return err
	}
	if err := config.InitRoot(root); err != nil {
		return fmt.Errorf("failed to initialize root: %w", err)
	}
	settings, err := config.LoadSettings(root)
	if err != nil {
		return err
	}

	s := &session{root: root, settings: settings}
	current = s

	// the log is truncated on open, so it belongs to whoever holds the lock
	timeout := time.Duration(settings.LockTimeoutMs) * time.Millisecond
	if s.lock, err = config.AcquireLock(ctx, root, timeout); err != nil {
		return err
	}

	level := settings.Level()
	if logLevel != "" {
		level = logLevel
	}
	if s.eventLog, err = eventlog.Setup(config.LogPath(root), level); err != nil {
		return err
	}

	s.engine, err = engine.OpenRoot(root, engine.Options{
		CacheEntries: settings.CacheEntries(),
		Fsync:        settings.Fsync,
	})
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"root": root, "version": version}).Info("cowfs started")
	return nil
}

// teardown releases everything setup acquired. Safe to call when setup did
// not run or failed part-way.
func teardown() {
	s := current
	current = nil
	if s == nil {
		return
	}
	if s.engine != nil {
		s.engine.CloseAll()
	}
	if s.lock != nil {
		if err := s.lock.Release(); err != nil {
			log.Warnf("failed to release lock: %v", err)
		}
	}
	if s.eventLog != nil {
		_ = s.eventLog.Close()
	}
}

// eng returns the engine opened for this invocation.
func eng() (*engine.Engine, error) {
	if current == nil || current.engine == nil {
		return nil, fmt.Errorf("storage root is not open")
	}
	return current.engine, nil
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return fang.Execute(ctx, rootCmd, fang.WithVersion(rootCmd.Version), fang.WithCommit(commit))
}
