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

	"github.com/spf13/cobra"

	"cowfs/internal/perf"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show system resource usage and storage footprint",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	e, err := eng()
	if err != nil {
		return err
	}
	report, err := perf.Collect(cmd.Context(), current.root, perf.DefaultSampleInterval)
	if err != nil {
		return err
	}
	u, err := e.MemoryUsage()
	if err != nil {
		return err
	}

	w := out(cmd)
	fmt.Fprintf(w, "CPU:      %.1f%%\n", report.CPUPercent)
	fmt.Fprintf(w, "Memory:   %s of %s used (%.1f%%)\n",
		formatBytes(int64(report.MemoryUsed)), formatBytes(int64(report.MemoryTotal)), report.MemoryUsedPercent)
	fmt.Fprintf(w, "Process:  %s resident\n", formatBytes(int64(report.ProcessRSS)))
	fmt.Fprintf(w, "Disk:     %s free of %s (%.1f%% used)\n",
		formatBytes(int64(report.DiskFree)), formatBytes(int64(report.DiskTotal)), report.DiskUsedPercent)
	fmt.Fprintf(w, "Storage:  %s in %d blocks and %d files\n",
		formatBytes(u.TotalBytes()), u.BlockCount, u.ChainCount)
	return nil
}
