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
	"bufio"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// gc command
var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Run garbage collection to remove unreferenced blocks",
	Long: `Run garbage collection to remove blocks no version of any file references.

Blocks of every version are kept, not only of current ones, so undone
history stays readable. Files replaced with create --overwrite leave their
old blocks behind for gc.

Output format:
  Storage: 2.3 MB total (5 files, 142 blocks)
  Reclaimable: 512 KB (12 orphaned blocks)

Examples:
  cowfs gc
  cowfs gc --stats      # Show stats without cleaning`,
	Args: cobra.NoArgs,
	RunE: runGC,
}

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "List stored blocks and their sizes",
	Args:  cobra.NoArgs,
	RunE:  runBlocks,
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show disk space used by blocks and metadata",
	Args:  cobra.NoArgs,
	RunE:  runUsage,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every file and block in the storage root",
	Long: `Delete all metadata records and all blocks.

Settings and the event log are kept.

Examples:
  cowfs reset
  cowfs reset -y    # Skip confirmation`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

// Flag variables
var (
	// gc flags
	gcStatsOnly bool

	// reset flags
	resetSkipConfirm bool
)

func init() {
	gcCmd.Flags().BoolVar(&gcStatsOnly, "stats", false, "Show storage stats without cleaning")
	rootCmd.AddCommand(gcCmd)

	rootCmd.AddCommand(blocksCmd)
	rootCmd.AddCommand(usageCmd)

	resetCmd.Flags().BoolVarP(&resetSkipConfirm, "yes", "y", false, "Skip confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runGC(cmd *cobra.Command, args []string) error {
	e, err := eng()
	if err != nil {
		return err
	}

	if gcStatsOnly {
		stats, err := e.GarbageStats()
		if err != nil {
			return err
		}

		// Line 1: Total storage with breakdown
		fmt.Fprintf(out(cmd), "Storage: %s total (%d files, %d versions, %d blocks)\n",
			formatBytes(stats.TotalBlockBytes), stats.Chains, stats.Versions, stats.TotalBlocks)

		// Line 2: Reclaimable data
		if stats.OrphanedBlocks > 0 {
			fmt.Fprintf(out(cmd), "Reclaimable: %s (%d orphaned blocks)\n",
				formatBytes(stats.OrphanedBytes), stats.OrphanedBlocks)
		} else {
			fmt.Fprintln(out(cmd), "Reclaimable: none")
		}
		if stats.MissingBlocks > 0 {
			fmt.Fprintf(out(cmd), "Missing: %d referenced blocks are absent from the store\n", stats.MissingBlocks)
		}
		return nil
	}

	fmt.Fprintln(out(cmd), "Running garbage collection...")
	result, err := e.CollectGarbage()
	if err != nil {
		return err
	}
	fmt.Fprintf(out(cmd), "Cleaned: %s freed (%d of %d blocks removed)\n",
		formatBytes(result.OrphanedBytes), result.OrphanedBlocks, result.ScannedBlocks)
	return nil
}

func runBlocks(cmd *cobra.Command, args []string) error {
	e, err := eng()
	if err != nil {
		return err
	}
	blocks, err := e.ListBlocks()
	if err != nil {
		return err
	}

	fmt.Fprintf(out(cmd), "Stored blocks: %d\n", len(blocks))
	if len(blocks) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BLOCK\tBYTES\t")
	var total int64
	for _, b := range blocks {
		fmt.Fprintf(w, "%s\t%d\t\n", b.ID, b.Size)
		total += b.Size
	}
	fmt.Fprintf(w, "total\t%d\t\n", total)
	return w.Flush()
}

func runUsage(cmd *cobra.Command, args []string) error {
	e, err := eng()
	if err != nil {
		return err
	}
	u, err := e.MemoryUsage()
	if err != nil {
		return err
	}
	fmt.Fprintf(out(cmd), "Blocks:   %s (%d blocks)\n", formatBytes(u.BlocksBytes), u.BlockCount)
	fmt.Fprintf(out(cmd), "Metadata: %s (%d files)\n", formatBytes(u.MetadataBytes), u.ChainCount)
	fmt.Fprintf(out(cmd), "Total:    %s\n", formatBytes(u.TotalBytes()))
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	e, err := eng()
	if err != nil {
		return err
	}

	// Confirmation prompt (if not skipped)
	if !resetSkipConfirm {
		fmt.Fprintf(out(cmd), "This will permanently delete every file and block in %s.\n", current.root)
		fmt.Fprint(out(cmd), "Continue? [y/N] ")

		reader := bufio.NewReader(cmd.InOrStdin())
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))

		if response != "y" && response != "yes" {
			fmt.Fprintln(out(cmd), "Reset cancelled")
			return nil
		}
	}

	res, err := e.Reset()
	if err != nil {
		return err
	}
	fmt.Fprintf(out(cmd), "Removed %d files and %d blocks\n", res.Chains, res.Blocks)
	return nil
}

// formatBytes formats bytes in human-readable form
func formatBytes(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}
