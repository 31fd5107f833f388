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
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an empty file",
	Long: `Create an empty file with no versions.

Creating a file that already exists is not an error; its history is kept.
With --overwrite the history is discarded and its blocks are left for gc.

Examples:
  cowfs create notes.txt
  cowfs create notes.txt --overwrite`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

var writeCmd = &cobra.Command{
	Use:   "write NAME [TEXT]",
	Short: "Write data to a file as a new version",
	Long: `Write data to a file, creating a new version.

Data comes from TEXT, from --file, or from stdin when neither is given.
Without --offset the data is appended. With --offset it replaces the bytes at
that position, extending the file if it runs past the end.

Examples:
  cowfs write notes.txt "hello"
  cowfs write notes.txt --file ./chapter1.md
  echo "patched" | cowfs write notes.txt --offset 0`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runWrite,
}

var readCmd = &cobra.Command{
	Use:   "read NAME",
	Short: "Print the content of a file",
	Long: `Print the content of the current version, or of --version N.

--offset and --size select a byte range. Output is written raw.

Examples:
  cowfs read notes.txt
  cowfs read notes.txt --version 0
  cowfs read notes.txt --offset 100 --size 20`,
	Args: cobra.ExactArgs(1),
	RunE: runRead,
}

var undoCmd = &cobra.Command{
	Use:   "undo NAME",
	Short: "Make the previous version current",
	Long: `Step the current version back by one.

History is kept, so undone versions can still be read with --version and
their blocks survive gc.`,
	Args: cobra.ExactArgs(1),
	RunE: runUndo,
}

var versionsCmd = &cobra.Command{
	Use:   "versions NAME",
	Short: "List the versions of a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersions,
}

var rmCmd = &cobra.Command{
	Use:   "rm NAME",
	Short: "Delete a file and its history",
	Long: `Delete a file and all of its versions.

Its blocks stay on disk until the next gc.`,
	Args: cobra.ExactArgs(1),
	RunE: runRm,
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored files",
	Args:  cobra.NoArgs,
	RunE:  runLs,
}

// Flag variables
var (
	// create flags
	createOverwrite bool

	// write flags
	writeFile   string
	writeOffset int64

	// read flags
	readOffset  int64
	readSize    int64
	readVersion int
)

func init() {
	createCmd.Flags().BoolVar(&createOverwrite, "overwrite", false, "Discard existing history")
	rootCmd.AddCommand(createCmd)

	writeCmd.Flags().StringVarP(&writeFile, "file", "f", "", "Read data from this file")
	writeCmd.Flags().Int64Var(&writeOffset, "offset", 0, "Write at this byte offset instead of appending")
	rootCmd.AddCommand(writeCmd)

	readCmd.Flags().Int64Var(&readOffset, "offset", 0, "Start reading at this byte offset")
	readCmd.Flags().Int64Var(&readSize, "size", -1, "Read at most this many bytes (-1 for all)")
	readCmd.Flags().IntVar(&readVersion, "version", -1, "Read this version instead of the current one")
	rootCmd.AddCommand(readCmd)

	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(lsCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	e, err := eng()
	if err != nil {
		return err
	}
	name := args[0]
	created, err := e.Create(name, createOverwrite)
	if err != nil {
		return err
	}
	switch {
	case created && createOverwrite:
		fmt.Fprintf(out(cmd), "Created %s (previous history discarded)\n", name)
	case created:
		fmt.Fprintf(out(cmd), "Created %s\n", name)
	default:
		fmt.Fprintf(out(cmd), "%s already exists\n", name)
	}
	return nil
}

func runWrite(cmd *cobra.Command, args []string) error {
	e, err := eng()
	if err != nil {
		return err
	}
	name := args[0]

	var data []byte
	switch {
	case len(args) == 2 && writeFile != "":
		return fmt.Errorf("give either TEXT or --file, not both")
	case len(args) == 2:
		data = []byte(args[1])
	case writeFile != "":
		if data, err = os.ReadFile(writeFile); err != nil {
			return fmt.Errorf("failed to read %s: %w", writeFile, err)
		}
	default:
		if data, err = io.ReadAll(cmd.InOrStdin()); err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
	}

	s, err := e.Open(name)
	if err != nil {
		return err
	}
	defer s.Close()

	if cmd.Flags().Changed("offset") {
		if err := s.Seek(writeOffset); err != nil {
			return err
		}
	}
	n, err := s.Write(data)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintf(out(cmd), "Nothing to write to %s\n", name)
		return nil
	}
	fmt.Fprintf(out(cmd), "Wrote %d bytes to %s (version %d, %s)\n",
		n, name, s.CurrentVersion(), humanize.IBytes(uint64(s.Size())))
	return nil
}

func runRead(cmd *cobra.Command, args []string) error {
	e, err := eng()
	if err != nil {
		return err
	}
	name := args[0]

	if cmd.Flags().Changed("version") {
		content, err := e.ReadVersion(name, readVersion)
		if err != nil {
			return err
		}
		start := min(max(readOffset, 0), int64(len(content)))
		end := int64(len(content))
		if readSize >= 0 {
			end = min(start+readSize, end)
		}
		_, err = out(cmd).Write(content[start:end])
		return err
	}

	s, err := e.Open(name)
	if err != nil {
		return err
	}
	defer s.Close()

	// Open leaves the cursor at the end of content
	if err := s.Seek(readOffset); err != nil {
		return err
	}
	data, err := s.Read(readSize)
	if err != nil {
		return err
	}
	_, err = out(cmd).Write(data)
	return err
}

func runUndo(cmd *cobra.Command, args []string) error {
	e, err := eng()
	if err != nil {
		return err
	}
	name := args[0]
	s, err := e.Open(name)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Undo(); err != nil {
		return err
	}
	fmt.Fprintf(out(cmd), "%s is now at version %d (%s)\n",
		name, s.CurrentVersion(), humanize.IBytes(uint64(s.Size())))
	return nil
}

func runVersions(cmd *cobra.Command, args []string) error {
	e, err := eng()
	if err != nil {
		return err
	}
	name := args[0]
	versions, err := e.ListVersions(name)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintf(out(cmd), "%s has no versions\n", name)
		return nil
	}

	info, err := e.Stat(name)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tTIMESTAMP\tSIZE\tBLOCKS\t")
	for _, v := range versions {
		marker := ""
		if v.Number == info.CurrentVersion {
			marker = "*"
		}
		fmt.Fprintf(w, "%d%s\t%s\t%d\t%d\t\n", v.Number, marker,
			v.Timestamp.Local().Format(time.DateTime), v.Size, len(v.Blocks))
	}
	return w.Flush()
}

func runRm(cmd *cobra.Command, args []string) error {
	e, err := eng()
	if err != nil {
		return err
	}
	if err := e.Delete(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(out(cmd), "Deleted %s (run gc to reclaim its blocks)\n", args[0])
	return nil
}

func runLs(cmd *cobra.Command, args []string) error {
	e, err := eng()
	if err != nil {
		return err
	}
	files, err := e.ListFiles()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(out(cmd), "No files")
		return nil
	}
	w := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tVERSIONS\tCURRENT\t")
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t\n", f.Name, humanize.IBytes(uint64(f.Size)), f.Versions, f.CurrentVersion)
	}
	return w.Flush()
}
