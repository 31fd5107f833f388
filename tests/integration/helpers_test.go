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

// Package integration runs the cowfs binary end to end.
//
// TestMain builds bin/cowfs once. Every TestEnv gets its own storage root,
// passed to the binary through COWFS_ROOT on the child's environment only,
// so tests can run in parallel without touching process-wide state.
package integration

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/gomega"
)

var (
	cliBinary   string
	projectRoot string
)

// TestMain builds the CLI binary once before running all tests
func TestMain(m *testing.M) {
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get working directory: %v\n", err)
		os.Exit(1)
	}

	// Navigate to project root
	projectRoot = filepath.Join(wd, "..", "..")
	cliBinary = filepath.Join(projectRoot, "bin", "cowfs")

	if err := os.MkdirAll(filepath.Join(projectRoot, "bin"), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create bin directory: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Building cowfs binary...")
	cmd := exec.Command("go", "build", "-o", cliBinary, "./cmd/cowfs")
	cmd.Dir = projectRoot
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build binary: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

// TestEnv holds the test environment configuration
type TestEnv struct {
	t       *testing.T
	g       Gomega
	TestDir string
	Root    string
}

// NewTestEnv creates a test directory with an isolated storage root.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	testDir := t.TempDir()
	return &TestEnv{
		t:       t,
		g:       NewWithT(t),
		TestDir: testDir,
		Root:    filepath.Join(testDir, "store"),
	}
}

// CLIResult holds the result of a CLI execution
type CLIResult struct {
	Stdout   string
	Stderr   string
	Combined string
	ExitCode int
}

// Contains checks if output contains a substring
func (r CLIResult) Contains(s string) bool {
	return strings.Contains(r.Combined, s)
}

// CLITimeout is the maximum time a CLI command can run before being killed.
const CLITimeout = 15 * time.Second

// RunCLI executes cowfs against this environment's root.
func (e *TestEnv) RunCLI(args ...string) CLIResult {
	return e.RunCLIWithInput("", args...)
}

// RunCLIWithInput executes cowfs with stdin set to input.
func (e *TestEnv) RunCLIWithInput(input string, args ...string) CLIResult {
	ctx, cancel := context.WithTimeout(context.Background(), CLITimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, cliBinary, args...)
	cmd.WaitDelay = 2 * time.Second
	cmd.Dir = e.TestDir
	cmd.Env = append(filterEnvExcluding("COWFS_ROOT"), "COWFS_ROOT="+e.Root)
	cmd.Stdin = strings.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	exitCode := 0
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			exitCode = 124 // Standard timeout exit code
			stderr.WriteString(fmt.Sprintf("\n[CLI TIMEOUT] Command timed out after %v: %v\n", CLITimeout, args))
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = 1
		}
	}

	return CLIResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Combined: stdout.String() + stderr.String(),
		ExitCode: exitCode,
	}
}

// MustRun runs the CLI and fails the test on a non-zero exit.
func (e *TestEnv) MustRun(args ...string) CLIResult {
	e.t.Helper()
	result := e.RunCLI(args...)
	if result.ExitCode != 0 {
		e.t.Fatalf("cowfs %s failed (exit %d): %s", strings.Join(args, " "), result.ExitCode, result.Combined)
	}
	return result
}

// WriteHostFile writes content to a path relative to the test directory.
func (e *TestEnv) WriteHostFile(relPath, content string) string {
	e.t.Helper()
	fullPath := filepath.Join(e.TestDir, relPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		e.t.Fatalf("Failed to create directory for %s: %v", relPath, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		e.t.Fatalf("Failed to write file %s: %v", relPath, err)
	}
	return fullPath
}

// ReadHostFile reads a file relative to the test directory.
func (e *TestEnv) ReadHostFile(relPath string) string {
	e.t.Helper()
	data, err := os.ReadFile(filepath.Join(e.TestDir, relPath))
	if err != nil {
		e.t.Fatalf("Failed to read file %s: %v", relPath, err)
	}
	return string(data)
}

// filterEnvExcluding returns os.Environ() with the specified env var removed
func filterEnvExcluding(exclude string) []string {
	env := make([]string, 0, len(os.Environ()))
	prefix := exclude + "="
	for _, e := range os.Environ() {
		if !strings.HasPrefix(e, prefix) {
			env = append(env, e)
		}
	}
	return env
}
