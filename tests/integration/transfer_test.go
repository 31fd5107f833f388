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

package integration

import (
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"
)

func TestExport(t *testing.T) {
	t.Parallel()
	env := NewTestEnv(t)

	env.MustRun("create", "doc.txt")
	env.MustRun("write", "doc.txt", "exported content")

	result := env.MustRun("export", "doc.txt", "out/doc.txt")
	env.g.Expect(result.Stdout).To(ContainSubstring("Exported doc.txt"))
	env.g.Expect(env.ReadHostFile("out/doc.txt")).To(Equal("exported content"))

	// an existing target needs --force
	env.MustRun("write", "doc.txt", "!")
	result = env.RunCLI("export", "doc.txt", "out/doc.txt")
	env.g.Expect(result.ExitCode).NotTo(Equal(0))
	env.g.Expect(env.ReadHostFile("out/doc.txt")).To(Equal("exported content"))

	env.MustRun("export", "doc.txt", "out/doc.txt", "--force")
	env.g.Expect(env.ReadHostFile("out/doc.txt")).To(Equal("exported content!"))
}

func TestImportDefaultRootNotSelfImported(t *testing.T) {
	t.Parallel()
	env := NewTestEnv(t)
	env.Root = filepath.Join(env.TestDir, "cow_filesystem")

	env.MustRun("create", "seed.txt")
	env.MustRun("write", "seed.txt", "seed")
	env.WriteHostFile("notes.txt", "notes")

	result := env.MustRun("import", ".")
	env.g.Expect(result.Stdout).To(ContainSubstring("Imported notes.txt"))
	env.g.Expect(result.Stdout).To(ContainSubstring("1 file(s) imported"))
	env.g.Expect(result.Stdout).NotTo(ContainSubstring("cow_filesystem"))
}

func TestImportFile(t *testing.T) {
	t.Parallel()
	env := NewTestEnv(t)

	env.WriteHostFile("report.txt", "quarterly numbers")

	result := env.MustRun("import", "report.txt")
	env.g.Expect(result.Stdout).To(ContainSubstring("Imported report.txt"))
	env.g.Expect(env.MustRun("read", "report.txt").Stdout).To(Equal("quarterly numbers"))

	env.MustRun("import", "report.txt", "--name", "renamed.txt")
	env.g.Expect(env.MustRun("read", "renamed.txt").Stdout).To(Equal("quarterly numbers"))
}

func TestImportDirectory(t *testing.T) {
	t.Parallel()

	t.Run("gitignore respected", func(t *testing.T) {
		env := NewTestEnv(t)
		env.WriteHostFile("proj/.gitignore", "*.log\n")
		env.WriteHostFile("proj/main.go", "package main")
		env.WriteHostFile("proj/sub/util.go", "package sub")
		env.WriteHostFile("proj/debug.log", "noise")
		env.WriteHostFile("proj/.git/HEAD", "ref")

		result := env.MustRun("import", "proj", "--name", "p")
		env.g.Expect(result.Stdout).To(ContainSubstring("p/main.go"))
		env.g.Expect(result.Stdout).To(ContainSubstring("p/sub/util.go"))
		env.g.Expect(result.Stdout).NotTo(ContainSubstring("debug.log"))
		env.g.Expect(result.Stdout).NotTo(ContainSubstring("HEAD"))

		env.g.Expect(env.MustRun("read", "p/sub/util.go").Stdout).To(Equal("package sub"))
	})

	t.Run("no-gitignore and exclude", func(t *testing.T) {
		env := NewTestEnv(t)
		env.WriteHostFile("proj/.gitignore", "*.log\n")
		env.WriteHostFile("proj/debug.log", "noise")
		env.WriteHostFile("proj/vendor/dep.go", "package dep")
		env.WriteHostFile("proj/main.go", "package main")

		result := env.MustRun("import", "proj", "--no-gitignore", "--exclude", "vendor")
		env.g.Expect(result.Stdout).To(ContainSubstring("debug.log"))
		env.g.Expect(result.Stdout).To(ContainSubstring("main.go"))
		env.g.Expect(result.Stdout).NotTo(ContainSubstring("dep.go"))
	})
}

func TestImportMissingPathFails(t *testing.T) {
	t.Parallel()
	env := NewTestEnv(t)

	result := env.RunCLI("import", "does-not-exist.txt")
	env.g.Expect(result.ExitCode).NotTo(Equal(0))
}
