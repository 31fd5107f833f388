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

package engine

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	ignore "github.com/sabhiram/go-gitignore"
	log "github.com/sirupsen/logrus"

	"cowfs/internal/common"
)

// FileFilter decides whether a path, relative to the import root and using
// forward slashes, is imported. Returning false for a directory skips it.
type FileFilter func(relPath string, isDir bool) bool

// BuildFileFilter creates a FileFilter that:
// 1. Always excludes .git directories
// 2. Checks the excludes list (prefix match on path segments)
// 3. Applies .gitignore rules found under root, when enabled
func BuildFileFilter(fs billy.Filesystem, root string, gitignoreEnabled bool, excludes []string) FileFilter {
	var matcher *gitignoreMatcher
	if gitignoreEnabled {
		var err error
		matcher, err = newGitignoreMatcher(fs, root)
		if err != nil {
			log.Warnf("[Filter] failed to build gitignore matcher: %v", err)
		}
	}

	return func(relPath string, isDir bool) bool {
		if relPath == ".git" || strings.HasPrefix(relPath, ".git/") || strings.HasSuffix(relPath, "/.git") || strings.Contains(relPath, "/.git/") {
			return false
		}
		for _, exc := range excludes {
			exc = common.NormalizePath(exc)
			if exc == "" {
				continue
			}
			if relPath == exc || strings.HasPrefix(relPath, exc+"/") {
				return false
			}
		}
		if matcher != nil && matcher.isIgnored(relPath, isDir) {
			return false
		}
		return true
	}
}

// gitignoreMatcher collects .gitignore rules from a tree.
type gitignoreMatcher struct {
	matchers []scopedMatcher
}

// scopedMatcher applies one .gitignore to paths under its directory.
type scopedMatcher struct {
	dirPrefix string
	ignore    *ignore.GitIgnore
}

func newGitignoreMatcher(fs billy.Filesystem, root string) (*gitignoreMatcher, error) {
	m := &gitignoreMatcher{}

	err := util.Walk(fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if info.Name() == ".git" && p != root {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Name() != ".gitignore" {
			return nil
		}

		data, readErr := util.ReadFile(fs, p)
		if readErr != nil {
			return nil
		}

		relDir := relativePath(root, path.Dir(toSlash(p)))
		lines := strings.Split(string(data), "\n")
		m.matchers = append(m.matchers, scopedMatcher{
			dirPrefix: relDir,
			ignore:    ignore.CompileIgnoreLines(lines...),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *gitignoreMatcher) isIgnored(relPath string, isDir bool) bool {
	if m == nil || len(m.matchers) == 0 {
		return false
	}

	checkPath := relPath
	if isDir {
		checkPath = relPath + "/"
	}

	for _, sm := range m.matchers {
		pathToCheck := checkPath
		if sm.dirPrefix != "" {
			prefix := sm.dirPrefix + "/"
			if !strings.HasPrefix(relPath, prefix) {
				continue
			}
			pathToCheck = strings.TrimPrefix(checkPath, prefix)
		}
		if sm.ignore.MatchesPath(pathToCheck) {
			return true
		}
	}
	return false
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// relativePath returns p relative to root with forward slashes; "" for root itself.
func relativePath(root, p string) string {
	root = path.Clean(toSlash(root))
	p = path.Clean(toSlash(p))
	switch {
	case p == root:
		return ""
	case root == "/":
		return strings.TrimPrefix(p, "/")
	case root == ".":
		return p
	}
	return strings.TrimPrefix(p, root+"/")
}

// subpath returns p relative to root and true when p is root or lies below it.
func subpath(root, p string) (string, bool) {
	root = path.Clean(toSlash(root))
	p = path.Clean(toSlash(p))
	switch {
	case p == root:
		return "", true
	case root == "/":
		return strings.TrimPrefix(p, "/"), strings.HasPrefix(p, "/")
	case strings.HasPrefix(p, root+"/"):
		return strings.TrimPrefix(p, root+"/"), true
	}
	return "", false
}
