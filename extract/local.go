// Copyright 2025 Poiesic Systems
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


package extract

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-enry/go-enry/v2"
	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/source"
	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/tmc/langchaingo/documentloaders"
)

const defaultMaxFileBytes = 5 << 20

// Metadata keys set on documents read from disk.
const (
	MetaPath     = "path"
	MetaLanguage = "language"
)

// DefaultIgnorePatterns are skipped in every directory walk in addition to
// the root .gitignore.
var DefaultIgnorePatterns = []string{
	".git",
	".gitignore",
	"node_modules",
	"__pycache__",
	".venv",
	".DS_Store",
	"*.log",
	".env",
	".env.*",
	"*.pem",
	"*.key",
}

// Local reads files and directories. Binary files are skipped, directory
// walks honour the root .gitignore, and each document is tagged with its
// detected language.
type Local struct {
	maxFileBytes int64
	ignore       []string
	logger       *slog.Logger
}

var _ Extractor = (*Local)(nil)

// LocalOption configures a Local extractor.
type LocalOption func(*Local)

// WithMaxFileBytes skips files larger than n bytes.
func WithMaxFileBytes(n int64) LocalOption {
	return func(l *Local) {
		l.maxFileBytes = n
	}
}

// WithIgnorePatterns adds gitignore-style patterns to every walk.
func WithIgnorePatterns(patterns ...string) LocalOption {
	return func(l *Local) {
		l.ignore = append(l.ignore, patterns...)
	}
}

// WithLocalLogger sets a custom logger.
func WithLocalLogger(logger *slog.Logger) LocalOption {
	return func(l *Local) {
		l.logger = logger
	}
}

// NewLocal creates a Local extractor.
func NewLocal(opts ...LocalOption) *Local {
	l := &Local{
		maxFileBytes: defaultMaxFileBytes,
		ignore:       append([]string(nil), DefaultIgnorePatterns...),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "local-extractor")
	return l
}

// Extract reads every path in plan.
func (l *Local) Extract(ctx context.Context, plan source.Plan) ([]core.Document, error) {
	return collect(ctx, l.logger, plan.Paths, l.readPath)
}

func (l *Local) readPath(ctx context.Context, path string) ([]core.Document, error) {
	path, err := expandHome(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return l.readFile(ctx, path)
	}
	return l.walk(ctx, path)
}

func (l *Local) walk(ctx context.Context, root string) ([]core.Document, error) {
	matcher, err := l.matcher(root)
	if err != nil {
		return nil, err
	}

	var docs []core.Document
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if matcher.MatchesPath(rel) || enry.IsVendor(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		got, err := l.readFile(ctx, path)
		if err != nil {
			l.logger.Warn("skipping unreadable file", "path", path, "error", err)
			return nil
		}
		docs = append(docs, got...)
		return nil
	})
	return docs, err
}

func (l *Local) matcher(root string) (*gitignore.GitIgnore, error) {
	ignoreFile := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(ignoreFile); err == nil {
		return gitignore.CompileIgnoreFileAndLines(ignoreFile, l.ignore...)
	}
	return gitignore.CompileIgnoreLines(l.ignore...), nil
}

func (l *Local) readFile(ctx context.Context, path string) ([]core.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if info.Size() > l.maxFileBytes {
		l.logger.Debug("skipping large file", "path", abs, "size", info.Size())
		return nil, nil
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	if enry.IsBinary(content) {
		l.logger.Debug("skipping binary file", "path", abs)
		return nil, nil
	}

	name := filepath.Base(abs)
	var loader documentloaders.Loader
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		loader = documentloaders.NewHTML(bytes.NewReader(content))
	case ".csv":
		loader = documentloaders.NewCSV(bytes.NewReader(content))
	default:
		loader = documentloaders.NewText(bytes.NewReader(content))
	}
	loaded, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", abs, err)
	}

	meta := map[string]string{MetaPath: abs}
	if lang := enry.GetLanguage(name, content); lang != "" {
		meta[MetaLanguage] = lang
	}
	return fromSchema(loaded, "file://"+filepath.ToSlash(abs), name, meta), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// CountFiles returns the number of distinct files docs were read from.
func CountFiles(docs []core.Document) int {
	seen := make(map[string]struct{})
	for _, d := range docs {
		if p := d.Metadata[MetaPath]; p != "" {
			seen[p] = struct{}{}
		}
	}
	return len(seen)
}
