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


package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/gleaner"
	"github.com/poiesic/gleaner/ai/mock"
	"github.com/poiesic/gleaner/config"
	"github.com/poiesic/gleaner/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// useMockProvider makes commands build services on the mock AI provider.
func useMockProvider(t *testing.T) {
	t.Helper()
	prev := openService
	openService = func(ctx context.Context, cfg *config.Config) (*gleaner.Service, error) {
		return gleaner.New(ctx, cfg, gleaner.WithProvider(mock.NewMockProvider()))
	}
	t.Cleanup(func() { openService = prev })
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	err := app.Run(append([]string{"gleaner", "--env-file", "", "--log-level", "error"}, args...))
	return out.String(), err
}

func TestSetupLogger(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		testCases := []struct {
			input    string
			expected slog.Level
		}{
			{"debug", slog.LevelDebug},
			{"info", slog.LevelInfo},
			{"warn", slog.LevelWarn},
			{"error", slog.LevelError},
			{"WaRn", slog.LevelWarn},
		}

		for _, tc := range testCases {
			t.Run(tc.input, func(t *testing.T) {
				app := &cli.App{
					Name: "test",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "log-level", Value: "info"},
						&cli.StringFlag{Name: "log-format", Value: "text"},
					},
					Before: setupLogger,
					Action: func(c *cli.Context) error {
						assert.True(t, slog.Default().Enabled(context.Background(), tc.expected))
						if tc.expected > slog.LevelDebug {
							assert.False(t, slog.Default().Enabled(context.Background(), tc.expected-1))
						}
						return nil
					},
				}

				err := app.Run([]string{"test", "--log-level", tc.input})
				require.NoError(t, err)
			})
		}
	})

	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		app := &cli.App{
			Name:      "test",
			ErrWriter: &buf,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "log-level", Value: "info"},
				&cli.StringFlag{Name: "log-format", Value: "text"},
			},
			Before: setupLogger,
			Action: func(c *cli.Context) error {
				slog.Info("hello", "job", "j1")
				return nil
			},
		}

		require.NoError(t, app.Run([]string{"test", "--log-format", "json"}))
		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "hello", line["msg"])
		assert.Equal(t, "j1", line["job"])
	})

	t.Run("invalid values return errors", func(t *testing.T) {
		app := &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "log-level", Value: "info"},
				&cli.StringFlag{Name: "log-format", Value: "text"},
			},
			Before: setupLogger,
			Action: func(c *cli.Context) error { return nil },
		}

		err := app.Run([]string{"test", "--log-level", "invalid"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")

		err = app.Run([]string{"test", "--log-format", "xml"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log format")
	})
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	dir := t.TempDir()
	app := newApp()
	app.Commands = []*cli.Command{
		{
			Name:  "probe",
			Flags: []cli.Flag{&cli.StringFlag{Name: "addr"}},
			Action: func(c *cli.Context) error {
				cfg, err := loadConfig(c)
				require.NoError(t, err)
				assert.Equal(t, dir, cfg.DataDir)
				assert.Equal(t, config.JobStoreBadger, cfg.Jobs.Store)
				assert.Equal(t, 2, cfg.Jobs.Workers)
				assert.Equal(t, ":9999", cfg.Server.Addr)
				return nil
			},
		},
	}

	err := app.Run([]string{"gleaner", "--env-file", "", "--data-dir", dir, "--job-store", "badger", "--workers", "2", "probe", "--addr", ":9999"})
	require.NoError(t, err)

	_, err = runApp(t, "--workers", "0", "jobs", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers must be positive")
}

func TestCommands_LocalUploadLifecycle(t *testing.T) {
	useMockProvider(t)
	dataDir := t.TempDir()
	file := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(file, []byte("# Notes\nBadger keeps the vectors on disk."), 0o644))

	base := []string{"--data-dir", dataDir, "--job-store", "badger"}
	cmd := func(args ...string) (string, error) {
		return runApp(t, append(append([]string{}, base...), args...)...)
	}

	out, err := cmd("run", "--kind", "local-upload", "--quiet", file)
	require.NoError(t, err)
	var result core.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "local_files", result.CollectionName)
	assert.Equal(t, 1, result.FilesProcessed)

	out, err = cmd("jobs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "local-upload")
	assert.Contains(t, out, "completed")

	out, err = cmd("collections", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "local_files")

	out, err = cmd("collections", "stats", "local_files")
	require.NoError(t, err)
	assert.Contains(t, out, `"totalCount": 1`)

	out, err = cmd("search", "--collection", "local_files", "where", "are", "vectors", "kept")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 1 hits")
	assert.Contains(t, out, "Badger keeps the vectors on disk.")

	out, err = cmd("collections", "delete", "local_files")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted local_files")

	_, err = cmd("collections", "stats", "local_files")
	assert.Error(t, err)
}

func TestRunCommand_Errors(t *testing.T) {
	useMockProvider(t)
	base := []string{"--data-dir", t.TempDir()}

	t.Run("unknown kind", func(t *testing.T) {
		_, err := runApp(t, append(base, "run", "--kind", "weather", "today")...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown job kind")
	})

	t.Run("empty prompt", func(t *testing.T) {
		_, err := runApp(t, append(base, "run")...)
		var ve *core.ValidationError
		assert.ErrorAs(t, err, &ve)
	})

	t.Run("failed job", func(t *testing.T) {
		_, err := runApp(t, append(base, "run", "--quiet", "something", "vague")...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), string(core.KindUnresolvable))
	})

	t.Run("search requires collection", func(t *testing.T) {
		_, err := runApp(t, append(base, "search", "query")...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "collection")
	})
}
