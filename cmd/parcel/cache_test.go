// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/invowk/parcel/internal/config"
	"github.com/invowk/parcel/pkg/dependency"
)

func TestCacheList(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	stdout, _, err := env.run(t, "cache", "list")
	if err != nil || !strings.Contains(stdout, "Cache is empty") {
		t.Fatalf("cache list on empty cache = %q, %v", stdout, err)
	}

	seedCache(t, env.cacheDir, hostBinary("zlib", "1.3.0", dependency.DistributionStatic))
	seedCache(t, env.cacheDir, hostBinary("fmt", "10.2.1", dependency.DistributionShared))
	writeFile(t, filepath.Join(env.cacheDir, "notes.txt"), "ignored")

	stdout, _, err = env.run(t, "cache", "list")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 3 {
		t.Fatalf("cache list printed %d lines, want header and 2 rows:\n%s", len(lines), stdout)
	}
	if !strings.HasPrefix(lines[1], "fmt ") || !strings.HasPrefix(lines[2], "zlib ") {
		t.Errorf("rows not sorted by file name:\n%s", stdout)
	}
	if !strings.Contains(lines[2], "1.3.0") || !strings.Contains(lines[2], "static") {
		t.Errorf("zlib row = %q", lines[2])
	}
}

func TestCacheSize(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	seedCache(t, env.cacheDir, hostBinary("zlib", "1.3.0", dependency.DistributionStatic))

	stdout, _, err := env.run(t, "cache", "size")
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasPrefix(stdout, "0 B") || !strings.Contains(stdout, env.cacheDir) {
		t.Errorf("cache size output = %q", stdout)
	}
}

func TestWriteTable(t *testing.T) {
	t.Parallel()

	var b bytes.Buffer
	writeTable(&b, []string{"A", "LONG"}, [][]string{{"wide cell", "x"}, {"y", "z"}})
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines", len(lines))
	}
	if lines[1] != "wide cell  x" || lines[2] != "y          z" {
		t.Errorf("misaligned rows: %q", lines[1:])
	}
}

func TestPurge(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	seedCache(t, env.cacheDir, hostBinary("zlib", "1.3.0", dependency.DistributionStatic))

	if _, _, err := env.run(t, "purge"); err == nil {
		t.Error("purge without flags should fail")
	}

	stdout, stderr, err := env.run(t, "purge", "--cache", "--index")
	if err != nil {
		t.Fatalf("purge failed: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, "cache") || !strings.Contains(stdout, "index") {
		t.Errorf("unexpected output: %s", stdout)
	}
	entries, err := os.ReadDir(env.cacheDir)
	if err != nil || len(entries) != 0 {
		t.Errorf("cache not emptied: %v, %v", entries, err)
	}
	if _, err := os.Stat(env.configPath); err != nil {
		t.Errorf("config must survive a cache purge: %v", err)
	}
}

func TestPurge_Configuration(t *testing.T) {
	// Not parallel: --config-dir sets the process-wide override.
	t.Cleanup(config.Reset)

	base := t.TempDir()
	dir := filepath.Join(base, "conf")
	writeFile(t, filepath.Join(dir, config.ConfigFileName+"."+config.ConfigFileExt),
		"cache_dir: "+quote(filepath.Join(base, "cache"))+"\n"+
			"index_dir: "+quote(filepath.Join(base, "index"))+"\n")

	var out, errOut bytes.Buffer
	root := NewRootCommand(NewApp(Dependencies{Stdout: &out, Stderr: &errOut}))
	root.SetArgs([]string{"--config-dir", dir, "purge", "--configuration"})
	if err := root.Execute(); err != nil {
		t.Fatalf("purge --configuration failed: %v\nstderr: %s", err, errOut.String())
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("config directory still present: %v", err)
	}
	if !strings.Contains(out.String(), "config "+dir) {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestPurge_FlagDoesNotShadowConfigFile(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	cmd := NewRootCommand(NewApp(Dependencies{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}))
	purge, _, err := cmd.Find([]string{"purge"})
	if err != nil {
		t.Fatal(err)
	}
	if f := purge.LocalNonPersistentFlags().Lookup("config"); f != nil {
		t.Errorf("purge defines a local --config flag of type %s", f.Value.Type())
	}

	// The global string flag must still parse after the subcommand name.
	var errOut bytes.Buffer
	root := NewRootCommand(NewApp(Dependencies{Stdout: &bytes.Buffer{}, Stderr: &errOut}))
	root.SetArgs([]string{"purge", "--config", env.configPath, "--index"})
	if err := root.Execute(); err != nil {
		t.Fatalf("purge --config <file> --index failed: %v\nstderr: %s", err, errOut.String())
	}
}
