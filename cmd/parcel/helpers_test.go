// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/invowk/parcel/pkg/archive"
	"github.com/invowk/parcel/pkg/dependency"
	"github.com/invowk/parcel/pkg/version"
)

// testEnv is an isolated set of parcel directories plus a config file
// pointing at them.
type testEnv struct {
	cacheDir   string
	indexDir   string
	configPath string
}

func newTestEnv(t *testing.T, extra string) testEnv {
	t.Helper()
	base := t.TempDir()
	env := testEnv{
		cacheDir:   filepath.Join(base, "cache"),
		indexDir:   filepath.Join(base, "index"),
		configPath: filepath.Join(base, "config.cue"),
	}
	var b strings.Builder
	b.WriteString("cache_dir: " + quote(env.cacheDir) + "\n")
	b.WriteString("index_dir: " + quote(env.indexDir) + "\n")
	b.WriteString(extra)
	writeFile(t, env.configPath, b.String())
	return env
}

// run executes the parcel command tree with args and captures its output.
func (e testEnv) run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := NewApp(Dependencies{Stdout: &out, Stderr: &errOut})
	root := NewRootCommand(app)
	root.SetArgs(append([]string{"--config", e.configPath}, args...))
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(filepath.ToSlash(s), `"`, `\"`) + `"`
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func hostBinary(name, v string, dist dependency.Distribution) dependency.Dependency {
	return dependency.New(name, version.Exact(version.MustParse(v)), dependency.HostArch(), dependency.HostOS(), dist)
}

// packageTree writes a minimal package with a manifest and one header.
func packageTree(t *testing.T, name, v string) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "parcel.toml"), "[this]\nname = \""+name+"\"\nversion = \"="+v+"\"\n")
	writeFile(t, filepath.Join(dir, "include", name+".h"), "#pragma once\n")
	return dir
}

// seedCache packs a binary package straight into cacheDir.
func seedCache(t *testing.T, cacheDir string, dep dependency.Dependency) {
	t.Helper()
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := archive.PackForCache(packageTree(t, dep.Name, dep.Version.Min.String()), cacheDir, dep); err != nil {
		t.Fatal(err)
	}
}
