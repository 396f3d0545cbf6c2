// SPDX-License-Identifier: MPL-2.0

package dependency

import (
	"errors"
	"testing"

	"github.com/invowk/parcel/pkg/version"
)

func TestFromPackageName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Dependency
		wantErr bool
	}{
		{
			name:  "fmt_windows_static",
			input: "fmt-1.1.3-x86_64-windows-static.tar.gz",
			want:  Dependency{Name: "fmt", Version: version.Exact(version.New(1, 1, 3)), Arch: ArchX86_64, OS: OSWindows, Distribution: DistributionStatic},
		},
		{
			name:  "hyphenated_name",
			input: "open-ssl-3.0.12-aarch64-linux-shared.tar.gz",
			want:  Dependency{Name: "open-ssl", Version: version.Exact(version.New(3, 0, 12)), Arch: ArchAarch64, OS: OSLinux, Distribution: DistributionShared},
		},
		{
			name:  "sources",
			input: "spdlog-1.0.0-unknown-unknown-sources.tar.gz",
			want:  Dependency{Name: "spdlog", Version: version.Exact(version.New(1, 0, 0)), Arch: ArchUnknown, OS: OSUnknown, Distribution: DistributionSources},
		},
		{
			name:  "with_directory",
			input: "/var/cache/parcel/zlib-1.3.0-armv7-android-static.tar.gz",
			want:  Dependency{Name: "zlib", Version: version.Exact(version.New(1, 3, 0)), Arch: ArchArmV7, OS: OSAndroid, Distribution: DistributionStatic},
		},
		{name: "missing_ext", input: "fmt-1.1.3-x86_64-windows-static", wantErr: true},
		{name: "zip_ext", input: "fmt-1.1.3-x86_64-windows-static.zip", wantErr: true},
		{name: "short_version", input: "fmt-1.1-x86_64-windows-static.tar.gz", wantErr: true},
		{name: "alias_arch", input: "fmt-1.1.3-amd64-windows-static.tar.gz", wantErr: true},
		{name: "alias_os", input: "fmt-1.1.3-x86_64-darwin-static.tar.gz", wantErr: true},
		{name: "alias_dist", input: "fmt-1.1.3-x86_64-linux-dyn.tar.gz", wantErr: true},
		{name: "platform_sources", input: "fmt-1.1.3-x86_64-linux-sources.tar.gz", wantErr: true},
		{name: "version_overflow", input: "fmt-70000.0.0-x86_64-linux-static.tar.gz", wantErr: true},
		{name: "packed_sources", input: "fmt-1.1.3-packed-sources.tar.gz", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := FromPackageName(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("FromPackageName(%q) = %v, want error", tt.input, got)
				}
				if !errors.Is(err, ErrInvalidPackageName) {
					t.Errorf("error should wrap ErrInvalidPackageName, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromPackageName(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("FromPackageName(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFileName_RoundTrip(t *testing.T) {
	t.Parallel()

	names := []string{"fmt", "open-ssl", "lib_z", "boost.asio"}
	versions := []version.Version{version.Lowest(), version.New(1, 1, 3), version.New(65535, 0, 7)}
	arches := []Arch{ArchX86_64, ArchAarch64, ArchArm, ArchArmV5TE, ArchArmV7, ArchArmV7A, ArchArmV7R, ArchArmV8, ArchLoongarch64, ArchUnknown}
	oses := []OS{OSLinux, OSWindows, OSMacOS, OSAndroid, OSUnknown}
	dists := []Distribution{DistributionStatic, DistributionShared, DistributionUnknown}

	for _, name := range names {
		for _, v := range versions {
			for _, arch := range arches {
				for _, os := range oses {
					for _, dist := range dists {
						d := New(name, version.Exact(v), arch, os, dist)
						assertRoundTrip(t, d)
					}
				}
			}
			assertRoundTrip(t, New(name, version.Exact(v), ArchX86_64, OSLinux, DistributionSources))
		}
	}
}

func assertRoundTrip(t *testing.T, d Dependency) {
	t.Helper()

	fileName := d.FileName()
	decoded, err := FromPackageName(fileName)
	if err != nil {
		t.Fatalf("FromPackageName(%q) error: %v", fileName, err)
	}
	if decoded != d {
		t.Errorf("FromPackageName(%q) = %+v, want %+v", fileName, decoded, d)
	}
	if again := decoded.FileName(); again != fileName {
		t.Errorf("FileName() = %q after decoding %q", again, fileName)
	}
}

func TestNew_SourcesClearsPlatform(t *testing.T) {
	t.Parallel()

	d := New("fmt", version.Any(), ArchX86_64, OSLinux, DistributionSources)
	if d.Arch != ArchUnknown || d.OS != OSUnknown {
		t.Errorf("New(sources) = %+v, want unknown arch and os", d)
	}
}

func TestRangedCompare(t *testing.T) {
	t.Parallel()

	query := New("fmt", version.MustParseRange("^1.0.0"), ArchX86_64, OSLinux, DistributionShared)
	sourcesQuery := query.AsSources()

	candidates := []Dependency{
		New("fmt", version.Exact(version.New(1, 0, 0)), ArchX86_64, OSLinux, DistributionShared),
		New("fmt", version.Exact(version.New(0, 9, 0)), ArchX86_64, OSLinux, DistributionShared),
		New("fmt", version.Exact(version.New(2, 3, 4)), ArchAarch64, OSLinux, DistributionShared),
		New("fmt", version.Exact(version.New(2, 3, 4)), ArchX86_64, OSWindows, DistributionStatic),
		New("fmt", version.Exact(version.New(1, 5, 0)), ArchUnknown, OSUnknown, DistributionSources),
		New("spdlog", version.Exact(version.New(1, 5, 0)), ArchX86_64, OSLinux, DistributionShared),
	}

	for _, q := range []Dependency{query, sourcesQuery, New("fmt", version.MustParseRange("<1.0.0"), ArchX86_64, OSLinux, DistributionShared)} {
		for _, d := range candidates {
			platformOK := q.IsSources() || (d.Arch == q.Arch && d.OS == q.OS)
			want := d.Name == q.Name && platformOK && q.Version.Contains(d.Version.Min)
			if got := d.RangedCompare(q); got != want {
				t.Errorf("%s.RangedCompare(%s) = %v, want %v", d, q, got, want)
			}
		}
	}
}

func TestSatisfies(t *testing.T) {
	t.Parallel()

	query := New("fmt", version.Any(), ArchX86_64, OSLinux, DistributionShared)
	shared := New("fmt", version.Exact(version.New(1, 0, 0)), ArchX86_64, OSLinux, DistributionShared)
	static := New("fmt", version.Exact(version.New(1, 0, 0)), ArchX86_64, OSLinux, DistributionStatic)
	sources := New("fmt", version.Exact(version.New(1, 0, 0)), ArchX86_64, OSLinux, DistributionSources)

	if !shared.Satisfies(query) {
		t.Error("shared artifact should satisfy shared query")
	}
	if static.Satisfies(query) {
		t.Error("static artifact should not satisfy shared query")
	}
	if sources.Satisfies(query) {
		t.Error("sources artifact should not satisfy binary query")
	}
	if !sources.Satisfies(query.AsSources()) {
		t.Error("sources artifact should satisfy relaxed query")
	}
	if shared.Satisfies(query.AsSources()) {
		t.Error("binary artifact should not satisfy sources query")
	}
}

func TestWithVersionFromFileName(t *testing.T) {
	t.Parallel()

	query := New("fmt", version.MustParseRange("^1.0.0"), ArchX86_64, OSLinux, DistributionShared)
	got, err := query.WithVersionFromFileName("/cache/fmt-1.4.2-unknown-unknown-sources.tar.gz")
	if err != nil {
		t.Fatalf("WithVersionFromFileName() error: %v", err)
	}
	if !got.Version.IsExact() || got.Version.Min != version.New(1, 4, 2) {
		t.Errorf("version = %s, want =1.4.2", got.Version)
	}
	if got.Distribution != DistributionShared || got.Arch != ArchX86_64 {
		t.Errorf("WithVersionFromFileName() changed identity: %+v", got)
	}

	if _, err := query.WithVersionFromFileName("garbage.tar.gz"); !errors.Is(err, ErrInvalidPackageName) {
		t.Errorf("error = %v, want ErrInvalidPackageName", err)
	}
}

func TestDependency_String(t *testing.T) {
	t.Parallel()

	d := New("fmt", version.MustParseRange("=1.0.0"), ArchX86_64, OSLinux, DistributionStatic)
	if got, want := d.String(), "fmt@=1.0.0/static/x86_64/linux"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
