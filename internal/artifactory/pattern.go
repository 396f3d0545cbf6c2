// SPDX-License-Identifier: MPL-2.0

package artifactory

import (
	"strconv"
	"strings"

	"github.com/invowk/parcel/pkg/dependency"
)

// DefaultPattern lays artifacts out as <name>/<version>/<canonical file name>.
const DefaultPattern = "{name}/{major}.{minor}.{patch}/{name}-{major}.{minor}.{patch}-{arch}-{platform}-{dist}.tar.gz"

// FormatPattern substitutes the placeholders {name} {major} {minor} {patch}
// {arch} {platform} {dist} and {repo} in pattern. Unknown placeholders are kept.
func FormatPattern(pattern, repo string, dep dependency.Dependency) string {
	v := dep.Version.Min
	r := strings.NewReplacer(
		"{name}", dep.Name,
		"{major}", strconv.Itoa(int(v.Major)),
		"{minor}", strconv.Itoa(int(v.Minor)),
		"{patch}", strconv.Itoa(int(v.Patch)),
		"{arch}", string(dep.Arch),
		"{platform}", string(dep.OS),
		"{dist}", string(dep.Distribution),
		"{repo}", repo,
	)
	return r.Replace(pattern)
}
