// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"slices"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
)

type Id int

const (
	DependencyNotFoundId Id = iota + 1
	RegistryUnreachableId
	ChecksumMismatchId
	BuildFailedId
	ManifestNotFoundId
	RecipeNotFoundId
	DependencyCycleId
	ConfigLoadFailedId
	InvalidPackageNameId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
	extLinks []HttpLink // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n## See also\n"
		for _, link := range i.docLinks {
			extraMd += "\n- <" + string(link) + ">"
		}
		for _, link := range i.extLinks {
			extraMd += "\n- <" + string(link) + ">"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	dependencyNotFoundIssue = &Issue{
		id: DependencyNotFoundId,
		mdMsg: `
# Dependency not found!

None of the places parcel looks in had a package matching the requested range,
target architecture and operating system.

## Lookup order
1. Local cache, prebuilt
2. Registries, prebuilt
3. Local cache, sources
4. Registries, sources

## Things you can try
- Refresh the registry index and retry:
~~~
$ parcel sync
$ parcel install
~~~
- Relax the range in ` + "`parcel.toml`" + ` (for example ` + "`fmt = \"^10.0.0\"`" + ` instead of ` + "`\"=10.0.0\"`" + `)
- Check that you are installing for the right target with ` + "`--arch`" + ` and ` + "`--os`",
	}

	registryUnreachableIssue = &Issue{
		id: RegistryUnreachableId,
		mdMsg: `
# Registry unreachable!

parcel could not talk to any of the configured registries.

## Things you can try
- Check your network connection and VPN
- Verify the ` + "`base_url`" + ` of each entry in ` + "`registries`" + `:
~~~
$ parcel config show
~~~
- Use the cached index while offline:
~~~
$ parcel install --lazy
~~~`,
	}

	checksumMismatchIssue = &Issue{
		id: ChecksumMismatchId,
		mdMsg: `
# Checksum mismatch!

The downloaded artifact does not match the MD5 checksum reported by the registry.
The download may be corrupted or the artifact was replaced on the server.

## Things you can try
- Purge the cache and download again:
~~~
$ parcel purge --cache
$ parcel install
~~~
- Ask the package maintainer to republish the artifact
- Set ` + "`checksum_policy: \"lenient\"`" + ` only if you trust the registry`,
	}

	buildFailedIssue = &Issue{
		id: BuildFailedId,
		mdMsg: `
# Build from sources failed!

Only a source package was available, and building it with its recipe failed.

## Things you can try
- Re-run with ` + "`--verbose`" + ` to see the full toolchain output
- Make sure ` + "`cmake`" + ` and a C/C++ compiler are installed and on your PATH
- Check the package's ` + "`.parcel/recipe.yml`" + ` for the distribution you requested`,
	}

	manifestNotFoundIssue = &Issue{
		id: ManifestNotFoundId,
		mdMsg: `
# No parcel.toml found!

Every package needs a manifest at its root.

## Example parcel.toml
~~~toml
[this]
name = "app"
version = "1.0.0"

[needs]
fmt = "^10.0.0@static"
~~~

## Things you can try
- Run parcel from the package root, or pass ` + "`--folder`",
	}

	recipeNotFoundIssue = &Issue{
		id: RecipeNotFoundId,
		mdMsg: `
# No build recipe found!

A source package must ship ` + "`.parcel/recipe.yml`" + ` so parcel knows how to build it.

## Example recipe
~~~yaml
static:
  toolchain:
    cmake:
      definitions:
        BUILD_TESTING: "OFF"
shared:
  toolchain:
    shell:
      - make
      - make install PREFIX=target/export
~~~`,
	}

	dependencyCycleIssue = &Issue{
		id: DependencyCycleId,
		mdMsg: `
# Dependency cycle detected!

A package needs itself through a chain of other packages.

## Things you can try
- Inspect the ` + "`[needs]`" + ` tables along the reported chain
- Break the cycle by moving shared code into a separate package`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

The configuration file could not be read or does not match the expected schema.

## Things you can try
- Recreate the default configuration:
~~~
$ parcel config init
~~~
- Check the file for CUE syntax errors
- Make sure every registry has a ` + "`name`" + `, a ` + "`base_url`" + ` and a ` + "`pattern`",
	}

	invalidPackageNameIssue = &Issue{
		id: InvalidPackageNameId,
		mdMsg: `
# Invalid package file name!

Artifacts must be named ` + "`{name}-{major}.{minor}.{patch}-{arch}-{os}-{distribution}.tar.gz`" + `,
for example ` + "`fmt-10.2.1-x86_64-linux-static.tar.gz`" + `.`,
	}

	issues = map[Id]*Issue{
		dependencyNotFoundIssue.Id():  dependencyNotFoundIssue,
		registryUnreachableIssue.Id(): registryUnreachableIssue,
		checksumMismatchIssue.Id():    checksumMismatchIssue,
		buildFailedIssue.Id():         buildFailedIssue,
		manifestNotFoundIssue.Id():    manifestNotFoundIssue,
		recipeNotFoundIssue.Id():      recipeNotFoundIssue,
		dependencyCycleIssue.Id():     dependencyCycleIssue,
		configLoadFailedIssue.Id():    configLoadFailedIssue,
		invalidPackageNameIssue.Id():  invalidPackageNameIssue,
	}
)

func Values() []*Issue {
	return maps.Values(issues)
}

func Get(id Id) *Issue {
	return issues[id]
}
