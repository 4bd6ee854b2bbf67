// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"slices"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
)

type Id int

const (
	InputDirNotFoundId Id = iota + 1
	OutputDirUncreatableId
	StubNotFoundId
	ArchiveReadOnlyId
	UnsupportedSignatureId
	PrivateKeyUnreadableId
	RuntimeDownloadFailedId
	ConfigLoadFailedId
	IniFileNotFoundId
	ServerNotConfiguredId
	PermissionDeniedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	kind     Kind        // error kind this issue explains
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) Kind() Kind {
	return i.kind
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.extLinks) > 0 {
		extraMd += "\n\n## See also\n"
		for _, link := range i.extLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	inputDirNotFoundIssue = &Issue{
		id:   InputDirNotFoundId,
		kind: KindConfiguration,
		mdMsg: `
# Input directory not found!

The build needs a source tree to package, and the configured directory
does not exist or is not a directory. Nothing was written.

## Things you can try:
- Point the build at your project root:
~~~cue
build: {
  input_dir: "."
}
~~~

- Or override it for a single run:
~~~
$ SFXPACK_BUILD_INPUT_DIR=/path/to/project sfxpack build:archive
~~~`,
	}

	outputDirUncreatableIssue = &Issue{
		id:   OutputDirUncreatableId,
		kind: KindIO,
		mdMsg: `
# Cannot create the output directory!

The artifacts are written to ` + "`build.output_dir`" + `, which could not be created.

## Things you can try:
- Check the permissions of the parent directory
- Make sure no regular file exists with the same name
- Choose a directory you own:
~~~cue
build: {
  output_dir: "build"
}
~~~`,
	}

	stubNotFoundIssue = &Issue{
		id:   StubNotFoundId,
		kind: KindConfiguration,
		mdMsg: `
# Entry script not found!

The archive stub executes ` + "`build.stub`" + ` from inside the archive, but that file
is not present in the input directory.

## Things you can try:
- Create the entry script, or point ` + "`build.stub`" + ` at an existing one
- Build a library-only archive by clearing the entry script:
~~~cue
build: {
  stub: ""
}
~~~`,
	}

	archiveReadOnlyIssue = &Issue{
		id:   ArchiveReadOnlyId,
		kind: KindEnvironment,
		mdMsg: `
# Archive creation is disabled!

Read-only archive mode is enabled, so no archive can be written.

## Things you can try:
- Disable it in your configuration:
~~~cue
build: {
  readonly: false
}
~~~

- Or re-run with the override flag:
~~~
$ sfxpack build:archive --allow-write
~~~`,
	}

	unsupportedSignatureIssue = &Issue{
		id:   UnsupportedSignatureId,
		kind: KindSignature,
		mdMsg: `
# Unsupported signature algorithm!

` + "`build.signature_algorithm`" + ` must be one of:

| value | signature |
|---|---|
| md5 | MD5 digest |
| sha1 | SHA-1 digest |
| sha256 | SHA-256 digest (default) |
| sha512 | SHA-512 digest |
| openssl | private key signature (requires ` + "`build.private_key_file`" + `) |`,
	}

	privateKeyUnreadableIssue = &Issue{
		id:   PrivateKeyUnreadableId,
		kind: KindSignature,
		mdMsg: `
# Private key cannot be used!

The ` + "`openssl`" + ` signature algorithm needs a readable, unencrypted private key.
Supported encodings are PEM (PKCS#1, PKCS#8, SEC1) and OpenSSH.

## Things you can try:
- Generate a key:
~~~
$ openssl genpkey -algorithm RSA -out release.pem
~~~

- Point the build at it:
~~~cue
build: {
  signature_algorithm: "openssl"
  private_key_file:    "release.pem"
}
~~~`,
	}

	runtimeDownloadFailedIssue = &Issue{
		id:   RuntimeDownloadFailedId,
		kind: KindNetwork,
		mdMsg: `
# Runtime image download failed!

The runtime image could not be fetched. Partially downloaded files were
removed, so the next run starts from scratch.

## Things you can try:
- Check your network connection and proxy settings
- Verify that the requested version exists on the mirror
- Use another mirror:
~~~cue
runtime: {
  image_base_url: "https://mirror.example.com/php"
}
~~~

- Or place the image in the output directory yourself; cached images are
  never downloaded again.`,
	}

	configLoadFailedIssue = &Issue{
		id:   ConfigLoadFailedId,
		kind: KindConfiguration,
		mdMsg: `
# Failed to load configuration!

The configuration file could not be parsed or does not match the schema.

## Things you can try:
- Print the effective defaults:
~~~
$ sfxpack config show
~~~

- Validate the file against the expected fields listed there
- Run with ` + "`--verbose`" + ` to see the full error chain`,
	}

	iniFileNotFoundIssue = &Issue{
		id:   IniFileNotFoundId,
		kind: KindConfiguration,
		mdMsg: `
# Runtime configuration file not found!

No php.ini could be located for the host interpreter.

## Things you can try:
- Pass it explicitly:
~~~
$ sfxpack fix-disable-functions --ini /etc/php/8.2/cli/php.ini
~~~

- Or configure ` + "`runtime.ini_file`",
		extLinks: []HttpLink{"https://www.php.net/manual/en/ini.core.php#ini.disable-functions"},
	}

	serverNotConfiguredIssue = &Issue{
		id:   ServerNotConfiguredId,
		kind: KindConfiguration,
		mdMsg: `
# No server to control!

` + "`restart`" + ` and ` + "`status`" + ` delegate to the host application's server, and
none is configured.

## Things you can try:
~~~cue
server: {
  restart:  "php start.php restart -d"
  status:   "php start.php status"
  pid_file: "runtime/server.pid"
}
~~~`,
	}

	permissionDeniedIssue = &Issue{
		id:   PermissionDeniedId,
		kind: KindIO,
		mdMsg: `
# Permission denied!

You don't have permission to write one of the artifacts.

## Things you can try:
- Check file and directory permissions of the output directory
- Remove stale artifacts owned by another user
- Run the build from a directory you own`,
	}

	issues = map[Id]*Issue{
		inputDirNotFoundIssue.Id():      inputDirNotFoundIssue,
		outputDirUncreatableIssue.Id():  outputDirUncreatableIssue,
		stubNotFoundIssue.Id():          stubNotFoundIssue,
		archiveReadOnlyIssue.Id():       archiveReadOnlyIssue,
		unsupportedSignatureIssue.Id():  unsupportedSignatureIssue,
		privateKeyUnreadableIssue.Id():  privateKeyUnreadableIssue,
		runtimeDownloadFailedIssue.Id(): runtimeDownloadFailedIssue,
		configLoadFailedIssue.Id():      configLoadFailedIssue,
		iniFileNotFoundIssue.Id():       iniFileNotFoundIssue,
		serverNotConfiguredIssue.Id():   serverNotConfiguredIssue,
		permissionDeniedIssue.Id():      permissionDeniedIssue,
	}
)

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	ids := maps.Keys(issues)
	slices.Sort(ids)
	out := make([]*Issue, 0, len(ids))
	for _, id := range ids {
		out = append(out, issues[id])
	}
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}

// ForKind returns the first catalog entry that explains errors of kind k.
func ForKind(k Kind) *Issue {
	for _, i := range Values() {
		if i.kind == k {
			return i
		}
	}
	return nil
}
