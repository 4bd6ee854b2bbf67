// SPDX-License-Identifier: MPL-2.0

package builder

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dlclark/regexp2"
)

// DefaultIncludePattern keeps every file outside tooling, VCS and build
// directories. Paths are matched with a leading slash.
const DefaultIncludePattern = `^(?!.*(composer.json|/.github/|/.idea/|/.git/|/.setting/|/runtime/|/vendor-bin/|/build/))(.*)$`

// scaffoldingCommands are framework console commands that only make sense in
// a development checkout.
var scaffoldingCommands = []string{
	"AppCreateCommand.php",
	"BuildBinCommand.php",
	"BuildPharCommand.php",
	"DisableCommand.php",
	"EnableCommand.php",
	"InstallCommand.php",
	"MakeBootstrapCommand.php",
	"MakeCommandCommand.php",
	"MakeControllerCommand.php",
	"MakeMiddlewareCommand.php",
	"MakeModelCommand.php",
	"PluginCreateCommand.php",
	"PluginDisableCommand.php",
	"PluginEnableCommand.php",
	"PluginExportCommand.php",
	"PluginInstallCommand.php",
	"PluginUninstallCommand.php",
	"PluginUpdateCommand.php",
	"UpdateCommand.php",
}

// Matcher decides which collected files enter the archive.
type Matcher struct {
	re *regexp2.Regexp
}

// NewMatcher compiles an inclusion pattern. Perl-style delimiters with
// trailing flags ("#...#i") are accepted. An empty pattern selects
// DefaultIncludePattern.
func NewMatcher(pattern string) (*Matcher, error) {
	if pattern == "" {
		pattern = DefaultIncludePattern
	}
	expr, opts := stripDelimiters(pattern)
	re, err := regexp2.Compile(expr, opts)
	if err != nil {
		return nil, fmt.Errorf("compiling exclude_pattern %q: %w", pattern, err)
	}
	return &Matcher{re: re}, nil
}

// Include reports whether the slash-separated relative path rel is kept.
func (m *Matcher) Include(rel string) (bool, error) {
	return m.re.MatchString("/" + strings.TrimPrefix(rel, "/"))
}

// stripDelimiters removes Perl-style delimiters and maps their flags.
func stripDelimiters(p string) (string, regexp2.RegexOptions) {
	if len(p) < 2 {
		return p, regexp2.None
	}
	d := p[0]
	if isAlnum(d) || d == '\\' || d == '^' || d == '(' || d == '[' || d == '.' {
		return p, regexp2.None
	}
	end := strings.LastIndexByte(p, d)
	if end <= 0 {
		return p, regexp2.None
	}
	var opts regexp2.RegexOptions
	for _, f := range p[end+1:] {
		switch f {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'x':
			opts |= regexp2.IgnorePatternWhitespace
		case 'u':
			// input is already UTF-8
		default:
			return p, regexp2.None
		}
	}
	return p[1:end], opts
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// SelfExclusions lists archive paths of the framework's scaffolding commands.
// They live under vendor/<framework> unless the project is the framework.
func SelfExclusions(inputDir, frameworkPackage string) []string {
	prefix := "src/Console/Commands/"
	if frameworkPackage != "" {
		vendored := path.Join("vendor", frameworkPackage)
		if info, err := os.Stat(filepath.Join(inputDir, filepath.FromSlash(vendored))); err == nil && info.IsDir() {
			prefix = vendored + "/" + prefix
		}
	}
	out := make([]string, 0, len(scaffoldingCommands))
	for _, name := range scaffoldingCommands {
		out = append(out, prefix+name)
	}
	return out
}
