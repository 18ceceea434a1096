package purged

import (
	"fmt"
	"io"
)

// Versioning variables. These are set at compile time through -ldflags.
var (
	version  = "development"
	commit   = "HEAD"
	commitat = "unknown"
	buildat  = "unknown"
	isdev    = "1"
)

type versionData struct {
	version, commit, commitat, buildat, isdev string
}

var build = versionData{version, commit, commitat, buildat, isdev}

const banner = `
 ___  _ _  ___  ___  ___  ___    purged version %s
| . \| | || . \/ . |/ ._>/ . |   commit         %s
|  _/ \__||_|  \_. |\___.\___|   commit date    %s
|_|            <___'             build date     %s

`

// Version returns a string describing the version. For release versions
// this will contain the Git tag and commit ID. When used as library (or
// in development), this may return just "development".
func Version() string { return build.Version() }

// Development reports whether this is a development build.
func Development() bool { return build.Development() }

// PrintBanner will write a small ASCII graphic and versioning
// information to w.
func PrintBanner(w io.Writer) { build.PrintBanner(w) }

func (v versionData) Version() string {
	if v.Development() {
		return v.version + " (development)"
	}
	return v.version + " (release)"
}

func (v versionData) Development() bool {
	return v.isdev == "1"
}

func (v versionData) PrintBanner(w io.Writer) {
	fmt.Fprintf(w, banner, v.Version(), v.commit, v.commitat, v.buildat)
}
