package purged

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionData_Version(t *testing.T) {
	subject := versionData{version: "1.0", isdev: "0"}
	assert.Equal(t, "1.0 (release)", subject.Version())
	assert.False(t, subject.Development())

	subject.isdev = "1"
	assert.Equal(t, "1.0 (development)", subject.Version())
	assert.True(t, subject.Development())
}

func TestVersionData_PrintBanner(t *testing.T) {
	subject := versionData{
		version:  "0.99-42-dirty",
		isdev:    "1",
		commitat: "2022-04-01T12:34:56Z",
		buildat:  "2022-04-02T12:34:56Z",
		commit:   "c0ffee",
	}

	const expected = `
 ___  _ _  ___  ___  ___  ___    purged version 0.99-42-dirty (development)
| . \| | || . \/ . |/ ._>/ . |   commit         c0ffee
|  _/ \__||_|  \_. |\___.\___|   commit date    2022-04-01T12:34:56Z
|_|            <___'             build date     2022-04-02T12:34:56Z

`

	var actual bytes.Buffer
	subject.PrintBanner(&actual)
	assert.Equal(t, expected, actual.String())
}

func TestGlobals(t *testing.T) {
	assert.True(t, Development())
	assert.Equal(t, "development (development)", Version())

	var actual bytes.Buffer
	PrintBanner(&actual)
	assert.Contains(t, actual.String(), "purged version development (development)")
	assert.Contains(t, actual.String(), "commit         HEAD")
}
