package version

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

var (
	// Version is the current version of the application
	// This can be set at build time with -ldflags "-X github.com/pandeptwidyaop/hookrelay/internal/version.Version=v1.0.0"
	Version = "dev"

	// GitCommit is the git commit hash
	GitCommit = "unknown"

	// BuildDate is the build date
	BuildDate = "unknown"
)

// Info represents version information
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// GetVersion returns the current version information
func GetVersion() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}

// String renders the info on one line.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit %s, built %s, %s)", i.Version, i.GitCommit, i.BuildDate, i.GoVersion)
}

// IsNewer reports whether candidate is a newer release than current.
// Development builds never compare as older or newer.
func IsNewer(current, candidate string) bool {
	if current == "dev" || candidate == "dev" {
		return false
	}

	a, okA := parse(current)
	b, okB := parse(candidate)
	if !okA || !okB {
		return false
	}

	for i := range a {
		if b[i] != a[i] {
			return b[i] > a[i]
		}
	}
	return false
}

// parse reads "v1.2.3" (pre-release suffixes ignored) into its numeric parts.
func parse(v string) ([3]int, bool) {
	var out [3]int

	v = strings.TrimPrefix(v, "v")
	if idx := strings.IndexAny(v, "-+"); idx != -1 {
		v = v[:idx]
	}

	parts := strings.Split(v, ".")
	if len(parts) == 0 || len(parts) > 3 {
		return out, false
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return out, false
		}
		out[i] = n
	}
	return out, true
}
