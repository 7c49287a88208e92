package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/muurk/drilink/internal/version.Version=v0.3.0 \
//	                   -X github.com/muurk/drilink/internal/version.Commit=abc123"
//
// Unset values are taken from the VCS stamp of the build, then fall back to
// a dev version.
var (
	// Version is the semantic version of the application
	Version = ""
	// Commit is the git commit hash
	Commit = ""
)

// driLevels is the range of DRI revisions the protocol package decodes
const driLevels = "'95-'09"

func init() {
	if Version == "" || Commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			v, c := fromSettings(info.Settings)
			if Version == "" {
				Version = v
			}
			if Commit == "" {
				Commit = c
			}
		}
	}

	if Version == "" {
		Version = "dev-" + time.Now().Format("20060102-150405")
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// fromSettings derives a version and short commit from the vcs.* build
// settings. Tags are not recorded there, so the version is dev-<commit date>.
func fromSettings(settings []debug.BuildSetting) (version, commit string) {
	vcs := make(map[string]string, len(settings))
	for _, s := range settings {
		vcs[s.Key] = s.Value
	}

	if rev := vcs["vcs.revision"]; rev != "" {
		if len(rev) > 7 {
			rev = rev[:7]
		}
		commit = rev
		if vcs["vcs.modified"] == "true" {
			commit += "-dirty"
		}
	}

	if t, err := time.Parse(time.RFC3339, vcs["vcs.time"]); err == nil {
		version = "dev-" + t.UTC().Format("20060102")
	}
	return version, commit
}

// Full returns the full version string including commit
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// Banner returns the line printed by the version commands
func Banner(program string) string {
	return fmt.Sprintf("%s %s %s/%s, DRI levels %s", program, Full(), runtime.GOOS, runtime.GOARCH, driLevels)
}
