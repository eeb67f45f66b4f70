package paxlock

import (
	"fmt"
	"os"
	"runtime/debug"
)

// set with -ldflags "-X github.com/glycerine/paxlock.LAST_GIT_COMMIT_HASH=..."
// when building a release. Left empty, GetCodeVersion falls back
// to the vcs stamp the go tool embeds.
var LAST_GIT_COMMIT_HASH string
var NEAREST_GIT_TAG string

// GetCodeVersion describes the running binary in one line.
func GetCodeVersion(programName string) string {
	commit := LAST_GIT_COMMIT_HASH
	goVersion := ""
	modified := ""
	if bi, ok := debug.ReadBuildInfo(); ok {
		goVersion = bi.GoVersion
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.modified":
				if s.Value == "true" {
					modified = " (modified)"
				}
			}
		}
	}
	return fmt.Sprintf("%s commit: %s%s / nearest-git-tag: %s / go version: %s\n",
		programName, commit, modified, NEAREST_GIT_TAG, goVersion)
}

// Exit1IfVersionReq prints the version and exits if
// -version or --version is on the command line. Call it
// before flag.Parse so the flag need not be declared.
func Exit1IfVersionReq() {
	for _, a := range os.Args {
		if a == "-version" || a == "--version" {
			fmt.Fprintf(os.Stderr, "%s", GetCodeVersion(os.Args[0]))
			os.Exit(1)
		}
	}
}
