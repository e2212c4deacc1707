//   Copyright 2016 Wercker Holding BV
//
//   Licensed under the Apache License, Version 2.0 (the "License");
//   you may not use this file except in compliance with the License.
//   You may obtain a copy of the License at
//
//       http://www.apache.org/licenses/LICENSE-2.0
//
//   Unless required by applicable law or agreed to in writing, software
//   distributed under the License is distributed on an "AS IS" BASIS,
//   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//   See the License for the specific language governing permissions and
//   limitations under the License.

package util

import (
	"fmt"
	"strconv"
	"time"
)

// These are stamped by the build process via -ldflags; the defaults mark a
// development build.
var (
	// GitCommit is the git commit hash associated with this build.
	GitCommit = ""

	// MajorVersion is the semver major version.
	MajorVersion = "1"

	// MinorVersion is the semver minor version.
	MinorVersion = "0"

	// PatchVersion is the semver patch version.
	PatchVersion = "0"

	// Compiled is the unix timestamp when this binary got compiled.
	Compiled = ""
)

func init() {
	if Compiled == "" {
		Compiled = strconv.FormatInt(time.Now().Unix(), 10)
	}
}

// Version returns a semver compatible version for this build.
func Version() string {
	return fmt.Sprintf("%s.%s.%s", MajorVersion, MinorVersion, PatchVersion)
}

// CompiledAt converts the Compiled unix timestamp to a UTC time.Time.
func CompiledAt() time.Time {
	i, err := strconv.ParseInt(Compiled, 10, 64)
	if err != nil {
		panic(err)
	}
	return time.Unix(i, 0).UTC()
}

// FullVersion returns the semver version plus compile time and git commit
// when available.
func FullVersion() string {
	gitCommit := ""
	if GitCommit != "" {
		gitCommit = fmt.Sprintf(", Git commit: %s", GitCommit)
	}
	return fmt.Sprintf("%s (Compiled at: %s%s)", Version(), CompiledAt().Format(time.RFC3339), gitCommit)
}

// Versions is a JSON-friendly bundle of the version values.
type Versions struct {
	CompiledAt time.Time `json:"compiledAt,omitempty"`
	GitCommit  string    `json:"gitCommit,omitempty"`
	Version    string    `json:"version,omitempty"`
}

// GetVersions returns a Versions filled with the current values.
func GetVersions() *Versions {
	return &Versions{
		CompiledAt: CompiledAt(),
		GitCommit:  GitCommit,
		Version:    Version(),
	}
}
