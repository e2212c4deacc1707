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

package core

import (
	"os"
)

// Artifact holds the information required to extract a step's report
// directory from a container onto the host. Uploading it anywhere beyond
// that conventional directory is out of scope.
type Artifact struct {
	ContainerID string
	GuestPath   string
	HostTarPath string
	HostPath    string
	RunID       string
	RunStepID   string
}

// Cleanup removes the collected files from the host.
func (art *Artifact) Cleanup() error {
	return os.Remove(art.HostPath)
}

// URL reports where the artifact can be found. Uploading artifacts to
// external storage is out of scope, so this is just the host path they
// were collected to.
func (art *Artifact) URL() string {
	return art.HostPath
}
