//   Copyright © 2016, 2018, Oracle and/or its affiliates.  All rights reserved.
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

package dockerlocal

import (
	"os"
	"path/filepath"

	"github.com/y3-myint-oo/wercker/core"
	"github.com/y3-myint-oo/wercker/util"
	"golang.org/x/net/context"
)

// Set upper limit on what a single report/output directory can weigh in at.
const maxArtifactSize = 5000 * 1024 * 1024 // in bytes

// Artificer pulls a directory out of a container onto the host. Everything
// beyond that -- uploading it anywhere -- is out of scope.
type Artificer struct {
	options       *core.PipelineOptions
	dockerOptions *Options
	logger        *util.LogEntry
}

// NewArtificer returns an Artificer
func NewArtificer(options *core.PipelineOptions, dockerOptions *Options) *Artificer {
	logger := util.RootLogger().WithField("Logger", "Artificer")
	return &Artificer{
		options:       options,
		dockerOptions: dockerOptions,
		logger:        logger,
	}
}

// Collect an artifact from the container, if it doesn't have any files in
// the tarball return util.ErrEmptyTarball
func (a *Artificer) Collect(ctx context.Context, artifact *core.Artifact) (*core.Artifact, error) {
	client, err := NewOfficialDockerClient(a.dockerOptions)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(artifact.HostPath), 0755); err != nil {
		return nil, err
	}

	outputFile, err := os.Create(artifact.HostTarPath)
	if err != nil {
		return nil, err
	}
	defer outputFile.Close()

	dfc := NewDockerFileCollector(client, artifact.ContainerID)
	archive, err := dfc.Collect(ctx, artifact.GuestPath)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	// all reads from the archive are matched with corresponding writes to outputFile
	archive.Tee(outputFile)

	err = <-archive.Multi(filepath.Base(artifact.GuestPath), artifact.HostPath, maxArtifactSize)
	if err != nil {
		return nil, err
	}
	return artifact, nil
}

// DockerFileCollector pulls paths out of a container as tar streams.
type DockerFileCollector struct {
	client      *OfficialDockerClient
	containerID string
	logger      *util.LogEntry
}

// NewDockerFileCollector constructor
func NewDockerFileCollector(client *OfficialDockerClient, containerID string) *DockerFileCollector {
	return &DockerFileCollector{
		client:      client,
		containerID: containerID,
		logger:      util.RootLogger().WithField("Logger", "DockerFileCollector"),
	}
}

// Collect grabs a path and returns an Archive containing the stream.
// The caller must call Close() on the returned Archive after it has finished with it.
func (fc *DockerFileCollector) Collect(ctx context.Context, path string) (*util.Archive, error) {
	reader, _, err := fc.client.CopyFromContainer(ctx, fc.containerID, path)
	if err != nil {
		// CopyFromContainer throws away the underlying error, so any failure
		// (including a missing path) is treated as an empty tarball.
		return nil, util.ErrEmptyTarball
	}
	return util.NewArchive(reader, func() { reader.Close() }), nil
}
