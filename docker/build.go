//   Copyright © 2016,2018, Oracle and/or its affiliates.  All rights reserved.
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
	"fmt"
	"os"

	"github.com/y3-myint-oo/wercker/core"
	"github.com/y3-myint-oo/wercker/util"
	"golang.org/x/net/context"
)

// DockerBuild runs the build pipeline: wercker-init followed by every step
// under the manifest's `build:` section.
type DockerBuild struct {
	*DockerPipeline
}

// NewDockerBuild wires up a DockerPipeline for the build pipeline.
func NewDockerBuild(config *core.Config, options *core.PipelineOptions, dockerOptions *Options) (*DockerBuild, error) {
	base, err := NewDockerPipeline(config, options, dockerOptions)
	if err != nil {
		return nil, err
	}
	return &DockerBuild{base}, nil
}

// LocalSymlink makes an easy to use symlink to find the latest run
func (b *DockerBuild) LocalSymlink() {
	_ = os.RemoveAll(b.options.WorkingPath("latest"))
	_ = os.Symlink(b.options.HostPath(), b.options.WorkingPath("latest"))
}

// InitEnv sets up the internal state of the environment for the build
func (b *DockerBuild) InitEnv(ctx context.Context, hostEnv *util.Environment) {
	env := b.Env()

	a := [][]string{
		[]string{"WERCKER_RUN_ID", b.options.RunID},
		[]string{"WERCKER_BUILD_ID", b.options.RunID},
	}

	env.Update(b.CommonEnv())
	env.Update(a)
	env.Update(hostEnv.GetMirror())
	env.Update(hostEnv.GetPassthru().Ordered())
	env.Hidden.Update(hostEnv.GetHiddenPassthru().Ordered())
}

// DockerRepo calculates our repo name
func (b *DockerBuild) DockerRepo() string {
	if b.options.Repository != "" {
		return b.options.Repository
	}
	return fmt.Sprintf("run-%s", b.options.RunID)
}

// DockerTag calculates our tag
func (b *DockerBuild) DockerTag() string {
	if b.options.Tag != "" {
		return b.options.Tag
	}
	return "latest"
}

// DockerMessage calculates our commit message
func (b *DockerBuild) DockerMessage() string {
	message := b.options.Message
	if message == "" {
		message = fmt.Sprintf("Run %s", b.options.RunID)
	}
	return message
}

// CollectArtifact copies the artifacts associated with the Build.
func (b *DockerBuild) CollectArtifact(ctx context.Context, containerID string) (*core.Artifact, error) {
	artificer := NewArtificer(b.options, b.dockerOptions)

	artifact := &core.Artifact{
		ContainerID: containerID,
		GuestPath:   b.options.GuestPath("output"),
		HostPath:    b.options.HostPath("output"),
		HostTarPath: b.options.HostPath("output.tar"),
		RunID:       b.options.RunID,
	}

	sourceArtifact := &core.Artifact{
		ContainerID: containerID,
		GuestPath:   b.options.BasePath(),
		HostPath:    b.options.HostPath("output"),
		HostTarPath: b.options.HostPath("output.tar"),
		RunID:       b.options.RunID,
	}

	// Get the output dir, if it is empty grab the source dir.
	fullArtifact, err := artificer.Collect(ctx, artifact)
	if err != nil {
		if err == util.ErrEmptyTarball {
			return artificer.Collect(ctx, sourceArtifact)
		}
		return nil, err
	}

	return fullArtifact, nil
}
