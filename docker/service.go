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
	"bytes"
	"fmt"
	"strings"

	docker "github.com/fsouza/go-dockerclient"
	"github.com/google/shlex"
	"github.com/y3-myint-oo/wercker/core"
	"github.com/y3-myint-oo/wercker/util"
	"golang.org/x/net/context"
)

// InternalServiceBox wraps a box run as a service sidecar. It shares
// everything with DockerBox except its container naming and the network
// alias other containers reach it by.
type InternalServiceBox struct {
	*DockerBox
	logger *util.LogEntry
}

// NewServiceBox from a box config.
func NewServiceBox(config *core.BoxConfig, options *core.PipelineOptions, dockerOptions *Options) (core.ServiceBox, error) {
	box, err := NewDockerBox(config, options, dockerOptions)
	if err != nil {
		return nil, err
	}
	logger := util.RootLogger().WithField("Logger", "Service")
	return &InternalServiceBox{DockerBox: box, logger: logger}, nil
}

func (b *InternalServiceBox) getContainerName() string {
	name := b.config.Name
	if name == "" {
		name = b.Name
	}
	containerName := fmt.Sprintf("wercker-service-%s-%s", strings.Replace(name, "/", "-", -1), b.options.RunID)
	return strings.Replace(containerName, ":", "_", -1)
}

// GetServiceAlias returns the alias other containers see this service
// under on the shared docker network.
func (b *InternalServiceBox) GetServiceAlias() string {
	name := b.config.Name
	if name == "" {
		name = b.ShortName
	}
	return name
}

// Run starts the service container. The manifest's cmd/entrypoint win
// over the image's; the container joins the run's network under the
// service alias. On a non-zero exit the service's output is surfaced as
// log events so the user can see why their sidecar died.
func (b *InternalServiceBox) Run(ctx context.Context, env *util.Environment, envVars []string) (*docker.Container, error) {
	e, err := core.EmitterFromContext(ctx)
	if err != nil {
		return nil, err
	}
	f := &util.Formatter{}

	myEnv := dockerEnv(b.config.Env, env)
	myEnv = append(myEnv, envVars...)

	origEntrypoint := b.image.Config.Entrypoint
	origCmd := b.image.Config.Cmd
	cmdInfo := []string{}

	var entrypoint []string
	if b.entrypoint != "" {
		entrypoint, err = shlex.Split(b.entrypoint)
		if err != nil {
			return nil, err
		}
		cmdInfo = append(cmdInfo, entrypoint...)
	} else {
		cmdInfo = append(cmdInfo, origEntrypoint...)
	}

	var cmd []string
	if b.config.Cmd != "" {
		cmd, err = shlex.Split(b.config.Cmd)
		if err != nil {
			return nil, err
		}
		cmdInfo = append(cmdInfo, cmd...)
	} else {
		cmdInfo = append(cmdInfo, origCmd...)
	}

	binds := []string{}
	if b.options.EnableVolumes {
		binds, err = b.vols(env)
		if err != nil {
			return nil, err
		}
	}

	networkName, err := b.GetDockerNetworkName()
	if err != nil {
		return nil, err
	}

	hostConfig := &docker.HostConfig{
		DNS:         b.dockerOptions.DNS,
		NetworkMode: networkName,
	}
	if len(binds) > 0 {
		hostConfig.Binds = binds
	}

	conf := &docker.Config{
		Image:           b.Name,
		Cmd:             cmd,
		Env:             myEnv,
		NetworkDisabled: b.networkDisabled,
		DNS:             b.dockerOptions.DNS,
		Entrypoint:      entrypoint,
	}

	// Divvy up memory between the box and however many services are
	// attached to it.
	serviceCount := ctx.Value("ServiceCount").(int)
	if b.dockerOptions.Memory != 0 {
		mem := int64(float64(b.dockerOptions.Memory) * 0.25 / float64(serviceCount))
		swap := b.dockerOptions.MemorySwap
		if swap == 0 {
			swap = 2 * mem
		}

		conf.Memory = mem
		conf.MemorySwap = swap
	}

	endpointConfigMap := map[string]*docker.EndpointConfig{
		networkName: {
			Aliases: []string{b.GetServiceAlias()},
		},
	}

	container, err := b.client.CreateContainerWithRetries(
		docker.CreateContainerOptions{
			Name:       b.getContainerName(),
			Config:     conf,
			HostConfig: hostConfig,
			NetworkingConfig: &docker.NetworkingConfig{
				EndpointsConfig: endpointConfigMap,
			},
		})
	if err != nil {
		return nil, err
	}

	if b.options.Verbose {
		out := []string{}
		for _, part := range cmdInfo {
			if strings.Contains(part, " ") {
				out = append(out, fmt.Sprintf("%q", part))
			} else {
				out = append(out, part)
			}
		}
		b.logger.Println(f.Info(fmt.Sprintf("Starting service %s", b.ShortName), strings.Join(out, " ")))
	}

	b.client.StartContainer(container.ID, hostConfig)
	b.container = container

	go func() {
		status, err := b.client.WaitContainer(container.ID)
		if err != nil {
			b.logger.Errorln("Error waiting", err)
		}
		b.logger.Debugln("Service container finished with status code:", status, container.ID)

		if status != 0 {
			var errstream bytes.Buffer
			var outstream bytes.Buffer
			opts := docker.LogsOptions{
				Container:    container.ID,
				Stdout:       true,
				Stderr:       true,
				ErrorStream:  &errstream,
				OutputStream: &outstream,
				RawTerminal:  false,
			}
			err = b.client.Logs(opts)
			if err != nil {
				b.logger.WithField("Error", err).Errorln("Unable to fetch service logs")
				return
			}
			e.Emit(core.Logs, &core.LogsArgs{
				Stream: fmt.Sprintf("%s-stdout", b.Name),
				Logs:   outstream.String(),
			})
			e.Emit(core.Logs, &core.LogsArgs{
				Stream: fmt.Sprintf("%s-stderr", b.Name),
				Logs:   errstream.String(),
			})
		}
	}()
	return container, nil
}
