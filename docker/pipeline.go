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

	"github.com/y3-myint-oo/wercker/core"
	"github.com/y3-myint-oo/wercker/util"
	"golang.org/x/net/context"
)

// DockerPipeline is our docker PipelineConfigurer and Pipeline impl
type DockerPipeline struct {
	*core.BasePipeline
	options       *core.PipelineOptions
	dockerOptions *Options
}

// NewDockerPipeline picks the `build:` or `deploy:` section named by
// options.Pipeline and builds the box, services and steps it describes.
func NewDockerPipeline(config *core.Config, options *core.PipelineOptions, dockerOptions *Options) (*DockerPipeline, error) {
	var rawPipelineConfig *core.RawPipelineConfig
	switch options.Pipeline {
	case "build":
		rawPipelineConfig = config.Build
	case "deploy":
		rawPipelineConfig = config.Deploy
	default:
		// A renamed deploy target still runs the manifest's `deploy:` section.
		rawPipelineConfig = config.Deploy
	}
	if rawPipelineConfig == nil {
		return nil, fmt.Errorf("no %s section found in manifest", options.Pipeline)
	}
	pipelineConfig := rawPipelineConfig.PipelineConfig

	box, err := NewDockerBox(config.Box.BoxConfig, options, dockerOptions)
	if err != nil {
		return nil, err
	}

	var services []core.ServiceBox
	for _, serviceConfig := range config.Services {
		service, err := NewServiceBox(serviceConfig.BoxConfig, options, dockerOptions)
		if err != nil {
			return nil, err
		}
		services = append(services, service)
	}

	var stepsConfig core.RawStepsConfig
	switch options.Pipeline {
	case "build":
		stepsConfig = config.BuildSteps()
	default:
		stepsConfig = config.DeploySteps()
	}

	var steps []core.Step
	seenIDs := map[string]bool{}
	for _, stepConfig := range stepsConfig {
		if stepConfig.ID == "wercker-init" {
			initStep, err := core.NewWerckerInitStep(options)
			if err != nil {
				return nil, err
			}
			steps = append(steps, initStep)
			seenIDs[initStep.SafeID()] = true
			continue
		}
		step, err := core.NewStep(stepConfig.StepConfig, options)
		if err != nil {
			return nil, err
		}
		// Script steps draw random instance ids; regenerate on the
		// (unlikely) collision so each one gets its own workspace entry.
		for step.IsScript() && seenIDs[step.SafeID()] {
			step, err = core.NewStep(stepConfig.StepConfig, options)
			if err != nil {
				return nil, err
			}
		}
		seenIDs[step.SafeID()] = true
		steps = append(steps, step)
	}

	logger := util.RootLogger().WithField("Logger", "Pipeline")
	base := core.NewBasePipeline(core.BasePipelineOptions{
		Options:  options,
		Config:   pipelineConfig,
		Env:      util.NewEnvironment(),
		Box:      box,
		Services: services,
		Steps:    steps,
		Logger:   logger,
	})
	return &DockerPipeline{BasePipeline: base, options: options, dockerOptions: dockerOptions}, nil
}

// CollectCache extracts the cache from the container to the cachedir
func (p *DockerPipeline) CollectCache(ctx context.Context, containerID string) error {
	client, err := NewOfficialDockerClient(p.dockerOptions)
	if err != nil {
		return err
	}
	dfc := NewDockerFileCollector(client, containerID)

	archive, err := dfc.Collect(ctx, p.options.GuestPath("cache"))
	if err != nil {
		if err == util.ErrEmptyTarball {
			return nil
		}
		return err
	}
	defer archive.Close()

	err = <-archive.Multi("cache", p.options.CachePath(), 1024*1024*1000)
	if err != nil {
		if err == util.ErrEmptyTarball {
			return nil
		}
		return err
	}
	return nil
}
