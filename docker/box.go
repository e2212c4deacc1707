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
	"fmt"
	"io"
	"io/ioutil"
	"math"
	"os"
	"strconv"
	"strings"

	docker "github.com/fsouza/go-dockerclient"
	"github.com/google/shlex"
	"github.com/pkg/errors"
	dockerauth "github.com/y3-myint-oo/wercker/auth"
	"github.com/y3-myint-oo/wercker/core"
	"github.com/y3-myint-oo/wercker/util"

	"golang.org/x/net/context"
)

// DockerBox wraps a manifest box: it ensures the image is present, starts
// the container with the workspace bind-mounted, and owns the attached
// services.
type DockerBox struct {
	Name            string
	ShortName       string
	networkDisabled bool
	client          *DockerClient
	services        []core.ServiceBox
	options         *core.PipelineOptions
	dockerOptions   *Options
	container       *docker.Container
	config          *core.BoxConfig
	cmd             string
	repository      string
	tag             string
	images          []*docker.Image
	logger          *util.LogEntry
	entrypoint      string
	image           *docker.Image
	volumes         []string
	dockerEnvVar    []string
}

// NewDockerBox from a box config. A bare image reference is treated as
// name:latest.
func NewDockerBox(boxConfig *core.BoxConfig, options *core.PipelineOptions, dockerOptions *Options) (*DockerBox, error) {
	name := boxConfig.ID

	if strings.Contains(name, "@") {
		return nil, fmt.Errorf("Invalid box name, '@' is not allowed in docker repositories")
	}

	parts := strings.Split(name, ":")
	repository := parts[0]
	tag := "latest"
	if len(parts) > 1 {
		tag = parts[1]
	}
	if boxConfig.Tag != "" {
		tag = boxConfig.Tag
	}
	name = fmt.Sprintf("%s:%s", repository, tag)

	repoParts := strings.Split(repository, "/")
	shortName := repository
	if len(repoParts) > 1 {
		shortName = repoParts[len(repoParts)-1]
	}

	cmd := boxConfig.Cmd
	if cmd == "" {
		cmd = DefaultDockerCommand
	}

	logger := util.RootLogger().WithFields(util.LogFields{
		"Logger":    "Box",
		"Name":      name,
		"ShortName": shortName,
	})

	client, err := NewDockerClient(dockerOptions)
	if err != nil {
		return nil, errors.Wrapf(err, "NewDockerClient failed for %s",
			dockerOptions.Host)
	}
	return &DockerBox{
		Name:            name,
		ShortName:       shortName,
		client:          client,
		config:          boxConfig,
		options:         options,
		dockerOptions:   dockerOptions,
		repository:      repository,
		tag:             tag,
		networkDisabled: false,
		logger:          logger,
		cmd:             cmd,
		entrypoint:      boxConfig.Entrypoint,
		volumes:         []string{},
	}, nil
}

// GetName gets the box name
func (b *DockerBox) GetName() string {
	return b.Name
}

func (b *DockerBox) Repository() string {
	return b.repository
}

func (b *DockerBox) GetTag() string {
	return b.tag
}

// GetID gets the container ID or empty string if we don't have a container
func (b *DockerBox) GetID() string {
	if b.container != nil {
		return b.container.ID
	}
	return ""
}

// matchesImageName reports whether the tag list covers ref; a ref without
// a tag also matches its :latest form.
func matchesImageName(repoTags []string, ref string) bool {
	candidates := []string{ref}
	if !strings.Contains(ref, ":") {
		candidates = append(candidates, ref+":latest")
	}
	for _, tag := range repoTags {
		for _, want := range candidates {
			if tag == want {
				return true
			}
		}
	}
	return false
}

// findLocalImage checks the engine's local image list for our reference.
func (b *DockerBox) findLocalImage() (*docker.Image, error) {
	images, err := b.client.ListImages(docker.ListImagesOptions{})
	if err != nil {
		return nil, err
	}
	for _, summary := range images {
		if matchesImageName(summary.RepoTags, b.Name) {
			return b.client.InspectImage(b.Name)
		}
	}
	return nil, nil
}

// Fetch ensures the box's image is present: a local image matching the
// reference (bare names count as :latest) is used as-is, otherwise the
// image is pulled, streaming pull progress as log events.
func (b *DockerBox) Fetch(ctx context.Context, env *util.Environment) (*docker.Image, error) {
	e, err := core.EmitterFromContext(ctx)
	if err != nil {
		return nil, err
	}

	b.repository = env.Interpolate(b.repository)
	b.tag = env.Interpolate(b.tag)
	b.Name = fmt.Sprintf("%s:%s", b.repository, b.tag)

	b.config.Auth.Interpolate(env)
	b.config.Auth.Registry = dockerauth.NormalizeRegistry(b.config.Auth.Registry)

	image, err := b.findLocalImage()
	if err != nil {
		return nil, &core.ImageError{Image: b.Name, Err: err}
	}
	if image != nil {
		b.logger.Debugln("Found image locally:", b.Name)
		b.image = image
		return image, nil
	}

	if b.dockerOptions.Local {
		return nil, &core.ImageError{Image: b.Name, Err: fmt.Errorf("local mode is enabled and image is not present")}
	}

	// Docker wants an io.Writer for progress; pipe it into the event
	// decoder.
	r, w := io.Pipe()
	defer w.Close()
	go EmitStatus(e, r, b.options)

	pullOptions := docker.PullImageOptions{
		OutputStream:  w,
		RawJSONStream: true,
		Repository:    b.repository,
		Tag:           b.tag,
	}
	authConfig := docker.AuthConfiguration{
		Username:      b.config.Auth.Username,
		Password:      b.config.Auth.Password,
		ServerAddress: b.config.Auth.Registry,
	}
	err = b.client.PullImage(pullOptions, authConfig)
	if err != nil {
		return nil, &core.ImageError{Image: b.Name, Err: err}
	}
	image, err = b.client.InspectImage(b.Name)
	if err != nil {
		return nil, &core.ImageError{Image: b.Name, Err: err}
	}
	b.image = image
	return image, nil
}

// mounts returns the binds for everything under the run's host directory;
// each top-level entry of the workspace appears under the mount root
// read-only unless we're direct-mounting for local dev.
func (b *DockerBox) mounts(env *util.Environment) ([]string, error) {
	binds := []string{}
	entries, err := ioutil.ReadDir(b.options.HostPath())
	if err != nil {
		return nil, errors.Wrapf(err, "ReadDir failed for %s", b.options.HostPath())
	}
	for _, entry := range entries {
		if entry.IsDir() || entry.Mode()&os.ModeSymlink == os.ModeSymlink {
			if b.options.DirectMount {
				binds = append(binds, fmt.Sprintf("%s:%s:rw", b.options.HostPath(entry.Name()), b.options.GuestPath(entry.Name())))
			} else {
				binds = append(binds, fmt.Sprintf("%s:%s:ro", b.options.HostPath(entry.Name()), b.options.MntPath(entry.Name())))
			}
		}
	}
	return binds, nil
}

// vols returns the binds for the manifest-declared volumes.
func (b *DockerBox) vols(env *util.Environment) ([]string, error) {
	binds := []string{}
	vols := util.SplitSpaceOrComma(b.config.Volumes)
	var interpolatedVols []string
	for _, vol := range vols {
		if strings.Contains(vol, ":") {
			pair := strings.SplitN(vol, ":", 2)
			interpolatedVols = append(interpolatedVols, env.Interpolate(pair[0]))
			interpolatedVols = append(interpolatedVols, env.Interpolate(pair[1]))
		} else {
			interpolatedVols = append(interpolatedVols, env.Interpolate(vol))
			interpolatedVols = append(interpolatedVols, env.Interpolate(vol))
		}
	}
	b.volumes = interpolatedVols
	for i := 0; i < len(b.volumes); i += 2 {
		binds = append(binds, fmt.Sprintf("%s:%s:rw", b.volumes[i], b.volumes[i+1]))
	}
	return binds, nil
}

// RunServices starts the service boxes, in manifest order, before the
// main box comes up.
func (b *DockerBox) RunServices(ctx context.Context, env *util.Environment) error {
	linkedEnvVars := []string{}
	ctxWithServiceCount := context.WithValue(ctx, "ServiceCount", len(b.services))

	for _, service := range b.services {
		b.logger.Debugln("Starting service:", service.GetName())
		_, err := service.Run(ctxWithServiceCount, env, linkedEnvVars)
		if err != nil {
			return errors.Wrapf(err, "run of service %s failed", service.GetName())
		}
		svcEnvVar, err := b.prepareSvcDockerEnvVar(service, env, linkedEnvVars)
		if err != nil {
			return errors.Wrapf(err, "service environment prepare failed on %s",
				service.GetName())
		}
		linkedEnvVars = append(linkedEnvVars, svcEnvVar...)
	}
	b.dockerEnvVar = linkedEnvVars
	return nil
}

func dockerEnv(boxEnv map[string]string, env *util.Environment) []string {
	s := []string{}
	for k, v := range boxEnv {
		s = append(s, fmt.Sprintf("%s=%s", strings.ToUpper(k), env.Interpolate(v)))
	}
	return s
}

func (b *DockerBox) getContainerName() string {
	return "wercker-build-" + b.options.RunID
}

// Run creates the main container and starts it.
func (b *DockerBox) Run(ctx context.Context, env *util.Environment) (*docker.Container, error) {
	dockerNetworkName, err := b.GetDockerNetworkName()
	if err != nil {
		return nil, &core.ContainerError{Op: "network", Err: err}
	}

	err = b.RunServices(ctx, env)
	if err != nil {
		// A service failing to come up doesn't kill the build; steps that
		// need it will fail on their own terms.
		b.logger.WithField("Error", err).Warnln("Failed to start services")
	}
	b.logger.Debugln("Starting base box:", b.Name)

	myEnv := dockerEnv(b.config.Env, env)
	myEnv = append(myEnv, b.dockerEnvVar...)

	var entrypoint []string
	if b.entrypoint != "" {
		entrypoint, err = shlex.Split(b.entrypoint)
		if err != nil {
			return nil, &core.ContainerError{Op: "create", Err: err}
		}
	}

	cmd, err := shlex.Split(b.cmd)
	if err != nil {
		return nil, &core.ContainerError{Op: "create", Err: err}
	}

	binds, err := b.mounts(env)
	if err != nil {
		return nil, &core.ContainerError{Op: "create", Err: err}
	}
	if b.options.EnableVolumes {
		volBinds, err := b.vols(env)
		if err != nil {
			return nil, &core.ContainerError{Op: "create", Err: err}
		}
		binds = append(binds, volBinds...)
	}

	hostConfig := &docker.HostConfig{
		Binds:       binds,
		DNS:         b.dockerOptions.DNS,
		NetworkMode: dockerNetworkName,
	}

	conf := &docker.Config{
		Image:           env.Interpolate(b.Name),
		Tty:             false,
		OpenStdin:       true,
		Cmd:             cmd,
		Env:             myEnv,
		AttachStdin:     true,
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: b.networkDisabled,
		DNS:             b.dockerOptions.DNS,
		Entrypoint:      entrypoint,
	}

	if b.dockerOptions.Memory != 0 {
		mem := b.dockerOptions.Memory
		if len(b.services) > 0 {
			mem = int64(float64(mem) * 0.75)
		}
		swap := b.dockerOptions.MemorySwap
		if swap == 0 {
			swap = 2 * mem
		}

		conf.Memory = mem
		conf.MemorySwap = swap
	}

	container, err := b.client.CreateContainerWithRetries(
		docker.CreateContainerOptions{
			Name:       b.getContainerName(),
			Config:     conf,
			HostConfig: hostConfig,
		})
	if err != nil {
		return nil, &core.ContainerError{Op: "create", Err: err}
	}

	b.logger.Debugln("Docker Container:", container.ID)

	err = b.client.StartContainer(container.ID, hostConfig)
	if err != nil {
		return nil, &core.ContainerError{Op: "start", Err: err}
	}

	b.container = container
	return container, nil
}

// Clean removes the containers (and, unless we're committing, the images
// we made along the way).
func (b *DockerBox) Clean() error {
	defer b.CleanDockerNetwork()
	containers := []string{}
	if b.container != nil {
		containers = append(containers, b.container.ID)
	}

	for _, service := range b.services {
		if containerID := service.GetID(); containerID != "" {
			containers = append(containers, containerID)
		}
	}

	for _, container := range containers {
		opts := docker.RemoveContainerOptions{
			ID:            container,
			RemoveVolumes: true,
			Force:         true,
		}
		b.logger.WithField("Container", container).Debugln("Removing container:", container)
		err := b.client.RemoveContainer(opts)
		if err != nil {
			return errors.Wrapf(err, "failed to remove container %s", container)
		}
	}

	if !b.options.ShouldCommit {
		for i := len(b.images) - 1; i >= 0; i-- {
			b.logger.WithField("Image", b.images[i].ID).Debugln("Removing image:", b.images[i].ID)
			b.client.RemoveImage(b.images[i].ID)
		}
	}

	return nil
}

// Restart stops and starts the box
func (b *DockerBox) Restart() (*docker.Container, error) {
	err := b.client.RestartContainer(b.container.ID, 1)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to restart container %s", b.container.ID)
	}
	return b.container, nil
}

// AddService attaches a service box.
func (b *DockerBox) AddService(service core.ServiceBox) {
	b.services = append(b.services, service)
}

// Stop the box and all its services
func (b *DockerBox) Stop() {
	for _, service := range b.services {
		b.logger.Debugln("Stopping service", service.GetID())
		err := b.client.StopContainer(service.GetID(), 1)
		if err != nil {
			if _, ok := err.(*docker.ContainerNotRunning); ok {
				b.logger.Warnln("Service container has already stopped.")
			} else {
				b.logger.WithField("Error", err).Warnln("Wasn't able to stop service container", service.GetID())
			}
		}
	}
	if b.container != nil {
		b.logger.Debugln("Stopping container", b.container.ID)
		err := b.client.StopContainer(b.container.ID, 1)
		if err != nil {
			if _, ok := err.(*docker.ContainerNotRunning); ok {
				b.logger.Warnln("Box container has already stopped.")
			} else {
				b.logger.WithField("Error", err).Warnln("Wasn't able to stop box container", b.container.ID)
			}
		}
	}
}

// Commit the current running container to an image.
func (b *DockerBox) Commit(name, tag, message string, cleanup bool) (*docker.Image, error) {
	b.logger.WithFields(util.LogFields{
		"Name": name,
		"Tag":  tag,
	}).Debugln("Commit container:", name, tag)

	commitOptions := docker.CommitContainerOptions{
		Container:  b.container.ID,
		Repository: name,
		Tag:        tag,
		Message:    message,
		Author:     "wercker",
	}
	image, err := b.client.CommitContainer(commitOptions)
	if err != nil {
		return nil, errors.Wrapf(err, "docker commit failure for %s", b.container.ID)
	}

	if cleanup {
		b.images = append(b.images, image)
	}

	return image, nil
}

// prepareSvcDockerEnvVar builds the docker-links-compatible environment
// variables for one started service, since docker networks don't inject
// them the way links used to:
//   <service>_PORT_<port>_<proto>{,_ADDR,_PORT,_PROTO}
//   <service>_PORT (url of the lowest exposed port)
//   <service>_NAME, <service>_ENV_<var>
func (b *DockerBox) prepareSvcDockerEnvVar(service core.ServiceBox, env *util.Environment, linkedEnvVars []string) ([]string, error) {
	serviceEnv := []string{}
	serviceName := strings.Replace(service.GetServiceAlias(), "-", "_", -1)
	containerID := service.GetID()
	if containerID == "" {
		return serviceEnv, nil
	}

	container, err := b.client.InspectContainer(containerID)
	if err != nil {
		b.logger.Error("Error while inspecting container", err)
		return nil, err
	}

	var serviceIPAddress string
	for _, v := range container.NetworkSettings.Networks {
		serviceIPAddress = v.IPAddress
		break
	}

	upperName := strings.ToUpper(serviceName)
	serviceEnv = append(serviceEnv, fmt.Sprintf("%s_NAME=/%s/%s", upperName, b.getContainerName(), serviceName))

	lowestPort := math.MaxInt32
	var protoLowestPort string
	for k := range container.Config.ExposedPorts {
		portAndProto := strings.Split(string(k), "/")
		portNum, err := strconv.Atoi(portAndProto[0])
		if err != nil {
			b.logger.Error("Unable to convert string port to integer", err)
			return nil, err
		}
		if lowestPort > portNum {
			lowestPort = portNum
			protoLowestPort = portAndProto[1]
		}
		prefix := fmt.Sprintf("%s_PORT_%s_%s", upperName, portAndProto[0], strings.ToUpper(portAndProto[1]))
		serviceEnv = append(serviceEnv, fmt.Sprintf("%s=%s://%s:%s", prefix, portAndProto[1], serviceIPAddress, portAndProto[0]))
		serviceEnv = append(serviceEnv, fmt.Sprintf("%s_ADDR=%s", prefix, serviceIPAddress))
		serviceEnv = append(serviceEnv, fmt.Sprintf("%s_PORT=%s", prefix, portAndProto[0]))
		serviceEnv = append(serviceEnv, fmt.Sprintf("%s_PROTO=%s", prefix, portAndProto[1]))
	}
	if protoLowestPort != "" {
		serviceEnv = append(serviceEnv, fmt.Sprintf("%s_PORT=%s://%s:%d", upperName, protoLowestPort, serviceIPAddress, lowestPort))
	}
	for _, envVar := range container.Config.Env {
		if !util.ContainsString(linkedEnvVars, envVar) {
			serviceEnv = append(serviceEnv, fmt.Sprintf("%s_ENV_%s", upperName, envVar))
		}
	}

	b.logger.Debug("Exposed service environment variables", serviceEnv)
	return serviceEnv, nil
}
