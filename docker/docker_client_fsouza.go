//   Copyright © 2016 Oracle and/or its affiliates.  All rights reserved.
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
	"io"
	"path"
	"time"

	docker "github.com/fsouza/go-dockerclient"
	"github.com/pkg/errors"
	"github.com/y3-myint-oo/wercker/util"
)

// DefaultMaxRetriesCreateContainer bounds the "no such image" retry loop
// in CreateContainerWithRetries.
var DefaultMaxRetriesCreateContainer = 10

// DockerClient wraps the fsouza docker client; everything the engine
// abstraction needs (image list/pull, container create/start/stop/attach,
// wait) comes through here.
type DockerClient struct {
	*docker.Client
	logger *util.LogEntry
}

// NewDockerClient builds a client for the configured endpoint, going
// through the TLS constructor when cert verification is on.
func NewDockerClient(options *Options) (*DockerClient, error) {
	logger := util.RootLogger().WithField("Logger", "Docker")

	var client *docker.Client
	var err error

	if options.TLSVerify == "1" {
		// boot2docker and friends drop their certs in one directory
		certPath := options.CertPath
		cert := path.Join(certPath, "cert.pem")
		ca := path.Join(certPath, "ca.pem")
		key := path.Join(certPath, "key.pem")
		client, err = docker.NewVersionnedTLSClient(options.Host, cert, key, ca, "")
	} else {
		client, err = docker.NewClient(options.Host)
	}
	if err != nil {
		return nil, err
	}
	return &DockerClient{Client: client, logger: logger}, nil
}

// ExecOne runs a single command in the container via docker exec,
// streaming its output to output.
func (c *DockerClient) ExecOne(containerID string, cmd []string, output io.Writer) error {
	exec, err := c.CreateExec(docker.CreateExecOptions{
		AttachStdin:  false,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          false,
		Cmd:          cmd,
		Container:    containerID,
	})
	if err != nil {
		return err
	}

	return c.StartExec(exec.ID, docker.StartExecOptions{
		OutputStream: output,
	})
}

// CreateContainerWithRetries creates a container, retrying with backoff
// while the daemon claims "no such image". A freshly pulled image can
// take a moment to become visible to create calls.
func (c *DockerClient) CreateContainerWithRetries(opts docker.CreateContainerOptions) (*docker.Container, error) {
	for numRetry := 0; numRetry < DefaultMaxRetriesCreateContainer; numRetry++ {
		container, err := c.CreateContainer(opts)
		if err == nil {
			return container, nil
		}
		if err != docker.ErrNoSuchImage {
			return nil, err
		}
		time.Sleep(time.Duration(500*(numRetry+1)) * time.Millisecond)
	}
	return nil, errors.New("Failed trying to create container")
}
