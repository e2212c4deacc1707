//   Copyright © 2018, Oracle and/or its affiliates.  All rights reserved.
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
	"path"
	"reflect"

	"github.com/docker/docker/client"
	"golang.org/x/net/context"
)

const (
	// DefaultDockerCommand is the shell started in the box when the
	// manifest doesn't pick one; it prefers bash but falls back to sh so
	// minimal images still work.
	DefaultDockerCommand = `/bin/sh -c "if [ -e /bin/bash ]; then /bin/bash; else /bin/sh; fi"`
)

// OfficialDockerClient wraps the upstream docker client; the archive
// copy calls (CopyFromContainer) only exist there, so artifact and cache
// collection go through this one instead of the fsouza client.
type OfficialDockerClient struct {
	*client.Client
}

// NewOfficialDockerClient builds a client for the configured endpoint.
func NewOfficialDockerClient(options *Options) (*OfficialDockerClient, error) {
	var dockerClient *client.Client
	var err error
	if options.TLSVerify == "1" {
		certPath := options.CertPath
		cert := path.Join(certPath, "cert.pem")
		ca := path.Join(certPath, "ca.pem")
		key := path.Join(certPath, "key.pem")
		dockerClient, err = client.NewClientWithOpts(client.WithHost(options.Host), client.WithTLSClientConfig(ca, cert, key), client.WithVersion("1.24"))
	} else {
		dockerClient, err = client.NewClientWithOpts(client.WithHost(options.Host), client.WithVersion("1.24"))
	}
	if err != nil {
		return nil, err
	}
	return &OfficialDockerClient{Client: dockerClient}, nil
}

// RequireDockerEndpoint pings the configured daemon and returns a
// readable error when there isn't one to talk to.
func RequireDockerEndpoint(ctx context.Context, options *Options) error {
	dockerClient, err := NewOfficialDockerClient(options)
	if err != nil {
		return fmt.Errorf(`Invalid Docker endpoint: %s
			To specify a different endpoint use the DOCKER_HOST environment variable,
			or the --docker-host command-line flag.
		`, err.Error())
	}
	_, err = dockerClient.ServerVersion(ctx)
	if err != nil {
		if reflect.TypeOf(err).String() == "client.errConnectionFailed" {
			return fmt.Errorf(`You don't seem to have a working Docker environment or wercker can't connect to the Docker endpoint:
			%s
		To specify a different endpoint use the DOCKER_HOST environment variable,
		or the --docker-host command-line flag.`, options.Host)
		}
		return err
	}
	return nil
}
