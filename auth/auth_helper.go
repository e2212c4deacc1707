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

// Package dockerauth holds the credential shape a box or service may carry
// for pulling from a private registry.
package dockerauth

import (
	"net/url"
	"strings"

	"github.com/y3-myint-oo/wercker/util"
)

// CheckAccessOptions are the registry credentials a box/service config may
// carry inline. Username/Password/Registry are handed to the container
// engine's image-pull RPC after Interpolate has expanded them.
type CheckAccessOptions struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Registry string `yaml:"registry"`
}

// Interpolate expands $VAR references against env, since registry
// credentials are commonly supplied via pipeline environment variables
// rather than written in plaintext into the manifest.
func (a *CheckAccessOptions) Interpolate(env *util.Environment) {
	a.Username = env.Interpolate(a.Username)
	a.Password = env.Interpolate(a.Password)
	a.Registry = env.Interpolate(a.Registry)
}

const (
	// DockerRegistryV2 is the default registry used when a box doesn't
	// specify one.
	DockerRegistryV2 = "https://index.docker.io/v2/"
)

// NormalizeRegistry ensures a registry address is usable as a docker auth
// server address.
func NormalizeRegistry(address string) string {
	logger := util.RootLogger().WithField("Logger", "Auth")
	if address == "" {
		logger.Debugln("No registry address provided, using", DockerRegistryV2)
		return DockerRegistryV2
	}

	parsed, err := url.Parse(address)
	if err != nil {
		logger.Errorln("Registry address is invalid, this will probably fail:", address)
		return address
	}
	if parsed.Scheme != "https" {
		logger.Warnln("Registry address is expected to begin with 'https://', forcing it to use https")
		parsed.Scheme = "https"
		address = parsed.String()
	}
	return strings.TrimSuffix(address, "/")
}
