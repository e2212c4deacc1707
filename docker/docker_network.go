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

	shortid "github.com/SKAhack/go-shortid"
	docker "github.com/fsouza/go-dockerclient"
	"github.com/y3-myint-oo/wercker/util"
)

// GetDockerNetworkName returns the name of the private network the box
// and its services share. An operator-supplied network is validated and
// used as-is; otherwise one is created per run, lazily, and remembered in
// the pipeline options.
func (b *DockerBox) GetDockerNetworkName() (string, error) {
	networkName := b.dockerOptions.NetworkName
	if networkName != "" {
		if _, err := b.client.NetworkInfo(networkName); err != nil {
			b.logger.Errorln("Network does not exist", err)
			return "", err
		}
		return networkName, nil
	}

	if b.options.DockerNetworkName == "" {
		generated, err := b.generateNetworkName()
		if err != nil {
			return "", err
		}
		if _, err = b.createDockerNetwork(generated); err != nil {
			b.logger.Errorln("Error while creating network", err)
			return "", err
		}
		b.options.DockerNetworkName = generated
	}
	return b.options.DockerNetworkName, nil
}

// CleanDockerNetwork tears down the per-run network, disconnecting any
// stragglers first. Operator-supplied networks are left alone.
func (b *DockerBox) CleanDockerNetwork() error {
	if b.dockerOptions.NetworkName != "" {
		b.logger.Debugln("Custom network, not removing")
		return nil
	}
	networkName := b.options.DockerNetworkName
	if networkName == "" {
		b.logger.Debugln("Network does not exist")
		return nil
	}

	network, err := b.client.NetworkInfo(networkName)
	if err != nil {
		b.logger.Errorln("Unable to get network info", err)
		return err
	}
	for containerID := range network.Containers {
		err = b.client.DisconnectNetwork(network.ID, docker.NetworkConnectionOptions{
			Container: containerID,
			Force:     true,
		})
		if err != nil {
			b.logger.Errorln("Error while disconnecting container from network", err)
			return err
		}
	}
	b.logger.WithFields(util.LogFields{
		"Name": networkName,
	}).Debugln("Removing docker network", networkName)
	if err = b.client.RemoveNetwork(networkName); err != nil {
		b.logger.Errorln("Error while removing docker network", err)
		return err
	}
	b.options.DockerNetworkName = ""
	return nil
}

func (b *DockerBox) createDockerNetwork(networkName string) (*docker.Network, error) {
	b.logger.WithFields(util.LogFields{
		"Name": networkName,
	}).Debugln("Creating docker network:", networkName)
	return b.client.CreateNetwork(docker.CreateNetworkOptions{
		Name:           networkName,
		CheckDuplicate: true,
		Options: map[string]interface{}{
			"com.docker.network.bridge.enable_icc":           "true",
			"com.docker.network.bridge.enable_ip_masquerade": "true",
			"com.docker.network.driver.mtu":                  "1500",
		},
	})
}

// generateNetworkName picks a short random network name, retrying a few
// times if the name is somehow taken.
func (b *DockerBox) generateNetworkName() (string, error) {
	generator := shortid.Generator()
	for i := 0; i < 3; i++ {
		networkName := "w-" + generator.Generate()
		if network, _ := b.client.NetworkInfo(networkName); network == nil {
			return networkName, nil
		}
		b.logger.Debugln("Network name exists, retrying...")
	}
	err := fmt.Errorf("Unable to prepare unique network name")
	b.logger.Errorln(err)
	return "", err
}
