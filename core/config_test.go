//   Copyright © 2016, 2019, Oracle and/or its affiliates.  All rights reserved.
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
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/y3-myint-oo/wercker/util"
)

type ConfigSuite struct {
	*util.TestSuite
}

func TestConfigSuite(t *testing.T) {
	suiteTester := &ConfigSuite{&util.TestSuite{}}
	suite.Run(t, suiteTester)
}

func (s *ConfigSuite) TestParseBareBox() {
	config, err := ParseManifest([]byte("box: ubuntu\n"))
	s.Nil(err)
	s.Equal("ubuntu", config.Box.ID)
}

func (s *ConfigSuite) TestParseBoxMap() {
	manifest := `
box:
  id: ubuntu
  tag: trusty
`
	config, err := ParseManifest([]byte(manifest))
	s.Nil(err)
	s.Equal("ubuntu", config.Box.ID)
	s.Equal("trusty", config.Box.Tag)
}

func (s *ConfigSuite) TestParseMissingBox() {
	_, err := ParseManifest([]byte("build:\n  steps: []\n"))
	s.NotNil(err)
	var manifestErr *ManifestError
	s.True(errors.As(err, &manifestErr))
}

func (s *ConfigSuite) TestParseMalformedYaml() {
	_, err := ParseManifest([]byte("box: [unclosed"))
	s.NotNil(err)
	var manifestErr *ManifestError
	s.True(errors.As(err, &manifestErr))
}

func (s *ConfigSuite) TestParseStepShapes() {
	manifest := `
box: ubuntu
build:
  steps:
    - bare-step
    - configured-step:
        prop: value
        number: 7
        truthy: true
    - script:
        name: inline
        code: echo hi
`
	config, err := ParseManifest([]byte(manifest))
	s.Nil(err)
	steps := config.Build.Steps
	s.Equal(3, len(steps))

	s.Equal("bare-step", steps[0].ID)
	s.Empty(steps[0].Data)

	s.Equal("configured-step", steps[1].ID)
	s.Equal("value", steps[1].Data["prop"])
	s.Equal("7", steps[1].Data["number"])
	s.Equal("true", steps[1].Data["truthy"])

	s.Equal("script", steps[2].ID)
	s.Equal("inline", steps[2].Name)
	s.Equal("echo hi", steps[2].Data["code"])
	// name was plucked out of the property bag
	_, hasName := steps[2].Data["name"]
	s.False(hasName)
}

func (s *ConfigSuite) TestBuildStepsPrependInit() {
	manifest := `
box: ubuntu
build:
  steps:
    - a-step
`
	config, err := ParseManifest([]byte(manifest))
	s.Nil(err)
	steps := config.BuildSteps()
	s.Equal(2, len(steps))
	s.Equal("wercker-init", steps[0].ID)
	s.Equal("a-step", steps[1].ID)
}

func (s *ConfigSuite) TestEmptyStepsStillYieldInit() {
	config, err := ParseManifest([]byte("box: ubuntu\nbuild:\n  steps: []\n"))
	s.Nil(err)
	steps := config.BuildSteps()
	s.Equal(1, len(steps))
	s.Equal("wercker-init", steps[0].ID)

	// Same for an absent pipeline section entirely.
	deploySteps := config.DeploySteps()
	s.Equal(1, len(deploySteps))
	s.Equal("wercker-init", deploySteps[0].ID)
}

func (s *ConfigSuite) TestUnknownKeysPreserved() {
	manifest := `
box: ubuntu
future-key:
  nested: true
`
	config, err := ParseManifest([]byte(manifest))
	s.Nil(err)
	s.Contains(config.Extra, "future-key")
	s.NotContains(config.Extra, "box")
}

func (s *ConfigSuite) TestGlobalOptionDefaults() {
	config, err := ParseManifest([]byte("box: ubuntu\n"))
	s.Nil(err)
	opts := config.ManifestGlobalOptions()
	s.Equal("", opts.SourceDir)
	s.Equal(5, opts.NoResponseTimeout)
	s.Equal(10, opts.CommandTimeout)
}

func (s *ConfigSuite) TestGlobalOptionOverrides() {
	manifest := `
box: ubuntu
source-dir: app
no-response-timeout: 2
command-timeout: 30
`
	config, err := ParseManifest([]byte(manifest))
	s.Nil(err)
	opts := config.ManifestGlobalOptions()
	s.Equal("app", opts.SourceDir)
	s.Equal(2, opts.NoResponseTimeout)
	s.Equal(30, opts.CommandTimeout)
}

func (s *ConfigSuite) TestServicesOrderPreserved() {
	manifest := `
box: ubuntu
services:
  - redis
  - postgres
  - memcached
`
	config, err := ParseManifest([]byte(manifest))
	s.Nil(err)
	s.Equal(3, len(config.Services))
	s.Equal("redis", config.Services[0].ID)
	s.Equal("postgres", config.Services[1].ID)
	s.Equal("memcached", config.Services[2].ID)
}
