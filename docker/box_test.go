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
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/y3-myint-oo/wercker/core"
	"github.com/y3-myint-oo/wercker/util"
)

type BoxSuite struct {
	*util.TestSuite
}

func TestBoxSuite(t *testing.T) {
	suiteTester := &BoxSuite{&util.TestSuite{}}
	suite.Run(t, suiteTester)
}

func boxTestOptions() (*core.PipelineOptions, *Options) {
	options := &core.PipelineOptions{GlobalOptions: &core.GlobalOptions{}}
	dockerOptions := &Options{Host: "tcp://127.0.0.1:2375"}
	return options, dockerOptions
}

func (s *BoxSuite) TestNewDockerBoxBareName() {
	options, dockerOptions := boxTestOptions()
	config := &core.BoxConfig{ID: "ubuntu"}
	box, err := NewDockerBox(config, options, dockerOptions)
	s.Nil(err)
	s.Equal("ubuntu:latest", box.Name)
	s.Equal("ubuntu", box.Repository())
	s.Equal("latest", box.GetTag())
	s.Equal("ubuntu", box.ShortName)
}

func (s *BoxSuite) TestNewDockerBoxTaggedName() {
	options, dockerOptions := boxTestOptions()
	config := &core.BoxConfig{ID: "library/ubuntu:trusty"}
	box, err := NewDockerBox(config, options, dockerOptions)
	s.Nil(err)
	s.Equal("library/ubuntu:trusty", box.Name)
	s.Equal("trusty", box.GetTag())
	s.Equal("ubuntu", box.ShortName)
}

func (s *BoxSuite) TestNewDockerBoxConfigTagWins() {
	options, dockerOptions := boxTestOptions()
	config := &core.BoxConfig{ID: "ubuntu:trusty", Tag: "xenial"}
	box, err := NewDockerBox(config, options, dockerOptions)
	s.Nil(err)
	s.Equal("ubuntu:xenial", box.Name)
}

func (s *BoxSuite) TestNewDockerBoxRejectsAt() {
	options, dockerOptions := boxTestOptions()
	config := &core.BoxConfig{ID: "ubuntu@sha256:deadbeef"}
	_, err := NewDockerBox(config, options, dockerOptions)
	s.NotNil(err)
}

func (s *BoxSuite) TestMatchesImageName() {
	tags := []string{"ubuntu:latest", "golang:1.21"}

	// A bare reference matches its :latest form.
	s.True(matchesImageName(tags, "ubuntu"))
	s.True(matchesImageName(tags, "ubuntu:latest"))

	// Tagged references match exactly.
	s.True(matchesImageName(tags, "golang:1.21"))
	s.False(matchesImageName(tags, "golang"))
	s.False(matchesImageName(tags, "golang:1.22"))

	s.False(matchesImageName(nil, "ubuntu"))
}
