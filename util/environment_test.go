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

package util

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

type EnvironmentSuite struct {
	*TestSuite
}

func TestEnvironmentSuite(t *testing.T) {
	suiteTester := &EnvironmentSuite{&TestSuite{}}
	suite.Run(t, suiteTester)
}

func (s *EnvironmentSuite) TestAddPreservesOrder() {
	env := NewEnvironment("A=1", "B=2")
	env.Add("C", "3")
	env.Add("A", "changed")

	s.Equal([]string{"A", "B", "C"}, env.Order)
	s.Equal("changed", env.Get("A"))
	s.Equal("3", env.Get("C"))
	s.Equal("", env.Get("MISSING"))
}

func (s *EnvironmentSuite) TestAddIfMissing() {
	env := NewEnvironment("A=1")
	env.AddIfMissing("A", "2")
	env.AddIfMissing("B", "2")
	s.Equal("1", env.Get("A"))
	s.Equal("2", env.Get("B"))
}

func (s *EnvironmentSuite) TestExport() {
	env := NewEnvironment("A=1", "B=two words")
	exports := env.Export()
	s.Equal(`export A="1"`, exports[0])
	s.Equal(`export B="two words"`, exports[1])
}

func (s *EnvironmentSuite) TestExportEscapesBackticks() {
	env := NewEnvironment("EVIL=`rm -rf /`")
	exports := env.Export()
	s.Equal("export EVIL=\"\\`rm -rf /\\`\"", exports[0])
}

func (s *EnvironmentSuite) TestPassthru() {
	env := NewEnvironment("PASSTHRU_FOO=bar", "NORMAL=nope", "HIDDEN_PASSTHRU_SECRET=hide")

	public := env.GetPassthru()
	s.Equal(1, len(public.Order))
	s.Equal("bar", public.Get("FOO"))

	hidden := env.GetHiddenPassthru()
	s.Equal(1, len(hidden.Order))
	s.Equal("hide", hidden.Get("SECRET"))
}

func (s *EnvironmentSuite) TestGetMirror() {
	env := NewEnvironment(
		"WERCKER_GIT_BRANCH=main",
		"WERCKER_APPLICATION_NAME=app",
		"UNRELATED=x",
	)
	mirror := env.GetMirror()
	s.Equal(2, len(mirror))
	keys := []string{mirror[0][0], mirror[1][0]}
	s.Contains(keys, "WERCKER_GIT_BRANCH")
	s.Contains(keys, "WERCKER_APPLICATION_NAME")
}

func (s *EnvironmentSuite) TestInterpolate() {
	env := NewEnvironment("WHO=world")
	env.Hidden.Add("TOKEN", "sekret")
	s.Equal("hello world", env.Interpolate("hello $WHO"))
	s.Equal("hello world", env.Interpolate("hello ${WHO}"))
	s.Equal("t sekret", env.Interpolate("t $TOKEN"))
	s.Equal("nope ", env.Interpolate("nope $MISSING"))
}

func (s *EnvironmentSuite) TestPassThruProxyConfig() {
	env := NewEnvironment("http_proxy=http://proxy:8080")
	env.PassThruProxyConfig()
	s.Equal("http://proxy:8080", env.Get("PASSTHRU_http_proxy"))
}

func (s *EnvironmentSuite) TestLoadFile() {
	path := filepath.Join(s.WorkingDir(), "ENVIRONMENT")
	content := "# comment\nA=1\nQUOTED=\"two words\"\nBROKEN\nA=override\n"
	s.Nil(ioutil.WriteFile(path, []byte(content), 0644))

	env := NewEnvironment()
	s.Nil(env.LoadFile(path))
	s.Equal("1", env.Get("A"))
	s.Equal("two words", env.Get("QUOTED"))
	s.Equal("", env.Get("BROKEN"))
}

func (s *EnvironmentSuite) TestOrdered() {
	env := NewEnvironment("A=1", "B=2")
	s.Equal([][]string{{"A", "1"}, {"B", "2"}}, env.Ordered())
}
