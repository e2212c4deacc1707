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

package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/y3-myint-oo/wercker/util"
	"golang.org/x/net/context"
)

type StepSuite struct {
	*util.TestSuite
}

func TestStepSuite(t *testing.T) {
	suiteTester := &StepSuite{&util.TestSuite{}}
	suite.Run(t, suiteTester)
}

func stepOptions() *PipelineOptions {
	return &PipelineOptions{
		GlobalOptions: &GlobalOptions{},
		GuestRoot:     "/pipeline",
		MntRoot:       "/mnt",
		ReportRoot:    "/pipeline/report",
	}
}

func (s *StepSuite) TestNormalizeCodeAddsShebang() {
	normalized := normalizeCode("echo hi")
	s.Equal("#!/bin/bash -xe\necho hi", normalized)
}

func (s *StepSuite) TestNormalizeCodeKeepsShebang() {
	code := "#!/bin/sh\necho hi"
	s.Equal(code, normalizeCode(code))
}

func (s *StepSuite) TestNormalizeCodeIdempotent() {
	once := normalizeCode("echo hi\necho bye\n")
	s.Equal(once, normalizeCode(once))
}

func (s *StepSuite) TestNormalizeCodePreservesTrailingNewlines() {
	normalized := normalizeCode("echo hi\n\n")
	s.True(strings.HasSuffix(normalized, "\n\n"))
}

func (s *StepSuite) TestSafeIDRegisteredDeterministic() {
	s.Equal("wercker_golint", stepSafeID("wercker", "golint"))
	s.Equal("wercker_golint", stepSafeID("wercker", "golint"))
	s.Equal("someone_custom-step", stepSafeID("someone", "custom-step"))
}

func (s *StepSuite) TestSafeIDNeverContainsSlash() {
	ids := []string{
		stepSafeID("wercker", "golint"),
		stepSafeID("some/owner", "step"),
		stepSafeID("wercker", "script"),
	}
	for _, id := range ids {
		s.NotContains(id, "/")
	}
}

func (s *StepSuite) TestSafeIDScriptUnique() {
	seen := map[string]bool{}
	for i := 0; i < 32; i++ {
		id := stepSafeID("wercker", "script")
		s.False(seen[id], "script instance ids must not repeat")
		seen[id] = true
	}
}

func (s *StepSuite) TestNewStepParsesOwner() {
	cfg := &StepConfig{ID: "someone/their-step", Data: map[string]string{}}
	step, err := NewStep(cfg, stepOptions())
	s.Nil(err)
	s.Equal("someone", step.Owner())
	s.Equal("their-step", step.Name())
	s.Equal("someone_their-step", step.SafeID())
	s.Equal("*", step.Version())
}

func (s *StepSuite) TestNewStepDefaultsOwner() {
	cfg := &StepConfig{ID: "golint", Data: map[string]string{}}
	step, err := NewStep(cfg, stepOptions())
	s.Nil(err)
	s.Equal("wercker", step.Owner())
	s.Equal("golint", step.Name())
	s.Equal("wercker_golint", step.SafeID())
}

func (s *StepSuite) TestNewStepParsesVersion() {
	cfg := &StepConfig{ID: "wercker/golint@1.2.3", Data: map[string]string{}}
	step, err := NewStep(cfg, stepOptions())
	s.Nil(err)
	s.Equal("golint", step.Name())
	s.Equal("1.2.3", step.Version())
	s.Equal("wercker-golint@1.2.3", step.CachedName())
}

func (s *StepSuite) TestInitEnvIdentity() {
	cfg := &StepConfig{ID: "greeter", Data: map[string]string{}}
	step, err := NewStep(cfg, stepOptions())
	s.Nil(err)

	s.Nil(step.InitEnv(context.Background(), util.NewEnvironment()))
	env := step.Env()
	s.Equal("/pipeline/wercker_greeter", env.Get("WERCKER_STEP_ROOT"))
	s.Equal("wercker_greeter", env.Get("WERCKER_STEP_ID"))
	s.Equal("wercker", env.Get("WERCKER_STEP_OWNER"))
	s.Equal("greeter", env.Get("WERCKER_STEP_NAME"))
	s.Equal("/pipeline/report/wercker_greeter/message.txt", env.Get("WERCKER_REPORT_MESSAGE_FILE"))
	s.Equal("/pipeline/report/wercker_greeter/artifacts", env.Get("WERCKER_REPORT_ARTIFACTS_DIR"))
}

func (s *StepSuite) TestInitEnvPropertyDefaults() {
	cfg := &StepConfig{ID: "greeter", Data: map[string]string{}}
	step, err := NewStep(cfg, stepOptions())
	s.Nil(err)
	step.stepDesc = &StepDesc{
		Name: "greeter",
		Properties: []StepDescProperty{
			{Name: "who", Default: "world"},
		},
	}

	s.Nil(step.InitEnv(context.Background(), util.NewEnvironment()))
	s.Equal("world", step.Env().Get("WERCKER_GREETER_WHO"))
}

func (s *StepSuite) TestInitEnvPropertyOverride() {
	cfg := &StepConfig{ID: "greeter", Data: map[string]string{"who": "ci"}}
	step, err := NewStep(cfg, stepOptions())
	s.Nil(err)
	step.stepDesc = &StepDesc{
		Name: "greeter",
		Properties: []StepDescProperty{
			{Name: "who", Default: "world"},
		},
	}

	s.Nil(step.InitEnv(context.Background(), util.NewEnvironment()))
	s.Equal("ci", step.Env().Get("WERCKER_GREETER_WHO"))
}

func (s *StepSuite) TestInitEnvNoSchemaNoPropertyVars() {
	cfg := &StepConfig{ID: "greeter", Data: map[string]string{}}
	step, err := NewStep(cfg, stepOptions())
	s.Nil(err)

	s.Nil(step.InitEnv(context.Background(), util.NewEnvironment()))
	s.Equal("", step.Env().Get("WERCKER_GREETER_WHO"))
}

func (s *StepSuite) TestInitEnvExtraPropertiesStillExported() {
	// The schema gates defaults only; unknown user properties still get
	// exported with the user value.
	cfg := &StepConfig{ID: "greeter", Data: map[string]string{"shout": "yes"}}
	step, err := NewStep(cfg, stepOptions())
	s.Nil(err)
	step.stepDesc = &StepDesc{Name: "greeter"}

	s.Nil(step.InitEnv(context.Background(), util.NewEnvironment()))
	s.Equal("yes", step.Env().Get("WERCKER_GREETER_SHOUT"))
}

func (s *StepSuite) TestInitEnvDashesBecomeUnderscores() {
	cfg := &StepConfig{ID: "my-step", Data: map[string]string{"some-prop": "v"}}
	step, err := NewStep(cfg, stepOptions())
	s.Nil(err)

	s.Nil(step.InitEnv(context.Background(), util.NewEnvironment()))
	s.Equal("v", step.Env().Get("WERCKER_MY_STEP_SOME_PROP"))
}

func (s *StepSuite) TestStepDescDefaults() {
	var nilDesc *StepDesc
	s.Empty(nilDesc.Defaults())

	desc := &StepDesc{
		Properties: []StepDescProperty{
			{Name: "a", Default: "1"},
			{Name: "b"},
		},
	}
	defaults := desc.Defaults()
	s.Equal("1", defaults["a"])
	s.Equal("", defaults["b"])
}
