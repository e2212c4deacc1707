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
package cmd

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/y3-myint-oo/wercker/core"
	"github.com/y3-myint-oo/wercker/util"
	"golang.org/x/net/context"
)

const initEnvErrorMessage = "InitEnv failed"

type RunnerSuite struct {
	*util.TestSuite
}

func TestRunnerSuite(t *testing.T) {
	suiteTester := &RunnerSuite{&util.TestSuite{}}
	suite.Run(t, suiteTester)
}

// MockStep stubs out everything BaseStep doesn't carry; its InitEnv
// always fails.
type MockStep struct {
	*core.BaseStep
}

func (s *MockStep) CollectArtifact(context.Context, string) (*core.Artifact, error) {
	return nil, nil
}

func (s *MockStep) CollectFile(string, string, string, io.Writer) error {
	return nil
}

func (s *MockStep) Execute(context.Context, *core.Session) (int, error) {
	return 0, nil
}

func (s *MockStep) Fetch() (string, error) {
	return "", nil
}

func (s *MockStep) ReportPath(...string) string {
	return ""
}

func (s *MockStep) ShouldSyncEnv() bool {
	return false
}

func (s *MockStep) InitEnv(context.Context, *util.Environment) error {
	return errors.New(initEnvErrorMessage)
}

// FailingStep initializes fine but exits non-zero.
type FailingStep struct {
	*MockStep
	exitCode int
}

func (s *FailingStep) InitEnv(context.Context, *util.Environment) error {
	return nil
}

func (s *FailingStep) Execute(context.Context, *core.Session) (int, error) {
	return s.exitCode, nil
}

// MockPipeline stubs the Pipeline methods BasePipeline leaves abstract.
type MockPipeline struct {
	*core.BasePipeline
}

func (s *MockPipeline) CollectArtifact(context.Context, string) (*core.Artifact, error) {
	return nil, nil
}

func (s *MockPipeline) CollectCache(context.Context, string) error {
	return nil
}

func (s *MockPipeline) DockerMessage() string {
	return ""
}

func (s *MockPipeline) DockerRepo() string {
	return ""
}

func (s *MockPipeline) DockerTag() string {
	return ""
}

func (s *MockPipeline) InitEnv(context.Context, *util.Environment) {
}

func (s *MockPipeline) LocalSymlink() {
}

func (s *MockPipeline) Env() *util.Environment {
	return nil
}

func testRunner() *Runner {
	return &Runner{
		options: &core.PipelineOptions{GlobalOptions: &core.GlobalOptions{}},
		logger:  util.RootLogger().WithField("Logger", "Runner"),
		emitter: core.NewNormalizedEmitter(),
	}
}

// A step whose InitEnv errors fails the run before anything is sent to
// the container.
func (s *RunnerSuite) TestRunStepFailsOnInitEnvError() {
	ctx := context.Background()
	shared := &RunnerShared{pipeline: &MockPipeline{}}
	step := &MockStep{BaseStep: core.NewBaseStep(core.BaseStepOptions{
		ID:          "MockID",
		Name:        "MockStep",
		DisplayName: "MockStep",
	})}

	sr, err := testRunner().RunStep(ctx, shared, step, 1)
	s.Error(err)
	s.Contains(err.Error(), "Step initEnv failed with error message")
	s.Equal(initEnvErrorMessage, sr.Message)
	s.NotEqual(0, sr.ExitCode)
}

// A non-zero exit surfaces as a StepFailed carrying the step id and code.
func (s *RunnerSuite) TestRunStepNonZeroExitIsStepFailed() {
	ctx := context.Background()
	shared := &RunnerShared{pipeline: &MockPipeline{}}
	base := core.NewBaseStep(core.BaseStepOptions{
		ID:          "fail-id",
		Name:        "failer",
		DisplayName: "failer",
		SafeID:      "wercker_failer",
		Env:         util.NewEnvironment(),
	})
	step := &FailingStep{MockStep: &MockStep{BaseStep: base}, exitCode: 7}

	sr, err := testRunner().RunStep(ctx, shared, step, 1)
	s.Error(err)
	s.Equal(7, sr.ExitCode)
	s.False(sr.Success)

	var stepFailed *core.StepFailed
	s.True(errors.As(err, &stepFailed))
	s.Equal("wercker_failer", stepFailed.StepID)
	s.Equal(7, stepFailed.ExitCode)
}
