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

package event

import (
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/y3-myint-oo/wercker/core"
	"github.com/y3-myint-oo/wercker/util"
)

type ReportHandlerSuite struct {
	*util.TestSuite
}

func TestReportHandlerSuite(t *testing.T) {
	suiteTester := &ReportHandlerSuite{&util.TestSuite{}}
	suite.Run(t, suiteTester)
}

func (s *ReportHandlerSuite) reportOptions() *core.PipelineOptions {
	return &core.PipelineOptions{
		GlobalOptions: &core.GlobalOptions{},
		WorkingDir:    s.WorkingDir(),
		RunID:         "test-run",
	}
}

func fakeStep(safeID string) core.Step {
	return &core.ExternalStep{
		BaseStep: core.NewBaseStep(core.BaseStepOptions{
			DisplayName: "fake step",
			Name:        "fake",
			Owner:       "wercker",
			SafeID:      safeID,
		}),
	}
}

func (s *ReportHandlerSuite) TestStepOutputAndResults() {
	options := s.reportOptions()
	h, err := NewReportHandler(options)
	s.Nil(err)

	step := fakeStep("wercker_fake")

	h.StepStarted(&core.BuildStepStartedArgs{Options: options, Step: step, Order: 3})
	h.Logs(&core.LogsArgs{Options: options, Step: step, Logs: "hello\n"})
	h.Logs(&core.LogsArgs{Options: options, Step: step, Logs: "world\n"})
	// Hidden lines stay out of the report.
	h.Logs(&core.LogsArgs{Options: options, Step: step, Logs: "secret\n", Hidden: true})
	h.StepFinished(&core.BuildStepFinishedArgs{
		Options:    options,
		Step:       step,
		Order:      3,
		Successful: true,
		Message:    "all done",
	})

	dir := options.HostPath("report", "wercker_fake")

	output, err := ioutil.ReadFile(filepath.Join(dir, "output.log"))
	s.Nil(err)
	s.Equal("hello\nworld\n", string(output))

	message, err := ioutil.ReadFile(filepath.Join(dir, "message.txt"))
	s.Nil(err)
	s.Equal("all done", string(message))

	raw, err := ioutil.ReadFile(filepath.Join(dir, "results.json"))
	s.Nil(err)
	var results map[string]interface{}
	s.Nil(json.Unmarshal(raw, &results))
	s.Equal("passed", results["result"])
	s.Equal("test-run", results["runId"])
	s.Equal("wercker_fake", results["stepSafeId"])
}

func (s *ReportHandlerSuite) TestRunResults() {
	options := s.reportOptions()
	h, err := NewReportHandler(options)
	s.Nil(err)

	h.PipelineFinished(&core.BuildFinishedArgs{Options: options, Result: "failed"})

	raw, err := ioutil.ReadFile(options.HostPath("report", "results.json"))
	s.Nil(err)
	var results map[string]interface{}
	s.Nil(json.Unmarshal(raw, &results))
	s.Equal("failed", results["result"])
}

func (s *ReportHandlerSuite) TestLogsWithoutStepIgnored() {
	options := s.reportOptions()
	h, err := NewReportHandler(options)
	s.Nil(err)

	// No step attached yet (e.g. pull progress); must not panic or write.
	h.Logs(&core.LogsArgs{Options: options, Logs: "docker noise\n"})
}
