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
	"os"
	"path/filepath"

	"github.com/y3-myint-oo/wercker/core"
	"github.com/y3-myint-oo/wercker/util"
)

// ReportHandler writes the conventional per-step report directory on the
// host: one directory per step instance under <run>/report/ holding the
// step's streamed output, its message and a results.json, plus a run-level
// results.json when the build finishes.
type ReportHandler struct {
	options *core.PipelineOptions
	writers map[string]*os.File
	logger  *util.LogEntry
}

// NewReportHandler will create a new ReportHandler.
func NewReportHandler(options *core.PipelineOptions) (*ReportHandler, error) {
	logger := util.RootLogger().WithField("Logger", "Reporter")
	return &ReportHandler{
		options: options,
		writers: make(map[string]*os.File),
		logger:  logger,
	}, nil
}

// stepReportPath is the host directory for one step's reports.
func (h *ReportHandler) stepReportPath(stepSafeID string, elem ...string) string {
	parts := append([]string{"report", stepSafeID}, elem...)
	return h.options.HostPath(parts...)
}

// stepResult is the shape of a per-step results.json.
type stepResult struct {
	RunID       string `json:"runId"`
	StepSafeID  string `json:"stepSafeId"`
	Step        string `json:"step"`
	Order       int    `json:"order"`
	Result      string `json:"result"`
	Message     string `json:"message,omitempty"`
	ArtifactURL string `json:"artifactUrl,omitempty"`
}

// runResult is the shape of the run-level results.json.
type runResult struct {
	RunID  string `json:"runId"`
	Result string `json:"result"`
}

// StepStarted handles the BuildStepStarted event by making sure the
// step's report directory exists.
func (h *ReportHandler) StepStarted(args *core.BuildStepStartedArgs) {
	if err := os.MkdirAll(h.stepReportPath(args.Step.SafeID()), 0755); err != nil {
		h.logger.WithField("Error", err).Error("Unable to create report directory")
	}
}

// Logs appends non-hidden step output to the step's output log.
func (h *ReportHandler) Logs(args *core.LogsArgs) {
	if args.Hidden || args.Step == nil {
		return
	}

	w, err := h.getStepOutputWriter(args.Step.SafeID())
	if err != nil {
		h.logger.WithField("Error", err).Error("Unable to create step output writer")
		return
	}
	w.WriteString(args.Logs)
}

func (h *ReportHandler) getStepOutputWriter(safeID string) (*os.File, error) {
	if w, ok := h.writers[safeID]; ok {
		return w, nil
	}
	dir := h.stepReportPath(safeID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	w, err := os.OpenFile(filepath.Join(dir, "output.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	h.writers[safeID] = w
	return w, nil
}

// StepFinished handles the BuildStepFinished event, writing message.txt
// and the step's results.json.
func (h *ReportHandler) StepFinished(args *core.BuildStepFinishedArgs) {
	safeID := args.Step.SafeID()
	h.closeStepWriter(safeID)

	result := "failed"
	if args.Successful {
		result = "passed"
	}

	dir := h.stepReportPath(safeID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		h.logger.WithField("Error", err).Error("Unable to create report directory")
		return
	}

	if args.Message != "" {
		err := ioutil.WriteFile(filepath.Join(dir, "message.txt"), []byte(args.Message), 0644)
		if err != nil {
			h.logger.WithField("Error", err).Error("Unable to write step message")
		}
	}

	h.writeJSON(filepath.Join(dir, "results.json"), &stepResult{
		RunID:       args.Options.RunID,
		StepSafeID:  safeID,
		Step:        args.Step.DisplayName(),
		Order:       args.Order,
		Result:      result,
		Message:     args.Message,
		ArtifactURL: args.ArtifactURL,
	})
}

// PipelineFinished handles the BuildFinished event with the run-level
// results.json.
func (h *ReportHandler) PipelineFinished(args *core.BuildFinishedArgs) {
	dir := h.options.HostPath("report")
	if err := os.MkdirAll(dir, 0755); err != nil {
		h.logger.WithField("Error", err).Error("Unable to create report directory")
		return
	}
	h.writeJSON(filepath.Join(dir, "results.json"), &runResult{
		RunID:  args.Options.RunID,
		Result: args.Result,
	})
}

// FullPipelineFinished closes any writers that are still open.
func (h *ReportHandler) FullPipelineFinished(args *core.FullPipelineFinishedArgs) {
	h.Close()
}

func (h *ReportHandler) writeJSON(path string, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		h.logger.WithField("Error", err).Error("Unable to marshal report")
		return
	}
	if err := ioutil.WriteFile(path, append(data, '\n'), 0644); err != nil {
		h.logger.WithField("Error", err).Error("Unable to write report")
	}
}

func (h *ReportHandler) closeStepWriter(safeID string) {
	if w, ok := h.writers[safeID]; ok {
		w.Close()
		delete(h.writers, safeID)
	}
}

// Close will close any output writers that have been created.
func (h *ReportHandler) Close() error {
	for _, w := range h.writers {
		w.Close()
	}
	h.writers = make(map[string]*os.File)
	return nil
}

// ListenTo will add eventhandlers to e.
func (h *ReportHandler) ListenTo(e *core.NormalizedEmitter) {
	e.AddListener(core.BuildFinished, h.PipelineFinished)
	e.AddListener(core.BuildStepFinished, h.StepFinished)
	e.AddListener(core.BuildStepStarted, h.StepStarted)
	e.AddListener(core.FullPipelineFinished, h.FullPipelineFinished)
	e.AddListener(core.Logs, h.Logs)
}
