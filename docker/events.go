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

package dockerlocal

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/y3-myint-oo/wercker/core"
	"github.com/y3-myint-oo/wercker/util"
)

// JSONMessageProcessor turns the engine's streamed pull-progress frames
// into printable lines. Layers currently in flight are tracked by ID so
// one status line can summarize all of them.
type JSONMessageProcessor struct {
	lastProgressLength int
	message            *jsonmessage.JSONMessage
	progressMessages   map[string]*jsonmessage.JSONMessage
}

// NewJSONMessageProcessor constructor.
func NewJSONMessageProcessor() *JSONMessageProcessor {
	return &JSONMessageProcessor{
		progressMessages: make(map[string]*jsonmessage.JSONMessage),
	}
}

// ProcessJSONMessage folds m into the processor's state and returns the
// next output chunk.
func (s *JSONMessageProcessor) ProcessJSONMessage(m *jsonmessage.JSONMessage) (string, error) {
	if m.Error != nil {
		return "", m.Error
	}

	if m.Stream != "" {
		return m.Stream, nil
	}

	switch m.Status {
	case "Extracting", "Downloading", "Buffering to disk":
		s.progressMessages[m.ID] = m
	case "Pull complete", "Download complete":
		delete(s.progressMessages, m.ID)
		s.message = m
	default:
		s.message = m
	}

	return s.getOutput(), nil
}

// pad returns spaces to blank out the remainder of a longer previous
// progress line.
func (s *JSONMessageProcessor) pad(length int) string {
	filling := ""
	if s.lastProgressLength > length {
		filling = strings.Repeat(" ", s.lastProgressLength-length)
	}
	s.lastProgressLength = 0
	return filling
}

// getOutput renders the pending completed message plus a rewritable
// progress line for the in-flight layers.
func (s *JSONMessageProcessor) getOutput() string {
	output := ""

	if s.lastProgressLength > 0 {
		output = "\r"
	}

	if s.message != nil {
		line := formatStatus(s.message)
		output = fmt.Sprintf("%s%s%s\n", output, line, s.pad(len(line)))
		s.message = nil
	}

	keys := make([]string, 0, len(s.progressMessages))
	for key := range s.progressMessages {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	buffer := make([]string, len(keys))
	for i, key := range keys {
		buffer[i] = formatStatus(s.progressMessages[key])
	}

	progressLine := strings.Join(buffer, ", ")
	padding := s.pad(len(progressLine))
	s.lastProgressLength = len(progressLine)

	return output + progressLine + padding
}

// formatStatus renders a single frame as "status[: id][ progress]".
func formatStatus(m *jsonmessage.JSONMessage) string {
	out := m.Status
	if m.ID != "" {
		out = fmt.Sprintf("%s: %s", m.Status, m.ID)
	}
	if m.Progress != nil && m.Progress.String() != "" {
		out = fmt.Sprintf("%s %s", out, m.Progress.String())
	}
	return out
}

// EmitStatus decodes the JSON frames arriving on r and emits each
// rendered chunk as a Logs event on the "docker" stream.
func EmitStatus(e *core.NormalizedEmitter, r io.Reader, options *core.PipelineOptions) error {
	s := NewJSONMessageProcessor()
	dec := json.NewDecoder(r)
	for {
		var m jsonmessage.JSONMessage
		if err := dec.Decode(&m); err == io.EOF {
			break
		} else if err != nil {
			util.RootLogger().WithField("Error", err).Errorln("Error decoding pull status")
			return err
		}

		line, err := s.ProcessJSONMessage(&m)
		if err != nil {
			e.Emit(core.Logs, &core.LogsArgs{
				Logs:   err.Error() + "\n",
				Stream: "docker",
			})
			return err
		}

		e.Emit(core.Logs, &core.LogsArgs{
			Logs:   line,
			Stream: "docker",
		})
	}
	return nil
}
