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

package core

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/chuckpreslar/emission"
	"github.com/y3-myint-oo/wercker/util"
	"golang.org/x/net/context"
)

// The events a run emits; subscribers (terminal log writer, report
// writer, debug dumper) listen for these so the driver never has to know
// who is watching.
const (
	// Logs is emitted for every chunk of session/engine output.
	Logs = "Logs"

	// BuildStarted fires once per run, before any steps.
	BuildStarted = "BuildStarted"

	// BuildFinished fires when the main phase completes, pass or fail.
	BuildFinished = "BuildFinished"

	// BuildStepsAdded fires once the manifest has been parsed and the
	// step list is known.
	BuildStepsAdded = "BuildStepsAdded"

	// BuildStepStarted fires at the start of each step.
	BuildStepStarted = "BuildStepStarted"

	// BuildStepFinished fires at the end of each step.
	BuildStepFinished = "BuildStepFinished"

	// FullPipelineFinished fires after everything, including any
	// trailing phases, has run.
	FullPipelineFinished = "FullPipelineFinished"
)

// BuildStartedArgs for BuildStarted.
type BuildStartedArgs struct {
	Options *PipelineOptions
}

// BuildFinishedArgs for BuildFinished.
type BuildFinishedArgs struct {
	Box     Box
	Options *PipelineOptions
	Result  string
}

// LogsArgs for Logs.
type LogsArgs struct {
	Build   Pipeline
	Options *PipelineOptions
	Order   int
	Step    Step
	Logs    string
	Stream  string
	Hidden  bool
}

// BuildStepsAddedArgs for BuildStepsAdded.
type BuildStepsAddedArgs struct {
	Build      Pipeline
	Options    *PipelineOptions
	Steps      []Step
	StoreStep  Step
	AfterSteps []Step
}

// BuildStepStartedArgs for BuildStepStarted.
type BuildStepStartedArgs struct {
	Options *PipelineOptions
	Box     Box
	Build   Pipeline
	Order   int
	Step    Step
}

// BuildStepFinishedArgs for BuildStepFinished.
type BuildStepFinishedArgs struct {
	Options     *PipelineOptions
	Box         Box
	Build       Pipeline
	Order       int
	Step        Step
	Successful  bool
	Message     string
	ArtifactURL string
	// Only applicable to the store step
	PackageURL string
	// Only applicable to the setup environment step
	WerckerYamlContents string
}

// FullPipelineFinishedArgs for FullPipelineFinished.
type FullPipelineFinishedArgs struct {
	Options             *PipelineOptions
	MainSuccessful      bool
	RanAfterSteps       bool
	AfterStepSuccessful bool
}

// NormalizedEmitter wraps emission.Emitter and fills in args that
// emitters deeper in the stack don't have on hand (options, current
// build, current step and order), so a Logs emitted from the session
// still ends up attributed to the right step.
type NormalizedEmitter struct {
	*emission.Emitter

	// All these start unset and accrete as events go by.
	options      *PipelineOptions // set by BuildStarted
	build        Pipeline         // set by BuildStepsAdded
	currentOrder int              // set by BuildStepStarted
	currentStep  Step             // set by BuildStepStarted
}

// NewNormalizedEmitter constructor
func NewNormalizedEmitter() *NormalizedEmitter {
	return &NormalizedEmitter{Emitter: emission.NewEmitter()}
}

// Emit normalizes our events by storing some state
func (e *NormalizedEmitter) Emit(event interface{}, args interface{}) {
	switch event {
	case BuildStarted:
		a := args.(*BuildStartedArgs)
		e.options = a.Options
		e.Emitter.Emit(event, a)
	case BuildStepsAdded:
		a := args.(*BuildStepsAddedArgs)
		if a.Options == nil {
			a.Options = e.options
		}
		e.build = a.Build
		e.Emitter.Emit(event, a)
	case BuildStepStarted:
		a := args.(*BuildStepStartedArgs)
		if a.Options == nil {
			a.Options = e.options
		}
		if a.Build == nil {
			a.Build = e.build
		}
		e.currentStep = a.Step
		e.currentOrder = a.Order
		e.Emitter.Emit(event, a)
	case Logs:
		a := args.(*LogsArgs)
		if a.Options == nil {
			a.Options = e.options
		}
		if a.Build == nil {
			a.Build = e.build
		}
		if a.Step == nil {
			a.Step = e.currentStep
		}
		if a.Order == 0 {
			a.Order = e.currentOrder
		}
		if a.Stream == "" {
			a.Stream = "stdout"
		}
		e.Emitter.Emit(event, a)
	case BuildStepFinished:
		a := args.(*BuildStepFinishedArgs)
		if a.Options == nil {
			a.Options = e.options
		}
		if a.Build == nil {
			a.Build = e.build
		}
		if a.Step == nil {
			a.Step = e.currentStep
		}
		if a.Order == 0 {
			a.Order = e.currentOrder
		}
		e.Emitter.Emit(event, a)
		e.currentStep = nil
		e.currentOrder = -1
	case BuildFinished:
		a := args.(*BuildFinishedArgs)
		if a.Options == nil {
			a.Options = e.options
		}
		e.Emitter.Emit(event, a)
	case FullPipelineFinished:
		a := args.(*FullPipelineFinishedArgs)
		if a.Options == nil {
			a.Options = e.options
		}
		e.Emitter.Emit(event, a)
	}
}

// NewEmitterContext returns a context carrying a fresh emitter.
func NewEmitterContext(ctx context.Context) context.Context {
	e := NewNormalizedEmitter()
	return context.WithValue(ctx, "Emitter", e)
}

// EmitterFromContext gives us the emitter attached to the context
func EmitterFromContext(ctx context.Context) (e *NormalizedEmitter, err error) {
	e, ok := ctx.Value("Emitter").(*NormalizedEmitter)
	if !ok {
		err = fmt.Errorf("Cannot get emitter from context.")
	}
	return e, err
}

// DebugHandler dumps every event's fields at debug level; installed only
// with --debug.
type DebugHandler struct {
	logger *util.LogEntry
}

// NewDebugHandler constructor
func NewDebugHandler() *DebugHandler {
	logger := util.RootLogger().WithField("Logger", "Events")
	return &DebugHandler{logger: logger}
}

// dumpEvent prints the exported fields of an event's args, descending
// into Box and Step values.
func (h *DebugHandler) dumpEvent(event interface{}, indent ...string) {
	indent = append(indent, "  ")
	s := reflect.ValueOf(event).Elem()

	typeOfT := s.Type()
	names := []string{}
	for i := 0; i < s.NumField(); i++ {
		fieldName := typeOfT.Field(i).Name
		if fieldName != "Env" {
			names = append(names, fieldName)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if name == "Options" {
			continue
		}
		f := s.FieldByName(name)
		if name[:1] == strings.ToLower(name[:1]) {
			// Not exported, skip it
			h.logger.Debugln(fmt.Sprintf("%s%s %s = %v", strings.Join(indent, ""), name, f.Type(), "<not exported>"))
			continue
		}
		if name == "Box" || name == "Step" {
			h.logger.Debugln(fmt.Sprintf("%s%s %s", strings.Join(indent, ""), name, f.Type()))
			if !f.IsNil() {
				h.dumpEvent(f.Interface(), indent...)
			}
		} else {
			h.logger.Debugln(fmt.Sprintf("%s%s %s = %v", strings.Join(indent, ""), name, f.Type(), f.Interface()))
		}
	}
}

// Handler returns a per-event dumpEvent
func (h *DebugHandler) Handler(name string) func(interface{}) {
	return func(event interface{}) {
		h.logger.Debugln(name)
		h.dumpEvent(event)
	}
}

// ListenTo attaches to the emitter
func (h *DebugHandler) ListenTo(e *NormalizedEmitter) {
	e.AddListener(BuildStarted, h.Handler("BuildStarted"))
	e.AddListener(BuildFinished, h.Handler("BuildFinished"))
	e.AddListener(BuildStepsAdded, h.Handler("BuildStepsAdded"))
	e.AddListener(BuildStepStarted, h.Handler("BuildStepStarted"))
	e.AddListener(BuildStepFinished, h.Handler("BuildStepFinished"))
	e.AddListener(FullPipelineFinished, h.Handler("FullPipelineFinished"))
}
