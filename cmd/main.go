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

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/y3-myint-oo/wercker/core"
	dockerlocal "github.com/y3-myint-oo/wercker/docker"
	"github.com/y3-myint-oo/wercker/util"
	"golang.org/x/net/context"
	cli "gopkg.in/urfave/cli.v1"
)

// Exit codes per error kind.
const (
	exitOK         = 0
	exitStepFailed = 1
	exitWorkspace  = 2
	exitImage      = 3
	exitSession    = 4
	exitUsage      = 5
)

// exitCodeForError maps the error taxonomy onto the CLI exit codes.
func exitCodeForError(err error) int {
	if err == nil {
		return exitOK
	}
	var (
		stepFailed   *core.StepFailed
		manifestErr  *core.ManifestError
		workspaceErr *core.WorkspaceError
		resolveErr   *core.StepResolveError
		imageErr     *core.ImageError
		containerErr *core.ContainerError
		sessionErr   *core.SessionError
		protocolErr  *core.ProtocolError
		timeoutErr   *core.TimeoutError
	)
	switch {
	case errors.As(err, &stepFailed):
		return exitStepFailed
	case errors.As(err, &manifestErr), errors.As(err, &workspaceErr), errors.As(err, &resolveErr):
		return exitWorkspace
	case errors.As(err, &imageErr), errors.As(err, &containerErr):
		return exitImage
	case errors.As(err, &sessionErr), errors.As(err, &protocolErr), errors.As(err, &timeoutErr):
		return exitSession
	}
	return exitStepFailed
}

var (
	cliLogger    = util.RootLogger().WithField("Logger", "CLI")
	buildCommand = cli.Command{
		Name:      "build",
		ShortName: "b",
		Usage:     "build a project",
		Action: func(c *cli.Context) {
			ctx := context.Background()
			opts, dockerOptions := parsePipelineOptions(ctx, c, core.NewBuildOptions)
			_, err := cmdBuild(ctx, opts, dockerOptions)
			finish(opts, err)
		},
		Flags: FlagsFor(PipelineFlagSet, WerckerInternalFlagSet),
	}

	deployCommand = cli.Command{
		Name:      "deploy",
		ShortName: "d",
		Usage:     "deploy a project",
		Action: func(c *cli.Context) {
			ctx := context.Background()
			opts, dockerOptions := parsePipelineOptions(ctx, c, core.NewDeployOptions)
			_, err := cmdDeploy(ctx, opts, dockerOptions)
			finish(opts, err)
		},
		Flags: FlagsFor(PipelineFlagSet, WerckerInternalFlagSet),
	}

	versionCommand = cli.Command{
		Name:      "version",
		ShortName: "v",
		Usage:     "print versions",
		Flags: []cli.Flag{
			cli.BoolFlag{
				Name:  "json",
				Usage: "Output version information as JSON",
			},
		},
		Action: func(c *cli.Context) {
			cmdVersion(c.Bool("json"))
		},
	}
)

type optionsGetter func(util.Settings, *util.Environment) (*core.PipelineOptions, error)

// parsePipelineOptions reads the flags; a bad command line is a usage
// error.
func parsePipelineOptions(ctx context.Context, c *cli.Context, getOpts optionsGetter) (*core.PipelineOptions, *dockerlocal.Options) {
	envfile := c.GlobalString("environment")
	env := util.DefaultEnvironment(envfile)
	settings := util.NewCLISettings(c)

	opts, err := getOpts(settings, env)
	if err != nil {
		cliLogger.Errorln("Invalid options\n", err)
		os.Exit(exitUsage)
	}
	dockerOptions, err := dockerlocal.NewOptions(ctx, settings, env)
	if err != nil {
		cliLogger.Errorln("Invalid options\n", err)
		os.Exit(exitUsage)
	}
	return opts, dockerOptions
}

// finish prints the terminal result line and exits with the mapped code.
func finish(options *core.PipelineOptions, err error) {
	label := strings.ToUpper(options.Pipeline)
	f := &util.Formatter{ShowColors: options.GlobalOptions.ShowColors}
	if err == nil {
		cliLogger.Println(f.Success(fmt.Sprintf("%s passed", label)))
		os.Exit(exitOK)
	}

	var stepFailed *core.StepFailed
	if errors.As(err, &stepFailed) {
		cliLogger.Errorln(f.Fail(fmt.Sprintf("%s failed", label),
			fmt.Sprintf("step %s exited with %d", stepFailed.StepID, stepFailed.ExitCode)))
	} else {
		cliLogger.Errorln(f.Fail(fmt.Sprintf("%s failed", label), err.Error()))
	}
	os.Exit(exitCodeForError(err))
}

// GetApp assembles the CLI application.
func GetApp() *cli.App {
	app := cli.NewApp()
	app.Author = "Team wercker"
	app.Name = "wercker"
	app.Usage = "build and deploy from the command line"
	app.Email = "pleasemailus@wercker.com"
	app.Version = util.FullVersion()
	app.Flags = FlagsFor(GlobalFlagSet)
	app.Commands = []cli.Command{
		buildCommand,
		deployCommand,
		versionCommand,
	}
	app.Before = func(ctx *cli.Context) error {
		if ctx.GlobalBool("log-json") {
			util.RootLogger().Formatter = &logrus.JSONFormatter{}
			if ctx.GlobalBool("debug") {
				util.RootLogger().SetLevel("debug")
			} else {
				util.RootLogger().SetLevel("info")
			}
		} else if ctx.GlobalBool("debug") {
			util.RootLogger().Formatter = &util.VerboseFormatter{}
			util.RootLogger().SetLevel("debug")
		} else {
			util.RootLogger().Formatter = &util.TerseFormatter{}
			util.RootLogger().SetLevel("info")
		}
		// Register the global signal handlers
		util.GlobalSigint().Register(os.Interrupt)
		util.GlobalSigterm().Register(syscall.SIGTERM)
		return nil
	}
	return app
}

// SoftExit is a helper for determining when to show stack traces
type SoftExit struct {
	options *core.GlobalOptions
}

// NewSoftExit constructor
func NewSoftExit(options *core.GlobalOptions) *SoftExit {
	return &SoftExit{options}
}

// Exit with either an error or a panic
func (s *SoftExit) Exit(err error) error {
	if s.options.Debug {
		// Clearly this will cause its own exit if it gets called.
		util.RootLogger().Panicln(err)
	}
	util.RootLogger().Errorln(err)
	return err
}

func cmdBuild(ctx context.Context, options *core.PipelineOptions, dockerOptions *dockerlocal.Options) (*RunnerShared, error) {
	if options.Pipeline == "" {
		options.Pipeline = "build"
	}
	pipelineGetter := GetBuildPipelineFactory(options.Pipeline)
	ctx = core.NewEmitterContext(ctx)
	return executePipeline(ctx, options, dockerOptions, pipelineGetter)
}

func cmdDeploy(ctx context.Context, options *core.PipelineOptions, dockerOptions *dockerlocal.Options) (*RunnerShared, error) {
	if options.Pipeline == "" {
		options.Pipeline = "deploy"
	}
	pipelineGetter := GetDeployPipelineFactory(options.Pipeline)
	ctx = core.NewEmitterContext(ctx)
	return executePipeline(ctx, options, dockerOptions, pipelineGetter)
}

func cmdVersion(outputJSON bool) {
	logger := util.RootLogger().WithField("Logger", "Main")

	v := util.GetVersions()

	if outputJSON {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			logger.WithField("Error", err).Panic("Unable to marshal versions")
		}
		os.Stdout.Write(b)
		os.Stdout.WriteString("\n")
		return
	}

	logger.Infoln("Version:", v.Version)
	logger.Infoln("Compiled at:", v.CompiledAt.Local())
	if v.GitCommit != "" {
		logger.Infoln("Git commit:", v.GitCommit)
	}
}

// DumpOptions prints out a sorted list of options
func DumpOptions(options interface{}, indent ...string) {
	indent = append(indent, "  ")
	s := reflect.ValueOf(options).Elem()
	typeOfT := s.Type()
	var names []string
	for i := 0; i < s.NumField(); i++ {
		fieldName := typeOfT.Field(i).Name
		if fieldName != "HostEnv" {
			names = append(names, fieldName)
		}
	}
	sort.Strings(names)
	logger := util.RootLogger().WithField("Logger", "Options")

	for _, name := range names {
		r := reflect.ValueOf(options)
		f := reflect.Indirect(r).FieldByName(name)
		if strings.HasSuffix(name, "Options") {
			if len(indent) > 1 && name == "GlobalOptions" {
				continue
			}
			logger.Debugln(fmt.Sprintf("%s%s %s", strings.Join(indent, ""), name, f.Type()))
			DumpOptions(f.Interface(), indent...)
		} else {
			logger.Debugln(fmt.Sprintf("%s%s %s = %v", strings.Join(indent, ""), name, f.Type(), f.Interface()))
		}
	}
}

func executePipeline(cmdCtx context.Context, options *core.PipelineOptions, dockerOptions *dockerlocal.Options, getter pipelineGetter) (*RunnerShared, error) {
	// Boilerplate
	soft := NewSoftExit(options.GlobalOptions)
	logger := util.RootLogger().WithFields(util.LogFields{
		"Logger": "Main",
		"RunID":  options.RunID,
	})
	e, err := core.EmitterFromContext(cmdCtx)
	if err != nil {
		return nil, err
	}
	f := &util.Formatter{ShowColors: options.GlobalOptions.ShowColors}

	// Set up the runner
	r, err := NewRunner(cmdCtx, options, dockerOptions, getter)
	if err != nil {
		return nil, err
	}

	// Main timer
	mainTimer := util.NewTimer()
	timer := util.NewTimer()

	// These will be emitted at the end of the execution, we're going to be
	// pessimistic and report that we failed, unless overridden at the end
	// of the execution.
	fullPipelineFinisher := r.StartFullPipeline(options)
	pipelineArgs := &core.FullPipelineFinishedArgs{}
	defer fullPipelineFinisher.Finish(pipelineArgs)

	buildFinisher := r.StartBuild(options)
	buildFinishedArgs := &core.BuildFinishedArgs{Box: nil, Result: "failed"}
	defer buildFinisher.Finish(buildFinishedArgs)

	// Debug information
	DumpOptions(options)

	// Start copying code
	logger.Println(f.Info("Executing pipeline", options.Pipeline))
	timer.Reset()
	_, err = r.EnsureCode()
	if err != nil {
		e.Emit(core.Logs, &core.LogsArgs{
			Stream: "stderr",
			Logs:   err.Error() + "\n",
		})
		return nil, soft.Exit(err)
	}
	err = r.CleanupOldBuilds()
	if err != nil {
		e.Emit(core.Logs, &core.LogsArgs{
			Stream: "stderr",
			Logs:   err.Error() + "\n",
		})
	}
	logger.Printf(f.Success("Copied working directory", timer.String()))

	// Setup environment is still a fairly special step, it needs to start
	// our boxes and get everything set up
	logger.Println(f.Info("Running step", "setup environment"))
	timer.Reset()
	shared, err := r.SetupEnvironment(cmdCtx)
	if shared != nil && shared.box != nil {
		if options.ShouldRemove {
			defer shared.box.Clean()
		}
		defer shared.box.Stop()
	}
	if err != nil {
		logger.Errorln(f.Fail("Step failed", "setup environment", timer.String()))
		e.Emit(core.Logs, &core.LogsArgs{
			Stream: "stderr",
			Logs:   err.Error() + "\n",
		})
		return nil, soft.Exit(err)
	}
	if options.Verbose {
		logger.Printf(f.Success("Step passed", "setup environment", timer.String()))
	}

	// Once SetupEnvironment has finished we want to register some signal
	// handlers to emit step ended if we get killed but aren't fast enough
	// at cleaning up the containers before our grace period ends.
	// Signals are processed LIFO so we want to register this after the
	// box cleanup.
	buildFailedHandler := &util.SignalHandler{
		ID: "build-failed",
		F: func() bool {
			logger.Errorln("Interrupt detected, sending build / pipeline failed")
			fullPipelineFinisher.Finish(pipelineArgs)
			buildFinisher.Finish(buildFinishedArgs)
			return true
		},
	}
	util.GlobalSigint().Add(buildFailedHandler)
	util.GlobalSigterm().Add(buildFailedHandler)

	box := shared.box
	buildFinishedArgs.Box = box
	pipeline := shared.pipeline

	shouldStore := options.ShouldArtifacts

	var storeStep core.Step
	if shouldStore {
		storeStep = &core.ExternalStep{
			BaseStep: core.NewBaseStep(core.BaseStepOptions{
				Name:    "store",
				Owner:   "wercker",
				Version: util.Version(),
				SafeID:  "store",
			}),
		}
	}

	e.Emit(core.BuildStepsAdded, &core.BuildStepsAddedArgs{
		Build:      pipeline,
		Steps:      pipeline.Steps(),
		StoreStep:  storeStep,
		AfterSteps: pipeline.AfterSteps(),
	})

	pr := &core.PipelineResult{
		Success:           true,
		FailedStepName:    "",
		FailedStepMessage: "",
	}
	var stepErr error

	// stepCounter starts at 3, step 1 is "get code", step 2 is "setup
	// environment".
	stepCounter := &util.Counter{Current: 3}
	for _, step := range pipeline.Steps() {
		defer step.Clean()

		logger.Printf(f.Info("Running step", step.DisplayName()))
		timer.Reset()
		sr, err := r.RunStep(cmdCtx, shared, step, stepCounter.Increment())
		if err != nil {
			stepErr = err
			pr.Success = false
			pr.FailedStepName = step.DisplayName()
			pr.FailedStepMessage = sr.Message
			logger.Printf(f.Fail("Step failed", step.DisplayName(), timer.String()))
			break
		}

		if options.Verbose {
			logger.Printf(f.Success("Step passed", step.DisplayName(), timer.String()))
		}
	}

	if options.ShouldCommit {
		_, err = box.Commit(pipeline.DockerRepo(), pipeline.DockerTag(), pipeline.DockerMessage(), true)
		if err != nil {
			logger.Errorln("Failed to commit:", err.Error())
		}
	}

	// We need to wind the counter to where it should be if we failed a
	// step so that is the number of steps + get code + setup environment
	// + store.
	stepCounter.Current = len(pipeline.Steps()) + 3

	if pr.Success && shouldStore {
		// At this point the build has effectively passed but we can still
		// mess it up by being unable to collect the artifacts.
		err = collectPipelineOutput(cmdCtx, r, e, shared, pipeline, storeStep, pr, stepCounter.Increment())
		if err != nil {
			pr.Success = false
			logger.WithField("Error", err).Error("Unable to collect pipeline output")
		}
	} else {
		stepCounter.Increment()
	}

	if pr.Success {
		logger.Println(f.Success("Steps passed", mainTimer.String()))
		buildFinishedArgs.Result = "passed"
	}
	buildFinisher.Finish(buildFinishedArgs)
	pipelineArgs.MainSuccessful = pr.Success

	// Export the result variables into the still-live session so a
	// conventional after-steps script could read them.
	if shared.sess != nil && shared.sessionCtx != nil {
		if err := pr.ExportEnvironment(shared.sessionCtx, shared.sess); err != nil {
			logger.WithField("Error", err).Debug("Unable to export pipeline result")
		}
	}

	// We're about to end the build, so pull the cache and explode it into
	// the CacheDir.
	if !options.DirectMount {
		timer.Reset()
		err = pipeline.CollectCache(cmdCtx, shared.containerID)
		if err != nil {
			logger.WithField("Error", err).Error("Unable to store cache")
		}
		if options.Verbose {
			logger.Printf(f.Success("Exported Cache", timer.String()))
		}
	}

	if pr.Success {
		logger.Println(f.Success("Pipeline finished", mainTimer.String()))
	} else {
		logger.Println(f.Fail("Pipeline failed", mainTimer.String()))
	}

	if !pr.Success {
		if stepErr != nil {
			return nil, stepErr
		}
		return nil, fmt.Errorf("Step failed: %s", pr.FailedStepName)
	}
	return shared, nil
}

// collectPipelineOutput runs the synthetic "store" step: collect the
// output directory from the container and enumerate what we got.
func collectPipelineOutput(cmdCtx context.Context, r *Runner, e *core.NormalizedEmitter, shared *RunnerShared, pipeline core.Pipeline, storeStep core.Step, pr *core.PipelineResult, order int) error {
	sr := &StepResult{
		Success:    false,
		Artifact:   nil,
		Message:    "",
		PackageURL: "",
		ExitCode:   1,
	}
	finisher := r.StartStep(shared, storeStep, order)
	defer finisher.Finish(sr)

	pr.FailedStepName = storeStep.Name()
	pr.FailedStepMessage = "Unable to collect pipeline output"

	e.Emit(core.Logs, &core.LogsArgs{
		Logs: "Storing artifacts\n",
	})

	artifact, err := pipeline.CollectArtifact(cmdCtx, shared.containerID)
	if err == util.ErrEmptyTarball {
		e.Emit(core.Logs, &core.LogsArgs{
			Logs: "No artifacts found\n",
		})
		pr.FailedStepName = ""
		pr.FailedStepMessage = ""
		sr.Success = true
		sr.ExitCode = 0
		return nil
	}
	if err != nil {
		sr.Message = err.Error()
		e.Emit(core.Logs, &core.LogsArgs{
			Logs: fmt.Sprintf("Storing artifacts failed: %s\n", sr.Message),
		})
		return err
	}

	e.Emit(core.Logs, &core.LogsArgs{
		Logs: fmt.Sprintf("Collecting files from %s\n", artifact.GuestPath),
	})

	ignoredDirectories := []string{".git", "node_modules", "vendor", "site-packages"}
	nameEmit := func(path string, info os.FileInfo, err error) error {
		relativePath := strings.TrimPrefix(path, artifact.HostPath)
		if info == nil {
			return nil
		}

		if info.IsDir() {
			if util.ContainsString(ignoredDirectories, info.Name()) {
				e.Emit(core.Logs, &core.LogsArgs{
					Logs: fmt.Sprintf(".%s/ (content omitted)\n", relativePath),
				})
				return filepath.SkipDir
			}
			return nil
		}

		e.Emit(core.Logs, &core.LogsArgs{
			Logs: fmt.Sprintf(".%s\n", relativePath),
		})
		return nil
	}

	err = filepath.Walk(artifact.HostPath, nameEmit)
	if err != nil {
		sr.Message = err.Error()
		e.Emit(core.Logs, &core.LogsArgs{
			Logs: fmt.Sprintf("Storing artifacts failed: %s\n", sr.Message),
		})
		return err
	}

	tarInfo, err := os.Stat(artifact.HostTarPath)
	if err != nil {
		if os.IsNotExist(err) {
			e.Emit(core.Logs, &core.LogsArgs{
				Logs: "No artifacts stored",
			})
		} else {
			sr.Message = err.Error()
			e.Emit(core.Logs, &core.LogsArgs{
				Logs: fmt.Sprintf("Storing artifacts failed: %s\n", sr.Message),
			})
			return err
		}
	} else {
		size, unit := util.ConvertUnit(tarInfo.Size())
		e.Emit(core.Logs, &core.LogsArgs{
			Logs: fmt.Sprintf("Total artifact size: %d %s\n", size, unit),
		})
	}

	sr.PackageURL = artifact.URL()
	e.Emit(core.Logs, &core.LogsArgs{
		Logs: "Storing artifacts complete\n",
	})

	pr.FailedStepName = ""
	pr.FailedStepMessage = ""
	sr.Success = true
	sr.ExitCode = 0
	return nil
}
