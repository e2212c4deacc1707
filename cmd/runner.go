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

package cmd

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"time"

	gitignore "github.com/monochromegane/go-gitignore"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	shutil "github.com/termie/go-shutil"
	"github.com/y3-myint-oo/wercker/core"
	dockerlocal "github.com/y3-myint-oo/wercker/docker"
	"github.com/y3-myint-oo/wercker/event"
	"github.com/y3-myint-oo/wercker/util"
	"golang.org/x/net/context"
)

// pipelineGetter is a function that will fetch the appropriate pipeline
// object from the Config.
type pipelineGetter func(*core.Config, *core.PipelineOptions, *dockerlocal.Options) (core.Pipeline, error)

// GetBuildPipelineFactory returns a pipelineGetter that builds the
// manifest's `build:` section.
func GetBuildPipelineFactory(name string) pipelineGetter {
	return func(config *core.Config, options *core.PipelineOptions, dockerOptions *dockerlocal.Options) (core.Pipeline, error) {
		return dockerlocal.NewDockerBuild(config, options, dockerOptions)
	}
}

// GetDeployPipelineFactory returns a pipelineGetter that builds the
// manifest's `deploy:` section.
func GetDeployPipelineFactory(name string) pipelineGetter {
	return func(config *core.Config, options *core.PipelineOptions, dockerOptions *dockerlocal.Options) (core.Pipeline, error) {
		return dockerlocal.NewDockerDeploy(config, options, dockerOptions)
	}
}

// Runner is the base type for running the pipelines.
type Runner struct {
	options       *core.PipelineOptions
	dockerOptions *dockerlocal.Options
	literalLogger *event.LiteralLogHandler
	reporter      *event.ReportHandler
	getPipeline   pipelineGetter
	logger        *util.LogEntry
	emitter       *core.NormalizedEmitter
	formatter     *util.Formatter
}

// NewRunner from global options
func NewRunner(ctx context.Context, options *core.PipelineOptions, dockerOptions *dockerlocal.Options, getPipeline pipelineGetter) (*Runner, error) {
	e, err := core.EmitterFromContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not create emitter from context")
	}
	logger := util.RootLogger().WithField("Logger", "Runner")

	if options.Debug {
		dh := core.NewDebugHandler()
		dh.ListenTo(e)
	}

	var l *event.LiteralLogHandler
	if !options.SuppressBuildLogs {
		l, err = event.NewLiteralLogHandler(options)
		if err != nil {
			logger.WithError(err).Panic("Unable to create event.LiteralLogHandler")
		}
		l.ListenTo(e)
	}

	r, err := event.NewReportHandler(options)
	if err != nil {
		logger.WithError(err).Panic("Unable to create event.ReportHandler")
	}
	r.ListenTo(e)

	return &Runner{
		options:       options,
		dockerOptions: dockerOptions,
		literalLogger: l,
		reporter:      r,
		getPipeline:   getPipeline,
		logger:        logger,
		emitter:       e,
		formatter:     &util.Formatter{ShowColors: options.GlobalOptions.ShowColors},
	}, nil
}

// ProjectDir returns the directory where we expect to find the code for
// this project.
func (p *Runner) ProjectDir() string {
	if p.options.DirectMount {
		return p.options.ProjectPath
	}
	return p.options.HostPath("project")
}

// EnsureCode copies the project source into the workspace's project
// directory so that the container mounts a private copy instead of the
// caller's working tree. An ignore file at the checkout root filters the
// copy.
func (p *Runner) EnsureCode() (string, error) {
	projectDir := p.ProjectDir()
	if p.options.DirectMount {
		return projectDir, nil
	}

	ignorePaths := []string{
		p.options.WorkingDir,
		p.options.BuildPath(),
	}

	ignoreFile, _ := gitignore.NewGitIgnore(p.options.IgnoreFilePath())

	// Make sure we don't accidentally recurse or copy extra files
	ignoreFunc := func(src string, files []os.FileInfo) []string {
		ignores := []string{}
		for _, file := range files {
			abspath, err := filepath.Abs(filepath.Join(src, file.Name()))
			if err != nil {
				panic(errors.Wrapf(err, "could not create absolute path for %s/%s", src, file.Name()))
			}
			if util.ContainsString(ignorePaths, abspath) || (ignoreFile != nil && ignoreFile.Match(abspath, file.IsDir())) {
				ignores = append(ignores, file.Name())
			}
		}
		return ignores
	}

	copyOpts := &shutil.CopyTreeOptions{Ignore: ignoreFunc, CopyFunction: shutil.Copy, Symlinks: true}
	os.Rename(projectDir, fmt.Sprintf("%s-%s", projectDir, uuid.NewRandom().String()))

	p.logger.Printf(p.formatter.Info("Copying working directory to", projectDir))
	err := shutil.CopyTree(p.options.ProjectPath, projectDir, copyOpts)
	if err != nil {
		return projectDir, &core.WorkspaceError{Path: projectDir, Err: err}
	}

	return projectDir, nil
}

// CleanupOldBuilds removes builds older than a day, keeping the latest
// two regardless of age.
func (p *Runner) CleanupOldBuilds() error {
	const keepDirs = 2

	buildPath := p.options.BuildPath()

	builds, err := ioutil.ReadDir(buildPath)
	if err != nil {
		return errors.Wrapf(err, "could not read directory %s when cleaning old builds", buildPath)
	}

	// remove files (.DS_Store etc)
	dirs := builds[:0]
	for _, f := range builds {
		if f.IsDir() {
			dirs = append(dirs, f)
		}
	}

	util.SortByModDate(dirs)

	if len(dirs) < keepDirs {
		return nil
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	for _, f := range dirs[keepDirs:] {
		if f.ModTime().Before(cutoff) {
			os.RemoveAll(path.Join(buildPath, f.Name()))
		}
	}

	return nil
}

// GetConfig loads and parses the pipeline manifest, folding its global
// options into ours.
func (p *Runner) GetConfig() (*core.Config, string, error) {
	var werckerYaml []byte
	var err error
	if p.options.WerckerYml != "" {
		werckerYaml, err = ioutil.ReadFile(p.options.WerckerYml)
		if err != nil {
			return nil, "", &core.ManifestError{Reason: err.Error()}
		}
	} else {
		werckerYaml, err = core.FindManifest([]string{p.ProjectDir()})
		if err != nil {
			return nil, "", err
		}
	}

	config, err := core.ParseManifest(werckerYaml)
	if err != nil {
		return nil, "", err
	}

	if config.SourceDir != "" {
		p.options.SourceDir = config.SourceDir
	}

	// The manifest can raise the session timeouts, within reason.
	const maxTimeoutMinutes = 60
	if config.CommandTimeout != nil && *config.CommandTimeout > 0 {
		commandTimeout := util.MinInt(*config.CommandTimeout, maxTimeoutMinutes)
		p.options.CommandTimeout = commandTimeout * 60 * 1000 // minutes to milliseconds
		p.logger.Debugln("CommandTimeout set in config, new CommandTimeout:", commandTimeout)
	}
	if config.NoResponseTimeout != nil && *config.NoResponseTimeout > 0 {
		noResponseTimeout := util.MinInt(*config.NoResponseTimeout, maxTimeoutMinutes)
		p.options.NoResponseTimeout = noResponseTimeout * 60 * 1000
		p.logger.Debugln("NoResponseTimeout set in config, new NoResponseTimeout:", noResponseTimeout)
	}

	return config, string(werckerYaml), nil
}

// AddServices fetches the service images and links the services to the
// base box.
func (p *Runner) AddServices(ctx context.Context, pipeline core.Pipeline, box core.Box) error {
	f := p.formatter
	timer := util.NewTimer()
	for _, service := range pipeline.Services() {
		timer.Reset()
		if _, err := service.Fetch(ctx, pipeline.Env()); err != nil {
			return errors.Wrapf(err, "could not fetch service %s", service.GetName())
		}

		box.AddService(service)
		if p.options.Verbose {
			p.logger.Printf(f.Success(fmt.Sprintf("Fetched %s", service.GetName()), timer.String()))
		}
	}
	return nil
}

// CopyCache makes the shared cache available in the workspace via a
// symlink.
func (p *Runner) CopyCache() error {
	timer := util.NewTimer()
	f := p.formatter

	err := os.MkdirAll(p.options.CachePath(), 0755)
	if err != nil {
		return &core.WorkspaceError{Path: p.options.CachePath(), Err: err}
	}

	err = os.Symlink(p.options.CachePath(), p.options.HostPath("cache"))
	if err != nil {
		return &core.WorkspaceError{Path: p.options.HostPath("cache"), Err: err}
	}
	if p.options.Verbose {
		p.logger.Printf(f.Success("Cache -> Staging Area", timer.String()))
	}
	return nil
}

// CopySource links the copied project into the workspace as its source
// entry.
func (p *Runner) CopySource() error {
	timer := util.NewTimer()
	f := p.formatter

	err := os.MkdirAll(p.options.HostPath(), 0755)
	if err != nil {
		return &core.WorkspaceError{Path: p.options.HostPath(), Err: err}
	}

	err = os.Symlink(p.ProjectDir(), p.options.HostPath("source"))
	if err != nil {
		return &core.WorkspaceError{Path: p.options.HostPath("source"), Err: err}
	}
	if p.options.Verbose {
		p.logger.Printf(f.Success("Source -> Staging Area", timer.String()))
	}
	return nil
}

// GetSession attaches to the container and returns a session.
func (p *Runner) GetSession(runnerContext context.Context, containerID string) (context.Context, *core.Session, error) {
	dockerTransport, err := dockerlocal.NewDockerTransport(p.options, p.dockerOptions, containerID)
	if err != nil {
		return nil, nil, &core.SessionError{Err: err}
	}
	sess := core.NewSession(p.options, dockerTransport)
	sessionCtx, err := sess.Attach(runnerContext)
	if err != nil {
		return nil, nil, &core.SessionError{Err: err}
	}

	return sessionCtx, sess, nil
}

// GetPipeline constructs the pipeline the factory was configured for.
func (p *Runner) GetPipeline(rawConfig *core.Config) (core.Pipeline, error) {
	return p.getPipeline(rawConfig, p.options, p.dockerOptions)
}

// RunnerShared holds on to the information we got from setting up our
// environment.
type RunnerShared struct {
	box         core.Box
	pipeline    core.Pipeline
	sess        *core.Session
	config      *core.Config
	sessionCtx  context.Context
	containerID string
}

// StartStep emits BuildStepStarted and returns a Finisher for the end
// event.
func (p *Runner) StartStep(ctx *RunnerShared, step core.Step, order int) *util.Finisher {
	p.emitter.Emit(core.BuildStepStarted, &core.BuildStepStartedArgs{
		Box:   ctx.box,
		Step:  step,
		Order: order,
	})
	return util.NewFinisher(func(result interface{}) {
		r := result.(*StepResult)
		artifactURL := ""
		if r.Artifact != nil {
			artifactURL = r.Artifact.URL()
		}
		p.emitter.Emit(core.BuildStepFinished, &core.BuildStepFinishedArgs{
			Box:                 ctx.box,
			Successful:          r.Success,
			Message:             r.Message,
			ArtifactURL:         artifactURL,
			PackageURL:          r.PackageURL,
			WerckerYamlContents: r.WerckerYamlContents,
		})
	})
}

// StartBuild emits a BuildStarted and returns for a Finisher for the end.
func (p *Runner) StartBuild(options *core.PipelineOptions) *util.Finisher {
	p.emitter.Emit(core.BuildStarted, &core.BuildStartedArgs{Options: options})
	return util.NewFinisher(func(result interface{}) {
		r, ok := result.(*core.BuildFinishedArgs)
		if !ok {
			return
		}
		r.Options = options
		p.emitter.Emit(core.BuildFinished, r)
	})
}

// StartFullPipeline emits a FullPipelineFinished when the Finisher is
// called.
func (p *Runner) StartFullPipeline(options *core.PipelineOptions) *util.Finisher {
	return util.NewFinisher(func(result interface{}) {
		r, ok := result.(*core.FullPipelineFinishedArgs)
		if !ok {
			return
		}

		r.Options = options
		p.emitter.Emit(core.FullPipelineFinished, r)
	})
}

// SetupEnvironment does a lot of boilerplate legwork and returns a
// pipeline, box, and session. This is a bit of a long method, but it is
// pretty much the entire "setup environment" step.
func (p *Runner) SetupEnvironment(runnerCtx context.Context) (*RunnerShared, error) {
	// Register our signal handler to clean the box up
	// NOTE(termie): we're expecting that this is going to be the last handler
	//               to be run since it calls exit, in the future we might be
	//               able to do something like close the calling context and
	//               short circuit / let the rest of things play out
	var box core.Box
	boxCleanupHandler := &util.SignalHandler{
		ID: "box-cleanup",
		F: func() bool {
			p.logger.Errorln("Interrupt detected, cleaning up containers and shutting down")
			if box != nil {
				box.Stop()
				if p.options.ShouldRemove {
					box.Clean()
				}
			}
			os.Exit(1)
			return true
		},
	}
	util.GlobalSigint().Add(boxCleanupHandler)
	util.GlobalSigterm().Add(boxCleanupHandler)

	shared := &RunnerShared{}
	f := p.formatter
	timer := util.NewTimer()

	sr := &StepResult{
		Success:  false,
		Artifact: nil,
		Message:  "",
		ExitCode: 1,
	}

	setupEnvironmentStep := &core.ExternalStep{
		BaseStep: core.NewBaseStep(core.BaseStepOptions{
			Name:    "setup environment",
			Owner:   "wercker",
			Version: util.Version(),
			SafeID:  "setup environment",
		}),
	}

	var finisher *util.Finisher
	stepInterruptedHandler := &util.SignalHandler{
		ID: "setup-env-failed",
		F: func() bool {
			if finisher != nil {
				p.logger.Errorln("Interrupt detected in setup environment: sending step failed event")
				finisher.Finish(&StepResult{
					Success:  false,
					Artifact: nil,
					Message:  "Step interrupted",
					ExitCode: 1,
				})
			} else {
				p.logger.Errorln("Interrupt detected in setup environment but finisher not set yet")
			}
			return true
		},
	}
	util.GlobalSigint().Add(stepInterruptedHandler)
	defer util.GlobalSigint().Remove(stepInterruptedHandler)

	finisher = p.StartStep(shared, setupEnvironmentStep, 2)
	defer finisher.Finish(sr)

	if p.options.Verbose {
		p.emitter.Emit(core.Logs, &core.LogsArgs{
			Logs: fmt.Sprintf("Running wercker version: %s\n", util.FullVersion()),
		})
	}

	// Grab our config
	rawConfig, stringConfig, err := p.GetConfig()
	if stringConfig != "" && p.options.Verbose {
		p.emitter.Emit(core.Logs, &core.LogsArgs{
			Logs: fmt.Sprintf("Using config:\n%s\n", stringConfig),
		})
	}
	if err != nil {
		sr.Message = err.Error()
		return shared, err
	}

	shared.config = rawConfig
	sr.WerckerYamlContents = stringConfig

	// Check that the requested pipeline is defined in the manifest.
	if (p.options.Pipeline == "build" && rawConfig.Build == nil) ||
		(p.options.Pipeline != "build" && rawConfig.Deploy == nil) {
		err := &core.ManifestError{Reason: fmt.Sprintf("no pipeline named %s", p.options.Pipeline)}
		sr.Message = err.Error()
		return shared, err
	}

	// Do some sanity checks before starting
	err = dockerlocal.RequireDockerEndpoint(runnerCtx, p.dockerOptions)
	if err != nil {
		return nil, &core.ContainerError{Op: "endpoint", Err: err}
	}

	// Init the pipeline
	pipeline, err := p.GetPipeline(rawConfig)
	if err != nil {
		sr.Message = err.Error()
		return shared, err
	}

	pipeline.InitEnv(runnerCtx, p.options.HostEnv)
	shared.pipeline = pipeline

	// Fetch the box
	timer.Reset()
	box = pipeline.Box()
	_, err = box.Fetch(runnerCtx, pipeline.Env())
	if err != nil {
		sr.Message = err.Error()
		return shared, err
	}

	shared.box = box
	if p.options.Verbose {
		p.logger.Printf(f.Success(fmt.Sprintf("Fetched %s", box.GetName()), timer.String()))
	}

	// Fetch the services and add them to the box
	if err := p.AddServices(runnerCtx, pipeline, box); err != nil {
		sr.Message = err.Error()
		return shared, err
	}

	// Start setting up the pipeline dir
	p.logger.Debugln("Copying source to build directory")
	err = p.CopySource()
	if err != nil {
		sr.Message = err.Error()
		return shared, err
	}

	// ... and the cache dir
	p.logger.Debugln("Copying cache to build directory")
	err = p.CopyCache()
	if err != nil {
		sr.Message = err.Error()
		return shared, err
	}

	pipeline.LocalSymlink()

	p.logger.Debugln("Steps:", len(pipeline.Steps()))

	// Fetch the steps
	steps := pipeline.Steps()
	for _, step := range steps {
		timer.Reset()
		if _, err := step.Fetch(); err != nil {
			err = errors.Wrap(err, fmt.Sprintf("error fetching step %s", step.DisplayName()))
			sr.Message = err.Error()
			return shared, err
		}
		if p.options.Verbose {
			p.logger.Printf(f.Success("Prepared step", step.Name(), timer.String()))
		}
	}

	// ... and the after steps
	for _, step := range pipeline.AfterSteps() {
		timer.Reset()
		if _, err := step.Fetch(); err != nil {
			sr.Message = err.Error()
			return shared, errors.Wrap(err, "error fetching pipeline step")
		}
		if p.options.Verbose {
			p.logger.Printf(f.Success("Prepared step", step.Name(), timer.String()))
		}
	}

	// Boot up our main container, it will run the services
	container, err := box.Run(runnerCtx, pipeline.Env())
	if err != nil {
		sr.Message = err.Error()
		return shared, err
	}
	shared.containerID = container.ID

	p.logger.Debugln("Attaching session to base box")
	sessionCtx, sess, err := p.GetSession(runnerCtx, container.ID)
	if err != nil {
		sr.Message = err.Error()
		return shared, err
	}
	shared.sess = sess
	shared.sessionCtx = sessionCtx

	// Some helpful logging
	pipeline.LogEnvironment()

	p.logger.Debugln("Setting up guest (base box)")
	err = pipeline.SetupGuest(sessionCtx, sess)
	if err != nil {
		sr.Message = err.Error()
		return shared, err
	}

	err = pipeline.ExportEnvironment(sessionCtx, sess)
	if err != nil {
		sr.Message = err.Error()
		return shared, err
	}

	sr.Message = ""
	sr.Success = true
	sr.ExitCode = 0
	return shared, nil
}

// StepResult holds the info we need to report on steps
type StepResult struct {
	Success             bool
	Artifact            *core.Artifact
	PackageURL          string
	Message             string
	ExitCode            int
	WerckerYamlContents string
}

// RunStep runs a step and tosses error if it fails
func (p *Runner) RunStep(ctx context.Context, shared *RunnerShared, step core.Step, order int) (*StepResult, error) {
	var finisher *util.Finisher
	stepInterruptedHandler := &util.SignalHandler{
		ID: step.ID(),
		F: func() bool {
			if finisher != nil {
				p.logger.Errorf("Interrupt detected in step %s so sending step finished event\n", step.DisplayName())
				finisher.Finish(&StepResult{
					Success:  false,
					Artifact: nil,
					Message:  "Step interrupted",
					ExitCode: 1,
				})
			} else {
				p.logger.Errorf("Interrupt detected in step %s but finisher not set yet\n", step.DisplayName())
			}
			return true
		},
	}
	util.GlobalSigint().Add(stepInterruptedHandler)
	defer util.GlobalSigint().Remove(stepInterruptedHandler)

	finisher = p.StartStep(shared, step, order)
	sr := &StepResult{
		Success:  false,
		Artifact: nil,
		Message:  "",
		ExitCode: 1,
	}
	defer finisher.Finish(sr)

	if step.ShouldSyncEnv() {
		err := shared.pipeline.SyncEnvironment(shared.sessionCtx, shared.sess)
		if err != nil {
			// If an error occured, just log and ignore it
			p.logger.WithField("Error", err).Warn("Unable to sync environment")
		}
	}

	err := step.InitEnv(ctx, shared.pipeline.Env())
	if err != nil {
		sr.Message = err.Error()
		return sr, fmt.Errorf("Step initEnv failed with error message: %s", err.Error())
	}

	p.logger.Debugln("Step Environment")
	for _, pair := range step.Env().Ordered() {
		p.logger.Debugln(" ", pair[0], pair[1])
	}

	// we need to keep this err for a while, so giving it a unique name to
	// prevent accidentally overwriting it
	exit, execErr := step.Execute(shared.sessionCtx, shared.sess)
	if exit != 0 {
		sr.ExitCode = exit
	} else if execErr == nil {
		sr.Success = true
		sr.ExitCode = 0
	}

	// Grab the message
	var message bytes.Buffer
	messageErr := step.CollectFile(shared.containerID, step.ReportPath(), "message.txt", &message)
	if messageErr != nil && messageErr != util.ErrEmptyTarball {
		return sr, errors.Wrapf(messageErr, "error collecting file for container %s and path %s",
			shared.containerID, step.ReportPath())
	}
	sr.Message = message.String()

	// Grab artifacts if we want them
	if p.options.ShouldArtifacts {
		artifact, err := step.CollectArtifact(ctx, shared.containerID)
		if err != nil {
			return sr, errors.Wrapf(err, "error collecting artifacts for %s", shared.containerID)
		}

		sr.Artifact = artifact
	}

	// This is the error from the step.Execute above
	if execErr != nil {
		if sr.Message == "" {
			sr.Message = execErr.Error()
		}
		return sr, execErr
	}

	if !sr.Success {
		return sr, &core.StepFailed{StepID: step.SafeID(), ExitCode: sr.ExitCode}
	}

	return sr, nil
}
