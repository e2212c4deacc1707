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

package core

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/pborman/uuid"
	"github.com/y3-myint-oo/wercker/util"
)

// GlobalOptions are options applicable to every pipeline command.
type GlobalOptions struct {
	Debug      bool
	Verbose    bool
	ShowColors bool
	LogJSON    bool
}

// NewGlobalOptions reads the flags common to every subcommand.
func NewGlobalOptions(c util.Settings) (*GlobalOptions, error) {
	debug, _ := c.GlobalBool("debug")
	verbose, _ := c.GlobalBool("verbose")
	logJSON, _ := c.GlobalBool("log-json")
	showColors, _ := c.GlobalBool("no-colors")
	showColors = !showColors

	if debug {
		verbose = true
		showColors = false
	}

	return &GlobalOptions{
		Debug:      debug,
		Verbose:    verbose,
		ShowColors: showColors,
		LogJSON:    logJSON,
	}, nil
}

// PipelineOptions holds everything a run of the driver needs: which
// pipeline to run, the manifest location, the container path layout, and
// the session's advisory protocol timeouts.
type PipelineOptions struct {
	*GlobalOptions

	HostEnv *util.Environment

	RunID    string
	Pipeline string // "build" or "deploy"

	// DockerNetworkName is filled in by the box once it has created (or
	// found) the private network the box and its services share.
	DockerNetworkName string

	WorkingDir string

	GuestRoot  string
	MntRoot    string
	ReportRoot string
	// PipelineBasePath is set by the pipeline once it has materialized the
	// workspace; until then BasePath falls back to GuestPath("source").
	PipelineBasePath string

	ProjectPath string

	CommandTimeout    int
	NoResponseTimeout int
	ShouldArtifacts   bool
	ShouldRemove      bool
	SourceDir         string
	IgnoreFile        string

	DirectMount   bool
	EnableVolumes bool
	WerckerYml    string

	// StepRegistryURL/AuthToken configure the step-tarball fetch used to
	// resolve registered (non-script) steps against the external step
	// registry. EnableDevSteps allows "file://" step urls for local
	// step development.
	StepRegistryURL string
	AuthToken       string
	EnableDevSteps  bool

	// ShouldCommit/Repository/Tag are used by the "commit the box on
	// success" flow.
	ShouldCommit bool
	Repository   string
	Tag          string
	Message      string

	// SuppressBuildLogs turns off the literal step-output log handler.
	SuppressBuildLogs bool

	DefaultsUsed PipelineDefaultsUsed
}

// PipelineDefaultsUsed records which options were left unset so that a
// later log line can say so instead of silently guessing.
type PipelineDefaultsUsed struct {
	IgnoreFile bool
}

// guessProjectPath resolves the positional target. "owner/project" style
// targets resolve against the local projects directory when a checkout
// exists there; anything else is treated as a filesystem path.
func guessProjectPath(c util.Settings) string {
	target, _ := c.String("target")
	if target == "" {
		target = "."
	}
	checkout := filepath.Join("projects", target)
	if ok, _ := util.Exists(checkout); ok {
		target = checkout
	}
	abs, _ := filepath.Abs(target)
	return abs
}

// NewPipelineOptions reads the CLI flags and environment into a
// PipelineOptions for the given pipeline name ("build" or "deploy").
func NewPipelineOptions(c util.Settings, e *util.Environment, pipelineName string) (*PipelineOptions, error) {
	globalOpts, err := NewGlobalOptions(c)
	if err != nil {
		return nil, err
	}

	runID, _ := c.String("run-id")
	if runID == "" {
		runID = uuid.NewRandom().String()
	}

	workingDir, _ := c.String("working-dir")
	workingDir, err = filepath.Abs(workingDir)
	if err != nil {
		return nil, err
	}

	guestRoot, _ := c.String("guest-root")
	mntRoot, _ := c.String("mnt-root")
	reportRoot, _ := c.String("report-root")

	projectPath := guessProjectPath(c)
	if projectPath == workingDir {
		return nil, fmt.Errorf("project path can't be the same as the working dir")
	}

	// These timeouts are given in minutes on the command line but stored
	// as milliseconds internally, matching what Session (C5) expects.
	commandTimeoutFloat, _ := c.Float64("command-timeout")
	commandTimeout := int(commandTimeoutFloat * 1000 * 60)
	noResponseTimeoutFloat, _ := c.Float64("no-response-timeout")
	noResponseTimeout := int(noResponseTimeoutFloat * 1000 * 60)

	shouldArtifacts, _ := c.Bool("artifacts")
	shouldRemove, _ := c.Bool("no-remove")
	shouldRemove = !shouldRemove
	sourceDir, _ := c.String("source-dir")
	ignoreFile, ignoreFileSet := c.String("ignore-file")

	directMount, _ := c.Bool("direct-mount")
	enableVolumes, _ := c.Bool("enable-volumes")
	werckerYml, _ := c.String("wercker-yml")

	stepRegistryURL, _ := c.String("step-registry-url")
	authToken, _ := c.String("auth-token")
	enableDevSteps, _ := c.Bool("enable-dev-steps")

	repository, _ := c.String("commit")
	shouldCommit := repository != ""
	tag, _ := c.String("tag")
	tag = strings.Replace(tag, "/", "_", -1)
	message, _ := c.String("message")

	suppressBuildLogs, _ := c.Bool("suppress-build-logs")

	defaultsUsed := PipelineDefaultsUsed{
		IgnoreFile: !ignoreFileSet,
	}

	return &PipelineOptions{
		GlobalOptions: globalOpts,

		HostEnv: e,

		RunID:    runID,
		Pipeline: pipelineName,

		WorkingDir: workingDir,

		GuestRoot:  guestRoot,
		MntRoot:    mntRoot,
		ReportRoot: reportRoot,

		ProjectPath: projectPath,

		CommandTimeout:    commandTimeout,
		NoResponseTimeout: noResponseTimeout,
		ShouldArtifacts:   shouldArtifacts,
		ShouldRemove:      shouldRemove,
		SourceDir:         sourceDir,
		IgnoreFile:        ignoreFile,

		DirectMount:   directMount,
		EnableVolumes: enableVolumes,
		WerckerYml:    werckerYml,

		StepRegistryURL: stepRegistryURL,
		AuthToken:       authToken,
		EnableDevSteps:  enableDevSteps,

		ShouldCommit: shouldCommit,
		Repository:   repository,
		Tag:          tag,
		Message:      message,

		SuppressBuildLogs: suppressBuildLogs,

		DefaultsUsed: defaultsUsed,
	}, nil
}

// NewBuildOptions reads flags for the "build" subcommand.
func NewBuildOptions(c util.Settings, e *util.Environment) (*PipelineOptions, error) {
	return NewPipelineOptions(c, e, "build")
}

// NewDeployOptions reads flags for the "deploy" subcommand.
func NewDeployOptions(c util.Settings, e *util.Environment) (*PipelineOptions, error) {
	opts, err := NewPipelineOptions(c, e, "deploy")
	if err != nil {
		return nil, err
	}
	deployTarget, _ := c.String("deploy-target")
	if deployTarget != "" {
		opts.Pipeline = deployTarget
	}
	return opts, nil
}

// HostPath returns a path relative to the build root on the host.
func (o *PipelineOptions) HostPath(s ...string) string {
	return path.Join(o.BuildPath(), o.RunID, path.Join(s...))
}

// WorkingPath returns paths relative to our working dir (default ".").
func (o *PipelineOptions) WorkingPath(s ...string) string {
	return path.Join(o.WorkingDir, path.Join(s...))
}

// GuestPath returns a path relative to the build root on the guest.
func (o *PipelineOptions) GuestPath(s ...string) string {
	return path.Join(o.GuestRoot, path.Join(s...))
}

// BasePath returns the directory inside the container that holds the
// checked-out project source, once the workspace has materialized it.
func (o *PipelineOptions) BasePath() string {
	basePath := o.GuestPath("source")
	if o.PipelineBasePath != "" {
		basePath = o.PipelineBasePath
	}
	return basePath
}

// SourcePath returns BasePath joined with the manifest's source-dir.
func (o *PipelineOptions) SourcePath() string {
	return path.Join(o.BasePath(), o.SourceDir)
}

// MntPath returns a path relative to the read-only mount root on the guest.
func (o *PipelineOptions) MntPath(s ...string) string {
	return path.Join(o.MntRoot, path.Join(s...))
}

// ReportPath returns a path relative to the report root on the guest.
func (o *PipelineOptions) ReportPath(s ...string) string {
	return path.Join(o.ReportRoot, path.Join(s...))
}

// BuildPath returns the path on the host where run workspaces live.
func (o *PipelineOptions) BuildPath(s ...string) string {
	return o.WorkingPath("builds", path.Join(s...))
}

// CachePath returns the path on the host used for the shared build cache.
func (o *PipelineOptions) CachePath() string {
	return o.WorkingPath("cache")
}

// StepPath returns the path on the host where fetched steps are cached.
func (o *PipelineOptions) StepPath() string {
	return o.WorkingPath("steps")
}

// ContainerPath returns the path where exported containers live.
func (o *PipelineOptions) ContainerPath() string {
	return o.WorkingPath("containers")
}

// IgnoreFilePath returns the absolute path of the ignore file, if one was
// configured.
func (o *PipelineOptions) IgnoreFilePath() string {
	if o.IgnoreFile == "" {
		return ""
	}
	return path.Join(o.ProjectPath, o.IgnoreFile)
}
