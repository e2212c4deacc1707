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
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/pborman/uuid"
	"github.com/y3-myint-oo/wercker/api"
	"github.com/y3-myint-oo/wercker/util"
	"golang.org/x/net/context"

	shutil "github.com/termie/go-shutil"
	yaml "gopkg.in/yaml.v2"
)

// StepDesc represents a wercker-step.yml, the contract between a step
// author and the user manifest.
type StepDesc struct {
	Name        string
	Version     string
	Description string
	Keywords    []string
	Properties  []StepDescProperty
}

// StepDescProperty is one entry of the "properties" section.
type StepDescProperty struct {
	Name     string
	Default  string
	Required bool
	Type     string
}

// ReadStepDesc reads and parses a wercker-step.yml.
func ReadStepDesc(descPath string) (*StepDesc, error) {
	file, err := ioutil.ReadFile(descPath)
	if err != nil {
		return nil, err
	}

	var m StepDesc
	err = yaml.Unmarshal(file, &m)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// Defaults returns the default property values as a map. A nil receiver
// (no wercker-step.yml found) yields an empty map, so steps without a
// schema simply export no schema-driven variables.
func (sc *StepDesc) Defaults() map[string]string {
	m := make(map[string]string)
	if sc == nil || sc.Properties == nil {
		return m
	}
	for _, v := range sc.Properties {
		m[v.Name] = v.Default
	}
	return m
}

// Step interface for steps.
type Step interface {
	// Bunch of getters
	DisplayName() string
	Env() *util.Environment
	Cwd() string
	ID() string
	Name() string
	Owner() string
	SafeID() string
	Version() string
	ShouldSyncEnv() bool

	// Actual methods
	Fetch() (string, error)

	InitEnv(context.Context, *util.Environment) error
	Execute(context.Context, *Session) (int, error)
	CollectFile(string, string, string, io.Writer) error
	CollectArtifact(context.Context, string) (*Artifact, error)
	ReportPath(...string) string
	Clean()
}

// BaseStepOptions are exported fields so that we can make a BaseStep from
// other packages.
type BaseStepOptions struct {
	DisplayName string
	Env         *util.Environment
	ID          string
	Name        string
	Owner       string
	SafeID      string
	Version     string
	Cwd         string
}

// BaseStep type for extending
type BaseStep struct {
	displayName string
	env         *util.Environment
	id          string
	name        string
	owner       string
	safeID      string
	version     string
	cwd         string
}

func NewBaseStep(args BaseStepOptions) *BaseStep {
	return &BaseStep{
		displayName: args.DisplayName,
		env:         args.Env,
		id:          args.ID,
		name:        args.Name,
		owner:       args.Owner,
		safeID:      args.SafeID,
		version:     args.Version,
		cwd:         args.Cwd,
	}
}

// DisplayName getter
func (s *BaseStep) DisplayName() string {
	return s.displayName
}

// Env getter
func (s *BaseStep) Env() *util.Environment {
	return s.env
}

// Cwd getter
func (s *BaseStep) Cwd() string {
	return s.cwd
}

// ID getter
func (s *BaseStep) ID() string {
	return s.id
}

// Name getter
func (s *BaseStep) Name() string {
	return s.name
}

// Owner getter
func (s *BaseStep) Owner() string {
	return s.owner
}

// SafeID getter
func (s *BaseStep) SafeID() string {
	return s.safeID
}

// Version getter
func (s *BaseStep) Version() string {
	return s.version
}

func (s *BaseStep) Clean() {

}

// ExternalStep is the holder of the Step methods.
type ExternalStep struct {
	*BaseStep
	url      string
	data     map[string]string
	stepDesc *StepDesc
	logger   *util.LogEntry
	options  *PipelineOptions
}

// stepSafeID derives the workspace directory name and env namespace for a
// step. Registered steps get the deterministic "owner_name" form so the
// same step resolves to the same directory every run; script steps get a
// fresh random token so several of them coexist in one pipeline.
func stepSafeID(owner, name string) string {
	if name == "script" {
		token := strings.Replace(uuid.NewRandom().String(), "-", "", -1)
		return fmt.Sprintf("script-%s", token[:12])
	}
	return strings.Replace(fmt.Sprintf("%s/%s", owner, name), "/", "_", -1)
}

// NewStep sets up the basic parts of a Step.
// Step names can come in a couple forms (x means currently supported):
//   x setup-go-environment (fetches from api)
//   x wercker/hipchat-notify (fetches from api)
//   x wercker/hipchat-notify "http://someurl/thingee.tar" (downloads tarball)
//   x setup-go-environment "file:///some_path" (uses local path)
func NewStep(stepConfig *StepConfig, options *PipelineOptions) (*ExternalStep, error) {
	var identifier string
	var name string
	var owner string
	var version string

	url := ""

	stepID := stepConfig.ID
	data := stepConfig.Data

	// Check for urls
	_, err := fmt.Sscanf(stepID, "%s %q", &identifier, &url)
	if err != nil {
		// There was probably no url part
		identifier = stepID
	}

	// Check for owner/name
	parts := strings.SplitN(identifier, "/", 2)
	if len(parts) > 1 {
		owner = parts[0]
		name = parts[1]
	} else {
		// No owner, "wercker" is the default
		owner = "wercker"
		name = identifier
	}

	versionParts := strings.SplitN(name, "@", 2)
	if len(versionParts) == 2 {
		name = versionParts[0]
		version = versionParts[1]
	} else {
		version = "*"
	}

	if name == "script" {
		version = util.Version()
	}

	safeID := stepSafeID(owner, name)

	// If there is a name in data, make it our displayName and delete it
	displayName := stepConfig.Name
	if displayName == "" {
		displayName = name
	}

	logger := util.RootLogger().WithFields(util.LogFields{
		"Logger": "Step",
		"SafeID": safeID,
	})

	return &ExternalStep{
		BaseStep: &BaseStep{
			displayName: displayName,
			env:         util.NewEnvironment(),
			id:          identifier,
			name:        name,
			owner:       owner,
			safeID:      safeID,
			version:     version,
			cwd:         stepConfig.Cwd,
		},
		options: options,
		data:    data,
		url:     url,
		logger:  logger,
	}, nil
}

// IsScript reports whether this is an inline shell step.
func (s *ExternalStep) IsScript() bool {
	return s.name == "script"
}

// normalizeCode splits the inline code on newlines and inserts a bash
// shebang as line zero unless the user supplied their own. Trailing
// newlines survive, and running it twice changes nothing.
func normalizeCode(code string) string {
	lines := strings.Split(code, "\n")
	if !strings.HasPrefix(lines[0], "#!") {
		lines = append([]string{"#!/bin/bash -xe"}, lines...)
	}
	return strings.Join(lines, "\n")
}

// LocalSymlink makes sure we have an easy to use local symlink
func (s *ExternalStep) LocalSymlink() {
	name := strings.Replace(s.DisplayName(), " ", "-", -1)
	checkName := fmt.Sprintf("step-%s", name)
	checkPath := s.options.HostPath(checkName)

	counter := 1
	newPath := checkPath
	for {
		already, _ := util.Exists(newPath)
		if !already {
			os.Symlink(s.HostPath(), newPath)
			break
		}

		newPath = fmt.Sprintf("%s-%d", checkPath, counter)
		counter++
	}
}

// FetchScript writes the inline code of a script step into the step's
// workspace directory as run.sh.
func (s *ExternalStep) FetchScript() (string, error) {
	hostStepPath := s.options.HostPath(s.safeID)
	scriptPath := s.options.HostPath(s.safeID, "run.sh")
	content := normalizeCode(s.data["code"])

	err := os.MkdirAll(hostStepPath, 0755)
	if err != nil {
		return "", &WorkspaceError{Path: hostStepPath, Err: err}
	}

	err = ioutil.WriteFile(scriptPath, []byte(content), 0755)
	if err != nil {
		return "", &WorkspaceError{Path: scriptPath, Err: err}
	}

	return hostStepPath, nil
}

// Fetch makes the step's payload available in the workspace: script steps
// get their code written out, registered steps are resolved against the
// step cache (fetching from the registry on a miss) and copied in.
func (s *ExternalStep) Fetch() (string, error) {
	if s.IsScript() {
		return s.FetchScript()
	}

	stepPath := filepath.Join(s.options.StepPath(), s.CachedName())
	stepExists, err := util.Exists(stepPath)
	if err != nil {
		return "", err
	}

	if !stepExists {
		err = s.resolve(stepPath)
		if err != nil {
			return "", &StepResolveError{StepID: s.ID(), Err: err}
		}
	}

	hostStepPath := s.HostPath()

	err = shutil.CopyTree(stepPath, hostStepPath, nil)
	if err != nil {
		return "", &WorkspaceError{Path: hostStepPath, Err: err}
	}

	// Now that we have the payload, load the property schema if the step
	// ships one.
	desc, err := ReadStepDesc(s.HostPath("wercker-step.yml"))
	if err != nil && !os.IsNotExist(err) {
		s.logger.Warnln("Reading wercker-step.yml:", err)
	}
	if err == nil {
		s.stepDesc = desc
	}
	return hostStepPath, nil
}

// resolve populates the step cache entry at stepPath from the registry or
// a local file url.
func (s *ExternalStep) resolve(stepPath string) error {
	client := api.NewWerckerStepRegistry(s.options.StepRegistryURL, s.options.AuthToken)

	if s.url == "" {
		// Look up the tarball location first.
		stepInfo, err := client.GetStepVersion(s.Owner(), s.Name(), s.Version())
		if err != nil {
			if apiErr, ok := err.(*api.APIError); ok && apiErr.StatusCode == 404 {
				return fmt.Errorf("The step \"%s\" was not found", s.ID())
			}
			return err
		}
		s.url = stepInfo.TarballURL
	}

	// If we have a file uri just symlink it into the cache.
	if strings.HasPrefix(s.url, "file://") {
		if !s.options.EnableDevSteps {
			return fmt.Errorf("Dev mode is not enabled so refusing to copy local file urls: %s", s.url)
		}
		localPath := s.url[len("file://"):]
		localPath, err := filepath.Abs(localPath)
		if err != nil {
			return err
		}
		os.MkdirAll(s.options.StepPath(), 0755)
		return os.Symlink(localPath, stepPath)
	}

	resp, err := client.GetTarball(s.url)
	if err != nil {
		return err
	}
	return util.Untargzip(stepPath, resp.Body)
}

// SetupGuest ensures that the guest is ready to run a Step.
func (s *ExternalStep) SetupGuest(sessionCtx context.Context, sess *Session) error {
	defer s.LocalSymlink()

	sess.HideLogs()
	defer sess.ShowLogs()
	_, _, err := sess.SendChecked(sessionCtx, fmt.Sprintf(`mkdir -p "%s"`, s.ReportPath("artifacts")))
	_, _, err = sess.SendChecked(sessionCtx, "set +e")
	_, _, err = sess.SendChecked(sessionCtx, fmt.Sprintf(`cp -r "%s" "%s"`, s.MntPath(), s.GuestPath()))
	_, _, err = sess.SendChecked(sessionCtx, `cd $WERCKER_SOURCE_DIR`)
	if s.Cwd() != "" {
		_, _, err = sess.SendChecked(sessionCtx, fmt.Sprintf(`cd "%s"`, s.Cwd()))
	}
	return err
}

// Execute sends the step's command group: env exports, optional init.sh,
// then run.sh. The step's exit status is run.sh's exit status.
func (s *ExternalStep) Execute(sessionCtx context.Context, sess *Session) (int, error) {
	err := s.SetupGuest(sessionCtx, sess)
	if err != nil {
		return 1, err
	}
	_, _, err = sess.SendChecked(sessionCtx, s.env.Export()...)
	if err != nil {
		return 1, err
	}

	if yes, _ := util.Exists(s.HostPath("init.sh")); yes {
		exit, _, err := sess.SendChecked(sessionCtx, fmt.Sprintf(`source "%s"`, s.GuestPath("init.sh")))
		if exit != 0 {
			return exit, fmt.Errorf("Step init script failed with exit code: %d", exit)
		}
		if err != nil {
			return 1, err
		}
	}

	if yes, _ := util.Exists(s.HostPath("run.sh")); yes {
		exit, _, err := sess.SendChecked(sessionCtx,
			fmt.Sprintf(`chmod +x "%s"`, s.GuestPath("run.sh")),
			fmt.Sprintf(`source "%s" < /dev/null`, s.GuestPath("run.sh")),
		)
		return exit, err
	}

	return 0, nil
}

// CollectFile noop
func (s *ExternalStep) CollectFile(containerID, path, name string, dst io.Writer) error {
	return util.ErrEmptyTarball
}

// CollectArtifact noop
func (s *ExternalStep) CollectArtifact(ctx context.Context, containerID string) (*Artifact, error) {
	return nil, nil
}

// propertyEnvKey forms WERCKER_<STEP>_<PROP>, uppercased, dashes to
// underscores.
func (s *ExternalStep) propertyEnvKey(prop string) string {
	key := fmt.Sprintf("WERCKER_%s_%s", s.name, prop)
	key = strings.Replace(key, "-", "_", -1)
	return strings.ToUpper(key)
}

// InitEnv computes the step's environment: identity and report variables
// first, then one variable per schema property (user value over schema
// default), then any extra user-supplied properties outside the schema.
func (s *ExternalStep) InitEnv(ctx context.Context, env *util.Environment) error {
	a := [][]string{
		{"WERCKER_STEP_ROOT", s.GuestPath()},
		{"WERCKER_STEP_ID", s.safeID},
		{"WERCKER_STEP_OWNER", s.owner},
		{"WERCKER_STEP_NAME", s.name},
		{"WERCKER_REPORT_MESSAGE_FILE", s.ReportPath("message.txt")},
		{"WERCKER_REPORT_ARTIFACTS_DIR", s.ReportPath("artifacts")},
	}
	s.Env().Update(a)

	for k, defaultValue := range s.stepDesc.Defaults() {
		value, ok := s.data[k]
		if !ok {
			value = defaultValue
		}
		s.Env().Add(s.propertyEnvKey(k), value)
	}

	// The schema gates defaults only, not presence: user-supplied
	// properties outside the schema still get exported.
	for k, value := range s.data {
		if k == "code" || k == "name" {
			continue
		}
		s.Env().Add(s.propertyEnvKey(k), value)
	}

	return nil
}

// CachedName returns the step cache directory name.
func (s *ExternalStep) CachedName() string {
	name := fmt.Sprintf("%s-%s", s.owner, s.name)
	if s.version != "*" {
		name = fmt.Sprintf("%s@%s", name, s.version)
	}
	return name
}

// HostPath returns a path relative to the Step on the host.
func (s *ExternalStep) HostPath(p ...string) string {
	newArgs := append([]string{s.safeID}, p...)
	return s.options.HostPath(newArgs...)
}

// GuestPath returns a path relative to the Step on the guest.
func (s *ExternalStep) GuestPath(p ...string) string {
	newArgs := append([]string{s.safeID}, p...)
	return s.options.GuestPath(newArgs...)
}

// MntPath returns a path relative to the read-only mount of the Step on
// the guest.
func (s *ExternalStep) MntPath(p ...string) string {
	newArgs := append([]string{s.safeID}, p...)
	return s.options.MntPath(newArgs...)
}

// ReportPath returns a path to the reports for the step on the guest.
func (s *ExternalStep) ReportPath(p ...string) string {
	newArgs := append([]string{s.safeID}, p...)
	return s.options.ReportPath(newArgs...)
}

// ShouldSyncEnv before this step, default FALSE
func (s *ExternalStep) ShouldSyncEnv() bool {
	return false
}
