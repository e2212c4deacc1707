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
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	dockerauth "github.com/y3-myint-oo/wercker/auth"
)

// RawBoxConfig is the unwrapper for BoxConfig
type RawBoxConfig struct {
	*BoxConfig
}

// BoxConfig is the type for boxes and services in the manifest
type BoxConfig struct {
	ID         string
	Name       string
	Tag        string
	Cmd        string
	Entrypoint string
	Volumes    string
	Env        map[string]string
	Auth       dockerauth.CheckAccessOptions `yaml:",inline"`
}

// UnmarshalYAML first attempts to unmarshal as a string to ID, otherwise
// attempts to unmarshal to the whole struct. This is what lets a manifest
// say "box: ubuntu" as well as a full "box: {id: ubuntu, tag: trusty}".
func (r *RawBoxConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	r.BoxConfig = &BoxConfig{}

	if err := unmarshal(&r.BoxConfig.ID); err == nil {
		return nil
	}

	return unmarshal(&r.BoxConfig)
}

// RawStepConfig is our unwrapper for config steps
type RawStepConfig struct {
	*StepConfig
}

// StepConfig holds a single step entry as it appeared in the manifest:
// an id plus whatever properties the user supplied for it. Name and Cwd
// are plucked out of the property bag since the runner consumes them
// directly.
type StepConfig struct {
	ID   string
	Name string
	Cwd  string
	Data map[string]string
}

func ifaceToString(dataValue interface{}) string {
	switch v := dataValue.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// UnmarshalYAML supports the two shapes a step entry may take:
//
//	steps:
//	 - string-step          # bare string, no properties
//	 - script:               # single-key map, value is the property bag
//	     code: echo hi
func (r *RawStepConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	r.StepConfig = &StepConfig{Data: map[string]string{}}

	if err := unmarshal(&r.StepConfig.ID); err == nil {
		return nil
	}

	var topMap yaml.MapSlice
	if err := unmarshal(&topMap); err != nil {
		return err
	}
	if len(topMap) != 1 {
		return fmt.Errorf("expected a single-key mapping for a step, got %d keys", len(topMap))
	}

	item := topMap[0]
	stepID, ok := item.Key.(string)
	if !ok {
		return fmt.Errorf("step id must be a string")
	}
	r.ID = stepID

	interData, ok := item.Value.(yaml.MapSlice)
	if !ok {
		// empty properties, e.g. `- script:` with no children
		return nil
	}
	for _, kv := range interData {
		key, ok := kv.Key.(string)
		if !ok {
			continue
		}
		if key == "name" {
			r.Name = ifaceToString(kv.Value)
			continue
		}
		if key == "cwd" {
			r.Cwd = ifaceToString(kv.Value)
			continue
		}
		r.Data[key] = ifaceToString(kv.Value)
	}
	return nil
}

// RawStepsConfig is a list of RawStepConfigs
type RawStepsConfig []*RawStepConfig

// RawPipelineConfig is our unwrapper for PipelineConfig
type RawPipelineConfig struct {
	*PipelineConfig
}

// PipelineConfig holds one of the manifest's `build:`/`deploy:` sections.
type PipelineConfig struct {
	Steps RawStepsConfig
}

// UnmarshalYAML reads the `steps:` sequence. Every other key is currently
// ignored but does not cause a parse failure, so forward-compatible
// pipeline keys don't break old manifests.
func (r *RawPipelineConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	aux := struct {
		Steps RawStepsConfig `yaml:"steps"`
	}{}
	if err := unmarshal(&aux); err != nil {
		return err
	}
	r.PipelineConfig = &PipelineConfig{Steps: aux.Steps}
	return nil
}

// ManifestGlobalOptions are the manifest-level knobs, read from keys at the
// manifest's top level.
type ManifestGlobalOptions struct {
	SourceDir         string `yaml:"source-dir"`
	NoResponseTimeout int    `yaml:"no-response-timeout"`
	CommandTimeout    int    `yaml:"command-timeout"`
}

// DefaultManifestGlobalOptions returns the global options with their
// built-in defaults applied.
func DefaultManifestGlobalOptions() ManifestGlobalOptions {
	return ManifestGlobalOptions{
		SourceDir:         "",
		NoResponseTimeout: 5,
		CommandTimeout:    10,
	}
}

// Config is the root of a parsed manifest (wercker.yml).
type Config struct {
	Box               *RawBoxConfig   `yaml:"box"`
	Services          []*RawBoxConfig `yaml:"services"`
	SourceDir         string          `yaml:"source-dir"`
	NoResponseTimeout *int            `yaml:"no-response-timeout"`
	CommandTimeout    *int            `yaml:"command-timeout"`
	Build             *RawPipelineConfig `yaml:"build"`
	Deploy            *RawPipelineConfig `yaml:"deploy"`

	// Extra carries any top-level keys the parser doesn't recognize, so
	// that round-tripping a manifest doesn't silently drop data.
	Extra map[string]interface{} `yaml:"-"`
}

// ManifestGlobalOptions resolves the manifest-level options, applying
// defaults for anything left unset.
func (c *Config) ManifestGlobalOptions() ManifestGlobalOptions {
	opts := DefaultManifestGlobalOptions()
	opts.SourceDir = c.SourceDir
	if c.NoResponseTimeout != nil {
		opts.NoResponseTimeout = *c.NoResponseTimeout
	}
	if c.CommandTimeout != nil {
		opts.CommandTimeout = *c.CommandTimeout
	}
	return opts
}

var configReservedWords = map[string]struct{}{
	"box":                 {},
	"services":            {},
	"source-dir":          {},
	"no-response-timeout": {},
	"command-timeout":     {},
	"build":               {},
	"deploy":              {},
}

// RawConfig is the unwrapper for Config; it captures unrecognized top-level
// keys into Config.Extra.
type RawConfig struct {
	*Config
}

// UnmarshalYAML decodes the known fields with the normal struct tags, then
// does a second pass over the raw map to stash anything left over.
func (r *RawConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	r.Config = &Config{}
	if err := unmarshal(r.Config); err != nil {
		return err
	}

	m := map[string]interface{}{}
	if err := unmarshal(&m); err != nil {
		return err
	}
	extra := map[string]interface{}{}
	for k, v := range m {
		if _, ok := configReservedWords[k]; ok {
			continue
		}
		extra[k] = v
	}
	r.Config.Extra = extra
	return nil
}

// manifestFilenames are the names FindManifest checks, in order.
var manifestFilenames = []string{"wercker.yml", ".wercker.yml"}

// FindManifest locates the pipeline manifest in one of the search
// directories and returns its contents.
func FindManifest(searchDirs []string) ([]byte, error) {
	for _, dir := range searchDirs {
		for _, name := range manifestFilenames {
			fullPath := filepath.Join(dir, name)
			data, err := ioutil.ReadFile(fullPath)
			if err == nil {
				return data, nil
			}
			if !os.IsNotExist(err) {
				return nil, &ManifestError{Reason: err.Error()}
			}
		}
	}
	return nil, &ManifestError{Reason: fmt.Sprintf("no wercker.yml found in %s", strings.Join(searchDirs, ", "))}
}

// ParseManifest parses a manifest's bytes into a Config. Box must be a
// non-empty string and, if present, build/deploy must each resolve to a
// `steps:` sequence -- anything else is a ManifestError.
func ParseManifest(data []byte) (*Config, error) {
	var raw RawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ManifestError{Reason: err.Error()}
	}
	if raw.Config == nil {
		return nil, &ManifestError{Reason: "manifest is empty"}
	}
	if raw.Box == nil || strings.TrimSpace(raw.Box.ID) == "" {
		return nil, &ManifestError{Reason: "box must be a non-empty string"}
	}
	return raw.Config, nil
}

// BuildSteps returns the build pipeline's steps with the synthetic
// wercker-init step prepended.
func (c *Config) BuildSteps() RawStepsConfig {
	return prependInit(c.Build)
}

// DeploySteps returns the deploy pipeline's steps with the synthetic
// wercker-init step prepended.
func (c *Config) DeploySteps() RawStepsConfig {
	return prependInit(c.Deploy)
}

func prependInit(p *RawPipelineConfig) RawStepsConfig {
	init := &RawStepConfig{StepConfig: &StepConfig{ID: "wercker-init", Data: map[string]string{}}}
	steps := RawStepsConfig{init}
	if p != nil {
		steps = append(steps, p.Steps...)
	}
	return steps
}
