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

// Settings abstracts flag lookup away from cli.Context so the options
// constructors can be driven from a plain map in tests instead of parsing
// real command lines.

package util

import (
	cli "gopkg.in/urfave/cli.v1"
)

// Settings is the subset of cli.Context lookups the options constructors
// actually use. Every getter reports whether the value was explicitly set.
type Settings interface {
	Int(string, ...interface{}) (int, bool)
	Float64(string, ...interface{}) (float64, bool)
	Bool(string, ...interface{}) (bool, bool)
	BoolT(string, ...interface{}) (bool, bool)
	String(string, ...interface{}) (string, bool)
	StringSlice(string, ...interface{}) ([]string, bool)

	GlobalBool(string, ...interface{}) (bool, bool)
	GlobalString(string, ...interface{}) (string, bool)
}

// CheapSettings serves lookups from a map. The optional trailing argument
// on each getter is a default for missing keys.
type CheapSettings struct {
	data map[string]interface{}
}

// NewCheapSettings constructor.
func NewCheapSettings(data map[string]interface{}) *CheapSettings {
	return &CheapSettings{data}
}

func (s *CheapSettings) lookup(name string, def ...interface{}) (interface{}, bool) {
	if v, found := s.data[name]; found {
		return v, true
	}
	if len(def) == 1 {
		return def[0], false
	}
	return nil, false
}

// Int lookup.
func (s *CheapSettings) Int(name string, def ...interface{}) (int, bool) {
	v, found := s.lookup(name, def...)
	if r, ok := v.(int); ok {
		return r, found
	}
	return 0, false
}

// Float64 lookup.
func (s *CheapSettings) Float64(name string, def ...interface{}) (float64, bool) {
	v, found := s.lookup(name, def...)
	if r, ok := v.(float64); ok {
		return r, found
	}
	return 0, false
}

// Bool lookup.
func (s *CheapSettings) Bool(name string, def ...interface{}) (bool, bool) {
	v, found := s.lookup(name, def...)
	if r, ok := v.(bool); ok {
		return r, found
	}
	return false, false
}

// BoolT lookup; defaults to true when unset.
func (s *CheapSettings) BoolT(name string, def ...interface{}) (bool, bool) {
	if len(def) == 0 {
		def = []interface{}{true}
	}
	v, found := s.lookup(name, def...)
	if r, ok := v.(bool); ok {
		return r, found
	}
	return false, false
}

// String lookup.
func (s *CheapSettings) String(name string, def ...interface{}) (string, bool) {
	v, found := s.lookup(name, def...)
	if r, ok := v.(string); ok {
		return r, found
	}
	return "", false
}

// StringSlice lookup.
func (s *CheapSettings) StringSlice(name string, def ...interface{}) ([]string, bool) {
	v, found := s.lookup(name, def...)
	if r, ok := v.([]string); ok {
		return r, found
	}
	return nil, false
}

// GlobalBool is the same as Bool; maps have no global scope.
func (s *CheapSettings) GlobalBool(name string, def ...interface{}) (bool, bool) {
	return s.Bool(name, def...)
}

// GlobalString is the same as String.
func (s *CheapSettings) GlobalString(name string, def ...interface{}) (string, bool) {
	return s.String(name, def...)
}

// CLISettings wraps a cli.Context, with "target" injected from the first
// positional argument so the options layer never touches Args directly.
type CLISettings struct {
	c     *cli.Context
	extra *CheapSettings
}

// NewCLISettings constructor.
func NewCLISettings(ctx *cli.Context) *CLISettings {
	return &CLISettings{
		c:     ctx,
		extra: NewCheapSettings(map[string]interface{}{"target": ctx.Args().First()}),
	}
}

// Int lookup.
func (s *CLISettings) Int(name string, def ...interface{}) (int, bool) {
	if v, ok := s.extra.Int(name, def...); ok {
		return v, ok
	}
	return s.c.Int(name), s.c.IsSet(name)
}

// Float64 lookup.
func (s *CLISettings) Float64(name string, def ...interface{}) (float64, bool) {
	if v, ok := s.extra.Float64(name, def...); ok {
		return v, ok
	}
	return s.c.Float64(name), s.c.IsSet(name)
}

// Bool lookup.
func (s *CLISettings) Bool(name string, def ...interface{}) (bool, bool) {
	if v, ok := s.extra.Bool(name, def...); ok {
		return v, ok
	}
	return s.c.Bool(name), s.c.IsSet(name)
}

// BoolT lookup.
func (s *CLISettings) BoolT(name string, def ...interface{}) (bool, bool) {
	if v, ok := s.extra.BoolT(name, def...); ok {
		return v, ok
	}
	return s.c.BoolT(name), s.c.IsSet(name)
}

// String lookup.
func (s *CLISettings) String(name string, def ...interface{}) (string, bool) {
	if v, ok := s.extra.String(name, def...); ok {
		return v, ok
	}
	return s.c.String(name), s.c.IsSet(name)
}

// StringSlice lookup.
func (s *CLISettings) StringSlice(name string, def ...interface{}) ([]string, bool) {
	if v, ok := s.extra.StringSlice(name, def...); ok {
		return v, ok
	}
	return s.c.StringSlice(name), s.c.IsSet(name)
}

// GlobalBool lookup.
func (s *CLISettings) GlobalBool(name string, def ...interface{}) (bool, bool) {
	if v, ok := s.extra.Bool(name, def...); ok {
		return v, ok
	}
	return s.c.GlobalBool(name), s.c.GlobalIsSet(name)
}

// GlobalString lookup.
func (s *CLISettings) GlobalString(name string, def ...interface{}) (string, bool) {
	if v, ok := s.extra.String(name, def...); ok {
		return v, ok
	}
	return s.c.GlobalString(name), s.c.GlobalIsSet(name)
}
