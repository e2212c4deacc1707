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

package util

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/suite"
	cli "gopkg.in/urfave/cli.v1"
)

func flagSet(name string, flags []cli.Flag) *flag.FlagSet {
	set := flag.NewFlagSet(name, flag.ContinueOnError)
	for _, f := range flags {
		f.Apply(set)
	}
	return set
}

type CLISuite struct {
	*TestSuite
}

func TestCLISuite(t *testing.T) {
	suiteTester := &CLISuite{&TestSuite{}}
	suite.Run(t, suiteTester)
}

func (s *CLISuite) TestCheapSettings() {
	settings := NewCheapSettings(map[string]interface{}{
		"astring": "mystring",
		"abool":   true,
		"afloat":  1.5,
		"anint":   7,
		"aslice":  []string{"a", "b"},
	})

	v, ok := settings.String("astring")
	s.True(ok)
	s.Equal("mystring", v)

	b, ok := settings.Bool("abool")
	s.True(ok)
	s.True(b)

	f, ok := settings.Float64("afloat")
	s.True(ok)
	s.Equal(1.5, f)

	i, ok := settings.Int("anint")
	s.True(ok)
	s.Equal(7, i)

	sl, ok := settings.StringSlice("aslice")
	s.True(ok)
	s.Equal([]string{"a", "b"}, sl)
}

func (s *CLISuite) TestCheapSettingsDefaults() {
	settings := NewCheapSettings(map[string]interface{}{})

	v, ok := settings.String("missing", "fallback")
	s.False(ok)
	s.Equal("fallback", v)

	b, ok := settings.BoolT("missing")
	s.False(ok)
	s.True(b)

	_, ok = settings.Int("missing")
	s.False(ok)
}

func (s *CLISuite) TestCheapSettingsWrongType() {
	settings := NewCheapSettings(map[string]interface{}{"key": 42})
	v, ok := settings.String("key")
	s.False(ok)
	s.Equal("", v)
}

func (s *CLISuite) TestCLISettingsTarget() {
	flags := []cli.Flag{
		cli.StringFlag{Name: "working-dir", Value: "."},
	}
	set := flagSet("test", flags)
	s.Nil(set.Parse([]string{"myowner/myproject"}))
	ctx := cli.NewContext(nil, set, nil)
	settings := NewCLISettings(ctx)

	target, ok := settings.String("target")
	s.True(ok)
	s.Equal("myowner/myproject", target)

	wd, _ := settings.String("working-dir")
	s.Equal(".", wd)
}
