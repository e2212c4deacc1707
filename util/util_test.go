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
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type UtilSuite struct {
	*TestSuite
}

func TestUtilSuite(t *testing.T) {
	suiteTester := &UtilSuite{&TestSuite{}}
	suite.Run(t, suiteTester)
}

func (s *UtilSuite) TestExists() {
	dir := s.WorkingDir()

	exists, err := Exists(dir)
	s.Nil(err)
	s.True(exists)

	exists, err = Exists(filepath.Join(dir, "nope"))
	s.Nil(err)
	s.False(exists)

	file := filepath.Join(dir, "afile")
	s.Nil(ioutil.WriteFile(file, []byte("x"), 0644))
	exists, err = Exists(file)
	s.Nil(err)
	s.True(exists)
}

func (s *UtilSuite) TestContainsString() {
	items := []string{"a", "b", "c"}
	s.True(ContainsString(items, "b"))
	s.False(ContainsString(items, "d"))
	s.False(ContainsString(nil, "a"))
}

func (s *UtilSuite) TestSplitSpaceOrComma() {
	s.Equal([]string{"a", "b", "c"}, SplitSpaceOrComma("a b,c"))
	s.Equal([]string{"a", "b"}, SplitSpaceOrComma("  a ,, b  "))
	s.Empty(SplitSpaceOrComma(""))
}

func (s *UtilSuite) TestMinInt() {
	s.Equal(0, MinInt())
	s.Equal(3, MinInt(3))
	s.Equal(1, MinInt(3, 1, 2))
	s.Equal(-2, MinInt(0, -2, 5))
}

func (s *UtilSuite) TestCounterIncrement() {
	c := &Counter{}
	s.Equal(0, c.Increment())
	s.Equal(1, c.Increment())
	s.Equal(2, c.Current)

	c = &Counter{Current: 3}
	s.Equal(3, c.Increment())
	s.Equal(4, c.Current)
}

func (s *UtilSuite) TestFinisherRunsOnce() {
	count := 0
	var got interface{}
	f := NewFinisher(func(result interface{}) {
		count++
		got = result
	})
	f.Finish("first")
	f.Finish("second")
	s.Equal(1, count)
	s.Equal("first", got)
}

func (s *UtilSuite) TestConvertUnit() {
	size, unit := ConvertUnit(512)
	s.Equal(int64(512), size)
	s.Equal("B", unit)

	size, unit = ConvertUnit(2048)
	s.Equal(int64(2), size)
	s.Equal("KiB", unit)

	size, unit = ConvertUnit(3 * 1024 * 1024)
	s.Equal(int64(3), size)
	s.Equal("MiB", unit)

	size, unit = ConvertUnit(5 * 1024 * 1024 * 1024)
	s.Equal(int64(5), size)
	s.Equal("GiB", unit)
}

func (s *UtilSuite) TestSortByModDate() {
	dir := s.WorkingDir()
	older := filepath.Join(dir, "older")
	newer := filepath.Join(dir, "newer")
	s.Nil(ioutil.WriteFile(older, []byte("1"), 0644))
	s.Nil(ioutil.WriteFile(newer, []byte("2"), 0644))

	// Backdate one file so ordering doesn't depend on write timing.
	past := time.Now().Add(-1 * time.Hour)
	s.Nil(os.Chtimes(older, past, past))

	infos, err := ioutil.ReadDir(dir)
	s.Nil(err)
	SortByModDate(infos)
	s.Equal("newer", infos[0].Name())
	s.Equal("older", infos[1].Name())
}

func (s *UtilSuite) TestFormatMessage() {
	f := &Formatter{ShowColors: false}
	s.Equal("--> hello", f.Info("hello"))
	s.Equal("--> hello: world", f.Info("hello", "world"))
	s.Equal("--> hello: world extra", f.Info("hello", "world", "extra"))
	s.Equal("", f.Info())

	colored := &Formatter{ShowColors: true}
	s.Contains(colored.Success("ok"), successColor)
	s.Contains(colored.Fail("bad"), failColor)
}
