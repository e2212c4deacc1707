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
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

// TestSuite is the base type for our test suites; it routes logging
// through the test runner and manages a per-test working dir.
type TestSuite struct {
	suite.Suite
	workingDir string
}

// SetupTest points the root logger at the test output.
func (s *TestSuite) SetupTest() {
	writer := NewTestLogWriter(s.T())
	rootLogger.SetLevel("debug")
	rootLogger.Out = writer
	rootLogger.Formatter = NewTestLogFormatter()
}

// TearDownTest removes the working dir if one was made.
func (s *TestSuite) TearDownTest() {
	if s.workingDir != "" {
		err := os.RemoveAll(s.workingDir)
		s.workingDir = ""
		if err != nil {
			s.T().Error(err.Error())
		}
	}
}

// WorkingDir lazily makes a temp dir for the current test.
func (s *TestSuite) WorkingDir() string {
	if s.workingDir == "" {
		s.workingDir, _ = ioutil.TempDir("", "wercker-")
	}
	return s.workingDir
}

// FailNow proxies to testing.T.FailNow.
func (s *TestSuite) FailNow() {
	s.T().FailNow()
}

// Skip proxies to testing.T.Skip.
func (s *TestSuite) Skip(msg string) {
	s.T().Skip(msg)
}

// TestLogWriter sends log output through t.Log.
type TestLogWriter struct {
	t *testing.T
}

// NewTestLogWriter constructor.
func NewTestLogWriter(t *testing.T) *TestLogWriter {
	return &TestLogWriter{t: t}
}

// Write for io.Writer.
func (l *TestLogWriter) Write(p []byte) (int, error) {
	l.t.Log(string(p))
	return len(p), nil
}

// TestLogFormatter is the text formatter minus the trailing newline,
// since t.Log adds its own.
type TestLogFormatter struct {
	*logrus.TextFormatter
}

// NewTestLogFormatter constructor.
func NewTestLogFormatter() *TestLogFormatter {
	return &TestLogFormatter{&logrus.TextFormatter{}}
}

// Format like a text log but strip the last newline.
func (f *TestLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b, err := f.TextFormatter.Format(entry)
	if err == nil {
		b = b[:len(b)-1]
	}
	return b, err
}

// Stepper synchronizes goroutines in tests: the goroutine under test
// calls Wait, the test body calls Step to release it.
type Stepper struct {
	stepper chan struct{}
}

// NewStepper constructor.
func NewStepper() *Stepper {
	return &Stepper{stepper: make(chan struct{})}
}

// Wait blocks until Step has been called.
func (s *Stepper) Wait() {
	s.stepper <- struct{}{}
	<-s.stepper
}

// Step releases a waiting goroutine, with an optional delay in
// milliseconds.
func (s *Stepper) Step(delay ...int) {
	<-s.stepper
	for _, d := range delay {
		time.Sleep(time.Duration(d) * time.Millisecond)
	}
	s.stepper <- struct{}{}
}
