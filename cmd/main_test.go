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
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"
	"github.com/y3-myint-oo/wercker/core"
	"github.com/y3-myint-oo/wercker/util"
)

type MainSuite struct {
	*util.TestSuite
}

func TestMainSuite(t *testing.T) {
	suiteTester := &MainSuite{&util.TestSuite{}}
	suite.Run(t, suiteTester)
}

func (s *MainSuite) TestExitCodeForError() {
	s.Equal(exitOK, exitCodeForError(nil))
	s.Equal(exitStepFailed, exitCodeForError(&core.StepFailed{StepID: "x", ExitCode: 7}))
	s.Equal(exitWorkspace, exitCodeForError(&core.ManifestError{Reason: "bad"}))
	s.Equal(exitWorkspace, exitCodeForError(&core.WorkspaceError{Path: "/x"}))
	s.Equal(exitWorkspace, exitCodeForError(&core.StepResolveError{StepID: "x"}))
	s.Equal(exitImage, exitCodeForError(&core.ImageError{Image: "ubuntu"}))
	s.Equal(exitImage, exitCodeForError(&core.ContainerError{Op: "create"}))
	s.Equal(exitSession, exitCodeForError(&core.SessionError{}))
	s.Equal(exitSession, exitCodeForError(&core.ProtocolError{Line: "x"}))
	s.Equal(exitSession, exitCodeForError(&core.TimeoutError{Kind: "command"}))
	// Unclassified errors count as a failed run.
	s.Equal(exitStepFailed, exitCodeForError(fmt.Errorf("mystery")))
}

func (s *MainSuite) TestExitCodeForWrappedError() {
	wrapped := errors.Wrap(&core.ImageError{Image: "ubuntu"}, "fetching box")
	s.Equal(exitImage, exitCodeForError(wrapped))
}
