//   Copyright © 2019, Oracle and/or its affiliates.  All rights reserved.
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
	"testing"

	"github.com/stretchr/testify/suite"
)

type SignalSuite struct {
	*TestSuite
}

func TestSignalSuite(t *testing.T) {
	suiteTester := &SignalSuite{&TestSuite{}}
	suite.Run(t, suiteTester)
}

func handlerRecording(id string, order *[]string, result bool) *SignalHandler {
	return &SignalHandler{
		ID: id,
		F: func() bool {
			*order = append(*order, id)
			return result
		},
	}
}

func (s *SignalSuite) TestAddRemove() {
	sm := NewSignalMonkey()
	var order []string

	h1 := handlerRecording("ID1", &order, true)
	h2 := handlerRecording("ID2", &order, true)

	sm.Add(h1)
	sm.Add(h2)
	s.Equal(2, len(sm.handlers))

	sm.Remove(h1)
	s.Equal(1, len(sm.handlers))
	s.Equal("ID2", sm.handlers[0].ID)

	// Removing something absent is a no-op.
	sm.Remove(h1)
	s.Equal(1, len(sm.handlers))
}

func (s *SignalSuite) TestDispatchLIFO() {
	sm := NewSignalMonkey()
	var order []string

	sm.Add(handlerRecording("first", &order, true))
	sm.Add(handlerRecording("second", &order, true))
	sm.Add(handlerRecording("third", &order, true))

	sm.Dispatch()
	s.Equal([]string{"third", "second", "first"}, order)
	s.Equal(0, len(sm.handlers))
}

func (s *SignalSuite) TestDispatchStopsOnFalse() {
	sm := NewSignalMonkey()
	var order []string

	sm.Add(handlerRecording("bottom", &order, true))
	sm.Add(handlerRecording("stopper", &order, false))
	sm.Add(handlerRecording("top", &order, true))

	sm.Dispatch()
	s.Equal([]string{"top", "stopper"}, order)
	// The handler below the stopper never ran and was left in place.
	s.Equal(1, len(sm.handlers))
	s.Equal("bottom", sm.handlers[0].ID)
}

func (s *SignalSuite) TestRemoveDuplicateIDs() {
	sm := NewSignalMonkey()
	var order []string

	sm.Add(handlerRecording("dup", &order, true))
	sm.Add(handlerRecording("keep", &order, true))
	sm.Add(handlerRecording("dup", &order, true))

	sm.Remove(&SignalHandler{ID: "dup"})
	s.Equal(1, len(sm.handlers))
	s.Equal("keep", sm.handlers[0].ID)
}
