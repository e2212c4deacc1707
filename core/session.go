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

package core

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pborman/uuid"
	"github.com/y3-myint-oo/wercker/util"
	"golang.org/x/net/context"
)

// Receiver is the reading half of the session's line queue; the transport
// writes raw chunks into it.
type Receiver struct {
	queue chan string
}

// NewReceiver returns a new channel-based io.Writer
func NewReceiver(queue chan string) *Receiver {
	return &Receiver{queue: queue}
}

// Write writes to a channel
func (r *Receiver) Write(p []byte) (int, error) {
	buf := bytes.NewBuffer(p)
	r.queue <- buf.String()
	return buf.Len(), nil
}

// Sender is the writing half; the transport reads outgoing commands from
// it.
type Sender struct {
	queue chan string
}

// NewSender gives us a new channel-based io.Reader
func NewSender(queue chan string) *Sender {
	return &Sender{queue: queue}
}

// Read reads from a channel
func (s *Sender) Read(p []byte) (int, error) {
	send := <-s.queue
	i := copy(p, []byte(send))
	return i, nil
}

// Transport attaches a bidirectional stream to a container.
type Transport interface {
	Attach(context.Context, io.Reader, io.Writer, io.Writer) (context.Context, error)
}

// Session turns the raw interleaved byte stream of a container's shell
// into a reliable sequence of checked commands with recovered exit codes.
type Session struct {
	options    *PipelineOptions
	transport  Transport
	logsHidden bool
	send       chan string
	recv       chan string
	logger     *util.LogEntry
}

// NewSession returns a new interactive session to a container.
func NewSession(options *PipelineOptions, transport Transport) *Session {
	logger := util.RootLogger().WithField("Logger", "Session")
	return &Session{
		options:    options,
		transport:  transport,
		logsHidden: false,
		logger:     logger,
	}
}

func (s *Session) Transport() interface{} {
	return s.transport
}

func (s *Session) Recv() chan string {
	return s.recv
}

// Attach us to our container and set up read and write queues.
// Returns a context object for the transport so we can propagate cancels
// on errors and closed connections.
func (s *Session) Attach(runnerCtx context.Context) (context.Context, error) {
	recv := make(chan string)
	outputStream := NewReceiver(recv)
	s.recv = recv

	send := make(chan string)
	inputStream := NewSender(send)
	s.send = send

	// We treat the transport context as the session context everywhere
	return s.transport.Attach(runnerCtx, inputStream, outputStream, outputStream)
}

// HideLogs will emit Logs with args.Hidden set to true
func (s *Session) HideLogs() {
	s.logsHidden = true
}

// ShowLogs will emit Logs with args.Hidden set to false
func (s *Session) ShowLogs() {
	s.logsHidden = false
}

// Send writes the commands to the container, each followed by a newline,
// in order.
func (s *Session) Send(sessionCtx context.Context, forceHidden bool, commands ...string) error {
	e, err := EmitterFromContext(sessionCtx)
	if err != nil {
		return err
	}
	// Do a quick initial check whether we have a valid session first
	select {
	case <-sessionCtx.Done():
		s.logger.Errorln("Session finished before sending commands:", commands)
		return &SessionError{Err: sessionCtx.Err()}
	// Wait because if both cases are available golang will pick one randomly
	case <-time.After(1 * time.Millisecond):
		// Pass
	}

	for i := range commands {
		command := commands[i] + "\n"
		select {
		case <-sessionCtx.Done():
			s.logger.Errorln("Session finished before sending command:", command)
			return &SessionError{Err: sessionCtx.Err()}
		case s.send <- command:
			hidden := s.logsHidden
			if forceHidden {
				hidden = forceHidden
			}

			e.Emit(Logs, &LogsArgs{
				Hidden: hidden,
				Stream: "stdin",
				Logs:   command,
			})
		}
	}
	return nil
}

// randomSentinel generates the per-call delimiter token. It is swappable
// so tests can use a fixed one.
var randomSentinel = func() string {
	return strings.Replace(uuid.NewRandom().String(), "-", "", -1)
}

// CommandResult exists so that we can make a channel of them
type CommandResult struct {
	exit int
	recv []string
	err  error
}

// checkLine tests whether line is the sentinel echo. The comparison is
// against the whole first whitespace-separated token, never a substring,
// so step output that merely embeds the sentinel can't spoof it. A line
// whose first token is the sentinel but whose second isn't an integer is
// a protocol violation.
func checkLine(line, sentinel string) (bool, int, error) {
	fields := strings.Fields(strings.TrimRight(line, " \t\r\n"))
	if len(fields) == 0 || fields[0] != sentinel {
		return false, -999, nil
	}
	if len(fields) != 2 {
		return false, -999, &ProtocolError{Line: line}
	}
	exit, err := strconv.Atoi(fields[1])
	if err != nil {
		return false, -999, &ProtocolError{Line: line}
	}
	return true, exit, nil
}

// smartSplitLines tries really hard to make sure our sentinel string
// ends up on its own line
func smartSplitLines(line, sentinel string) []string {
	// NOTE(termie): we have to do some string mangling here to find the
	//               sentinel when stuff manages to squeeze it on to the
	//               same logical output line, it isn't pretty and makes
	//               me sad
	lines := []string{}
	splitLines := strings.Split(line, "\n")
	// If the line at least ends with a newline
	if len(splitLines) > 1 {
		// Check the second to last element
		// (the newline at the end makes an empty final element)
		possibleSentinel := splitLines[len(splitLines)-2]
		// And we expect a newline at the end
		possibleSentinel = fmt.Sprintf("%s\n", possibleSentinel)

		// does this string contain the sentinel?
		sentPos := strings.Index(possibleSentinel, sentinel)

		// If we found the sentinel, make sure it gets read as a separate line to anything that preceded it
		if sentPos >= 0 {
			// If we weren't the only line to begin with, add the rest
			if len(splitLines) > 2 {
				otherLines := strings.Join(splitLines[:len(splitLines)-2], "\n")
				otherLines = fmt.Sprintf("%s\n", otherLines)
				lines = append(lines, otherLines)
			}
			if sentPos > 0 {
				// Add the characters before the sentinel on its own line
				lines = append(lines, possibleSentinel[0:sentPos])
			}
			// add the sentinel (and whatever follows) on its own line
			lines = append(lines, possibleSentinel[sentPos:])
		} else {
			// Otherwise a sentinel was not found so just return the whole thing
			lines = append(lines, line)
		}
	} else {
		lines = append(lines, line)
	}
	return lines
}

// SendChecked sends a command group, waits for it to complete and returns
// its exit status and captured output.
// Ways to know a command is done:
//  [x] We received the sentinel echo
//  [x] The container has exited and we've exhausted the incoming data
//  [x] The session has closed and we've exhausted the incoming data
//  [x] The command has timed out
// Ways for a command to be successful:
//  [x] We received the sentinel echo with exit code 0
func (s *Session) SendChecked(sessionCtx context.Context, commands ...string) (int, []string, error) {
	e, err := EmitterFromContext(sessionCtx)
	if err != nil {
		return -1, []string{}, err
	}
	recv := []string{}
	sentinel := randomSentinel()

	sendCtx, _ := context.WithTimeout(sessionCtx, time.Duration(s.options.CommandTimeout)*time.Millisecond)

	commandComplete := make(chan CommandResult)

	// Signal channel to tell the reader to stop reading, this lets us
	// keep it reading for a small amount of time after we know something
	// has gone wrong, otherwise it misses some error messages.
	stopReading := make(chan struct{}, 1)

	// This is our main waiter, it will get an exit code, an error or a
	// timeout and then complete the command.
	exitChan := make(chan int)
	errChan := make(chan error)
	go func() {
		select {
		// We got an exit code because we got our sentinel, let's skiddaddle
		case exit := <-exitChan:
			err = nil
			if exit != 0 {
				err = fmt.Errorf("Command exited with exit code: %d", exit)
			}
			commandComplete <- CommandResult{exit: exit, recv: recv, err: err}
		case err = <-errChan:
			commandComplete <- CommandResult{exit: -1, recv: recv, err: err}
		case <-sendCtx.Done():
			// We timed out or something closed, try to read in the rest of
			// the data over the next 100 milliseconds and then return
			<-time.After(time.Duration(100) * time.Millisecond)
			stopReading <- struct{}{}
			var doneErr error
			switch sendCtx.Err() {
			case context.DeadlineExceeded:
				doneErr = &TimeoutError{Kind: "command"}
			default:
				doneErr = &SessionError{Err: sendCtx.Err()}
			}
			commandComplete <- CommandResult{exit: -1, recv: recv, err: doneErr}
		}
	}()

	// If the reader goes silent for longer than the no-response window
	// while we're still waiting, give up on the command.
	noResponseTimeout := make(chan struct{})
	go func() {
		for {
			select {
			case <-noResponseTimeout:
				continue
			case <-time.After(time.Duration(s.options.NoResponseTimeout) * time.Millisecond):
				stopReading <- struct{}{}
				errChan <- &TimeoutError{Kind: "no-response"}
				return
			}
		}
	}()

	// Read in data until we get our sentinel or are asked to stop
	go func() {
		for {
			select {
			case line := <-s.recv:
				// If we found a line reset the NoResponseTimeout timer
				noResponseTimeout <- struct{}{}
				lines := smartSplitLines(line, sentinel)
				for _, subline := range lines {
					// If we found the exit code, we're done
					foundExit, exit, perr := checkLine(subline, sentinel)
					if perr != nil {
						e.Emit(Logs, &LogsArgs{
							Hidden: true,
							Logs:   subline,
						})
						errChan <- perr
						return
					}
					if foundExit {
						e.Emit(Logs, &LogsArgs{
							Hidden: true,
							Logs:   subline,
						})
						exitChan <- exit
						return
					}
					e.Emit(Logs, &LogsArgs{
						Hidden: s.logsHidden,
						Logs:   subline,
					})
					// Blank lines aren't worth capturing.
					if strings.TrimSpace(subline) != "" {
						recv = append(recv, subline)
					}
				}
			case <-stopReading:
				return
			}
		}
	}()

	err = s.Send(sessionCtx, false, commands...)
	if err != nil {
		return -1, []string{}, err
	}
	err = s.Send(sessionCtx, true, fmt.Sprintf("echo %s $?", sentinel))
	if err != nil {
		return -1, []string{}, err
	}

	r := <-commandComplete
	return r.exit, r.recv, r.err
}
