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
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh/terminal"
)

const (
	colorNone   = 0
	colorRed    = 31
	colorYellow = 33
	colorBlue   = 34
)

// Logger wraps logrus so the rest of the codebase doesn't refer to its
// types directly.
type Logger struct {
	*logrus.Logger
}

// LogFields is logrus.Fields re-exported.
type LogFields logrus.Fields

// LogEntry wraps logrus.Entry.
type LogEntry struct {
	*logrus.Entry
}

// NewLogger returns a fresh Logger.
func NewLogger() *Logger {
	return &Logger{logrus.New()}
}

// SetLevel sets the level from a string, defaulting to panic on garbage.
func (l *Logger) SetLevel(level string) {
	l.Level, _ = logrus.ParseLevel(level)
}

// WithFields returns an entry carrying fields.
func (l *Logger) WithFields(fields LogFields) *LogEntry {
	return &LogEntry{l.Logger.WithFields(logrus.Fields(fields))}
}

// WithField returns an entry carrying a single field.
func (l *Logger) WithField(key string, value interface{}) *LogEntry {
	return &LogEntry{l.Logger.WithField(key, value)}
}

// WithField adds a field to an entry.
func (e *LogEntry) WithField(key string, value interface{}) *LogEntry {
	return &LogEntry{e.Entry.WithField(key, value)}
}

// WithFields adds fields to an entry.
func (e *LogEntry) WithFields(fields LogFields) *LogEntry {
	return &LogEntry{e.Entry.WithFields(logrus.Fields(fields))}
}

var rootLogger = NewLogger()

// RootLogger returns the process-wide logger; packages hang their
// per-component entries off of it via WithField("Logger", ...).
func RootLogger() *Logger {
	return rootLogger
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return terminal.IsTerminal(int(f.Fd()))
	}
	return false
}

var baseTimestamp = time.Now()

func miniTS() int {
	return int(time.Since(baseTimestamp) / time.Second)
}

// NOTE(termie): Pretty much everything below here is slightly modified
//               copy-paste from logrus, it doesn't offer a very easy way
//               to modify the output template

// TerseFormatter prints just the message, prefixing a colored level tag
// for warnings and errors.
type TerseFormatter struct {
	// Set to true to bypass checking for a TTY before outputting colors.
	ForceColors   bool
	DisableColors bool
}

// Format tersely.
func (f *TerseFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := &bytes.Buffer{}
	isColored := (f.ForceColors || isTerminal(entry.Logger.Out)) && !f.DisableColors

	levelColor := colorNone
	switch entry.Level {
	case logrus.WarnLevel:
		levelColor = colorYellow
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		levelColor = colorRed
	}

	if levelColor != colorNone {
		levelText := strings.ToUpper(entry.Level.String())
		if isColored {
			fmt.Fprintf(b, "\x1b[%dm%s\x1b[0m ", levelColor, levelText)
		} else {
			fmt.Fprintf(b, "%s ", levelText)
		}
	}
	fmt.Fprint(b, entry.Message)
	if v, ok := entry.Data["Error"]; ok {
		if isColored {
			fmt.Fprintf(b, " \x1b[%dmError\x1b[0m=%v", levelColor, v)
		} else {
			fmt.Fprintf(b, "Error=%v", v)
		}
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

// VerboseFormatter prints level, a rough timestamp, the source component
// and caller, and every field.
type VerboseFormatter struct {
	// Set to true to bypass checking for a TTY before outputting colors.
	ForceColors   bool
	DisableColors bool
	// Set to true to disable timestamp logging (useful when the output
	// is redirected to a logging system already adding a timestamp)
	DisableTimestamp bool
}

// Format verbosely.
func (f *VerboseFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var keys []string
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b := &bytes.Buffer{}
	isColored := (f.ForceColors || isTerminal(entry.Logger.Out)) && !f.DisableColors

	if isColored {
		f.printColored(b, entry, keys)
	} else {
		if !f.DisableTimestamp {
			appendKeyValue(b, "time", entry.Time.Format(time.RFC3339))
		}
		appendKeyValue(b, "level", entry.Level.String())
		appendKeyValue(b, "line", getCaller())
		appendKeyValue(b, "msg", entry.Message)
		for _, key := range keys {
			appendKeyValue(b, key, entry.Data[key])
		}
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *VerboseFormatter) printColored(b *bytes.Buffer, entry *logrus.Entry, keys []string) {
	levelColor := colorBlue
	switch entry.Level {
	case logrus.WarnLevel:
		levelColor = colorYellow
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		levelColor = colorRed
	}

	levelText := strings.ToUpper(entry.Level.String())[0:4]

	source, ok := entry.Data["Logger"].(string)
	if !ok {
		source = "root"
	}
	source = strings.ToLower(source)
	fmt.Fprintf(b, "\x1b[%dm%s\x1b[0m[%04d] %8.8s| %-44s ", levelColor, levelText, miniTS(), source, entry.Message)
	if v, ok := entry.Data["Error"]; ok {
		fmt.Fprintf(b, " \x1b[%dmError\x1b[0m=%v", levelColor, v)
	}
}

func isPlain(text string) bool {
	for _, ch := range text {
		if !((ch >= 'a' && ch <= 'z') ||
			(ch >= 'A' && ch <= 'Z') ||
			(ch >= '0' && ch <= '9') ||
			ch == '-' || ch == '.') {
			return false
		}
	}
	return true
}

func appendKeyValue(b *bytes.Buffer, key string, value interface{}) {
	switch v := value.(type) {
	case string:
		if isPlain(v) {
			fmt.Fprintf(b, "%v=%s ", key, v)
		} else {
			fmt.Fprintf(b, "%v=%q ", key, v)
		}
	case error:
		if isPlain(v.Error()) {
			fmt.Fprintf(b, "%v=%s ", key, v)
		} else {
			fmt.Fprintf(b, "%v=%q ", key, v)
		}
	default:
		fmt.Fprintf(b, "%v=%v ", key, value)
	}
}

func getCaller() string {
	for i := 0; i < 10; i++ {
		// Need to skip at least 2 to get out of the log calls
		_, file, line, ok := runtime.Caller(i + 2)
		if !ok {
			break
		}
		if strings.Contains(file, "logrus") ||
			strings.Contains(file, "literalloghandler") {
			continue
		}
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return ""
}
