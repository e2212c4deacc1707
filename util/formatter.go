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
	"strings"
)

const (
	successColor = "\x1b[32m"
	failColor    = "\x1b[31m"
	varColor     = "\x1b[33m"
	resetColor   = "\x1b[m"
)

// Formatter renders the "--> message: detail" status lines, optionally
// without colors.
type Formatter struct {
	ShowColors bool
}

// Info renders with no color.
func (f *Formatter) Info(messages ...string) string {
	return FormatMessage("", f.ShowColors, messages...)
}

// Success renders the first message in green.
func (f *Formatter) Success(messages ...string) string {
	return FormatMessage(successColor, f.ShowColors, messages...)
}

// Fail renders the first message in red.
func (f *Formatter) Fail(messages ...string) string {
	return FormatMessage(failColor, f.ShowColors, messages...)
}

// FormatMessage builds a status line. The first message gets color, the
// second (separated by a colon) gets varColor, any further messages are
// appended plain. No messages yields an empty string.
func FormatMessage(color string, useColors bool, messages ...string) string {
	if len(messages) == 0 {
		return ""
	}

	paint := func(c, s string) string {
		if !useColors || c == "" {
			return s
		}
		return c + s + resetColor
	}

	segments := []string{"-->", " " + paint(color, messages[0])}
	if len(messages) >= 2 {
		segments = append(segments, ": "+paint(varColor, messages[1]))
	}
	if len(messages) > 2 {
		for _, m := range messages[2:] {
			segments = append(segments, " "+m)
		}
	}
	return strings.Join(segments, "")
}
