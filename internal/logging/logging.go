/*
energy-audit - Energy auditing for wired and wireless loads
Copyright (C) 2026, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// LogArgs can be embedded in a go-arg Args struct.
type LogArgs struct {
	LogLevel string `arg:"-l, --log-level" default:"info" help:"Set the logging level (debug, info, warn, error)"`
}

type Logger struct {
	*logrus.Logger
}

// NewLogger returns a logger writing to stderr at the given level. An unknown
// level falls back to info.
func NewLogger(levelStr string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		l.Warnf("Unknown log level '%s', using info", levelStr)
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	return &Logger{Logger: l}
}
