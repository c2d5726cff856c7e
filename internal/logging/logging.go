// Package logging builds the application logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Verbose enables debug output and caller locations.
	Verbose bool
	// File, if set, receives a copy of every entry and is rotated by size.
	File string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// New returns a logger that writes to Output and, optionally, a rotating file.
// The returned function closes the log file; it is a no-op without one.
func New(opts Options) (*logrus.Logger, func() error) {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	f := &formatter.Formatter{
		NoColors:        opts.File != "",
		TimestampFormat: "15:04:05.000",
		HideKeys:        false,
		CallerFirst:     true,
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			return fmt.Sprintf(" [%s:%d][%s()]", path.Base(f.File), f.Line, s[len(s)-1])
		},
	}
	logger.SetFormatter(f)

	if opts.Verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetReportCaller(true)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	closeFile := func() error { return nil }
	writers := []io.Writer{out}
	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    20,
			MaxAge:     7,
			MaxBackups: 3,
		}
		writers = append(writers, file)
		closeFile = file.Close
	}
	logger.SetOutput(io.MultiWriter(writers...))

	return logger, closeFile
}
