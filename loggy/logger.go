package loggy

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level orders the designators a Logger will emit.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) designator() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO "
	case LevelWarn:
		return "WARN "
	case LevelError:
		return "ERROR"
	}
	return "FATAL"
}

// Well known logger ids.
const (
	App = iota
	Flux
	Nibble
	Tracks
	Shell
)

var ECHO bool = false
var SILENT bool = false
var LogFolder string = ""
var MinLevel Level = LevelInfo

type Logger struct {
	mu  sync.Mutex
	out io.Writer
	id  int
	app string
}

var loggers map[int]*Logger
var loggersMu sync.Mutex
var app string = "trackm8"

func Get(id int) *Logger {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	if loggers == nil {
		loggers = make(map[int]*Logger)
	}
	l, ok := loggers[id]
	if !ok {
		l = NewLogger(id, app)
		loggers[id] = l
	}
	return l
}

// Reset forgets all loggers, so the next Get picks up a changed LogFolder.
func Reset() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if c, ok := l.out.(io.Closer); ok {
			c.Close()
		}
	}
	loggers = nil
}

// NewLogger opens a log file under LogFolder; with no folder configured the
// logger only echoes.
func NewLogger(id int, app string) *Logger {

	if app == "" {
		app = "trackm8"
	}

	l := &Logger{
		id:  id,
		app: app,
		out: io.Discard,
	}

	if LogFolder != "" {
		filename := fmt.Sprintf("%s_%d_%s.log", app, id, fts())
		if err := os.MkdirAll(LogFolder, 0755); err == nil {
			if f, err := os.Create(filepath.Join(LogFolder, filename)); err == nil {
				l.out = f
			}
		}
	}

	return l
}

// NewWriterLogger logs to w regardless of LogFolder.
func NewWriterLogger(id int, w io.Writer) *Logger {
	return &Logger{id: id, app: app, out: w}
}

func ts() string {
	t := time.Now()
	return fmt.Sprintf(
		"%.4d/%.2d/%.2d %.2d:%.2d:%.2d",
		t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(),
	)
}

func fts() string {
	t := time.Now()
	return fmt.Sprintf(
		"%.4d%.2d%.2d%.2d%.2d%.2d",
		t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(),
	)
}

func (l *Logger) emit(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	io.WriteString(l.out, line)
	if f, ok := l.out.(*os.File); ok {
		f.Sync()
	}

	if ECHO && !SILENT {
		os.Stderr.WriteString(line)
	}
}

func (l *Logger) llogf(level Level, format string, v ...interface{}) {

	if level < MinLevel {
		return
	}

	format = ts() + " " + level.designator() + " :: " + format

	if !strings.HasSuffix(format, "\n") {
		format += "\n"
	}

	l.emit(fmt.Sprintf(format, v...))

}

func (l *Logger) llog(level Level, v ...interface{}) {

	if level < MinLevel {
		return
	}

	format := ts() + " " + level.designator() + " :: "
	for _, vv := range v {
		format += fmt.Sprintf("%v ", vv)
	}
	if !strings.HasSuffix(format, "\n") {
		format += "\n"
	}

	l.emit(format)
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return level >= MinLevel
}

func (l *Logger) Tracef(format string, v ...interface{}) {
	l.llogf(LevelTrace, format, v...)
}

func (l *Logger) Logf(format string, v ...interface{}) {
	l.llogf(LevelInfo, format, v...)
}

func (l *Logger) Log(v ...interface{}) {
	l.llog(LevelInfo, v...)
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	l.llogf(LevelWarn, format, v...)
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	l.llogf(LevelError, format, v...)
}

func (l *Logger) Error(v ...interface{}) {
	l.llog(LevelError, v...)
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	l.llogf(LevelDebug, format, v...)
}

func (l *Logger) Debug(v ...interface{}) {
	l.llog(LevelDebug, v...)
}

func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.llogf(LevelFatal, format, v...)
}

func (l *Logger) Fatal(v ...interface{}) {
	l.llog(LevelFatal, v...)
}
