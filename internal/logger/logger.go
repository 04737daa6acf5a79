package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log = newLogger(os.Stdout)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Init resets the logger to JSON on stdout at info level.
func Init() {
	log = newLogger(os.Stdout)
}

// Configure sets the level and, when file is non-empty, mirrors output into a
// size-rotated log file.
func Configure(level, file string) error {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	log.SetLevel(lvl)

	if file != "" {
		log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}))
	}
	return nil
}

// SetOutput redirects log output; tests use it to capture entries.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

func SetLevel(level logrus.Level) {
	log.SetLevel(level)
}

// fields converts alternating key/value pairs into logrus fields. A dangling
// key is logged under "extra".
func fields(keyvals []any) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 >= len(keyvals) {
			f["extra"] = keyvals[i]
			break
		}
		key := fmt.Sprint(keyvals[i])
		if err, ok := keyvals[i+1].(error); ok {
			f[key] = err.Error()
			continue
		}
		f[key] = keyvals[i+1]
	}
	return f
}

func Info(msg string, keyvals ...any) {
	log.WithFields(fields(keyvals)).Info(msg)
}

func Infof(format string, v ...any) {
	log.Infof(format, v...)
}

func Warn(msg string, keyvals ...any) {
	log.WithFields(fields(keyvals)).Warn(msg)
}

func Warnf(format string, v ...any) {
	log.Warnf(format, v...)
}

func Error(msg string, keyvals ...any) {
	log.WithFields(fields(keyvals)).Error(msg)
}

func Errorf(format string, v ...any) {
	log.Errorf(format, v...)
}

func Debug(msg string, keyvals ...any) {
	log.WithFields(fields(keyvals)).Debug(msg)
}

func Debugf(format string, v ...any) {
	log.Debugf(format, v...)
}

func Fatal(msg string, keyvals ...any) {
	log.WithFields(fields(keyvals)).Fatal(msg)
}

func Fatalf(format string, v ...any) {
	log.Fatalf(format, v...)
}

func WithError(err error) *logrus.Entry {
	return log.WithError(err)
}

func WithFields(f map[string]interface{}) *logrus.Entry {
	return log.WithFields(logrus.Fields(f))
}
