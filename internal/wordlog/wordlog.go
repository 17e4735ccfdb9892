// Package wordlog provides the leveled logger used throughout wordbase,
// generalizing smtpd's "[LEVEL] message" convention and syslog writer to a
// set of named level methods instead of ad hoc Printf prefixes.
package wordlog

import (
	"fmt"
	"io"
	"log"
	"log/syslog"
	"os"
	"regexp"
	"strconv"
)

// Config selects the logger's destination and format, mirroring smtpd's
// LogConfig: a file, syslog facility, or stderr, in that preference order.
type Config struct {
	File           string
	FileMode       string
	SyslogFacility string
	Date           bool
	Time           bool
	Microseconds   bool
	UTC            bool
	SourceFile     bool
}

var facilityMap = map[string]syslog.Priority{
	"kern": syslog.LOG_KERN, "user": syslog.LOG_USER, "mail": syslog.LOG_MAIL,
	"daemon": syslog.LOG_DAEMON, "auth": syslog.LOG_AUTH, "syslog": syslog.LOG_SYSLOG,
	"lpr": syslog.LOG_LPR, "news": syslog.LOG_NEWS, "uucp": syslog.LOG_UUCP,
	"cron": syslog.LOG_CRON, "authpriv": syslog.LOG_AUTHPRIV, "ftp": syslog.LOG_FTP,
	"local0": syslog.LOG_LOCAL0, "local1": syslog.LOG_LOCAL1, "local2": syslog.LOG_LOCAL2,
	"local3": syslog.LOG_LOCAL3, "local4": syslog.LOG_LOCAL4, "local5": syslog.LOG_LOCAL5,
	"local6": syslog.LOG_LOCAL6, "local7": syslog.LOG_LOCAL7,
}

// syslogWriter is an io.WriteCloser that dispatches each "[LEVEL] message"
// line to the matching syslog priority.
type syslogWriter struct {
	w *syslog.Writer
}

func newSyslogWriter(facility string) (*syslogWriter, error) {
	f := syslog.LOG_DAEMON
	if ff, ok := facilityMap[facility]; ok {
		f = ff
	}
	w, err := syslog.New(f|syslog.LOG_INFO, "wordbase")
	if err != nil {
		return nil, err
	}
	return &syslogWriter{w: w}, nil
}

func (s *syslogWriter) Close() error { return s.w.Close() }

var deletePrefix = regexp.MustCompile(`^wordbase: `)
var replaceLevel = regexp.MustCompile(`\[[A-Z]+\] `)

func (s *syslogWriter) Write(p []byte) (int, error) {
	stripped := deletePrefix.ReplaceAllString(string(p), "")
	level := ""
	msg := replaceLevel.ReplaceAllStringFunc(stripped, func(l string) string {
		level = l
		return ""
	})
	switch level {
	case "[DEBUG] ":
		s.w.Debug(msg)
	case "[INFO] ":
		s.w.Info(msg)
	case "[NOTICE] ":
		s.w.Notice(msg)
	case "[WARNING] ", "[WARN] ":
		s.w.Warning(msg)
	case "[ERROR] ", "[ERR] ":
		s.w.Err(msg)
	case "[CRIT] ":
		s.w.Crit(msg)
	default:
		s.w.Notice(msg)
	}
	return len(p), nil
}

// Logger wraps a *log.Logger with named level methods, each writing a
// "[LEVEL] message" line; a syslogWriter destination strips the prefix
// back out and maps it to the matching syslog priority.
type Logger struct {
	l *log.Logger
}

func wrap(l *log.Logger) *Logger { return &Logger{l: l} }

// New builds a Logger per cfg: to a file if cfg.File is set, else to
// syslog if cfg.SyslogFacility is set, else to stderr. The returned
// io.Closer must be closed on shutdown (it is a no-op for the stderr
// case).
func New(cfg Config) (*Logger, io.Closer, error) {
	flags := 0
	if cfg.Date {
		flags |= log.Ldate
	}
	if cfg.Time {
		flags |= log.Ltime
	}
	if cfg.Microseconds {
		flags |= log.Lmicroseconds
	}
	if cfg.UTC {
		flags |= log.LUTC
	}
	if cfg.SourceFile {
		flags |= log.Lshortfile
	}

	if cfg.File != "" {
		mode := os.FileMode(0644)
		if cfg.FileMode != "" {
			m, err := strconv.ParseInt(cfg.FileMode, 8, 32)
			if err != nil {
				return nil, nil, fmt.Errorf("wordlog: invalid file mode: %w", err)
			}
			mode = os.FileMode(m)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, mode)
		if err != nil {
			return nil, nil, err
		}
		return wrap(log.New(f, "wordbase: ", flags)), f, nil
	}

	if cfg.SyslogFacility != "" {
		w, err := newSyslogWriter(cfg.SyslogFacility)
		if err != nil {
			return nil, nil, err
		}
		return wrap(log.New(w, "wordbase: ", flags)), w, nil
	}

	return wrap(log.New(os.Stderr, "wordbase: ", flags)), io.NopCloser(nil), nil
}

func (l *Logger) Debugf(format string, args ...interface{})  { l.l.Printf("[DEBUG] "+format, args...) }
func (l *Logger) Infof(format string, args ...interface{})   { l.l.Printf("[INFO] "+format, args...) }
func (l *Logger) Noticef(format string, args ...interface{}) { l.l.Printf("[NOTICE] "+format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})   { l.l.Printf("[WARNING] "+format, args...) }
func (l *Logger) Errorf(format string, args ...interface{})  { l.l.Printf("[ERROR] "+format, args...) }
func (l *Logger) Critf(format string, args ...interface{})   { l.l.Printf("[CRIT] "+format, args...) }
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.l.Printf("[CRIT] "+format, args...)
	os.Exit(1)
}

// Std returns the underlying *log.Logger, for passing to code that takes a
// plain *log.Logger (such as srvmon.New).
func (l *Logger) Std() *log.Logger { return l.l }
