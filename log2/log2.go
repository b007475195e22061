// Package log2 is the debug log sink of the device:
// - log level filtering, e.g. show debug messages in tests or with log_debug=true
// - safe concurrent change of log level
// - nil *Log is a valid sink that drops everything, so production code never checks
//   whether logging is enabled
package log2

import (
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"math"
	"os"
	"strings"
	"sync/atomic"
	"testing"
)

const (
	// type specified here helped against accidentally passing flags as level
	Lmicroseconds     int = log.Lmicroseconds
	Lshortfile        int = log.Lshortfile
	LStdFlags         int = log.Ltime | Lshortfile
	LInteractiveFlags int = log.Ltime | Lshortfile | Lmicroseconds
	LServiceFlags     int = Lshortfile
	LTestFlags        int = Lshortfile | Lmicroseconds
)

type Level int32

const (
	LError Level = iota
	LInfo
	LDebug
	LAll Level = math.MaxInt32
)

type FmtFunc func(format string, args ...interface{})
type ErrorFunc func(error)

type Log struct {
	l       *log.Logger
	level   Level
	w       io.Writer
	fatalf  FmtFunc
	errfunc atomic.Value // ErrorFunc
}

// Returns nil (no-op sink) for ioutil.Discard.
func NewWriter(w io.Writer, level Level) *Log {
	if w == ioutil.Discard {
		return nil
	}
	return &Log{
		l:     log.New(w, "", LStdFlags),
		level: level,
		w:     w,
	}
}

func NewStderr(level Level) *Log { return NewWriter(os.Stderr, level) }

type FuncWriter struct{ FmtFunc }

func (self FuncWriter) Write(b []byte) (int, error) {
	self.FmtFunc("%s", b)
	return len(b), nil
}

func NewFunc(f FmtFunc, level Level) *Log { return NewWriter(FuncWriter{f}, level) }

func NewTest(t testing.TB, level Level) *Log {
	self := NewFunc(t.Logf, level)
	self.SetFlags(LTestFlags)
	self.fatalf = t.Fatalf
	return self
}

func (self *Log) Clone(level Level) *Log {
	if self == nil {
		return nil
	}
	l := NewWriter(self.w, level)
	l.SetFlags(self.l.Flags())
	l.SetPrefix(self.l.Prefix())
	l.fatalf = self.fatalf
	return l
}

func (self *Log) SetLevel(l Level) {
	if self == nil {
		return
	}
	atomic.StoreInt32((*int32)(&self.level), int32(l))
}

func (self *Log) SetFlags(f int) {
	if self == nil {
		return
	}
	self.l.SetFlags(f)
}

func (self *Log) SetPrefix(prefix string) {
	if self == nil {
		return
	}
	self.l.SetPrefix(prefix)
}

// Every Error/Errorf call is also reported to f, regardless of level.
func (self *Log) SetErrorFunc(f ErrorFunc) {
	if self == nil {
		return
	}
	self.errfunc.Store(f)
}

func (self *Log) Enabled(level Level) bool {
	if self == nil {
		return false
	}
	return atomic.LoadInt32((*int32)(&self.level)) >= int32(level)
}

func (self *Log) Log(level Level, s string) {
	if self.Enabled(level) {
		_ = self.l.Output(3, s)
	}
}
func (self *Log) Logf(level Level, format string, args ...interface{}) {
	if self.Enabled(level) {
		_ = self.l.Output(3, fmt.Sprintf(format, args...))
	}
}

// Printf and Println satisfy third party logger interfaces, e.g. paho mqtt.Logger.
func (self *Log) Printf(format string, args ...interface{}) {
	self.Logf(LInfo, format, args...)
}
func (self *Log) Println(args ...interface{}) {
	self.Log(LInfo, strings.TrimSuffix(fmt.Sprintln(args...), "\n"))
}

func (self *Log) Error(args ...interface{}) {
	if self == nil {
		return
	}
	var e error
	if len(args) == 1 {
		e, _ = args[0].(error)
	}
	if e == nil {
		e = fmt.Errorf("%s", fmt.Sprint(args...))
	}
	self.reportError(e)
	self.Log(LError, "error: "+fmt.Sprint(args...))
}
func (self *Log) Errorf(format string, args ...interface{}) {
	if self == nil {
		return
	}
	self.reportError(fmt.Errorf(format, args...))
	self.Logf(LError, "error: "+format, args...)
}
func (self *Log) Info(args ...interface{}) {
	self.Log(LInfo, fmt.Sprint(args...))
}
func (self *Log) Infof(format string, args ...interface{}) {
	self.Logf(LInfo, format, args...)
}
func (self *Log) Debug(args ...interface{}) {
	self.Log(LDebug, "debug: "+fmt.Sprint(args...))
}
func (self *Log) Debugf(format string, args ...interface{}) {
	self.Logf(LDebug, "debug: "+format, args...)
}

func (self *Log) Fatalf(format string, args ...interface{}) {
	if self == nil {
		log.Fatalf(format, args...)
	}
	if self.fatalf != nil {
		self.fatalf(format, args...)
		return
	}
	self.Logf(LError, "fatal: "+format, args...)
	os.Exit(1)
}
func (self *Log) Fatal(args ...interface{}) {
	s := fmt.Sprint(args...)
	self.Fatalf("%s", s)
}

func (self *Log) reportError(e error) {
	if f, ok := self.errfunc.Load().(ErrorFunc); ok && f != nil {
		f(e)
	}
}
