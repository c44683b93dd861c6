package logsvc

import (
	"log"
	"os"

	"github.com/trezcool/homeworkchat/core"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (lvl Level) String() string {
	if lvl < LevelDebug || lvl > LevelFatal {
		return "UNKNOWN"
	}
	return levelNames[lvl]
}

// StdLogger writes leveled entries to a std logger, dropping those below its level.
type StdLogger struct {
	std   *log.Logger
	level Level
	exit  func(code int)
}

var _ core.Logger = (*StdLogger)(nil)

func NewStdLogger(std *log.Logger, level Level) *StdLogger {
	return &StdLogger{std: std, level: level, exit: os.Exit}
}

func (l StdLogger) log(lvl Level, msg string, args []interface{}) {
	if lvl < l.level {
		return
	}
	printEntry(l.std, lvl.String()+" ", msg, args)
}

func (l StdLogger) Debug(msg string, args ...interface{}) { l.log(LevelDebug, msg, args) }
func (l StdLogger) Info(msg string, args ...interface{})  { l.log(LevelInfo, msg, args) }
func (l StdLogger) Warn(msg string, args ...interface{})  { l.log(LevelWarn, msg, args) }
func (l StdLogger) Error(msg string, args ...interface{}) { l.log(LevelError, msg, args) }

func (l StdLogger) Fatal(msg string, args ...interface{}) {
	l.log(LevelFatal, msg, args)
	l.exit(1)
}

func printEntry(std *log.Logger, prefix, msg string, args []interface{}) {
	std.Println(prefix + msg)
	for _, arg := range args {
		if p, ok := arg.(core.Person); ok {
			if p.ID != "" {
				std.Printf("person: %s\n", p.ID)
			}
			continue
		}
		std.Printf("%+v\n", arg)
	}
}
