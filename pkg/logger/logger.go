package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name to a LogLevel. Unknown names fall back to INFO.
func ParseLevel(name string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DEBUG, true
	case "INFO":
		return INFO, true
	case "WARN", "WARNING":
		return WARN, true
	case "ERROR":
		return ERROR, true
	case "FATAL":
		return FATAL, true
	}
	return INFO, false
}

const (
	colorReset   = "\033[0m"
	colorRed     = "\033[31m"
	colorMagenta = "\033[35m"
	colorYellow  = "\033[33m"
	colorBlue    = "\033[34m"
	colorGray    = "\033[90m"
)

// Logger is a small levelled logger. Loggers returned by Named share the
// parent's output and level.
type Logger struct {
	core       *core
	component  string
	showCaller bool
}

type core struct {
	mu         sync.Mutex
	out        io.Writer
	level      LogLevel
	prefix     string
	colorize   bool
	showTime   bool
	timeFormat string
	exit       func(int)
}

var (
	defaultLogger *Logger
	once          sync.Once
)

type Config struct {
	Level      LogLevel
	Prefix     string
	Colorize   bool
	ShowCaller bool
	ShowTime   bool
	TimeFormat string
	Output     io.Writer
}

func DefaultConfig() Config {
	return Config{
		Level:      INFO,
		Prefix:     "",
		Colorize:   true,
		ShowCaller: false,
		ShowTime:   true,
		TimeFormat: "2006-01-02 15:04:05",
		Output:     os.Stderr,
	}
}

func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = "2006-01-02 15:04:05"
	}

	return &Logger{
		core: &core{
			out:        cfg.Output,
			level:      cfg.Level,
			prefix:     cfg.Prefix,
			colorize:   cfg.Colorize,
			showTime:   cfg.ShowTime,
			timeFormat: cfg.TimeFormat,
			exit:       os.Exit,
		},
		showCaller: cfg.ShowCaller,
	}
}

// GetLogger returns the process-wide logger, configured from LOG_LEVEL and
// NO_COLOR on first use.
func GetLogger() *Logger {
	once.Do(func() {
		cfg := DefaultConfig()
		if level, ok := ParseLevel(os.Getenv("LOG_LEVEL")); ok {
			cfg.Level = level
		}
		if os.Getenv("NO_COLOR") != "" {
			cfg.Colorize = false
		}
		defaultLogger = New(cfg)
	})
	return defaultLogger
}

// Named returns a logger that tags every line with the component name.
func (l *Logger) Named(component string) *Logger {
	name := component
	if l.component != "" {
		name = l.component + "." + component
	}
	return &Logger{core: l.core, component: name, showCaller: l.showCaller}
}

func (l *Logger) SetLevel(level LogLevel) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.level = level
}

func (l *Logger) Level() LogLevel {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	return l.core.level
}

func (l *Logger) SetOutput(w io.Writer) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.out = w
}

func (l *Logger) SetColorize(colorize bool) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.colorize = colorize
}

func (l *Logger) formatMessage(level LogLevel, msg string, args ...any) string {
	c := l.core
	parts := make([]string, 0, 6)

	if c.showTime {
		parts = append(parts, time.Now().Format(c.timeFormat))
	}

	levelStr := "[" + level.String() + "]"
	if c.colorize {
		switch level {
		case DEBUG:
			levelStr = colorGray + levelStr + colorReset
		case INFO:
			levelStr = colorBlue + levelStr + colorReset
		case WARN:
			levelStr = colorYellow + levelStr + colorReset
		case ERROR:
			levelStr = colorMagenta + levelStr + colorReset
		case FATAL:
			levelStr = colorRed + levelStr + colorReset
		}
	}
	parts = append(parts, levelStr)

	if l.showCaller {
		if _, file, line, ok := runtime.Caller(3); ok {
			if idx := strings.LastIndex(file, "/"); idx >= 0 {
				file = file[idx+1:]
			}
			parts = append(parts, fmt.Sprintf("%s:%d", file, line))
		}
	}

	if c.prefix != "" {
		parts = append(parts, c.prefix)
	}
	if l.component != "" {
		parts = append(parts, l.component+":")
	}

	if len(args) > 0 {
		parts = append(parts, fmt.Sprintf(msg, args...))
	} else {
		parts = append(parts, msg)
	}

	return strings.Join(parts, " ")
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	c := l.core
	c.mu.Lock()
	if level < c.level {
		c.mu.Unlock()
		return
	}
	fmt.Fprintln(c.out, l.formatMessage(level, msg, args...))
	exit := c.exit
	c.mu.Unlock()

	if level == FATAL {
		exit(1)
	}
}

func (l *Logger) Debugf(format string, args ...any) { l.log(DEBUG, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(INFO, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(WARN, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(ERROR, format, args...) }

// Fatalf logs at FATAL level and exits the process.
func (l *Logger) Fatalf(format string, args ...any) { l.log(FATAL, format, args...) }

// Package-level helpers on the default logger

func Debugf(format string, args ...any) { GetLogger().Debugf(format, args...) }
func Infof(format string, args ...any)  { GetLogger().Infof(format, args...) }
func Warnf(format string, args ...any)  { GetLogger().Warnf(format, args...) }
func Errorf(format string, args ...any) { GetLogger().Errorf(format, args...) }
func Fatalf(format string, args ...any) { GetLogger().Fatalf(format, args...) }

func SetLevel(level LogLevel) { GetLogger().SetLevel(level) }
func SetOutput(w io.Writer)   { GetLogger().SetOutput(w) }
