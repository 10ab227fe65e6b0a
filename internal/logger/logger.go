// Package logger provides the process-wide leveled logger used by every
// sawmutest component, from the CLI entrypoint down to individual workers.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents the logging level.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

var levelColors = map[Level]string{
	DEBUG: "\033[36m", // Cyan
	INFO:  "\033[32m", // Green
	WARN:  "\033[33m", // Yellow
	ERROR: "\033[31m", // Red
	FATAL: "\033[35m", // Magenta
}

const colorReset = "\033[0m"

// LogFileName is the fixed name of the on-disk log written under the fuzz
// work directory when -l/--log is passed (work/fuzz/log.txt).
const LogFileName = "log.txt"

// Logger is the main logger instance.
type Logger struct {
	mu          sync.Mutex
	level       Level
	console     io.Writer // Console output (with color)
	file        io.Writer // File output (without color)
	fileCloser  io.Closer // non-nil when file logging owns a closeable resource
	colorEnable bool
	prefix      string
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init initializes the default logger with the specified level (console only).
func Init(levelStr string) {
	once.Do(func() {
		defaultLogger = &Logger{
			level:       parseLevel(levelStr),
			console:     os.Stdout,
			colorEnable: true,
		}
	})
}

// InitWithFile initializes the logger with both console and file output.
// The log file is written at logDir/LogFileName and rotated via lumberjack
// so a long-running fuzz campaign never grows it unbounded. Console output
// includes colors, file output does not.
func InitWithFile(levelStr string, logDir string) error {
	level := parseLevel(levelStr)

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(logDir, LogFileName)
	rotator := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    64, // megabytes
		MaxBackups: 5,
		MaxAge:     0, // no age-based expiry
		Compress:   true,
	}

	once.Do(func() {
		defaultLogger = &Logger{
			level:       level,
			console:     os.Stdout,
			file:        rotator,
			fileCloser:  rotator,
			colorEnable: true,
		}
	})

	if defaultLogger.file == nil {
		defaultLogger.mu.Lock()
		defaultLogger.file = rotator
		defaultLogger.fileCloser = rotator
		defaultLogger.level = level
		defaultLogger.mu.Unlock()
	}

	Info("Log file: %s", logPath)
	return nil
}

// Close closes the log file if open.
func Close() {
	if defaultLogger != nil && defaultLogger.fileCloser != nil {
		defaultLogger.mu.Lock()
		defaultLogger.fileCloser.Close()
		defaultLogger.fileCloser = nil
		defaultLogger.file = nil
		defaultLogger.mu.Unlock()
	}
}

// GetLogFilePath returns the current log file path, or empty string if no file logging.
func GetLogFilePath() string {
	if defaultLogger == nil {
		return ""
	}
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	if r, ok := defaultLogger.file.(*lumberjack.Logger); ok {
		return r.Filename
	}
	return ""
}

// SetLevel sets the logging level for the default logger.
func SetLevel(levelStr string) {
	if defaultLogger == nil {
		Init(levelStr)
		return
	}
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.level = parseLevel(levelStr)
}

// SetOutput sets the console output destination for the default logger.
func SetOutput(w io.Writer) {
	if defaultLogger == nil {
		Init("info")
	}
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.console = w
}

// SetColorEnable enables or disables color output.
func SetColorEnable(enable bool) {
	if defaultLogger == nil {
		Init("info")
	}
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.colorEnable = enable
}

// parseLevel converts a string to a Level.
func parseLevel(levelStr string) Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// VerbosityToLevel maps the CLI's repeatable -v/--verbose count to a Level:
// default (0) is INFO, one or more repeats is DEBUG.
func VerbosityToLevel(count int) Level {
	if count <= 0 {
		return INFO
	}
	return DEBUG
}

func (lv Level) String() string {
	if name, ok := levelNames[lv]; ok {
		return name
	}
	return "UNKNOWN"
}

// log writes a log message if the level is sufficient.
func (l *Logger) log(level Level, format string, args ...interface{}) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	message := fmt.Sprintf(format, args...)
	levelName := levelNames[level]

	if l.console != nil {
		var consoleOutput string
		if l.colorEnable {
			color := levelColors[level]
			consoleOutput = fmt.Sprintf("%s[%s]%s %s", color, levelName, colorReset, message)
		} else {
			consoleOutput = fmt.Sprintf("[%s] %s", levelName, message)
		}
		log.New(l.console, l.prefix, log.LstdFlags).Println(consoleOutput)
	}

	if l.file != nil {
		fileOutput := fmt.Sprintf("[%s] %s", levelName, message)
		log.New(l.file, l.prefix, log.LstdFlags).Println(fileOutput)
	}

	if level == FATAL {
		os.Exit(1)
	}
}

// Debug logs a debug message.
func Debug(format string, args ...interface{}) {
	if defaultLogger == nil {
		Init("info")
	}
	defaultLogger.log(DEBUG, format, args...)
}

// Info logs an info message.
func Info(format string, args ...interface{}) {
	if defaultLogger == nil {
		Init("info")
	}
	defaultLogger.log(INFO, format, args...)
}

// Warn logs a warning message.
func Warn(format string, args ...interface{}) {
	if defaultLogger == nil {
		Init("info")
	}
	defaultLogger.log(WARN, format, args...)
}

// Error logs an error message.
func Error(format string, args ...interface{}) {
	if defaultLogger == nil {
		Init("info")
	}
	defaultLogger.log(ERROR, format, args...)
}

// Fatal logs a fatal message and exits the program.
func Fatal(format string, args ...interface{}) {
	if defaultLogger == nil {
		Init("info")
	}
	defaultLogger.log(FATAL, format, args...)
}

// Reset tears down the singleton so tests can reinitialize a fresh logger.
func Reset() {
	defaultLogger = nil
	once = sync.Once{}
}
