// Package logger provides leveled logging on top of the standard log package.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
	"time"
)

var (
	debugMode atomic.Bool
	std       = log.New(os.Stdout, "", log.LstdFlags)
)

// SetDebugMode enables debug messages and file:line prefixes.
func SetDebugMode(debug bool) {
	debugMode.Store(debug)
	if debug {
		std.SetFlags(log.LstdFlags | log.Lshortfile)
		Debug("Debug mode enabled")
	} else {
		std.SetFlags(log.LstdFlags)
	}
}

// IsDebugMode reports whether debug messages are written.
func IsDebugMode() bool {
	return debugMode.Load()
}

// SetOutput redirects all log output.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

func Debug(format string, v ...any) {
	if debugMode.Load() {
		std.Output(2, fmt.Sprintf("[DEBUG] "+format, v...))
	}
}

func Info(format string, v ...any) {
	std.Output(2, fmt.Sprintf("[INFO] "+format, v...))
}

func Warn(format string, v ...any) {
	std.Output(2, fmt.Sprintf("[WARN] "+format, v...))
}

func Error(format string, v ...any) {
	std.Output(2, fmt.Sprintf("[ERROR] "+format, v...))
}

// LogOperation logs the outcome and duration of a pipeline stage.
func LogOperation(operation string, start time.Time, err error) {
	duration := time.Since(start).Round(time.Millisecond)
	if err != nil {
		std.Output(2, fmt.Sprintf("[ERROR] %s failed after %v: %v", operation, duration, err))
		return
	}
	std.Output(2, fmt.Sprintf("[INFO] %s completed in %v", operation, duration))
}

// LogHTTPRequest logs an outbound API call at debug level.
func LogHTTPRequest(method, url string, statusCode int, duration time.Duration) {
	Debug("HTTP %s %s -> %d (%v)", method, url, statusCode, duration)
}
