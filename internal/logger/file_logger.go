package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger represents a file logger for engine activities
type Logger struct {
	name    string
	logFile *os.File
	logger  *log.Logger
	mu      sync.Mutex
	logDir  string
	debug   bool
}

// LogLevel represents different types of log entries
type LogLevel string

const (
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARN"
	LogLevelError   LogLevel = "ERROR"
	LogLevelTrade   LogLevel = "TRADE"
	LogLevelStatus  LogLevel = "STATUS"
	LogLevelDebug   LogLevel = "DEBUG"
)

// NewLogger creates a new file logger for the named engine instance
func NewLogger(name string) (*Logger, error) {
	return NewLoggerWithDebug(name, false)
}

// NewLoggerWithDebug creates a new file logger with debug logging enabled
func NewLoggerWithDebug(name string, debug bool) (*Logger, error) {
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", name, timestamp)
	logPath := filepath.Join(logDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := &Logger{
		name:    name,
		logFile: file,
		logger:  log.New(file, "", 0),
		logDir:  logDir,
		debug:   debug,
	}

	l.writeSessionHeader()

	return l, nil
}

// writeSessionHeader writes a session start header to the log
func (l *Logger) writeSessionHeader() {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := fmt.Sprintf(`
================================================================================
🚀 TRADING ENGINE SESSION STARTED
================================================================================
Instance: %s
Started: %s
================================================================================
`, l.name, time.Now().Format("2006-01-02 15:04:05"))

	l.logger.Print(header)
}

// Log writes a formatted log entry with the specified level
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	l.logger.Println(fmt.Sprintf("[%s] [%s] %s", timestamp, level, message))
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.Log(LogLevelInfo, format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.Log(LogLevelWarning, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LogLevelError, format, args...)
}

// Trade logs a trading action
func (l *Logger) Trade(format string, args ...interface{}) {
	l.Log(LogLevelTrade, format, args...)
}

// Status logs market status information
func (l *Logger) Status(format string, args ...interface{}) {
	l.Log(LogLevelStatus, format, args...)
}

// Debug logs a message only when debug mode is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.Log(LogLevelDebug, format, args...)
}

// LogError logs an error with context
func (l *Logger) LogError(context string, err error) {
	l.Error("%s: %v", context, err)
}

// LogWarning logs a warning with context
func (l *Logger) LogWarning(context string, message string, args ...interface{}) {
	l.Warning("%s", fmt.Sprintf(context+": "+message, args...))
}

// LogEntry logs a position entry fill
func (l *Logger) LogEntry(symbol string, price, quantity, notional, score float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	entryLog := fmt.Sprintf(`
[%s] [TRADE] ==================== ENTRY EXECUTED ====================
📈 Symbol: %s
💰 Price: $%.4f
📦 Quantity: %.6f
💵 Notional: $%.2f
🎯 Entry Score: %.2f
=============================================================`,
		timestamp, symbol, price, quantity, notional, score)

	l.logger.Println(entryLog)
}

// LogExit logs a full or partial exit fill
func (l *Logger) LogExit(symbol, reason string, price, quantity, pnl, pnlRate float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	exitLog := fmt.Sprintf(`
[%s] [TRADE] ==================== EXIT EXECUTED ====================
📉 Symbol: %s | Reason: %s
💰 Exit Price: $%.4f
📦 Quantity: %.6f
💹 Realized P&L: $%.2f (%.2f%%)
============================================================`,
		timestamp, symbol, reason, price, quantity, pnl, pnlRate*100)

	l.logger.Println(exitLog)
}

// LogCycleStatus logs a compact end-of-cycle summary
func (l *Logger) LogCycleStatus(cycle int, balance float64, openPositions int, dailyPnL float64, regime, preset string) {
	l.Status("Cycle %d | Balance: $%.2f | Open: %d | Daily P&L: $%.2f | Regime: %s | Preset: %s",
		cycle, balance, openPositions, dailyPnL, regime, preset)
}

// Close closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		footer := fmt.Sprintf(`
================================================================================
🛑 TRADING ENGINE SESSION ENDED
================================================================================
Ended: %s
================================================================================

`, time.Now().Format("2006-01-02 15:04:05"))
		l.logger.Print(footer)

		return l.logFile.Close()
	}
	return nil
}

// GetLogPath returns the current log file path
func (l *Logger) GetLogPath() string {
	timestamp := time.Now().Format("2006-01-02")
	return filepath.Join(l.logDir, fmt.Sprintf("%s_%s.log", l.name, timestamp))
}
