package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger 全局日志实例
	Logger *logrus.Logger
	// logMu 初始化锁
	logMu sync.Mutex
)

// Config 日志配置
type Config struct {
	Level      string // 日志级别: debug, info, warn, error
	OutputFile string // 日志文件路径（可选，为空则只输出到控制台）
	MaxSize    int    // 日志文件最大大小（MB）
	MaxBackups int    // 保留的旧日志文件数量
	MaxAge     int    // 保留旧日志文件的天数
	Compress   bool   // 是否压缩旧日志文件
}

// Init 初始化日志系统
func Init(config Config) error {
	logMu.Lock()
	defer logMu.Unlock()

	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05",
		ForceColors:     true,
	})

	// 可选：同时写入文件（lumberjack 负责轮转）
	if config.OutputFile != "" {
		if dir := filepath.Dir(config.OutputFile); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("创建日志目录失败: %w", err)
			}
		}
		fileWriter := &lumberjack.Logger{
			Filename:   config.OutputFile,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
	} else {
		logger.SetOutput(os.Stdout)
	}

	Logger = logger
	return nil
}

// InitDefault 使用默认配置初始化（info 级别，仅控制台输出）
func InitDefault() error {
	return Init(Config{Level: "info"})
}

// ensure 保证 Logger 可用（未初始化时退回默认配置）
func ensure() *logrus.Logger {
	if Logger == nil {
		_ = InitDefault()
	}
	return Logger
}

// Debug 输出 debug 级别日志
func Debug(args ...interface{}) {
	ensure().Debug(args...)
}

// Debugf 输出格式化 debug 级别日志
func Debugf(format string, args ...interface{}) {
	ensure().Debugf(format, args...)
}

// Info 输出 info 级别日志
func Info(args ...interface{}) {
	ensure().Info(args...)
}

// Infof 输出格式化 info 级别日志
func Infof(format string, args ...interface{}) {
	ensure().Infof(format, args...)
}

// Warn 输出 warn 级别日志
func Warn(args ...interface{}) {
	ensure().Warn(args...)
}

// Warnf 输出格式化 warn 级别日志
func Warnf(format string, args ...interface{}) {
	ensure().Warnf(format, args...)
}

// Error 输出 error 级别日志
func Error(args ...interface{}) {
	ensure().Error(args...)
}

// Errorf 输出格式化 error 级别日志
func Errorf(format string, args ...interface{}) {
	ensure().Errorf(format, args...)
}

// WithField 带单个字段的日志入口
func WithField(key string, value interface{}) *logrus.Entry {
	return ensure().WithField(key, value)
}

// WithFields 带多个字段的日志入口
func WithFields(fields logrus.Fields) *logrus.Entry {
	return ensure().WithFields(fields)
}
