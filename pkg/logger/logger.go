package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Log는 전역 로거 인스턴스 (초기화 전에는 no-op)
	Log = zap.NewNop()

	mu         sync.Mutex
	fileWriter *lumberjack.Logger
)

// LogConfig는 로거 설정
type LogConfig struct {
	Level      string
	Output     string // console, file, both
	FilePath   string
	MaxSize    int
	MaxBackups int
	MaxAge     int
}

// InitLogger는 zap 로거를 초기화하고 전역 Log를 교체합니다
func InitLogger(cfg LogConfig) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleConfig := encoderConfig
	consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), zapcore.AddSync(os.Stdout), level)

	mu.Lock()
	defer mu.Unlock()

	if fileWriter != nil {
		_ = fileWriter.Close()
		fileWriter = nil
	}

	var core zapcore.Core
	switch cfg.Output {
	case "file", "both":
		writer, err := newFileWriter(cfg)
		if err != nil {
			return err
		}
		fileWriter = writer
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(writer), level)
		if cfg.Output == "both" {
			core = zapcore.NewTee(consoleCore, fileCore)
		} else {
			core = fileCore
		}
	default:
		core = consoleCore
	}

	Log = zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return nil
}

// newFileWriter는 lumberjack 기반 로테이션 writer를 생성합니다
func newFileWriter(cfg LogConfig) (*lumberjack.Logger, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("log file_path is required for output %q", cfg.Output)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		LocalTime:  true,
		Compress:   true,
	}, nil
}

// Named는 컴포넌트 이름이 붙은 하위 로거를 반환합니다
func Named(name string) *zap.Logger {
	return Log.Named(name)
}

// Close는 로거 버퍼를 플러시하고 파일을 닫습니다
func Close() {
	mu.Lock()
	defer mu.Unlock()

	_ = Log.Sync()
	if fileWriter != nil {
		_ = fileWriter.Close()
		fileWriter = nil
	}
}

// Sync는 로거 버퍼를 플러시합니다
func Sync() {
	_ = Log.Sync()
}

// Info는 info 레벨 로그를 출력합니다
func Info(msg string, fields ...zap.Field) {
	Log.Info(msg, fields...)
}

// Debug는 debug 레벨 로그를 출력합니다
func Debug(msg string, fields ...zap.Field) {
	Log.Debug(msg, fields...)
}

// Warn는 warn 레벨 로그를 출력합니다
func Warn(msg string, fields ...zap.Field) {
	Log.Warn(msg, fields...)
}

// Error는 error 레벨 로그를 출력합니다
func Error(msg string, fields ...zap.Field) {
	Log.Error(msg, fields...)
}
