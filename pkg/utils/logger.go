package utils

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger returns a zap logger. When debug is true, uses a development console encoder
// at debug level; otherwise a production JSON encoder at info level.
// When file is non-empty, a rotating JSON file core is teed with the console core.
func NewLogger(debug bool, file string) (*zap.Logger, error) {
	if file == "" {
		if debug {
			return zap.NewDevelopment()
		}
		return zap.NewProduction()
	}

	rotator := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}

	fileEncoderConfig := zap.NewProductionEncoderConfig()
	fileEncoderConfig.TimeKey = "timestamp"
	fileEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderConfig), zapcore.AddSync(rotator), zap.InfoLevel)

	consoleLevel := zap.InfoLevel
	consoleEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	if debug {
		consoleLevel = zap.DebugLevel
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}
	consoleCore := zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), consoleLevel)

	return zap.New(zapcore.NewTee(fileCore, consoleCore), zap.AddCaller()), nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
