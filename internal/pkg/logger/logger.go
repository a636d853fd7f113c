package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

const (
	logFileName   = "sopr-stats.log"
	maxSizeMB     = 200 // 单个日志文件最大体积
	maxBackups    = 10  // 保留的历史文件数
	maxAgeDays    = 7   // 历史文件保留天数
	callerSkipped = 1
)

type LogOption struct {
	Format   string // console / json
	LogDir   string // 为空时只输出到 stdout
	Level    string // debug / info / warn / error
	Compress bool
}

var sugar atomic.Pointer[zap.SugaredLogger]

func init() {
	// InitLogger 之前的日志（加载配置阶段）直接写 stdout
	sugar.Store(newLogger(LogOption{Format: "console", Level: "info"}).Sugar())
}

// InitLogger 按配置重建全局 logger
func InitLogger(opt LogOption) {
	l := newLogger(opt)
	old := sugar.Swap(l.Sugar())
	if old != nil {
		_ = old.Sync()
	}
}

func newLogger(opt LogOption) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	encCfg.EncodeDuration = zapcore.StringDurationEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(opt.Format, "json") {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	level := parseLevel(opt.Level)
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level),
	}

	if opt.LogDir != "" {
		writer := &lumberjack.Logger{
			Filename:   filepath.Join(opt.LogDir, logFileName),
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   opt.Compress,
			LocalTime:  true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(writer), level))
	}

	return zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddCallerSkip(callerSkipped),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func Debugf(template string, args ...any) { sugar.Load().Debugf(template, args...) }
func Infof(template string, args ...any)  { sugar.Load().Infof(template, args...) }
func Warnf(template string, args ...any)  { sugar.Load().Warnf(template, args...) }
func Errorf(template string, args ...any) { sugar.Load().Errorf(template, args...) }

func Debug(args ...any) { sugar.Load().Debug(args...) }
func Info(args ...any)  { sugar.Load().Info(args...) }
func Warn(args ...any)  { sugar.Load().Warn(args...) }
func Error(args ...any) { sugar.Load().Error(args...) }

// Sync 刷新缓冲区，进程退出前调用
func Sync() {
	_ = sugar.Load().Sync()
}
