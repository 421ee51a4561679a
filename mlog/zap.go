package mlog

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions 文件日志配置
type FileOptions struct {
	Path       string // 目录, 默认当前路径
	Name       string // 文件名(不含.log), 默认mlog
	Level      Level
	StdOut     bool // 同时输出到stdout
	MaxSizeMB  int  // 单文件上限, 默认100MB
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type zapLogger struct {
	level Level
	sugar *zap.SugaredLogger
}

func newEncoder() zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(encCfg)
}

func newZapLogger(opt FileOptions) (*zapLogger, error) {
	if len(opt.Path) == 0 {
		opt.Path = "."
	}
	if opt.MaxSizeMB <= 0 {
		opt.MaxSizeMB = 100
	}
	if err := os.MkdirAll(opt.Path, 0755); err != nil {
		return nil, err
	}
	// 级别过滤由zapLogger自己做, zap内核全部放行
	enab := zap.NewAtomicLevelAt(zapcore.DebugLevel)
	encoder := newEncoder()
	rotate := &lumberjack.Logger{
		Filename:   filepath.Join(opt.Path, genLogName(opt.Name)),
		MaxSize:    opt.MaxSizeMB,
		MaxBackups: opt.MaxBackups,
		MaxAge:     opt.MaxAgeDays,
		Compress:   opt.Compress,
		LocalTime:  true,
	}
	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.AddSync(rotate), enab)}
	if opt.StdOut {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), enab))
	}
	return newZapCoreLogger(zapcore.NewTee(cores...), opt.Level), nil
}

func newZapWriterLogger(w io.Writer, level Level) *zapLogger {
	core := zapcore.NewCore(newEncoder(), zapcore.AddSync(w), zap.NewAtomicLevelAt(zapcore.DebugLevel))
	return newZapCoreLogger(core, level)
}

func newZapCoreLogger(core zapcore.Core, level Level) *zapLogger {
	// 跳过 mlog.Xxx -> zapLogger.Xxx 两层
	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))
	return &zapLogger{level: level, sugar: l.Sugar()}
}

func genLogName(logName string) string {
	if logName == "" {
		logName = "mlog"
	}
	return logName + ".log"
}

func (me *zapLogger) IsLevelEnabled(level Level) bool {
	return me.level >= level
}

func (me *zapLogger) Sync() error {
	return me.sugar.Sync()
}

func (me *zapLogger) Trace(args ...any) {
	if me.IsLevelEnabled(TraceLevel) {
		me.sugar.Debug(append([]any{getLevelTag(TraceLevel)}, args...)...)
	}
}

func (me *zapLogger) Tracef(format string, args ...any) {
	if me.IsLevelEnabled(TraceLevel) {
		me.sugar.Debugf(getLevelTag(TraceLevel)+format, args...)
	}
}

func (me *zapLogger) Debug(args ...any) {
	if me.IsLevelEnabled(DebugLevel) {
		me.sugar.Debug(args...)
	}
}

func (me *zapLogger) Debugf(format string, args ...any) {
	if me.IsLevelEnabled(DebugLevel) {
		me.sugar.Debugf(format, args...)
	}
}

func (me *zapLogger) Info(args ...any) {
	if me.IsLevelEnabled(InfoLevel) {
		me.sugar.Info(args...)
	}
}

func (me *zapLogger) Infof(format string, args ...any) {
	if me.IsLevelEnabled(InfoLevel) {
		me.sugar.Infof(format, args...)
	}
}

func (me *zapLogger) Notice(args ...any) {
	if me.IsLevelEnabled(NoticeLevel) {
		me.sugar.Info(append([]any{getLevelTag(NoticeLevel)}, args...)...)
	}
}

func (me *zapLogger) Noticef(format string, args ...any) {
	if me.IsLevelEnabled(NoticeLevel) {
		me.sugar.Infof(getLevelTag(NoticeLevel)+format, args...)
	}
}

func (me *zapLogger) Warn(args ...any) {
	if me.IsLevelEnabled(WarnLevel) {
		me.sugar.Warn(args...)
	}
}

func (me *zapLogger) Warnf(format string, args ...any) {
	if me.IsLevelEnabled(WarnLevel) {
		me.sugar.Warnf(format, args...)
	}
}

func (me *zapLogger) Error(args ...any) {
	if me.IsLevelEnabled(ErrorLevel) {
		me.sugar.Error(args...)
	}
}

func (me *zapLogger) Errorf(format string, args ...any) {
	if me.IsLevelEnabled(ErrorLevel) {
		me.sugar.Errorf(format, args...)
	}
}

func (me *zapLogger) Fatal(args ...any) {
	me.sugar.Fatal(args...)
}

func (me *zapLogger) Fatalf(format string, args ...any) {
	me.sugar.Fatalf(format, args...)
}
