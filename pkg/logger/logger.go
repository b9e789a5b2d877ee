package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzzap "github.com/hertz-contrib/logger/zap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"GuardWatch/config"
)

var (
	// Logger 在 Init 之前为 Nop，避免测试或工具代码里空指针
	Logger   = zap.NewNop()
	logClose io.Closer
)

// Options 日志输出参数
type Options struct {
	Level      string
	Format     string // json, text
	OutputPath string // stdout 或文件路径
	Service    string
	Component  string // scheduler, server, gateway
	Colored    bool
}

// Init 按全局配置初始化，同时接管 hertz 的 hlog 输出
func Init(component string) {
	opts := Options{
		Level:      config.Cfg.LoggerLevel,
		Format:     config.Cfg.LoggerFormat,
		OutputPath: config.Cfg.LoggerOutputPath,
		Service:    config.Cfg.ServiceName,
		Component:  component,
		Colored:    config.Cfg.IsDevelopment(),
	}

	hzLogger, closer, err := newHertzLogger(opts)
	if err != nil {
		// 文件不可写时退回 stdout，进程仍需要日志
		opts.OutputPath = "stdout"
		hzLogger, closer, _ = newHertzLogger(opts)
		fmt.Fprintf(os.Stderr, "logger: %v, falling back to stdout\n", err)
	}

	hlog.SetLogger(hzLogger)
	hlog.SetLevel(toHlogLevel(parseZapLevel(opts.Level)))

	Logger = hzLogger.Logger()
	logClose = closer
	Logger.Info("Logger initialized",
		zap.String("level", strings.ToUpper(opts.Level)),
		zap.String("format", opts.Format),
		zap.String("environment", config.Cfg.Environment),
	)
}

// New 构建独立 logger，不修改全局状态
func New(opts Options) (*zap.Logger, io.Closer, error) {
	hzLogger, closer, err := newHertzLogger(opts)
	if err != nil {
		return nil, nil, err
	}
	return hzLogger.Logger(), closer, nil
}

func newHertzLogger(opts Options) (*hertzzap.Logger, io.Closer, error) {
	ws, closer, err := openSink(opts.OutputPath)
	if err != nil {
		return nil, nil, err
	}

	fields := []zap.Field{zap.String("service", opts.Service)}
	if opts.Component != "" {
		fields = append(fields, zap.String("component", opts.Component))
	}

	level := zap.NewAtomicLevelAt(parseZapLevel(opts.Level))
	hzLogger := hertzzap.NewLogger(
		hertzzap.WithCoreEnc(newEncoder(opts)),
		hertzzap.WithCoreWs(ws),
		hertzzap.WithCoreLevel(level),
		hertzzap.WithZapOptions(
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
			zap.Fields(fields...),
		),
	)
	return hzLogger, closer, nil
}

// Named 返回带子模块名的 logger，组件内部统一使用注入的 logger
func Named(name string) *zap.Logger {
	return Logger.Named(name)
}

func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
	if logClose != nil {
		_ = logClose.Close()
	}
}

func newEncoder(opts Options) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeCaller = zapcore.ShortCallerEncoder

	if strings.EqualFold(opts.Format, "json") {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewJSONEncoder(encCfg)
	}

	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if opts.Colored {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(encCfg)
}

func openSink(path string) (zapcore.WriteSyncer, io.Closer, error) {
	if path == "" || strings.EqualFold(path, "stdout") {
		return zapcore.AddSync(os.Stdout), nil, nil
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return zapcore.AddSync(file), file, nil
}

func parseZapLevel(level string) zapcore.Level {
	l, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

func toHlogLevel(level zapcore.Level) hlog.Level {
	switch level {
	case zapcore.DebugLevel:
		return hlog.LevelDebug
	case zapcore.WarnLevel:
		return hlog.LevelWarn
	case zapcore.ErrorLevel:
		return hlog.LevelError
	default:
		return hlog.LevelInfo
	}
}
