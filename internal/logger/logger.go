package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel 日志级别
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// LevelNames 级别名称映射
var LevelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

// ParseLevel 解析日志级别
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLogger 创建独立的 zap Logger
// level: "debug", "info", "warn", "error"（默认 info）
// format: "json" 或 "console"（默认 json）
func NewLogger(level, format, serviceName string) (*zap.Logger, error) {
	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level).zapLevel())

	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if serviceName != "" {
		base = base.With(zap.String("service_name", serviceName))
	}
	return base, nil
}

// 全局 logger 状态
var (
	mu          sync.RWMutex
	atom        = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	jsonOutput  bool
	serviceName = "clinisense"
	output      io.Writer = os.Stdout
	global      *zap.Logger
	sugar       *zap.SugaredLogger
)

func init() {
	rebuild()
}

func rebuild() {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if jsonOutput {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(output)), atom)
	global = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	if serviceName != "" {
		global = global.With(zap.String("service_name", serviceName))
	}
	sugar = global.Sugar()
}

// Configure 一次性设置级别、格式与服务名
func Configure(level, format, service string) {
	mu.Lock()
	defer mu.Unlock()
	atom.SetLevel(ParseLevel(level).zapLevel())
	jsonOutput = strings.EqualFold(format, "json")
	if service != "" {
		serviceName = service
	}
	rebuild()
}

// SetLevel 设置日志级别
func SetLevel(level LogLevel) {
	atom.SetLevel(level.zapLevel())
}

// GetLevel 当前日志级别
func GetLevel() LogLevel {
	switch atom.Level() {
	case zapcore.DebugLevel:
		return DEBUG
	case zapcore.WarnLevel:
		return WARN
	case zapcore.ErrorLevel:
		return ERROR
	case zapcore.FatalLevel:
		return FATAL
	default:
		return INFO
	}
}

// SetJSONOutput 设置JSON输出
func SetJSONOutput(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	jsonOutput = enabled
	rebuild()
}

// SetOutput 设置输出目标
func SetOutput(w io.Writer) {
	if w == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	output = w
	rebuild()
}

// Output 当前输出目标
func Output() io.Writer {
	mu.RLock()
	defer mu.RUnlock()
	return output
}

// L 返回全局 zap Logger，供需要注入 logger 的组件使用
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global.WithOptions(zap.AddCallerSkip(-1))
}

// Named 带模块名的 Logger
func Named(module string) *zap.Logger {
	return L().Named(module)
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Debug 全局调试日志
func Debug(msg string, keysAndValues ...interface{}) {
	current().Debugw(msg, keysAndValues...)
}

// Info 全局信息日志
func Info(msg string, keysAndValues ...interface{}) {
	current().Infow(msg, keysAndValues...)
}

// Warn 全局警告日志
func Warn(msg string, keysAndValues ...interface{}) {
	current().Warnw(msg, keysAndValues...)
}

// Error 全局错误日志
func Error(msg string, err error, keysAndValues ...interface{}) {
	if err != nil {
		keysAndValues = append([]interface{}{zap.Error(err)}, keysAndValues...)
	}
	current().Errorw(msg, keysAndValues...)
}

// Fatal 全局致命日志
func Fatal(msg string, err error) {
	current().Fatalw(msg, zap.Error(err))
}

// Printf 格式化日志
func Printf(format string, v ...interface{}) {
	current().Info(fmt.Sprintf(format, v...))
}

// Sync 刷新缓冲
func Sync() error {
	return L().Sync()
}
