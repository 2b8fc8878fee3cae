package logger

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const (
	defaultMaxLogSizeBytes = 8 * 1024 * 1024
	defaultMaxBackups      = 3
)

// RotatingFile 按大小滚动的日志文件，实现 zapcore.WriteSyncer
type RotatingFile struct {
	mu         sync.Mutex
	path       string
	maxSize    int64
	maxBackups int
	file       *os.File
	buf        *bufio.Writer
	size       int64
}

// NewRotatingFile 打开（或创建）日志文件
func NewRotatingFile(path string, maxSize int64, maxBackups int) (*RotatingFile, error) {
	if maxSize <= 0 {
		maxSize = defaultMaxLogSizeBytes
	}
	if maxBackups < 1 {
		maxBackups = defaultMaxBackups
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f := &RotatingFile{path: path, maxSize: maxSize, maxBackups: maxBackups}
	if err := f.open(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RotatingFile) open() error {
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	f.file = file
	f.size = info.Size()
	f.buf = bufio.NewWriterSize(file, 32*1024)
	return nil
}

// Write 写满 maxSize 时先滚动再写
func (f *RotatingFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		if err := f.open(); err != nil {
			return 0, err
		}
	}
	if f.size > 0 && f.size+int64(len(p)) > f.maxSize {
		if err := f.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := f.buf.Write(p)
	f.size += int64(n)
	return n, err
}

// Sync zap 在每条 Error 以上的日志后调用
func (f *RotatingFile) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buf == nil {
		return nil
	}
	if err := f.buf.Flush(); err != nil {
		return err
	}
	return f.file.Sync()
}

// app.log -> app.log.1 -> app.log.2 ...
func (f *RotatingFile) rotate() error {
	_ = f.buf.Flush()
	_ = f.file.Close()
	f.file = nil

	for i := f.maxBackups - 1; i >= 1; i-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", f.path, i), fmt.Sprintf("%s.%d", f.path, i+1))
	}
	_ = os.Rename(f.path, f.path+".1")
	return f.open()
}

// Close 刷新并关闭文件
func (f *RotatingFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	_ = f.buf.Flush()
	err := f.file.Close()
	f.file = nil
	return err
}

// InitFileOutput 全局日志同时写入标准输出与滚动文件
func InitFileOutput(path string, maxSize int64) (io.Closer, error) {
	if path == "" {
		path = filepath.Join("logs", "clinisense.log")
	}
	file, err := NewRotatingFile(path, maxSize, defaultMaxBackups)
	if err != nil {
		return nil, err
	}
	SetOutput(io.MultiWriter(os.Stdout, file))
	return file, nil
}
