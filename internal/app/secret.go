package app

import (
	"crypto/rand"
	"crypto/sha256"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/gonglijing/clinisense/internal/logger"
)

var secretKeyFile = filepath.Join("config", "session_secret.key")

// loadOrGenerateSecretKey JWT 签名密钥：配置优先，其次密钥文件，都没有时生成并保存，
// 重启后已签发的令牌仍然有效
func loadOrGenerateSecretKey(configured, keyFile string) []byte {
	log := logger.Named("app")
	if configured != "" {
		h := sha256.Sum256([]byte(configured))
		return h[:]
	}

	if data, err := os.ReadFile(keyFile); err == nil && len(data) >= 32 {
		h := sha256.Sum256(data)
		return h[:]
	}

	if err := os.MkdirAll(filepath.Dir(keyFile), 0o755); err != nil {
		log.Warn("failed to create secret key directory", zap.Error(err))
	}

	newKey := make([]byte, 32)
	if _, err := rand.Read(newKey); err != nil {
		log.Fatal("failed to generate secret key", zap.Error(err))
	}

	if err := os.WriteFile(keyFile, newKey, 0o600); err != nil {
		log.Warn("failed to save session secret key; sessions will not survive a restart", zap.Error(err))
	} else {
		log.Info("generated new session secret key", zap.String("path", keyFile))
	}

	h := sha256.Sum256(newKey)
	return h[:]
}
