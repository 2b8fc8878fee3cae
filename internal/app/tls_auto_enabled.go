//go:build autocert

package app

import (
	"crypto/tls"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/gonglijing/clinisense/internal/config"
)

func listenAndServeWithAutoCert(server *http.Server, cfg *config.Config, log *zap.Logger) error {
	if server == nil || cfg == nil {
		return http.ErrServerClosed
	}

	manager := &autocert.Manager{
		Cache:      autocert.DirCache(cfg.TLSCacheDir),
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(cfg.TLSDomain),
	}
	server.TLSConfig = &tls.Config{
		GetCertificate: manager.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}

	// ACME http-01 挑战
	go func() {
		if err := http.ListenAndServe(":80", manager.HTTPHandler(nil)); err != nil {
			log.Warn("acme challenge listener stopped", zap.Error(err))
		}
	}()

	log.Info("listening (https, auto-cert)", zap.String("addr", cfg.ListenAddr), zap.String("domain", cfg.TLSDomain))
	return server.ListenAndServeTLS("", "")
}
