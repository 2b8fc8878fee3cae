//go:build !autocert

package app

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/gonglijing/clinisense/internal/config"
)

func listenAndServeWithAutoCert(server *http.Server, cfg *config.Config, log *zap.Logger) error {
	if server == nil || cfg == nil {
		return fmt.Errorf("invalid auto-cert config")
	}
	return fmt.Errorf("tls auto-cert is not enabled in this build; rebuild with -tags autocert")
}
