package telemetry

import (
	"go.uber.org/zap"

	"github.com/vnmchuo/ollama-gateway/config"
)

// NewLogger returns a JSON production logger in production and a console
// development logger everywhere else.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsProduction() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("environment", cfg.Environment)), nil
}
