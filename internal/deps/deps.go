package deps

import (
	"fmt"

	"github.com/and161185/checkout/internal/auth"
	"go.uber.org/zap"
)

type Deps struct {
	Logger       *zap.SugaredLogger
	TokenManager *auth.TokenManager
}

func NewDependencies(secretKey, logLevel string) (*Deps, error) {
	level, err := zap.ParseAtomicLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	logCfg := zap.NewProductionConfig()
	logCfg.Level = level
	logCfg.OutputPaths = []string{"stdout"}

	logger, err := logCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	deps := Deps{Logger: logger.Sugar(), TokenManager: auth.NewTokenManager(secretKey)}

	return &deps, nil
}
