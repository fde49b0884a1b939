package commands

import (
	"fmt"

	"github.com/lendops/tapekpi/pkg/config"
	"github.com/lendops/tapekpi/pkg/logger"
)

// loadStack builds the shared config and logger every command starts from.
func loadStack() (*config.Config, *config.PipelineConfig, *logger.Logger, error) {
	appCfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		appCfg.LogLevel = "debug"
		appCfg.LogFormat = "console"
	}

	pipeCfg, err := config.LoadPipeline(pipelineConfigFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load pipeline config: %w", err)
	}

	return appCfg, pipeCfg, logger.New(appCfg), nil
}
