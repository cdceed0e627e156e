package extraction

import (
	"github.com/smallbiznis/chatorder/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("extraction",
	fx.Provide(func(cfg config.Config, log *zap.Logger) *Client {
		return New(cfg, log)
	}),
)
