package order

import (
	"github.com/smallbiznis/chatorder/internal/extraction"
	"github.com/smallbiznis/chatorder/internal/order/repository"
	"github.com/smallbiznis/chatorder/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order",
	fx.Provide(repository.Provide),
	fx.Provide(func(c *extraction.Client) service.Extractor { return c }),
	fx.Provide(service.New),
)
