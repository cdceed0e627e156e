package providers

import (
	"github.com/smallbiznis/chatorder/internal/providers/blobstore"
	"github.com/smallbiznis/chatorder/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	fx.Provide(pdf.New),
	fx.Provide(blobstore.New),
)
