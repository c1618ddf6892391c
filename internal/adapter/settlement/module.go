package settlement

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/polkiloo/shiftclose/internal/config"
	"github.com/polkiloo/shiftclose/internal/usecase"
)

// Module exposes the settlement gateway implementation to fx graph.
var Module = fx.Provide(newClient)

type clientParams struct {
	fx.In

	Config *config.Config
	Logger *slog.Logger
}

func newClient(p clientParams) (usecase.SettlementGateway, error) {
	client, err := NewHTTPClient(p.Config.SettlementSystemAddress, p.Logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}
