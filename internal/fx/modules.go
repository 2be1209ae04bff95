package fx

import (
	"github.com/JoaoVictor-C/ArenaRanking/internal/api"
	"github.com/JoaoVictor-C/ArenaRanking/internal/config"
	"github.com/JoaoVictor-C/ArenaRanking/internal/database"
	"github.com/JoaoVictor-C/ArenaRanking/internal/logger"
	"github.com/JoaoVictor-C/ArenaRanking/internal/repository"
	"github.com/JoaoVictor-C/ArenaRanking/internal/server"
	"github.com/JoaoVictor-C/ArenaRanking/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// The processor and scanner consume narrow interfaces; these providers bind
// the concrete client and repositories to them.
func ProvideProcessor(riot *api.RiotClient, players *repository.PlayerRepository, cfg *config.Config, log zerolog.Logger) *service.Processor {
	return service.NewProcessor(riot, players, cfg, log)
}

func ProvideAnomalyScanner(players *repository.PlayerRepository, history *repository.HistoryRepository, log zerolog.Logger) *service.AnomalyScanner {
	return service.NewAnomalyScanner(players, history, log)
}

func ProvidePlayerService(riot *api.RiotClient, players *repository.PlayerRepository, history *repository.HistoryRepository, log zerolog.Logger) *service.PlayerService {
	return service.NewPlayerService(riot, players, history, log)
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewPlayerRepository),
	fx.Provide(repository.NewHistoryRepository),
	// api client
	fx.Provide(api.NewRiotClient),
	// svc
	fx.Provide(ProvideProcessor),
	fx.Provide(ProvideAnomalyScanner),
	fx.Provide(ProvidePlayerService),
	fx.Provide(service.NewRankingService),
	fx.Provide(service.NewScheduler),
	// server
	fx.Provide(server.NewServer),
)
