package app

import (
	"github.com/keyxmakerx/larp/internal/middleware"
	"github.com/keyxmakerx/larp/internal/plugins/access"
	"github.com/keyxmakerx/larp/internal/plugins/actionlog"
	"github.com/keyxmakerx/larp/internal/plugins/chat"
	"github.com/keyxmakerx/larp/internal/plugins/gameplay"
	"github.com/keyxmakerx/larp/internal/plugins/games"
	"github.com/keyxmakerx/larp/internal/plugins/scenarios"
	"github.com/keyxmakerx/larp/internal/realtime"
)

// RegisterRoutes builds every plugin and registers its routes. This is the
// single place where plugins are wired to each other.
//
// Route groups:
//
//	/api/v1                  any valid access key
//	/api/v1 (admin)          admin keys: scenario catalog, game creation
//	/api/v1/games/:gameID    keys bound to that game (admin keys pass)
func (a *App) RegisterRoutes() {
	e := a.Echo

	e.GET("/healthz", a.healthz)

	// --- Shared infrastructure ---
	bus := realtime.NewRedisBus(a.Redis, a.Config.Realtime.ChannelPrefix)

	// --- Plugins ---
	keyService := access.NewKeyService(access.NewKeyRepository(a.DB))
	scenarioService := scenarios.NewScenarioService(scenarios.NewScenarioRepository(a.DB))
	gameService := games.NewGameService(games.NewGameRepository(a.DB), scenarioService, keyService, bus)
	logService := actionlog.NewLogService(actionlog.NewLogRepository(a.DB))
	gameplayService := gameplay.NewGameplayService(gameService, scenarioService, logService)
	chatService := chat.NewChatService(chat.NewChatRepository(a.DB), bus)

	// --- Groups ---
	api := e.Group("/api/v1",
		middleware.RateLimit(a.Redis, "api", a.Config.RateLimit.Requests, a.Config.RateLimit.Window),
		access.RequireKey(keyService),
	)
	admin := api.Group("", access.RequireScope(access.ScopeAdmin))
	game := api.Group("/games/:gameID", access.RequireGameMatch())

	access.RegisterRoutes(api, game, access.NewHandler(keyService, gameService))
	scenarios.RegisterRoutes(admin, scenarios.NewHandler(scenarioService))
	games.RegisterRoutes(admin, game, games.NewHandler(gameService))
	actionlog.RegisterRoutes(game, actionlog.NewHandler(logService))
	gameplay.RegisterRoutes(game, gameplay.NewHandler(gameplayService))
	chat.RegisterRoutes(game, chat.NewHandler(chatService))

	origins := append([]string{a.Config.BaseURL}, a.Config.HTTP.CORSOrigins...)
	realtime.RegisterRoutes(game, realtime.NewStreamHandler(bus, a.Config.Realtime, origins))
}
