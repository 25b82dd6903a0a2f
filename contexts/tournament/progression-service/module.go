package progressionservice

import (
	"log/slog"
	"time"

	httpadapter "cliparena/contexts/tournament/progression-service/adapters/http"
	"cliparena/contexts/tournament/progression-service/adapters/memory"
	"cliparena/contexts/tournament/progression-service/application/commands"
	"cliparena/contexts/tournament/progression-service/ports"
)

type Module struct {
	Handler  httpadapter.Handler
	Progress commands.ProgressUseCase
	Store    *memory.Store
}

type Dependencies struct {
	Repo           ports.TournamentRepository
	Lock           ports.CronLock
	Counter        ports.CounterSyncer
	FastPath       ports.FastPathProbe
	Clock          ports.Clock
	LockTTL        time.Duration
	FreezeBuffer   time.Duration
	VotingDuration time.Duration
	Logger         *slog.Logger
}

func NewModule(deps Dependencies) Module {
	lockTTL := deps.LockTTL
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	freezeBuffer := deps.FreezeBuffer
	if freezeBuffer <= 0 {
		freezeBuffer = 120 * time.Second
	}
	progress := commands.ProgressUseCase{
		Repo:           deps.Repo,
		Lock:           deps.Lock,
		Counter:        deps.Counter,
		FastPath:       deps.FastPath,
		Clock:          deps.Clock,
		LockTTL:        lockTTL,
		FreezeBuffer:   freezeBuffer,
		VotingDuration: deps.VotingDuration,
		Logger:         deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Progress: progress,
			Logger:   deps.Logger,
		},
		Progress: progress,
	}
}

// NewInMemoryModule wires every port to the in-process store. Used by unit
// tests and local development without postgres.
func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Repo:     store,
		Lock:     store,
		Counter:  store,
		FastPath: store,
		Clock:    store,
		Logger:   logger,
	})
	module.Store = store
	return module
}
