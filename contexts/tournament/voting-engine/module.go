package votingengine

import (
	"log/slog"

	httpadapter "cliparena/contexts/tournament/voting-engine/adapters/http"
	"cliparena/contexts/tournament/voting-engine/adapters/memory"
	"cliparena/contexts/tournament/voting-engine/application/commands"
	"cliparena/contexts/tournament/voting-engine/application/queries"
	"cliparena/contexts/tournament/voting-engine/domain/entities"
	"cliparena/contexts/tournament/voting-engine/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Store   *memory.Store
	Counter *memory.CounterStore
	Queue   ports.VoteQueue
}

type Dependencies struct {
	Ledger    ports.VoteLedger
	Reader    ports.TournamentReader
	Counter   ports.CounterStore
	Queue     ports.VoteQueue
	Flags     ports.FlagProvider
	Publisher ports.EventPublisher
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Quotas    commands.Quotas
	PageSize  int
	Logger    *slog.Logger
}

func NewModule(deps Dependencies) Module {
	quotas := deps.Quotas
	if quotas.DailyLimit <= 0 {
		quotas = DefaultQuotas()
	}
	voteUseCase := commands.VoteUseCase{
		Ledger:    deps.Ledger,
		Reader:    deps.Reader,
		Counter:   deps.Counter,
		Queue:     deps.Queue,
		Flags:     deps.Flags,
		Publisher: deps.Publisher,
		Clock:     deps.Clock,
		IDGen:     deps.IDGen,
		Quotas:    quotas,
		Logger:    deps.Logger,
	}
	stateUseCase := queries.StateUseCase{
		Ledger:     deps.Ledger,
		Reader:     deps.Reader,
		Counter:    deps.Counter,
		Flags:      deps.Flags,
		Clock:      deps.Clock,
		DailyLimit: quotas.DailyLimit,
		PageSize:   deps.PageSize,
		Logger:     deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Votes:  voteUseCase,
			State:  stateUseCase,
			Queue:  deps.Queue,
			Logger: deps.Logger,
		},
		Queue: deps.Queue,
	}
}

func DefaultQuotas() commands.Quotas {
	return commands.Quotas{
		DailyLimit:     200,
		StandardWeight: 1,
		SuperWeight:    5,
		MegaWeight:     10,
	}
}

// NewInMemoryModule wires every port to the in-process store. Used by unit
// tests and local development without postgres.
func NewInMemoryModule(seed []entities.Vote, logger *slog.Logger) Module {
	store := memory.NewStore(seed)
	counter := memory.NewCounterStore(store)
	queue := memory.NewQueue(store.Now)
	module := NewModule(Dependencies{
		Ledger:  store,
		Reader:  store,
		Counter: counter,
		Queue:   queue,
		Flags:   store,
		Clock:   store,
		IDGen:   store,
		Quotas:  DefaultQuotas(),
		Logger:  logger,
	})
	module.Store = store
	module.Counter = counter
	return module
}
