package application

import (
	"context"
	"sync"

	"colorgame/domain/services"

	log "github.com/sirupsen/logrus"
)

// Supervisor runs one round machine per catalog room
type Supervisor struct {
	deps     services.RoundMachineDeps
	registry *services.RoundRegistry
	catalog  *services.RoomCatalog

	mu      sync.Mutex
	ctx     context.Context
	stopped bool
	wg      sync.WaitGroup
}

// NewSupervisor creates a supervisor; nothing runs until Start
func NewSupervisor(deps services.RoundMachineDeps, registry *services.RoundRegistry, catalog *services.RoomCatalog) *Supervisor {
	return &Supervisor{
		deps:     deps,
		registry: registry,
		catalog:  catalog,
	}
}

// Start launches a machine for every room currently in the catalog
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.Sync()
}

// Sync launches machines for rooms added to the catalog since the last call.
// Rooms dropped from the catalog keep their machine until shutdown; they
// simply stop receiving bets.
func (s *Supervisor) Sync() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil || s.stopped || s.ctx.Err() != nil {
		return 0
	}

	started := 0
	for _, room := range s.catalog.Rooms() {
		m := services.NewRoundMachine(room.ID, s.deps)
		if !s.registry.Register(m) {
			continue
		}
		started++

		s.wg.Add(1)
		go func(ctx context.Context, roomID int) {
			defer s.wg.Done()
			// a stopped room serves no round, so late bets are refused
			defer s.registry.Remove(roomID)
			m.Run(ctx)
		}(s.ctx, room.ID)
	}

	if started > 0 {
		log.WithFields(log.Fields{
			"started": started,
			"rooms":   s.registry.RoomIDs(),
		}).Info("Round machines running")
	}
	return started
}

// Wait blocks until every machine has returned. Cancel the context passed to
// Start first.
func (s *Supervisor) Wait() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.wg.Wait()
}
