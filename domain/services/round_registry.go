package services

import (
	"sort"
	"sync"

	"colorgame/domain/entities"
)

// RoundRegistry maps rooms to their running round machines
type RoundRegistry struct {
	mu       sync.RWMutex
	machines map[int]*RoundMachine
}

// NewRoundRegistry creates an empty registry
func NewRoundRegistry() *RoundRegistry {
	return &RoundRegistry{machines: make(map[int]*RoundMachine)}
}

// Register adds a machine, reporting false when the room already has one
func (r *RoundRegistry) Register(m *RoundMachine) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.machines[m.RoomID()]; ok {
		return false
	}
	r.machines[m.RoomID()] = m
	return true
}

// Remove drops a room's machine
func (r *RoundRegistry) Remove(roomID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.machines, roomID)
}

// Get returns the machine of a room
func (r *RoundRegistry) Get(roomID int) (*RoundMachine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.machines[roomID]
	return m, ok
}

// CurrentRound returns a copy of the room's live round, or nil
func (r *RoundRegistry) CurrentRound(roomID int) *entities.Round {
	m, ok := r.Get(roomID)
	if !ok {
		return nil
	}
	return m.Snapshot()
}

// RoomIDs returns every registered room in ascending order
func (r *RoundRegistry) RoomIDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int, 0, len(r.machines))
	for id := range r.machines {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
