package services

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"colorgame/domain/entities"
	"colorgame/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

type roomTable map[int]*entities.Room

// RoomCatalog serves room definitions. Reads load an atomic pointer and never
// wait on a refresh.
type RoomCatalog struct {
	rooms     atomic.Pointer[roomTable]
	templates interfaces.RoomTemplateRepository

	occupancyMu sync.RWMutex
	occupancy   map[int]*atomic.Int64
}

// NewRoomCatalog creates a catalog seeded with the given rooms
func NewRoomCatalog(templates interfaces.RoomTemplateRepository, initial []*entities.Room) *RoomCatalog {
	c := &RoomCatalog{
		templates: templates,
		occupancy: make(map[int]*atomic.Int64),
	}
	c.swap(initial)
	return c
}

func (c *RoomCatalog) swap(rooms []*entities.Room) {
	table := make(roomTable, len(rooms))
	for _, r := range rooms {
		table[r.ID] = r
	}
	c.rooms.Store(&table)

	c.occupancyMu.Lock()
	for id := range table {
		if _, ok := c.occupancy[id]; !ok {
			c.occupancy[id] = &atomic.Int64{}
		}
	}
	c.occupancyMu.Unlock()
}

// GetRoom returns the room definition or false when unknown
func (c *RoomCatalog) GetRoom(roomID int) (*entities.Room, bool) {
	table := c.rooms.Load()
	room, ok := (*table)[roomID]
	return room, ok
}

// Rooms returns all rooms ordered by id
func (c *RoomCatalog) Rooms() []*entities.Room {
	table := c.rooms.Load()
	out := make([]*entities.Room, 0, len(*table))
	for _, r := range *table {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Views returns every room with its live player count
func (c *RoomCatalog) Views() []entities.RoomView {
	rooms := c.Rooms()
	views := make([]entities.RoomView, 0, len(rooms))
	for _, r := range rooms {
		views = append(views, entities.RoomView{Room: *r, Occupancy: c.Occupancy(r.ID)})
	}
	return views
}

// Refresh re-reads active templates and swaps them in. Failures and empty
// results keep the current table.
func (c *RoomCatalog) Refresh(ctx context.Context) error {
	if c.templates == nil {
		return nil
	}

	rooms, err := c.templates.GetActive(ctx)
	if err != nil {
		log.WithError(err).Warn("Room template refresh failed, keeping current catalog")
		return err
	}
	if len(rooms) == 0 {
		log.Debug("No active room templates, keeping current catalog")
		return nil
	}

	c.swap(rooms)
	log.WithField("rooms", len(rooms)).Debug("Room catalog refreshed")
	return nil
}

func (c *RoomCatalog) counter(roomID int) *atomic.Int64 {
	c.occupancyMu.RLock()
	counter, ok := c.occupancy[roomID]
	c.occupancyMu.RUnlock()
	if ok {
		return counter
	}

	c.occupancyMu.Lock()
	defer c.occupancyMu.Unlock()
	if counter, ok = c.occupancy[roomID]; !ok {
		counter = &atomic.Int64{}
		c.occupancy[roomID] = counter
	}
	return counter
}

// AddOccupant increments a room's player count
func (c *RoomCatalog) AddOccupant(roomID int) int64 {
	return c.counter(roomID).Add(1)
}

// RemoveOccupant decrements a room's player count, never below zero
func (c *RoomCatalog) RemoveOccupant(roomID int) int64 {
	counter := c.counter(roomID)
	for {
		cur := counter.Load()
		if cur <= 0 {
			return 0
		}
		if counter.CompareAndSwap(cur, cur-1) {
			return cur - 1
		}
	}
}

// Occupancy returns a room's current player count
func (c *RoomCatalog) Occupancy(roomID int) int64 {
	return c.counter(roomID).Load()
}
