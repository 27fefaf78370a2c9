package application

import (
	"context"
	"testing"
	"time"

	"colorgame/domain/entities"
	"colorgame/domain/services"
	"colorgame/domain/testhelpers"
	"colorgame/infrastructure"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestSupervisor(t *testing.T, templates *testhelpers.MockRoomTemplateRepository) (*Supervisor, *services.RoundRegistry, *services.RoomCatalog) {
	t.Helper()

	rules := entities.DefaultGameRules()
	var catalog *services.RoomCatalog
	if templates != nil {
		catalog = services.NewRoomCatalog(templates, entities.DefaultRooms()[:2])
	} else {
		catalog = services.NewRoomCatalog(nil, entities.DefaultRooms())
	}
	registry := services.NewRoundRegistry()

	deps := services.RoundMachineDeps{
		Rules:       rules,
		Clock:       infrastructure.SystemClock{},
		Random:      infrastructure.CryptoRandom{},
		Broadcaster: testhelpers.NewRecordingBroadcaster(),
		Ledger:      services.NewBetLedger(rules.AllowRepeatBets),
		Stats:       services.NewStatsService(nil, rules.HistorySize),
	}
	return NewSupervisor(deps, registry, catalog), registry, catalog
}

func TestSupervisor_RunsEveryRoom(t *testing.T) {
	supervisor, registry, _ := newTestSupervisor(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	supervisor.Start(ctx)

	assert.Equal(t, []int{101, 102, 103, 104}, registry.RoomIDs())
	require.Eventually(t, func() bool {
		for _, id := range registry.RoomIDs() {
			if registry.CurrentRound(id) == nil {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	assert.Zero(t, supervisor.Sync(), "rooms already running are not started twice")

	cancel()
	done := make(chan struct{})
	go func() {
		supervisor.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("machines did not stop")
	}
	assert.Empty(t, registry.RoomIDs(), "stopped machines leave the registry")
	assert.Nil(t, registry.CurrentRound(101))

	assert.Zero(t, supervisor.Sync(), "nothing starts after shutdown")
}

func TestScheduler_RefreshStartsNewRooms(t *testing.T) {
	templates := new(testhelpers.MockRoomTemplateRepository)
	templates.On("GetActive", mock.Anything).Return(entities.DefaultRooms(), nil)

	supervisor, registry, catalog := newTestSupervisor(t, templates)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		supervisor.Wait()
	}()

	supervisor.Start(ctx)
	assert.Equal(t, []int{101, 102}, registry.RoomIDs())

	scheduler, err := NewScheduler("@every 1h", catalog, services.NewStatsService(nil, 10), supervisor)
	require.NoError(t, err)
	scheduler.RefreshCatalog()

	assert.Len(t, catalog.Rooms(), 4)
	assert.Equal(t, []int{101, 102, 103, 104}, registry.RoomIDs())
}

func TestScheduler_RejectsBadSpec(t *testing.T) {
	_, err := NewScheduler("every now and then", services.NewRoomCatalog(nil, nil), services.NewStatsService(nil, 10), nil)
	assert.Error(t, err)
}

func TestScheduler_StartStop(t *testing.T) {
	scheduler, err := NewScheduler("@every 1m", services.NewRoomCatalog(nil, entities.DefaultRooms()), services.NewStatsService(nil, 10), nil)
	require.NoError(t, err)

	scheduler.Start()
	assert.Len(t, scheduler.cron.Entries(), 2)
	scheduler.Stop()
}
