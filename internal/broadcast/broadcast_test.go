package broadcast_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kseli/kseli-go/internal/broadcast"
)

func TestChannel_AnnounceReachesOtherChannels(t *testing.T) {
	bus := broadcast.NewBus()
	tabA := bus.Open(broadcast.ActiveRoomChannel)
	tabB := bus.Open(broadcast.ActiveRoomChannel)

	var gotRoom, gotErr string
	unsub := tabB.Observe(func(roomID, errMsg string) {
		gotRoom, gotErr = roomID, errMsg
	})
	defer unsub()
	defer tabA.Close()

	tabA.Observe(func(string, string) { t.Error("announcer must not hear its own announcement") })
	tabA.Announce("R1", "")

	assert.Equal(t, "R1", gotRoom)
	assert.Empty(t, gotErr)
}

func TestChannel_SecondRoomConflictScenario(t *testing.T) {
	bus := broadcast.NewBus()
	tabA := bus.Open(broadcast.ActiveRoomChannel)
	tabB := bus.Open(broadcast.ActiveRoomChannel)
	defer tabA.Close()
	defer tabB.Close()

	targetRoom := "R2"
	conflict := false
	tabB.Observe(func(roomID, _ string) {
		if roomID != "" && roomID != targetRoom {
			conflict = true
		}
	})
	tabA.Observe(func(string, string) {})

	tabA.Announce("R1", "")

	assert.True(t, conflict, "tab B targeting R2 must see a conflict when tab A announces R1")
}

func TestChannel_ObserversInvokedInRegistrationOrder(t *testing.T) {
	bus := broadcast.NewBus()
	tabA := bus.Open("c")
	tabB := bus.Open("c")
	defer tabA.Close()
	defer tabB.Close()

	var order []int
	tabB.Observe(func(string, string) { order = append(order, 1) })
	tabB.Observe(func(string, string) { order = append(order, 2) })
	tabA.Observe(func(string, string) {})

	tabA.Announce("R1", "")

	assert.Equal(t, []int{1, 2}, order)
}

func TestChannel_UnsubscribeStopsDelivery(t *testing.T) {
	bus := broadcast.NewBus()
	tabA := bus.Open("c")
	tabB := bus.Open("c")
	defer tabA.Close()

	calls := 0
	unsub := tabB.Observe(func(string, string) { calls++ })
	tabA.Observe(func(string, string) {})

	tabA.Announce("R1", "")
	unsub()
	unsub() // idempotent
	tabA.Announce("R2", "")

	assert.Equal(t, 1, calls)
}

func TestChannel_ReleasedAfterLastUnsubscribe(t *testing.T) {
	bus := broadcast.NewBus()
	tabA := bus.Open("c")
	tabB := bus.Open("c")
	defer tabA.Close()

	unsub := tabB.Observe(func(string, string) { t.Error("released channel must not receive announcements") })
	unsub()
	tabA.Observe(func(string, string) {})

	tabA.Announce("R1", "")
}
