package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfigueroa/linealert/internal/stops"
	"github.com/mfigueroa/linealert/internal/store"
	"github.com/mfigueroa/linealert/internal/transit"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeUserSource struct {
	users []store.User
	err   error
}

func (f *fakeUserSource) ListUsers(ctx context.Context) ([]store.User, error) {
	return f.users, f.err
}

type fakeSource struct {
	mu          sync.Mutex
	predictions []transit.Prediction
	calls       []string
}

func (f *fakeSource) AllPredictions(ctx context.Context, stopID string) []transit.Prediction {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, stopID)
	out := make([]transit.Prediction, len(f.predictions))
	copy(out, f.predictions)
	for i := range out {
		out[i].StopID = stopID
	}
	return out
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type sentMessage struct {
	To, Carrier, Subject, Body string
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sentMessage
	failTo string // phone number whose sends fail
}

func (f *fakeSender) Send(ctx context.Context, to, carrier, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if to == f.failTo {
		return errors.New("gateway rejected message")
	}
	f.sent = append(f.sent, sentMessage{to, carrier, subject, body})
	return nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func userWithHome(phone string, lat, lng float64, favorites ...string) store.User {
	return store.User{
		PhoneNumber:   phone,
		Carrier:       "verizon",
		FavoriteLines: favorites,
		HomeLat:       &lat,
		HomeLng:       &lng,
	}
}

func testIndex() *stops.Index {
	return stops.FromStops([]stops.Stop{
		{ID: "40380", Name: "Clark/Lake", Lat: 41.880, Lng: -87.630},
	})
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestSweepDispatchesMatchingAlert(t *testing.T) {
	u := userWithHome("3125550100", 41.880, -87.630, "Red")
	u.NotificationSettings = `{"threshold_minutes": 10}`

	source := &fakeSource{predictions: []transit.Prediction{{Line: "Red", ArrivalMinutes: 4}}}
	sender := &fakeSender{}

	sw := NewSweeper(SweeperConfig{
		Store:  &fakeUserSource{users: []store.User{u}},
		Stops:  testIndex(),
		Source: source,
		Sender: sender,
	})

	result := sw.Run(context.Background())

	assert.Equal(t, 1, result.UsersScanned)
	assert.Equal(t, 1, result.AlertsSent)
	assert.Zero(t, result.AlertsFailed)

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "3125550100", msgs[0].To)
	assert.Equal(t, "verizon", msgs[0].Carrier)
	assert.Contains(t, msgs[0].Body, "Red")
	assert.Contains(t, msgs[0].Body, "4")
}

func TestSweepSkipsUserWithoutHome(t *testing.T) {
	u := store.User{PhoneNumber: "3125550100", Carrier: "att", FavoriteLines: []string{"Red"}}

	source := &fakeSource{predictions: []transit.Prediction{{Line: "Red", ArrivalMinutes: 1}}}
	sender := &fakeSender{}

	sw := NewSweeper(SweeperConfig{
		Store:  &fakeUserSource{users: []store.User{u}},
		Stops:  testIndex(),
		Source: source,
		Sender: sender,
	})

	result := sw.Run(context.Background())

	assert.Equal(t, 1, result.UsersSkipped)
	assert.Zero(t, source.callCount(), "no gateway calls for a user without a home")
	assert.Empty(t, sender.messages())
}

func TestSweepSkipsUserWithoutFavorites(t *testing.T) {
	u := userWithHome("3125550100", 41.880, -87.630)

	source := &fakeSource{predictions: []transit.Prediction{{Line: "Red", ArrivalMinutes: 1}}}
	sender := &fakeSender{}

	sw := NewSweeper(SweeperConfig{
		Store:  &fakeUserSource{users: []store.User{u}},
		Stops:  testIndex(),
		Source: source,
		Sender: sender,
	})

	result := sw.Run(context.Background())

	assert.Equal(t, 1, result.UsersSkipped)
	assert.Zero(t, source.callCount())
}

func TestSweepSkipsDispatchWithoutContactInfo(t *testing.T) {
	u := userWithHome("3125550100", 41.880, -87.630, "Red")
	u.Carrier = ""

	source := &fakeSource{predictions: []transit.Prediction{{Line: "Red", ArrivalMinutes: 1}}}
	sender := &fakeSender{}

	sw := NewSweeper(SweeperConfig{
		Store:  &fakeUserSource{users: []store.User{u}},
		Stops:  testIndex(),
		Source: source,
		Sender: sender,
	})

	result := sw.Run(context.Background())

	assert.Empty(t, sender.messages())
	assert.Zero(t, result.AlertsFailed, "missing contact info is a skip, not a failure")
}

func TestSweepDispatchFailureDoesNotAbort(t *testing.T) {
	u1 := userWithHome("3125550100", 41.880, -87.630, "Red")
	u2 := userWithHome("3125550101", 41.880, -87.630, "Red")

	source := &fakeSource{predictions: []transit.Prediction{{Line: "Red", ArrivalMinutes: 2}}}
	sender := &fakeSender{failTo: "3125550100"}

	sw := NewSweeper(SweeperConfig{
		Store:  &fakeUserSource{users: []store.User{u1, u2}},
		Stops:  testIndex(),
		Source: source,
		Sender: sender,
	})

	result := sw.Run(context.Background())

	assert.Equal(t, 1, result.AlertsFailed)
	assert.Equal(t, 1, result.AlertsSent)
	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "3125550101", msgs[0].To)
}

func TestSweepSuppressionAcrossTicks(t *testing.T) {
	u := userWithHome("3125550100", 41.880, -87.630, "Red")

	source := &fakeSource{predictions: []transit.Prediction{{Line: "Red", ArrivalMinutes: 2}}}
	sender := &fakeSender{}
	sup := NewSuppressor(time.Hour)
	defer sup.Close()

	sw := NewSweeper(SweeperConfig{
		Store:      &fakeUserSource{users: []store.User{u}},
		Stops:      testIndex(),
		Source:     source,
		Sender:     sender,
		Suppressor: sup,
	})

	first := sw.Run(context.Background())
	second := sw.Run(context.Background())

	assert.Equal(t, 1, first.AlertsSent)
	assert.Zero(t, second.AlertsSent)
	assert.Equal(t, 1, second.AlertsSuppressed)
	assert.Len(t, sender.messages(), 1)
}

func TestSweepFailedDispatchDoesNotBurnSuppressionWindow(t *testing.T) {
	u := userWithHome("3125550100", 41.880, -87.630, "Red")

	source := &fakeSource{predictions: []transit.Prediction{{Line: "Red", ArrivalMinutes: 2}}}
	sender := &fakeSender{failTo: "3125550100"}
	sup := NewSuppressor(time.Hour)
	defer sup.Close()

	sw := NewSweeper(SweeperConfig{
		Store:      &fakeUserSource{users: []store.User{u}},
		Stops:      testIndex(),
		Source:     source,
		Sender:     sender,
		Suppressor: sup,
	})

	first := sw.Run(context.Background())
	assert.Equal(t, 1, first.AlertsFailed)

	// Gateway recovers; the pair must not be suppressed by the failure.
	sender.mu.Lock()
	sender.failTo = ""
	sender.mu.Unlock()

	second := sw.Run(context.Background())
	assert.Equal(t, 1, second.AlertsSent)
	assert.Zero(t, second.AlertsSuppressed)
	assert.Len(t, sender.messages(), 1)
}

func TestSweepListUsersFailure(t *testing.T) {
	sw := NewSweeper(SweeperConfig{
		Store:  &fakeUserSource{err: errors.New("db down")},
		Stops:  testIndex(),
		Source: &fakeSource{},
		Sender: &fakeSender{},
	})

	result := sw.Run(context.Background())
	require.Len(t, result.Errors, 1)
	assert.Zero(t, result.UsersScanned)
}

func TestSweepManyUsersWithWorkers(t *testing.T) {
	var users []store.User
	for i := 0; i < 20; i++ {
		users = append(users, userWithHome(fmt.Sprintf("31255501%02d", i), 41.880, -87.630, "Red"))
	}

	source := &fakeSource{predictions: []transit.Prediction{{Line: "Red", ArrivalMinutes: 1}}}
	sender := &fakeSender{}

	sw := NewSweeper(SweeperConfig{
		Store:   &fakeUserSource{users: users},
		Stops:   testIndex(),
		Source:  source,
		Sender:  sender,
		Workers: 4,
	})

	result := sw.Run(context.Background())
	assert.Equal(t, 20, result.UsersScanned)
	assert.Equal(t, 20, result.AlertsSent)
}
