package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gigaom/marketo-sync/leadsync/services"
	"github.com/gigaom/marketo-sync/pkg/bus"
	"github.com/gigaom/marketo-sync/pkg/fieldmap"
	"github.com/gigaom/marketo-sync/pkg/marketo"
	"github.com/gigaom/marketo-sync/pkg/store"
)

// fakeMarketo records lead operations and returns scripted results.
type fakeMarketo struct {
	mu        sync.Mutex
	leads     []marketo.Lead
	updateID  int
	updateErr error
	listAdds  [][2]int
	listErr   error
}

func (f *fakeMarketo) GetAuthToken(ctx context.Context) (string, error) { return "token", nil }

func (f *fakeMarketo) GetLeadByID(ctx context.Context, id int) (marketo.Lead, error) {
	return nil, nil
}

func (f *fakeMarketo) GetLeads(ctx context.Context, filterType string, filterValues []string, fields []string) ([]marketo.Lead, error) {
	return nil, nil
}

func (f *fakeMarketo) UpdateLead(ctx context.Context, lead marketo.Lead) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return 0, f.updateErr
	}
	copied := marketo.Lead{}
	for k, v := range lead {
		copied[k] = v
	}
	f.leads = append(f.leads, copied)
	return f.updateID, nil
}

func (f *fakeMarketo) AddLeadToList(ctx context.Context, listID, leadID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listAdds = append(f.listAdds, [2]int{listID, leadID})
	if f.listErr != nil {
		return 0, f.listErr
	}
	return leadID, nil
}

func (f *fakeMarketo) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.leads)
}

func (f *fakeMarketo) lastLead(t *testing.T) marketo.Lead {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.leads)
	return f.leads[len(f.leads)-1]
}

type fixture struct {
	client *fakeMarketo
	store  *store.MemoryStore
	bus    *bus.Bus
	sync   *services.Sync
	user   *store.User
}

func newFixture(t *testing.T, fields fieldmap.Map, listID int) *fixture {
	t.Helper()

	client := &fakeMarketo{updateID: 42}
	mem := store.NewMemoryStore()
	b := bus.New(zap.NewNop())

	user := &store.User{ID: 7, Email: "x@y.com", Login: "xy", DisplayName: "X Y"}
	mem.AddUser(user)

	svc := services.NewSync(client, mem, mem, b, fields, listID, zap.NewNop())
	svc.Register(b)

	return &fixture{client: client, store: mem, bus: b, sync: svc, user: user}
}

func TestSyncUserAddSetsSubscribeFlags(t *testing.T) {
	f := newFixture(t, nil, 0)

	id, err := f.sync.SyncUser(context.Background(), f.user, services.ActionAdd)
	require.NoError(t, err)
	assert.Equal(t, 42, id)

	lead := f.client.lastLead(t)
	assert.Equal(t, false, lead["unsubscribed"])
	assert.Equal(t, "", lead["unsubscribedReason"])
	assert.Equal(t, int64(7), lead["wpid"])
	assert.Equal(t, "x@y.com", lead["email"])
	_, hasID := lead.ID()
	assert.False(t, hasID, "first sync must look up by email")
}

func TestSyncUserDeleteSetsUnsubscribeFlags(t *testing.T) {
	f := newFixture(t, nil, 0)

	_, err := f.sync.SyncUser(context.Background(), f.user, services.ActionDelete)
	require.NoError(t, err)

	lead := f.client.lastLead(t)
	assert.Equal(t, true, lead["unsubscribed"])
	assert.Equal(t, "user unsubscribed", lead["unsubscribedReason"])
}

func TestSyncUserUpdateLeavesFlagsUntouched(t *testing.T) {
	f := newFixture(t, nil, 0)

	_, err := f.sync.SyncUser(context.Background(), f.user, services.ActionUpdate)
	require.NoError(t, err)

	lead := f.client.lastLead(t)
	_, hasFlag := lead["unsubscribed"]
	assert.False(t, hasFlag)
}

func TestSyncUserRejectsUnknownAction(t *testing.T) {
	f := newFixture(t, nil, 0)

	_, err := f.sync.SyncUser(context.Background(), f.user, "archive")
	require.Error(t, err)
	assert.Equal(t, 0, f.client.updateCount())
}

func TestSyncUserIdempotentSecondSyncUsesID(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()

	first, err := f.sync.SyncUser(ctx, f.user, services.ActionAdd)
	require.NoError(t, err)

	second, err := f.sync.SyncUser(ctx, f.user, services.ActionAdd)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	lead := f.client.lastLead(t)
	id, ok := lead.ID()
	require.True(t, ok, "second sync must carry the known Marketo id")
	assert.Equal(t, 42, id)
}

func TestSyncUserPersistsSyncRecord(t *testing.T) {
	f := newFixture(t, nil, 0)

	_, err := f.sync.SyncUser(context.Background(), f.user, services.ActionAdd)
	require.NoError(t, err)

	rec, err := f.store.Get(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 42, rec.MarketoID)
	assert.NotZero(t, rec.Timestamp)
}

func TestSyncUserFailureLeavesNoLocalState(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.client.updateErr = &marketo.APIError{Code: "1007", Message: "multiple leads match"}

	_, err := f.sync.SyncUser(context.Background(), f.user, services.ActionAdd)

	var apiErr *marketo.APIError
	require.ErrorAs(t, err, &apiErr, "the API error must pass through unwrapped")

	rec, recErr := f.store.Get(context.Background(), f.user.ID)
	require.NoError(t, recErr)
	assert.Nil(t, rec)
}

func TestSyncUserAddsLeadToConfiguredList(t *testing.T) {
	f := newFixture(t, nil, 1138)

	_, err := f.sync.SyncUser(context.Background(), f.user, services.ActionAdd)
	require.NoError(t, err)

	require.Len(t, f.client.listAdds, 1)
	assert.Equal(t, [2]int{1138, 42}, f.client.listAdds[0])
}

func TestSyncUserListAddFailureIsolated(t *testing.T) {
	f := newFixture(t, nil, 1138)
	f.client.listErr = &marketo.ListAddError{ListID: 1138, LeadID: 42}

	id, err := f.sync.SyncUser(context.Background(), f.user, services.ActionAdd)
	require.NoError(t, err, "list-add failure must not escalate")
	assert.Equal(t, 42, id)

	rec, err := f.store.Get(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 42, rec.MarketoID)
}

func TestSyncUserStructuralFieldsWin(t *testing.T) {
	fields, err := fieldmap.Parse([]byte(`{
		"email": {"kind": "constant", "value": "mapped@example.com"},
		"wpname": {"kind": "computed", "source": "full_name"}
	}`))
	require.NoError(t, err)

	f := newFixture(t, fields, 0)

	_, err = f.sync.SyncUser(context.Background(), f.user, services.ActionAdd)
	require.NoError(t, err)

	lead := f.client.lastLead(t)
	assert.Equal(t, "x@y.com", lead["email"], "structural email must override the field map")
	assert.Equal(t, "X Y", lead["wpname"])
}

func TestSyncUserPublishesCompletionEvent(t *testing.T) {
	f := newFixture(t, nil, 0)

	var got services.LeadSyncedEvent
	f.bus.Subscribe(bus.EventLeadSynced, func(ctx context.Context, payload interface{}) {
		got = payload.(services.LeadSyncedEvent)
	})

	_, err := f.sync.SyncUser(context.Background(), f.user, services.ActionAdd)
	require.NoError(t, err)

	assert.Equal(t, f.user.ID, got.User.ID)
	assert.Equal(t, 42, got.MarketoID)
}

func TestDoNotEmailUpdatedUnsubscribes(t *testing.T) {
	f := newFixture(t, nil, 0)

	f.sync.DoNotEmailUpdated(context.Background(), f.user.ID, true)

	lead := f.client.lastLead(t)
	assert.Equal(t, true, lead["unsubscribed"])
}

func TestDoNotEmailUpdatedResubscribes(t *testing.T) {
	f := newFixture(t, nil, 0)

	f.sync.DoNotEmailUpdated(context.Background(), f.user.ID, false)

	lead := f.client.lastLead(t)
	assert.Equal(t, false, lead["unsubscribed"])
}

func TestDoNotEmailUpdatedNoopWhenSuspended(t *testing.T) {
	f := newFixture(t, nil, 0)

	ctx := services.WithSuspendedSync(context.Background())
	f.sync.DoNotEmailUpdated(ctx, f.user.ID, true)

	assert.Equal(t, 0, f.client.updateCount(), "suspended context must block the outbound sync")
}

func TestDoNotEmailUpdatedNoopOnInvalidUserID(t *testing.T) {
	f := newFixture(t, nil, 0)

	f.sync.DoNotEmailUpdated(context.Background(), 0, true)
	f.sync.DoNotEmailUpdated(context.Background(), -3, true)

	assert.Equal(t, 0, f.client.updateCount())
}

func TestUserEventTriggersSync(t *testing.T) {
	f := newFixture(t, nil, 0)

	f.bus.Publish(context.Background(), bus.EventUserUpdated, bus.UserEvent{UserID: f.user.ID, Action: "update"})

	assert.Equal(t, 1, f.client.updateCount())
}

func TestUserEventIgnoredWhenSuspended(t *testing.T) {
	f := newFixture(t, nil, 0)

	ctx := services.WithSuspendedSync(context.Background())
	f.bus.Publish(ctx, bus.EventUserUpdated, bus.UserEvent{UserID: f.user.ID, Action: "update"})

	assert.Equal(t, 0, f.client.updateCount())
}

func TestUserEventForUnknownUserIsDropped(t *testing.T) {
	f := newFixture(t, nil, 0)

	f.bus.Publish(context.Background(), bus.EventUserUpdated, bus.UserEvent{UserID: 999, Action: "update"})

	assert.Equal(t, 0, f.client.updateCount())
}

func TestConcurrentSyncsForSameUserSerialize(t *testing.T) {
	f := newFixture(t, nil, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sync.SyncUser(context.Background(), f.user, services.ActionUpdate)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, f.client.updateCount())

	rec, err := f.store.Get(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 42, rec.MarketoID)
}

func TestSyncFailureIsLoggedNotFatal(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.client.updateErr = errors.New("connection reset")

	// Event-driven syncs swallow the failure; nothing panics and no
	// state is mutated.
	f.bus.Publish(context.Background(), bus.EventUserUpdated, bus.UserEvent{UserID: f.user.ID, Action: "update"})

	rec, err := f.store.Get(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Nil(t, rec)
}
