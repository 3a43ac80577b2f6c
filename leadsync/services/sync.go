// Package services orchestrates the user-to-lead synchronization
// workflow between the host platform's user store and the Marketo API.
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gigaom/marketo-sync/pkg/bus"
	"github.com/gigaom/marketo-sync/pkg/fieldmap"
	"github.com/gigaom/marketo-sync/pkg/marketo"
	"github.com/gigaom/marketo-sync/pkg/store"
)

// Sync actions. Lifecycle events use add/update/delete; the
// do-not-email flag translates to subscribe/unsubscribe.
const (
	ActionAdd         = "add"
	ActionUpdate      = "update"
	ActionDelete      = "delete"
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// unsubscribedReason is the reason recorded on the lead when a user is
// unsubscribed or deleted.
const unsubscribedReason = "user unsubscribed"

// LeadSyncedEvent is published on the bus after every successful lead
// update.
type LeadSyncedEvent struct {
	User      *store.User
	MarketoID int
}

// Sync synchronizes users into Marketo leads. Syncs for the same user
// are serialized through a per-user lock; syncs for different users may
// run concurrently.
type Sync struct {
	client  marketo.Client
	users   store.UserStore
	records store.SyncRecordStore
	bus     *bus.Bus
	fields  fieldmap.Map
	listID  int
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewSync creates a new sync service. listID of zero disables the
// list-add step after lead updates.
func NewSync(
	client marketo.Client,
	users store.UserStore,
	records store.SyncRecordStore,
	b *bus.Bus,
	fields fieldmap.Map,
	listID int,
	logger *zap.Logger,
) *Sync {
	return &Sync{
		client:  client,
		users:   users,
		records: records,
		bus:     b,
		fields:  fields,
		listID:  listID,
		logger:  logger,
		locks:   make(map[int64]*sync.Mutex),
	}
}

// Register subscribes the service's handlers on the bus.
func (s *Sync) Register(b *bus.Bus) {
	b.Subscribe(bus.EventUserUpdated, s.HandleUserEvent)
	b.Subscribe(bus.EventDoNotEmailUpdated, s.HandleDoNotEmailEvent)
}

// SyncUser pushes one user to Marketo as a createOrUpdate and persists
// the resulting lead id locally. The payload merges the field-map
// output first and the structural fields (wpid, email, id, unsubscribe
// flags) last, so the structural fields win on key collision. Returns
// the Marketo lead id.
func (s *Sync) SyncUser(ctx context.Context, user *store.User, action string) (int, error) {
	unlock := s.lockUser(user.ID)
	defer unlock()

	syncID := uuid.NewString()
	s.logger.Info("Syncing user to Marketo",
		zap.String("sync_id", syncID),
		zap.Int64("user_id", user.ID),
		zap.String("action", action))

	lead := marketo.Lead{}
	for name, value := range s.fields.Apply(user) {
		lead[name] = value
	}

	lead["wpid"] = user.ID
	lead["email"] = user.Email

	// A known Marketo id switches the createOrUpdate lookup from email
	// to id, which keeps repeat syncs from creating duplicate leads.
	rec, err := s.records.Get(ctx, user.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load sync record: %w", err)
	}
	if rec != nil && rec.MarketoID > 0 {
		lead["id"] = rec.MarketoID
	}

	switch action {
	case ActionDelete, ActionUnsubscribe:
		lead["unsubscribed"] = true
		lead["unsubscribedReason"] = unsubscribedReason
	case ActionAdd, ActionSubscribe:
		lead["unsubscribed"] = false
		lead["unsubscribedReason"] = ""
	case ActionUpdate:
		// flags pass through as the field map produced them
	default:
		return 0, fmt.Errorf("unknown sync action %q", action)
	}

	marketoID, err := s.client.UpdateLead(ctx, lead)
	if err != nil {
		s.logger.Error("Lead update failed",
			zap.String("sync_id", syncID),
			zap.Int64("user_id", user.ID),
			zap.Error(err))
		return 0, err
	}

	// The write-back runs with sync triggers suspended so it cannot
	// re-enter as another sync event.
	if err := s.records.Put(WithSuspendedSync(ctx), user.ID, &store.SyncRecord{
		MarketoID: marketoID,
		Timestamp: time.Now().Unix(),
	}); err != nil {
		return 0, fmt.Errorf("failed to save sync record: %w", err)
	}

	// Best effort: the lead update already succeeded and is recorded,
	// so a list-add failure is logged but not escalated.
	if s.listID != 0 {
		if _, err := s.client.AddLeadToList(ctx, s.listID, marketoID); err != nil {
			s.logger.Warn("Failed to add lead to list",
				zap.String("sync_id", syncID),
				zap.Int("list_id", s.listID),
				zap.Int("marketo_id", marketoID),
				zap.Error(err))
		}
	}

	if s.bus != nil {
		s.bus.Publish(ctx, bus.EventLeadSynced, LeadSyncedEvent{User: user, MarketoID: marketoID})
	}

	s.logger.Info("User synced",
		zap.String("sync_id", syncID),
		zap.Int64("user_id", user.ID),
		zap.Int("marketo_id", marketoID))

	return marketoID, nil
}

// HandleUserEvent reacts to user lifecycle events from the bus.
func (s *Sync) HandleUserEvent(ctx context.Context, payload interface{}) {
	ev, ok := payload.(bus.UserEvent)
	if !ok {
		return
	}
	if SyncSuspended(ctx) {
		s.logger.Debug("Sync suspended, ignoring user event", zap.Int64("user_id", ev.UserID))
		return
	}

	user, err := s.users.GetByID(ctx, ev.UserID)
	if err != nil {
		s.logger.Error("Failed to resolve user for sync", zap.Int64("user_id", ev.UserID), zap.Error(err))
		return
	}
	if user == nil {
		s.logger.Warn("User event for unknown user", zap.Int64("user_id", ev.UserID))
		return
	}

	if _, err := s.SyncUser(ctx, user, ev.Action); err != nil {
		s.logger.Error("User event sync failed",
			zap.Int64("user_id", ev.UserID),
			zap.String("action", ev.Action),
			zap.Error(err))
	}
}

// HandleDoNotEmailEvent reacts to do-not-email flag changes from the
// bus.
func (s *Sync) HandleDoNotEmailEvent(ctx context.Context, payload interface{}) {
	ev, ok := payload.(bus.DoNotEmailEvent)
	if !ok {
		return
	}
	s.DoNotEmailUpdated(ctx, ev.UserID, ev.DoNotEmail)
}

// DoNotEmailUpdated translates a do-not-email flag change into a
// subscribe or unsubscribe sync. It is a no-op while sync is suspended
// on the context (the flag change originated from a Marketo webhook) or
// when the user id is invalid.
func (s *Sync) DoNotEmailUpdated(ctx context.Context, userID int64, doNotEmail bool) {
	if SyncSuspended(ctx) {
		s.logger.Debug("Sync suspended, ignoring do_not_email change", zap.Int64("user_id", userID))
		return
	}
	if userID <= 0 {
		return
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil || user == nil {
		s.logger.Warn("Cannot resolve user for do_not_email change",
			zap.Int64("user_id", userID), zap.Error(err))
		return
	}

	action := ActionSubscribe
	if doNotEmail {
		action = ActionUnsubscribe
	}

	if _, err := s.SyncUser(ctx, user, action); err != nil {
		s.logger.Error("do_not_email sync failed",
			zap.Int64("user_id", userID),
			zap.String("action", action),
			zap.Error(err))
	}
}

// lockUser serializes syncs for one user id.
func (s *Sync) lockUser(userID int64) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}
