// Package notify holds the signed-in member's notification list and
// unread count, merging pushed notifications with fetched history.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nhle/blogbell/internal/model"
)

// ErrSignedOut is returned by operations that need an active session.
var ErrSignedOut = errors.New("not signed in")

// History fetches pages of notification history.
type History interface {
	FetchPage(ctx context.Context, limit, offset int) (*model.Page, error)
}

// Acknowledger records read state on the server.
type Acknowledger interface {
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
}

// Channel is the live push channel.
type Channel interface {
	Start()
	Stop()
	Subscribe(fn func(model.Notification)) func()
}

// Options configures a Store.
type Options struct {
	PageSize   int
	ReadPolicy model.ReadPolicy
}

// Snapshot is a copy of the store's state.
type Snapshot struct {
	SignedIn bool
	Items    []model.Notification
	Unread   int
	Loading  bool
	Live     bool
}

// pushRecord is a push that arrived while a fetch was in flight. seq is
// the newest fetch issued at arrival time.
type pushRecord struct {
	seq uint64
	n   model.Notification
}

// readRecord is a notification marked read while a fetch was in flight.
type readRecord struct {
	seq uint64
	id  string
}

// Store is the notification state of one member session.
type Store struct {
	history History
	acks    Acknowledger
	channel Channel
	opts    Options
	logger  *zap.SugaredLogger

	// lifecycle serializes SignIn and SignOut so the channel's running
	// state always matches signedIn.
	lifecycle sync.Mutex

	mu          sync.Mutex
	signedIn    bool
	session     uint64
	items       []model.Notification
	unread      int
	issued      uint64
	applied     uint64
	inflight    int
	pending     []pushRecord
	reads       []readRecord
	live        bool
	unsubscribe func()

	// publishMu orders emissions: a snapshot is taken and delivered
	// under it, so observers never see an older state after a newer one.
	publishMu sync.Mutex
	observers registry[Snapshot]
}

// NewStore creates a signed-out Store.
func NewStore(history History, acks Acknowledger, channel Channel, opts Options, logger *zap.SugaredLogger) *Store {
	if opts.PageSize <= 0 {
		opts.PageSize = 6
	}
	if opts.ReadPolicy == "" {
		opts.ReadPolicy = model.ReadOptimistic
	}

	return &Store{
		history: history,
		acks:    acks,
		channel: channel,
		opts:    opts,
		logger:  logger,
	}
}

// Subscribe registers fn to receive a snapshot after every state change.
// Snapshots arrive in state order. fn must not call back into the Store.
// The returned function unsubscribes.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	return s.observers.add(fn)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	items := make([]model.Notification, len(s.items))
	copy(items, s.items)
	return Snapshot{
		SignedIn: s.signedIn,
		Items:    items,
		Unread:   s.unread,
		Loading:  s.inflight > 0,
		Live:     s.live,
	}
}

func (s *Store) publish() {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.observers.emit(s.Snapshot())
}

// SignIn starts a session: it subscribes to the channel, starts it and
// fetches the first page. A fetch error is returned but the channel
// stays up. Signing in twice is a no-op.
func (s *Store) SignIn(ctx context.Context) error {
	s.lifecycle.Lock()
	s.mu.Lock()
	if s.signedIn {
		s.mu.Unlock()
		s.lifecycle.Unlock()
		return nil
	}
	s.signedIn = true
	s.session++
	s.unsubscribe = s.channel.Subscribe(s.OnPush)
	s.mu.Unlock()

	s.channel.Start()
	s.lifecycle.Unlock()
	s.publish()

	return s.Refresh(ctx)
}

// SignOut stops the channel and discards all state. Fetches still in
// flight are ignored when they complete.
func (s *Store) SignOut() {
	s.lifecycle.Lock()
	s.mu.Lock()
	if !s.signedIn {
		s.mu.Unlock()
		s.lifecycle.Unlock()
		return
	}
	s.signedIn = false
	s.session++
	s.items = nil
	s.unread = 0
	s.inflight = 0
	s.pending = nil
	s.reads = nil
	s.live = false
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.channel.Stop()
	s.lifecycle.Unlock()
	s.publish()
}

// SetLive records whether the push channel is currently open.
func (s *Store) SetLive(live bool) {
	s.mu.Lock()
	if !s.signedIn || s.live == live {
		s.mu.Unlock()
		return
	}
	s.live = live
	s.mu.Unlock()

	s.publish()
}

// OnPush merges a pushed notification. A notification whose id is
// already listed is ignored.
func (s *Store) OnPush(n model.Notification) {
	s.mu.Lock()
	if !s.signedIn {
		s.mu.Unlock()
		return
	}
	if s.inflight > 0 {
		s.pending = append(s.pending, pushRecord{seq: s.issued, n: n})
	}
	added := s.prependLocked(n)
	s.mu.Unlock()

	if added {
		s.publish()
	}
}

// prependLocked puts n at the front of the list unless its id is present.
func (s *Store) prependLocked(n model.Notification) bool {
	if s.indexLocked(n.ID) >= 0 {
		return false
	}
	s.items = append([]model.Notification{n}, s.items...)
	if !n.IsRead {
		s.unread++
	}
	return true
}

func (s *Store) indexLocked(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

// markLocked flips one listed notification to read. Recorded pushes
// are updated too so a replay cannot bring back an unread copy.
func (s *Store) markLocked(id string) bool {
	s.recordReadLocked(id)
	for j := range s.pending {
		if s.pending[j].n.ID == id {
			s.pending[j].n.IsRead = true
		}
	}

	i := s.indexLocked(id)
	if i < 0 || s.items[i].IsRead {
		return false
	}
	s.items[i].IsRead = true
	if s.unread > 0 {
		s.unread--
	}
	return true
}

func (s *Store) markAllLocked() {
	for i := range s.items {
		s.items[i].IsRead = true
		s.recordReadLocked(s.items[i].ID)
	}
	for j := range s.pending {
		s.pending[j].n.IsRead = true
	}
	s.unread = 0
}

// recordReadLocked remembers a read made while a fetch runs, since that
// fetch may return the notification as still unread.
func (s *Store) recordReadLocked(id string) {
	if s.inflight > 0 {
		s.reads = append(s.reads, readRecord{seq: s.issued, id: id})
	}
}

// Refresh refetches the first page and replaces the list and unread
// count with it. Responses older than one already applied are dropped;
// pushes received while the fetch ran are laid back on top. On error
// the previous state is kept.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if !s.signedIn {
		s.mu.Unlock()
		return ErrSignedOut
	}
	s.issued++
	seq := s.issued
	session := s.session
	s.inflight++
	s.mu.Unlock()

	s.publish()

	page, err := s.history.FetchPage(ctx, s.opts.PageSize, 0)

	s.mu.Lock()
	if s.session != session {
		s.mu.Unlock()
		return nil
	}
	s.inflight--

	if err != nil {
		s.prunePendingLocked()
		s.mu.Unlock()
		s.publish()
		return fmt.Errorf("refreshing notifications: %w", err)
	}

	if seq < s.applied {
		s.logger.Debugw("discarding stale notification page", "seq", seq, "applied", s.applied)
		s.prunePendingLocked()
		s.mu.Unlock()
		s.publish()
		return nil
	}

	s.applied = seq
	s.items = make([]model.Notification, 0, len(page.Items))
	for _, n := range page.Items {
		if s.indexLocked(n.ID) < 0 {
			s.items = append(s.items, n)
		}
	}
	s.unread = max(page.Unread, 0)

	for _, rec := range s.reads {
		if rec.seq < seq {
			continue
		}
		if i := s.indexLocked(rec.id); i >= 0 && !s.items[i].IsRead {
			s.items[i].IsRead = true
			if s.unread > 0 {
				s.unread--
			}
		}
	}

	for _, rec := range s.pending {
		if rec.seq >= seq {
			s.prependLocked(rec.n)
		}
	}
	s.prunePendingLocked()
	s.mu.Unlock()

	s.publish()
	return nil
}

// prunePendingLocked drops recorded pushes and reads no future fetch can
// need.
func (s *Store) prunePendingLocked() {
	if s.inflight == 0 {
		s.pending = nil
		s.reads = nil
		return
	}
	kept := s.pending[:0]
	for _, rec := range s.pending {
		if rec.seq > s.applied {
			kept = append(kept, rec)
		}
	}
	s.pending = kept

	keptReads := s.reads[:0]
	for _, rec := range s.reads {
		if rec.seq > s.applied {
			keptReads = append(keptReads, rec)
		}
	}
	s.reads = keptReads
}

// MarkAsRead marks one notification read. Marking a read notification
// is a no-op. Under the optimistic policy the local change stays even if
// the server call fails; under the strict policy it is applied only
// after the server confirms.
func (s *Store) MarkAsRead(ctx context.Context, id string) error {
	s.mu.Lock()
	if !s.signedIn {
		s.mu.Unlock()
		return ErrSignedOut
	}
	if i := s.indexLocked(id); i >= 0 && s.items[i].IsRead {
		s.mu.Unlock()
		return nil
	}
	session := s.session

	if s.opts.ReadPolicy == model.ReadStrict {
		s.mu.Unlock()

		if err := s.acks.MarkRead(ctx, id); err != nil {
			return fmt.Errorf("marking notification as read: %w", err)
		}

		s.mu.Lock()
		changed := s.session == session && s.markLocked(id)
		s.mu.Unlock()
		if changed {
			s.publish()
		}
		return nil
	}

	changed := s.markLocked(id)
	s.mu.Unlock()
	if changed {
		s.publish()
	}

	if err := s.acks.MarkRead(ctx, id); err != nil {
		s.logger.Warnw("read acknowledgement failed, keeping local state", "id", id, "error", err)
		return fmt.Errorf("marking notification as read: %w", err)
	}
	return nil
}

// MarkAllAsRead marks every notification read with a single server call.
func (s *Store) MarkAllAsRead(ctx context.Context) error {
	s.mu.Lock()
	if !s.signedIn {
		s.mu.Unlock()
		return ErrSignedOut
	}
	session := s.session

	if s.opts.ReadPolicy == model.ReadStrict {
		s.mu.Unlock()

		if err := s.acks.MarkAllRead(ctx); err != nil {
			return fmt.Errorf("marking all notifications as read: %w", err)
		}

		s.mu.Lock()
		applied := s.session == session
		if applied {
			s.markAllLocked()
		}
		s.mu.Unlock()
		if applied {
			s.publish()
		}
		return nil
	}

	s.markAllLocked()
	s.mu.Unlock()
	s.publish()

	if err := s.acks.MarkAllRead(ctx); err != nil {
		s.logger.Warnw("bulk read acknowledgement failed, keeping local state", "error", err)
		return fmt.Errorf("marking all notifications as read: %w", err)
	}
	return nil
}
