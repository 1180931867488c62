package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/nhle/blogbell/internal/model"
)

// Pager loads numbered pages of the full history.
type Pager interface {
	History(ctx context.Context, page, limit int) (*model.HistoryPage, error)
}

// Archive browses history beyond the Store's first page. It keeps its
// own page and never touches the Store's list or count; reads go through
// the Store so both views agree on what was acknowledged.
type Archive struct {
	pager Pager
	store *Store
	limit int

	mu      sync.Mutex
	current *model.HistoryPage
}

// NewArchive creates an Archive showing limit notifications per page.
func NewArchive(pager Pager, store *Store, limit int) *Archive {
	if limit <= 0 {
		limit = 10
	}
	return &Archive{pager: pager, store: store, limit: limit}
}

// Load fetches page (1-based, clamped to 1) and makes it current. On
// error the current page is kept.
func (a *Archive) Load(ctx context.Context, page int) (*model.HistoryPage, error) {
	page = max(page, 1)

	p, err := a.pager.History(ctx, page, a.limit)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	a.mu.Lock()
	a.current = p
	out := copyPage(p)
	a.mu.Unlock()
	return out, nil
}

// Current returns the loaded page, if any.
func (a *Archive) Current() (*model.HistoryPage, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil, false
	}
	return copyPage(a.current), true
}

// MarkAsRead acknowledges id through the Store and flips the archived
// copy, following the Store's read policy: optimistic reads stay flipped
// when the server call fails, strict reads flip only on success.
func (a *Archive) MarkAsRead(ctx context.Context, id string) error {
	optimistic := a.store.opts.ReadPolicy != model.ReadStrict
	if optimistic {
		a.flip(id)
	}

	if err := a.store.MarkAsRead(ctx, id); err != nil {
		return err
	}

	if !optimistic {
		a.flip(id)
	}
	return nil
}

func (a *Archive) flip(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return
	}
	for i := range a.current.Items {
		if a.current.Items[i].ID == id {
			a.current.Items[i].IsRead = true
		}
	}
}

// Reset forgets the loaded page.
func (a *Archive) Reset() {
	a.mu.Lock()
	a.current = nil
	a.mu.Unlock()
}

func copyPage(p *model.HistoryPage) *model.HistoryPage {
	out := *p
	out.Items = make([]model.Notification, len(p.Items))
	copy(out.Items, p.Items)
	return &out
}
