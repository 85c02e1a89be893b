package wallet

import "sync"

// ViewCache is a ViewSink that retains the most recent snapshot so pull-based
// shells, like the HTTP API, can serve it on demand.
type ViewCache struct {
	mu   sync.RWMutex
	view View
}

func NewViewCache() *ViewCache {
	return &ViewCache{view: View{Status: StatusIdle}}
}

func (vc *ViewCache) Render(view View) {
	vc.mu.Lock()
	vc.view = view
	vc.mu.Unlock()
}

// Latest returns the last rendered snapshot, or an idle view before the
// engine has rendered anything.
func (vc *ViewCache) Latest() View {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return vc.view
}
