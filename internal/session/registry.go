package session

import (
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"cgi-ad-studio/internal/studio"
)

type Options struct {
	// TTL evicts a chat's workflow after this much idle time.
	TTL time.Duration
	// New builds a fresh controller for a chat seen for the first time
	// (or seen again after eviction).
	New func() *studio.Controller
}

// Registry hands out one workflow controller per chat. Controllers expire
// after the idle TTL; the next intent from that chat starts a fresh
// workflow.
type Registry struct {
	mu    sync.Mutex
	cache *gocache.Cache
	fresh func() *studio.Controller
}

func NewRegistry(opts Options) *Registry {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}

	return &Registry{
		cache: gocache.New(ttl, 10*time.Minute),
		fresh: opts.New,
	}
}

// Get returns the controller for a chat, creating one if needed. Every call
// refreshes the chat's TTL.
func (r *Registry) Get(chatID int64) *studio.Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strconv.FormatInt(chatID, 10)
	if v, ok := r.cache.Get(key); ok {
		ctrl := v.(*studio.Controller)
		r.cache.SetDefault(key, ctrl)
		return ctrl
	}

	ctrl := r.fresh()
	r.cache.SetDefault(key, ctrl)
	return ctrl
}

// Drop forgets a chat's workflow immediately.
func (r *Registry) Drop(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Delete(strconv.FormatInt(chatID, 10))
}
