package tse

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.viam.com/rdk/logging"

	"tse/channel"
	"tse/transport"
)

// OpenFunc opens the byte stream to a controller.
type OpenFunc func(ctx context.Context, cfg transport.Config, logger logging.Logger) (io.ReadWriteCloser, error)

type channelEntry struct {
	channel   *channel.Channel
	config    *ExtenderConfig
	refCount  int64
	lastError error
	mu        sync.RWMutex
}

// ChannelRegistry shares one command channel between every extender that
// names the same controller endpoint.
type ChannelRegistry struct {
	open    OpenFunc
	entries map[string]*channelEntry // endpoint -> entry
	mu      sync.Mutex
}

// NewChannelRegistry returns a registry that opens endpoints with open, or
// with transport.Open when open is nil.
func NewChannelRegistry(open OpenFunc) *ChannelRegistry {
	if open == nil {
		open = transport.Open
	}
	return &ChannelRegistry{
		open:    open,
		entries: make(map[string]*channelEntry),
	}
}

var globalRegistry = NewChannelRegistry(nil)

// Acquire returns the channel for cfg's endpoint, opening it on first use.
// Every successful Acquire must be paired with a Release.
func (r *ChannelRegistry) Acquire(ctx context.Context, cfg *ExtenderConfig, logger logging.Logger) (*channel.Channel, error) {
	endpoint := cfg.Transport.Endpoint()

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[endpoint]; ok {
		entry.mu.Lock()
		defer entry.mu.Unlock()
		if !channelConfigsEqual(entry.config, cfg) {
			return nil, fmt.Errorf("conflict: channel %s is open with a different config (refCount: %d)",
				endpoint, atomic.LoadInt64(&entry.refCount))
		}
		atomic.AddInt64(&entry.refCount, 1)
		return entry.channel, nil
	}

	rw, err := r.open(ctx, cfg.Transport, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", endpoint, err)
	}

	entry := &channelEntry{
		channel:  channel.New(rw, cfg.ChannelOptions(), logger),
		config:   cfg,
		refCount: 1,
	}
	r.entries[endpoint] = entry
	logger.Infof("opened command channel %s", endpoint)
	return entry.channel, nil
}

// Release drops one reference and closes the channel with the last one.
func (r *ChannelRegistry) Release(endpoint string) error {
	r.mu.Lock()
	entry, ok := r.entries[endpoint]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	if atomic.AddInt64(&entry.refCount, -1) > 0 {
		r.mu.Unlock()
		return nil
	}
	delete(r.entries, endpoint)
	r.mu.Unlock()

	return entry.close()
}

// ForceClose closes the channel regardless of outstanding references.
func (r *ChannelRegistry) ForceClose(endpoint string) error {
	r.mu.Lock()
	entry, ok := r.entries[endpoint]
	if ok {
		delete(r.entries, endpoint)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return entry.close()
}

func (e *channelEntry) close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	atomic.StoreInt64(&e.refCount, 0)
	if e.channel == nil {
		return e.lastError
	}
	err := e.channel.Close()
	e.channel = nil
	e.config = nil
	e.lastError = err
	return err
}

// Status reports the reference count of an endpoint, whether it is open and
// a short summary of its config.
func (r *ChannelRegistry) Status(endpoint string) (int64, bool, string) {
	r.mu.Lock()
	entry, ok := r.entries[endpoint]
	r.mu.Unlock()
	if !ok {
		return 0, false, ""
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()
	summary := ""
	if entry.config != nil {
		summary = fmt.Sprintf("%s, timeout %dms, %s-endian",
			endpoint, entry.config.TimeoutMs, entry.config.ByteOrder)
	}
	return atomic.LoadInt64(&entry.refCount), entry.channel != nil, summary
}
