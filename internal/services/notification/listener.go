package notification

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"menu-orders/internal/logger"
	"menu-orders/internal/models"
)

// ErrAlreadyMounted is returned by Mount on a listener that is still mounted
var ErrAlreadyMounted = errors.New("notification listener already mounted")

// Response is one physical notification as seen by the listener. Identifier
// is shared by the cold start and live deliveries of the same notification.
type Response struct {
	Identifier string                     `json:"identifier"`
	Payload    models.NotificationPayload `json:"payload"`
}

// Key identifies the physical notification: its identifier, or a hash of
// the payload when none was sent. Map keys marshal sorted, so equal
// payloads give equal keys.
func (r Response) Key() string {
	if r.Identifier != "" {
		return r.Identifier
	}
	b, err := json.Marshal(r.Payload)
	if err != nil {
		b = []byte(fmt.Sprintf("%v", r.Payload))
	}
	sum := sha256.Sum256(b)
	return "payload:" + hex.EncodeToString(sum[:])
}

// Handler receives live responses
type Handler func(ctx context.Context, resp Response)

// Subscription is a live registration held while the listener is mounted
type Subscription interface {
	Unsubscribe() error
}

// Source delivers notifications through two paths: the response that
// launched the process, and a live stream.
type Source interface {
	LastResponse(ctx context.Context) (*Response, error)
	Subscribe(ctx context.Context, handler Handler) (Subscription, error)
}

// Acknowledger is implemented by sources that can remember a response was
// handled, so a later cold start does not replay it. key is Response.Key.
type Acknowledger interface {
	Acknowledge(ctx context.Context, key string) error
}

// Router receives normalized targets
type Router interface {
	Route(target models.RouteTarget)
}

// State is the listener's per-response processing state
type State int

const (
	StateIdle State = iota
	StateExtracting
	StateNavigating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExtracting:
		return "extracting"
	case StateNavigating:
		return "navigating"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Listener turns notification responses into navigation
type Listener struct {
	source Source
	router Router
	logger *logger.Logger

	// handling serializes responses from both paths
	handling sync.Mutex

	mu            sync.Mutex
	state         State
	mounted       bool
	epoch         uint64
	coldStartDone bool
	sub           Subscription
	handled       map[string]struct{}
}

// NewListener creates an unmounted listener
func NewListener(source Source, router Router, log *logger.Logger) *Listener {
	return &Listener{
		source:  source,
		router:  router,
		logger:  log,
		handled: make(map[string]struct{}),
	}
}

// Mount subscribes to live notifications and, on the first mount only,
// processes the response that launched the process.
func (l *Listener) Mount(ctx context.Context) error {
	l.mu.Lock()
	if l.mounted {
		l.mu.Unlock()
		return ErrAlreadyMounted
	}
	l.mounted = true
	l.epoch++
	epoch := l.epoch
	l.mu.Unlock()

	sub, err := l.source.Subscribe(ctx, l.handleLive)
	if err != nil {
		l.mu.Lock()
		if l.epoch == epoch {
			l.mounted = false
		}
		l.mu.Unlock()
		return fmt.Errorf("failed to subscribe to notifications: %w", err)
	}

	l.mu.Lock()
	if l.epoch != epoch {
		// unmounted while subscribing
		l.mu.Unlock()
		return sub.Unsubscribe()
	}
	l.sub = sub
	runColdStart := !l.coldStartDone
	l.coldStartDone = true
	l.mu.Unlock()

	l.logger.Info("listener_mounted", "Notification listener mounted", "", map[string]interface{}{
		"cold_start": runColdStart,
	})

	if !runColdStart {
		return nil
	}

	resp, err := l.source.LastResponse(ctx)
	if err != nil {
		l.logger.Error("cold_start_failed", "Failed to read last notification response", "", err, nil)
		return nil
	}
	if resp != nil {
		l.handle(ctx, *resp, "cold_start")
	}
	return nil
}

// Unmount releases the live subscription. Responses arriving afterwards
// are ignored. Calling it more than once is safe.
func (l *Listener) Unmount() error {
	l.mu.Lock()
	sub := l.sub
	l.sub = nil
	if l.mounted {
		l.epoch++
	}
	l.mounted = false
	l.mu.Unlock()

	if sub == nil {
		return nil
	}

	l.logger.Info("listener_unmounted", "Notification listener unmounted", "", nil)
	return sub.Unsubscribe()
}

// State reports what the listener is doing right now
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Mounted reports whether a live subscription is held
func (l *Listener) Mounted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mounted
}

func (l *Listener) handleLive(ctx context.Context, resp Response) {
	l.handle(ctx, resp, "live")
}

func (l *Listener) handle(ctx context.Context, resp Response, path string) {
	l.handling.Lock()
	defer l.handling.Unlock()

	key := resp.Key()
	fields := map[string]interface{}{
		"identifier": resp.Identifier,
		"path":       path,
	}

	l.mu.Lock()
	if !l.mounted {
		l.mu.Unlock()
		l.logger.Debug("notification_ignored", "Listener is not mounted", "", fields)
		return
	}
	if _, seen := l.handled[key]; seen {
		l.mu.Unlock()
		l.logger.Debug("notification_duplicate", "Notification already handled", "", fields)
		return
	}
	l.handled[key] = struct{}{}
	l.state = StateExtracting
	l.mu.Unlock()

	defer l.setState(StateIdle)
	defer l.acknowledge(ctx, resp)

	target, ok := ExtractTarget(resp.Payload)
	if !ok {
		l.logger.Debug("notification_discarded", "Payload carries no usable route target", "", fields)
		return
	}

	l.setState(StateNavigating)
	fields["kind"] = string(target.Kind)
	fields["id"] = target.ID
	l.logger.Info("notification_routed", "Routing notification", "", fields)

	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("notification_route_panic", "Router panicked", "", fmt.Errorf("%v", r), fields)
		}
	}()
	l.router.Route(target)
}

func (l *Listener) acknowledge(ctx context.Context, resp Response) {
	ack, ok := l.source.(Acknowledger)
	if !ok {
		return
	}
	if err := ack.Acknowledge(ctx, resp.Key()); err != nil {
		l.logger.Error("notification_ack_failed", "Failed to acknowledge notification", "", err, map[string]interface{}{
			"identifier": resp.Identifier,
		})
	}
}

func (l *Listener) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}
