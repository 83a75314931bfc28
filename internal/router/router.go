// Package router turns route targets into detail-screen navigations.
package router

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"menu-orders/internal/logger"
	"menu-orders/internal/models"
)

// Navigator is the navigation host. Push performs a forward navigation.
type Navigator interface {
	Push(path string, params map[string]string) error
}

// DefaultRoutes maps entity kinds to detail screen path templates
var DefaultRoutes = map[models.EntityKind]string{
	models.KindOrder:   "/orders/[id]",
	models.KindRequest: "/requests/[id]",
	models.KindJob:     "/jobs/[id]",
}

// Router is the only caller of Navigator.Push for notification driven
// navigation. Targets routed before MarkReady are queued, never dropped.
type Router struct {
	mu      sync.Mutex
	ready   bool
	pending []models.RouteTarget

	nav    Navigator
	routes map[models.EntityKind]string
	logger *logger.Logger
}

func New(nav Navigator, routes map[models.EntityKind]string, log *logger.Logger) *Router {
	if routes == nil {
		routes = DefaultRoutes
	}
	return &Router{
		nav:    nav,
		routes: routes,
		logger: log,
	}
}

// Route navigates to the detail screen of target. Unknown kinds are ignored.
func (r *Router) Route(target models.RouteTarget) {
	if _, ok := r.routes[target.Kind]; !ok {
		r.logger.Debug("route_ignored", "No screen for entity kind", "", map[string]interface{}{
			"kind": string(target.Kind),
		})
		return
	}

	r.mu.Lock()
	if !r.ready {
		r.pending = append(r.pending, target)
		r.mu.Unlock()
		r.logger.Debug("route_deferred", "Navigation host not ready, deferring", "", map[string]interface{}{
			"kind": string(target.Kind),
			"id":   target.ID,
		})
		return
	}
	r.mu.Unlock()

	r.push(target)
}

// MarkReady is called once the navigation host has mounted. Deferred targets
// are pushed in the order they were routed.
func (r *Router) MarkReady() {
	for {
		r.mu.Lock()
		if len(r.pending) == 0 {
			r.ready = true
			r.mu.Unlock()
			return
		}
		batch := r.pending
		r.pending = nil
		r.mu.Unlock()

		for _, target := range batch {
			r.push(target)
		}
	}
}

// Pending returns the number of deferred targets
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Router) push(target models.RouteTarget) {
	path := r.routes[target.Kind]
	if err := r.nav.Push(path, map[string]string{"id": target.ID}); err != nil {
		r.logger.Error("navigation_failed", "Failed to navigate to detail screen", "", err, map[string]interface{}{
			"path": path,
			"id":   target.ID,
		})
		return
	}
	r.logger.Info("navigated", "Navigated to detail screen", "", map[string]interface{}{
		"path": path,
		"id":   target.ID,
	})
}

// ResolvePath fills the [name] segments of template from params
func ResolvePath(template string, params map[string]string) string {
	segments := strings.Split(template, "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, "[") && strings.HasSuffix(seg, "]") {
			if v, ok := params[seg[1:len(seg)-1]]; ok {
				segments[i] = url.PathEscape(v)
			}
		}
	}
	return strings.Join(segments, "/")
}

// ConsoleNavigator prints every navigation, for hosts without a screen stack
type ConsoleNavigator struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsoleNavigator(out io.Writer) *ConsoleNavigator {
	return &ConsoleNavigator{out: out}
}

func (c *ConsoleNavigator) Push(path string, params map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "-> %s\n", ResolvePath(path, params))
	return err
}
