package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
	"github.com/zatekoja/fieldservice-locator/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/fieldservice-locator/pkg/errors"
	"github.com/zatekoja/fieldservice-locator/pkg/geo"
)

// ErrRouteSuperseded is returned by a ShowRoute call that lost to a newer ShowRoute
// or ClearRoute while it was routing
var ErrRouteSuperseded = fmt.Errorf("route request superseded: %w", context.Canceled)

// installedOverlay records what an overlay attached to the surface
type installedOverlay struct {
	layerID    string
	controlIDs []string
}

// RouteOverlayController keeps at most one route drawn between the reference point
// and a selected candidate
type RouteOverlayController struct {
	routing  providers.RoutingProvider
	surface  providers.MapSurface
	speedKmh float64
	timeout  time.Duration
	metrics  *observability.Metrics

	mu         sync.Mutex
	state      entities.OverlayState
	active     *entities.RouteOverlay
	installed  *installedOverlay
	generation uint64
	cancel     context.CancelFunc
	isCurrent  func(*entities.ReferencePoint) bool
}

// NewRouteOverlayController creates a controller. A nil routing provider always
// produces straight-line fallback overlays.
func NewRouteOverlayController(
	routing providers.RoutingProvider,
	surface providers.MapSurface,
	speedKmh float64,
	timeout time.Duration,
	metrics *observability.Metrics,
) *RouteOverlayController {
	if speedKmh <= 0 {
		speedKmh = DefaultFallbackSpeedKmh
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &RouteOverlayController{
		routing:  routing,
		surface:  surface,
		speedKmh: speedKmh,
		timeout:  timeout,
		metrics:  metrics,
		state:    entities.OverlayStateIdle,
	}
}

// SetReferenceCheck installs a check that ShowRoute consults before it touches the
// surface. A route for a reference the check rejects is superseded.
func (c *RouteOverlayController) SetReferenceCheck(isCurrent func(*entities.ReferencePoint) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isCurrent = isCurrent
}

// staleLocked reports whether ref was superseded by its owner
func (c *RouteOverlayController) staleLocked(ref *entities.ReferencePoint) bool {
	return c.isCurrent != nil && !c.isCurrent(ref)
}

// State returns the controller state
func (c *RouteOverlayController) State() entities.OverlayState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active returns the installed overlay, or nil
func (c *RouteOverlayController) Active() *entities.RouteOverlay {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// ShowRoute replaces any existing overlay with a route from ref to candidate. When
// routing fails or is not configured the overlay is a straight segment with an
// estimated duration.
func (c *RouteOverlayController) ShowRoute(ctx context.Context, ref *entities.ReferencePoint, candidate entities.RankedCandidate) (*entities.RouteOverlay, error) {
	if ref == nil {
		return nil, apperrors.NewValidationError("no reference point to route from")
	}
	if candidate.Provider == nil || !candidate.Provider.HasLocation() {
		c.mu.Lock()
		if c.staleLocked(ref) {
			c.mu.Unlock()
			return nil, ErrRouteSuperseded
		}
		c.supersedeLocked(nil)
		_ = c.teardownLocked(ctx)
		c.state = entities.OverlayStateIdle
		c.mu.Unlock()
		return nil, apperrors.NewOverlayBuildFailureError("provider has no coordinates", nil)
	}

	ctx, span := observability.StartSpan(ctx, "RouteOverlayController.ShowRoute")
	defer span.End()

	origin := ref.Coordinates()
	destination := *candidate.Provider.Coordinates

	routeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.Lock()
	if c.staleLocked(ref) {
		c.mu.Unlock()
		return nil, ErrRouteSuperseded
	}
	c.supersedeLocked(cancel)
	gen := c.generation
	if err := c.teardownLocked(ctx); err != nil {
		c.cancel = nil
		c.state = entities.OverlayStateIdle
		c.mu.Unlock()
		observability.RecordRoute(ctx, c.metrics, "failed")
		return nil, apperrors.NewOverlayBuildFailureError("failed to remove the previous route", err)
	}
	c.state = entities.OverlayStateRouting
	c.mu.Unlock()

	var (
		path     *entities.PathGeometry
		routeErr error
	)
	if c.routing != nil {
		path, routeErr = c.routing.Route(routeCtx, origin, destination)
	} else {
		routeErr = apperrors.NewServiceUnconfiguredError("routing")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return nil, ErrRouteSuperseded
	}
	c.cancel = nil
	if c.staleLocked(ref) {
		c.state = entities.OverlayStateIdle
		return nil, ErrRouteSuperseded
	}
	if err := ctx.Err(); err != nil {
		c.state = entities.OverlayStateIdle
		return nil, err
	}

	overlay := &entities.RouteOverlay{
		ID:             uuid.NewString(),
		ReferencePoint: ref,
		Candidate:      candidate,
	}
	if routeErr == nil && path != nil && len(path.Points) >= 2 {
		overlay.Path = path
		overlay.DistanceKm = path.DistanceKm
		if overlay.DistanceKm <= 0 {
			overlay.DistanceKm = candidate.DistanceKm
		}
		overlay.DurationMinutes = path.DurationMinutes
	} else {
		if routeErr == nil {
			routeErr = apperrors.NewExternalError("routing returned an empty path", nil)
		}
		log.Warn().Ctx(ctx).Err(routeErr).Str("provider_id", candidate.Provider.ID).Msg("routing unavailable, drawing straight line")
		overlay.IsFallback = true
		overlay.DistanceKm = origin.DistanceKm(destination)
		overlay.DurationMinutes = geo.EstimateMinutes(overlay.DistanceKm, c.speedKmh)
	}
	overlay.Bounds = entities.BoundsOf(overlay.Points())

	if err := c.installLocked(ctx, overlay); err != nil {
		observability.RecordError(span, err)
		observability.RecordRoute(ctx, c.metrics, "failed")
		return nil, err
	}

	c.active = overlay
	if overlay.IsFallback {
		c.state = entities.OverlayStateFallbackLine
	} else {
		c.state = entities.OverlayStateRouted
	}
	observability.RecordRoute(ctx, c.metrics, string(c.state))
	return overlay, nil
}

// ClearRoute removes the overlay and returns to Idle. An in-flight ShowRoute is
// superseded. Clearing with nothing drawn is a no-op.
func (c *RouteOverlayController) ClearRoute(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.supersedeLocked(nil)
	err := c.teardownLocked(ctx)
	c.state = entities.OverlayStateIdle
	return err
}

func (c *RouteOverlayController) supersedeLocked(cancel context.CancelFunc) {
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.generation++
}

// teardownLocked detaches every part of the installed overlay. It keeps going past
// surface errors so nothing is left behind that can still be removed.
func (c *RouteOverlayController) teardownLocked(ctx context.Context) error {
	installed := c.installed
	c.installed = nil
	c.active = nil
	if installed == nil {
		return nil
	}

	var errs []error
	if installed.layerID != "" {
		if err := c.surface.RemovePath(ctx, installed.layerID); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range installed.controlIDs {
		if err := c.surface.RemoveControl(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn().Ctx(ctx).Err(err).Msg("route overlay teardown incomplete")
		return err
	}
	return nil
}

// installLocked attaches the path, the clear-route control and the info panel. On
// any surface error the parts already attached are removed and the state is Idle.
func (c *RouteOverlayController) installLocked(ctx context.Context, overlay *entities.RouteOverlay) error {
	installed := &installedOverlay{}
	c.installed = installed

	fail := func(err error) error {
		_ = c.teardownLocked(ctx)
		c.state = entities.OverlayStateIdle
		return apperrors.NewOverlayBuildFailureError("failed to install route overlay", err)
	}

	layer := entities.SurfaceLayer{
		ID:         "route:" + overlay.ID,
		OverlayID:  overlay.ID,
		Points:     overlay.Points(),
		IsFallback: overlay.IsFallback,
		Bounds:     overlay.Bounds,
	}
	if err := c.surface.AddPath(ctx, layer); err != nil {
		return fail(err)
	}
	installed.layerID = layer.ID

	controls := []entities.SurfaceControl{
		{ID: "clear_route:" + overlay.ID, OverlayID: overlay.ID, Kind: entities.SurfaceControlClearRoute, Text: "Clear route"},
		{ID: "info_panel:" + overlay.ID, OverlayID: overlay.ID, Kind: entities.SurfaceControlInfoPanel, Text: InfoPanelText(overlay)},
	}
	for _, control := range controls {
		if err := c.surface.AddControl(ctx, control); err != nil {
			return fail(err)
		}
		installed.controlIDs = append(installed.controlIDs, control.ID)
	}
	return nil
}

// InfoPanelText renders the distance and duration shown next to a route
func InfoPanelText(overlay *entities.RouteOverlay) string {
	minutes := int(math.Round(overlay.DurationMinutes))
	if minutes < 1 {
		minutes = 1
	}
	text := fmt.Sprintf("%s, %d min", geo.FormatDistance(overlay.DistanceKm), minutes)
	if overlay.IsFallback {
		text += " (estimate)"
	}
	return text
}
