package providers

import (
	"context"

	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
)

// MapSurface is the rendering surface a session draws on. The surface owns drawing,
// centering and zooming; callers only attach and detach layers and controls.
type MapSurface interface {
	// Render draws the reference pin and candidate markers
	Render(ctx context.Context, frame entities.SurfaceFrame) error

	// AddPath attaches a path layer
	AddPath(ctx context.Context, layer entities.SurfaceLayer) error

	// RemovePath detaches a path layer. Removing an unknown layer is a no-op.
	RemovePath(ctx context.Context, layerID string) error

	// AddControl attaches an auxiliary control
	AddControl(ctx context.Context, control entities.SurfaceControl) error

	// RemoveControl detaches a control. Removing an unknown control is a no-op.
	RemoveControl(ctx context.Context, controlID string) error
}
