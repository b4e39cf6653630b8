package replication

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	controller *Controller
	handler    *Handler
}

// NewFeature creates the replication feature. A nil controller disables it.
func NewFeature(controller *Controller, logger *zap.Logger) *Feature {
	return &Feature{controller: controller, handler: NewHandler(controller, logger)}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "sync"
}

// IsEnabled reports whether a remote backend is configured.
func (f *Feature) IsEnabled() bool {
	return f.controller != nil
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}
