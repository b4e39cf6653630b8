// Package loader provides the feature loading system.
//
// Each feature implements the Feature interface, which reports its name, whether it is
// enabled and registers its routes.
//
//	type Feature interface {
//	    Name() string
//	    IsEnabled() bool
//	    Load(app fiber.Router) error
//	}
//
// The Manager registers features with Register() and loads the enabled ones, in
// registration order, with LoadAll().
package loader
