// Package capabilities holds the capability registry: the catalog of
// execution backends and their declared profiles.
//
// A backend is any value implementing Backend. It is registered under an id
// together with a Profile scoring it on performance, safety, reactivity and
// ecosystem (each in [0,1]) plus a set of specialty domains:
//
//	reg := capabilities.NewBuiltinRegistry()
//	err := reg.Register("zig", capabilities.Profile{
//	    Performance: 0.9, Safety: 0.7, Reactivity: 0.4, Ecosystem: 0.3,
//	    Specialties: []string{"systems"},
//	}, myZigBackend)
//
// Re-registering an id replaces its profile and handler but keeps its list
// position, so List order stays stable for tie-breaking.
//
// Profiles can also be loaded from YAML:
//
//	profiles:
//	  - id: zig
//	    performance: 0.9
//	    specialties: [systems]
//
// The registry is safe for concurrent use.
package capabilities
