package game

import (
	"memtap/state"
)

// RegisterStates wires every game kind's resolver into reg, reading through
// rd with the layout in sch. Call it once per registry; the resolvers
// themselves run lazily, at most once per epoch.
func RegisterStates(reg *state.Registry, rd *Reader, sch *Schema) {
	state.Register(reg, func(*state.Registry) (*Globals, error) {
		return resolveGlobals(rd, sch)
	})
	state.Register(reg, func(r *state.Registry) (*CurrentMap, error) {
		return resolveCurrentMap(r, rd, sch)
	})
	state.Register(reg, func(*state.Registry) (*EntitySystem, error) {
		return resolveEntitySystem(rd, sch)
	})
	state.Register(reg, func(r *state.Registry) (*ClassNameCache, error) {
		return resolveClassNames(r, rd, sch)
	})
	state.RegisterKeyed(reg, func(r *state.Registry, idx EntityIndex) (*PawnState, error) {
		return resolvePawn(r, rd, sch, idx)
	})
}
