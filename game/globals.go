package game

import (
	"fmt"

	"memtap/state"
)

// Globals mirrors the target's global state block: the coarse clock every
// other kind hangs timing decisions on.
type Globals struct {
	TickCount uint32
	CurTime   float32

	mapNamePtr uint64
}

func resolveGlobals(rd *Reader, sch *Schema) (*Globals, error) {
	blob, err := rd.Blob(sch.Globals.From(rd.ModuleBase()), sch.GlobalsLayout.Size)
	if err != nil {
		return nil, fmt.Errorf("globals block: %w", err)
	}

	g := &Globals{}
	if g.TickCount, err = blob.U32(sch.GlobalsLayout.TickCount); err != nil {
		return nil, err
	}
	if g.CurTime, err = blob.F32(sch.GlobalsLayout.CurTime); err != nil {
		return nil, err
	}
	if g.mapNamePtr, err = blob.U64(sch.GlobalsLayout.MapName); err != nil {
		return nil, err
	}
	return g, nil
}

// CurrentMap is the loaded map's name, empty while the target sits in a
// menu.
type CurrentMap struct {
	Name string
}

func resolveCurrentMap(reg *state.Registry, rd *Reader, sch *Schema) (*CurrentMap, error) {
	g, err := state.Resolve[Globals](reg)
	if err != nil {
		return nil, err
	}
	if g.mapNamePtr == 0 {
		return &CurrentMap{}, nil
	}

	name, err := rd.String(Chain{int64(g.mapNamePtr)}, 64)
	if err != nil {
		return nil, fmt.Errorf("map name: %w", err)
	}
	return &CurrentMap{Name: name}, nil
}
