package game

import (
	"fmt"

	"memtap/state"
)

// PawnStatus says what a pawn entity is currently doing.
type PawnStatus uint8

const (
	PawnDead PawnStatus = iota
	PawnAlive
)

// PawnState is the decoded state of one pawn entity, keyed by entity index.
// Info is nil unless the pawn is alive.
type PawnState struct {
	Index  EntityIndex
	Status PawnStatus
	Info   *PawnInfo
}

// PawnInfo carries the fields the snapshot renders for a living pawn.
type PawnInfo struct {
	Health     int32
	Team       uint8
	Position   [3]float32
	PlayerName string
	Weapon     uint16
	HasDefuser bool
	FlashTime  float32
}

// resolvePawn fetches one pawn struct in a single read and decodes it. The
// player name needs a second read since it sits behind a pointer.
func resolvePawn(reg *state.Registry, rd *Reader, sch *Schema, idx EntityIndex) (*PawnState, error) {
	ents, err := state.Resolve[EntitySystem](reg)
	if err != nil {
		return nil, err
	}
	ident, ok := ents.ByIndex(idx)
	if !ok {
		return nil, fmt.Errorf("pawn %d: %w", idx, ErrEntityMissing)
	}

	blob, err := rd.Blob(Chain{int64(ident.EntityPtr)}, sch.PawnLayout.Size)
	if err != nil {
		return nil, fmt.Errorf("pawn %d struct: %w", idx, err)
	}

	lifeState, err := blob.U8(sch.PawnLayout.LifeState)
	if err != nil {
		return nil, err
	}
	health, err := blob.I32(sch.PawnLayout.Health)
	if err != nil {
		return nil, err
	}
	if lifeState != 0 || health <= 0 {
		return &PawnState{Index: idx, Status: PawnDead}, nil
	}

	info := &PawnInfo{Health: health}
	if info.Team, err = blob.U8(sch.PawnLayout.Team); err != nil {
		return nil, err
	}
	if info.Position, err = blob.Vec3(sch.PawnLayout.Position); err != nil {
		return nil, err
	}
	if info.Weapon, err = blob.U16(sch.PawnLayout.Weapon); err != nil {
		return nil, err
	}
	if info.HasDefuser, err = blob.Bool(sch.PawnLayout.Defuser); err != nil {
		return nil, err
	}
	if info.FlashTime, err = blob.F32(sch.PawnLayout.FlashTime); err != nil {
		return nil, err
	}

	namePtr, err := blob.U64(sch.PawnLayout.PlayerName)
	if err != nil {
		return nil, err
	}
	if namePtr != 0 {
		name, err := rd.String(Chain{int64(namePtr)}, 64)
		if err != nil {
			return nil, fmt.Errorf("pawn %d name: %w", idx, err)
		}
		info.PlayerName = name
	}

	return &PawnState{Index: idx, Status: PawnAlive, Info: info}, nil
}
