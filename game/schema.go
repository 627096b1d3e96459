// Package game reads structured state out of a target game process through
// the driver protocol. Offsets live in a Schema rather than in code, so a
// target update means shipping a new schema file, not a new build.
package game

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// ChunkSize is how many identity slots the target packs per entity list
	// chunk.
	ChunkSize = 512

	// MaxEntityIndex is the largest index an entity handle can carry.
	MaxEntityIndex = 0x7fff
)

// Chain is an offset chain relative to the schema's module: Chain[0] is
// added to the module base, every later element dereferences a pointer at
// the current address and then displaces the result.
type Chain []int64

// From anchors the chain at a concrete module base, yielding the absolute
// offsets a read request wants.
func (c Chain) From(base uint64) Chain {
	out := make(Chain, len(c))
	copy(out, c)
	out[0] += int64(base)
	return out
}

// Field displaces the final address by off: a field inside the struct the
// chain lands on. No extra dereference happens.
func (c Chain) Field(off int64) Chain {
	out := make(Chain, len(c))
	copy(out, c)
	out[len(out)-1] += off
	return out
}

// Deref extends the chain by one hop: dereference the pointer the chain
// lands on, then displace by off.
func (c Chain) Deref(off int64) Chain {
	out := make(Chain, len(c)+1)
	copy(out, c)
	out[len(c)] = off
	return out
}

// Schema describes where a specific target build keeps its state. The zero
// value is useless; start from DefaultSchema or LoadSchema.
type Schema struct {
	// Module anchors every chain in the schema.
	Module string `yaml:"module"`

	// Globals leads to the global state block.
	Globals Chain `yaml:"globals"`

	// EntityList leads to the entity list header.
	EntityList Chain `yaml:"entity_list"`

	GlobalsLayout  GlobalsOffsets    `yaml:"globals_layout"`
	ListLayout     EntityListOffsets `yaml:"entity_list_layout"`
	IdentityLayout IdentityOffsets   `yaml:"identity_layout"`
	ClassLayout    ClassInfoOffsets  `yaml:"class_info_layout"`
	PawnLayout     PawnOffsets       `yaml:"pawn_layout"`
	PlantedLayout  PlantedOffsets    `yaml:"planted_layout"`
	ChargeLayout   ChargeOffsets     `yaml:"charge_layout"`

	// Classes maps the entity class names this build uses to their roles.
	Classes ClassNames `yaml:"class_names"`
}

// GlobalsOffsets lays out the global state block.
type GlobalsOffsets struct {
	Size      uint32 `yaml:"size"`
	TickCount int64  `yaml:"tick_count"` // uint32
	CurTime   int64  `yaml:"cur_time"`   // float32
	MapName   int64  `yaml:"map_name"`   // pointer to NUL-terminated string
}

// EntityListOffsets lays out the entity list header.
type EntityListOffsets struct {
	ChunkTable int64 `yaml:"chunk_table"` // pointer to array of chunk pointers
	MaxIndex   int64 `yaml:"max_index"`   // uint32, highest used index
}

// IdentityOffsets lays out one slot of an entity list chunk.
type IdentityOffsets struct {
	Size      uint32 `yaml:"size"` // slot stride inside a chunk
	Entity    int64  `yaml:"entity"`
	ClassInfo int64  `yaml:"class_info"`
	Handle    int64  `yaml:"handle"` // uint32
}

// ClassInfoOffsets lays out the class info block identities point at.
type ClassInfoOffsets struct {
	Name int64 `yaml:"name"` // pointer to NUL-terminated class name
}

// PawnOffsets lays out a player pawn.
type PawnOffsets struct {
	Size       uint32 `yaml:"size"`
	Health     int64  `yaml:"health"`      // int32
	Team       int64  `yaml:"team"`        // uint8
	LifeState  int64  `yaml:"life_state"`  // uint8, zero while alive
	Position   int64  `yaml:"position"`    // 3 x float32
	PlayerName int64  `yaml:"player_name"` // pointer to NUL-terminated string
	Weapon     int64  `yaml:"weapon"`      // uint16
	Defuser    int64  `yaml:"defuser"`     // uint8 bool
	FlashTime  int64  `yaml:"flash_time"`  // float32
}

// PlantedOffsets lays out a planted charge entity.
type PlantedOffsets struct {
	Size          uint32 `yaml:"size"`
	Defused       int64  `yaml:"defused"`        // uint8 bool
	BeingDefused  int64  `yaml:"being_defused"`  // uint8 bool
	Site          int64  `yaml:"site"`           // uint8
	DetonateTime  int64  `yaml:"detonate_time"`  // float32, absolute target time
	FuseLength    int64  `yaml:"fuse_length"`    // float32
	DefuseEnds    int64  `yaml:"defuse_ends"`    // float32, absolute target time
	DefuseLength  int64  `yaml:"defuse_length"`  // float32
	DefuserHandle int64  `yaml:"defuser_handle"` // uint32 entity handle
	Position      int64  `yaml:"position"`       // 3 x float32
}

// ChargeOffsets lays out a charge still carried or dropped in the world.
type ChargeOffsets struct {
	Size        uint32 `yaml:"size"`
	OwnerHandle int64  `yaml:"owner_handle"` // uint32 entity handle
	Position    int64  `yaml:"position"`     // 3 x float32
}

// ClassNames binds entity class names to the roles the snapshot cares
// about.
type ClassNames struct {
	Pawn    string `yaml:"pawn"`
	Planted string `yaml:"planted"`
	Charge  string `yaml:"charge"`
}

// DefaultSchema returns the layout of the reference target build.
func DefaultSchema() *Schema {
	return &Schema{
		Module:     "game.bin",
		Globals:    Chain{0x1b00, 0},
		EntityList: Chain{0x1b80, 0},
		GlobalsLayout: GlobalsOffsets{
			Size:      0x10,
			TickCount: 0x0,
			CurTime:   0x4,
			MapName:   0x8,
		},
		ListLayout: EntityListOffsets{
			ChunkTable: 0x0,
			MaxIndex:   0x8,
		},
		IdentityLayout: IdentityOffsets{
			Size:      0x20,
			Entity:    0x0,
			ClassInfo: 0x8,
			Handle:    0x10,
		},
		ClassLayout: ClassInfoOffsets{
			Name: 0x8,
		},
		PawnLayout: PawnOffsets{
			Size:       0x40,
			Health:     0x0,
			Team:       0x4,
			LifeState:  0x5,
			Position:   0x8,
			PlayerName: 0x18,
			Weapon:     0x20,
			Defuser:    0x22,
			FlashTime:  0x24,
		},
		PlantedLayout: PlantedOffsets{
			Size:          0x30,
			Defused:       0x0,
			BeingDefused:  0x1,
			Site:          0x2,
			DetonateTime:  0x4,
			FuseLength:    0x8,
			DefuseEnds:    0xc,
			DefuseLength:  0x10,
			DefuserHandle: 0x14,
			Position:      0x18,
		},
		ChargeLayout: ChargeOffsets{
			Size:        0x20,
			OwnerHandle: 0x0,
			Position:    0x4,
		},
		Classes: ClassNames{
			Pawn:    "CPlayerPawn",
			Planted: "CPlantedCharge",
			Charge:  "CCarriedCharge",
		},
	}
}

// LoadSchema reads a YAML schema file over the defaults, so a file only
// needs to carry what differs from the reference build.
func LoadSchema(path string) (*Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}

	sch := DefaultSchema()
	if err := yaml.Unmarshal(raw, sch); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", path, err)
	}
	if err := sch.Validate(); err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return sch, nil
}

// Validate rejects schemas that cannot possibly drive a read.
func (s *Schema) Validate() error {
	if s.Module == "" {
		return errors.New("module name is empty")
	}
	if len(s.Globals) == 0 {
		return errors.New("globals chain is empty")
	}
	if len(s.EntityList) == 0 {
		return errors.New("entity_list chain is empty")
	}
	if s.IdentityLayout.Size == 0 {
		return errors.New("identity slot size is zero")
	}
	if s.GlobalsLayout.Size == 0 || s.PawnLayout.Size == 0 {
		return errors.New("struct sizes are zero")
	}
	if s.Classes.Pawn == "" {
		return errors.New("pawn class name is empty")
	}
	return nil
}
