// Package radar turns the live target state into per-epoch world snapshots:
// who is where, holding what, and what the planted charge is doing. It sits
// purely on the state registry and the schema reader; rendering is someone
// else's job.
package radar

import (
	"fmt"

	"memtap/game"
)

// Snapshot is one epoch's view of the target world.
type Snapshot struct {
	MapName   string
	TickCount uint32
	Players   []Player
	Planted   *PlantedCharge
	Carried   []CarriedCharge
}

// Player is a living pawn as the snapshot sees it.
type Player struct {
	EntityIndex game.EntityIndex
	Name        string
	Team        uint8
	Health      int32
	Position    [3]float32
	Weapon      uint16
	HasDefuser  bool
	FlashTime   float32
}

// ChargeState classifies a planted charge.
type ChargeState uint8

const (
	// ChargeActive counts down toward detonation.
	ChargeActive ChargeState = iota

	// ChargeDefused is disarmed for good.
	ChargeDefused

	// ChargeDetonated already went off.
	ChargeDetonated
)

func (s ChargeState) String() string {
	switch s {
	case ChargeActive:
		return "active"
	case ChargeDefused:
		return "defused"
	case ChargeDetonated:
		return "detonated"
	}
	return fmt.Sprintf("charge state %d", uint8(s))
}

// PlantedCharge describes the planted charge. Timing fields are only
// meaningful while the state is ChargeActive; Defuser is non-nil while
// someone works on the charge.
type PlantedCharge struct {
	State    ChargeState
	Position [3]float32
	Site     uint8

	// Seconds until detonation and the full fuse length.
	TimeDetonation float32
	TimeTotal      float32

	Defuser *Defuser
}

// Defuser is the player currently defusing, with their countdown.
type Defuser struct {
	PlayerName    string
	TimeRemaining float32
	TimeTotal     float32
}

// CarriedCharge is a charge still being carried, or dropped in the world
// when Owner is invalid.
type CarriedCharge struct {
	EntityIndex game.EntityIndex
	Owner       game.Handle
	Position    [3]float32
}
