package radar

import (
	"fmt"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"

	"memtap/game"
	"memtap/state"
)

// Generator produces snapshots from the state registry. Each Snapshot call
// opens a fresh epoch, so every value is re-read from the target at most
// once per call no matter how many kinds share it.
//
// Failure handling is two-tier: if a foundational kind fails, the whole
// snapshot fails, since nothing sensible can be built on it. A single
// entity failing to decode only costs that entity; the target rewrites
// entities mid-read all the time and the next epoch heals it.
type Generator struct {
	states *state.Registry
	rd     *game.Reader
	sch    *game.Schema
	log    *logger.Logger
}

func NewGenerator(states *state.Registry, rd *game.Reader, sch *game.Schema) *Generator {
	return &Generator{
		states: states,
		rd:     rd,
		sch:    sch,
		log:    logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "radar")),
	}
}

// Snapshot invalidates the registry and assembles the current world state.
func (g *Generator) Snapshot() (*Snapshot, error) {
	g.states.Invalidate()

	globals, err := state.Resolve[game.Globals](g.states)
	if err != nil {
		return nil, fmt.Errorf("globals: %w", err)
	}
	current, err := state.Resolve[game.CurrentMap](g.states)
	if err != nil {
		return nil, fmt.Errorf("current map: %w", err)
	}
	ents, err := state.Resolve[game.EntitySystem](g.states)
	if err != nil {
		return nil, fmt.Errorf("entity system: %w", err)
	}
	classes, err := state.Resolve[game.ClassNameCache](g.states)
	if err != nil {
		return nil, fmt.Errorf("class names: %w", err)
	}

	snap := &Snapshot{
		MapName:   current.Name,
		TickCount: globals.TickCount,
	}

	for _, ident := range ents.All() {
		className, ok := classes.Lookup(ident.ClassInfo)
		if !ok {
			g.log.Warn("entity ", ident.Index, " has unresolvable class info ",
				fmt.Sprintf("%#x", ident.ClassInfo))
			continue
		}

		switch className {
		case g.sch.Classes.Pawn:
			pawn, err := state.ResolveKeyed[game.PawnState](g.states, ident.Index)
			if err != nil {
				g.log.Warn("pawn ", ident.Index, ": ", err)
				continue
			}
			if pawn.Status != game.PawnAlive {
				continue
			}
			snap.Players = append(snap.Players, Player{
				EntityIndex: ident.Index,
				Name:        pawn.Info.PlayerName,
				Team:        pawn.Info.Team,
				Health:      pawn.Info.Health,
				Position:    pawn.Info.Position,
				Weapon:      pawn.Info.Weapon,
				HasDefuser:  pawn.Info.HasDefuser,
				FlashTime:   pawn.Info.FlashTime,
			})

		case g.sch.Classes.Planted:
			planted, err := g.plantedCharge(globals, ident)
			if err != nil {
				g.log.Warn("planted charge ", ident.Index, ": ", err)
				continue
			}
			snap.Planted = planted

		case g.sch.Classes.Charge:
			carried, err := g.carriedCharge(ident)
			if err != nil {
				g.log.Warn("carried charge ", ident.Index, ": ", err)
				continue
			}
			snap.Carried = append(snap.Carried, *carried)
		}
	}

	return snap, nil
}

func (g *Generator) plantedCharge(globals *game.Globals, ident game.EntityIdentity) (*PlantedCharge, error) {
	layout := g.sch.PlantedLayout

	blob, err := g.rd.Blob(game.Chain{int64(ident.EntityPtr)}, layout.Size)
	if err != nil {
		return nil, err
	}

	out := &PlantedCharge{}
	if out.Position, err = blob.Vec3(layout.Position); err != nil {
		return nil, err
	}
	if out.Site, err = blob.U8(layout.Site); err != nil {
		return nil, err
	}

	defused, err := blob.Bool(layout.Defused)
	if err != nil {
		return nil, err
	}
	if defused {
		out.State = ChargeDefused
		return out, nil
	}

	detonateAt, err := blob.F32(layout.DetonateTime)
	if err != nil {
		return nil, err
	}
	if detonateAt <= globals.CurTime {
		out.State = ChargeDetonated
		return out, nil
	}

	out.State = ChargeActive
	out.TimeDetonation = detonateAt - globals.CurTime
	if out.TimeTotal, err = blob.F32(layout.FuseLength); err != nil {
		return nil, err
	}

	beingDefused, err := blob.Bool(layout.BeingDefused)
	if err != nil {
		return nil, err
	}
	if !beingDefused {
		return out, nil
	}

	rawHandle, err := blob.U32(layout.DefuserHandle)
	if err != nil {
		return nil, err
	}
	name, err := g.defuserName(game.Handle(rawHandle))
	if err != nil {
		return nil, err
	}

	defuseEnds, err := blob.F32(layout.DefuseEnds)
	if err != nil {
		return nil, err
	}
	defuseLength, err := blob.F32(layout.DefuseLength)
	if err != nil {
		return nil, err
	}
	out.Defuser = &Defuser{
		PlayerName:    name,
		TimeRemaining: defuseEnds - globals.CurTime,
		TimeTotal:     defuseLength,
	}
	return out, nil
}

func (g *Generator) defuserName(h game.Handle) (string, error) {
	if !h.Valid() {
		return "", fmt.Errorf("charge is being defused but carries %v", h)
	}

	pawn, err := state.ResolveKeyed[game.PawnState](g.states, h.Index())
	if err != nil {
		return "", fmt.Errorf("defuser %v: %w", h, err)
	}
	if pawn.Status != game.PawnAlive {
		return "", fmt.Errorf("defuser %v is not alive", h)
	}
	return pawn.Info.PlayerName, nil
}

func (g *Generator) carriedCharge(ident game.EntityIdentity) (*CarriedCharge, error) {
	layout := g.sch.ChargeLayout

	blob, err := g.rd.Blob(game.Chain{int64(ident.EntityPtr)}, layout.Size)
	if err != nil {
		return nil, err
	}

	out := &CarriedCharge{EntityIndex: ident.Index}
	if out.Position, err = blob.Vec3(layout.Position); err != nil {
		return nil, err
	}

	rawOwner, err := blob.U32(layout.OwnerHandle)
	if err != nil {
		return nil, err
	}
	out.Owner = game.Handle(rawOwner)
	return out, nil
}
