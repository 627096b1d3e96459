package game_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memtap/driver"
	"memtap/game"
	"memtap/state"
	"memtap/target_sim"
)

// Fixed layout of the scripted game process. Chunk 0 of the entity list is
// allocated; chunk 1 exists in the table but is NULL.
const (
	simPid = 5555

	modBase      = uint64(0x400000)
	globalsAddr  = uint64(0x10000000)
	mapNameAddr  = uint64(0x10000100)
	listHdrAddr  = uint64(0x10001000)
	chunkTabAddr = uint64(0x10002000)
	chunk0Addr   = uint64(0x10010000)

	classPawnAddr    = uint64(0x10030000)
	classPlantedAddr = uint64(0x10030200)
	classBrokenAddr  = uint64(0x10030400)

	entityArena = uint64(0x10040000)
	stringArena = uint64(0x10060000)
)

// simGame scripts a target process laid out the way DefaultSchema expects.
type simGame struct {
	host *target_sim.Host
	mem  *target_sim.Space
	sch  *game.Schema

	nextEntity uint64
	nextString uint64
}

func newSimGame(t *testing.T) *simGame {
	t.Helper()

	g := &simGame{
		host:       target_sim.NewHost(),
		sch:        game.DefaultSchema(),
		nextEntity: entityArena,
		nextString: stringArena,
	}
	g.mem = g.host.AddProcess(simPid).
		MapRegion(modBase, 0x2000, "r-xp", "/opt/game/game.bin").
		MapRegion(0x10000000, 0x70000, "rw-p", "")

	// Module pointer slots.
	g.mem.PutU64(modBase+0x1b00, globalsAddr)
	g.mem.PutU64(modBase+0x1b80, listHdrAddr)

	// Globals block.
	g.mem.PutU32(globalsAddr+0x0, 4096)
	g.mem.PutF32(globalsAddr+0x4, 64.5)
	g.mem.PutU64(globalsAddr+0x8, mapNameAddr)
	g.mem.PutString(mapNameAddr, "harbor")

	// Entity list header and chunk table.
	g.mem.PutU64(listHdrAddr+0x0, chunkTabAddr)
	g.mem.PutU32(listHdrAddr+0x8, 5) // max index, adjusted by tests
	g.mem.PutU64(chunkTabAddr+0, chunk0Addr)
	g.mem.PutU64(chunkTabAddr+8, 0) // chunk 1 never allocated

	// Class info blocks; the broken one points its name at nothing.
	g.putClass(classPawnAddr, "CPlayerPawn")
	g.putClass(classPlantedAddr, "CPlantedCharge")
	g.mem.PutU64(classBrokenAddr+0x8, 0xdead0000)

	return g
}

func (g *simGame) putClass(addr uint64, name string) {
	namePtr := g.allocString(name)
	g.mem.PutU64(addr+0x8, namePtr)
}

func (g *simGame) allocString(s string) uint64 {
	addr := g.nextString
	g.mem.PutString(addr, s)
	g.nextString += 0x80
	return addr
}

func (g *simGame) allocEntity(size uint64) uint64 {
	addr := g.nextEntity
	g.nextEntity += size
	return addr
}

func (g *simGame) setMaxIndex(n uint32) {
	g.mem.PutU32(listHdrAddr+0x8, n)
}

// putIdentity fills a chunk 0 slot. Handles carry serial bits above the
// index to make sure masking happens somewhere.
func (g *simGame) putIdentity(idx uint32, entityPtr, classInfo uint64) {
	slot := chunk0Addr + uint64(idx)*0x20
	g.mem.PutU64(slot+0x0, entityPtr)
	g.mem.PutU64(slot+0x8, classInfo)
	g.mem.PutU32(slot+0x10, idx|0x00580000)
}

type pawnSpec struct {
	health    int32
	team      uint8
	lifeState uint8
	name      string
	pos       [3]float32
	weapon    uint16
	defuser   bool
	flash     float32
}

func (g *simGame) addPawn(idx uint32, spec pawnSpec) uint64 {
	entity := g.allocEntity(0x40)
	g.mem.PutU32(entity+0x0, uint32(spec.health))
	g.mem.PutU8(entity+0x4, spec.team)
	g.mem.PutU8(entity+0x5, spec.lifeState)
	g.mem.PutF32(entity+0x8, spec.pos[0])
	g.mem.PutF32(entity+0xc, spec.pos[1])
	g.mem.PutF32(entity+0x10, spec.pos[2])
	if spec.name != "" {
		g.mem.PutU64(entity+0x18, g.allocString(spec.name))
	}
	g.mem.PutU16(entity+0x20, spec.weapon)
	if spec.defuser {
		g.mem.PutU8(entity+0x22, 1)
	}
	g.mem.PutF32(entity+0x24, spec.flash)

	g.putIdentity(idx, entity, classPawnAddr)
	return entity
}

// registry builds the full consumer stack over the scripted target.
func (g *simGame) registry(t *testing.T) *state.Registry {
	t.Helper()

	rd, err := game.NewReader(driver.Direct(driver.NewService(g.host)), simPid, g.sch)
	require.NoError(t, err)

	reg := state.New()
	game.RegisterStates(reg, rd, g.sch)
	return reg
}

func TestResolveGlobals(t *testing.T) {
	g := newSimGame(t)
	reg := g.registry(t)

	globals, err := state.Resolve[game.Globals](reg)
	require.NoError(t, err)
	assert.Equal(t, uint32(4096), globals.TickCount)
	assert.Equal(t, float32(64.5), globals.CurTime)
}

func TestResolveCurrentMap(t *testing.T) {
	g := newSimGame(t)
	reg := g.registry(t)

	m, err := state.Resolve[game.CurrentMap](reg)
	require.NoError(t, err)
	assert.Equal(t, "harbor", m.Name)
}

func TestResolveCurrentMapInMenu(t *testing.T) {
	g := newSimGame(t)
	g.mem.PutU64(globalsAddr+0x8, 0)
	reg := g.registry(t)

	m, err := state.Resolve[game.CurrentMap](reg)
	require.NoError(t, err)
	assert.Empty(t, m.Name)
}

func TestResolveEntitySystem(t *testing.T) {
	g := newSimGame(t)
	g.addPawn(2, pawnSpec{health: 100, name: "alpha"})
	g.addPawn(5, pawnSpec{health: 80, name: "bravo"})
	reg := g.registry(t)

	ents, err := state.Resolve[game.EntitySystem](reg)
	require.NoError(t, err)
	require.Len(t, ents.All(), 2, "free slots are skipped")

	ident, ok := ents.ByIndex(2)
	require.True(t, ok)
	assert.Equal(t, game.EntityIndex(2), ident.Index)
	assert.Equal(t, chunk0Addr+2*0x20, ident.Address)
	assert.Equal(t, classPawnAddr, ident.ClassInfo)
	assert.Equal(t, game.EntityIndex(2), ident.Handle.Index(), "serial bits masked off")

	byHandle, ok := ents.ByHandle(ident.Handle)
	require.True(t, ok)
	assert.Equal(t, ident, byHandle)

	_, ok = ents.ByIndex(3)
	assert.False(t, ok)
	_, ok = ents.ByHandle(game.Handle(0xffffffff))
	assert.False(t, ok, "invalid handle resolves to nothing")
}

func TestResolveEntitySystemSkipsNullChunks(t *testing.T) {
	g := newSimGame(t)
	g.addPawn(2, pawnSpec{health: 100, name: "alpha"})
	g.setMaxIndex(600) // spans chunk 1, which is NULL in the table
	reg := g.registry(t)

	ents, err := state.Resolve[game.EntitySystem](reg)
	require.NoError(t, err)
	assert.Len(t, ents.All(), 1)
}

func TestResolveEntitySystemImplausibleMaxIndex(t *testing.T) {
	g := newSimGame(t)
	g.setMaxIndex(0x20000)
	reg := g.registry(t)

	_, err := state.Resolve[game.EntitySystem](reg)
	assert.Error(t, err)
}

func TestResolveClassNames(t *testing.T) {
	g := newSimGame(t)
	g.addPawn(2, pawnSpec{health: 100, name: "alpha"})
	g.putIdentity(7, g.allocEntity(0x40), classBrokenAddr)
	reg := g.registry(t)

	classes, err := state.Resolve[game.ClassNameCache](reg)
	require.NoError(t, err)

	name, ok := classes.Lookup(classPawnAddr)
	require.True(t, ok)
	assert.Equal(t, "CPlayerPawn", name)

	_, ok = classes.Lookup(classBrokenAddr)
	assert.False(t, ok, "unreadable class info stays absent instead of failing the cache")
}

func TestResolvePawn(t *testing.T) {
	g := newSimGame(t)
	g.addPawn(2, pawnSpec{
		health:  87,
		team:    3,
		name:    "alpha",
		pos:     [3]float32{10, -20, 30.5},
		weapon:  9,
		defuser: true,
		flash:   1.25,
	})
	g.addPawn(5, pawnSpec{health: 100, lifeState: 2, name: "bravo"})
	reg := g.registry(t)

	alive, err := state.ResolveKeyed[game.PawnState](reg, game.EntityIndex(2))
	require.NoError(t, err)
	assert.Equal(t, game.PawnAlive, alive.Status)
	require.NotNil(t, alive.Info)
	assert.Equal(t, int32(87), alive.Info.Health)
	assert.Equal(t, uint8(3), alive.Info.Team)
	assert.Equal(t, "alpha", alive.Info.PlayerName)
	assert.Equal(t, [3]float32{10, -20, 30.5}, alive.Info.Position)
	assert.Equal(t, uint16(9), alive.Info.Weapon)
	assert.True(t, alive.Info.HasDefuser)
	assert.Equal(t, float32(1.25), alive.Info.FlashTime)

	dead, err := state.ResolveKeyed[game.PawnState](reg, game.EntityIndex(5))
	require.NoError(t, err)
	assert.Equal(t, game.PawnDead, dead.Status)
	assert.Nil(t, dead.Info)

	_, err = state.ResolveKeyed[game.PawnState](reg, game.EntityIndex(9))
	assert.ErrorIs(t, err, game.ErrEntityMissing)
}

// Resolving a second time in the same epoch must not touch the target
// again; invalidating must.
func TestResolveReadsOncePerEpoch(t *testing.T) {
	g := newSimGame(t)
	reg := g.registry(t)

	_, err := state.Resolve[game.Globals](reg)
	require.NoError(t, err)
	after := g.mem.Stats().Reads

	_, err = state.Resolve[game.Globals](reg)
	require.NoError(t, err)
	assert.Equal(t, after, g.mem.Stats().Reads, "memoized resolve reads nothing")

	// CurrentMap depends on Globals and must reuse the memoized block.
	_, err = state.Resolve[game.CurrentMap](reg)
	require.NoError(t, err)
	withMap := g.mem.Stats().Reads

	_, err = state.Resolve[game.CurrentMap](reg)
	require.NoError(t, err)
	assert.Equal(t, withMap, g.mem.Stats().Reads)

	reg.Invalidate()
	_, err = state.Resolve[game.Globals](reg)
	require.NoError(t, err)
	assert.Greater(t, g.mem.Stats().Reads, withMap, "invalidation forces a fresh read")
}

// A target update can move the globals pointer; the resolve fails, nothing
// is cached, and once the schema data agrees again the same epoch recovers.
func TestResolveFailureNotCached(t *testing.T) {
	g := newSimGame(t)
	reg := g.registry(t)

	g.mem.PutU64(modBase+0x1b00, 0xdead0000)
	_, err := state.Resolve[game.Globals](reg)
	assert.ErrorIs(t, err, game.ErrStaleChain)

	g.mem.PutU64(modBase+0x1b00, globalsAddr)
	globals, err := state.Resolve[game.Globals](reg)
	require.NoError(t, err)
	assert.Equal(t, uint32(4096), globals.TickCount)
}

func TestHandleString(t *testing.T) {
	assert.Equal(t, "handle(12)", fmt.Sprintf("%v", game.Handle(12|0x580000)))
	assert.Equal(t, "handle(invalid)", game.Handle(0xffffffff).String())
}
