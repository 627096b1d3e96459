package radar_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memtap/driver"
	"memtap/game"
	"memtap/radar"
	"memtap/state"
	"memtap/target_sim"
)

const (
	simPid = 6001

	modBase      = uint64(0x400000)
	globalsAddr  = uint64(0x20000000)
	mapNameAddr  = uint64(0x20000100)
	listHdrAddr  = uint64(0x20001000)
	chunkTabAddr = uint64(0x20002000)
	chunk0Addr   = uint64(0x20010000)

	classPawnAddr    = uint64(0x20030000)
	classPlantedAddr = uint64(0x20030200)
	classChargeAddr  = uint64(0x20030400)
	classRubbleAddr  = uint64(0x20030600) // a class the snapshot ignores
	classBrokenAddr  = uint64(0x20030800)

	curTime = float32(64.5)
)

// simWorld scripts a full target world for the generator: players, charges
// and the plumbing underneath them.
type simWorld struct {
	host *target_sim.Host
	mem  *target_sim.Space
	sch  *game.Schema

	nextEntity uint64
	nextString uint64
	maxIndex   uint32
}

func newSimWorld(t *testing.T) *simWorld {
	t.Helper()

	w := &simWorld{
		host:       target_sim.NewHost(),
		sch:        game.DefaultSchema(),
		nextEntity: 0x20040000,
		nextString: 0x20060000,
	}
	w.mem = w.host.AddProcess(simPid).
		MapRegion(modBase, 0x2000, "r-xp", "/opt/game/game.bin").
		MapRegion(0x20000000, 0x70000, "rw-p", "")

	w.mem.PutU64(modBase+0x1b00, globalsAddr)
	w.mem.PutU64(modBase+0x1b80, listHdrAddr)

	w.mem.PutU32(globalsAddr+0x0, 9000)
	w.mem.PutF32(globalsAddr+0x4, curTime)
	w.mem.PutU64(globalsAddr+0x8, mapNameAddr)
	w.mem.PutString(mapNameAddr, "harbor")

	w.mem.PutU64(listHdrAddr+0x0, chunkTabAddr)
	w.mem.PutU64(chunkTabAddr+0, chunk0Addr)

	w.putClass(classPawnAddr, "CPlayerPawn")
	w.putClass(classPlantedAddr, "CPlantedCharge")
	w.putClass(classChargeAddr, "CCarriedCharge")
	w.putClass(classRubbleAddr, "CRubble")
	w.mem.PutU64(classBrokenAddr+0x8, 0xdead0000)

	return w
}

func (w *simWorld) putClass(addr uint64, name string) {
	w.mem.PutU64(addr+0x8, w.allocString(name))
}

func (w *simWorld) allocString(s string) uint64 {
	addr := w.nextString
	w.mem.PutString(addr, s)
	w.nextString += 0x80
	return addr
}

func (w *simWorld) allocEntity() uint64 {
	addr := w.nextEntity
	w.nextEntity += 0x80
	return addr
}

func (w *simWorld) putIdentity(idx uint32, entityPtr, classInfo uint64) {
	slot := chunk0Addr + uint64(idx)*0x20
	w.mem.PutU64(slot+0x0, entityPtr)
	w.mem.PutU64(slot+0x8, classInfo)
	w.mem.PutU32(slot+0x10, idx|0x00640000)
	if idx > w.maxIndex {
		w.maxIndex = idx
		w.mem.PutU32(listHdrAddr+0x8, idx)
	}
}

func (w *simWorld) addPawn(idx uint32, name string, health int32, team uint8, alive bool) uint64 {
	entity := w.allocEntity()
	w.mem.PutU32(entity+0x0, uint32(health))
	w.mem.PutU8(entity+0x4, team)
	if !alive {
		w.mem.PutU8(entity+0x5, 2)
	}
	w.mem.PutF32(entity+0x8, float32(idx))
	w.mem.PutF32(entity+0xc, float32(idx)*2)
	w.mem.PutF32(entity+0x10, float32(idx)*3)
	w.mem.PutU64(entity+0x18, w.allocString(name))
	w.mem.PutU16(entity+0x20, 7)
	w.putIdentity(idx, entity, classPawnAddr)
	return entity
}

type bombSpec struct {
	defused       bool
	beingDefused  bool
	site          uint8
	detonateAt    float32
	fuseLength    float32
	defuseEnds    float32
	defuseLength  float32
	defuserHandle uint32
}

func (w *simWorld) addPlanted(idx uint32, spec bombSpec) uint64 {
	entity := w.allocEntity()
	if spec.defused {
		w.mem.PutU8(entity+0x0, 1)
	}
	if spec.beingDefused {
		w.mem.PutU8(entity+0x1, 1)
	}
	w.mem.PutU8(entity+0x2, spec.site)
	w.mem.PutF32(entity+0x4, spec.detonateAt)
	w.mem.PutF32(entity+0x8, spec.fuseLength)
	w.mem.PutF32(entity+0xc, spec.defuseEnds)
	w.mem.PutF32(entity+0x10, spec.defuseLength)
	w.mem.PutU32(entity+0x14, spec.defuserHandle)
	w.mem.PutF32(entity+0x18, 100)
	w.mem.PutF32(entity+0x1c, 200)
	w.mem.PutF32(entity+0x20, 300)
	w.putIdentity(idx, entity, classPlantedAddr)
	return entity
}

func (w *simWorld) addCarried(idx uint32, owner uint32, pos [3]float32) uint64 {
	entity := w.allocEntity()
	w.mem.PutU32(entity+0x0, owner)
	w.mem.PutF32(entity+0x4, pos[0])
	w.mem.PutF32(entity+0x8, pos[1])
	w.mem.PutF32(entity+0xc, pos[2])
	w.putIdentity(idx, entity, classChargeAddr)
	return entity
}

func (w *simWorld) generator(t *testing.T) *radar.Generator {
	t.Helper()

	rd, err := game.NewReader(driver.Direct(driver.NewService(w.host)), simPid, w.sch)
	require.NoError(t, err)

	reg := state.New()
	game.RegisterStates(reg, rd, w.sch)
	return radar.NewGenerator(reg, rd, w.sch)
}

func TestSnapshotPlayers(t *testing.T) {
	w := newSimWorld(t)
	w.addPawn(2, "alpha", 100, 2, true)
	w.addPawn(4, "bravo", 0, 3, false)
	w.addPawn(6, "charlie", 55, 3, true)
	gen := w.generator(t)

	snap, err := gen.Snapshot()
	require.NoError(t, err)

	assert.Equal(t, "harbor", snap.MapName)
	assert.Equal(t, uint32(9000), snap.TickCount)
	require.Len(t, snap.Players, 2, "dead pawns stay off the radar")

	assert.Equal(t, game.EntityIndex(2), snap.Players[0].EntityIndex)
	assert.Equal(t, "alpha", snap.Players[0].Name)
	assert.Equal(t, int32(100), snap.Players[0].Health)
	assert.Equal(t, [3]float32{2, 4, 6}, snap.Players[0].Position)
	assert.Equal(t, "charlie", snap.Players[1].Name)
	assert.Nil(t, snap.Planted)
	assert.Empty(t, snap.Carried)
}

func TestSnapshotSkipsBrokenPawn(t *testing.T) {
	w := newSimWorld(t)
	w.addPawn(2, "alpha", 100, 2, true)
	w.putIdentity(3, 0xdead0000, classPawnAddr) // entity struct unreadable
	w.addPawn(6, "charlie", 55, 3, true)
	gen := w.generator(t)

	snap, err := gen.Snapshot()
	require.NoError(t, err, "one broken entity never fails the snapshot")
	require.Len(t, snap.Players, 2)
	assert.Equal(t, "alpha", snap.Players[0].Name)
	assert.Equal(t, "charlie", snap.Players[1].Name)
}

func TestSnapshotSkipsUnknownAndIrrelevantClasses(t *testing.T) {
	w := newSimWorld(t)
	w.addPawn(2, "alpha", 100, 2, true)
	w.putIdentity(3, w.allocEntity(), classRubbleAddr)
	w.putIdentity(4, w.allocEntity(), classBrokenAddr)
	gen := w.generator(t)

	snap, err := gen.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Players, 1)
}

func TestSnapshotFailsWithoutFoundations(t *testing.T) {
	w := newSimWorld(t)
	w.addPawn(2, "alpha", 100, 2, true)
	w.mem.PutU64(modBase+0x1b80, 0xdead0000) // entity list gone
	gen := w.generator(t)

	_, err := gen.Snapshot()
	require.Error(t, err)
	assert.ErrorIs(t, err, game.ErrStaleChain)
}

func TestSnapshotFailsWithoutGlobals(t *testing.T) {
	w := newSimWorld(t)
	w.mem.PutU64(modBase+0x1b00, 0xdead0000)
	gen := w.generator(t)

	_, err := gen.Snapshot()
	assert.ErrorIs(t, err, game.ErrStaleChain)
}

func TestPlantedActive(t *testing.T) {
	w := newSimWorld(t)
	w.addPlanted(10, bombSpec{site: 1, detonateAt: curTime + 30, fuseLength: 40})
	gen := w.generator(t)

	snap, err := gen.Snapshot()
	require.NoError(t, err)
	require.NotNil(t, snap.Planted)

	assert.Equal(t, radar.ChargeActive, snap.Planted.State)
	assert.Equal(t, uint8(1), snap.Planted.Site)
	assert.Equal(t, [3]float32{100, 200, 300}, snap.Planted.Position)
	assert.InDelta(t, 30, snap.Planted.TimeDetonation, 0.001)
	assert.Equal(t, float32(40), snap.Planted.TimeTotal)
	assert.Nil(t, snap.Planted.Defuser)
}

func TestPlantedBeingDefused(t *testing.T) {
	w := newSimWorld(t)
	w.addPawn(2, "alpha", 100, 3, true)
	w.addPlanted(10, bombSpec{
		beingDefused:  true,
		detonateAt:    curTime + 20,
		fuseLength:    40,
		defuseEnds:    curTime + 6,
		defuseLength:  10,
		defuserHandle: 2 | 0x00640000,
	})
	gen := w.generator(t)

	snap, err := gen.Snapshot()
	require.NoError(t, err)
	require.NotNil(t, snap.Planted)
	require.NotNil(t, snap.Planted.Defuser)

	assert.Equal(t, "alpha", snap.Planted.Defuser.PlayerName)
	assert.InDelta(t, 6, snap.Planted.Defuser.TimeRemaining, 0.001)
	assert.Equal(t, float32(10), snap.Planted.Defuser.TimeTotal)
}

func TestPlantedDefused(t *testing.T) {
	w := newSimWorld(t)
	w.addPlanted(10, bombSpec{defused: true, site: 2})
	gen := w.generator(t)

	snap, err := gen.Snapshot()
	require.NoError(t, err)
	require.NotNil(t, snap.Planted)
	assert.Equal(t, radar.ChargeDefused, snap.Planted.State)
	assert.Zero(t, snap.Planted.TimeDetonation)
}

func TestPlantedDetonated(t *testing.T) {
	w := newSimWorld(t)
	w.addPlanted(10, bombSpec{detonateAt: curTime - 1, fuseLength: 40})
	gen := w.generator(t)

	snap, err := gen.Snapshot()
	require.NoError(t, err)
	require.NotNil(t, snap.Planted)
	assert.Equal(t, radar.ChargeDetonated, snap.Planted.State)
}

func TestPlantedWithDeadDefuserSkipped(t *testing.T) {
	w := newSimWorld(t)
	w.addPawn(2, "alpha", 0, 3, false)
	w.addPlanted(10, bombSpec{
		beingDefused:  true,
		detonateAt:    curTime + 20,
		fuseLength:    40,
		defuserHandle: 2,
	})
	gen := w.generator(t)

	snap, err := gen.Snapshot()
	require.NoError(t, err, "an inconsistent bomb entity costs the bomb, not the snapshot")
	assert.Nil(t, snap.Planted)
}

func TestCarriedCharges(t *testing.T) {
	w := newSimWorld(t)
	w.addPawn(2, "alpha", 100, 3, true)
	w.addCarried(11, 2|0x00640000, [3]float32{5, 6, 7})
	w.addCarried(12, 0xffffffff, [3]float32{8, 9, 10})
	gen := w.generator(t)

	snap, err := gen.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Carried, 2)

	carried := snap.Carried[0]
	assert.Equal(t, game.EntityIndex(11), carried.EntityIndex)
	assert.True(t, carried.Owner.Valid())
	assert.Equal(t, game.EntityIndex(2), carried.Owner.Index())
	assert.Equal(t, [3]float32{5, 6, 7}, carried.Position)

	dropped := snap.Carried[1]
	assert.False(t, dropped.Owner.Valid(), "dropped charge has no owner")
}

// Consecutive snapshots see fresh target state: the epoch bump at the top
// of Snapshot invalidates everything from the previous call.
func TestSnapshotsSeeFreshState(t *testing.T) {
	w := newSimWorld(t)
	entity := w.addPawn(2, "alpha", 100, 2, true)
	gen := w.generator(t)

	snap, err := gen.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, int32(100), snap.Players[0].Health)

	w.mem.PutU32(entity+0x0, 37)
	snap, err = gen.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, int32(37), snap.Players[0].Health)
}
