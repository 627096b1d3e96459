// Command example runs the whole stack against a scripted target: a
// simulated process stands in for the game, a socket server fronts it, and
// the radar renders snapshots from the client side of the wire. It needs no
// privileges and no live process.
package main

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"

	"memtap/driver"
	"memtap/driver_socket"
	"memtap/game"
	"memtap/radar"
	"memtap/scan"
	"memtap/state"
	"memtap/target_sim"
)

const (
	pid = 4242

	modBase      = uint64(0x400000)
	globalsAddr  = uint64(0x20000000)
	mapNameAddr  = uint64(0x20000100)
	listHdrAddr  = uint64(0x20001000)
	chunkTabAddr = uint64(0x20002000)
	chunk0Addr   = uint64(0x20010000)

	classPawnAddr    = uint64(0x20030000)
	classPlantedAddr = uint64(0x20030100)
	pawnClassStr     = uint64(0x20060000)
	plantedClassStr  = uint64(0x20060080)
	alphaStr         = uint64(0x20060100)
	bravoStr         = uint64(0x20060180)

	alphaEnt = uint64(0x20040000)
	bravoEnt = uint64(0x20040080)
	bombEnt  = uint64(0x20040100)
)

func main() {
	host := target_sim.NewHost()
	mem := buildWorld(host)

	dir, err := os.MkdirTemp("", "memtap-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)
	sock := filepath.Join(dir, "memtap.sock")

	srv := driver_socket.NewServer(driver.NewService(host))
	ln, err := net.Listen("unix", sock)
	if err != nil {
		log.Fatal(err)
	}
	go srv.Serve(ln)
	defer srv.Close()

	tp, err := driver_socket.Dial(sock)
	if err != nil {
		log.Fatal(err)
	}
	defer tp.Close()

	sch := game.DefaultSchema()
	rd, err := game.NewReader(tp, pid, sch)
	if err != nil {
		log.Fatal(err)
	}
	states := state.New()
	game.RegisterStates(states, rd, sch)
	gen := radar.NewGenerator(states, rd, sch)

	fmt.Println("-- first snapshot")
	show(gen)

	// The target plays on: alpha takes damage and the charge goes down.
	mem.PutU32(alphaEnt+0x0, 37)
	plantCharge(mem)
	fmt.Println("-- after the plant")
	show(gen)

	// Signature scan over the module, the same path `memtap find` takes.
	pat, err := scan.Parse("fe ed fa ce")
	if err != nil {
		log.Fatal(err)
	}
	addr, err := scan.FindFirst(tp, pid, "game.bin", pat)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("-- signature %s at %#x (module base %#x)\n", pat, addr, modBase)

	// Tear out the entity list pointer. The snapshot reports how far the
	// chain resolved before it broke, then recovers once the pointer is back.
	mem.PutU64(modBase+0x1b80, 0x666)
	if _, err := gen.Snapshot(); err != nil {
		fmt.Println("-- torn pointer:", err)
		var stale *game.StaleChainError
		if errors.As(err, &stale) {
			fmt.Printf("   resolved %d hop(s): %#x\n", len(stale.Trace), stale.Trace)
		}
	}
	mem.PutU64(modBase+0x1b80, listHdrAddr)
	fmt.Println("-- pointer restored")
	show(gen)

	// The target exits.
	host.RemoveProcess(pid)
	if _, err := gen.Snapshot(); err != nil {
		fmt.Println("-- target gone:", err)
	}
}

func buildWorld(host *target_sim.Host) *target_sim.Space {
	mem := host.AddProcess(pid).
		MapRegion(modBase, 0x2000, "r-xp", "/opt/game/game.bin").
		MapRegion(0x20000000, 0x70000, "rw-p", "")

	// Module pointers the schema chains start from, plus a signature for
	// the scan above.
	mem.PutU64(modBase+0x1b00, globalsAddr).
		PutU64(modBase+0x1b80, listHdrAddr).
		PutBytes(modBase+0x9e0, []byte{0xfe, 0xed, 0xfa, 0xce})

	mem.PutU32(globalsAddr+0x0, 9000).
		PutF32(globalsAddr+0x4, 64.5).
		PutU64(globalsAddr+0x8, mapNameAddr).
		PutString(mapNameAddr, "harbor")

	mem.PutU64(listHdrAddr+0x0, chunkTabAddr).
		PutU32(listHdrAddr+0x8, 3).
		PutU64(chunkTabAddr, chunk0Addr)

	mem.PutU64(classPawnAddr+0x8, pawnClassStr).
		PutString(pawnClassStr, "CPlayerPawn").
		PutU64(classPlantedAddr+0x8, plantedClassStr).
		PutString(plantedClassStr, "CPlantedCharge")

	putPawn(mem, 1, alphaEnt, alphaStr, "alpha", 100, 2, [3]float32{120, -40, 8})
	putPawn(mem, 3, bravoEnt, bravoStr, "bravo", 85, 3, [3]float32{-200, 310, 12})
	return mem
}

func putPawn(mem *target_sim.Space, idx uint32, ent, str uint64, name string, hp int32, team uint8, pos [3]float32) {
	mem.PutU32(ent+0x0, uint32(hp)).
		PutU8(ent+0x4, team).
		PutF32(ent+0x8, pos[0]).
		PutF32(ent+0xc, pos[1]).
		PutF32(ent+0x10, pos[2]).
		PutU64(ent+0x18, str).
		PutString(str, name).
		PutU16(ent+0x20, 7)

	slot := chunk0Addr + uint64(idx)*0x20
	mem.PutU64(slot+0x0, ent).
		PutU64(slot+0x8, classPawnAddr).
		PutU32(slot+0x10, idx|0x00640000)
}

func plantCharge(mem *target_sim.Space) {
	// Site B, forty seconds on the fuse against the 64.5s target clock.
	mem.PutU8(bombEnt+0x2, 1).
		PutF32(bombEnt+0x4, 104.5).
		PutF32(bombEnt+0x8, 40).
		PutF32(bombEnt+0x18, 1180).
		PutF32(bombEnt+0x1c, 2520).
		PutF32(bombEnt+0x20, 96)

	slot := chunk0Addr + 4*0x20
	mem.PutU64(slot+0x0, bombEnt).
		PutU64(slot+0x8, classPlantedAddr).
		PutU32(slot+0x10, 4|0x00640000).
		PutU32(listHdrAddr+0x8, 4)
}

func show(gen *radar.Generator) {
	snap, err := gen.Snapshot()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("[%d] %s\n", snap.TickCount, snap.MapName)
	for _, p := range snap.Players {
		fmt.Printf("  #%d %-8s team %d  hp %-3d  (%.0f %.0f %.0f)\n",
			p.EntityIndex, p.Name, p.Team, p.Health,
			p.Position[0], p.Position[1], p.Position[2])
	}
	if b := snap.Planted; b != nil {
		fmt.Printf("  charge at site %c: %.1fs of %.1fs\n",
			'A'+b.Site, b.TimeDetonation, b.TimeTotal)
	}
}
