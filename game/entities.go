package game

import (
	"errors"
	"fmt"

	"memtap/state"
)

// ErrEntityMissing means a requested entity index has no live identity in
// the current entity system snapshot.
var ErrEntityMissing = errors.New("entity missing")

// EntityIndex addresses a slot in the target's entity list.
type EntityIndex uint32

// Handle is the target's packed entity reference. The low 15 bits are the
// list index; an all-ones index marks the invalid handle.
type Handle uint32

func (h Handle) Index() EntityIndex {
	return EntityIndex(h & MaxEntityIndex)
}

func (h Handle) Valid() bool {
	return h.Index() != MaxEntityIndex
}

func (h Handle) String() string {
	if !h.Valid() {
		return "handle(invalid)"
	}
	return fmt.Sprintf("handle(%d)", h.Index())
}

// EntityIdentity is one live slot of the entity list: where the entity
// lives and what class it claims to be. Address is the slot itself, useful
// when a stale-chain trace needs to be pinned back to the list.
type EntityIdentity struct {
	Index     EntityIndex
	Address   uint64
	EntityPtr uint64
	ClassInfo uint64
	Handle    Handle
}

// EntitySystem is the decoded entity list of one epoch.
type EntitySystem struct {
	identities []EntityIdentity
	byIndex    map[EntityIndex]int
}

// All returns every live identity in index order.
func (e *EntitySystem) All() []EntityIdentity {
	return e.identities
}

// ByIndex returns the identity at a list index.
func (e *EntitySystem) ByIndex(idx EntityIndex) (EntityIdentity, bool) {
	i, ok := e.byIndex[idx]
	if !ok {
		return EntityIdentity{}, false
	}
	return e.identities[i], true
}

// ByHandle follows a packed entity reference to its identity.
func (e *EntitySystem) ByHandle(h Handle) (EntityIdentity, bool) {
	if !h.Valid() {
		return EntityIdentity{}, false
	}
	return e.ByIndex(h.Index())
}

// resolveEntitySystem walks the entity list chunk by chunk. Each allocated
// chunk is fetched in one read and decoded locally; slots with a NULL
// entity pointer are free and skipped.
func resolveEntitySystem(rd *Reader, sch *Schema) (*EntitySystem, error) {
	list := sch.EntityList.From(rd.ModuleBase())

	maxIndex, err := rd.U32(list.Field(sch.ListLayout.MaxIndex))
	if err != nil {
		return nil, fmt.Errorf("entity list max index: %w", err)
	}
	if maxIndex > MaxEntityIndex {
		return nil, fmt.Errorf("entity list max index %d is implausible", maxIndex)
	}

	slotSize := int64(sch.IdentityLayout.Size)
	sys := &EntitySystem{byIndex: make(map[EntityIndex]int)}

	for first := uint32(0); first <= maxIndex; first += ChunkSize {
		chunkPtr, err := rd.U64(list.Field(sch.ListLayout.ChunkTable).Deref(int64(first/ChunkSize) * 8))
		if err != nil {
			return nil, fmt.Errorf("entity chunk %d pointer: %w", first/ChunkSize, err)
		}
		if chunkPtr == 0 {
			continue
		}

		slots := uint32(ChunkSize)
		if remaining := maxIndex + 1 - first; remaining < slots {
			slots = remaining
		}

		chunk, err := rd.Blob(Chain{int64(chunkPtr)}, slots*uint32(slotSize))
		if err != nil {
			return nil, fmt.Errorf("entity chunk %d: %w", first/ChunkSize, err)
		}

		for slot := uint32(0); slot < slots; slot++ {
			base := int64(slot) * slotSize
			entityPtr, err := chunk.U64(base + sch.IdentityLayout.Entity)
			if err != nil {
				return nil, err
			}
			if entityPtr == 0 {
				continue
			}
			classInfo, err := chunk.U64(base + sch.IdentityLayout.ClassInfo)
			if err != nil {
				return nil, err
			}
			handle, err := chunk.U32(base + sch.IdentityLayout.Handle)
			if err != nil {
				return nil, err
			}

			sys.byIndex[EntityIndex(first+slot)] = len(sys.identities)
			sys.identities = append(sys.identities, EntityIdentity{
				Index:     EntityIndex(first + slot),
				Address:   chunkPtr + uint64(base),
				EntityPtr: entityPtr,
				ClassInfo: classInfo,
				Handle:    Handle(handle),
			})
		}
	}

	return sys, nil
}

// ClassNameCache maps class info pointers to their names. Class info blocks
// are immortal in the target, so entries survive across epochs in practice,
// but the cache is still rebuilt per epoch like everything else; only the
// names of live identities get read.
type ClassNameCache struct {
	names map[uint64]string
}

// Lookup returns the class name behind a class info pointer.
func (c *ClassNameCache) Lookup(classInfo uint64) (string, bool) {
	name, ok := c.names[classInfo]
	return name, ok
}

func resolveClassNames(reg *state.Registry, rd *Reader, sch *Schema) (*ClassNameCache, error) {
	ents, err := state.Resolve[EntitySystem](reg)
	if err != nil {
		return nil, err
	}

	cache := &ClassNameCache{names: make(map[uint64]string)}
	for _, ident := range ents.All() {
		if ident.ClassInfo == 0 {
			continue
		}
		if _, seen := cache.names[ident.ClassInfo]; seen {
			continue
		}

		// An unreadable class info leaves the entry absent; consumers
		// treat unknown classes as entities they do not care about.
		name, err := rd.String(Chain{int64(ident.ClassInfo) + sch.ClassLayout.Name, 0}, 64)
		if err != nil {
			continue
		}
		cache.names[ident.ClassInfo] = name
	}
	return cache, nil
}
