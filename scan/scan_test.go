package scan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memtap/driver"
	"memtap/scan"
	"memtap/target"
	"memtap/target_sim"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		bytes []byte
		mask  []byte
	}{
		{
			name:  "spaces",
			in:    "48 8b ?? c3",
			bytes: []byte{0x48, 0x8b, 0x00, 0xc3},
			mask:  []byte{0xff, 0xff, 0x00, 0xff},
		},
		{
			name:  "commas",
			in:    "00,ba,ad,??,f0",
			bytes: []byte{0x00, 0xba, 0xad, 0x00, 0xf0},
			mask:  []byte{0xff, 0xff, 0xff, 0x00, 0xff},
		},
		{
			name:  "single question mark wildcard",
			in:    "ff ? 01",
			bytes: []byte{0xff, 0x00, 0x01},
			mask:  []byte{0xff, 0x00, 0xff},
		},
		{
			name:  "upper case hex",
			in:    "DE AD",
			bytes: []byte{0xde, 0xad},
			mask:  []byte{0xff, 0xff},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pat, err := scan.Parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.bytes, pat.Bytes)
			assert.Equal(t, tc.mask, pat.Mask)
		})
	}
}

func TestParseRejects(t *testing.T) {
	for _, in := range []string{"", "  ", "zz", "48 8bq c3", "1234"} {
		t.Run(in, func(t *testing.T) {
			_, err := scan.Parse(in)
			assert.Error(t, err)
		})
	}
}

func TestPatternString(t *testing.T) {
	pat, err := scan.Parse("48 8b ? c3")
	require.NoError(t, err)
	assert.Equal(t, "48 8b ?? c3", pat.String())
	assert.Equal(t, 4, pat.Len())
}

func TestPatternMatch(t *testing.T) {
	pat, err := scan.Parse("48 8b ?? c3")
	require.NoError(t, err)

	assert.True(t, pat.Match([]byte{0x48, 0x8b, 0x00, 0xc3}))
	assert.True(t, pat.Match([]byte{0x48, 0x8b, 0xff, 0xc3}), "wildcard byte is free")
	assert.True(t, pat.Match([]byte{0x48, 0x8b, 0x01, 0xc3, 0x90}), "trailing data ignored")
	assert.False(t, pat.Match([]byte{0x48, 0x8b, 0x00, 0xc2}))
	assert.False(t, pat.Match([]byte{0x48, 0x8b, 0x00}), "short data never matches")
}

const (
	scanPid = 9001
	engBase = uint64(0x500000)
)

// scanTarget maps one engine module and returns space + transport.
func scanTarget(t *testing.T, moduleSize uint64) (*target_sim.Space, driver.Transport) {
	t.Helper()

	host := target_sim.NewHost()
	mem := host.AddProcess(scanPid).
		MapRegion(engBase, moduleSize, "r-xp", "/opt/game/engine.so")
	return mem, driver.Direct(driver.NewService(host))
}

func TestFind(t *testing.T) {
	mem, tp := scanTarget(t, 0x1000)
	sig := []byte{0x48, 0x8b, 0x05, 0xc3}
	mem.PutBytes(engBase+0x100, sig)
	mem.PutBytes(engBase+0x900, sig)

	pat, err := scan.Parse("48 8b 05 c3")
	require.NoError(t, err)

	addrs, err := scan.Find(tp, scanPid, "engine.so", pat)
	require.NoError(t, err)
	assert.Equal(t, []uint64{engBase + 0x100, engBase + 0x900}, addrs)
}

func TestFindWildcard(t *testing.T) {
	mem, tp := scanTarget(t, 0x1000)
	mem.PutBytes(engBase+0x200, []byte{0x48, 0x8b, 0x11, 0xc3})
	mem.PutBytes(engBase+0x300, []byte{0x48, 0x8b, 0x99, 0xc3})
	mem.PutBytes(engBase+0x400, []byte{0x48, 0x8c, 0x11, 0xc3})

	pat, err := scan.Parse("48 8b ?? c3")
	require.NoError(t, err)

	addrs, err := scan.Find(tp, scanPid, "engine.so", pat)
	require.NoError(t, err)
	assert.Equal(t, []uint64{engBase + 0x200, engBase + 0x300}, addrs)
}

// A match sitting across the 64KiB sweep boundary must be reported exactly
// once, via the overlap tail of the first chunk.
func TestFindAcrossChunkBoundary(t *testing.T) {
	mem, tp := scanTarget(t, 0x20000)
	mem.PutBytes(engBase+0xfffe, []byte{0xaa, 0xbb, 0xcc, 0xdd})

	pat, err := scan.Parse("aa bb cc dd")
	require.NoError(t, err)

	addrs, err := scan.Find(tp, scanPid, "engine.so", pat)
	require.NoError(t, err)
	assert.Equal(t, []uint64{engBase + 0xfffe}, addrs)
}

// An unreadable stretch in the middle of the module costs only that stretch.
// The chunk before the hole is recovered by the tailless retry.
func TestFindSkipsUnreadableHole(t *testing.T) {
	host := target_sim.NewHost()
	mem := host.AddProcess(scanPid).
		MapRegion(engBase, 0x10000, "r-xp", "/opt/game/engine.so").
		MapRegion(engBase+0x10000, 0x10000, "---p", "/opt/game/engine.so").
		MapRegion(engBase+0x20000, 0x10000, "r--p", "/opt/game/engine.so")
	tp := driver.Direct(driver.NewService(host))

	sig := []byte{0xfe, 0xed, 0xfa, 0xce}
	mem.PutBytes(engBase+0x8000, sig)
	mem.PutBytes(engBase+0x28000, sig)

	pat, err := scan.Parse("fe ed fa ce")
	require.NoError(t, err)

	addrs, err := scan.Find(tp, scanPid, "engine.so", pat)
	require.NoError(t, err)
	assert.Equal(t, []uint64{engBase + 0x8000, engBase + 0x28000}, addrs)
}

func TestFindUnknownModule(t *testing.T) {
	_, tp := scanTarget(t, 0x1000)

	pat, err := scan.Parse("90")
	require.NoError(t, err)

	_, err = scan.Find(tp, scanPid, "missing.so", pat)
	assert.ErrorIs(t, err, target.ErrUnknownModule)
}

func TestFindUnknownProcess(t *testing.T) {
	_, tp := scanTarget(t, 0x1000)

	pat, err := scan.Parse("90")
	require.NoError(t, err)

	_, err = scan.Find(tp, 4242, "engine.so", pat)
	assert.ErrorIs(t, err, target.ErrUnknownProcess)
}

func TestFindFirst(t *testing.T) {
	mem, tp := scanTarget(t, 0x1000)
	mem.PutBytes(engBase+0x500, []byte{0x11, 0x22})
	mem.PutBytes(engBase+0x600, []byte{0x11, 0x22})

	pat, err := scan.Parse("11 22")
	require.NoError(t, err)

	addr, err := scan.FindFirst(tp, scanPid, "engine.so", pat)
	require.NoError(t, err)
	assert.Equal(t, engBase+0x500, addr)

	missing, err := scan.Parse("de ad be ef")
	require.NoError(t, err)
	_, err = scan.FindFirst(tp, scanPid, "engine.so", missing)
	assert.ErrorIs(t, err, scan.ErrPatternNotFound)
}
