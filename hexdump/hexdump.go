// Package hexdump renders byte ranges read out of a target process. Lines
// carry the address column, a split hex panel, the ASCII panel and, when a
// region table is supplied, any qword that lands inside the target's
// mappings.
package hexdump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Moonlight-Companies/gologger/coloransi"

	"memtap/target"
)

// Options controls one dump.
type Options struct {
	// Width is the number of bytes per line. Zero means 16.
	Width int

	// Base is the target address of data[0], shown in the address column.
	Base uint64

	// Highlight marks every occurrence of this byte run in the dump.
	Highlight []byte

	// Regions enables the pointer column: qwords at the start of either
	// half-line that fall inside a region are echoed on the right. The
	// slice must be sorted by base address.
	Regions []target.Region
}

const (
	addrColor = coloransi.Cyan
	hexColor  = coloransi.Green
	zeroColor = coloransi.BrightBlack
	junkColor = coloransi.Red
	textColor = coloransi.White
	hlColor   = coloransi.Yellow
	hlBack    = coloransi.Black
	ptrColor  = coloransi.Yellow
)

// Dump renders data to a string.
func Dump(data []byte, opts Options) string {
	var buf bytes.Buffer
	DumpTo(&buf, data, opts)
	return buf.String()
}

// DumpAt renders data with default options, addressed from base.
func DumpAt(data []byte, base uint64) string {
	return Dump(data, Options{Base: base})
}

// DumpTo renders data to w.
func DumpTo(w io.Writer, data []byte, opts Options) {
	width := opts.Width
	if width <= 0 {
		width = 16
	}
	hot := highlighted(data, opts.Highlight)

	for off := 0; off < len(data); off += width {
		end := off + width
		if end > len(data) {
			end = len(data)
		}
		line := data[off:end]

		addr := fmt.Sprintf("%08x", opts.Base+uint64(off))
		fmt.Fprint(w, coloransi.Foreground(addrColor, addr), "  ")

		for i := 0; i < width; i++ {
			if i == width/2 && width >= 8 {
				fmt.Fprint(w, "| ")
			}
			if i < len(line) {
				fmt.Fprint(w, hexCell(line[i], hot[off+i]), " ")
			} else {
				fmt.Fprint(w, "   ")
			}
		}

		fmt.Fprint(w, "| ")
		for i, b := range line {
			if i == width/2 && width >= 8 {
				fmt.Fprint(w, " ")
			}
			fmt.Fprint(w, glyph(b, hot[off+i]))
		}

		if len(opts.Regions) > 0 {
			for _, at := range []int{0, width / 2} {
				if at+8 > len(line) || at%8 != 0 {
					continue
				}
				ptr := binary.LittleEndian.Uint64(line[at:])
				if target.RegionFor(opts.Regions, ptr) != nil {
					fmt.Fprint(w, " ", coloransi.Foreground(ptrColor, fmt.Sprintf("0x%x", ptr)))
				}
			}
		}

		fmt.Fprintln(w)
	}
}

// highlighted flags every byte covered by a Highlight occurrence.
func highlighted(data, pattern []byte) []bool {
	hot := make([]bool, len(data))
	if len(pattern) == 0 {
		return hot
	}
	for i := 0; i+len(pattern) <= len(data); i++ {
		if bytes.Equal(data[i:i+len(pattern)], pattern) {
			for j := range pattern {
				hot[i+j] = true
			}
		}
	}
	return hot
}

func hexCell(b byte, hot bool) string {
	cell := fmt.Sprintf("%02x", b)
	switch {
	case hot:
		return coloransi.Color(hlColor, hlBack, cell)
	case b == 0:
		return coloransi.Foreground(zeroColor, cell)
	default:
		return coloransi.Foreground(hexColor, cell)
	}
}

func glyph(b byte, hot bool) string {
	printable := b >= 0x20 && b < 0x7f
	switch {
	case hot && printable:
		return coloransi.Color(hlColor, hlBack, string(rune(b)))
	case hot:
		return coloransi.Color(hlColor, hlBack, ".")
	case b == 0:
		return coloransi.Foreground(zeroColor, ".")
	case !printable:
		return coloransi.Foreground(junkColor, ".")
	default:
		return coloransi.Foreground(textColor, string(rune(b)))
	}
}
