// Package hexdump renders memory read from a remote process for inspection
package hexdump

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/Moonlight-Companies/gologger/coloransi"
)

// Options controls the dump layout
type Options struct {
	// BytesPerLine defines the number of bytes to display per line
	BytesPerLine int

	// GroupSize defines the grouping of bytes (usually 1, 2, 4, or 8)
	GroupSize int

	// ShowASCII determines whether to show the ASCII representation
	ShowASCII bool

	// StartAddress labels the first byte
	StartAddress uint64

	// Highlight is a pattern whose occurrences are coloured and flagged at
	// the end of the line
	Highlight []byte

	// MaxLines is the maximum number of lines to show (0 for no limit)
	MaxLines int

	// Plain disables colour, for output that is not a terminal
	Plain bool

	AddressColor             coloransi.ColorCode
	ZeroColor                coloransi.ColorCode
	HighlightColor           coloransi.ColorCode
	HighlightBackgroundColor coloransi.ColorCode
}

func DefaultOptions() Options {
	return Options{
		BytesPerLine:             16,
		GroupSize:                4,
		ShowASCII:                true,
		AddressColor:             coloransi.Cyan,
		ZeroColor:                coloransi.BrightBlack,
		HighlightColor:           coloransi.Yellow,
		HighlightBackgroundColor: coloransi.Black,
	}
}

// Dump creates a hex dump of the given data with specified options
func Dump(data []byte, options Options) string {
	var buffer bytes.Buffer
	DumpToWriter(&buffer, data, options)
	return buffer.String()
}

// DumpToWriter writes a hex dump of the given data to the specified writer
func DumpToWriter(writer io.Writer, data []byte, options Options) {
	if options.BytesPerLine <= 0 {
		options.BytesPerLine = 16
	}
	if options.GroupSize <= 0 {
		options.GroupSize = 1
	}

	marked := highlighted(data, options.Highlight)

	lineCount := 0
	for offset := 0; offset < len(data); offset += options.BytesPerLine {
		if options.MaxLines > 0 && lineCount >= options.MaxLines {
			fmt.Fprintf(writer, "... %d more bytes\n", len(data)-offset)
			break
		}

		end := min(offset+options.BytesPerLine, len(data))
		formatLine(writer, data[offset:end], marked[offset:end], options.StartAddress+uint64(offset), options)
		lineCount++
	}
}

// highlighted marks every byte covered by an occurrence of pattern
func highlighted(data, pattern []byte) []bool {
	marked := make([]bool, len(data))
	if len(pattern) == 0 {
		return marked
	}
	for i := 0; i+len(pattern) <= len(data); i++ {
		if bytes.Equal(data[i:i+len(pattern)], pattern) {
			for j := range pattern {
				marked[i+j] = true
			}
		}
	}
	return marked
}

func formatLine(writer io.Writer, data []byte, marked []bool, address uint64, options Options) {
	addr := fmt.Sprintf("%012x", address)
	if !options.Plain {
		addr = coloransi.Foreground(options.AddressColor, addr)
	}
	fmt.Fprint(writer, addr, "  ")

	var hex strings.Builder
	width := 0
	hit := false
	for i, b := range data {
		if i > 0 && i%options.GroupSize == 0 {
			hex.WriteByte(' ')
			width++
		}
		hit = hit || marked[i]
		hex.WriteString(hexByte(b, marked[i], options))
		width += 2
	}

	// pad short lines so the ASCII column stays aligned
	full := options.BytesPerLine*2 + (options.BytesPerLine-1)/options.GroupSize
	fmt.Fprint(writer, hex.String(), strings.Repeat(" ", max(0, full-width)))

	if options.ShowASCII {
		fmt.Fprint(writer, " | ")
		for _, b := range data {
			if unicode.IsPrint(rune(b)) && b < 0x7f {
				fmt.Fprintf(writer, "%c", b)
			} else {
				fmt.Fprint(writer, ".")
			}
		}
	}

	if hit {
		fmt.Fprint(writer, " <")
	}
	fmt.Fprintln(writer)
}

func hexByte(b byte, marked bool, options Options) string {
	v := fmt.Sprintf("%02x", b)
	switch {
	case options.Plain:
		return v
	case marked:
		return coloransi.Color(options.HighlightColor, options.HighlightBackgroundColor, v)
	case b == 0:
		return coloransi.Foreground(options.ZeroColor, v)
	default:
		return v
	}
}
