package tiff

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pspoerri/slidepyramid/internal/slideerr"
)

// IFD is one parsed Image File Directory: a pyramid level, a thumbnail, a
// label/macro associated image, or any other subfile a microscopy TIFF
// carries. Entry values that fit in the inline 4 (classic) or 8 (BigTIFF)
// value slot are resolved eagerly; the rest are loaded on first access via
// the backend's ReaderAt, matching internal/cog/ifd.go's resolveEntry
// split between inline and offset-carrying entries.
type IFD struct {
	Width, Height   uint32
	BitsPerSample   []uint16
	Compression     Compression
	Photometric     Photometric
	SamplesPerPixel uint16
	PlanarConfig    PlanarConfig
	Predictor       uint16
	SampleFormat    []uint16
	NewSubfileType  uint32
	ImageDescription string

	// Striped layout.
	RowsPerStrip    uint32
	StripOffsets    []uint64
	StripByteCounts []uint64

	// Tiled layout, required by the tiled-TIFF backend.
	TileWidth      uint32
	TileLength     uint32
	TileOffsets    []uint64
	TileByteCounts []uint64

	JPEGTables []byte

	nextOffset uint64
}

// IsTiled reports whether this directory describes a tiled (rather than
// striped) image.
func (d *IFD) IsTiled() bool { return d.TileWidth > 0 && d.TileLength > 0 }

// IsReducedResolution reports whether bit 0 of NewSubfileType is set,
// OpenSlide's and libtiff's convention for "this is a pyramid sub-level of
// the preceding full-resolution directory" as opposed to a thumbnail or
// other associated image (bit 1) or a page of a multi-page document.
func (d *IFD) IsReducedResolution() bool { return d.NewSubfileType&1 != 0 }

const (
	magicClassic = 42
	magicBig     = 43

	entrySizeClassic = 12
	entrySizeBig     = 20
)

// header carries the byte order and BigTIFF-ness decided by the file's
// first 8 bytes, threaded through every subsequent read.
type header struct {
	order  binary.ByteOrder
	isBig  bool
	r      io.ReaderAt
}

// ParseAll reads every IFD in the chain starting at the file's header,
// classic or BigTIFF as indicated by the magic number: the dispatcher must
// transparently handle both classic and BigTIFF containers, as Aperio has
// shipped both over the product's lifetime.
func ParseAll(r io.ReaderAt) ([]*IFD, error) {
	var magicBuf [8]byte
	if _, err := r.ReadAt(magicBuf[:], 0); err != nil {
		return nil, slideerr.IOf("tiff", "ParseAll", err)
	}

	var order binary.ByteOrder
	switch {
	case magicBuf[0] == 'I' && magicBuf[1] == 'I':
		order = binary.LittleEndian
	case magicBuf[0] == 'M' && magicBuf[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, slideerr.BadDataf("tiff", "ParseAll", "bad byte-order mark %q", magicBuf[:2])
	}

	magic := order.Uint16(magicBuf[2:4])
	h := &header{order: order, r: r}

	var first uint64
	switch magic {
	case magicClassic:
		h.isBig = false
		first = uint64(order.Uint32(magicBuf[4:8]))
	case magicBig:
		h.isBig = true
		var rest [8]byte
		if _, err := r.ReadAt(rest[:], 8); err != nil {
			return nil, slideerr.IOf("tiff", "ParseAll", err)
		}
		bytesz := order.Uint16(magicBuf[4:6])
		offsz := order.Uint16(magicBuf[6:8])
		if bytesz != 8 || offsz != 0 {
			return nil, slideerr.BadDataf("tiff", "ParseAll", "unexpected BigTIFF size fields %d/%d", bytesz, offsz)
		}
		first = order.Uint64(rest[:])
	default:
		return nil, slideerr.BadDataf("tiff", "ParseAll", "bad magic number %d", magic)
	}

	var out []*IFD
	offset := first
	seen := make(map[uint64]bool)
	for offset != 0 {
		if seen[offset] {
			return nil, slideerr.BadDataf("tiff", "ParseAll", "IFD chain cycles at offset %d", offset)
		}
		seen[offset] = true

		ifd, next, err := parseOneIFD(h, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, ifd)
		offset = next
	}
	if len(out) == 0 {
		return nil, slideerr.BadDataf("tiff", "ParseAll", "no image directories found")
	}
	return out, nil
}

// parseOneIFD parses the directory at offset and returns it along with the
// file offset of the next directory (0 if this is the last one).
func parseOneIFD(h *header, offset uint64) (*IFD, uint64, error) {
	entrySize := entrySizeClassic
	countSize := 2
	if h.isBig {
		entrySize = entrySizeBig
		countSize = 8
	}

	countBuf := make([]byte, countSize)
	if _, err := h.r.ReadAt(countBuf, int64(offset)); err != nil {
		return nil, 0, slideerr.IOf("tiff", "parseOneIFD", err)
	}
	var count uint64
	if h.isBig {
		count = h.order.Uint64(countBuf)
	} else {
		count = uint64(h.order.Uint16(countBuf))
	}

	entries := make([]byte, count*uint64(entrySize))
	if _, err := h.r.ReadAt(entries, int64(offset)+int64(countSize)); err != nil {
		return nil, 0, slideerr.IOf("tiff", "parseOneIFD", err)
	}

	ifd := &IFD{}
	for i := uint64(0); i < count; i++ {
		e := entries[i*uint64(entrySize) : (i+1)*uint64(entrySize)]
		if err := applyEntry(h, ifd, e); err != nil {
			return nil, 0, err
		}
	}

	nextOff := offset + uint64(countSize) + count*uint64(entrySize)
	nextBuf := make([]byte, countSize)
	if !h.isBig {
		nextBuf = make([]byte, 4)
	}
	if _, err := h.r.ReadAt(nextBuf, int64(nextOff)); err != nil {
		return nil, 0, slideerr.IOf("tiff", "parseOneIFD", err)
	}
	var next uint64
	if h.isBig {
		next = h.order.Uint64(nextBuf)
	} else {
		next = uint64(h.order.Uint32(nextBuf))
	}
	return ifd, next, nil
}

// fieldType is the TIFF entry's data type code.
type fieldType uint16

const (
	typeByte      fieldType = 1
	typeASCII     fieldType = 2
	typeShort     fieldType = 3
	typeLong      fieldType = 4
	typeRational  fieldType = 5
	typeSByte     fieldType = 6
	typeUndefined fieldType = 7
	typeSShort    fieldType = 8
	typeSLong     fieldType = 9
	typeSRational fieldType = 10
	typeFloat     fieldType = 11
	typeDouble    fieldType = 12
	typeLong8     fieldType = 16 // BigTIFF
	typeSLong8    fieldType = 17
	typeIFD8      fieldType = 18
)

func typeSize(t fieldType) int {
	switch t {
	case typeByte, typeASCII, typeSByte, typeUndefined:
		return 1
	case typeShort, typeSShort:
		return 2
	case typeLong, typeSLong, typeFloat:
		return 4
	case typeLong8, typeSLong8, typeIFD8, typeRational, typeSRational, typeDouble:
		return 8
	default:
		return 0
	}
}

// applyEntry decodes one directory entry and stores it into ifd if the tag
// is one this package understands; unknown tags are silently ignored, as
// libtiff does, since a tiled-TIFF slide may carry unrecognized private
// tags.
func applyEntry(h *header, ifd *IFD, e []byte) error {
	order := h.order
	tag := Tag(order.Uint16(e[0:2]))
	ftype := fieldType(order.Uint16(e[2:4]))

	var count uint64
	var valueOff []byte
	if h.isBig {
		count = order.Uint64(e[4:12])
		valueOff = e[12:20]
	} else {
		count = uint64(order.Uint32(e[4:8]))
		valueOff = e[8:12]
	}

	sz := typeSize(ftype)
	if sz == 0 {
		return nil // unknown type, skip rather than fail the whole directory
	}
	total := sz * int(count)

	var data []byte
	inlineCap := 4
	if h.isBig {
		inlineCap = 8
	}
	if total <= inlineCap {
		data = valueOff[:total]
	} else {
		var off uint64
		if h.isBig {
			off = order.Uint64(valueOff)
		} else {
			off = uint64(order.Uint32(valueOff))
		}
		data = make([]byte, total)
		if _, err := h.r.ReadAt(data, int64(off)); err != nil {
			return slideerr.IOf("tiff", "applyEntry", fmt.Errorf("tag %s: %w", tag, err))
		}
	}

	readUint := func(i int) uint64 {
		b := data[i*sz : (i+1)*sz]
		switch sz {
		case 1:
			return uint64(b[0])
		case 2:
			return uint64(order.Uint16(b))
		case 4:
			return uint64(order.Uint32(b))
		default:
			return order.Uint64(b)
		}
	}

	switch tag {
	case TagImageWidth:
		ifd.Width = uint32(readUint(0))
	case TagImageLength:
		ifd.Height = uint32(readUint(0))
	case TagBitsPerSample:
		for i := 0; i < int(count); i++ {
			ifd.BitsPerSample = append(ifd.BitsPerSample, uint16(readUint(i)))
		}
	case TagCompression:
		ifd.Compression = Compression(readUint(0))
	case TagPhotometric:
		ifd.Photometric = Photometric(readUint(0))
	case TagImageDescription:
		ifd.ImageDescription = string(data)
	case TagSamplesPerPixel:
		ifd.SamplesPerPixel = uint16(readUint(0))
	case TagRowsPerStrip:
		ifd.RowsPerStrip = uint32(readUint(0))
	case TagStripOffsets:
		for i := 0; i < int(count); i++ {
			ifd.StripOffsets = append(ifd.StripOffsets, readUint(i))
		}
	case TagStripByteCounts:
		for i := 0; i < int(count); i++ {
			ifd.StripByteCounts = append(ifd.StripByteCounts, readUint(i))
		}
	case TagPlanarConfig:
		ifd.PlanarConfig = PlanarConfig(readUint(0))
	case TagPredictor:
		ifd.Predictor = uint16(readUint(0))
	case TagTileWidth:
		ifd.TileWidth = uint32(readUint(0))
	case TagTileLength:
		ifd.TileLength = uint32(readUint(0))
	case TagTileOffsets:
		for i := 0; i < int(count); i++ {
			ifd.TileOffsets = append(ifd.TileOffsets, readUint(i))
		}
	case TagTileByteCounts:
		for i := 0; i < int(count); i++ {
			ifd.TileByteCounts = append(ifd.TileByteCounts, readUint(i))
		}
	case TagNewSubfileType:
		ifd.NewSubfileType = uint32(readUint(0))
	case TagSampleFormat:
		for i := 0; i < int(count); i++ {
			ifd.SampleFormat = append(ifd.SampleFormat, uint16(readUint(i)))
		}
	case TagJPEGTables:
		ifd.JPEGTables = append([]byte(nil), data...)
	}
	return nil
}

// TileIndex returns the linear index of tile (col, row) into TileOffsets /
// TileByteCounts, or -1 if out of range.
func (d *IFD) TileIndex(col, row int) int {
	across := d.TilesAcross()
	down := d.TilesDown()
	if col < 0 || row < 0 || col >= across || row >= down {
		return -1
	}
	return row*across + col
}

// TilesAcross returns the number of tile columns, rounding up.
func (d *IFD) TilesAcross() int {
	if d.TileWidth == 0 {
		return 0
	}
	return int((d.Width + d.TileWidth - 1) / d.TileWidth)
}

// TilesDown returns the number of tile rows, rounding up.
func (d *IFD) TilesDown() int {
	if d.TileLength == 0 {
		return 0
	}
	return int((d.Height + d.TileLength - 1) / d.TileLength)
}
