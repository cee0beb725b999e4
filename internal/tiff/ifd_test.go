package tiff

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// fakeTiffWriter builds a minimal classic-TIFF byte stream with one IFD
// containing ImageWidth, ImageLength, Compression and TileWidth/TileLength,
// enough to exercise ParseAll's inline-vs-offset entry resolution without
// needing a real microscopy file.
func buildClassicTIFF(t *testing.T, entries [][3]uint32) []byte {
	t.Helper()
	order := binary.LittleEndian
	buf := &bytes.Buffer{}
	buf.WriteString("II")
	binary.Write(buf, order, uint16(42))
	binary.Write(buf, order, uint32(8))

	binary.Write(buf, order, uint16(len(entries)))
	for _, e := range entries {
		tag, ftype, value := e[0], e[1], e[2]
		binary.Write(buf, order, uint16(tag))
		binary.Write(buf, order, uint16(ftype))
		binary.Write(buf, order, uint32(1))
		binary.Write(buf, order, value)
	}
	binary.Write(buf, order, uint32(0)) // no next IFD

	return buf.Bytes()
}

func TestParseAllClassicMinimal(t *testing.T) {
	data := buildClassicTIFF(t, [][3]uint32{
		{uint32(TagImageWidth), uint32(typeLong), 256},
		{uint32(TagImageLength), uint32(typeLong), 256},
		{uint32(TagCompression), uint32(typeShort), uint32(CompressionJPEG)},
		{uint32(TagTileWidth), uint32(typeLong), 240},
		{uint32(TagTileLength), uint32(typeLong), 240},
		{uint32(TagNewSubfileType), uint32(typeLong), 1},
	})

	ifds, err := ParseAll(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if len(ifds) != 1 {
		t.Fatalf("expected 1 IFD, got %d", len(ifds))
	}
	d := ifds[0]
	if d.Width != 256 || d.Height != 256 {
		t.Errorf("dims = %d x %d", d.Width, d.Height)
	}
	if d.Compression != CompressionJPEG {
		t.Errorf("compression = %v", d.Compression)
	}
	if !d.IsTiled() {
		t.Errorf("expected tiled layout")
	}
	if !d.IsReducedResolution() {
		t.Errorf("expected reduced-resolution bit set")
	}
	if got := d.TilesAcross(); got != 2 {
		t.Errorf("TilesAcross = %d, want 2", got)
	}
}

func TestParseAllRejectsBadMagic(t *testing.T) {
	_, err := ParseAll(bytes.NewReader([]byte("XX\x00\x00\x00\x00\x00\x00")))
	if err == nil {
		t.Fatal("expected error for bad byte-order mark")
	}
}
