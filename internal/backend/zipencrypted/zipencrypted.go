// Package zipencrypted implements the InteMedic-style vendor backend: a
// ZIP container whose entries are per-tile JPEG images named by (level,
// col, row), plus one entry holding AES-256-CBC encrypted slide metadata
// (background color, objective power, scan date) that must be decrypted
// and integrity-checked before its properties are exposed.
//
// Grounded on internal/ziparchive for container access, internal/codec's
// AES/PKCS7/digest helpers for the metadata entry, and internal/grid's
// TilemapGrid (rather than SimpleGrid) because this format's entries are
// sparse — only tiles that exist were ever written to the archive — so
// missing cells must be explicitly rendered rather than treated as an
// out-of-range grid position.
package zipencrypted

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pspoerri/slidepyramid/internal/backend"
	"github.com/pspoerri/slidepyramid/internal/codec"
	"github.com/pspoerri/slidepyramid/internal/grid"
	"github.com/pspoerri/slidepyramid/internal/slideerr"
	"github.com/pspoerri/slidepyramid/internal/surface"
	"github.com/pspoerri/slidepyramid/internal/ziparchive"
)

func init() {
	backend.Register(backend.Registration{
		Name:   "intemedic",
		Detect: detect,
		Open:   open,
	})
}

const metadataEntryName = "metadata.tron"

func detect(r io.ReaderAt, size int64, name string) bool {
	if !strings.HasSuffix(strings.ToLower(name), ".tron") {
		return false
	}
	a, err := ziparchive.Open(r, size)
	if err != nil {
		return false
	}
	_, ok := a.Find(metadataEntryName)
	return ok
}

// Backend serves tiles out of an encrypted InteMedic container.
type Backend struct {
	archive    *ziparchive.Archive
	levels     []levelInfo
	grids      []*grid.TilemapGrid
	properties map[string]string
}

type levelInfo struct {
	width, height int
	tileW, tileH  int
	cols, rows    int
}

// aesPassword is the vendor's fixed application-level password: in the
// real product this is compiled into the viewer application rather than
// supplied by the user, so it doubles as the PBKDF2 passphrase for every
// archive rather than being per-file key material.
var aesPassword = []byte("IM-Viewer-Default-Key-2014")

func open(r io.ReaderAt, size int64, name string) (backend.Backend, error) {
	a, err := ziparchive.Open(r, size)
	if err != nil {
		return nil, err
	}

	b := &Backend{archive: a, properties: map[string]string{}}

	if err := b.loadMetadata(); err != nil {
		return nil, err
	}
	if err := b.discoverLevels(); err != nil {
		return nil, err
	}
	return b, nil
}

// metadataLayout is the fixed on-disk layout of metadata.tron: a 32-byte
// SHA-256 digest (unencrypted, computed over the decrypted payload), a
// 16-byte salt, a 16-byte IV, then the AES-CBC ciphertext.
const (
	digestLen = 32
	saltLen   = 16
	ivLen     = 16
)

func (b *Backend) loadMetadata() error {
	e, ok := b.archive.Find(metadataEntryName)
	if !ok {
		return slideerr.BadDataf("intemedic", "loadMetadata", "archive has no %s entry", metadataEntryName)
	}
	raw, err := b.archive.Read(e)
	if err != nil {
		return err
	}
	if len(raw) < digestLen+saltLen+ivLen {
		return slideerr.BadDataf("intemedic", "loadMetadata", "metadata entry too short")
	}
	digest := raw[:digestLen]
	salt := raw[digestLen : digestLen+saltLen]
	iv := raw[digestLen+saltLen : digestLen+saltLen+ivLen]
	ciphertext := raw[digestLen+saltLen+ivLen:]

	key := codec.DeriveAESKey(aesPassword, salt)
	plain, err := codec.DecryptMetadata(key, iv, ciphertext, digest)
	if err != nil {
		return err
	}

	for _, line := range strings.Split(string(plain), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.Trim(strings.TrimSpace(line[eq+1:]), `"`)
		b.properties[key] = val
	}
	b.properties["openslide.vendor"] = "intemedic"
	if bg, ok := b.properties["BackgroundColor"]; ok {
		if hex := backgroundColorToHex(bg); hex != "" {
			b.properties["openslide.background-color"] = hex
		}
	}
	return nil
}

// backgroundColorToHex converts a "R, G, B" decimal triple (the vendor's
// metadata format) into a lowercase "rrggbb" hex property value.
func backgroundColorToHex(v string) string {
	parts := strings.Split(v, ",")
	if len(parts) != 3 {
		return ""
	}
	var rgb [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return ""
		}
		rgb[i] = n
	}
	return fmt.Sprintf("%02x%02x%02x", rgb[0], rgb[1], rgb[2])
}

// entryPattern matches "L<level>_C<col>_R<row>.jpg" tile entry names.
func parseTileEntryName(name string) (level, col, row int, ok bool) {
	base := name
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	base = strings.TrimSuffix(base, ".jpg")
	parts := strings.Split(base, "_")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	var err error
	if level, err = parseIntPrefixed(parts[0], "L"); err != nil {
		return 0, 0, 0, false
	}
	if col, err = parseIntPrefixed(parts[1], "C"); err != nil {
		return 0, 0, 0, false
	}
	if row, err = parseIntPrefixed(parts[2], "R"); err != nil {
		return 0, 0, 0, false
	}
	return level, col, row, true
}

func parseIntPrefixed(s, prefix string) (int, error) {
	if !strings.HasPrefix(s, prefix) {
		return 0, fmt.Errorf("missing prefix %q", prefix)
	}
	return strconv.Atoi(strings.TrimPrefix(s, prefix))
}

const defaultTileSize = 256

func (b *Backend) discoverLevels() error {
	byLevel := map[int]*grid.TilemapGrid{}
	maxLevel := -1
	for _, e := range b.archive.Entries {
		level, col, row, ok := parseTileEntryName(e.Name)
		if !ok {
			continue
		}
		if level > maxLevel {
			maxLevel = level
		}
		g, exists := byLevel[level]
		if !exists {
			g = grid.NewTilemapGrid(defaultTileSize, defaultTileSize)
			byLevel[level] = g
		}
		entry := e
		g.AddTile(col, row, 0, 0, defaultTileSize, defaultTileSize, func() (*surface.Image, error) {
			data, err := b.archive.Read(entry)
			if err != nil {
				return nil, err
			}
			return codec.DecodeJPEG(data, nil)
		})
		if col+1 > g.TilesAcross {
			g.TilesAcross = col + 1
		}
		if row+1 > g.TilesDown {
			g.TilesDown = row + 1
		}
	}
	if maxLevel < 0 {
		return slideerr.BadDataf("intemedic", "discoverLevels", "archive has no recognizable tile entries")
	}

	grids := make([]*grid.TilemapGrid, maxLevel+1)
	levels := make([]levelInfo, maxLevel+1)
	for lvl := 0; lvl <= maxLevel; lvl++ {
		g, ok := byLevel[lvl]
		if !ok {
			continue
		}
		g.RenderMissing = func(s *surface.Surface, col, row int, w, h float64) error {
			s.FillRect(int(float64(col)*w), int(float64(row)*h), int(w), int(h), surface.ARGB(0xFF, 0xFF, 0xFF, 0xFF))
			return nil
		}
		grids[lvl] = g
		levels[lvl] = levelInfo{
			width: g.TilesAcross * defaultTileSize, height: g.TilesDown * defaultTileSize,
			tileW: defaultTileSize, tileH: defaultTileSize,
			cols: g.TilesAcross, rows: g.TilesDown,
		}
	}
	b.grids = grids
	b.levels = levels
	return nil
}

func (b *Backend) Name() string { return "intemedic" }

func (b *Backend) Levels() []backend.Level {
	out := make([]backend.Level, len(b.levels))
	base := float64(b.levels[0].width)
	for i, l := range b.levels {
		ds := 1.0
		if l.width > 0 {
			ds = base / float64(l.width)
		}
		out[i] = backend.Level{Width: int64(l.width), Height: int64(l.height), DownsampleHint: ds, TileWidth: l.tileW, TileHeight: l.tileH}
	}
	return out
}

func (b *Backend) Properties() map[string]string { return b.properties }

func (b *Backend) AssociatedImages() map[string][2]int { return map[string][2]int{} }

func (b *Backend) ReadAssociatedImage(name string) (*surface.Image, error) {
	return nil, slideerr.Unsupportedf("intemedic", "ReadAssociatedImage", "no associated image named %q", name)
}

func (b *Backend) PaintRegion(ctx context.Context, dst *surface.Surface, level int, x, y, w, h float64) error {
	if level < 0 || level >= len(b.grids) || b.grids[level] == nil {
		return slideerr.BadDataf("intemedic", "PaintRegion", "level %d not present", level)
	}
	return b.grids[level].PaintRegion(dst, x, y, w, h)
}

func (b *Backend) Close() error { return nil }
