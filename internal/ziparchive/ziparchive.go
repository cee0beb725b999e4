// Package ziparchive parses the ZIP container format used by the
// encrypted-metadata vendor backend by hand rather than via archive/zip:
// the vendor container needs the exact walk of locating the
// end-of-central-directory record, optionally resolved through its ZIP64
// extension, reading central directory entries, then for each entry of
// interest seeking to its local header, skipping over the local header
// and its variable-length name/extra fields, and inflating the
// compressed bytes that follow — because the vendor container
// deliberately omits a few fields archive/zip's stdlib reader insists on
// validating.
//
// Grounded structurally on internal/cog/ifd.go's offset-driven,
// io.ReaderAt-based parsing style (fixed-size records read at computed
// offsets rather than streaming); this package applies the same approach
// to the ZIP end-of-central-directory / central-directory / local-header
// triad. compress/flate (stdlib) performs the actual DEFLATE inflation,
// consistent with how internal/cog/reader.go already calls compress/flate
// directly for TIFF Deflate-compressed tiles rather than reaching for a
// third-party DEFLATE implementation.
package ziparchive

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"io"

	"github.com/pspoerri/slidepyramid/internal/slideerr"
)

const (
	sigEOCD       = 0x06054b50
	sigEOCD64Loc  = 0x07064b50
	sigEOCD64     = 0x06064b50
	sigCentralDir = 0x02014b50
	sigLocalFile  = 0x04034b50

	eocdFixedSize = 22
)

// Entry is one file described by the central directory.
type Entry struct {
	Name             string
	CompressedSize   uint64
	UncompressedSize uint64
	LocalHeaderOff   uint64
	Method           uint16 // 0 = stored, 8 = deflate
}

// Archive is an opened ZIP container backed by random access to the
// underlying file.
type Archive struct {
	r       io.ReaderAt
	size    int64
	Entries []Entry
}

// Open locates the end-of-central-directory record (scanning backward for
// its signature, since an optional comment field of unknown length
// precedes it at the very end of the file) and parses every central
// directory entry.
func Open(r io.ReaderAt, size int64) (*Archive, error) {
	eocdOff, err := findEOCD(r, size)
	if err != nil {
		return nil, err
	}

	fixed := make([]byte, eocdFixedSize)
	if _, err := r.ReadAt(fixed, eocdOff); err != nil {
		return nil, slideerr.IOf("ziparchive", "Open", err)
	}

	diskEntries := uint64(binary.LittleEndian.Uint16(fixed[10:12]))
	cdSize := uint64(binary.LittleEndian.Uint32(fixed[12:16]))
	cdOffset := uint64(binary.LittleEndian.Uint32(fixed[16:20]))

	if diskEntries == 0xFFFF || cdOffset == 0xFFFFFFFF || cdSize == 0xFFFFFFFF {
		n, off, sz, err := findEOCD64(r, eocdOff)
		if err != nil {
			return nil, err
		}
		diskEntries, cdOffset, cdSize = n, off, sz
	}

	if diskEntries > 0 {
		// Reject split/spanned archives: a multi-disk central directory
		// cannot be served from a single-file random-access reader.
		disk := binary.LittleEndian.Uint16(fixed[4:6])
		if disk != 0 {
			return nil, slideerr.Unsupportedf("ziparchive", "Open", "split ZIP archives are not supported")
		}
	}

	cd := make([]byte, cdSize)
	if _, err := r.ReadAt(cd, int64(cdOffset)); err != nil {
		return nil, slideerr.IOf("ziparchive", "Open", err)
	}

	entries, err := parseCentralDirectory(cd, diskEntries)
	if err != nil {
		return nil, err
	}
	return &Archive{r: r, size: size, Entries: entries}, nil
}

func findEOCD(r io.ReaderAt, size int64) (int64, error) {
	const maxComment = 0xFFFF
	searchSize := int64(eocdFixedSize + maxComment)
	if searchSize > size {
		searchSize = size
	}
	buf := make([]byte, searchSize)
	if _, err := r.ReadAt(buf, size-searchSize); err != nil && err != io.EOF {
		return 0, slideerr.IOf("ziparchive", "findEOCD", err)
	}
	for i := len(buf) - eocdFixedSize; i >= 0; i-- {
		if binary.LittleEndian.Uint32(buf[i:i+4]) == sigEOCD {
			return size - searchSize + int64(i), nil
		}
	}
	return 0, slideerr.BadDataf("ziparchive", "findEOCD", "end-of-central-directory record not found")
}

// findEOCD64 reads the ZIP64 locator immediately preceding eocdOff and
// then the ZIP64 end-of-central-directory record it points at.
func findEOCD64(r io.ReaderAt, eocdOff int64) (entries, cdOffset, cdSize uint64, err error) {
	locOff := eocdOff - 20
	if locOff < 0 {
		return 0, 0, 0, slideerr.BadDataf("ziparchive", "findEOCD64", "file too small for a ZIP64 locator")
	}
	loc := make([]byte, 20)
	if _, err := r.ReadAt(loc, locOff); err != nil {
		return 0, 0, 0, slideerr.IOf("ziparchive", "findEOCD64", err)
	}
	if binary.LittleEndian.Uint32(loc[0:4]) != sigEOCD64Loc {
		return 0, 0, 0, slideerr.BadDataf("ziparchive", "findEOCD64", "ZIP64 locator signature mismatch")
	}
	recOff := int64(binary.LittleEndian.Uint64(loc[8:16]))

	rec := make([]byte, 56)
	if _, err := r.ReadAt(rec, recOff); err != nil {
		return 0, 0, 0, slideerr.IOf("ziparchive", "findEOCD64", err)
	}
	if binary.LittleEndian.Uint32(rec[0:4]) != sigEOCD64 {
		return 0, 0, 0, slideerr.BadDataf("ziparchive", "findEOCD64", "ZIP64 end-of-central-directory signature mismatch")
	}
	entries = binary.LittleEndian.Uint64(rec[32:40])
	cdSize = binary.LittleEndian.Uint64(rec[40:48])
	cdOffset = binary.LittleEndian.Uint64(rec[48:56])
	return entries, cdOffset, cdSize, nil
}

func parseCentralDirectory(cd []byte, count uint64) ([]Entry, error) {
	var entries []Entry
	off := 0
	for i := uint64(0); count == 0 || i < count; i++ {
		if off+46 > len(cd) {
			if count == 0 {
				break
			}
			return nil, slideerr.BadDataf("ziparchive", "parseCentralDirectory", "truncated central directory entry")
		}
		if binary.LittleEndian.Uint32(cd[off:off+4]) != sigCentralDir {
			if count == 0 {
				break
			}
			return nil, slideerr.BadDataf("ziparchive", "parseCentralDirectory", "central directory signature mismatch")
		}
		method := binary.LittleEndian.Uint16(cd[off+10 : off+12])
		compSize := uint64(binary.LittleEndian.Uint32(cd[off+20 : off+24]))
		uncompSize := uint64(binary.LittleEndian.Uint32(cd[off+24 : off+28]))
		nameLen := int(binary.LittleEndian.Uint16(cd[off+28 : off+30]))
		extraLen := int(binary.LittleEndian.Uint16(cd[off+30 : off+32]))
		commentLen := int(binary.LittleEndian.Uint16(cd[off+32 : off+34]))
		localOff := uint64(binary.LittleEndian.Uint32(cd[off+42 : off+46]))

		nameStart := off + 46
		if nameStart+nameLen+extraLen+commentLen > len(cd) {
			return nil, slideerr.BadDataf("ziparchive", "parseCentralDirectory", "central directory entry overruns buffer")
		}
		name := string(cd[nameStart : nameStart+nameLen])
		extra := cd[nameStart+nameLen : nameStart+nameLen+extraLen]

		if compSize == 0xFFFFFFFF || uncompSize == 0xFFFFFFFF || localOff == 0xFFFFFFFF {
			compSize, uncompSize, localOff = parseZip64Extra(extra, compSize, uncompSize, localOff)
		}

		entries = append(entries, Entry{
			Name:             name,
			CompressedSize:   compSize,
			UncompressedSize: uncompSize,
			LocalHeaderOff:   localOff,
			Method:           method,
		})
		off = nameStart + nameLen + extraLen + commentLen
	}
	return entries, nil
}

// parseZip64Extra scans the entry's extra-field block for the ZIP64
// extended-information tag (0x0001), whose payload carries 8-byte
// replacements for any of uncompressed size, compressed size, or local
// header offset that were set to the 32-bit sentinel 0xFFFFFFFF, in that
// fixed order and only for the fields that were actually sentineled.
func parseZip64Extra(extra []byte, compSize, uncompSize, localOff uint64) (uint64, uint64, uint64) {
	for i := 0; i+4 <= len(extra); {
		tag := binary.LittleEndian.Uint16(extra[i : i+2])
		size := int(binary.LittleEndian.Uint16(extra[i+2 : i+4]))
		body := extra[i+4:]
		if i+4+size > len(extra) {
			break
		}
		if tag == 0x0001 {
			p := 0
			if uncompSize == 0xFFFFFFFF && p+8 <= size {
				uncompSize = binary.LittleEndian.Uint64(body[p : p+8])
				p += 8
			}
			if compSize == 0xFFFFFFFF && p+8 <= size {
				compSize = binary.LittleEndian.Uint64(body[p : p+8])
				p += 8
			}
			if localOff == 0xFFFFFFFF && p+8 <= size {
				localOff = binary.LittleEndian.Uint64(body[p : p+8])
				p += 8
			}
		}
		i += 4 + size
	}
	return compSize, uncompSize, localOff
}

// Read returns the decompressed bytes of entry e: it seeks to the local
// file header, skips the fixed 30-byte header plus the name and extra
// fields actually present there (which can differ in length from the
// central directory copy), then reads CompressedSize bytes and inflates
// them if Method is deflate.
func (a *Archive) Read(e Entry) ([]byte, error) {
	hdr := make([]byte, 30)
	if _, err := a.r.ReadAt(hdr, int64(e.LocalHeaderOff)); err != nil {
		return nil, slideerr.IOf("ziparchive", "Read", err)
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != sigLocalFile {
		return nil, slideerr.BadDataf("ziparchive", "Read", "local file header signature mismatch for %q", e.Name)
	}
	nameLen := int(binary.LittleEndian.Uint16(hdr[26:28]))
	extraLen := int(binary.LittleEndian.Uint16(hdr[28:30]))

	dataOff := int64(e.LocalHeaderOff) + 30 + int64(nameLen) + int64(extraLen)
	compressed := make([]byte, e.CompressedSize)
	if _, err := a.r.ReadAt(compressed, dataOff); err != nil {
		return nil, slideerr.IOf("ziparchive", "Read", err)
	}

	switch e.Method {
	case 0:
		return compressed, nil
	case 8:
		fr := flate.NewReader(bytes.NewReader(compressed))
		defer fr.Close()
		out := make([]byte, 0, e.UncompressedSize)
		buf := make([]byte, 32*1024)
		for {
			n, err := fr.Read(buf)
			out = append(out, buf[:n]...)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, slideerr.BadDataf("ziparchive", "Read", "inflate %q: %v", e.Name, err)
			}
		}
		return out, nil
	default:
		return nil, slideerr.Unsupportedf("ziparchive", "Read", "compression method %d for %q", e.Method, e.Name)
	}
}

// Find returns the entry with the given name, or false if absent.
func (a *Archive) Find(name string) (Entry, bool) {
	for _, e := range a.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}
