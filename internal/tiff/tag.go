// Package tiff parses TIFF (and BigTIFF) Image File Directories for the
// tiled-TIFF slide backend.
//
// Grounded on two pack sources combined: the field-by-field tag switch of
// Echoflaresat-tiff's impl/header.go (factored tag/compression/
// photometric/planarconfig sub-packages, which this package follows), and
// the offset-resolution and BigTIFF handling of internal/cog/ifd.go
// (entries whose value doesn't fit inline carry an external offset that
// must be re-read; BigTIFF entries are 20 bytes with 8-byte counts
// instead of 12 bytes with 4-byte counts).
package tiff

import "fmt"

// Tag identifies a TIFF field.
type Tag uint16

const (
	TagImageWidth         Tag = 256
	TagImageLength        Tag = 257
	TagBitsPerSample      Tag = 258
	TagCompression        Tag = 259
	TagPhotometric        Tag = 262
	TagImageDescription   Tag = 270
	TagStripOffsets       Tag = 273
	TagSamplesPerPixel    Tag = 277
	TagRowsPerStrip       Tag = 278
	TagStripByteCounts    Tag = 279
	TagPlanarConfig       Tag = 284
	TagPredictor          Tag = 317
	TagTileWidth          Tag = 322
	TagTileLength         Tag = 323
	TagTileOffsets        Tag = 324
	TagTileByteCounts     Tag = 325
	TagNewSubfileType     Tag = 254
	TagSampleFormat       Tag = 339
	TagJPEGTables         Tag = 347
	TagGDALNoData         Tag = 42113
)

func (t Tag) String() string {
	switch t {
	case TagImageWidth:
		return "ImageWidth"
	case TagImageLength:
		return "ImageLength"
	case TagBitsPerSample:
		return "BitsPerSample"
	case TagCompression:
		return "Compression"
	case TagPhotometric:
		return "PhotometricInterpretation"
	case TagImageDescription:
		return "ImageDescription"
	case TagStripOffsets:
		return "StripOffsets"
	case TagSamplesPerPixel:
		return "SamplesPerPixel"
	case TagRowsPerStrip:
		return "RowsPerStrip"
	case TagStripByteCounts:
		return "StripByteCounts"
	case TagPlanarConfig:
		return "PlanarConfiguration"
	case TagPredictor:
		return "Predictor"
	case TagTileWidth:
		return "TileWidth"
	case TagTileLength:
		return "TileLength"
	case TagTileOffsets:
		return "TileOffsets"
	case TagTileByteCounts:
		return "TileByteCounts"
	case TagNewSubfileType:
		return "NewSubfileType"
	case TagSampleFormat:
		return "SampleFormat"
	case TagJPEGTables:
		return "JPEGTables"
	case TagGDALNoData:
		return "GDAL_NODATA"
	default:
		return fmt.Sprintf("Tag(%d)", uint16(t))
	}
}

// Compression is the TIFF tag-259 compression scheme.
type Compression uint16

const (
	CompressionNone       Compression = 1
	CompressionCCITT      Compression = 2
	CompressionG3         Compression = 3
	CompressionG4         Compression = 4
	CompressionLZW        Compression = 5
	CompressionJPEGOld    Compression = 6
	CompressionJPEG       Compression = 7
	CompressionDeflate    Compression = 8
	CompressionPackBits   Compression = 32773
	CompressionDeflateOld Compression = 32946
	// CompressionJP2YCbCr and CompressionJP2RGB are the vendor codes Aperio
	// uses for JPEG-2000-tiled directories.
	CompressionJP2YCbCr Compression = 33003
	CompressionJP2RGB   Compression = 33005
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionCCITT:
		return "CCITT"
	case CompressionG3:
		return "G3Fax"
	case CompressionG4:
		return "G4Fax"
	case CompressionLZW:
		return "LZW"
	case CompressionJPEGOld:
		return "JPEGOld"
	case CompressionJPEG:
		return "JPEG"
	case CompressionDeflate, CompressionDeflateOld:
		return "Deflate"
	case CompressionPackBits:
		return "PackBits"
	case CompressionJP2YCbCr:
		return "JPEG2000-YCbCr"
	case CompressionJP2RGB:
		return "JPEG2000-RGB"
	default:
		return fmt.Sprintf("Compression(%d)", uint16(c))
	}
}

// Photometric is the TIFF tag-262 PhotometricInterpretation value.
type Photometric uint16

const (
	PhotometricWhiteIsZero Photometric = 0
	PhotometricBlackIsZero Photometric = 1
	PhotometricRGB         Photometric = 2
	PhotometricPaletted    Photometric = 3
	PhotometricYCbCr       Photometric = 6
)

func (p Photometric) String() string {
	switch p {
	case PhotometricWhiteIsZero:
		return "WhiteIsZero"
	case PhotometricBlackIsZero:
		return "BlackIsZero"
	case PhotometricRGB:
		return "RGB"
	case PhotometricPaletted:
		return "Paletted"
	case PhotometricYCbCr:
		return "YCbCr"
	default:
		return fmt.Sprintf("Photometric(%d)", uint16(p))
	}
}

// PlanarConfig is the TIFF tag-284 PlanarConfiguration value.
type PlanarConfig uint16

const (
	PlanarContig   PlanarConfig = 1
	PlanarSeparate PlanarConfig = 2
)
