// Package volume loads scalar volumes and maps between voxel and world space.
package volume

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/pgzip"

	"fsqc/internal/models"
)

const niftiHeaderSize = 348

// NIfTI-1 datatype codes
const (
	dtUint8   = 2
	dtInt16   = 4
	dtInt32   = 8
	dtFloat32 = 16
	dtFloat64 = 64
	dtInt8    = 256
	dtUint16  = 512
	dtUint32  = 768
)

// header mirrors the 348-byte NIfTI-1 header
type header struct {
	SizeofHdr     int32
	DataType      [10]byte
	DBName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XYZTUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	Toffset       float32
	Glmax         int32
	Glmin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// LoadNifti reads the first 3D volume of a single-file NIfTI-1 image
// (.nii or .nii.gz).
func LoadNifti(path string) (*models.Volume, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	vol, err := ReadNifti(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read NIfTI %s: %w", path, err)
	}
	return vol, nil
}

// ReadNifti decodes a single-file NIfTI-1 image, decompressing it first when
// it starts with the gzip magic.
func ReadNifti(r io.Reader) (*models.Volume, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(raw) >= 2 && raw[0] == 0x1f && raw[1] == 0x8b {
		zr, err := pgzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer zr.Close()
		if raw, err = io.ReadAll(zr); err != nil {
			return nil, fmt.Errorf("decompressing: %w", err)
		}
	}

	if len(raw) < niftiHeaderSize {
		return nil, fmt.Errorf("file too short for a NIfTI header: %d bytes", len(raw))
	}

	var order binary.ByteOrder = binary.LittleEndian
	if int32(binary.LittleEndian.Uint32(raw)) != niftiHeaderSize {
		order = binary.BigEndian
		if int32(binary.BigEndian.Uint32(raw)) != niftiHeaderSize {
			return nil, fmt.Errorf("not a NIfTI-1 file")
		}
	}

	var hdr header
	if err := binary.Read(bytes.NewReader(raw[:niftiHeaderSize]), order, &hdr); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	switch string(hdr.Magic[:3]) {
	case "n+1":
	case "ni1":
		return nil, fmt.Errorf("two-file NIfTI (.hdr/.img) is not supported, convert it to .nii")
	default:
		return nil, fmt.Errorf("unsupported NIfTI magic %q", hdr.Magic[:3])
	}

	ndim := int(hdr.Dim[0])
	if ndim < 3 {
		return nil, fmt.Errorf("image has %d dimensions, need at least 3", ndim)
	}
	vol := &models.Volume{}
	for i := 0; i < 3; i++ {
		if hdr.Dim[i+1] < 1 {
			return nil, fmt.Errorf("invalid dimension %d: %d", i, hdr.Dim[i+1])
		}
		vol.Dims[i] = int(hdr.Dim[i+1])
	}

	offset := int(hdr.VoxOffset)
	if offset < niftiHeaderSize {
		offset = niftiHeaderSize
	}
	if offset > len(raw) {
		return nil, fmt.Errorf("vox_offset %d beyond %d-byte file", offset, len(raw))
	}
	n := vol.Dims[0] * vol.Dims[1] * vol.Dims[2]
	data, err := decodeVoxels(raw[offset:], order, hdr.Datatype, n)
	if err != nil {
		return nil, err
	}

	if hdr.SclSlope != 0 && !(hdr.SclSlope == 1 && hdr.SclInter == 0) {
		slope, inter := float64(hdr.SclSlope), float64(hdr.SclInter)
		for i := range data {
			data[i] = data[i]*slope + inter
		}
	}
	vol.Data = data
	vol.Affine = headerAffine(&hdr)

	return vol, nil
}

func decodeVoxels(buf []byte, order binary.ByteOrder, datatype int16, n int) ([]float64, error) {
	var size int
	switch datatype {
	case dtUint8, dtInt8:
		size = 1
	case dtInt16, dtUint16:
		size = 2
	case dtInt32, dtUint32, dtFloat32:
		size = 4
	case dtFloat64:
		size = 8
	default:
		return nil, fmt.Errorf("unsupported datatype %d", datatype)
	}
	if len(buf) < n*size {
		return nil, fmt.Errorf("voxel data truncated: need %d bytes, have %d", n*size, len(buf))
	}

	out := make([]float64, n)
	for i := range out {
		b := buf[i*size : (i+1)*size]
		switch datatype {
		case dtUint8:
			out[i] = float64(b[0])
		case dtInt8:
			out[i] = float64(int8(b[0]))
		case dtInt16:
			out[i] = float64(int16(order.Uint16(b)))
		case dtUint16:
			out[i] = float64(order.Uint16(b))
		case dtInt32:
			out[i] = float64(int32(order.Uint32(b)))
		case dtUint32:
			out[i] = float64(order.Uint32(b))
		case dtFloat32:
			out[i] = float64(math.Float32frombits(order.Uint32(b)))
		case dtFloat64:
			out[i] = math.Float64frombits(order.Uint64(b))
		}
	}
	return out, nil
}

// headerAffine picks the sform when present, then the qform, then falls back
// to scaling by the voxel sizes.
func headerAffine(h *header) [16]float64 {
	switch {
	case h.SformCode > 0:
		var a [16]float64
		for i, row := range [3][4]float32{h.SrowX, h.SrowY, h.SrowZ} {
			for j, v := range row {
				a[i*4+j] = float64(v)
			}
		}
		a[15] = 1
		return a
	case h.QformCode > 0:
		return qformAffine(h)
	}

	a := models.IdentityAffine()
	for i := 0; i < 3; i++ {
		if d := float64(h.Pixdim[i+1]); d > 0 {
			a[i*5] = d
		}
	}
	return a
}

func qformAffine(h *header) [16]float64 {
	b, c, d := float64(h.QuaternB), float64(h.QuaternC), float64(h.QuaternD)
	a := math.Sqrt(math.Max(0, 1-(b*b+c*c+d*d)))

	qfac := 1.0
	if h.Pixdim[0] < 0 {
		qfac = -1
	}
	dx, dy, dz := float64(h.Pixdim[1]), float64(h.Pixdim[2]), qfac*float64(h.Pixdim[3])

	return [16]float64{
		(a*a + b*b - c*c - d*d) * dx, 2 * (b*c - a*d) * dy, 2 * (b*d + a*c) * dz, float64(h.QoffsetX),
		2 * (b*c + a*d) * dx, (a*a + c*c - b*b - d*d) * dy, 2 * (c*d - a*b) * dz, float64(h.QoffsetY),
		2 * (b*d - a*c) * dx, 2 * (c*d + a*b) * dy, (a*a + d*d - b*b - c*c) * dz, float64(h.QoffsetZ),
		0, 0, 0, 1,
	}
}
