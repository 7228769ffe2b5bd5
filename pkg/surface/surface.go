// Package surface loads triangle surfaces produced by the segmentation
// pipeline.
package surface

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"fsqc/internal/models"
	"fsqc/pkg/stl"
)

// triangleMagic opens a FreeSurfer triangle surface file
var triangleMagic = [3]byte{0xff, 0xff, 0xfe}

// Load reads a surface, choosing the reader from the file extension: ".stl"
// files are read as STL, everything else (lh.white, rh.pial, ...) as a
// FreeSurfer triangle surface.
func Load(path string) (*models.TriangleMesh, error) {
	var (
		mesh *models.TriangleMesh
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".stl") {
		mesh, err = stl.ReadFile(path)
	} else {
		mesh, err = ReadFreeSurferFile(path)
	}
	if err != nil {
		return nil, err
	}

	if err := mesh.Validate(); err != nil {
		return nil, fmt.Errorf("invalid surface %s: %w", path, err)
	}
	return mesh, nil
}

// ReadFreeSurferFile reads a FreeSurfer triangle surface file
func ReadFreeSurferFile(path string) (*models.TriangleMesh, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	mesh, err := ReadFreeSurfer(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read surface %s: %w", path, err)
	}
	return mesh, nil
}

// ReadFreeSurfer decodes a FreeSurfer triangle surface and returns it in
// scanner RAS coordinates, the space of the matching NIfTI sform. Vertices are
// stored in tkregister space; when the file carries a valid volume-info
// footer its c_ras is added to every vertex.
func ReadFreeSurfer(r io.Reader) (*models.TriangleMesh, error) {
	mesh, info, err := ReadFreeSurferInfo(r)
	if err != nil {
		return nil, err
	}
	if info != nil && info.Valid {
		for i := range mesh.Vertices {
			mesh.Vertices[i] = r3.Add(mesh.Vertices[i], info.CRAS)
		}
	}
	return mesh, nil
}

// VolumeInfo is the geometry of the volume a surface was created from.
type VolumeInfo struct {
	Valid     bool
	Filename  string
	Dims      [3]int
	VoxelSize r3.Vec

	// XRAS, YRAS and ZRAS are the direction cosines of the voxel axes
	XRAS, YRAS, ZRAS r3.Vec

	// CRAS is the scanner RAS of the volume centre, the offset between
	// tkregister and scanner coordinates
	CRAS r3.Vec
}

// ReadFreeSurferInfo decodes a big-endian FreeSurfer triangle surface: magic
// bytes, a "created by" line and a blank line, vertex and face counts,
// float32 coordinates and int32 face indices, then an optional volume-info
// footer. Vertices are returned unchanged, in tkregister space. The returned
// VolumeInfo is nil when the file has no footer.
func ReadFreeSurferInfo(r io.Reader) (*models.TriangleMesh, *VolumeInfo, error) {
	br := bufio.NewReader(r)

	var magic [3]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, nil, fmt.Errorf("reading magic: %w", err)
	}
	if magic != triangleMagic {
		return nil, nil, fmt.Errorf("not a triangle surface (magic %x)", magic)
	}

	for i := 0; i < 2; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			return nil, nil, fmt.Errorf("reading header comment: %w", err)
		}
	}

	var counts [2]int32
	if err := binary.Read(br, binary.BigEndian, &counts); err != nil {
		return nil, nil, fmt.Errorf("reading counts: %w", err)
	}
	nVertices, nFaces := int(counts[0]), int(counts[1])
	if nVertices < 0 || nFaces < 0 {
		return nil, nil, fmt.Errorf("negative counts: %d vertices, %d faces", nVertices, nFaces)
	}

	coords, err := readChunked[float32](br, nVertices*3)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %d vertices: %w", nVertices, err)
	}
	faces, err := readChunked[int32](br, nFaces*3)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %d faces: %w", nFaces, err)
	}

	mesh := &models.TriangleMesh{
		Vertices:  make([]r3.Vec, nVertices),
		Triangles: make([][3]int, nFaces),
	}
	for i := range mesh.Vertices {
		mesh.Vertices[i] = r3.Vec{
			X: float64(coords[i*3]),
			Y: float64(coords[i*3+1]),
			Z: float64(coords[i*3+2]),
		}
	}
	for i := range mesh.Triangles {
		mesh.Triangles[i] = [3]int{int(faces[i*3]), int(faces[i*3+1]), int(faces[i*3+2])}
	}

	info, err := readVolumeInfo(br)
	if err != nil {
		return nil, nil, fmt.Errorf("reading volume info: %w", err)
	}
	return mesh, info, nil
}

// readChunk bounds each read, so memory grows with the data actually present
// rather than with the counts a header claims.
const readChunk = 1 << 16

func readChunked[T float32 | int32](r io.Reader, n int) ([]T, error) {
	out := make([]T, 0, min(n, readChunk))
	buf := make([]T, min(n, readChunk))
	for len(out) < n {
		k := min(n-len(out), readChunk)
		if err := binary.Read(r, binary.BigEndian, buf[:k]); err != nil {
			return nil, err
		}
		out = append(out, buf[:k]...)
	}
	return out, nil
}

const (
	tagOldUseRealRAS = 2
	tagOldSurfGeom   = 20
)

// readVolumeInfo parses the footer written by mris_* tools after the faces:
// either the tag 20 alone or the sequence 2, 0, 20, followed by "key = value"
// lines. Files without a footer or with an unknown tag yield nil.
func readVolumeInfo(br *bufio.Reader) (*VolumeInfo, error) {
	var tag int32
	if err := binary.Read(br, binary.BigEndian, &tag); err != nil {
		return nil, nil
	}
	if tag != tagOldSurfGeom {
		var rest [2]int32
		if tag != tagOldUseRealRAS || binary.Read(br, binary.BigEndian, &rest) != nil ||
			rest != [2]int32{0, tagOldSurfGeom} {
			return nil, nil
		}
	}

	info := &VolumeInfo{}
	for i := 0; i < 8; i++ {
		line, err := br.ReadString('\n')
		if strings.TrimSpace(line) == "" {
			if err != nil {
				break
			}
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("malformed line %q", strings.TrimSpace(line))
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)

		switch key {
		case "valid":
			// "1  # volume info valid"
			fields := strings.Fields(value)
			info.Valid = len(fields) > 0 && fields[0] == "1"
		case "filename":
			info.Filename = value
		case "volume":
			v, err := parseFloats(value, 3)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			info.Dims = [3]int{int(v[0]), int(v[1]), int(v[2])}
		case "voxelsize", "xras", "yras", "zras", "cras":
			v, err := parseFloats(value, 3)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			vec := r3.Vec{X: v[0], Y: v[1], Z: v[2]}
			switch key {
			case "voxelsize":
				info.VoxelSize = vec
			case "xras":
				info.XRAS = vec
			case "yras":
				info.YRAS = vec
			case "zras":
				info.ZRAS = vec
			default:
				info.CRAS = vec
			}
		default:
			return nil, fmt.Errorf("unknown key %q", key)
		}
		if err != nil {
			break
		}
	}
	return info, nil
}

func parseFloats(s string, n int) ([]float64, error) {
	fields := strings.Fields(s)
	if len(fields) < n {
		return nil, fmt.Errorf("want %d numbers, got %q", n, s)
	}
	out := make([]float64, n)
	for i := range out {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
