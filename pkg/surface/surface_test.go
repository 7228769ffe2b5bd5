package surface

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// freeSurferBytes encodes a triangle surface the way mris_* tools write it
func freeSurferBytes(vertices []float32, faces []int32) []byte {
	var buf bytes.Buffer
	buf.Write(triangleMagic[:])
	buf.WriteString("created by fsqc on Sun Oct 18 2026\n\n")
	binary.Write(&buf, binary.BigEndian, int32(len(vertices)/3))
	binary.Write(&buf, binary.BigEndian, int32(len(faces)/3))
	binary.Write(&buf, binary.BigEndian, vertices)
	binary.Write(&buf, binary.BigEndian, faces)
	return buf.Bytes()
}

func tetraBytes() []byte {
	return freeSurferBytes(
		[]float32{0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 1},
		[]int32{0, 2, 1, 0, 1, 3, 1, 2, 3, 2, 0, 3},
	)
}

func TestReadFreeSurfer(t *testing.T) {
	mesh, err := ReadFreeSurfer(bytes.NewReader(tetraBytes()))
	require.NoError(t, err)

	require.Len(t, mesh.Vertices, 4)
	require.Len(t, mesh.Triangles, 4)
	assert.Equal(t, r3.Vec{Y: 1}, mesh.Vertices[2])
	assert.Equal(t, [3]int{1, 2, 3}, mesh.Triangles[2])
	assert.NoError(t, mesh.Validate())
}

func TestReadFreeSurferErrors(t *testing.T) {
	_, err := ReadFreeSurfer(bytes.NewReader([]byte{0xff, 0xff, 0xff, '\n', '\n'}))
	assert.Error(t, err)

	data := tetraBytes()
	_, err = ReadFreeSurfer(bytes.NewReader(data[:len(data)-6]))
	assert.Error(t, err)

	_, err = ReadFreeSurfer(bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestLoadDispatchesByExtension(t *testing.T) {
	dir := t.TempDir()

	fsPath := filepath.Join(dir, "lh.white")
	require.NoError(t, os.WriteFile(fsPath, tetraBytes(), 0644))
	mesh, err := Load(fsPath)
	require.NoError(t, err)
	assert.Len(t, mesh.Triangles, 4)

	stlPath := filepath.Join(dir, "tetra.STL")
	src := `solid tri
facet normal 0 0 1
outer loop
vertex 0 0 0
vertex 1 0 0
vertex 0 1 0
endloop
endfacet
endsolid tri
`
	require.NoError(t, os.WriteFile(stlPath, []byte(src), 0644))
	mesh, err = Load(stlPath)
	require.NoError(t, err)
	assert.Len(t, mesh.Vertices, 3)
	assert.Len(t, mesh.Triangles, 1)
}

func TestLoadRejectsBadIndices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rh.pial")
	data := freeSurferBytes([]float32{0, 0, 0, 1, 0, 0, 0, 1, 0}, []int32{0, 1, 7})
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "references vertex 7")
}

// volumeInfoFooter is the geometry block mris_* tools append after the faces
func volumeInfoFooter(tags []int32, cras string) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, tags)
	buf.WriteString("valid = 1  # volume info valid\n")
	buf.WriteString("filename = ../mri/filled-pretess255.mgz\n")
	buf.WriteString("volume = 256 256 256\n")
	buf.WriteString("voxelsize = 1.000000000000000e+00 1.000000000000000e+00 1.000000000000000e+00\n")
	buf.WriteString("xras   = -1.000000000000000e+00 0.000000000000000e+00 0.000000000000000e+00\n")
	buf.WriteString("yras   = 0.000000000000000e+00 0.000000000000000e+00 -1.000000000000000e+00\n")
	buf.WriteString("zras   = 0.000000000000000e+00 1.000000000000000e+00 0.000000000000000e+00\n")
	buf.WriteString("cras   = " + cras + "\n")
	return buf.Bytes()
}

func TestReadFreeSurferVolumeInfo(t *testing.T) {
	data := append(tetraBytes(), volumeInfoFooter([]int32{20}, "5.0 -18.0 12.0")...)

	mesh, info, err := ReadFreeSurferInfo(bytes.NewReader(data))
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.True(t, info.Valid)
	assert.Equal(t, "../mri/filled-pretess255.mgz", info.Filename)
	assert.Equal(t, [3]int{256, 256, 256}, info.Dims)
	assert.Equal(t, r3.Vec{X: 1, Y: 1, Z: 1}, info.VoxelSize)
	assert.Equal(t, r3.Vec{X: -1}, info.XRAS)
	assert.Equal(t, r3.Vec{Z: -1}, info.YRAS)
	assert.Equal(t, r3.Vec{Y: 1}, info.ZRAS)
	assert.Equal(t, r3.Vec{X: 5, Y: -18, Z: 12}, info.CRAS)
	// Raw vertices stay in tkregister space
	assert.Equal(t, r3.Vec{}, mesh.Vertices[0])

	// ReadFreeSurfer moves them to scanner space
	mesh, err = ReadFreeSurfer(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, r3.Vec{X: 5, Y: -18, Z: 12}, mesh.Vertices[0])
	assert.Equal(t, r3.Vec{X: 6, Y: -18, Z: 12}, mesh.Vertices[1])
}

func TestReadFreeSurferVolumeInfoRealRASTag(t *testing.T) {
	data := append(tetraBytes(), volumeInfoFooter([]int32{2, 0, 20}, "1 2 3")...)

	mesh, err := ReadFreeSurfer(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, r3.Vec{X: 1, Y: 3, Z: 3}, mesh.Vertices[2])
}

func TestReadFreeSurferWithoutVolumeInfo(t *testing.T) {
	mesh, info, err := ReadFreeSurferInfo(bytes.NewReader(tetraBytes()))
	require.NoError(t, err)
	assert.Nil(t, info)
	assert.Len(t, mesh.Vertices, 4)

	// Unknown tags are skipped
	data := append(tetraBytes(), 0, 0, 0, 3, 0, 0, 0, 0)
	_, info, err = ReadFreeSurferInfo(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Nil(t, info)

	bad := append(tetraBytes(), volumeInfoFooter([]int32{20}, "1 2")...)
	_, _, err = ReadFreeSurferInfo(bytes.NewReader(bad))
	assert.ErrorContains(t, err, "cras")
}

func TestReadFreeSurferHugeCountsFailWithoutAllocating(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(triangleMagic[:])
	buf.WriteString("x\n\n")
	binary.Write(&buf, binary.BigEndian, [2]int32{50000000, 100000000})
	binary.Write(&buf, binary.BigEndian, []float32{1, 2, 3})

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err := ReadFreeSurfer(bytes.NewReader(buf.Bytes()))
	runtime.ReadMemStats(&after)

	assert.ErrorContains(t, err, "reading 50000000 vertices")
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(16<<20))
}
