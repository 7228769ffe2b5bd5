// Package stl reads STL surface files and welds their triangle soup into an
// indexed mesh.
package stl

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"fsqc/internal/models"
)

const headerSize = 80

// Triangle is one STL facet
type Triangle struct {
	Normal   r3.Vec
	Vertices [3]r3.Vec
}

// ReadFile reads a binary or ASCII STL file into an indexed mesh
func ReadFile(path string) (*models.TriangleMesh, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	triangles, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read STL %s: %w", path, err)
	}
	return Weld(triangles), nil
}

// Read decodes STL facets, detecting the ASCII variant by its "solid" header
// and a "facet" keyword.
func Read(r io.Reader) ([]Triangle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	if isASCII(data) {
		return readASCII(data)
	}
	return readBinary(data)
}

func isASCII(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte("solid")) {
		return false
	}
	// Some binary exporters also start their header with "solid"
	if len(data) >= headerSize+4 {
		count := binary.LittleEndian.Uint32(data[headerSize : headerSize+4])
		if uint64(len(data)) == headerSize+4+uint64(count)*50 {
			return false
		}
	}
	return bytes.Contains(data, []byte("facet"))
}

func readBinary(data []byte) ([]Triangle, error) {
	if len(data) < headerSize+4 {
		return nil, fmt.Errorf("binary STL too short: %d bytes", len(data))
	}

	count := binary.LittleEndian.Uint32(data[headerSize : headerSize+4])
	body := data[headerSize+4:]
	if uint64(len(body)) < uint64(count)*50 {
		return nil, fmt.Errorf("binary STL declares %d triangles but holds %d bytes", count, len(body))
	}

	triangles := make([]Triangle, count)
	for i := range triangles {
		rec := body[i*50 : i*50+50]
		var vals [12]float64
		for j := range vals {
			bits := binary.LittleEndian.Uint32(rec[j*4 : j*4+4])
			vals[j] = float64(math.Float32frombits(bits))
		}
		triangles[i].Normal = r3.Vec{X: vals[0], Y: vals[1], Z: vals[2]}
		for k := 0; k < 3; k++ {
			triangles[i].Vertices[k] = r3.Vec{X: vals[3+k*3], Y: vals[4+k*3], Z: vals[5+k*3]}
		}
	}

	return triangles, nil
}

func readASCII(data []byte) ([]Triangle, error) {
	var triangles []Triangle
	var current Triangle
	corner := 0

	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "facet":
			current = Triangle{}
			corner = 0
			if len(fields) == 5 && fields[1] == "normal" {
				n, err := parseVec(fields[2:])
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				current.Normal = n
			}
		case "vertex":
			if corner >= 3 {
				return nil, fmt.Errorf("line %d: facet has more than 3 vertices", line)
			}
			if len(fields) != 4 {
				return nil, fmt.Errorf("line %d: malformed vertex", line)
			}
			v, err := parseVec(fields[1:])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			current.Vertices[corner] = v
			corner++
		case "endfacet":
			if corner != 3 {
				return nil, fmt.Errorf("line %d: facet has %d vertices", line, corner)
			}
			triangles = append(triangles, current)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return triangles, nil
}

func parseVec(fields []string) (r3.Vec, error) {
	var vals [3]float64
	for i := range vals {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return r3.Vec{}, fmt.Errorf("invalid coordinate %q", fields[i])
		}
		vals[i] = v
	}
	return r3.Vec{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

// Weld merges facet corners with identical coordinates into shared vertices.
// Facets that collapse onto fewer than three distinct vertices are dropped.
func Weld(triangles []Triangle) *models.TriangleMesh {
	mesh := &models.TriangleMesh{}
	index := make(map[r3.Vec]int, len(triangles))

	for _, t := range triangles {
		v := t.Vertices
		if v[0] == v[1] || v[1] == v[2] || v[0] == v[2] {
			continue
		}

		var tri [3]int
		for k, p := range v {
			idx, ok := index[p]
			if !ok {
				idx = len(mesh.Vertices)
				index[p] = idx
				mesh.Vertices = append(mesh.Vertices, p)
			}
			tri[k] = idx
		}
		mesh.Triangles = append(mesh.Triangles, tri)
	}

	return mesh
}
