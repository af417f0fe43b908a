package kns

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
)

func init() {
	// Need to register types that will be used to fulfill interfaces.
	gob.Register(Point3d{})
}

// Point3d is an ordered list of three 32-bit signed integers in (x, y, z)
// order that describes a voxel coordinate or extent.
type Point3d [3]int32

// Bytes returns a byte representation of the Point3d in little endian format.
func (p Point3d) Bytes() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, p[0])
	binary.Write(buf, binary.LittleEndian, p[1])
	binary.Write(buf, binary.LittleEndian, p[2])
	return buf.Bytes()
}

// PointFromBytes returns a Point3d from bytes.  The passed point is used just
// to choose the appropriate byte decoding scheme.
func (p Point3d) PointFromBytes(b []byte) (readPt Point3d, err error) {
	buf := bytes.NewReader(b)
	if err = binary.Read(buf, binary.LittleEndian, &(readPt[0])); err != nil {
		return
	}
	if err = binary.Read(buf, binary.LittleEndian, &(readPt[1])); err != nil {
		return
	}
	if err = binary.Read(buf, binary.LittleEndian, &(readPt[2])); err != nil {
		return
	}
	return
}

// SetMinimum sets the point to the minimum elements of current and passed points.
func (p *Point3d) SetMinimum(p2 Point3d) {
	if p[0] > p2[0] {
		p[0] = p2[0]
	}
	if p[1] > p2[1] {
		p[1] = p2[1]
	}
	if p[2] > p2[2] {
		p[2] = p2[2]
	}
}

// SetMaximum sets the point to the maximum elements of current and passed points.
func (p *Point3d) SetMaximum(p2 Point3d) {
	if p[0] < p2[0] {
		p[0] = p2[0]
	}
	if p[1] < p2[1] {
		p[1] = p2[1]
	}
	if p[2] < p2[2] {
		p[2] = p2[2]
	}
}

// Add returns the addition of two points.
func (p Point3d) Add(p2 Point3d) Point3d {
	return Point3d{p[0] + p2[0], p[1] + p2[1], p[2] + p2[2]}
}

// Sub returns the subtraction of the passed point from the receiver.
func (p Point3d) Sub(p2 Point3d) Point3d {
	return Point3d{p[0] - p2[0], p[1] - p2[1], p[2] - p2[2]}
}

// Max returns a Point3d where each element is the maximum of the two points' elements.
func (p Point3d) Max(p2 Point3d) Point3d {
	result := p
	result.SetMaximum(p2)
	return result
}

// Min returns a Point3d where each element is the minimum of the two points' elements.
func (p Point3d) Min(p2 Point3d) Point3d {
	result := p
	result.SetMinimum(p2)
	return result
}

// Prod returns the product of the point elements.
func (p Point3d) Prod() int64 {
	return int64(p[0]) * int64(p[1]) * int64(p[2])
}

func (p Point3d) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p[0], p[1], p[2])
}
