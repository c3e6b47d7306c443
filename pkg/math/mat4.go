package math

import "github.com/chewxy/math32"

// Mat4 is a 4x4 matrix in column-major order.
// Layout: [m0 m4 m8  m12]
//
//	[m1 m5 m9  m13]
//	[m2 m6 m10 m14]
//	[m3 m7 m11 m15]
type Mat4 [16]float32

// Identity returns an identity matrix.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translate returns a translation matrix.
func Translate(x, y, z float32) Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		x, y, z, 1,
	}
}

// Scale returns a scale matrix.
func Scale(x, y, z float32) Mat4 {
	return Mat4{
		x, 0, 0, 0,
		0, y, 0, 0,
		0, 0, z, 0,
		0, 0, 0, 1,
	}
}

// RotateX returns a rotation matrix around the X axis.
// angle is in radians.
func RotateX(angle float32) Mat4 {
	s, c := math32.Sincos(angle)
	return Mat4{
		1, 0, 0, 0,
		0, c, s, 0,
		0, -s, c, 0,
		0, 0, 0, 1,
	}
}

// RotateY returns a rotation matrix around the Y axis.
func RotateY(angle float32) Mat4 {
	s, c := math32.Sincos(angle)
	return Mat4{
		c, 0, -s, 0,
		0, 1, 0, 0,
		s, 0, c, 0,
		0, 0, 0, 1,
	}
}

// RotateZ returns a rotation matrix around the Z axis.
func RotateZ(angle float32) Mat4 {
	s, c := math32.Sincos(angle)
	return Mat4{
		c, s, 0, 0,
		-s, c, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Mul multiplies this matrix by another (m * other).
func (m Mat4) Mul(other Mat4) Mat4 {
	var result Mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			result[col*4+row] =
				m[0*4+row]*other[col*4+0] +
					m[1*4+row]*other[col*4+1] +
					m[2*4+row]*other[col*4+2] +
					m[3*4+row]*other[col*4+3]
		}
	}
	return result
}

// Translation returns the translation column.
func (m Mat4) Translation() Vec3 {
	return Vec3{m[12], m[13], m[14]}
}

// Rotation extracts the rotation of an affine matrix as a quaternion.
// Any scale in the upper 3x3 is divided out first.
func (m Mat4) Rotation() Quat {
	sx := Vec3{m[0], m[1], m[2]}.Length()
	sy := Vec3{m[4], m[5], m[6]}.Length()
	sz := Vec3{m[8], m[9], m[10]}.Length()
	if sx == 0 || sy == 0 || sz == 0 {
		return QuatIdentity()
	}

	// Row/column naming follows the math convention r[row][col].
	r00, r10, r20 := m[0]/sx, m[1]/sx, m[2]/sx
	r01, r11, r21 := m[4]/sy, m[5]/sy, m[6]/sy
	r02, r12, r22 := m[8]/sz, m[9]/sz, m[10]/sz

	var q Quat
	trace := r00 + r11 + r22
	switch {
	case trace > 0:
		s := math32.Sqrt(trace+1) * 2
		q = Quat{W: s / 4, X: (r21 - r12) / s, Y: (r02 - r20) / s, Z: (r10 - r01) / s}
	case r00 > r11 && r00 > r22:
		s := math32.Sqrt(1+r00-r11-r22) * 2
		q = Quat{W: (r21 - r12) / s, X: s / 4, Y: (r01 + r10) / s, Z: (r02 + r20) / s}
	case r11 > r22:
		s := math32.Sqrt(1+r11-r00-r22) * 2
		q = Quat{W: (r02 - r20) / s, X: (r01 + r10) / s, Y: s / 4, Z: (r12 + r21) / s}
	default:
		s := math32.Sqrt(1+r22-r00-r11) * 2
		q = Quat{W: (r10 - r01) / s, X: (r02 + r20) / s, Y: (r12 + r21) / s, Z: s / 4}
	}
	return q.Normalize()
}
