// Package xrmath holds the 4x4 matrix and quaternion helpers used by the pose pipeline.
// Matrices are column-major, translation lives in elements 12..14.
package xrmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type (
	Mat4 = mgl32.Mat4
	Quat = mgl32.Quat
	Vec3 = mgl32.Vec3
	Vec4 = mgl32.Vec4
)

func Identity() Mat4 {
	return mgl32.Ident4()
}

// Multiply returns a·b.
func Multiply(a, b Mat4) Mat4 {
	return a.Mul4(b)
}

// MultiplyInto writes a·b to dst and touches nothing else.
func MultiplyInto(dst *Mat4, a, b Mat4) {
	*dst = a.Mul4(b)
}

// Invert returns the inverse of m, or the zero matrix when m is singular.
func Invert(m Mat4) Mat4 {
	return m.Inv()
}

// Translate post-multiplies m by a translation of v.
func Translate(m Mat4, v Vec3) Mat4 {
	return m.Mul4(mgl32.Translate3D(v[0], v[1], v[2]))
}

// RotateByQuaternion post-multiplies m by the rotation q. q does not need to be normalized.
func RotateByQuaternion(m Mat4, q Quat) Mat4 {
	return m.Mul4(normalize(q).Mat4())
}

// QuatFromMat4 extracts the rotation of m. Scale on the basis vectors is ignored.
func QuatFromMat4(m Mat4) Quat {
	var r Mat4 = mgl32.Ident4()
	for col := 0; col < 3; col++ {
		c := Vec3{m[col*4], m[col*4+1], m[col*4+2]}
		if l := c.Len(); l > 0 {
			c = c.Mul(1 / l)
		}
		r[col*4], r[col*4+1], r[col*4+2] = c[0], c[1], c[2]
	}
	return normalize(mgl32.Mat4ToQuat(r))
}

// QuatToAngleAxis returns the rotation angle in radians and a unit axis. A rotation of zero
// reports the X axis so the result is never NaN.
func QuatToAngleAxis(q Quat) (float32, Vec3) {
	q = normalize(q)
	if q.W < 0 {
		q = q.Scale(-1)
	}
	w := float64(q.W)
	if w > 1 {
		w = 1
	}
	angle := float32(2 * math.Acos(w))
	s := math.Sqrt(1 - w*w)
	if s < 1e-6 {
		return angle, Vec3{1, 0, 0}
	}
	return angle, q.V.Mul(float32(1 / s))
}

// FromPose builds the rigid transform translate(position)·rotate(orientation).
func FromPose(position Vec3, orientation Quat) Mat4 {
	return RotateByQuaternion(Translate(Identity(), position), orientation)
}

// PoseFromMat4 splits a rigid transform into position and orientation.
func PoseFromMat4(m Mat4) (Vec3, Quat) {
	return Vec3{m[12], m[13], m[14]}, QuatFromMat4(m)
}

func TransformPoint(m Mat4, v Vec3) Vec3 {
	return m.Mul4x1(v.Vec4(1)).Vec3()
}

// TransformDirection applies only the linear part of m.
func TransformDirection(m Mat4, v Vec3) Vec3 {
	return m.Mul4x1(v.Vec4(0)).Vec3()
}

// FovProjection builds an OpenGL style projection from half angles in radians.
func FovProjection(left, right, up, down, near, far float32) Mat4 {
	l := -tan(left) * near
	r := tan(right) * near
	t := tan(up) * near
	b := -tan(down) * near
	return mgl32.Frustum(l, r, b, t, near, far)
}

func tan(a float32) float32 {
	return float32(math.Tan(float64(a)))
}

// normalize returns q scaled to unit length, or the identity quaternion when q is zero.
func normalize(q Quat) Quat {
	l := q.Len()
	if l == 0 {
		return mgl32.QuatIdent()
	}
	if l == 1 {
		return q
	}
	return q.Scale(1 / l)
}
