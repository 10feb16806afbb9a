package xrmath

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

const epsilon = 1e-5

func vecEqual(t *testing.T, want, got Vec3) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], epsilon, "component %d of %v", i, got)
	}
}

func TestMultiplyIdentity(t *testing.T) {
	m := mgl32.Translate3D(1, 2, 3).Mul4(mgl32.HomogRotate3DY(0.5))
	assert.Equal(t, m, Multiply(Identity(), m))
	assert.Equal(t, m, Multiply(m, Identity()))
}

func TestMultiplyInto(t *testing.T) {
	a := mgl32.Translate3D(1, 0, 0)
	b := mgl32.Translate3D(0, 2, 0)
	var dst Mat4
	MultiplyInto(&dst, a, b)
	vecEqual(t, Vec3{1, 2, 0}, TransformPoint(dst, Vec3{}))
	// inputs are untouched
	assert.Equal(t, mgl32.Translate3D(1, 0, 0), a)
}

func TestInvert(t *testing.T) {
	m := FromPose(Vec3{1, 2, 3}, mgl32.QuatRotate(1.2, Vec3{0, 1, 0}))
	assert.True(t, Multiply(m, Invert(m)).ApproxEqualThreshold(Identity(), epsilon))
}

func TestTranslate(t *testing.T) {
	m := Translate(Identity(), Vec3{0, 1.6, 0})
	vecEqual(t, Vec3{1, 1.6, 0}, TransformPoint(m, Vec3{1, 0, 0}))
	vecEqual(t, Vec3{1, 0, 0}, TransformDirection(m, Vec3{1, 0, 0}))
}

func TestRotateByQuaternionUnnormalized(t *testing.T) {
	q := mgl32.QuatRotate(math.Pi/2, Vec3{0, 1, 0})
	big := q.Scale(4)
	m := RotateByQuaternion(Identity(), big)
	vecEqual(t, Vec3{0, 0, -1}, TransformDirection(m, Vec3{1, 0, 0}))
}

func TestQuatFromMat4RoundTrip(t *testing.T) {
	tests := []Quat{
		mgl32.QuatIdent(),
		mgl32.QuatRotate(0.3, Vec3{1, 0, 0}),
		mgl32.QuatRotate(2.5, Vec3{0, 1, 0}),
		mgl32.QuatRotate(-1.1, Vec3{0, 0.6, 0.8}),
	}
	for i, q := range tests {
		got := QuatFromMat4(Translate(Identity(), Vec3{4, 5, 6}).Mul4(q.Mat4()))
		assert.True(t, got.OrientationEqualThreshold(q, epsilon), "%d: %v != %v", i, got, q)
	}
}

func TestQuatFromMat4IgnoresScale(t *testing.T) {
	q := mgl32.QuatRotate(0.7, Vec3{0, 0, 1})
	m := q.Mat4().Mul4(mgl32.Scale3D(2, 3, 4))
	assert.True(t, QuatFromMat4(m).OrientationEqualThreshold(q, epsilon))
}

func TestQuatToAngleAxis(t *testing.T) {
	angle, axis := QuatToAngleAxis(mgl32.QuatIdent())
	assert.Equal(t, float32(0), angle)
	assert.False(t, math.IsNaN(float64(axis.Len())))
	assert.InDelta(t, 1, axis.Len(), epsilon)

	angle, axis = QuatToAngleAxis(Quat{})
	assert.Equal(t, float32(0), angle)
	assert.InDelta(t, 1, axis.Len(), epsilon)

	angle, axis = QuatToAngleAxis(mgl32.QuatRotate(1, Vec3{0, 1, 0}).Scale(3))
	assert.InDelta(t, 1, angle, epsilon)
	vecEqual(t, Vec3{0, 1, 0}, axis)

	// the short way around
	angle, axis = QuatToAngleAxis(mgl32.QuatRotate(1, Vec3{0, 1, 0}).Scale(-1))
	assert.InDelta(t, 1, angle, epsilon)
	vecEqual(t, Vec3{0, 1, 0}, axis)
}

func TestPoseFromMat4(t *testing.T) {
	q := mgl32.QuatRotate(0.4, Vec3{1, 0, 0})
	pos, rot := PoseFromMat4(FromPose(Vec3{1, 2, 3}, q))
	vecEqual(t, Vec3{1, 2, 3}, pos)
	assert.True(t, rot.OrientationEqualThreshold(q, epsilon))
}

func TestFovProjectionSymmetric(t *testing.T) {
	p := FovProjection(0.7, 0.7, 0.7, 0.7, 0.1, 100)
	want := mgl32.Perspective(1.4, 1, 0.1, 100)
	assert.True(t, p.ApproxEqualThreshold(want, 1e-4), "%v != %v", p, want)
}
