// Package refspace converts backend poses into the canonical output space.
//
// The output space is floor relative whenever the backend can provide one. Backends that only
// know a head-relative space get a static vertical offset added instead, which is a crude
// approximation: no rotation is corrected in that mode.
package refspace

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/neuroplastio/neio-xr/xrapi"
	"github.com/neuroplastio/neio-xr/xrapi/xrmath"
)

type Resolver struct {
	Floor        bool
	Transform    xrmath.Mat4
	HasTransform bool
	// Offset is the floor-to-head height used when the space is head relative.
	Offset float32
}

// For builds a resolver from the current state of a reference space. It must be rebuilt
// whenever the space may have changed, which is why callers do it on every query.
func For(space xrapi.ReferenceSpace, offset float32) Resolver {
	if space == nil {
		return Resolver{Offset: offset}
	}
	r := Resolver{
		Floor:  space.Floor(),
		Offset: offset,
	}
	r.Transform, r.HasTransform = space.OriginTransform()
	return r
}

func (r Resolver) Origin() xrapi.Origin {
	if r.Floor {
		return xrapi.OriginFloor
	}
	return xrapi.OriginHead
}

func (r Resolver) identity() bool {
	return r.HasTransform && r.Transform == mgl32.Ident4()
}

func (r Resolver) ResolvePose(raw xrapi.RawPose) xrapi.Pose {
	pose := xrapi.Pose{Orientation: mgl32.QuatIdent()}
	if raw.HasOrientation {
		pose.Orientation = raw.Orientation
	}
	if raw.HasPosition {
		pose.Position = raw.Position
	}
	if r.identity() {
		return pose
	}

	switch {
	case r.HasTransform:
		if raw.HasPosition {
			pose.Position = xrmath.TransformPoint(r.Transform, raw.Position)
		}
		if raw.HasOrientation {
			pose.Orientation = xrmath.QuatFromMat4(xrmath.RotateByQuaternion(r.Transform, raw.Orientation))
		}
	case r.Floor:
	default:
		if raw.HasPosition {
			pose.Position[1] += r.Offset
		}
	}
	return pose
}

// ResolveVelocity rotates velocities into the output space. A constant vertical offset has no
// effect on velocity.
func (r Resolver) ResolveVelocity(raw xrapi.RawPose) xrapi.Velocity {
	var v xrapi.Velocity
	if raw.HasLinearVelocity {
		v.Linear = raw.LinearVelocity
	}
	if raw.HasAngularVelocity {
		v.Angular = raw.AngularVelocity
	}
	if r.HasTransform && !r.identity() {
		v.Linear = xrmath.TransformDirection(r.Transform, v.Linear)
		v.Angular = xrmath.TransformDirection(r.Transform, v.Angular)
	}
	return v
}
