// Package geom implements the projection/unprojection math behind
// spec §4.5's handlePickEvent: turning a scene's camera matrices plus
// a pair of normalized device coordinates into a world-space pick
// ray. Grounded on irmf-irmf-slicer's irmf/renderer.go, which threads
// projection/camera/model mgl32.Mat4 matrices through its render
// pipeline the same way a scene camera would here.
package geom

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Ray is a world-space pick ray: an origin and a normalized direction.
type Ray struct {
	Origin    mgl32.Vec3
	Direction mgl32.Vec3
}

// UnprojectPickRay turns normalized device coordinates (each in
// [-1, 1], y-up) into a world-space ray through the camera's near and
// far planes, given the camera's combined view-projection matrix.
func UnprojectPickRay(ndcX, ndcY float32, viewProjection mgl32.Mat4) (Ray, error) {
	if viewProjection.Det() == 0 {
		return Ray{}, errDegenerateProjection
	}
	inv := viewProjection.Inv()

	nearClip := mgl32.Vec4{ndcX, ndcY, -1, 1}
	farClip := mgl32.Vec4{ndcX, ndcY, 1, 1}

	nearWorld := inv.Mul4x1(nearClip)
	farWorld := inv.Mul4x1(farClip)

	if nearWorld.W() == 0 || farWorld.W() == 0 {
		return Ray{}, errDegenerateProjection
	}

	near := nearWorld.Vec3().Mul(1 / nearWorld.W())
	far := farWorld.Vec3().Mul(1 / farWorld.W())

	dir := far.Sub(near)
	if dir.Len() == 0 {
		return Ray{}, errDegenerateProjection
	}

	return Ray{Origin: near, Direction: dir.Normalize()}, nil
}

// ProjectToNDC projects a world-space point through viewProjection
// into normalized device coordinates, returning ok=false if the point
// is behind the camera (w <= 0).
func ProjectToNDC(world mgl32.Vec3, viewProjection mgl32.Mat4) (x, y float32, ok bool) {
	clip := viewProjection.Mul4x1(mgl32.Vec4{world.X(), world.Y(), world.Z(), 1})
	if clip.W() <= 0 {
		return 0, 0, false
	}
	return clip.X() / clip.W(), clip.Y() / clip.W(), true
}

type geomError string

func (e geomError) Error() string { return string(e) }

const errDegenerateProjection geomError = "geom: degenerate view-projection matrix"
