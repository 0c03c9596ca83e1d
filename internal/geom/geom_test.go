package geom

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestProjectToNDCThenUnprojectYieldsPickRay(t *testing.T) {
	proj := mgl32.Perspective(mgl32.DegToRad(60), 1.0, 0.1, 100.0)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	vp := proj.Mul4(view)

	world := mgl32.Vec3{0, 0, 0}
	x, y, ok := ProjectToNDC(world, vp)
	if !ok {
		t.Fatalf("expected point in front of camera to project")
	}
	if x < -1 || x > 1 || y < -1 || y > 1 {
		t.Fatalf("expected centered point near NDC origin, got (%f, %f)", x, y)
	}

	ray, err := UnprojectPickRay(x, y, vp)
	if err != nil {
		t.Fatalf("UnprojectPickRay: %v", err)
	}
	if ray.Direction.Len() == 0 {
		t.Fatalf("expected non-zero ray direction")
	}
}

func TestUnprojectPickRayRejectsSingularMatrix(t *testing.T) {
	var singular mgl32.Mat4
	if _, err := UnprojectPickRay(0, 0, singular); err == nil {
		t.Fatalf("expected error for singular view-projection matrix")
	}
}

func TestProjectToNDCRejectsBehindCamera(t *testing.T) {
	proj := mgl32.Perspective(mgl32.DegToRad(60), 1.0, 0.1, 100.0)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	vp := proj.Mul4(view)

	behind := mgl32.Vec3{0, 0, 20}
	if _, _, ok := ProjectToNDC(behind, vp); ok {
		t.Fatalf("expected point behind camera to fail projection")
	}
}
