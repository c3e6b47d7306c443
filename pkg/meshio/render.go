package meshio

import (
	"image"

	"github.com/fogleman/fauxgl"
	"github.com/nfnt/resize"

	"github.com/Faultbox/facerig/pkg/mesh"
)

// RenderOptions controls the preview camera. The mesh is fitted into a
// bi-unit cube first, so Eye is in normalized units.
type RenderOptions struct {
	Width       int
	Height      int
	FovY        float64 // vertical field of view in degrees
	Supersample int     // render at N times the size, then downsample
	Eye         fauxgl.Vector
	Up          fauxgl.Vector
	Color       string // hex object color
	Background  string // hex clear color
}

// DefaultRenderOptions looks at the face from the front (-Y) with Z up.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		Width:       512,
		Height:      512,
		FovY:        30,
		Supersample: 2,
		Eye:         fauxgl.V(0, -4, 0.5),
		Up:          fauxgl.V(0, 0, 1),
		Color:       "#D9A38A",
		Background:  "#20242A",
	}
}

// Render draws the mesh with a phong shader.
func Render(positions mesh.VertexBuffer, faces []mesh.Face, opts RenderOptions) (image.Image, error) {
	m, err := ToMesh(positions, faces)
	if err != nil {
		return nil, err
	}
	scale := opts.Supersample
	if scale < 1 {
		scale = 1
	}

	const near, far = 1, 10
	var (
		center = fauxgl.V(0, 0, 0)
		light  = fauxgl.V(-0.75, -1, 0.5).Normalize()
	)

	m.BiUnitCube()
	m.SmoothNormals()

	context := fauxgl.NewContext(opts.Width*scale, opts.Height*scale)
	context.ClearColorBufferWith(fauxgl.HexColor(opts.Background))
	aspect := float64(opts.Width) / float64(opts.Height)
	matrix := fauxgl.LookAt(opts.Eye, center, opts.Up).Perspective(opts.FovY, aspect, near, far)
	shader := fauxgl.NewPhongShader(matrix, light, opts.Eye)
	shader.ObjectColor = fauxgl.HexColor(opts.Color)
	context.Shader = shader
	context.DrawMesh(m)

	img := context.Image()
	if scale > 1 {
		img = resize.Resize(uint(opts.Width), uint(opts.Height), img, resize.Bilinear)
	}
	return img, nil
}

// RenderPNG renders and writes a PNG preview.
func RenderPNG(path string, positions mesh.VertexBuffer, faces []mesh.Face, opts RenderOptions) error {
	img, err := Render(positions, faces, opts)
	if err != nil {
		return err
	}
	return fauxgl.SavePNG(path, img)
}
