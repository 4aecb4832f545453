package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Element is a renderable overlay element. Positions are stored in the
// reference resolution and mapped to the live window size by the Transform
// passed to Render.
type Element interface {
	// ID returns the unique identifier for this element instance.
	ID() string

	// Type returns the element type name.
	Type() string

	// Position returns the element position in reference coordinates.
	Position() (x, y int)

	// SetPosition moves the element in reference coordinates.
	SetPosition(x, y int)

	// Render draws the element onto img with t applied.
	Render(img *image.RGBA, t Transform) error

	// IsEnabled returns whether the element should be rendered.
	IsEnabled() bool

	// SetEnabled sets whether the element should be rendered.
	SetEnabled(enabled bool)
}

// baseElement provides common element state.
type baseElement struct {
	id      string
	enabled bool
	x       int
	y       int
}

func (e *baseElement) ID() string              { return e.id }
func (e *baseElement) Position() (int, int)    { return e.x, e.y }
func (e *baseElement) SetPosition(x, y int)    { e.x, e.y = x, y }
func (e *baseElement) IsEnabled() bool         { return e.enabled }
func (e *baseElement) SetEnabled(enabled bool) { e.enabled = enabled }

// TextElement draws a text label.
type TextElement struct {
	baseElement
	Text    string
	Color   color.RGBA
	BgColor *color.RGBA // optional background box
	Padding int
}

// NewTextElement creates a text label at reference position (x, y).
func NewTextElement(id, text string, x, y int) *TextElement {
	return &TextElement{
		baseElement: baseElement{id: id, enabled: true, x: x, y: y},
		Text:        text,
		Color:       color.RGBA{255, 255, 255, 255},
		Padding:     5,
	}
}

func (e *TextElement) Type() string { return "text" }

func (e *TextElement) Render(img *image.RGBA, t Transform) error {
	face := basicfont.Face7x13
	x, y := t.Apply(e.x, e.y)

	if e.BgColor != nil {
		width := font.MeasureString(face, e.Text).Ceil() + e.Padding*2
		height := face.Height + e.Padding*2
		box := image.Rect(x, y, x+width, y+height)
		draw.Draw(img, box, &image.Uniform{*e.BgColor}, image.Point{}, draw.Over)
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(e.Color),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(x + e.Padding),
			Y: fixed.I(y + e.Padding + face.Ascent),
		},
	}
	d.DrawString(e.Text)
	return nil
}

// BoxElement draws a rectangle outline, e.g. to mark a screen region the
// tool samples pixels from.
type BoxElement struct {
	baseElement
	Width  int
	Height int
	Color  color.RGBA
}

// NewBoxElement creates a rectangle outline in reference coordinates.
func NewBoxElement(id string, x, y, width, height int) *BoxElement {
	return &BoxElement{
		baseElement: baseElement{id: id, enabled: true, x: x, y: y},
		Width:       width,
		Height:      height,
		Color:       color.RGBA{0, 255, 0, 255},
	}
}

func (e *BoxElement) Type() string { return "box" }

func (e *BoxElement) Render(img *image.RGBA, t Transform) error {
	x0, y0 := t.Apply(e.x, e.y)
	x1, y1 := t.Apply(e.x+e.Width, e.y+e.Height)

	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y0, e.Color)
		img.SetRGBA(x, y1, e.Color)
	}
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x0, y, e.Color)
		img.SetRGBA(x1, y, e.Color)
	}
	return nil
}
