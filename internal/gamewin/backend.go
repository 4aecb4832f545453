// Package gamewin abstracts the game window: screenshotting, pixel
// sampling, and mouse/keyboard injection. The event loop only sees the
// Backend interface and awaits its results inside step callbacks.
package gamewin

import (
	"errors"
	"image"
	"image/color"
)

var (
	// ErrWindowNotFound means no window matched the configured title.
	ErrWindowNotFound = errors.New("game window not found")
	// ErrWindowClosed means the previously found window is gone.
	ErrWindowClosed = errors.New("game window closed")
	// ErrNotConnected means the backend was used before Connect.
	ErrNotConnected = errors.New("backend not connected")
)

// Point is a screen or window coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rect is a window rectangle in screen coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// MouseButton selects the button for SendMouseButton.
type MouseButton int

const (
	MouseLeft MouseButton = iota + 1
	MouseMiddle
	MouseRight
)

// Backend is the narrow interface over the platform window/input layer.
// Calls may block; step callbacks are expected to await them.
type Backend interface {
	// Connect establishes the display server connection and resolves the
	// target window by title.
	Connect() error
	// Close releases the display server connection.
	Close() error
	// Name returns the backend name (e.g. "x11").
	Name() string

	// IsOpen reports whether the target window currently exists.
	IsOpen() bool
	// HasFocus reports whether the target window has input focus.
	HasFocus() (bool, error)
	// SetFocus gives the target window input focus.
	SetFocus() error
	// Bounds returns the outer window rectangle in screen coordinates.
	Bounds() (Rect, error)
	// Size returns the inner (client) size of the window.
	Size() (Point, error)

	// CaptureImage grabs the given window-relative region as RGBA.
	// Width/height of 0 capture the full window.
	CaptureImage(x, y, width, height int) (*image.RGBA, error)
	// PixelAt samples a single window-relative pixel.
	PixelAt(x, y int) (color.RGBA, error)

	// MousePos returns the pointer position relative to the window origin.
	MousePos() (Point, error)
	// SetMousePos warps the pointer to a window-relative position.
	SetMousePos(x, y int) error
	// MoveMouse moves the pointer by a relative delta.
	MoveMouse(dx, dy int) error
	// Scroll scrolls by the given number of wheel clicks; negative reverses.
	Scroll(clicks int) error
	// SendMouseButton injects a button press or release.
	SendMouseButton(btn MouseButton, up bool) error
	// SendKey injects a key press or release by keycode.
	SendKey(code uint16, up bool) error
	// IsKeyDown reports whether a key is currently held.
	IsKeyDown(code uint16) (bool, error)
}

// DecodePixel unpacks the 0x00bbggrr wire format used by the native pixel
// query into an opaque RGBA color.
func DecodePixel(val uint32) color.RGBA {
	return color.RGBA{
		R: uint8(val & 0xff),
		G: uint8((val >> 8) & 0xff),
		B: uint8((val >> 16) & 0xff),
		A: 255,
	}
}

// EncodePixel packs a color into the 0x00bbggrr wire format.
func EncodePixel(c color.RGBA) uint32 {
	return uint32(c.R) | uint32(c.G)<<8 | uint32(c.B)<<16
}
