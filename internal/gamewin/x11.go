package gamewin

import (
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgb/xtest"

	"gametools/internal/logger"
)

// X11Backend locates and drives the game window over X11/XWayland.
type X11Backend struct {
	title      string
	matchExact bool

	mu        sync.Mutex
	conn      *xgb.Conn
	root      xproto.Window
	screen    *xproto.ScreenInfo
	win       xproto.Window
	xtestOK   bool
	connected bool
}

// NewX11Backend creates a backend that matches windows whose title contains
// title; matchExact requires the full title to be equal.
func NewX11Backend(title string, matchExact bool) *X11Backend {
	return &X11Backend{title: title, matchExact: matchExact}
}

// Connect establishes the X connection and resolves the target window.
// A missing window is not an error here; IsOpen and the per-call checks
// surface ErrWindowNotFound until the game starts.
func (b *X11Backend) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	b.conn = conn
	b.root = screen.Root
	b.screen = screen
	b.connected = true

	log := logger.WithComponent("x11-backend")
	if err := xtest.Init(conn); err != nil {
		log.Warn().Err(err).Msg("XTEST extension not available - input injection disabled")
		b.xtestOK = false
	} else {
		b.xtestOK = true
	}

	if err := b.findWindowLocked(); err != nil {
		log.Info().Str("title", b.title).Msg("Game window not open yet")
	} else {
		log.Info().
			Str("title", b.title).
			Uint32("window_id", uint32(b.win)).
			Msg("Game window found")
	}

	return nil
}

// Close closes the X connection.
func (b *X11Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	b.connected = false
	return nil
}

// Name returns the backend name.
func (b *X11Backend) Name() string {
	return "x11"
}

// findWindowLocked scans the root's children for a title match.
func (b *X11Backend) findWindowLocked() error {
	tree, err := xproto.QueryTree(b.conn, b.root).Reply()
	if err != nil {
		return fmt.Errorf("failed to query window tree: %w", err)
	}

	for _, child := range tree.Children {
		title, err := b.windowTitleLocked(child)
		if err != nil || title == "" {
			continue
		}
		if b.matchExact {
			if title != b.title {
				continue
			}
		} else if !strings.Contains(title, b.title) {
			continue
		}
		b.win = child
		return nil
	}

	b.win = 0
	return ErrWindowNotFound
}

func (b *X11Backend) windowTitleLocked(win xproto.Window) (string, error) {
	for _, atomName := range []string{"_NET_WM_NAME", "WM_NAME"} {
		atom, err := b.atomLocked(atomName)
		if err != nil {
			continue
		}
		reply, err := xproto.GetProperty(
			b.conn, false, win, atom,
			xproto.GetPropertyTypeAny, 0, (1<<32)-1,
		).Reply()
		if err != nil || reply.ValueLen == 0 {
			continue
		}
		return string(reply.Value), nil
	}
	return "", fmt.Errorf("window has no title")
}

func (b *X11Backend) atomLocked(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(b.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}

// WindowInfo describes one visible window, for discovery tooling.
type WindowInfo struct {
	ID    uint32 `json:"id"`
	Title string `json:"title"`
}

// ListWindows returns all titled top-level windows.
func (b *X11Backend) ListWindows() ([]WindowInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return nil, ErrNotConnected
	}
	tree, err := xproto.QueryTree(b.conn, b.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to query window tree: %w", err)
	}

	windows := make([]WindowInfo, 0, len(tree.Children))
	for _, child := range tree.Children {
		title, err := b.windowTitleLocked(child)
		if err != nil || title == "" {
			continue
		}
		windows = append(windows, WindowInfo{ID: uint32(child), Title: title})
	}
	return windows, nil
}

// targetLocked returns the resolved window, re-scanning when the cached one
// disappeared.
func (b *X11Backend) targetLocked() (xproto.Window, error) {
	if !b.connected {
		return 0, ErrNotConnected
	}
	if b.win != 0 {
		if _, err := xproto.GetWindowAttributes(b.conn, b.win).Reply(); err == nil {
			return b.win, nil
		}
		b.win = 0
	}
	if err := b.findWindowLocked(); err != nil {
		return 0, ErrWindowClosed
	}
	return b.win, nil
}

// IsOpen reports whether the target window currently exists.
func (b *X11Backend) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.targetLocked()
	return err == nil
}

// HasFocus reports whether the target window has input focus.
func (b *X11Backend) HasFocus() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	win, err := b.targetLocked()
	if err != nil {
		return false, err
	}
	reply, err := xproto.GetInputFocus(b.conn).Reply()
	if err != nil {
		return false, fmt.Errorf("failed to get input focus: %w", err)
	}
	return reply.Focus == win, nil
}

// SetFocus gives the target window input focus.
func (b *X11Backend) SetFocus() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	win, err := b.targetLocked()
	if err != nil {
		return err
	}
	return xproto.SetInputFocusChecked(
		b.conn, xproto.InputFocusPointerRoot, win, xproto.TimeCurrentTime,
	).Check()
}

// Bounds returns the outer window rectangle in screen coordinates.
func (b *X11Backend) Bounds() (Rect, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	win, err := b.targetLocked()
	if err != nil {
		return Rect{}, err
	}
	geom, err := xproto.GetGeometry(b.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return Rect{}, fmt.Errorf("failed to get window geometry: %w", err)
	}
	trans, err := xproto.TranslateCoordinates(b.conn, win, b.root, 0, 0).Reply()
	if err != nil {
		return Rect{}, fmt.Errorf("failed to translate coordinates: %w", err)
	}
	return Rect{
		X:      int(trans.DstX),
		Y:      int(trans.DstY),
		Width:  int(geom.Width),
		Height: int(geom.Height),
	}, nil
}

// Size returns the inner size of the window.
func (b *X11Backend) Size() (Point, error) {
	bounds, err := b.Bounds()
	if err != nil {
		return Point{}, err
	}
	return Point{X: bounds.Width, Y: bounds.Height}, nil
}

// CaptureImage grabs a window-relative region as RGBA. Width/height of 0
// capture the full window.
func (b *X11Backend) CaptureImage(x, y, width, height int) (*image.RGBA, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	win, err := b.targetLocked()
	if err != nil {
		return nil, err
	}

	if width == 0 || height == 0 {
		geom, err := xproto.GetGeometry(b.conn, xproto.Drawable(win)).Reply()
		if err != nil {
			return nil, fmt.Errorf("failed to get window geometry: %w", err)
		}
		width = int(geom.Width)
		height = int(geom.Height)
	}

	reply, err := xproto.GetImage(
		b.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(win),
		int16(x), int16(y),
		uint16(width), uint16(height),
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	return convertImageData(reply.Data, width, height), nil
}

// PixelAt samples a single window-relative pixel.
func (b *X11Backend) PixelAt(x, y int) (color.RGBA, error) {
	img, err := b.CaptureImage(x, y, 1, 1)
	if err != nil {
		return color.RGBA{}, err
	}
	return img.RGBAAt(0, 0), nil
}

// MousePos returns the pointer position relative to the window origin.
func (b *X11Backend) MousePos() (Point, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	win, err := b.targetLocked()
	if err != nil {
		return Point{}, err
	}
	reply, err := xproto.QueryPointer(b.conn, win).Reply()
	if err != nil {
		return Point{}, fmt.Errorf("failed to query pointer: %w", err)
	}
	return Point{X: int(reply.WinX), Y: int(reply.WinY)}, nil
}

// SetMousePos warps the pointer to a window-relative position.
func (b *X11Backend) SetMousePos(x, y int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	win, err := b.targetLocked()
	if err != nil {
		return err
	}
	return xproto.WarpPointerChecked(
		b.conn, xproto.WindowNone, win, 0, 0, 0, 0, int16(x), int16(y),
	).Check()
}

// MoveMouse moves the pointer by a relative delta.
func (b *X11Backend) MoveMouse(dx, dy int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return ErrNotConnected
	}
	return xproto.WarpPointerChecked(
		b.conn, xproto.WindowNone, xproto.WindowNone, 0, 0, 0, 0, int16(dx), int16(dy),
	).Check()
}

// Scroll scrolls by wheel clicks. X maps the wheel to buttons 4 (up) and
// 5 (down).
func (b *X11Backend) Scroll(clicks int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkInjectLocked(); err != nil {
		return err
	}

	button := byte(4)
	if clicks < 0 {
		button = 5
		clicks = -clicks
	}
	for i := 0; i < clicks; i++ {
		if err := b.fakeInputLocked(xproto.ButtonPress, button); err != nil {
			return err
		}
		if err := b.fakeInputLocked(xproto.ButtonRelease, button); err != nil {
			return err
		}
	}
	return nil
}

// SendMouseButton injects a button press or release.
func (b *X11Backend) SendMouseButton(btn MouseButton, up bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkInjectLocked(); err != nil {
		return err
	}
	kind := byte(xproto.ButtonPress)
	if up {
		kind = xproto.ButtonRelease
	}
	return b.fakeInputLocked(kind, byte(btn))
}

// SendKey injects a key press or release by X keycode.
func (b *X11Backend) SendKey(code uint16, up bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkInjectLocked(); err != nil {
		return err
	}
	kind := byte(xproto.KeyPress)
	if up {
		kind = xproto.KeyRelease
	}
	return b.fakeInputLocked(kind, byte(code))
}

// IsKeyDown reports whether a key is currently held, by X keycode.
func (b *X11Backend) IsKeyDown(code uint16) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return false, ErrNotConnected
	}
	reply, err := xproto.QueryKeymap(b.conn).Reply()
	if err != nil {
		return false, fmt.Errorf("failed to query keymap: %w", err)
	}
	return reply.Keys[code/8]&(1<<(code%8)) != 0, nil
}

func (b *X11Backend) checkInjectLocked() error {
	if !b.connected {
		return ErrNotConnected
	}
	if !b.xtestOK {
		return fmt.Errorf("input injection unavailable: XTEST extension missing")
	}
	return nil
}

func (b *X11Backend) fakeInputLocked(kind, detail byte) error {
	return xtest.FakeInputChecked(
		b.conn, kind, detail, xproto.TimeCurrentTime, b.root, 0, 0, 0,
	).Check()
}

// convertImageData converts X11 ZPixmap data (BGRA) to RGBA.
func convertImageData(data []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 4
			if i+3 < len(data) {
				img.SetRGBA(x, y, color.RGBA{
					R: data[i+2],
					G: data[i+1],
					B: data[i],
					A: 255,
				})
			}
		}
	}
	return img
}
