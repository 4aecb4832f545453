package overlay

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gametools/internal/logger"
	"gametools/internal/store"
)

// Transform maps reference-resolution coordinates to the live window size.
type Transform struct {
	ScaleX float64
	ScaleY float64
}

// Identity is the 1:1 transform.
var Identity = Transform{ScaleX: 1, ScaleY: 1}

// NewTransform builds the transform from the reference resolution the
// element positions were stored in to the actual window size.
func NewTransform(refWidth, refHeight, actualWidth, actualHeight int) Transform {
	t := Identity
	if refWidth > 0 && actualWidth > 0 {
		t.ScaleX = float64(actualWidth) / float64(refWidth)
	}
	if refHeight > 0 && actualHeight > 0 {
		t.ScaleY = float64(actualHeight) / float64(refHeight)
	}
	return t
}

// Apply maps a reference coordinate to the actual window.
func (t Transform) Apply(x, y int) (int, int) {
	return int(float64(x)*t.ScaleX + 0.5), int(float64(y)*t.ScaleY + 0.5)
}

// position is the persisted part of an element.
type position struct {
	X       int  `json:"x"`
	Y       int  `json:"y"`
	Enabled bool `json:"enabled"`
}

// Manager holds the overlay elements and renders them onto captured frames.
// Element positions persist through the key-value store so an editor session
// survives restarts.
type Manager struct {
	mu        sync.RWMutex
	elements  map[string]Element
	order     []string
	enabled   bool
	refWidth  int
	refHeight int
	db        *store.Store
}

// NewManager creates an overlay manager. db may be nil to disable
// persistence.
func NewManager(refWidth, refHeight int, db *store.Store) *Manager {
	return &Manager{
		elements:  make(map[string]Element),
		enabled:   true,
		refWidth:  refWidth,
		refHeight: refHeight,
		db:        db,
	}
}

// Add registers an element, restoring any persisted position.
func (m *Manager) Add(el Element) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.elements[el.ID()]; exists {
		return fmt.Errorf("element with ID %s already exists", el.ID())
	}

	if m.db != nil {
		var pos position
		err := m.db.Get(m.storeKey(el.ID()), &pos)
		if err == nil {
			el.SetPosition(pos.X, pos.Y)
			el.SetEnabled(pos.Enabled)
		} else if !errors.Is(err, store.ErrKeyNotFound) {
			return fmt.Errorf("failed to restore element %s: %w", el.ID(), err)
		}
	}

	m.elements[el.ID()] = el
	m.order = append(m.order, el.ID())
	logger.WithComponent("overlay").Info().
		Str("id", el.ID()).
		Str("type", el.Type()).
		Msg("Added overlay element")
	return nil
}

// Remove unregisters an element and deletes its persisted position.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.elements[id]; !exists {
		return fmt.Errorf("element with ID %s not found", id)
	}
	delete(m.elements, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}

	if m.db != nil {
		if err := m.db.Delete(m.storeKey(id)); err != nil {
			return fmt.Errorf("failed to drop persisted position for %s: %w", id, err)
		}
	}
	return nil
}

// Get returns the element with the given ID.
func (m *Manager) Get(id string) (Element, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	el, ok := m.elements[id]
	return el, ok
}

// All returns the elements in insertion order.
func (m *Manager) All() []Element {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Element, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.elements[id])
	}
	return out
}

// Move repositions an element in reference coordinates and persists it.
func (m *Manager) Move(id string, x, y int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.elements[id]
	if !ok {
		return fmt.Errorf("element with ID %s not found", id)
	}
	el.SetPosition(x, y)
	return m.persistLocked(el)
}

// SetElementEnabled toggles one element and persists the flag.
func (m *Manager) SetElementEnabled(id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.elements[id]
	if !ok {
		return fmt.Errorf("element with ID %s not found", id)
	}
	el.SetEnabled(enabled)
	return m.persistLocked(el)
}

func (m *Manager) persistLocked(el Element) error {
	if m.db == nil {
		return nil
	}
	x, y := el.Position()
	pos := position{X: x, Y: y, Enabled: el.IsEnabled()}
	if err := m.db.Put(m.storeKey(el.ID()), pos); err != nil {
		return fmt.Errorf("failed to persist element %s: %w", el.ID(), err)
	}
	return nil
}

func (m *Manager) storeKey(id string) string {
	return "overlay." + id
}

// SetEnabled toggles the whole overlay layer.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// IsEnabled returns whether the overlay renders at all.
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Render draws all enabled elements onto img, scaling positions from the
// reference resolution to the image size.
func (m *Manager) Render(img *image.RGBA) error {
	if !m.IsEnabled() {
		return nil
	}

	size := img.Bounds().Size()
	t := NewTransform(m.refWidth, m.refHeight, size.X, size.Y)

	for _, el := range m.All() {
		if !el.IsEnabled() {
			continue
		}
		if err := el.Render(img, t); err != nil {
			logger.WithComponent("overlay").Warn().
				Str("id", el.ID()).
				Err(err).
				Msg("Failed to render overlay element")
		}
	}
	return nil
}
