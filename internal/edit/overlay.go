// Package edit applies rotation, mirroring and cropping to rendered pages.
// Edits are view state over the stored render; they never re-render.
package edit

import (
	"errors"
	"fmt"
	"image"

	"github.com/spherical/pagebook/internal/domain"
	"github.com/spherical/pagebook/internal/imaging"
	"github.com/spherical/pagebook/internal/observability"
	"github.com/spherical/pagebook/internal/store"
)

// ErrPageNotRendered is returned when an edit needs pixels that do not exist yet.
var ErrPageNotRendered = errors.New("page has not been rendered")

// Overlay edits pages held in a store.
type Overlay struct {
	store   *store.Store
	encoder imaging.Encoder
	logger  *observability.Logger
}

// NewOverlay creates an overlay. Crops are encoded with enc.
func NewOverlay(st *store.Store, enc imaging.Encoder, logger *observability.Logger) *Overlay {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Overlay{store: st, encoder: enc, logger: logger.WithOperation("edit")}
}

// UpdateRotation sets the absolute rotation of page n. Degrees are
// normalized to 0, 90, 180 or 270.
func (o *Overlay) UpdateRotation(n, degrees int) (domain.Page, error) {
	return o.update(n, func(st *domain.RenderState) {
		st.Rotation = domain.NormalizeRotation(degrees)
	})
}

// Rotate adds delta degrees to the rotation of page n.
func (o *Overlay) Rotate(n, delta int) (domain.Page, error) {
	return o.update(n, func(st *domain.RenderState) {
		st.Rotation = domain.NormalizeRotation(st.Rotation + delta)
	})
}

// ToggleMirror flips page n horizontally.
func (o *Overlay) ToggleMirror(n int) (domain.Page, error) {
	return o.update(n, func(st *domain.RenderState) {
		st.Mirrored = !st.Mirrored
	})
}

// ApplyCrop stores cropped as the effective image of page n. The crop
// already contains the view transform, so rotation and mirroring reset.
func (o *Overlay) ApplyCrop(n int, cropped domain.ImageRef) (domain.Page, error) {
	return o.applyCrop(o.store.Generation(), n, cropped)
}

func (o *Overlay) applyCrop(gen uint64, n int, cropped domain.ImageRef) (domain.Page, error) {
	if cropped.IsZero() {
		return domain.Page{}, domain.ValidationError("cropped image is empty", nil)
	}
	page, err := o.store.UpdateIn(gen, n, func(st *domain.RenderState) {
		st.Cropped = &cropped
		st.Rotation = 0
		st.Mirrored = false
	})
	if err != nil {
		return domain.Page{}, fmt.Errorf("page %d: %w", n, err)
	}
	return page, nil
}

// Crop cuts rect out of the page as currently displayed and applies the
// result. rect is in pixels of the rotated and mirrored image. The crop is
// dropped if the document is replaced while it is being cut.
func (o *Overlay) Crop(n int, rect domain.Rect) (domain.Page, error) {
	gen := o.store.Generation()
	page, ok := o.store.PageIn(gen, n)
	if !ok {
		return domain.Page{}, fmt.Errorf("page %d: %w", n, store.ErrPageNotFound)
	}
	src, ok := page.EffectiveImage()
	if !ok {
		return domain.Page{}, fmt.Errorf("page %d: %w", n, ErrPageNotRendered)
	}

	img, err := imaging.Decode(src)
	if err != nil {
		return domain.Page{}, fmt.Errorf("page %d: %w", n, err)
	}
	cut, err := imaging.Crop(img, page.Rotation, page.Mirrored, rect)
	if err != nil {
		return domain.Page{}, domain.ValidationError(fmt.Sprintf("invalid crop for page %d", n), err)
	}
	ref, err := o.encoder.Encode(cut)
	if err != nil {
		return domain.Page{}, fmt.Errorf("page %d: %w", n, err)
	}

	o.logger.Debug().Int("page", n).Int("width", ref.Width).Int("height", ref.Height).Msg("page cropped")
	return o.applyCrop(gen, n, ref)
}

// ResetEdits restores the original render of page n.
func (o *Overlay) ResetEdits(n int) (domain.Page, error) {
	return o.update(n, func(st *domain.RenderState) {
		st.Cropped = nil
		st.Rotation = 0
		st.Mirrored = false
	})
}

// EffectiveImage returns the crop of page n if present, else its render.
func (o *Overlay) EffectiveImage(n int) (domain.ImageRef, error) {
	page, ok := o.store.Page(n)
	if !ok {
		return domain.ImageRef{}, fmt.Errorf("page %d: %w", n, store.ErrPageNotFound)
	}
	ref, ok := page.EffectiveImage()
	if !ok {
		return domain.ImageRef{}, fmt.Errorf("page %d: %w", n, ErrPageNotRendered)
	}
	return ref, nil
}

// Display returns page n as shown: the effective image mirrored and rotated.
func (o *Overlay) Display(n int) (image.Image, error) {
	page, ok := o.store.Page(n)
	if !ok {
		return nil, fmt.Errorf("page %d: %w", n, store.ErrPageNotFound)
	}
	ref, ok := page.EffectiveImage()
	if !ok {
		return nil, fmt.Errorf("page %d: %w", n, ErrPageNotRendered)
	}
	img, err := imaging.Decode(ref)
	if err != nil {
		return nil, err
	}
	return imaging.View(img, page.Rotation, page.Mirrored), nil
}

func (o *Overlay) update(n int, fn func(*domain.RenderState)) (domain.Page, error) {
	page, err := o.store.Update(n, fn)
	if err != nil {
		return domain.Page{}, fmt.Errorf("page %d: %w", n, err)
	}
	return page, nil
}
