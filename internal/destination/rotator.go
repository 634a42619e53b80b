package destination

import (
	"context"

	"go.uber.org/zap"
)

// Uploader ships a closed destination somewhere else.
type Uploader interface {
	Upload(ctx context.Context, name, path string) error
}

// Rotator keeps at most one destination open, switching when the name
// changes.
type Rotator struct {
	opener   Opener
	header   []byte
	uploader Uploader
	pathOf   func(name string) string
	log      *zap.Logger
	onOpen   func(name string, created bool)

	cur    Handle
	opened []string
}

// RotatorOption configures a Rotator.
type RotatorOption func(*Rotator)

// WithUploader hands every closed destination to u.
func WithUploader(u Uploader, pathOf func(name string) string) RotatorOption {
	return func(r *Rotator) {
		r.uploader = u
		r.pathOf = pathOf
	}
}

// WithRotatorLogger sets the logger.
func WithRotatorLogger(log *zap.Logger) RotatorOption {
	return func(r *Rotator) { r.log = log }
}

// OnOpen is called after every successful open.
func OnOpen(fn func(name string, created bool)) RotatorOption {
	return func(r *Rotator) { r.onOpen = fn }
}

// NewRotator returns a rotator that writes header into new destinations.
func NewRotator(opener Opener, header []byte, opts ...RotatorOption) *Rotator {
	r := &Rotator{opener: opener, header: header, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Switch makes name the current destination and returns its handle. The
// previous destination, if different, is closed first.
func (r *Rotator) Switch(ctx context.Context, name string) (Handle, error) {
	if r.cur != nil && r.cur.Name() == name {
		return r.cur, nil
	}
	if err := r.Close(ctx); err != nil {
		return nil, err
	}

	h, created, err := r.opener.OpenAppend(name)
	if err != nil {
		return nil, err
	}
	if created && len(r.header) > 0 {
		if err := h.WriteLine(r.header); err != nil {
			_ = h.Close()
			return nil, err
		}
	}
	r.cur = h
	r.opened = append(r.opened, name)
	r.log.Debug("Opened destination", zap.String("destination", name), zap.Bool("created", created))
	if r.onOpen != nil {
		r.onOpen(name, created)
	}
	return h, nil
}

// Current returns the open destination, or nil.
func (r *Rotator) Current() Handle { return r.cur }

// Opened lists every destination opened so far, in order.
func (r *Rotator) Opened() []string { return append([]string(nil), r.opened...) }

// Close closes the current destination, if any, and uploads it.
func (r *Rotator) Close(ctx context.Context) error {
	if r.cur == nil {
		return nil
	}
	h := r.cur
	r.cur = nil
	if err := h.Close(); err != nil {
		return err
	}
	r.log.Debug("Closed destination", zap.String("destination", h.Name()))

	if r.uploader == nil {
		return nil
	}
	path := h.Name()
	if r.pathOf != nil {
		path = r.pathOf(h.Name())
	}
	return r.uploader.Upload(ctx, h.Name(), path)
}
