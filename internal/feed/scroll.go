package feed

import "context"

// ScrollPosition is the viewport geometry reported by the browser, in pixels
type ScrollPosition struct {
	ScrollTop      int `json:"scroll_top"`
	ViewportHeight int `json:"viewport_height"`
	ContentHeight  int `json:"content_height"`
}

// ShouldPrefetch reports whether the bottom of the viewport is within
// threshold pixels of the end of the content
func ShouldPrefetch(pos ScrollPosition, threshold int) bool {
	return pos.ScrollTop+pos.ViewportHeight >= pos.ContentHeight-threshold
}

// OnScroll loads the next page when the viewport nears the end of the list.
// The bool reports whether a load was attempted.
func (f *Feed) OnScroll(ctx context.Context, pos ScrollPosition) (Snapshot, bool, error) {
	if !ShouldPrefetch(pos, f.threshold) {
		return f.Snapshot(), false, nil
	}
	snap, err := f.LoadNextPage(ctx)
	return snap, true, err
}
