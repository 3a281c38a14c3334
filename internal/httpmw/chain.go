package httpmw

import "net/http"

// Chain wraps h so that mws[0] ends up outermost. nil entries are skipped,
// so optional middleware can be passed inline.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mw := mws[i]; mw != nil {
			h = mw(h)
		}
	}
	return h
}
