package instagram

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
)

var errUnreadableFeed = errors.New("unreadable feed response")

// responseRecorder remembers how the last request ended, for goinsta calls
// that report failure without an error.
type responseRecorder struct {
	next http.RoundTripper

	mu     sync.Mutex
	status int
	err    error
}

func (r *responseRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.next.RoundTrip(req)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.status, r.err = 0, err
		return nil, err
	}
	r.status, r.err = resp.StatusCode, nil
	return resp, nil
}

func (r *responseRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status, r.err = 0, nil
}

// failure describes the last request; a 200 that goinsta could not decode
// becomes errUnreadableFeed.
func (r *responseRecorder) failure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.err != nil:
		return r.err
	case r.status != 0 && r.status != http.StatusOK:
		return fmt.Errorf("HTTP %d %s", r.status, http.StatusText(r.status))
	default:
		return errUnreadableFeed
	}
}
