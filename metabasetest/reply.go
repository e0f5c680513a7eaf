package metabasetest

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Reply is one scripted response.
type Reply struct {
	Status int
	Body   string
	Header http.Header

	// Delay holds the response back. A client that gives up first sees a
	// timeout; the handler then returns without writing.
	Delay time.Duration
}

// JSON is a Reply with a JSON body.
func JSON(status int, body string) Reply {
	return Reply{
		Status: status,
		Body:   body,
		Header: http.Header{"Content-Type": []string{"application/json"}},
	}
}

// RetryAfter is a 429 Reply carrying a Retry-After of the given seconds.
func RetryAfter(seconds int) Reply {
	r := JSON(http.StatusTooManyRequests, `{"message":"Too many requests."}`)
	r.Header.Set("Retry-After", strconv.Itoa(seconds))
	return r
}

// route serves its replies in order; the last one repeats.
type route struct {
	mu      sync.Mutex
	replies []Reply
	next    int
}

func (rt *route) reset(replies []Reply) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.replies = replies
	rt.next = 0
}

func (rt *route) rewind() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.next = 0
}

func (rt *route) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mu.Lock()
	reply := rt.replies[rt.next]
	if rt.next < len(rt.replies)-1 {
		rt.next++
	}
	rt.mu.Unlock()

	if reply.Delay > 0 {
		timer := time.NewTimer(reply.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-r.Context().Done():
			return
		}
	}
	writeReply(w, reply)
}

func writeReply(w http.ResponseWriter, reply Reply) {
	for k, vs := range reply.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if reply.Body != "" {
		_, _ = w.Write([]byte(reply.Body))
	}
}
