package core

import (
	"context"
	"fmt"
)

// CacheStatusStatus is the disposition of a request: served from the
// cache, or forwarded into a generation.
type CacheStatusStatus string

const (
	CacheStatusHit = "hit"
	CacheStatusFwd = "fwd"
)

type CacheStatusFwdReason string

const (
	// The cache was configured to not handle this request.
	CacheStatusFwdBypass = "bypass"

	// The cache did not contain any responses that matched the
	// request URI.
	CacheStatusFwdUriMiss = "uri-miss"

	// The cache did not contain any responses that could be used to
	// satisfy this request.
	CacheStatusFwdMiss = "miss"
)

// CacheStatus builds a Cache-Status response header value per RFC 9211.
type CacheStatus struct {
	status    CacheStatusStatus
	fwdReason CacheStatusFwdReason
	stored    bool
	detail    string
}

func (cs *CacheStatus) Hit() {
	cs.status = CacheStatusHit
}

func (cs *CacheStatus) Forward(reason CacheStatusFwdReason) {
	cs.status = CacheStatusFwd
	cs.fwdReason = reason
}

// Stored records that the forwarded response was written to the cache.
func (cs *CacheStatus) Stored() {
	cs.stored = true
}

func (cs *CacheStatus) Detail(detail string) {
	cs.detail = detail
}

func (cs *CacheStatus) String() string {
	status := fmt.Sprintf("Hearth; %s", cs.status)
	if cs.status == CacheStatusFwd && cs.fwdReason != "" {
		status = fmt.Sprintf("%s=%s", status, cs.fwdReason)
	}
	if cs.stored {
		status = status + "; stored"
	}
	if cs.detail != "" {
		status = status + "; detail=" + cs.detail
	}
	return status
}

// CacheStatusHandler returns a Post handler that appends the
// Cache-Status header describing how the pipeline handled the request.
func CacheStatusHandler() Handler {
	return HandlerFunc(func(_ context.Context, t *Txn) Result {
		if t.Response == nil || t.Entry == nil {
			return Continue()
		}
		var cs CacheStatus
		switch {
		case t.Hit:
			cs.Hit()
		case t.Entry.Cacheable:
			cs.Forward(CacheStatusFwdUriMiss)
			cs.Stored()
		default:
			cs.Forward(CacheStatusFwdBypass)
		}
		t.Response.Header.Add("Cache-Status", cs.String())
		return Continue()
	})
}
