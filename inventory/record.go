package inventory

import (
	"context"
	"time"
)

// Record is implemented by the three entity documents so that the batch executor,
// the lock guard, and the metadata stamping can treat them uniformly.
type Record interface {
	RecordID() string
	SetRecordID(id string)
	RecordVersion() *int
	SetRecordVersion(v *int)
	RecordHRID() string
	SetRecordHRID(hrid string)
	RecordMetadata() *Metadata
	SetRecordMetadata(m *Metadata)
}

// RequestContext carries the request-scoped metadata handed over by the routing layer.
type RequestContext struct {
	Tenant   string
	UserID   string
	OkapiURL string
	Token    string
	TraceID  string
}

type requestContextKey struct{}

// ContextWithRequest returns a copy of ctx carrying the RequestContext, e.g. for event transport headers.
func ContextWithRequest(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestFromContext returns the RequestContext carried by ctx, if any.
func RequestFromContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(RequestContext)
	return rc, ok
}

// StampMetadata sets the server-managed metadata on a record.
// The created part is kept when present, the updated part always reflects now.
func StampMetadata(rec Record, rc RequestContext, now time.Time) {
	stamped := &Metadata{}
	if existing := rec.RecordMetadata(); existing != nil && existing.CreatedDate != nil {
		created := *existing.CreatedDate
		stamped.CreatedDate = &created
		stamped.CreatedByUserID = existing.CreatedByUserID
	} else {
		created := now
		stamped.CreatedDate = &created
		stamped.CreatedByUserID = rc.UserID
	}

	updated := now
	stamped.UpdatedDate = &updated
	stamped.UpdatedByUserID = rc.UserID

	rec.SetRecordMetadata(stamped)
}

func (i *Instance) RecordID() string              { return i.ID }
func (i *Instance) SetRecordID(id string)         { i.ID = id }
func (i *Instance) RecordVersion() *int           { return i.Version }
func (i *Instance) SetRecordVersion(v *int)       { i.Version = v }
func (i *Instance) RecordHRID() string            { return i.HRID }
func (i *Instance) SetRecordHRID(hrid string)     { i.HRID = hrid }
func (i *Instance) RecordMetadata() *Metadata     { return i.Metadata }
func (i *Instance) SetRecordMetadata(m *Metadata) { i.Metadata = m }

func (h *HoldingsRecord) RecordID() string              { return h.ID }
func (h *HoldingsRecord) SetRecordID(id string)         { h.ID = id }
func (h *HoldingsRecord) RecordVersion() *int           { return h.Version }
func (h *HoldingsRecord) SetRecordVersion(v *int)       { h.Version = v }
func (h *HoldingsRecord) RecordHRID() string            { return h.HRID }
func (h *HoldingsRecord) SetRecordHRID(hrid string)     { h.HRID = hrid }
func (h *HoldingsRecord) RecordMetadata() *Metadata     { return h.Metadata }
func (h *HoldingsRecord) SetRecordMetadata(m *Metadata) { h.Metadata = m }

func (it *Item) RecordID() string              { return it.ID }
func (it *Item) SetRecordID(id string)         { it.ID = id }
func (it *Item) RecordVersion() *int           { return it.Version }
func (it *Item) SetRecordVersion(v *int)       { it.Version = v }
func (it *Item) RecordHRID() string            { return it.HRID }
func (it *Item) SetRecordHRID(hrid string)     { it.HRID = hrid }
func (it *Item) RecordMetadata() *Metadata     { return it.Metadata }
func (it *Item) SetRecordMetadata(m *Metadata) { it.Metadata = m }
