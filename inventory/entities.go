package inventory

import (
	"strings"
	"time"
)

// SuppressVersion is the incoming version value that requests optimistic lock suppression.
const SuppressVersion = -1

// ConsortiumSourcePrefix marks Instances that are shadow copies controlled by the central tenant.
const ConsortiumSourcePrefix = "CONSORTIUM-"

// Metadata is the server-managed audit block of every document.
type Metadata struct {
	CreatedDate     *time.Time `json:"createdDate,omitempty"`
	CreatedByUserID string     `json:"createdByUserId,omitempty"`
	UpdatedDate     *time.Time `json:"updatedDate,omitempty"`
	UpdatedByUserID string     `json:"updatedByUserId,omitempty"`
}

// Subject is a typed subject heading of an Instance.
// SourceID and TypeID are materialized into join tables.
type Subject struct {
	Value    string `json:"value"`
	SourceID string `json:"sourceId,omitempty"`
	TypeID   string `json:"typeId,omitempty"`
}

// Note is a free-text note of any of the three entity types.
type Note struct {
	Note       string `json:"note"`
	NoteTypeID string `json:"noteTypeId,omitempty"`
	StaffOnly  bool   `json:"staffOnly,omitempty"`
}

// Instance is the bibliographic record at the top of the hierarchy.
type Instance struct {
	ID                  string    `json:"id,omitempty"`
	HRID                string    `json:"hrid,omitempty"`
	Version             *int      `json:"_version,omitempty"`
	Source              string    `json:"source,omitempty"`
	Title               string    `json:"title,omitempty"`
	InstanceTypeID      string    `json:"instanceTypeId,omitempty"`
	Subjects            []Subject `json:"subjects,omitempty"`
	Notes               []Note    `json:"notes,omitempty"`
	AdministrativeNotes []string  `json:"administrativeNotes,omitempty"`
	StatisticalCodeIDs  []string  `json:"statisticalCodeIds,omitempty"`
	StatusUpdatedDate   string    `json:"statusUpdatedDate,omitempty"`
	Metadata            *Metadata `json:"metadata,omitempty"`
	Extra               Extra     `json:"-"`
}

// HoldingsRecord groups the physical or electronic holdings of one Instance at a location.
type HoldingsRecord struct {
	ID                  string    `json:"id,omitempty"`
	HRID                string    `json:"hrid,omitempty"`
	Version             *int      `json:"_version,omitempty"`
	InstanceID          string    `json:"instanceId"`
	SourceID            string    `json:"sourceId,omitempty"`
	PermanentLocationID string    `json:"permanentLocationId,omitempty"`
	TemporaryLocationID string    `json:"temporaryLocationId,omitempty"`
	EffectiveLocationID string    `json:"effectiveLocationId,omitempty"`
	CallNumber          string    `json:"callNumber,omitempty"`
	CallNumberPrefix    string    `json:"callNumberPrefix,omitempty"`
	CallNumberSuffix    string    `json:"callNumberSuffix,omitempty"`
	CallNumberTypeID    string    `json:"callNumberTypeId,omitempty"`
	Notes               []Note    `json:"notes,omitempty"`
	AdministrativeNotes []string  `json:"administrativeNotes,omitempty"`
	StatisticalCodeIDs  []string  `json:"statisticalCodeIds,omitempty"`
	Metadata            *Metadata `json:"metadata,omitempty"`
	Extra               Extra     `json:"-"`
}

// ItemStatus is the circulation status of an Item.
type ItemStatus struct {
	Name string `json:"name"`
	Date string `json:"date,omitempty"`
}

// CallNumberComponents are the effective call number parts of an Item.
type CallNumberComponents struct {
	CallNumber string `json:"callNumber,omitempty"`
	Prefix     string `json:"prefix,omitempty"`
	Suffix     string `json:"suffix,omitempty"`
	TypeID     string `json:"typeId,omitempty"`
}

// Item is an individually circulating piece of a HoldingsRecord.
// The Effective* fields are derived and must be consistent with the Item's overrides
// and its owning HoldingsRecord after every commit.
type Item struct {
	ID                            string                `json:"id,omitempty"`
	HRID                          string                `json:"hrid,omitempty"`
	Version                       *int                  `json:"_version,omitempty"`
	HoldingsRecordID              string                `json:"holdingsRecordId"`
	Barcode                       string                `json:"barcode,omitempty"`
	Status                        ItemStatus            `json:"status"`
	PermanentLocationID           string                `json:"permanentLocationId,omitempty"`
	TemporaryLocationID           string                `json:"temporaryLocationId,omitempty"`
	EffectiveLocationID           string                `json:"effectiveLocationId,omitempty"`
	ItemLevelCallNumber           string                `json:"itemLevelCallNumber,omitempty"`
	ItemLevelCallNumberPrefix     string                `json:"itemLevelCallNumberPrefix,omitempty"`
	ItemLevelCallNumberSuffix     string                `json:"itemLevelCallNumberSuffix,omitempty"`
	ItemLevelCallNumberTypeID     string                `json:"itemLevelCallNumberTypeId,omitempty"`
	EffectiveCallNumberComponents *CallNumberComponents `json:"effectiveCallNumberComponents,omitempty"`
	EffectiveShelvingOrder        string                `json:"effectiveShelvingOrder,omitempty"`
	Volume                        string                `json:"volume,omitempty"`
	Enumeration                   string                `json:"enumeration,omitempty"`
	Chronology                    string                `json:"chronology,omitempty"`
	CopyNumber                    string                `json:"copyNumber,omitempty"`
	Notes                         []Note                `json:"notes,omitempty"`
	AdministrativeNotes           []string              `json:"administrativeNotes,omitempty"`
	StatisticalCodeIDs            []string              `json:"statisticalCodeIds,omitempty"`
	Metadata                      *Metadata             `json:"metadata,omitempty"`
	Extra                         Extra                 `json:"-"`
}

// IsShadowCopy reports whether the Instance is controlled by a consortium central tenant.
func (i Instance) IsShadowCopy() bool {
	return strings.HasPrefix(i.Source, ConsortiumSourcePrefix)
}

// VersionOf returns a pointer to an int with the given value.
func VersionOf(v int) *int {
	return &v
}

// Clone returns a deep copy of the Instance.
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}

	c := *i
	c.Version = cloneVersion(i.Version)
	c.Subjects = cloneSlice(i.Subjects)
	c.Notes = cloneSlice(i.Notes)
	c.AdministrativeNotes = cloneSlice(i.AdministrativeNotes)
	c.StatisticalCodeIDs = cloneSlice(i.StatisticalCodeIDs)
	c.Metadata = i.Metadata.clone()
	c.Extra = i.Extra.clone()

	return &c
}

// Clone returns a deep copy of the HoldingsRecord.
func (h *HoldingsRecord) Clone() *HoldingsRecord {
	if h == nil {
		return nil
	}

	c := *h
	c.Version = cloneVersion(h.Version)
	c.Notes = cloneSlice(h.Notes)
	c.AdministrativeNotes = cloneSlice(h.AdministrativeNotes)
	c.StatisticalCodeIDs = cloneSlice(h.StatisticalCodeIDs)
	c.Metadata = h.Metadata.clone()
	c.Extra = h.Extra.clone()

	return &c
}

// Clone returns a deep copy of the Item.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}

	c := *it
	c.Version = cloneVersion(it.Version)
	if it.EffectiveCallNumberComponents != nil {
		components := *it.EffectiveCallNumberComponents
		c.EffectiveCallNumberComponents = &components
	}
	c.Notes = cloneSlice(it.Notes)
	c.AdministrativeNotes = cloneSlice(it.AdministrativeNotes)
	c.StatisticalCodeIDs = cloneSlice(it.StatisticalCodeIDs)
	c.Metadata = it.Metadata.clone()
	c.Extra = it.Extra.clone()

	return &c
}

func (m *Metadata) clone() *Metadata {
	if m == nil {
		return nil
	}

	c := *m
	if m.CreatedDate != nil {
		created := *m.CreatedDate
		c.CreatedDate = &created
	}
	if m.UpdatedDate != nil {
		updated := *m.UpdatedDate
		c.UpdatedDate = &updated
	}

	return &c
}

func cloneVersion(v *int) *int {
	if v == nil {
		return nil
	}

	return VersionOf(*v)
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}

	c := make([]T, len(s))
	copy(c, s)

	return c
}
