package inventory

import (
	"reflect"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Extra holds the properties of a document that have no field of their own.
// They are kept as sent, so a stored or published document never loses a property.
type Extra map[string]jsoniter.RawMessage

// sortedCodec encodes merged documents with sorted keys, so equal documents encode to equal bytes.
var sortedCodec = jsoniter.Config{SortMapKeys: true, EscapeHTML: false}.Froze()

var (
	instanceFields = jsonFieldNames(reflect.TypeOf(Instance{}))
	holdingsFields = jsonFieldNames(reflect.TypeOf(HoldingsRecord{}))
	itemFields     = jsonFieldNames(reflect.TypeOf(Item{}))
)

// MarshalJSON encodes the Instance together with its Extra properties.
func (i Instance) MarshalJSON() ([]byte, error) {
	type document Instance
	return marshalWithExtra(document(i), i.Extra)
}

// UnmarshalJSON decodes the Instance and keeps the unknown properties in Extra.
func (i *Instance) UnmarshalJSON(data []byte) error {
	type document Instance
	var decoded document

	extra, err := unmarshalWithExtra(data, &decoded, instanceFields)
	if err != nil {
		return err
	}

	*i = Instance(decoded)
	i.Extra = extra

	return nil
}

// MarshalJSON encodes the HoldingsRecord together with its Extra properties.
func (h HoldingsRecord) MarshalJSON() ([]byte, error) {
	type document HoldingsRecord
	return marshalWithExtra(document(h), h.Extra)
}

// UnmarshalJSON decodes the HoldingsRecord and keeps the unknown properties in Extra.
func (h *HoldingsRecord) UnmarshalJSON(data []byte) error {
	type document HoldingsRecord
	var decoded document

	extra, err := unmarshalWithExtra(data, &decoded, holdingsFields)
	if err != nil {
		return err
	}

	*h = HoldingsRecord(decoded)
	h.Extra = extra

	return nil
}

// MarshalJSON encodes the Item together with its Extra properties.
func (it Item) MarshalJSON() ([]byte, error) {
	type document Item
	return marshalWithExtra(document(it), it.Extra)
}

// UnmarshalJSON decodes the Item and keeps the unknown properties in Extra.
func (it *Item) UnmarshalJSON(data []byte) error {
	type document Item
	var decoded document

	extra, err := unmarshalWithExtra(data, &decoded, itemFields)
	if err != nil {
		return err
	}

	*it = Item(decoded)
	it.Extra = extra

	return nil
}

func marshalWithExtra(known any, extra Extra) ([]byte, error) {
	data, err := jsoniter.ConfigFastest.Marshal(known)
	if err != nil || len(extra) == 0 {
		return data, err
	}

	merged := make(map[string]jsoniter.RawMessage, len(extra))
	if err := jsoniter.ConfigFastest.Unmarshal(data, &merged); err != nil {
		return nil, err
	}

	for name, value := range extra {
		if _, ok := merged[name]; !ok {
			merged[name] = value
		}
	}

	return sortedCodec.Marshal(merged)
}

func unmarshalWithExtra(data []byte, known any, fields map[string]struct{}) (Extra, error) {
	if err := jsoniter.ConfigFastest.Unmarshal(data, known); err != nil {
		return nil, err
	}

	var all map[string]jsoniter.RawMessage
	if err := jsoniter.ConfigFastest.Unmarshal(data, &all); err != nil {
		return nil, err
	}

	var extra Extra
	for name, value := range all {
		if _, ok := fields[name]; ok {
			continue
		}

		if extra == nil {
			extra = make(Extra)
		}
		extra[name] = value
	}

	return extra, nil
}

func jsonFieldNames(t reflect.Type) map[string]struct{} {
	names := make(map[string]struct{}, t.NumField())

	for i := range t.NumField() {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}

		names[name] = struct{}{}
	}

	return names
}

func (e Extra) clone() Extra {
	if e == nil {
		return nil
	}

	c := make(Extra, len(e))
	for name, value := range e {
		c[name] = value
	}

	return c
}

// ItemSnapshot is the published form of an Item. It carries the id of the Instance
// owning the Item's HoldingsRecord, which the stored Item does not hold.
type ItemSnapshot struct {
	Item       *Item
	InstanceID string
}

// NewItemSnapshot pairs an Item with the Instance id of its HoldingsRecord.
func NewItemSnapshot(item *Item, instanceID string) ItemSnapshot {
	return ItemSnapshot{Item: item, InstanceID: instanceID}
}

// MarshalJSON encodes the Item with an additional instanceId property.
func (s ItemSnapshot) MarshalJSON() ([]byte, error) {
	if s.Item == nil {
		return []byte("null"), nil
	}

	extra := s.Item.Extra.clone()
	if s.InstanceID != "" {
		id, err := jsoniter.ConfigFastest.Marshal(s.InstanceID)
		if err != nil {
			return nil, err
		}

		if extra == nil {
			extra = make(Extra, 1)
		}
		extra[snapshotInstanceID] = id
	}

	type document Item

	return marshalWithExtra(document(*s.Item), extra)
}

const snapshotInstanceID = "instanceId"
