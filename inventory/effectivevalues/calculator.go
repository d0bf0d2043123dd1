package effectivevalues

import (
	"context"
	"strings"

	"github.com/librarystack/inventory-storage-go/inventory"
)

// HoldingsLookup fetches HoldingsRecords by id. Missing ids are absent from the result.
type HoldingsLookup interface {
	HoldingsByIDs(ctx context.Context, ids []string) (map[string]*inventory.HoldingsRecord, error)
}

// ShelfKeyGenerator builds a shelf key for a call number of one call number type.
// It returns false when the call number is not valid for the scheme.
type ShelfKeyGenerator func(callNumber string) (string, bool)

// Calculator computes effective values. The zero value knows only the built-in SuDoc scheme.
type Calculator struct {
	generators map[string]ShelfKeyGenerator
}

// CalculatorOption configures a Calculator.
type CalculatorOption func(*Calculator)

// WithShelfKeyGenerator registers the shelf key generator of a call number type.
func WithShelfKeyGenerator(callNumberTypeID string, generator ShelfKeyGenerator) CalculatorOption {
	return func(c *Calculator) {
		c.generators[callNumberTypeID] = generator
	}
}

// NewCalculator creates a Calculator with the SuDoc scheme and the given additional generators.
func NewCalculator(options ...CalculatorOption) Calculator {
	c := Calculator{generators: map[string]ShelfKeyGenerator{SuDocTypeID: suDocShelfKey}}

	for _, option := range options {
		option(&c)
	}

	return c
}

// HoldingsEffectiveLocation is the temporary location when set, else the permanent location.
func HoldingsEffectiveLocation(holdings *inventory.HoldingsRecord) string {
	if holdings == nil {
		return ""
	}

	return firstNonBlank(holdings.TemporaryLocationID, holdings.PermanentLocationID)
}

// PopulateHoldings sets the effective values of a HoldingsRecord.
func PopulateHoldings(holdings *inventory.HoldingsRecord) {
	holdings.EffectiveLocationID = HoldingsEffectiveLocation(holdings)
}

// NeedsHoldings reports whether the Item's own fields are insufficient and the owning HoldingsRecord must be read.
func NeedsHoldings(item *inventory.Item) bool {
	return anyBlank(item.ItemLevelCallNumber, item.ItemLevelCallNumberPrefix,
		item.ItemLevelCallNumberSuffix, item.ItemLevelCallNumberTypeID) ||
		allBlank(item.PermanentLocationID, item.TemporaryLocationID)
}

// Populate sets all effective values of the Item against the given HoldingsRecord.
// The HoldingsRecord may be nil only when NeedsHoldings is false.
func (c Calculator) Populate(item *inventory.Item, holdings *inventory.HoldingsRecord) {
	item.EffectiveLocationID = EffectiveLocation(item, holdings)
	item.EffectiveCallNumberComponents = CallNumberComponents(item, holdings)
	item.EffectiveShelvingOrder = c.ShelvingOrder(item)
}

// PopulateItems fetches the HoldingsRecords the Items need and populates every Item.
// A referenced HoldingsRecord that does not exist is a validation error on holdingsRecordId.
func (c Calculator) PopulateItems(ctx context.Context, lookup HoldingsLookup, items []*inventory.Item) error {
	ids := make([]string, 0)
	seen := make(map[string]struct{})

	for _, item := range items {
		if !NeedsHoldings(item) {
			continue
		}

		if _, ok := seen[item.HoldingsRecordID]; ok {
			continue
		}

		seen[item.HoldingsRecordID] = struct{}{}
		ids = append(ids, item.HoldingsRecordID)
	}

	holdingsByID := map[string]*inventory.HoldingsRecord{}
	if len(ids) > 0 {
		var err error
		if holdingsByID, err = lookup.HoldingsByIDs(ctx, ids); err != nil {
			return err
		}

		for _, id := range ids {
			if _, ok := holdingsByID[id]; !ok {
				return inventory.HoldingsRecordDoesNotExist(id)
			}
		}
	}

	for _, item := range items {
		c.Populate(item, holdingsByID[item.HoldingsRecordID])
	}

	return nil
}

// EffectiveLocation is the Item's temporary location, else its permanent location,
// else the effective location of its HoldingsRecord.
func EffectiveLocation(item *inventory.Item, holdings *inventory.HoldingsRecord) string {
	return firstNonBlank(item.TemporaryLocationID, item.PermanentLocationID, HoldingsEffectiveLocation(holdings))
}

// CallNumberComponents takes every component from the Item override when present,
// else from the HoldingsRecord.
func CallNumberComponents(item *inventory.Item, holdings *inventory.HoldingsRecord) *inventory.CallNumberComponents {
	var inherited inventory.HoldingsRecord
	if holdings != nil {
		inherited = *holdings
	}

	components := &inventory.CallNumberComponents{
		CallNumber: firstNonBlank(item.ItemLevelCallNumber, inherited.CallNumber),
		Prefix:     firstNonBlank(item.ItemLevelCallNumberPrefix, inherited.CallNumberPrefix),
		Suffix:     firstNonBlank(item.ItemLevelCallNumberSuffix, inherited.CallNumberSuffix),
		TypeID:     firstNonBlank(item.ItemLevelCallNumberTypeID, inherited.CallNumberTypeID),
	}

	if *components == (inventory.CallNumberComponents{}) {
		return nil
	}

	return components
}

// ShelfKey returns the generated shelf key of a call number, or false when the type is
// unknown or the call number is not valid for its scheme.
func (c Calculator) ShelfKey(callNumberTypeID, callNumber string) (string, bool) {
	generator, ok := c.generators[callNumberTypeID]
	if !ok || generator == nil {
		return "", false
	}

	return generator(callNumber)
}

// ShelvingOrder builds the effective shelving order from the Item's effective call number components
// followed by volume, enumeration, chronology, copy number, and call number suffix.
// Without a call number there is no shelving order.
func (c Calculator) ShelvingOrder(item *inventory.Item) string {
	components := item.EffectiveCallNumberComponents
	if components == nil || strings.TrimSpace(components.CallNumber) == "" {
		return ""
	}

	base, ok := c.ShelfKey(components.TypeID, components.CallNumber)
	if !ok {
		base = strings.TrimSpace(components.CallNumber)
	}

	parts := make([]string, 0, 6)
	for _, part := range []string{base, item.Volume, item.Enumeration, item.Chronology, item.CopyNumber, components.Suffix} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}

	return strings.Join(parts, " ")
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}

	return ""
}

func anyBlank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}

	return false
}

func allBlank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}

	return true
}
