// Package effectivevalues derives the effective location, call number components,
// and shelving order of Items from their own overrides and their owning HoldingsRecord.
//
// All derivations are pure functions of the Item and HoldingsRecord inputs.
// The only I/O is fetching missing HoldingsRecords through a HoldingsLookup,
// which happens when an Item does not carry all call number overrides itself.
package effectivevalues
