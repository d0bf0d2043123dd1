package postgresengine

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/librarystack/inventory-storage-go/inventory"
)

const (
	logActionHRID     = "hrid"
	hridSettingsRowID = 1
	hridNumberWidth   = 11
	seqHRIDInstances  = "hrid_instances_seq"
	seqHRIDHoldings   = "hrid_holdings_seq"
	seqHRIDItems      = "hrid_items_seq"
)

// HRIDSetting is the prefix and the first number of the HRIDs of one record type.
type HRIDSetting struct {
	Prefix      string `json:"prefix"`
	StartNumber int64  `json:"startNumber"`
}

// HRIDSettings configure the human-readable identifiers of a tenant.
type HRIDSettings struct {
	Instances                 HRIDSetting `json:"instances"`
	Holdings                  HRIDSetting `json:"holdings"`
	Items                     HRIDSetting `json:"items"`
	CommonRetainLeadingZeroes bool        `json:"commonRetainLeadingZeroes"`
}

type hridKind struct {
	sequence string
	setting  func(HRIDSettings) HRIDSetting
}

var (
	hridInstances = hridKind{seqHRIDInstances, func(s HRIDSettings) HRIDSetting { return s.Instances }}
	hridHoldings  = hridKind{seqHRIDHoldings, func(s HRIDSettings) HRIDSetting { return s.Holdings }}
	hridItems     = hridKind{seqHRIDItems, func(s HRIDSettings) HRIDSetting { return s.Items }}
)

// FormatHRID renders an HRID from its prefix and sequence number.
func FormatHRID(setting HRIDSetting, number int64, retainLeadingZeroes bool) string {
	if retainLeadingZeroes {
		return fmt.Sprintf("%s%0*d", setting.Prefix, hridNumberWidth, number)
	}

	return setting.Prefix + strconv.FormatInt(number, 10)
}

// readHRIDSettings reads the settings row, taking a share lock without waiting.
// A concurrent settings update makes it fail with SQLSTATE 55P03.
func readHRIDSettings(ctx context.Context, s *scope, lock exp.LockStrength) (HRIDSettings, error) {
	ds := builder().From(s.table(tableHRIDSettings)).Select(goqu.L(selectJsonbText)).Where(goqu.C(colID).Eq(hridSettingsRowID))
	switch lock {
	case exp.ForShare:
		ds = ds.ForShare(exp.NoWait)
	case exp.ForUpdate:
		ds = ds.ForUpdate(exp.NoWait)
	}

	sqlQuery, err := toSQL(ds)
	if err != nil {
		return HRIDSettings{}, err
	}

	rows, err := s.scanStrings(ctx, sqlQuery, logActionHRID, 1)
	if err != nil {
		return HRIDSettings{}, err
	}

	if len(rows) == 0 {
		return HRIDSettings{}, inventory.ErrNotFound
	}

	var settings HRIDSettings
	if err := inventory.DecodeDocument([]byte(*rows[0][0]), &settings); err != nil {
		return HRIDSettings{}, err
	}

	return settings, nil
}

// assignHRIDs sets an HRID on every record that has none.
func assignHRIDs[R inventory.Record](ctx context.Context, s *scope, kind hridKind, records []R) error {
	var settings *HRIDSettings

	for _, rec := range records {
		if rec.RecordHRID() != "" {
			continue
		}

		if settings == nil {
			loaded, err := readHRIDSettings(ctx, s, exp.ForShare)
			if err != nil {
				return err
			}
			settings = &loaded
		}

		number, err := nextSequenceValue(ctx, s, kind.sequence)
		if err != nil {
			return err
		}

		rec.SetRecordHRID(FormatHRID(kind.setting(*settings), number, settings.CommonRetainLeadingZeroes))
	}

	return nil
}

func nextSequenceValue(ctx context.Context, s *scope, sequence string) (int64, error) {
	sqlQuery, err := toSQL(builder().Select(goqu.L("nextval(?)::text", s.qualifiedName(sequence))))
	if err != nil {
		return 0, err
	}

	rows, err := s.scanStrings(ctx, sqlQuery, logActionHRID, 1)
	if err != nil {
		return 0, err
	}

	number, err := strconv.ParseInt(*rows[0][0], 10, 64)
	if err != nil {
		return 0, errors.Join(inventory.ErrScanningDBRowFailed, err)
	}

	return number, nil
}

func (s *scope) qualifiedName(name string) string {
	return quoteIdentifier(s.schema) + "." + name
}

// GetHRIDSettings returns the HRID settings of the tenant.
func (e *Engine) GetHRIDSettings(ctx context.Context, rc inventory.RequestContext) (HRIDSettings, error) {
	var settings HRIDSettings

	err := e.read(ctx, rc, "get_hrid_settings", func(ctx context.Context, s *scope) error {
		var err error
		settings, err = readHRIDSettings(ctx, s, exp.ForNolock)
		return err
	})

	return settings, err
}

// UpdateHRIDSettings replaces the HRID settings of the tenant. A changed start number restarts its sequence.
func (e *Engine) UpdateHRIDSettings(ctx context.Context, rc inventory.RequestContext, settings HRIDSettings) error {
	return e.inTransaction(ctx, rc, "update_hrid_settings", func(ctx context.Context, s *scope) error {
		current, err := readHRIDSettings(ctx, s, exp.ForUpdate)
		if err != nil {
			return err
		}

		content, err := inventory.EncodeDocument(settings)
		if err != nil {
			return err
		}

		sqlQuery, err := toSQL(builder().Update(s.table(tableHRIDSettings)).
			Set(goqu.Record{colJsonb: goqu.L(castJsonb, string(content))}).
			Where(goqu.C(colID).Eq(hridSettingsRowID)))
		if err != nil {
			return err
		}

		if err := s.exec(ctx, sqlQuery, logActionHRID); err != nil {
			return err
		}

		for _, kind := range []hridKind{hridInstances, hridHoldings, hridItems} {
			if kind.setting(current).StartNumber == kind.setting(settings).StartNumber {
				continue
			}

			if err := restartSequence(ctx, s, kind.sequence, kind.setting(settings).StartNumber); err != nil {
				return err
			}
		}

		return nil
	})
}

func restartSequence(ctx context.Context, s *scope, sequence string, start int64) error {
	if start < 1 {
		return inventory.NewValidationError("startNumber", strconv.FormatInt(start, 10), "must be at least 1")
	}

	sqlQuery, err := toSQL(builder().Select(goqu.L("setval(?, ?, false)::text", s.qualifiedName(sequence), start)))
	if err != nil {
		return err
	}

	_, err = s.scanStrings(ctx, sqlQuery, logActionHRID, 1)

	return err
}
