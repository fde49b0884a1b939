package ingest

import (
	"fmt"
	"strconv"
	"time"

	"github.com/lendops/tapekpi/internal/contracts"
	"github.com/lendops/tapekpi/pkg/config"
)

// parColumnMap maps Looker-style PAR wide columns to canonical DPD bucket
// columns. The N in par_N is the bucket's lower day bound.
var parColumnMap = map[string]string{
	"par_0_balance_usd":  contracts.ColDPD0to7,
	"par_7_balance_usd":  contracts.ColDPD7to30,
	"par_30_balance_usd": contracts.ColDPD30to60,
	"par_60_balance_usd": contracts.ColDPD60to90,
	"par_90_balance_usd": contracts.ColDPD90Plus,
}

// NeedsReshape reports whether the frame is a vendor-specific wide export
// that must be normalized before validation.
func NeedsReshape(f *contracts.Frame) bool {
	if f.HasColumn(contracts.ColDPD) {
		return true
	}
	for wide := range parColumnMap {
		if f.HasColumn(wide) {
			return true
		}
	}
	return !f.HasColumn(contracts.ColMeasurementDate) &&
		(f.HasColumn(contracts.ColDisbursementDate) || f.HasColumn(contracts.ColMaturityDate))
}

// Reshape normalizes a Looker-style wide export into the canonical row
// shape: PAR wide columns become DPD bucket columns, a raw dpd column is
// bucketed, the measurement date is resolved per the configured strategy,
// and an external cash-availability figure keyed by date is joined in when
// provided.
func Reshape(f *contracts.Frame, cfg config.LookerConfig, cashByDate map[string]float64) (*contracts.Frame, error) {
	out := f.Copy()

	for wide, canonical := range parColumnMap {
		if out.HasColumn(wide) && !out.HasColumn(canonical) {
			out.Rename(wide, canonical)
		}
	}

	if out.HasColumn(contracts.ColDPD) && !out.HasColumn(contracts.ColDPD90Plus) {
		if err := bucketDPD(out); err != nil {
			return nil, err
		}
	}

	if err := resolveMeasurementDate(out, cfg); err != nil {
		return nil, err
	}

	if len(cashByDate) > 0 {
		joinCashAvailability(out, cashByDate)
	}

	return out, nil
}

// bucketDPD distributes each row's receivable into the DPD bucket matching
// its days-past-due value. Rows with an unparseable dpd land in the 0-7
// bucket with a zero amount.
func bucketDPD(f *contracts.Frame) error {
	amountCol := contracts.ColTotalReceivable
	if !f.HasColumn(amountCol) {
		amountCol = contracts.ColPrincipalBalance
	}
	if !f.HasColumn(amountCol) {
		return fmt.Errorf("dpd bucketing requires %s or %s", contracts.ColTotalReceivable, contracts.ColPrincipalBalance)
	}

	n := f.NumRows()
	buckets := make(map[string][]string, 5)
	for _, col := range contracts.DPDBucketColumns() {
		cells := make([]string, n)
		for i := range cells {
			cells[i] = "0"
		}
		buckets[col] = cells
	}

	days := f.Floats(contracts.ColDPD)
	amounts := f.Floats(amountCol)
	for i := 0; i < n; i++ {
		if days[i] != days[i] { // NaN
			continue
		}
		amount := amounts[i]
		if amount != amount {
			amount = 0
		}
		col := contracts.DPDBucketColumn(days[i])
		buckets[col][i] = strconv.FormatFloat(amount, 'f', -1, 64)
	}

	for _, col := range contracts.DPDBucketColumns() {
		if err := f.SetColumn(col, buckets[col]); err != nil {
			return err
		}
	}
	return nil
}

// resolveMeasurementDate fills the measurement_date column per the
// configured strategy. When several signals exist the priority is:
// explicit column, max disbursement date, max maturity date.
func resolveMeasurementDate(f *contracts.Frame, cfg config.LookerConfig) error {
	strategy := cfg.MeasurementDateStrategy
	if strategy == "" {
		strategy = "auto"
	}

	switch strategy {
	case "column":
		col := cfg.MeasurementDateColumn
		if col == "" {
			return fmt.Errorf("measurement_date_strategy=column requires measurement_date_column")
		}
		if !f.HasColumn(col) {
			return fmt.Errorf("measurement date column %q not found", col)
		}
		if !f.HasColumn(contracts.ColMeasurementDate) {
			f.Rename(col, contracts.ColMeasurementDate)
		}
		return nil
	case "max_disbursement_date":
		return setConstantMaxDate(f, contracts.ColDisbursementDate)
	case "max_maturity_date":
		return setConstantMaxDate(f, contracts.ColMaturityDate)
	case "auto":
		if f.HasColumn(contracts.ColMeasurementDate) {
			return nil
		}
		if cfg.MeasurementDateColumn != "" && f.HasColumn(cfg.MeasurementDateColumn) {
			f.Rename(cfg.MeasurementDateColumn, contracts.ColMeasurementDate)
			return nil
		}
		if f.HasColumn(contracts.ColDisbursementDate) {
			return setConstantMaxDate(f, contracts.ColDisbursementDate)
		}
		if f.HasColumn(contracts.ColMaturityDate) {
			return setConstantMaxDate(f, contracts.ColMaturityDate)
		}
		return nil
	default:
		return fmt.Errorf("unknown measurement date strategy %q", strategy)
	}
}

func setConstantMaxDate(f *contracts.Frame, sourceCol string) error {
	if !f.HasColumn(sourceCol) {
		return fmt.Errorf("measurement date source column %q not found", sourceCol)
	}

	var max time.Time
	for _, cell := range f.Strings(sourceCol) {
		if d, ok := contracts.ParseDate(cell); ok && d.After(max) {
			max = d
		}
	}
	if max.IsZero() {
		return fmt.Errorf("no parseable dates in column %q", sourceCol)
	}

	cells := make([]string, f.NumRows())
	formatted := max.Format("2006-01-02")
	for i := range cells {
		cells[i] = formatted
	}
	return f.SetColumn(contracts.ColMeasurementDate, cells)
}

// joinCashAvailability sets cash_available_usd per row from an external
// date-keyed figure. Rows whose date has no entry keep their cell.
func joinCashAvailability(f *contracts.Frame, cashByDate map[string]float64) {
	if !f.HasColumn(contracts.ColMeasurementDate) {
		return
	}

	dates := f.Strings(contracts.ColMeasurementDate)
	existing := f.Strings(contracts.ColCashAvailable)
	cells := make([]string, f.NumRows())
	for i := range cells {
		if existing != nil {
			cells[i] = existing[i]
		}
		if d, ok := contracts.ParseDate(dates[i]); ok {
			if cash, found := cashByDate[d.Format("2006-01-02")]; found {
				cells[i] = strconv.FormatFloat(cash, 'f', -1, 64)
			}
		}
	}
	_ = f.SetColumn(contracts.ColCashAvailable, cells)
}
