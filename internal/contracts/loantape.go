package contracts

// Canonical loan-tape column names. Every reader and reshaper normalizes
// vendor exports into this schema before KPI computation.
const (
	ColLoanID          = "loan_id"
	ColMeasurementDate = "measurement_date"
	ColTotalReceivable = "total_receivable_usd"
	ColTotalEligible   = "total_eligible_usd"
	ColCashAvailable   = "cash_available_usd"
	ColSegment         = "segment"

	ColDPD0to7    = "dpd_0_7_usd"
	ColDPD7to30   = "dpd_7_30_usd"
	ColDPD30to60  = "dpd_30_60_usd"
	ColDPD60to90  = "dpd_60_90_usd"
	ColDPD90Plus  = "dpd_90_plus_usd"

	ColInterestRate     = "interest_rate"
	ColPrincipalBalance = "principal_balance"
	ColLoanAmount       = "loan_amount"
	ColAppraisedValue   = "appraised_value"
	ColBorrowerIncome   = "borrower_income"
	ColMonthlyDebt      = "monthly_debt"
	ColLoanStatus       = "loan_status"

	ColDisbursementDate = "disbursement_date"
	ColMaturityDate     = "maturity_date"
	ColDPD              = "dpd"
)

// DPDBucketColumns lists the bucket balance columns in ascending order.
func DPDBucketColumns() []string {
	return []string{ColDPD0to7, ColDPD7to30, ColDPD30to60, ColDPD60to90, ColDPD90Plus}
}

// DPDBucketColumn assigns a days-past-due value to its bucket column.
// Intervals are inclusive at the lower bound: dpd=30 lands in 30-60,
// dpd=7 lands in 7-30.
func DPDBucketColumn(days float64) string {
	switch {
	case days >= 90:
		return ColDPD90Plus
	case days >= 60:
		return ColDPD60to90
	case days >= 30:
		return ColDPD30to60
	case days >= 7:
		return ColDPD7to30
	default:
		return ColDPD0to7
	}
}

// RequiredColumns is the minimum schema for KPI computation. DPD bucket
// columns are optional but required for the PAR family of KPIs.
func RequiredColumns() []string {
	return []string{
		ColLoanID,
		ColTotalReceivable,
		ColTotalEligible,
		ColCashAvailable,
		ColMeasurementDate,
	}
}
