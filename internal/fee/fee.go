package fee

import (
	"time"

	"github.com/and161185/checkout/internal/model"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Fee + Net == Gross, both inside [0, Gross]. Clamped reports a plan that
// had to be cut to fit.
func Compute(gross decimal.Decimal, method model.Method, plan model.FeePlan) model.FeeBreakdown {
	gross = gross.Round(2)
	rate := plan.For(method)

	amount := gross.Mul(rate.Percentual).Div(hundred).Add(rate.Fixed).Round(2)

	clamped := false
	if amount.IsNegative() {
		amount = decimal.Zero
		clamped = true
	}
	if amount.GreaterThan(gross) {
		amount = gross
		clamped = true
	}

	return model.FeeBreakdown{
		Gross:      gross,
		Fee:        amount,
		Net:        gross.Sub(amount),
		Percentual: rate.Percentual,
		Fixed:      rate.Fixed,
		Clamped:    clamped,
	}
}

func ReleaseAt(paidAt time.Time, method model.Method, plan model.FeePlan) time.Time {
	return paidAt.AddDate(0, 0, plan.For(method).ReleaseDelayDays)
}
