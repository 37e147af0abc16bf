package pipeline

import (
	"go-election-merge/internal/model"

	"github.com/shopspring/decimal"
)

// Turnout returns ballots/electorate rounded to four places.
// ok is false when electorate is zero, in which case the ratio is zero.
func Turnout(ballots, electorate int64) (r model.Ratio, ok bool) {
	if electorate == 0 {
		return model.ZeroRatio, false
	}
	return model.NewRatio(ballots, electorate), true
}

// RelativeShare returns votes/valid rounded to four places.
// ok is false when valid is zero, in which case the ratio is zero.
func RelativeShare(votes, valid int64) (r model.Ratio, ok bool) {
	if valid == 0 {
		return model.ZeroRatio, false
	}
	return model.NewRatio(votes, valid), true
}

// Round rounds value to the given number of decimals, half away from zero.
// The float is first converted through its shortest decimal representation,
// so the result does not depend on platform float formatting.
func Round(value float64, decimals int32) float64 {
	return decimal.NewFromFloat(value).Round(decimals).InexactFloat64()
}
