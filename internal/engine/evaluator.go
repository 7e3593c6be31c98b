package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"dexflow.io/internal/model"
)

// equalityTolerance 等值判断的相对容差 0.1%
var equalityTolerance = decimal.NewFromFloat(0.001)

// EvaluatePrice decides whether a price trigger fires at the current price.
// Absent or empty conditions evaluate to true (unconditional trigger). An
// unrecognized operator never fires and is reported as an error so the caller
// can log it.
func EvaluatePrice(cond *model.Conditions, current decimal.Decimal) (bool, error) {
	if cond == nil || !cond.HasPriceTrigger() {
		return true, nil
	}

	target := cond.TargetPrice
	switch cond.Operator {
	case ">":
		return current.GreaterThan(target), nil
	case "<":
		return current.LessThan(target), nil
	case ">=":
		return current.GreaterThanOrEqual(target), nil
	case "<=":
		return current.LessThanOrEqual(target), nil
	case "=", "==":
		// |current - target| < target * 0.1%
		return current.Sub(target).Abs().LessThan(target.Mul(equalityTolerance)), nil
	default:
		return false, fmt.Errorf("unrecognized operator %q", cond.Operator)
	}
}
