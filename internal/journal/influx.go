package journal

import (
	"context"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/shopspring/decimal"

	"github.com/deltavault/position-engine/internal/model"
)

// Measurement is the InfluxDB measurement plan points are written to.
const Measurement = "dnv_plan"

// weiDecimals is the scale of every wei amount in a plan.
const weiDecimals = 18

// InfluxJournal writes one point per leg through a non-blocking write API.
type InfluxJournal struct {
	outbound api.WriteAPI
}

// NewInfluxJournal wraps an InfluxDB write API.
func NewInfluxJournal(outbound api.WriteAPI) *InfluxJournal {
	return &InfluxJournal{outbound: outbound}
}

func (j *InfluxJournal) Record(_ context.Context, p *model.PlanRecord) error {
	for _, point := range planPoints(p) {
		j.outbound.WritePoint(point)
	}
	return nil
}

func planPoints(p *model.PlanRecord) []*write.Point {
	number, suffix := humanize.ComputeSI(toFloat(p.EquityDelta.Abs()))
	size := humanize.Ftoa(number) + suffix

	points := make([]*write.Point, 0, 2)
	for _, leg := range []model.LegPlan{p.Stable, p.Asset} {
		tags := map[string]string{
			"vault":    p.VaultSymbol,
			"kind":     p.Kind,
			"leg":      leg.Leg,
			"leverage": strconv.FormatInt(p.Leverage, 10) + "x",
			"size":     size,
		}
		fields := map[string]interface{}{
			"principal":       toFloat(leg.Principal),
			"farming":         toFloat(leg.Farming),
			"borrow":          toFloat(leg.Borrow),
			"delta_equity":    toFloat(leg.DeltaEquityWithSlippage),
			"delta_debt":      toFloat(leg.DeltaDebtWithSlippage),
			"lp_to_liquidate": toFloat(leg.LpToLiquidate),
			"expected_equity": toFloat(leg.ExpectedEquity),
			"expected_debt":   toFloat(leg.ExpectedDebt),
		}
		points = append(points, write.NewPoint(Measurement, tags, fields, p.CreatedAt))
	}
	return points
}

// toFloat converts a wei amount to whole units. Lossy; dashboards only.
func toFloat(wei decimal.Decimal) float64 {
	return wei.Shift(-weiDecimals).InexactFloat64()
}
