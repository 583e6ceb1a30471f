package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deltavault/position-engine/internal/model"
)

func ether(s string) decimal.Decimal {
	return decimal.RequireFromString(s).Shift(18)
}

func samplePlan(id string) *model.PlanRecord {
	return &model.PlanRecord{
		ID:          id,
		VaultSymbol: "L3x-BUSDBNB-PCS1",
		Kind:        model.KindOpen,
		Leverage:    3,
		EquityDelta: ether("1000"),
		Stable:      model.LegPlan{Leg: model.LegStable, Principal: ether("125"), Farming: ether("125"), Borrow: ether("500")},
		Asset:       model.LegPlan{Leg: model.LegAsset, Principal: ether("375"), Farming: ether("375"), Borrow: ether("1500")},
		CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFileJournal_AppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans", "journal.jsonl")
	j, err := NewFileJournal(path)
	require.NoError(t, err)

	require.NoError(t, j.Record(context.Background(), samplePlan("p1")))
	require.NoError(t, j.Record(context.Background(), samplePlan("p2")))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var p model.PlanRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &p))
		ids = append(ids, p.ID)
		assert.True(t, p.Stable.Borrow.Equal(ether("500")), "wei amounts survive the round trip")
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"p1", "p2"}, ids)
}

type failingJournal struct{ calls int }

func (f *failingJournal) Record(context.Context, *model.PlanRecord) error {
	f.calls++
	return errors.New("boom")
}

type countingJournal struct{ calls int }

func (c *countingJournal) Record(context.Context, *model.PlanRecord) error {
	c.calls++
	return nil
}

func TestMulti_TriesEveryJournal(t *testing.T) {
	bad := &failingJournal{}
	good := &countingJournal{}

	err := Multi{bad, good, Nop{}}.Record(context.Background(), samplePlan("p1"))
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, 1, good.calls)
}

func TestPlanPoints(t *testing.T) {
	points := planPoints(samplePlan("p1"))
	require.Len(t, points, 2)

	for i, leg := range []string{model.LegStable, model.LegAsset} {
		p := points[i]
		assert.Equal(t, Measurement, p.Name())

		tags := map[string]string{}
		for _, tag := range p.TagList() {
			tags[tag.Key] = tag.Value
		}
		assert.Equal(t, leg, tags["leg"])
		assert.Equal(t, "L3x-BUSDBNB-PCS1", tags["vault"])
		assert.Equal(t, "3x", tags["leverage"])
		assert.Equal(t, "1k", tags["size"])
	}

	fields := map[string]interface{}{}
	for _, f := range points[0].FieldList() {
		fields[f.Key] = f.Value
	}
	assert.InDelta(t, 500.0, fields["borrow"], 1e-9)
	assert.InDelta(t, 125.0, fields["principal"], 1e-9)
}
