package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etdata/meterflow/internal/series"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "meterflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertHousehold(t *testing.T) {
	s := openTestStore(t)

	id1, err := s.UpsertHousehold("acme", "hh1")
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	id2, err := s.UpsertHousehold("acme", "hh1")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	id3, err := s.UpsertHousehold("acme", "hh2")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestFindHousehold(t *testing.T) {
	s := openTestStore(t)

	id, err := s.UpsertHousehold("acme", "hh1")
	require.NoError(t, err)

	found, err := s.FindHousehold("acme", "hh1")
	require.NoError(t, err)
	assert.Equal(t, id, found)

	_, err = s.FindHousehold("acme", "nope")
	assert.ErrorContains(t, err, "not found")
}

func TestSaveLoadTable(t *testing.T) {
	s := openTestStore(t)
	id, err := s.UpsertHousehold("acme", "hh1")
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tbl := series.NewTable([]time.Time{base, base.Add(5 * time.Minute)})
	tbl.SetColumn("GasDelivered", []series.Value{series.V(100), series.NA})
	tbl.SetColumn("GasDeliveredDiff", []series.Value{series.V(0), series.NA})

	require.NoError(t, s.SaveTable(id, tbl))

	back, err := s.LoadTable(id)
	require.NoError(t, err)
	require.Equal(t, 2, back.Len())
	assert.Equal(t, tbl.Times, back.Times)
	// Unknown cells survive the round trip as unknown, not as zero.
	assert.Equal(t, tbl.Column("GasDelivered"), back.Column("GasDelivered"))
	assert.Equal(t, tbl.Column("GasDeliveredDiff"), back.Column("GasDeliveredDiff"))

	// Saving again replaces rather than accumulates.
	require.NoError(t, s.SaveTable(id, tbl))
	back, err = s.LoadTable(id)
	require.NoError(t, err)
	assert.Equal(t, 2, back.Len())
}

func TestFindingsAndFleetSummary(t *testing.T) {
	s := openTestStore(t)
	run, err := s.StartRun()
	require.NoError(t, err)

	hh1, err := s.UpsertHousehold("acme", "hh1")
	require.NoError(t, err)
	hh2, err := s.UpsertHousehold("acme", "hh2")
	require.NoError(t, err)

	require.NoError(t, s.SaveFindings(run.ID, hh1, []Finding{
		{Name: "GasDelivered_no_negative_diff", Result: series.True},
		{Name: "GasDelivered_coverage", Result: series.True, Detail: "0.950000"},
	}))
	require.NoError(t, s.SaveFindings(run.ID, hh2, []Finding{
		{Name: "GasDelivered_no_negative_diff", Result: series.False},
		{Name: "GasDelivered_coverage", Result: series.Unknown, Detail: "0.500000"},
	}))

	summary, err := s.FleetSummary(run.ID)
	require.NoError(t, err)
	require.Len(t, summary, 2)

	byCheck := make(map[string]CheckSummary, len(summary))
	for _, c := range summary {
		byCheck[c.Check] = c
	}
	nn := byCheck["GasDelivered_no_negative_diff"]
	assert.Equal(t, 1, nn.Passed)
	assert.Equal(t, 1, nn.Failed)
	assert.Equal(t, 0, nn.Unknown)
	cov := byCheck["GasDelivered_coverage"]
	assert.Equal(t, 1, cov.Unknown)
}

func TestCoverageByHousehold(t *testing.T) {
	s := openTestStore(t)
	run, err := s.StartRun()
	require.NoError(t, err)
	hh1, err := s.UpsertHousehold("acme", "hh1")
	require.NoError(t, err)

	require.NoError(t, s.SaveFindings(run.ID, hh1, []Finding{
		{Name: "GasDelivered_coverage", Result: series.True, Detail: "0.950000"},
		{Name: "GasDelivered_no_negative_diff", Result: series.True},
	}))

	cov, err := s.CoverageByHousehold(run.ID)
	require.NoError(t, err)
	require.Len(t, cov, 1)
	assert.Equal(t, hh1, cov[0].HouseholdID)
	assert.Equal(t, "hh1", cov[0].Ref)
	assert.Equal(t, "GasDelivered", cov[0].Column)
	assert.InDelta(t, 0.95, cov[0].Coverage, 1e-9)
}
