package ingest

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etdata/meterflow/internal/catalog"
	"github.com/etdata/meterflow/internal/fsutil"
	"github.com/etdata/meterflow/internal/series"
)

const sampleCSV = `ReadingDate,GasDelivered,TempRoom
2024-01-01T00:00:00Z,100.5,20
2024-01-01T00:05:00Z,,20.5
2024-01-01T00:10:00Z,101,NA
`

func TestRead(t *testing.T) {
	tbl, err := Read(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), tbl.Times[0])
	assert.Equal(t, []string{"GasDelivered", "TempRoom"}, tbl.Names)

	gas := tbl.Column("GasDelivered")
	assert.Equal(t, series.V(100.5), gas[0])
	assert.Equal(t, series.NA, gas[1])
	assert.Equal(t, series.V(101), gas[2])
	assert.Equal(t, series.NA, tbl.Column("TempRoom")[2])
}

func TestReadTimeLayouts(t *testing.T) {
	tbl, err := Read(strings.NewReader(
		"ReadingDate,GasDelivered\n2024-01-01 12:30:00,1\n"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC), tbl.Times[0])
}

func TestReadErrors(t *testing.T) {
	t.Run("missing timestamp column", func(t *testing.T) {
		_, err := Read(strings.NewReader("GasDelivered\n1\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ReadingDate")
	})

	t.Run("unparseable timestamp", func(t *testing.T) {
		_, err := Read(strings.NewReader("ReadingDate,GasDelivered\nyesterday,1\n"))
		assert.ErrorContains(t, err, "unparseable timestamp")
	})

	t.Run("non-numeric cell", func(t *testing.T) {
		_, err := Read(strings.NewReader("ReadingDate,GasDelivered\n2024-01-01T00:00:00Z,lots\n"))
		assert.ErrorContains(t, err, "non-numeric")
	})
}

func TestWriteWithFlags(t *testing.T) {
	tbl, err := Read(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	tbl.SetFlag("validate_300sec", []series.Tri{series.Unknown, series.True, series.True})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, tbl))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "ReadingDate,GasDelivered,TempRoom,validate_300sec", lines[0])
	assert.Equal(t, "2024-01-01T00:00:00Z,100.5,20,", lines[1])
	assert.Equal(t, "2024-01-01T00:05:00Z,,20.5,true", lines[2])
}

func TestWriteRoundTrip(t *testing.T) {
	tbl, err := Read(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, tbl))

	back, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, tbl.Times, back.Times)
	assert.Equal(t, tbl.Column("GasDelivered"), back.Column("GasDelivered"))
	assert.Equal(t, tbl.Column("TempRoom"), back.Column("TempRoom"))
}

func TestReadWriteCSVMemoryFS(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("hh1.csv", []byte(sampleCSV), 0644))

	tbl, err := ReadCSV(fsys, "hh1.csv")
	require.NoError(t, err)

	require.NoError(t, WriteCSV(fsys, "out/hh1.csv", tbl))
	back, err := ReadCSV(fsys, "out/hh1.csv")
	require.NoError(t, err)
	assert.Equal(t, tbl.Column("GasDelivered"), back.Column("GasDelivered"))

	_, err = ReadCSV(fsys, "missing.csv")
	assert.Error(t, err)
}

func TestCanonicalize(t *testing.T) {
	cat := catalog.Default()

	t.Run("reorders to catalog order with extras last", func(t *testing.T) {
		tbl, err := Read(strings.NewReader(
			"ReadingDate,Custom,TempRoom,GasDelivered\n2024-01-01T00:00:00Z,1,20,100\n"))
		require.NoError(t, err)

		Canonicalize(tbl, cat, false, "hh1")

		// GasDelivered precedes TempRoom in the catalog; unknown columns
		// keep their data but move to the back.
		assert.Equal(t, []string{"GasDelivered", "TempRoom", "Custom"}, tbl.Names)
		assert.Equal(t, series.V(1), tbl.Column("Custom")[0])
	})

	t.Run("addMissing fills catalog variables, not delta columns", func(t *testing.T) {
		tbl, err := Read(strings.NewReader(
			"ReadingDate,GasDelivered\n2024-01-01T00:00:00Z,100\n"))
		require.NoError(t, err)

		Canonicalize(tbl, cat, true, "hh1")

		assert.True(t, tbl.HasColumn("TempRoom"))
		assert.Equal(t, series.NA, tbl.Column("TempRoom")[0])
		// Derived columns are the reconciler's to create.
		assert.False(t, tbl.HasColumn("GasDeliveredDiff"))
	})
}
