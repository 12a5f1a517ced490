package govern_test

import (
	"context"
	"encoding/csv"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldstone/gdbgov/internal/gdb"
	"github.com/fieldstone/gdbgov/internal/gdbtest"
	"github.com/fieldstone/gdbgov/internal/govern"
	"github.com/fieldstone/gdbgov/internal/guid"
)

const (
	keyDup   = guid.Key("11111111-2222-3333-4444-555555555555")
	keyOther = guid.Key("AAAAAAAA-BBBB-CCCC-DDDD-EEEEEEEEEEEE")
	keyNew1  = guid.Key("99999999-0000-1111-2222-333333333333")
	keyNew2  = guid.Key("88888888-0000-1111-2222-333333333333")
	keyNew3  = guid.Key("77777777-0000-1111-2222-333333333333")
	keyUniq  = guid.Key("BBBBBBBB-CCCC-DDDD-EEEE-FFFFFFFFFFFF")
)

var fixedNow = func() time.Time {
	return time.Date(2025, 9, 14, 12, 0, 0, 0, time.UTC)
}

const fixedTS = "20250914_120000"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// seedHydrants builds the canonical dedupe fixture: one duplicate group
// spanning a protected GlobalID anchor, a governed text field, and a
// GUID field, plus one unique identifier left alone.
func seedHydrants(t *testing.T, ws *gdb.Workspace) {
	t.Helper()
	gdbtest.CreateDataset(t, ws, "hydrants", []gdbtest.FieldSpec{
		{Name: "OBJECTID", Alias: "Object ID", Type: gdb.TypeOID},
		{Name: "GlobalID", Alias: "Global ID", Type: gdb.TypeGlobalID, Length: 38},
		{Name: "FACILITYID", Alias: "Primary Key Identifier", Type: gdb.TypeText, Length: 64},
		{Name: "ASSET_GUID", Alias: "Asset GUID", Type: gdb.TypeGUID, Length: 38},
	}, []gdbtest.RowSpec{
		{
			"GlobalID":   "{" + string(keyDup) + "}",
			"FACILITYID": string(keyDup),
			"ASSET_GUID": string(keyUniq),
		},
		{
			"GlobalID":   "{" + string(keyOther) + "}",
			"FACILITYID": "TBD",
			"ASSET_GUID": "11111111222233334444555555555555",
		},
	})
}

// newWorkspace opens a workspace at a caller-visible path, seeds it,
// and closes the seeding handle so the run owns the file.
func newWorkspace(t *testing.T, seed func(*testing.T, *gdb.Workspace)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workspace.gdb")
	ws, err := gdb.Open(path)
	require.NoError(t, err)
	seed(t, ws)
	require.NoError(t, ws.Close())
	return path
}

func writeMap(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "map.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const hydrantsMap = `
name: Utility Network
layers:
  - name: Water
    layers:
      - name: Hydrants
        dataset: hydrants
`

// readCell reads one stored value straight from the workspace file.
func readCell(t *testing.T, path, dataset, field string, rowID int64) string {
	t.Helper()
	ws, err := gdb.Open(path)
	require.NoError(t, err)
	defer ws.Close()

	var v string
	query := fmt.Sprintf("SELECT %q FROM %q WHERE objectid = ?", field, dataset)
	require.NoError(t, ws.DB().QueryRow(query, rowID).Scan(&v))
	return v
}

// readCSV parses a report file and returns its records minus the
// header.
func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records, "report %s has no header", path)
	return records[1:]
}

func TestRun_DedupeRewritesDuplicates(t *testing.T) {
	wsPath := newWorkspace(t, seedHydrants)
	outDir := t.TempDir()

	summary, err := govern.Run(context.Background(), govern.Config{
		Mode:          govern.ModeDedupe,
		WorkspacePath: wsPath,
		MapPath:       writeMap(t, hydrantsMap),
		OutDir:        outDir,
		Generator:     guid.NewFixedGenerator(keyNew1, keyNew2),
		Now:           fixedNow,
		Logger:        quietLogger(),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Datasets)
	assert.Equal(t, 1, summary.DuplicateGroups)
	assert.Equal(t, 2, summary.Updated)
	assert.Zero(t, summary.Errors)

	// The text field rewrites before the GUID field, and the protected
	// GlobalID anchor never moves.
	assert.Equal(t, string(keyNew1), readCell(t, wsPath, "hydrants", "FACILITYID", 1))
	assert.Equal(t, string(keyNew2), readCell(t, wsPath, "hydrants", "ASSET_GUID", 2))
	assert.Equal(t, "{"+string(keyDup)+"}", readCell(t, wsPath, "hydrants", "GlobalID", 1))
	assert.Equal(t, string(keyUniq), readCell(t, wsPath, "hydrants", "ASSET_GUID", 1))

	updated := readCSV(t, summary.Reports.Updated)
	require.Len(t, updated, 2)
	assert.Equal(t, []string{"hydrants", "1", "FACILITYID", string(keyDup), string(keyNew1)}, updated[0])

	assert.Contains(t, summary.Reports.Log, fixedTS)
	_, err = os.Stat(summary.Reports.Log)
	assert.NoError(t, err)
}

func TestRun_DedupeDryRunLeavesDataUntouched(t *testing.T) {
	wsPath := newWorkspace(t, seedHydrants)

	summary, err := govern.Run(context.Background(), govern.Config{
		Mode:          govern.ModeDedupe,
		WorkspacePath: wsPath,
		MapPath:       writeMap(t, hydrantsMap),
		OutDir:        t.TempDir(),
		DryRun:        true,
		Generator:     guid.NewFixedGenerator(keyNew1, keyNew2),
		Now:           fixedNow,
		Logger:        quietLogger(),
	})
	require.NoError(t, err)

	assert.Zero(t, summary.Updated)
	assert.Equal(t, string(keyDup), readCell(t, wsPath, "hydrants", "FACILITYID", 1))
	assert.Equal(t, "11111111222233334444555555555555", readCell(t, wsPath, "hydrants", "ASSET_GUID", 2))

	skipped := readCSV(t, summary.Reports.Skipped)
	var dryRuns int
	for _, rec := range skipped {
		if rec[3] == "dry run" {
			dryRuns++
		}
	}
	assert.Equal(t, 2, dryRuns)
	assert.Empty(t, readCSV(t, summary.Reports.Updated))
}

func TestRun_DedupeSkipsLockedDataset(t *testing.T) {
	wsPath := newWorkspace(t, func(t *testing.T, ws *gdb.Workspace) {
		seedHydrants(t, ws)
		gdbtest.HoldForeignLock(t, ws, "hydrants", "other-session")
	})

	summary, err := govern.Run(context.Background(), govern.Config{
		Mode:          govern.ModeDedupe,
		WorkspacePath: wsPath,
		MapPath:       writeMap(t, hydrantsMap),
		OutDir:        t.TempDir(),
		Generator:     guid.NewFixedGenerator(keyNew1, keyNew2),
		Now:           fixedNow,
		Logger:        quietLogger(),
	})
	require.NoError(t, err)

	assert.Zero(t, summary.Updated)
	assert.Equal(t, string(keyDup), readCell(t, wsPath, "hydrants", "FACILITYID", 1))

	skipped := readCSV(t, summary.Reports.Skipped)
	var lockSkips int
	for _, rec := range skipped {
		if rec[3] == "schema lock" {
			lockSkips++
		}
	}
	assert.Equal(t, 2, lockSkips, "every planned edit reports the lock")
}

func TestRun_AssignFillsMissingIdentifiers(t *testing.T) {
	wsPath := newWorkspace(t, func(t *testing.T, ws *gdb.Workspace) {
		gdbtest.CreateDataset(t, ws, "valves", []gdbtest.FieldSpec{
			{Name: "OBJECTID", Alias: "Object ID", Type: gdb.TypeOID},
			{Name: "FACILITYID", Alias: "Primary Key Identifier", Type: gdb.TypeText, Length: 64},
		}, []gdbtest.RowSpec{
			{"FACILITYID": ""},
			{"FACILITYID": "TBD"},
			{"FACILITYID": string(keyOther)},
		})
		gdbtest.CreateDataset(t, ws, "tanks", []gdbtest.FieldSpec{
			{Name: "OBJECTID", Alias: "Object ID", Type: gdb.TypeOID},
			{Name: "TANKID", Alias: "Primary Key Identifier (Legacy)", Type: gdb.TypeText, Length: 64},
		}, []gdbtest.RowSpec{
			{"TANKID": "N/A"},
		})
		gdbtest.CreateDataset(t, ws, "pipes", []gdbtest.FieldSpec{
			{Name: "OBJECTID", Alias: "Object ID", Type: gdb.TypeOID},
			{Name: "PKID_A", Alias: "Primary Key Identifier", Type: gdb.TypeText, Length: 64},
			{Name: "PKID_B", Alias: "Primary Key Identifier", Type: gdb.TypeText, Length: 64},
		}, []gdbtest.RowSpec{
			{"PKID_A": "", "PKID_B": ""},
		})
		gdbtest.CreateDataset(t, ws, "pumps", []gdbtest.FieldSpec{
			{Name: "OBJECTID", Alias: "Object ID", Type: gdb.TypeOID},
			{Name: "NOTES", Alias: "Inspection Notes", Type: gdb.TypeText, Length: 255},
		}, []gdbtest.RowSpec{
			{"NOTES": ""},
		})
		gdbtest.CreateDataset(t, ws, "meters", []gdbtest.FieldSpec{
			{Name: "OBJECTID", Alias: "Object ID", Type: gdb.TypeOID},
			{Name: "SHORTID", Alias: "Primary Key Identifier", Type: gdb.TypeText, Length: 20},
		}, []gdbtest.RowSpec{
			{"SHORTID": ""},
		})
	})

	// The first generated key collides with the identifier already
	// stored in valves row 3; regeneration must step past it.
	gen := guid.NewFixedGenerator(keyOther, keyNew1, keyNew2, keyNew3)

	summary, err := govern.Run(context.Background(), govern.Config{
		Mode:          govern.ModeAssign,
		WorkspacePath: wsPath,
		MapPath: writeMap(t, `
name: Utility Network
layers:
  - name: Valves
    dataset: valves
  - name: Tanks
    dataset: tanks
  - name: Pipes
    dataset: pipes
  - name: Pumps
    dataset: pumps
  - name: Meters
    dataset: meters
`),
		OutDir:    t.TempDir(),
		Generator: gen,
		Now:       fixedNow,
		Logger:    quietLogger(),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Updated)
	assert.Equal(t, string(keyNew1), readCell(t, wsPath, "valves", "FACILITYID", 1))
	assert.Equal(t, string(keyNew2), readCell(t, wsPath, "valves", "FACILITYID", 2))
	assert.Equal(t, string(keyOther), readCell(t, wsPath, "valves", "FACILITYID", 3))

	// The fallback alias match on tanks resolves too, down its own
	// resolution path.
	assert.Equal(t, string(keyNew3), readCell(t, wsPath, "tanks", "TANKID", 1))

	reasons := make(map[string]string)
	for _, rec := range readCSV(t, summary.Reports.Skipped) {
		reasons[rec[0]] = rec[3]
	}
	assert.Equal(t, "ambiguous alias", reasons["pipes"])
	assert.Equal(t, "alias not found", reasons["pumps"])
	assert.Equal(t, "text field too short for identifier", reasons["meters"])
}

func TestRun_CalcFillsPlaceholders(t *testing.T) {
	wsPath := newWorkspace(t, func(t *testing.T, ws *gdb.Workspace) {
		gdbtest.CreateDataset(t, ws, "valves", []gdbtest.FieldSpec{
			{Name: "OBJECTID", Alias: "Object ID", Type: gdb.TypeOID},
			{Name: "FACILITYID", Alias: "Primary Key Identifier", Type: gdb.TypeText, Length: 64},
		}, []gdbtest.RowSpec{
			{"FACILITYID": "UNKNOWN"},
			{"FACILITYID": string(keyOther)},
		})
	})

	policyDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(policyDir, "policy.cue"), []byte(`
policy: {
	fillValue: "SEE SUPERVISOR"
}
`), 0o644))

	summary, err := govern.Run(context.Background(), govern.Config{
		Mode:          govern.ModeCalc,
		WorkspacePath: wsPath,
		MapPath: writeMap(t, `
name: Utility Network
layers:
  - name: Valves
    dataset: valves
`),
		PolicyDir: policyDir,
		OutDir:    t.TempDir(),
		Now:       fixedNow,
		Logger:    quietLogger(),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, "SEE SUPERVISOR", readCell(t, wsPath, "valves", "FACILITYID", 1))
	assert.Equal(t, string(keyOther), readCell(t, wsPath, "valves", "FACILITYID", 2))
}

func TestRun_CalcWithoutFillValueIsFatal(t *testing.T) {
	_, err := govern.Run(context.Background(), govern.Config{
		Mode:          govern.ModeCalc,
		WorkspacePath: "ignored",
		MapPath:       "ignored",
		Now:           fixedNow,
		Logger:        quietLogger(),
	})
	require.Error(t, err)
	require.True(t, govern.IsFatal(err))

	var re *govern.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, govern.ErrCodePolicyInvalid, re.Code)
}

func TestRun_ScanReportsWithoutMutating(t *testing.T) {
	wsPath := newWorkspace(t, func(t *testing.T, ws *gdb.Workspace) {
		seedHydrants(t, ws)
		gdbtest.CreateDataset(t, ws, "zones", []gdbtest.FieldSpec{
			{Name: "OBJECTID", Alias: "Object ID", Type: gdb.TypeOID},
			{Name: "ZONE_GUID", Alias: "Zone GUID", Type: gdb.TypeGUID, Length: 38},
		}, []gdbtest.RowSpec{
			{"ZONE_GUID": string(keyDup)},
		})
	})

	summary, err := govern.Run(context.Background(), govern.Config{
		Mode:          govern.ModeScan,
		WorkspacePath: wsPath,
		MapPath: writeMap(t, `
name: Utility Network
layers:
  - name: Hydrants
    dataset: hydrants
  - name: Pressure Zones
    dataset: zones
    source: service
`),
		OutDir: t.TempDir(),
		Now:    fixedNow,
		Logger: quietLogger(),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Datasets)
	assert.Equal(t, 1, summary.ReadOnly)
	assert.Equal(t, 1, summary.DuplicateGroups)
	assert.Zero(t, summary.Updated)

	// Read-only audit: nothing written back.
	assert.Equal(t, string(keyDup), readCell(t, wsPath, "hydrants", "FACILITYID", 1))

	occurrences := readCSV(t, summary.OccurrencesCSV)
	// hydrants: GlobalID x2, FACILITYID r1, ASSET_GUID x2; zones: r1.
	assert.Len(t, occurrences, 6)
	for _, rec := range occurrences {
		if rec[0] == "zones" {
			assert.Equal(t, string(keyDup), rec[3], "normalized form recorded")
		}
	}

	coverage := readCSV(t, summary.CoverageCSV)
	require.Len(t, coverage, 2)
	assert.Equal(t, "hydrants", coverage[0][0])
	assert.Equal(t, "GlobalID;FACILITYID;ASSET_GUID", coverage[0][2])
}

func TestRun_MissingMapIsFatal(t *testing.T) {
	_, err := govern.Run(context.Background(), govern.Config{
		Mode:          govern.ModeScan,
		WorkspacePath: filepath.Join(t.TempDir(), "workspace.gdb"),
		MapPath:       filepath.Join(t.TempDir(), "nope.yaml"),
		Now:           fixedNow,
		Logger:        quietLogger(),
	})
	require.Error(t, err)

	var re *govern.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, govern.ErrCodeWorkspaceUnavailable, re.Code)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestRun_MissingPolicyDirIsFatal(t *testing.T) {
	_, err := govern.Run(context.Background(), govern.Config{
		Mode:          govern.ModeDedupe,
		WorkspacePath: "ignored",
		MapPath:       "ignored",
		PolicyDir:     filepath.Join(t.TempDir(), "absent"),
		Now:           fixedNow,
		Logger:        quietLogger(),
	})
	require.Error(t, err)

	var re *govern.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, govern.ErrCodePolicyInvalid, re.Code)
}

func TestRun_ReportNamesCarryPrefixAndTimestamp(t *testing.T) {
	wsPath := newWorkspace(t, seedHydrants)
	outDir := t.TempDir()

	summary, err := govern.Run(context.Background(), govern.Config{
		Mode:          govern.ModeScan,
		WorkspacePath: wsPath,
		MapPath:       writeMap(t, hydrantsMap),
		OutDir:        outDir,
		Prefix:        "audit",
		Now:           fixedNow,
		Logger:        quietLogger(),
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(outDir, "audit_updated_"+fixedTS+".csv"), summary.Reports.Updated)
	assert.Equal(t, filepath.Join(outDir, "audit_skipped_"+fixedTS+".csv"), summary.Reports.Skipped)
	assert.Equal(t, filepath.Join(outDir, "audit_error_"+fixedTS+".csv"), summary.Reports.Errors)
	assert.Equal(t, filepath.Join(outDir, "audit_"+fixedTS+".log"), summary.Reports.Log)
	assert.Equal(t, filepath.Join(outDir, "audit_occurrences_"+fixedTS+".csv"), summary.OccurrencesCSV)
	assert.Equal(t, filepath.Join(outDir, "audit_coverage_"+fixedTS+".csv"), summary.CoverageCSV)
}
