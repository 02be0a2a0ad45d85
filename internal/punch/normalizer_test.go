package punch

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/punchlist-monitor/internal/domain"
	"github.com/ignite/punchlist-monitor/internal/sharepoint"
)

func testSchema() *sharepoint.FieldSchema {
	return sharepoint.NewFieldSchema("Topside", []sharepoint.Field{
		{InternalName: "Title", Title: "Punch No", Kind: sharepoint.KindText},
		{InternalName: "Status", Title: "Status", Kind: sharepoint.KindChoice},
		{InternalName: "Responsible", Title: "Petrobras Responsible", Kind: sharepoint.KindUser},
		{InternalName: "Watchers", Title: "Watchers", Kind: sharepoint.KindUserMulti},
		{InternalName: "TargetDate", Title: "Petrobras Target Date", Kind: sharepoint.KindDateTime},
		{InternalName: "Zones", Title: "Zone", Kind: sharepoint.KindMultiChoice},
		{InternalName: "Days", Title: "Days Since Date Cleared by KBR", Kind: sharepoint.KindNumber},
		{InternalName: "Remarks", Title: "Remarks", Kind: sharepoint.KindNote},
		{InternalName: "Accept", Title: "Accept? (Y/N)", Kind: sharepoint.KindBoolean},
	})
}

var columns = []string{
	"Punch No", "Status", "Petrobras Responsible", "Watchers", "Petrobras Target Date",
	"Zone", "Days Since Date Cleared by KBR", "Remarks", "Accept? (Y/N)", "Not In Schema",
}

func sampleRows() []sharepoint.RawRow {
	return []sharepoint.RawRow{
		{
			"Title":       "P-1",
			"Status":      "Pending PB Reply",
			"Responsible": map[string]any{"Title": "Ana"},
			"Watchers":    map[string]any{"results": []any{map[string]any{"Title": "Bia"}, map[string]any{"Title": "Caio"}}},
			"TargetDate":  "2020-01-01T03:00:00Z",
			"Zones":       map[string]any{"results": []any{"Z1", "Z2"}},
			"Days":        float64(12),
			"Remarks":     "#ERROR!",
			"Accept":      true,
		},
		{
			"Title":         "P-2",
			"ResponsibleId": float64(42),
			"WatchersId":    map[string]any{"results": []any{float64(1), float64(2)}},
			"TargetDate":    "not a date",
			"Days":          float64(2.5),
			"Remarks":       "None",
			"Accept":        false,
		},
		{
			"Title":       "P-3",
			"Responsible": map[string]any{"__deferred": map[string]any{"uri": "x"}},
			"Watchers":    map[string]any{"results": []any{map[string]any{"Title": "Bia"}, map[string]any{"Id": float64(9)}}},
			"TargetDate":  nil,
			"Remarks":     "nan",
		},
	}
}

func TestNormalize(t *testing.T) {
	table, missing := Normalize("Topside", sampleRows(), testSchema(), columns)

	assert.Equal(t, []string{"Not In Schema"}, missing)
	assert.Equal(t, columns, table.Columns)
	require.Len(t, table.Rows, 3)

	first := table.Map(table.Rows[0])
	assert.Equal(t, "P-1", first["Punch No"])
	assert.Equal(t, "Ana", first["Petrobras Responsible"])
	assert.Equal(t, "Bia; Caio", first["Watchers"])
	assert.Equal(t, "01/01/2020", first["Petrobras Target Date"])
	assert.Equal(t, "Z1; Z2", first["Zone"])
	assert.Equal(t, "12", first["Days Since Date Cleared by KBR"])
	assert.Equal(t, "", first["Remarks"])
	assert.Equal(t, "True", first["Accept? (Y/N)"])
	assert.Equal(t, "", first["Not In Schema"])

	second := table.Map(table.Rows[1])
	assert.Equal(t, "ID: 42", second["Petrobras Responsible"])
	assert.Equal(t, "ID: 1; ID: 2", second["Watchers"])
	assert.Equal(t, "", second["Petrobras Target Date"])
	assert.Equal(t, "2.5", second["Days Since Date Cleared by KBR"])
	assert.Equal(t, "", second["Remarks"])
	assert.Equal(t, "False", second["Accept? (Y/N)"])

	third := table.Map(table.Rows[2])
	assert.Equal(t, "", third["Petrobras Responsible"])
	assert.Equal(t, "Bia; ID: 9", third["Watchers"])
	assert.Equal(t, "", third["Petrobras Target Date"])
	assert.Equal(t, "", third["Remarks"])
}

func TestNormalizeEveryColumnPresent(t *testing.T) {
	table, _ := Normalize("Topside", sampleRows(), testSchema(), columns)
	for _, rec := range table.Rows {
		assert.Len(t, rec, len(columns))
		for _, v := range rec {
			assert.NotContains(t, []string{"NaT", "nan", "None", "<nil>", "map[]"}, v)
		}
	}
}

func TestNormalizeUnresolvedMarker(t *testing.T) {
	marker := regexp.MustCompile(`^ID: \d+$`)
	rows := []sharepoint.RawRow{{"ResponsibleId": float64(7)}, {"ResponsibleId": "8"}}
	table, _ := Normalize("Topside", rows, testSchema(), []string{"Petrobras Responsible"})
	for _, rec := range table.Rows {
		assert.Regexp(t, marker, rec[0])
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	rows := sampleRows()
	a, _ := Normalize("Topside", rows, testSchema(), columns)
	b, _ := Normalize("Topside", rows, testSchema(), columns)
	assert.Equal(t, a, b)
}

func TestNormalizeNilSchema(t *testing.T) {
	table, missing := Normalize("Topside", sampleRows(), nil, []string{"Status"})
	assert.Equal(t, []string{"Status"}, missing)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, "", table.Rows[0][0])
}

func TestFormatDate(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"2024-03-10T03:00:00Z", "10/03/2024"},
		{"2024-03-10T23:30:00-03:00", "11/03/2024"},
		{"2024-03-10T12:00:00", "10/03/2024"},
		{"2024-03-10", "10/03/2024"},
		{"10/03/2024", "10/03/2024"},
		{"NaT", ""},
		{"2024-13-45", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDate(tt.in), tt.in)
	}
}

func TestISOValueInTextColumnIsReformatted(t *testing.T) {
	rows := []sharepoint.RawRow{{"Remarks": "2023-05-01T00:00:00Z"}}
	table, _ := Normalize("Topside", rows, testSchema(), []string{"Remarks"})
	assert.Equal(t, "01/05/2023", table.Rows[0][0])
}

func TestRelationalVariants(t *testing.T) {
	assert.Equal(t, Single{Name: "Ana"}, Relational(sharepoint.RawRow{"R": map[string]any{"Title": "Ana"}}, "R"))
	assert.Equal(t, UnresolvedID{ID: 3}, Relational(sharepoint.RawRow{"RId": float64(3)}, "R"))
	assert.Equal(t, UnresolvedIDs{IDs: []int{3, 4}}, Relational(sharepoint.RawRow{"RId": map[string]any{"results": []any{float64(3), float64(4)}}}, "R"))
	assert.Equal(t, Empty{}, Relational(sharepoint.RawRow{"RId": map[string]any{"results": []any{}}}, "R"))
	assert.Equal(t, Empty{}, Relational(sharepoint.RawRow{}, "R"))
	assert.Equal(t, "ID: 3; ID: 4", UnresolvedIDs{IDs: []int{3, 4}}.Display())
}

func TestTextColumnsContainingDateLettersKeepValues(t *testing.T) {
	schema := sharepoint.NewFieldSchema("Topside", []sharepoint.Field{
		{InternalName: "LastUpdate", Title: "Last Update Comment", Kind: sharepoint.KindText},
		{InternalName: "Candidate", Title: "Candidate Solution", Kind: sharepoint.KindNote},
		{InternalName: "Target", Title: "Target", Kind: sharepoint.KindText},
	})
	rows := []sharepoint.RawRow{{
		"LastUpdate": "waiting vendor drawing",
		"Candidate":  "replace valve",
		"Target":     "2024-03-10",
	}}
	table, missing := Normalize("Topside", rows, schema, []string{"Last Update Comment", "Candidate Solution", "Target"})
	require.Empty(t, missing)
	assert.Equal(t, domain.Record{"waiting vendor drawing", "replace valve", "10/03/2024"}, table.Rows[0])
}

func TestIsDateColumn(t *testing.T) {
	assert.True(t, isDateColumn("Petrobras Target Date"))
	assert.True(t, isDateColumn("Date Cleared"))
	assert.False(t, isDateColumn("Last Update Comment"))
	assert.False(t, isDateColumn("Candidate Solution"))
	assert.False(t, isDateColumn("target date"))
}
