package ewf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHeaderTextRoundTrip(t *testing.T) {
	hv := &HeaderValues{
		CaseNumber:     "1",
		EvidenceNumber: "Item-1",
		Description:    "desc",
		ExaminerName:   "John",
		Notes:          "notes",
		AcquiredDate:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		SystemDate:     time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC),
		CompressionType: "b",
	}
	text := encodeHeaderText(hv, DateOrderMonthDay, 1)
	parsed, err := parseHeaderText(string(text))
	require.NoError(t, err)
	require.Equal(t, hv.CaseNumber, parsed.CaseNumber)
	require.Equal(t, hv.EvidenceNumber, parsed.EvidenceNumber)
	require.Equal(t, hv.Description, parsed.Description)
	require.Equal(t, hv.ExaminerName, parsed.ExaminerName)
	require.True(t, hv.AcquiredDate.Equal(parsed.AcquiredDate))
	require.True(t, hv.SystemDate.Equal(parsed.SystemDate))
}

func TestHeaderSectionRoundTripCompressed(t *testing.T) {
	hv := &HeaderValues{CaseNumber: "42", ExaminerName: "Jane"}
	variant := headerVariantTable[FormatEwf]
	payload, err := encodeHeaderSection(hv, DateOrderDayMonth, variant, false, CompressionBest)
	require.NoError(t, err)

	decoded, err := decodeHeaderSection(payload, false)
	require.NoError(t, err)
	require.Equal(t, "42", decoded.CaseNumber)
	require.Equal(t, "Jane", decoded.ExaminerName)
}

func TestFormatDateVersions(t *testing.T) {
	when := time.Date(2020, time.March, 4, 5, 6, 7, 0, time.UTC)
	v1 := formatDate(when, DateOrderMonthDay, 1)
	require.Equal(t, "2020 3 4 5 6 7", v1)

	v3 := formatDate(when, DateOrderMonthDay, 3)
	require.Equal(t, "1583298367", v3)

	roundTripped := parseDate(v3)
	require.True(t, when.Equal(roundTripped))
}

func TestHeaderVariantTableCoversAllFormats(t *testing.T) {
	all := []FormatVariant{
		FormatEwf, FormatEncase1, FormatEncase2, FormatEncase3, FormatEncase4,
		FormatEncase5, FormatEncase6, FormatLinen5, FormatLinen6, FormatFtk,
		FormatSmart, FormatEwfx,
	}
	for _, f := range all {
		_, ok := headerVariantTable[f]
		require.True(t, ok, "missing variant table entry for %v", f)
	}
}
