package relay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRouterDeterminism(t *testing.T) {
	t.Parallel()

	router := NewRouter(RouterConfig{
		ReportURL:    "https://hooks.example.com/report",
		InvoiceURL:   "https://hooks.example.com/invoice",
		ReportMarker: "grandtotal",
	})

	tests := []struct {
		fileName  string
		wantURL   string
		wantLabel string
	}{
		{"GrandTotalReport_2024.pdf", "https://hooks.example.com/report", "grand_total_report"},
		{"Invoice_2024.pdf", "https://hooks.example.com/invoice", "invoice"},
		{"grandtotalreport.PDF", "https://hooks.example.com/report", "grand_total_report"},
		{"GRANDTOTAL-q3.pdf", "https://hooks.example.com/report", "grand_total_report"},
		{"statement.pdf", "https://hooks.example.com/invoice", "invoice"},
		{"", "https://hooks.example.com/invoice", "invoice"},
	}

	for _, tt := range tests {
		target, err := router.Determine(tt.fileName)
		require.NoError(t, err, "file %q", tt.fileName)
		require.Equal(t, tt.wantURL, target.URL, "file %q", tt.fileName)
		require.Equal(t, tt.wantLabel, target.Label, "file %q", tt.fileName)
	}
}

func TestRouterMissingEndpoint(t *testing.T) {
	t.Parallel()

	router := NewRouter(RouterConfig{InvoiceURL: "https://hooks.example.com/invoice"})
	_, err := router.Determine("GrandTotalReport.pdf")
	require.ErrorIs(t, err, ErrRoutingNotConfigured)

	router = NewRouter(RouterConfig{ReportURL: "https://hooks.example.com/report"})
	_, err = router.Determine("Invoice.pdf")
	require.ErrorIs(t, err, ErrRoutingNotConfigured)
}

func TestRouterDefaultMarker(t *testing.T) {
	t.Parallel()

	router := NewRouter(RouterConfig{
		ReportURL:  "https://hooks.example.com/report",
		InvoiceURL: "https://hooks.example.com/invoice",
	})
	target, err := router.Determine("grandTotal_summary.pdf")
	require.NoError(t, err)
	require.Equal(t, "grand_total_report", target.Label)
}
