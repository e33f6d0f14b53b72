package resolver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractURLPrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "anchor beats bare pdf url",
			body: `<a href="https://x/y?a=1&amp;b=2">Download</a> see also https://x/report.pdf`,
			want: "https://x/y?a=1&b=2",
		},
		{
			name: "anchor entity decoding",
			body: `<p>report ready</p><a class="lnk" href="https://files.example.com/get?id=7&amp;sig=abc">here</a>`,
			want: "https://files.example.com/get?id=7&sig=abc",
		},
		{
			name: "labeled reference when no anchor",
			body: "Your report is ready. Download at: https://portal.example.com/exports/42",
			want: "https://portal.example.com/exports/42",
		},
		{
			name: "provider download path",
			body: "file available https://bi.example.com/files/download/9f31 today",
			want: "https://bi.example.com/files/download/9f31",
		},
		{
			name: "bare pdf suffix as last resort",
			body: "see https://x/reports/GrandTotalReport_2024.pdf for details",
			want: "https://x/reports/GrandTotalReport_2024.pdf",
		},
		{
			name: "labeled beats provider path",
			body: "Download at: https://a.example.com/exports/1 or https://b.example.com/files/download/2",
			want: "https://a.example.com/exports/1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ExtractURL(Message{Body: tt.body})
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestExtractURLNoMatch(t *testing.T) {
	t.Parallel()

	tests := []string{
		"",
		"no links here at all",
		"almost a link: example.com/report.pdf without scheme",
	}
	for _, body := range tests {
		_, err := ExtractURL(Message{Body: body})
		require.ErrorIs(t, err, ErrNoDownloadURL, "body: %q", body)
	}
}
