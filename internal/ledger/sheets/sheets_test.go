package sheets

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSpreadsheetID(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr bool
	}{
		{
			name: "bare ID",
			ref:  "1BxiMVs0XRA5nFMdKvBdBZjgmUUqptlbs74OgvE2upms",
			want: "1BxiMVs0XRA5nFMdKvBdBZjgmUUqptlbs74OgvE2upms",
		},
		{
			name: "full URL",
			ref:  "https://docs.google.com/spreadsheets/d/1BxiMVs0XRA5nFMdKvBdBZjgmUUqptlbs74OgvE2upms/edit#gid=0",
			want: "1BxiMVs0XRA5nFMdKvBdBZjgmUUqptlbs74OgvE2upms",
		},
		{
			name: "URL without edit suffix",
			ref:  "https://docs.google.com/spreadsheets/d/abc-123_XYZ",
			want: "abc-123_XYZ",
		},
		{
			name:    "unrelated URL",
			ref:     "https://docs.google.com/document/d/abc123",
			wantErr: true,
		},
		{
			name:    "empty",
			ref:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveSpreadsheetID(tt.ref)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsMissingRange(t *testing.T) {
	assert.True(t, isMissingRange(errors.New("googleapi: Error 400: Unable to parse range: outras_despesas, badRequest")))
	assert.False(t, isMissingRange(errors.New("googleapi: Error 403: The caller does not have permission, forbidden")))
}
