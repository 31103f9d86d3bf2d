package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "tripkey/pkg/domain-errors"
)

type sample struct {
	PIN       string `json:"pin" validate:"required,pin"`
	Name      string `json:"displayName" validate:"required,notblank,max=40"`
	StartDate string `json:"startDate" validate:"omitempty,civildate"`
	Timezone  string `json:"timezone" validate:"omitempty,timezone"`
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     sample
		wantMsg string
	}{
		{name: "valid", req: sample{PIN: "482913", Name: "Alice", StartDate: "2026-07-01", Timezone: "Europe/Lisbon"}},
		{name: "missing pin", req: sample{Name: "Alice"}, wantMsg: "pin is required"},
		{name: "short pin", req: sample{PIN: "4829", Name: "Alice"}, wantMsg: "pin must be exactly 6 digits"},
		{name: "letters in pin", req: sample{PIN: "48291x", Name: "Alice"}, wantMsg: "pin must be exactly 6 digits"},
		{name: "blank name", req: sample{PIN: "482913", Name: "   "}, wantMsg: "displayName must not be blank"},
		{name: "bad date", req: sample{PIN: "482913", Name: "Alice", StartDate: "07/01/2026"}, wantMsg: "startDate must be a date in YYYY-MM-DD format"},
		{name: "bad timezone", req: sample{PIN: "482913", Name: "Alice", Timezone: "Mars/Olympus"}, wantMsg: "timezone must be a valid IANA timezone"},
		{name: "local timezone rejected", req: sample{PIN: "482913", Name: "Alice", Timezone: "Local"}, wantMsg: "timezone must be a valid IANA timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.req)
			if tt.wantMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}
