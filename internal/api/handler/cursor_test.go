package handler

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/cuongbtq/inference-hitl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobCursorRoundTrip(t *testing.T) {
	job := &domain.Job{
		ID:        "2NWrFMd1zIrx8vjFY0C6iqGhFzZ",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC),
	}

	cursor, err := DecodeJobCursor(EncodeJobCursor(job))
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, job.ID, cursor.JobID)
	assert.True(t, job.CreatedAt.Equal(cursor.CreatedAt))
}

func TestDecodeJobCursor(t *testing.T) {
	encode := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		name    string
		input   string
		wantNil bool
		wantErr bool
	}{
		{name: "empty", input: "", wantNil: true},
		{name: "not base64", input: "%%%", wantErr: true},
		{name: "missing separator", input: encode("12345"), wantErr: true},
		{name: "bad timestamp", input: encode("abc|2NWrFMd1zIrx8vjFY0C6iqGhFzZ"), wantErr: true},
		{name: "bad job id", input: encode("12345|short"), wantErr: true},
		{name: "valid", input: encode("12345|2NWrFMd1zIrx8vjFY0C6iqGhFzZ")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cursor, err := DecodeJobCursor(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, cursor)
			} else {
				assert.NotNil(t, cursor)
			}
		})
	}
}
