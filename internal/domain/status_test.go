package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusBot, StatusHuman, true},
		{StatusBot, StatusFail, true},
		{StatusHuman, StatusBot, true},
		{StatusHuman, StatusSuccess, true},
		{StatusHuman, StatusFail, true},
		{StatusBot, StatusSuccess, false},
		{StatusBot, StatusBot, false},
		{StatusHuman, StatusHuman, false},
		{StatusSuccess, StatusBot, false},
		{StatusSuccess, StatusHuman, false},
		{StatusFail, StatusBot, false},
		{StatusFail, StatusSuccess, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	all := []Status{StatusBot, StatusHuman, StatusSuccess, StatusFail}
	for _, from := range all {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Status
		wantErr bool
	}{
		{name: "lowercase", input: "human", want: StatusHuman},
		{name: "mixed case", input: "Success", want: StatusSuccess},
		{name: "padded", input: " fail ", want: StatusFail},
		{name: "unknown", input: "pending", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStatus(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidStatus))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidJobID(t *testing.T) {
	assert.True(t, ValidJobID("2HbR0mY8vD7kQ1sLzP4xW9cN3eT"))
	assert.False(t, ValidJobID("short"))
	assert.False(t, ValidJobID("2HbR0mY8vD7kQ1sLzP4xW9cN3e-"))
	assert.False(t, ValidJobID(""))
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")

	storeErr := NewStoreError("fetch", cause)
	assert.True(t, IsStoreError(storeErr))
	assert.ErrorIs(t, storeErr, cause)
	assert.Contains(t, storeErr.Error(), "fetch")

	brokerErr := NewBrokerError("publish", cause)
	var be *BrokerError
	require.ErrorAs(t, brokerErr, &be)
	assert.Equal(t, "publish", be.Op)

	upstream := &UpstreamError{StatusCode: 502, Err: cause}
	assert.True(t, IsUpstreamError(upstream))
	assert.Contains(t, upstream.Error(), "502")
	assert.Contains(t, (&UpstreamError{Err: cause}).Error(), "request failed")
}
