package errs

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRejectedCarriesDiagnostics(t *testing.T) {
	err := Rejected("balldontlie", 404, []byte(`{"error":"not found"}`))
	wrapped := fmt.Errorf("failed to fetch games: %w", err)

	assert.True(t, IsRejected(wrapped))
	assert.False(t, IsUnavailable(wrapped))

	var rejected *RejectedError
	require.True(t, errors.As(wrapped, &rejected), "RejectedError should be reachable through wrapping")
	assert.Equal(t, 404, rejected.Status)
	assert.Equal(t, "balldontlie", rejected.Provider)
	assert.Contains(t, rejected.Body, "not found")
}

func TestRejectedTruncatesBody(t *testing.T) {
	err := Rejected("odds", 400, []byte(strings.Repeat("x", 2000)))

	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Len(t, rejected.Body, maxBodyLen)
}

func TestKind(t *testing.T) {
	unavailable := Unavailable("odds", 4, errors.New("timeout"))

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "none"},
		{"unavailable", unavailable, "provider_unavailable"},
		{"rejected", Rejected("odds", 401, nil), "provider_rejected"},
		{"malformed", Malformed("odds", errors.New("bad json")), "provider_rejected"},
		{"unsupported", Unsupported("pdf", "no strict source"), "unsupported"},
		{"fatal wins over cause", AssemblyFatal("CHI", unavailable), "assembly_fatal"},
		{"persistence", Persistence(errors.New("conn refused")), "persistence_failure"},
		{"cancelled", fmt.Errorf("wait: %w", context.Canceled), "cancelled"},
		{"other", errors.New("boom"), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestFatalKeepsCause(t *testing.T) {
	cause := Unavailable("balldontlie", 4, errors.New("connection reset"))
	err := AssemblyFatal("LAL", cause)

	assert.True(t, IsFatal(err))
	assert.True(t, IsUnavailable(err), "cause should stay matchable")
	assert.Contains(t, err.Error(), "LAL")
}
