package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: kanwil", ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: session", ErrConflict), http.StatusConflict},
		{fmt.Errorf("%w: confirm", ErrPreconditionFailed), http.StatusPreconditionFailed},
		{ErrTooLarge, http.StatusRequestEntityTooLarge},
		{ErrNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		err, status := tc.err, tc.status
		rr := httptest.NewRecorder()
		RespondError(rr, err)
		require.Equal(t, status, rr.Code, err.Error())
		require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

		var p ProblemDetail
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&p))
		require.Equal(t, status, p.Status)
	}
}

func TestWriteProblemIncludesInvalid(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteProblem(rr, ProblemDetail{Title: "Missing Columns", Status: http.StatusBadRequest, Invalid: []string{"Kanwil"}})
	var p ProblemDetail
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&p))
	require.Equal(t, []string{"Kanwil"}, p.Invalid)
}
