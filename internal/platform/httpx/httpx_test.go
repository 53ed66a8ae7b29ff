package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockpool/internal/shared"
)

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("qty: %w", shared.ErrValidation): http.StatusBadRequest,
		fmt.Errorf("id 4: %w", shared.ErrNotFound):  http.StatusNotFound,
		fmt.Errorf("dup: %w", shared.ErrConflict):   http.StatusConflict,
		fmt.Errorf("db: %w", shared.ErrStore):       http.StatusInternalServerError,
		errors.New("boom"):                          http.StatusInternalServerError,
	}
	for err, want := range cases {
		require.Equal(t, want, StatusFor(err), err.Error())
	}
}

func TestRespondErrorHidesStoreDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("insert: %w: password=secret", shared.ErrStore))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	require.NotContains(t, rr.Body.String(), "secret")

	rr = httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("product 9: %w", shared.ErrNotFound))
	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, http.StatusNotFound, problem.Status)
	require.Contains(t, problem.Detail, "product 9")
}

func TestDecodeJSON(t *testing.T) {
	var target struct {
		Qty int `json:"qty"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"qty":3}`))
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), req, &target))
	require.Equal(t, 3, target.Qty)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"qty":3,"extra":1}`))
	err := DecodeJSON(httptest.NewRecorder(), req, &target)
	require.ErrorIs(t, err, shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	require.ErrorIs(t, DecodeJSON(httptest.NewRecorder(), req, &target), shared.ErrValidation)
}

func TestFieldProblem(t *testing.T) {
	rr := httptest.NewRecorder()
	FieldProblem(rr, map[string]string{"qty": "required"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.JSONEq(t, `{"title":"Validation Failed","status":400,"fields":{"qty":"required"}}`, rr.Body.String())
}
