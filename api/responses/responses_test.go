package responses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
)

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func TestWriteSuccessWrapsData(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"payment_id": "abc"})

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.JSONEq(t, `{"data":{"payment_id":"abc"}}`, w.Body.String())
}

func TestWriteBareSkipsEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteBare(w, http.StatusOK, map[string]bool{"success": true})

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.JSONEq(t, `{"success":true}`, w.Body.String())
}

func TestWriteErrorUsesTypedCode(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive").WithDetails(map[string]any{"field": "amount"})
	WriteError(context.Background(), nil, w, fmt.Errorf("create: %w", err))

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body errorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	require.Equal(t, "amount must be positive", body.Error.Message)
	require.Equal(t, "amount", body.Error.Details["field"])
}

func TestWriteErrorMasksUntypedFailures(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("dial tcp 10.0.0.3:5432: refused"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body errorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	require.Equal(t, "internal server error", body.Error.Message)
	require.Nil(t, body.Error.Details)
}

func TestWriteErrorNil(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
}
