// Package request вспомогательные функции разбора входящих запросов.
package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/render"
)

// MaxPatchBytes предел тела частичного обновления.
const MaxPatchBytes = 64 << 10

// ErrInvalidPatch тело не является JSON-объектом.
var ErrInvalidPatch = errors.New("patch must be a json object")

// DecodeOptional разбирает JSON-тело, пустое тело не считается ошибкой.
func DecodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := render.DecodeJSON(r.Body, v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ReadPatch читает тело частичного обновления не длиннее MaxPatchBytes.
// Тело должно быть JSON-объектом.
func ReadPatch(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	const op = "request.ReadPatch"
	if r.Body == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidPatch)
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxPatchBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidPatch)
	}
	return body, nil
}

// PatchStatus HTTP-статус для ошибки ReadPatch.
func PatchStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}
