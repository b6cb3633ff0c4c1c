package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/kiranshivaraju/batchlingo/internal/api/response"
)

// intParam parses an optional integer query value. An empty value yields def.
// A max of 0 means unbounded. On failure it writes a 400 and returns false.
func intParam(w http.ResponseWriter, raw, name string, def, lo, hi int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || (hi > 0 && n > hi) {
		msg := fmt.Sprintf("%s must be an integer >= %d", name, lo)
		if hi > 0 {
			msg = fmt.Sprintf("%s must be an integer between %d and %d", name, lo, hi)
		}
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, msg, nil)
		return 0, false
	}
	return n, true
}
