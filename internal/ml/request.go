package ml

import (
	"bytes"
	"encoding/json"
	"errors"

	"housing-forest/internal/common"
)

// Validation errors returned by DecodeFeatures. Their messages are sent to
// clients verbatim.
var (
	ErrInvalidJSON      = errors.New(common.ErrMsgInvalidJSON)
	ErrMissingFeatures  = errors.New(common.ErrMsgMissingFeatures)
	ErrFeaturesNotList  = errors.New(common.ErrMsgFeaturesNotList)
	ErrRowShape         = errors.New(common.ErrMsgRowShape)
	ErrNonNumeric       = errors.New(common.ErrMsgNonNumeric)
	validationErrorList = []error{ErrInvalidJSON, ErrMissingFeatures, ErrFeaturesNotList, ErrRowShape, ErrNonNumeric}
)

// IsValidationError reports whether err is one of the client input errors.
func IsValidationError(err error) bool {
	for _, v := range validationErrorList {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

// validationReason is the metrics label for a validation error.
func validationReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidJSON):
		return "invalid_json"
	case errors.Is(err, ErrMissingFeatures):
		return "missing_features"
	case errors.Is(err, ErrFeaturesNotList):
		return "features_not_list"
	case errors.Is(err, ErrRowShape):
		return "row_shape"
	case errors.Is(err, ErrNonNumeric):
		return "non_numeric"
	default:
		return "other"
	}
}

// DecodeFeatures parses a predict request body of the form
// {"features": [[f1, ..., fN], ...]} where N is width.
//
// The checks run in a fixed order and the first failing one wins: the body
// must be JSON, the "features" key must be present, its value must be a list,
// every row must be a list of exactly width values, and every value must be
// a number.
func DecodeFeatures(body []byte, width int) ([][]float64, error) {
	if !json.Valid(body) {
		return nil, ErrInvalidJSON
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		// Valid JSON that is not an object has no "features" key.
		return nil, ErrMissingFeatures
	}
	raw, ok := envelope["features"]
	if !ok {
		return nil, ErrMissingFeatures
	}

	rawRows, ok := decodeList(raw)
	if !ok {
		return nil, ErrFeaturesNotList
	}

	cells := make([][]json.RawMessage, len(rawRows))
	for i, rawRow := range rawRows {
		row, ok := decodeList(rawRow)
		if !ok || len(row) != width {
			return nil, ErrRowShape
		}
		cells[i] = row
	}

	rows := make([][]float64, len(cells))
	for i, row := range cells {
		values := make([]float64, len(row))
		for j, cell := range row {
			v, ok := decodeNumber(cell)
			if !ok {
				return nil, ErrNonNumeric
			}
			values[j] = v
		}
		rows[i] = values
	}
	return rows, nil
}

func decodeList(raw json.RawMessage) ([]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, false
	}
	return items, true
}

func decodeNumber(raw json.RawMessage) (float64, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0, false
	}
	if c := trimmed[0]; c != '-' && (c < '0' || c > '9') {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return 0, false
	}
	return v, true
}
