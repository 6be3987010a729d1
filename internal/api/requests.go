// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// maxBodySize caps request bodies. Position statements are short text;
// anything near this limit is abuse.
const maxBodySize = 64 * 1024

var validate = validator.New(validator.WithRequiredStructEnabled())

type createPositionRequest struct {
	Statement  string     `json:"statement" validate:"required,min=3,max=2000"`
	CategoryID *uuid.UUID `json:"category_id" validate:"omitempty"`
	LocationID uuid.UUID  `json:"location_id" validate:"required"`
}

type createVoteRequest struct {
	ResponseType string `json:"response_type" validate:"required,oneof=agree disagree pass chat"`
}

// decodeAndValidate reads, decodes, and validates a JSON request body.
// The returned error message is safe to show the caller.
func decodeAndValidate(r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("malformed JSON body: %w", err)
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("field %q fails %q validation", f.Field(), f.Tag())
		}
		return err
	}
	return nil
}
