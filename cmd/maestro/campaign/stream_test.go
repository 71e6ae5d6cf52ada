// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package campaign

import (
	"errors"
	"testing"

	"github.com/maestro-foundation/maestro/cmd/maestro/cli"
)

// Stream error frames carry text only; the category mapping keys off
// the service's message conventions so scripts get stable exit codes.
func TestStreamError_Categories(t *testing.T) {
	tests := []struct {
		message string
		want    cli.ErrorCategory
	}{
		{"campaign camp_1a2b3c4d5e6f not found", cli.CategoryNotFound},
		{"invalid request: unexpected field", cli.CategoryValidation},
		{"campaign request: name is required", cli.CategoryValidation},
		{"loading campaign camp_1a2b3c4d5e6f: disk I/O error", cli.CategoryInternal},
	}
	for _, test := range tests {
		err := streamError(test.message)
		var toolErr *cli.ToolError
		if !errors.As(err, &toolErr) {
			t.Errorf("streamError(%q) = %T, want *cli.ToolError", test.message, err)
			continue
		}
		if toolErr.Category != test.want {
			t.Errorf("streamError(%q) category = %s, want %s", test.message, toolErr.Category, test.want)
		}
		if toolErr.Error() != test.message {
			t.Errorf("streamError(%q) message = %q", test.message, toolErr.Error())
		}
	}
}
