// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package invoker

import (
	"context"
	"errors"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
	"github.com/AleutianAI/CoherenceKernel/services/llm"
)

// classification is the invoker's verdict on a failed attempt.
type classification struct {
	errorType datatypes.ErrorType
	offline   bool

	// retry is true when the same model deserves exactly one more
	// attempt after a short backoff.
	retry bool
}

// classify maps a provider error onto the failure taxonomy.
//
// Deadline expiry is a timeout and gets one retry, same as a 5xx. A
// cancelled context means the caller walked away; nobody is waiting
// for a retry. A 4xx answer is the caller's fault and retrying the
// same model cannot help. Any other transport-level failure means the
// provider is unreachable; that marks the attempt offline and moves
// straight to the next candidate.
func classify(err error) classification {
	if errors.Is(err, context.Canceled) {
		return classification{errorType: datatypes.ErrorCancelled}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return classification{errorType: datatypes.ErrorTimeout, retry: true}
	}

	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsClientError() {
			return classification{errorType: datatypes.ErrorClient}
		}
		if apiErr.IsServerError() {
			return classification{errorType: datatypes.ErrorServer, retry: true}
		}
	}

	return classification{errorType: datatypes.ErrorServer, offline: true}
}
