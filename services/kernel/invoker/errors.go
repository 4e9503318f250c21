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
	"errors"
	"fmt"
)

// ErrExhausted is returned when every candidate in the cascade failed.
// Callers degrade on it; it is never a turn-level failure by itself.
var ErrExhausted = errors.New("all candidate models failed")

// ConfigurationError marks a deployment mistake rather than a runtime
// fault: an empty candidate list or a reference to an unregistered
// provider. It is never swallowed and never triggers degradation.
type ConfigurationError struct {
	Agent  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for agent %q: %s", e.Agent, e.Reason)
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
