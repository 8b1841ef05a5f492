// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package idgen generates ConnectionId values: 32 lowercase hex characters
// derived from a random UUID with its dashes stripped (spec.md §3). The
// same value is reused as SessionId and X-RequestId for the life of one
// synthesis.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// NewConnectionId returns a fresh 32-character lowercase hex ConnectionId.
func NewConnectionId() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
