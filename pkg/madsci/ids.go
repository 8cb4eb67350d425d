// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package madsci

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// entropy is a monotonic ULID source shared across the process. ulid.New
// requires an io.Reader; crypto/rand.Reader combined with the monotonic
// wrapper keeps IDs sortable even when generated within the same
// millisecond, matching the original engine's new_ulid_str ordering
// guarantee.
var entropy = ulid.Monotonic(rand.Reader, 0)
var entropyMu sync.Mutex

// NewID returns a 26-character, lexicographically-sortable entity ID, the
// format spec.md §6.1 requires for every workflow/step/node/location ID.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewActionID returns a random, non-sortable UUID string. The dispatcher
// does not use it: its action IDs come from NewID unless its config
// supplies another generator.
func NewActionID() string {
	return uuid.NewString()
}
