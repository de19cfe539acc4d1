// Copyright 2023 Google Inc. All Rights Reserved.
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

package logging

import (
	"golang.org/x/time/rate"
)

// Throttle rate-limits a noisy log site, such as the metadata coordinator's
// per-request failure path, which would otherwise flood the log during a
// cluster-wide outage.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle allows at most burst log calls immediately, refilling at
// ratePerSecond thereafter.
func NewThrottle(ratePerSecond float64, burst int) *Throttle {
	return &Throttle{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Allow reports whether the caller may log now.
func (t *Throttle) Allow() bool {
	return t.limiter.Allow()
}

// Warnf logs at WARNING severity if not currently throttled.
func (t *Throttle) Warnf(format string, args ...any) {
	if t.Allow() {
		Warnf(format, args...)
	}
}

// Errorf logs at ERROR severity if not currently throttled.
func (t *Throttle) Errorf(format string, args ...any) {
	if t.Allow() {
		Errorf(format, args...)
	}
}
