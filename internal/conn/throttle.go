// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package conn

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// throttledWriter is an io.Writer with token-bucket rate limiting, used to
// cap how fast a connection can be fed pub/sub traffic or bulk replies.
type throttledWriter struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context
}

// Write splits writes larger than the limiter's burst size into chunks so
// tokens are consumed gradually instead of requiring one enormous
// reservation up front.
func (tw *throttledWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := len(p)
		if chunk > tw.limiter.Burst() {
			chunk = tw.limiter.Burst()
		}
		if err := tw.limiter.WaitN(tw.ctx, chunk); err != nil {
			return total, err
		}
		n, err := tw.w.Write(p[:chunk])
		total += n
		if err != nil {
			return total, err
		}
		p = p[n:]
	}
	return total, nil
}
