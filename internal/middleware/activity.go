// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package middleware

import "net/http"

// Activity calls onRequest before serving each request. The API uses it to
// keep the synchronizer's idle timer from pausing polling while someone is
// querying jobs.
func Activity(onRequest func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if onRequest == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			onRequest()
			next.ServeHTTP(w, r)
		})
	}
}
