// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
)

// scriptedService crashes on its first crashes runs and then serves until
// canceled.
type scriptedService struct {
	name    string
	crashes int32
	runs    atomic.Int32
	exits   atomic.Int32
}

func newScriptedService(name string, crashes int32) *scriptedService {
	return &scriptedService{name: name, crashes: crashes}
}

func (s *scriptedService) Serve(ctx context.Context) error {
	defer s.exits.Add(1)
	if s.runs.Add(1) <= s.crashes {
		return errors.New(s.name + " crashed")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *scriptedService) String() string { return s.name }
