// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"testing"
)

func TestRunNbrFrom(t *testing.T) {
	for _, tc := range []struct {
		fname string
		want  int
		err   bool
	}{
		{fname: "run000042.sigma", want: 42},
		{fname: "/data/sigma/run000139.sigma", want: 139},
		{fname: "capture.sigma", err: true},
	} {
		t.Run(tc.fname, func(t *testing.T) {
			got, err := runNbrFrom(tc.fname)
			if tc.err {
				if err == nil {
					t.Fatalf("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("could not infer run number: %+v", err)
			}
			if got != tc.want {
				t.Fatalf("invalid run number: got=%d, want=%d", got, tc.want)
			}
		})
	}
}
