// Copyright 2022 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"reflect"
	"testing"

	"github.com/go-daq/asix/sigma"
)

func TestParseTriggers(t *testing.T) {
	for _, tc := range []struct {
		name string
		spec string
		want sigma.TriggerSpec
		err  bool
	}{
		{
			name: "empty",
			spec: "",
		},
		{
			name: "single",
			spec: "3:rising",
			want: sigma.TriggerSpec{Stages: []sigma.TriggerStage{
				{Matches: []sigma.TriggerMatch{{Channel: 3, Kind: sigma.Rising}}},
			}},
		},
		{
			name: "multi",
			spec: "3:rising,4:high,0:low",
			want: sigma.TriggerSpec{Stages: []sigma.TriggerStage{
				{Matches: []sigma.TriggerMatch{
					{Channel: 3, Kind: sigma.Rising},
					{Channel: 4, Kind: sigma.High},
					{Channel: 0, Kind: sigma.Low},
				}},
			}},
		},
		{
			name: "bad-kind",
			spec: "3:sideways",
			err:  true,
		},
		{
			name: "bad-channel",
			spec: "x:rising",
			err:  true,
		},
		{
			name: "no-colon",
			spec: "rising",
			err:  true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseTriggers(tc.spec)
			if tc.err {
				if err == nil {
					t.Fatalf("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("could not parse triggers: %+v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("invalid trigger spec:\ngot= %#v\nwant=%#v", got, tc.want)
			}
		})
	}
}
