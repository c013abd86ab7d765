//go:build debug

// Package debug provides assertions that only run in debug builds, mirroring
// the teacher's build-tag-gated debug package: a production binary pays
// nothing for these checks, a `-tags debug` build catches invariant
// violations (spec §8) immediately instead of silently drifting into one.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package debug

import "github.com/duskline/backend/3rdparty/glog"

const Enabled = true

func Assert(cond bool, args ...interface{}) {
	if !cond {
		glog.Fatal(args...)
	}
}

func Assertf(cond bool, f string, args ...interface{}) {
	if !cond {
		glog.Fatalf(f, args...)
	}
}

func AssertNoErr(err error) {
	if err != nil {
		glog.Fatal(err)
	}
}
