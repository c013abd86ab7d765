//go:build !debug

package debug

const Enabled = false

func Assert(cond bool, args ...interface{})            {}
func Assertf(cond bool, f string, args ...interface{}) {}
func AssertNoErr(err error)                            {}
