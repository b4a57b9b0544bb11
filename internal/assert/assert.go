// Package assert panics when an internal invariant does not hold.
package assert

import (
	"fmt"
)

// Length panics unless value is exactly expected bytes long
func Length(what, value string, expected int) {
	if len(value) != expected {
		panic(fmt.Sprintf("assert.Length(%s) expected %d actual %d", what, expected, len(value)))
	}
}
