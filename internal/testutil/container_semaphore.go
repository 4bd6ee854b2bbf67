// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"runtime"
	"strconv"
	"sync"
	"testing"
)

const containerParallelEnv = "SFXPACK_TEST_CONTAINER_PARALLEL"

// containerSlots limits how many container-backed tests run at once across
// the test binary.
var containerSlots = sync.OnceValue(func() chan struct{} {
	return make(chan struct{}, slotCount())
})

// slotCount is SFXPACK_TEST_CONTAINER_PARALLEL when set to a positive
// number, else min(GOMAXPROCS, 2).
func slotCount() int {
	if v, err := strconv.Atoi(os.Getenv(containerParallelEnv)); err == nil && v > 0 {
		return v
	}
	return min(runtime.GOMAXPROCS(0), 2)
}

// AcquireContainerSlot blocks until a container slot is free and releases
// it when the test ends.
func AcquireContainerSlot(t testing.TB) {
	t.Helper()
	slots := containerSlots()
	slots <- struct{}{}
	t.Cleanup(func() { <-slots })
}
