// SPDX-License-Identifier: MPL-2.0

package builder

// Stage names a step of a build.
type Stage string

const (
	StageCollected   Stage = "collected"
	StageSigned      Stage = "signed"
	StageDownloading Stage = "downloading"
	StageExtracted   Stage = "extracted"
	StageWritten     Stage = "written"
)

// Event reports build progress. Written and Total are byte counts during
// StageDownloading (Total is -1 when unknown) and zero otherwise.
type Event struct {
	Stage   Stage
	Message string
	Written int64
	Total   int64
}

// ProgressFunc receives build events on the building goroutine.
type ProgressFunc func(Event)
