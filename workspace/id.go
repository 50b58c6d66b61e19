package workspace

import (
	"fmt"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

type Kind string

const (
	KindTask   Kind = "task"
	KindBatch  Kind = "batch"
	KindUpload Kind = "upload"
)

// Clock is the time source used for task IDs.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// IDGenerator builds task IDs of the form {kind}_{unix seconds}_{suffix}.
// The timestamp is coarse; the suffix keeps IDs minted within the same
// second apart.
type IDGenerator struct {
	Clock  Clock
	Suffix func() string
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{Clock: systemClock{}, Suffix: shortuuid.New}
}

func (g *IDGenerator) New(kind Kind) string {
	return fmt.Sprintf("%s_%d_%s", kind, g.Clock.Now().Unix(), g.Suffix())
}
