package snowflake

import (
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_WorkerIDRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("worker id is recoverable from every id", prop.ForAll(
		func(worker int64, count int) bool {
			g, err := NewGenerator(worker)
			if err != nil {
				return false
			}
			for range count {
				id, err := g.NextID()
				if err != nil || WorkerID(id) != worker {
					return false
				}
			}
			return true
		},
		gen.Int64Range(0, MaxWorkerID),
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_ParseStringAcceptsCanonicalForm(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("decimal rendering of a positive int64 parses back", prop.ForAll(
		func(n int64) bool {
			got, err := ParseString(strconv.FormatInt(n, 10))
			return err == nil && got == n
		},
		gen.Int64Range(1, 1<<62),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
