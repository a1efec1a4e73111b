package integration

import (
	"fmt"

	"groupjobs/internal/models"
)

// Group ids shaped like 32-byte master key derivations
var (
	GroupAlpha = fixtureGroupID(0xa1)
	GroupBeta  = fixtureGroupID(0xb2)
	GroupGamma = fixtureGroupID(0xc3)
)

func fixtureGroupID(seed byte) []byte {
	id := make([]byte, 32)
	for i := range id {
		id[i] = seed ^ byte(i)
	}
	return id
}

// NewFixtureJob builds job n for group. Odd jobs arrive by sealed sender
// without plaintext.
func NewFixtureJob(group []byte, n int) *models.Job {
	var plaintext []byte
	if n%2 == 0 {
		plaintext = []byte(fmt.Sprintf("message %d", n))
	}
	return models.NewJob(
		[]byte(fmt.Sprintf("envelope %d", n)),
		plaintext,
		group,
		n%2 == 1,
		uint64(1_700_000_000_000+n),
	)
}

// FixtureJobs cycles through groups to build count jobs
func FixtureJobs(count int, groups ...[]byte) []*models.Job {
	jobs := make([]*models.Job, count)
	for i := range jobs {
		jobs[i] = NewFixtureJob(groups[i%len(groups)], i)
	}
	return jobs
}
