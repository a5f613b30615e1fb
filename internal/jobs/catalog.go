// Package jobs is the set of jobs this application runs.
package jobs

import "jobsched/internal/domain"

// Definitions lists every job the worker registers. Add new jobs here.
func Definitions() []domain.Definition {
	return []domain.Definition{
		{
			Name:        "sendCampaign",
			Concurrency: 4,
			Job: NewSendCampaign(
				Recipient{Campaign: "welcome", Address: "ada@example.com"},
				Recipient{Campaign: "welcome", Address: "grace@example.com"},
				Recipient{Campaign: "welcome", Address: "linus@example.com"},
				Recipient{Campaign: "welcome", Address: "ken@example.com"},
			),
		},
	}
}
