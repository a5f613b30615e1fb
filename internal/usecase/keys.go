package usecase

import "fmt"

// JobQueueName is the durable queue holding a job's run entries.
func JobQueueName(job string) string { return "jobs-" + job }

// TaskQueueName is the durable queue holding the tasks a job produced.
func TaskQueueName(job string) string { return "jobs-" + job + "-tasks" }

func MailboxKey(prefix, queue string) string { return prefix + ":mailbox:" + queue }

// EventKey names the list other processes push events onto. app may be "*"
// to reach every application running the job.
func EventKey(app, job string) string {
	return fmt.Sprintf("eq:app:%s:topic:%s", app, job)
}
