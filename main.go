package main

import "jobsched/cmd"

func main() {
	cmd.Run()
}
