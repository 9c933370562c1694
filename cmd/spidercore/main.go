// Command spidercore runs one spider process: it loads configuration,
// wires the concrete bus/scheduler/statistics/storage backends it
// names, and blocks until the dispatcher terminates or an Exit message
// arrives on the spider's control topic.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
