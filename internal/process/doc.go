// Package process runs one-shot external commands with a deadline.
//
// It is used by operator commands such as git-pull that shell out and report
// the child's output back to the chat. Each run:
//   - starts the child in its own process group
//   - captures stdout and stderr separately (bounded)
//   - sends SIGTERM to the group when the deadline passes, then SIGKILL
//     after a grace period
//
// Example usage:
//
//	res, err := process.Run(ctx, process.Command{
//	    Name:    "git",
//	    Args:    []string{"pull"},
//	    Timeout: 60 * time.Second,
//	})
//	if errors.Is(err, process.ErrTimeout) {
//	    // report the timeout
//	}
package process
