package bench

import (
	"fmt"
	"os"
	"os/exec"
)

// SpawnWorkers starts n worker processes running bin, each inheriting the
// parent environment plus whatever envFor returns for its index — per-worker
// entries like the rng seed go there so no two workers replay the same
// stream. Workers dial the driver on their own; a crashed worker is not
// restarted here — restart policy belongs to whoever runs the harness.
func SpawnWorkers(bin string, n int, envFor func(i int) []string) ([]*exec.Cmd, error) {
	cmds := make([]*exec.Cmd, 0, n)
	for i := 0; i < n; i++ {
		cmd := exec.Command(bin)
		cmd.Env = os.Environ()
		if envFor != nil {
			cmd.Env = append(cmd.Env, envFor(i)...)
		}
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			KillWorkers(cmds)
			return nil, fmt.Errorf("spawn worker %d: %w", i, err)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// WaitWorkers waits for every worker process to exit, returning the first
// failure.
func WaitWorkers(cmds []*exec.Cmd) error {
	var first error
	for _, cmd := range cmds {
		if err := cmd.Wait(); err != nil && first == nil {
			first = fmt.Errorf("worker %d: %w", cmd.Process.Pid, err)
		}
	}
	return first
}

// KillWorkers force-terminates and reaps worker processes. For teardown
// paths where the exit handshake never happened; safe on workers that have
// already exited.
func KillWorkers(cmds []*exec.Cmd) {
	for _, cmd := range cmds {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
}

// WorkerSeed derives a distinct seed for worker i from a pinned base. A
// zero base stays zero, letting each worker pick its own time-based seed.
func WorkerSeed(base int64, i int) int64 {
	if base == 0 {
		return 0
	}
	return base + int64(i) + 1
}
