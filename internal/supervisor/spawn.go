package supervisor

import "os/exec"

// Spawner launches a service executable detached from the current process.
type Spawner interface {
	Spawn(path string, args []string) (pid int, err error)
}

// ExecSpawner spawns via os/exec with the child detached from the parent's
// console and process group.
type ExecSpawner struct{}

var _ Spawner = ExecSpawner{}

func (ExecSpawner) Spawn(path string, args []string) (int, error) {
	cmd := exec.Command(path, args...) // #nosec G204 -- path comes from the install dirs
	cmd.SysProcAttr = detachedProcAttr()
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	// Release the handle; the child manages its own lifetime and logging.
	_ = cmd.Process.Release()
	return pid, nil
}
