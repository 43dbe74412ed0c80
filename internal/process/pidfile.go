package process

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	gproc "github.com/shirou/gopsutil/v4/process"
)

// A PID file holds the pid on its first line and, when known, a JSON line
// with the process creation time so a reused pid is not mistaken for ours.
type pidMeta struct {
	CreateMS int64 `json:"create_ms"`
}

func (p *Process) writePIDFile() {
	if p.pidFile == "" {
		return
	}
	content := strconv.Itoa(p.pid) + "\n"
	if ms := createTime(p.pid); ms > 0 {
		b, _ := json.Marshal(pidMeta{CreateMS: ms})
		content += string(b) + "\n"
	}
	_ = os.MkdirAll(filepath.Dir(p.pidFile), 0o750)
	_ = os.WriteFile(p.pidFile, []byte(content), 0o600)
}

func (p *Process) removePIDFile() {
	if p.pidFile != "" {
		_ = os.Remove(p.pidFile)
	}
}

// DetectPIDFile reports the pid recorded in path and whether that process
// is still the one that wrote it. A missing file is not an error.
func DetectPIDFile(path string) (int, bool, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || pid <= 0 {
		return 0, false, fmt.Errorf("invalid pid in %s", path)
	}
	if !pidAlive(pid) {
		return pid, false, nil
	}
	if len(lines) > 1 {
		var m pidMeta
		if json.Unmarshal([]byte(strings.TrimSpace(lines[1])), &m) == nil && m.CreateMS > 0 {
			if cur := createTime(pid); cur > 0 && cur != m.CreateMS {
				return pid, false, nil
			}
		}
	}
	return pid, !isZombieLinux(pid), nil
}

func pidAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func createTime(pid int) int64 {
	proc, err := gproc.NewProcess(int32(pid)) // #nosec G115
	if err != nil {
		return 0
	}
	ms, err := proc.CreateTime()
	if err != nil {
		return 0
	}
	return ms
}
