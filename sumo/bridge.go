package sumo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// 桥接命令中的占位符
const (
	PlaceholderConfig = "{cfg}"
	PlaceholderAddr   = "{addr}"
	PlaceholderBinary = "{binary}"
)

var ErrEmptyBridge = errors.New("sumo: bridge command is empty")

// ExpandBridge 替换桥接命令中的占位符
func ExpandBridge(args []string, binary, cfg, addr string) ([]string, error) {
	if len(args) == 0 {
		return nil, ErrEmptyBridge
	}
	r := strings.NewReplacer(PlaceholderConfig, cfg, PlaceholderAddr, addr, PlaceholderBinary, binary)
	res := make([]string, len(args))
	for i, a := range args {
		res[i] = r.Replace(a)
	}
	return res, nil
}

// Bridge 桥接进程：由它启动SUMO并以远程仿真器协议对外提供服务
type Bridge struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error // 进程退出错误，done关闭后有效

	stopOnce sync.Once
	stopErr  error
}

// StartBridge 启动桥接进程，ctx结束时进程被终止
func StartBridge(ctx context.Context, args []string, binary, cfg, addr string) (*Bridge, error) {
	args, err := ExpandBridge(args, binary, cfg, addr)
	if err != nil {
		return nil, err
	}
	out := log.WithField("bridge", addr).WriterLevel(logrus.DebugLevel)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Start(); err != nil {
		out.Close()
		return nil, fmt.Errorf("sumo: start bridge %v: %w", args, err)
	}
	log.Infof("bridge started: %v (pid %d)", args, cmd.Process.Pid)
	b := &Bridge{cmd: cmd, done: make(chan struct{})}
	go func() {
		b.err = cmd.Wait()
		out.Close()
		close(b.done)
	}()
	return b, nil
}

// Done 进程退出时关闭
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Err 进程退出错误，仅在Done关闭后有效
func (b *Bridge) Err() error {
	<-b.done
	return b.err
}

// Stop 终止进程并等待退出，可重复调用
// 返回：进程在Stop前已自行退出时返回其退出错误，由Stop终止时返回nil
func (b *Bridge) Stop() error {
	b.stopOnce.Do(func() {
		select {
		case <-b.done:
			b.stopErr = b.err
			return
		default:
		}
		if err := b.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			b.stopErr = fmt.Errorf("sumo: kill bridge: %w", err)
			return
		}
		<-b.done
	})
	return b.stopErr
}
