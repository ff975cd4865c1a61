package sumo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

var ErrNoSumoHome = errors.New("sumo: please declare environment variable 'SUMO_HOME'")

// Locate 查找SUMO可执行文件
// 参数：sumoHome-SUMO安装目录，为空时读取环境变量SUMO_HOME；gui-是否使用sumo-gui
// 返回：可执行文件路径；安装目录未设置或文件不存在时返回包含搜索路径的错误
func Locate(sumoHome string, gui bool) (string, error) {
	if sumoHome == "" {
		sumoHome = os.Getenv("SUMO_HOME")
	}
	if sumoHome == "" {
		return "", ErrNoSumoHome
	}
	name := "sumo"
	if gui {
		name = "sumo-gui"
	}
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	binary := filepath.Join(sumoHome, "bin", name)
	info, err := os.Stat(binary)
	if err != nil {
		return "", fmt.Errorf("sumo: binary not found at %s: %w", binary, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("sumo: %s is a directory", binary)
	}
	return binary, nil
}
