package route

import (
	"os"

	"github.com/bassista/labasica/internal/logger"
	"github.com/gin-gonic/gin"
)

// NewDataRouter serves the canonical JSON documents from dir under /data,
// so a single process can act as its own source. A missing dir disables it.
func NewDataRouter(r *gin.Engine, dir string) {
	if dir == "" {
		return
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		logger.WithComponent("route").Infof("static data dir %q not found, /data is not served", dir)
		return
	}
	r.Static("/data", dir)
}
