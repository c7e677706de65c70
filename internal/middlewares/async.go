package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GroupChat/internal/utils"
)

// AsyncMiddleware 异步处理中间件
// 将请求的处理链提交到 Worker Pool 中执行, 以限制同时处理的请求数量。
// 请求 goroutine 阻塞等待任务完成, 对客户端仍是同步的请求-响应。
func AsyncMiddleware(pool *utils.WorkerPool) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 未配置 Worker Pool 时降级为同步执行
		if pool == nil {
			c.Next()
			return
		}

		done := make(chan struct{})
		var panicked any

		task := func() {
			defer close(done)
			defer func() {
				// 交回请求 goroutine, 由 gin.Recovery 处理
				panicked = recover()
			}()
			c.Next()
		}

		// 队列满时阻塞, 直到有空位或客户端断开
		if err := pool.Submit(c.Request.Context(), task); err != nil {
			abortWithError(c, http.StatusServiceUnavailable, "unavailable", "服务繁忙, 请稍后再试")
			return
		}

		// 主 goroutine 挂起, 同一时间只有一个 goroutine 操作 c
		<-done
		if panicked != nil {
			panic(panicked)
		}
	}
}
