/*
Package monitoring provides Prometheus metrics for pantin's HTTP surface
and browser fleet pool.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
