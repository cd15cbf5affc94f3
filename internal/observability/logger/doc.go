// Package logger provee un singleton de zap para toda la aplicación.
//
// Uso típico:
//
//	logger.Init(logger.Config{Env: "prod", Level: "info", ServiceName: "onepass"})
//	defer logger.Sync()
//	logger.L().Info("listo")
//
// Los middlewares inyectan un logger "scoped" (request_id, method, path) en el
// contexto; las capas internas lo recuperan con logger.From(ctx).
package logger
