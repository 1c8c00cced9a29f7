package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/setavenger/sozudb/internal/logging"
)

func NewRouter(api *ApiHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger)
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		MaxAge:           12 * time.Hour,
		AllowCredentials: true,
	}))

	router.GET("/info", api.GetInfo)

	router.POST("/blocks", api.OpenBlock)
	router.GET("/blocks/:alias", ParseAliasMiddleware, api.GetBlock)
	router.POST("/blocks/:alias/commit", ParseAliasMiddleware, api.CommitBlock)

	router.GET("/coins/:txid/:vout", ParseOutpointMiddleware, ParseContextMiddleware, api.GetCoin)
	router.POST("/coins/produce", api.ProduceCoin)
	router.POST("/coins/consume", api.ConsumeCoin)
	router.POST("/coins/remove", api.RemoveCoin)

	return router
}

// RunServer serves the API on addr until ctx is done, then shuts down.
func RunServer(ctx context.Context, addr string, api *ApiHandler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(api),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logging.L.Info().Str("addr", addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		logging.L.Err(err).Msg("could not run server")
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
