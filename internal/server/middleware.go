package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/setavenger/sozudb/internal/logging"
	"github.com/setavenger/sozudb/internal/types"
)

const (
	keyOutpoint = "outpoint"
	keyContext  = "blockContext"
	keyAlias    = "alias"
)

func RequestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()
	logging.L.Debug().
		Str("method", c.Request.Method).
		Str("path", c.FullPath()).
		Int("status", c.Writer.Status()).
		Dur("took", time.Since(start)).
		Msg("request")
}

func ParseOutpointMiddleware(c *gin.Context) {
	vout, err := strconv.ParseUint(c.Param("vout"), 10, 32)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "could not parse vout"})
		return
	}
	op, err := types.ParseOutpoint(c.Param("txid"), uint32(vout))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "could not parse txid"})
		return
	}
	c.Set(keyOutpoint, op)
	c.Next()
}

// ParseContextMiddleware reads the ?context= block alias. A missing one is
// left Undefined and rejected by the table as an invalid block handle.
func ParseContextMiddleware(c *gin.Context) {
	var blockCtx types.BlockAlias
	if s := c.Query("context"); s != "" {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "could not parse context"})
			return
		}
		blockCtx = types.BlockAlias(v)
	}
	c.Set(keyContext, blockCtx)
	c.Next()
}

func ParseAliasMiddleware(c *gin.Context) {
	v, err := strconv.ParseUint(c.Param("alias"), 10, 32)
	if err != nil {
		logging.L.Debug().Err(err).Msg("could not parse block alias")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "could not parse block alias"})
		return
	}
	c.Set(keyAlias, types.BlockAlias(v))
	c.Next()
}
