package server

import (
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/setavenger/sozudb/internal/chain"
	"github.com/setavenger/sozudb/internal/config"
	"github.com/setavenger/sozudb/internal/logging"
	"github.com/setavenger/sozudb/internal/shard"
	"github.com/setavenger/sozudb/internal/sozu"
	"github.com/setavenger/sozudb/internal/types"
)

// ApiHandler exposes the block tracker and the coin shards over HTTP.
type ApiHandler struct {
	Chain  *chain.Chain
	Shards *shard.Dispatcher
}

type InfoResponse struct {
	Network          string `json:"network"`
	TipAlias         uint32 `json:"tip_alias"`
	TipHeight        uint32 `json:"tip_height"`
	Shards           int    `json:"shards"`
	SectorCount      uint32 `json:"sector_count"`
	LayerSectorSizes []int  `json:"layer_sector_sizes"`
	FinalTier        string `json:"final_tier"`
}

type OpenBlockRequest struct {
	Parent uint32 `json:"parent" binding:"required"`
}

type OpenBlockResponse struct {
	Alias uint32 `json:"alias"`
}

type CommitBlockRequest struct {
	BlockID string `json:"block_id" binding:"required"`
}

type CoinRequest struct {
	TxID    string `json:"txid" binding:"required"`
	Vout    uint32 `json:"vout"`
	Context uint32 `json:"context"`
}

type ProduceRequest struct {
	CoinRequest
	Coinbase bool   `json:"coinbase"`
	Satoshis uint64 `json:"satoshis"`
	LockTime uint32 `json:"lock_time"`
	Script   string `json:"script"`
}

type RemoveRequest struct {
	CoinRequest
	Production  bool `json:"production"`
	Consumption bool `json:"consumption"`
}

type CoinResponse struct {
	TxID        string  `json:"txid"`
	Vout        uint32  `json:"vout"`
	Coinbase    bool    `json:"coinbase"`
	Satoshis    uint64  `json:"satoshis"`
	BTC         float64 `json:"btc"`
	LockTime    uint32  `json:"lock_time"`
	Script      string  `json:"script"`
	Production  uint32  `json:"production"`
	Consumption uint32  `json:"consumption,omitempty"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

func (h *ApiHandler) GetInfo(c *gin.Context) {
	tip := h.Chain.Tip()
	c.JSON(http.StatusOK, InfoResponse{
		Network:          config.ChainToString(config.Chain),
		TipAlias:         uint32(tip.Alias),
		TipHeight:        tip.Height,
		Shards:           h.Shards.ShardCount(),
		SectorCount:      config.SectorCount,
		LayerSectorSizes: config.LayerSectorSizes,
		FinalTier:        config.FinalTier,
	})
}

func (h *ApiHandler) OpenBlock(c *gin.Context) {
	var req OpenBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	alias, err := h.Chain.OpenBlock(c.Request.Context(), types.BlockAlias(req.Parent))
	if err != nil {
		chainError(c, err)
		return
	}
	c.JSON(http.StatusOK, OpenBlockResponse{Alias: uint32(alias)})
}

func (h *ApiHandler) GetBlock(c *gin.Context) {
	b, err := h.Chain.Block(c.MustGet(keyAlias).(types.BlockAlias))
	if err != nil {
		chainError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *ApiHandler) CommitBlock(c *gin.Context) {
	var req CommitBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := chainhash.NewHashFromStr(req.BlockID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not parse block_id"})
		return
	}
	alias := c.MustGet(keyAlias).(types.BlockAlias)
	if err = h.Chain.CommitBlock(c.Request.Context(), alias, *id); err != nil {
		chainError(c, err)
		return
	}
	b, err := h.Chain.Block(alias)
	if err != nil {
		chainError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *ApiHandler) GetCoin(c *gin.Context) {
	op := c.MustGet(keyOutpoint).(types.Outpoint)
	blockCtx := c.MustGet(keyContext).(types.BlockAlias)

	reply, err := h.Shards.Get(c.Request.Context(), op, blockCtx)
	if !replyOK(c, reply, err) {
		return
	}
	c.JSON(http.StatusOK, coinResponse(reply.Coin))
}

func (h *ApiHandler) ProduceCoin(c *gin.Context) {
	var req ProduceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	op, ok := bindOutpoint(c, &req.CoinRequest)
	if !ok {
		return
	}
	script, err := hex.DecodeString(req.Script)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not parse script"})
		return
	}
	if len(script) > types.MaxScriptSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("script exceeds %d bytes", types.MaxScriptSize)})
		return
	}

	payload := types.NewPayload(req.Satoshis, req.LockTime, script)
	reply, err := h.Shards.Produce(
		c.Request.Context(), op, req.Coinbase, payload, types.BlockAlias(req.Context),
	)
	if !replyOK(c, reply, err) {
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Status: reply.Status.String()})
}

func (h *ApiHandler) ConsumeCoin(c *gin.Context) {
	var req CoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	op, ok := bindOutpoint(c, &req)
	if !ok {
		return
	}
	reply, err := h.Shards.Consume(c.Request.Context(), op, types.BlockAlias(req.Context))
	if !replyOK(c, reply, err) {
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Status: reply.Status.String()})
}

func (h *ApiHandler) RemoveCoin(c *gin.Context) {
	var req RemoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	op, ok := bindOutpoint(c, &req.CoinRequest)
	if !ok {
		return
	}
	var opt sozu.RemoveOption
	if req.Production {
		opt |= sozu.RemoveProduction
	}
	if req.Consumption {
		opt |= sozu.RemoveConsumption
	}
	if opt == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to remove"})
		return
	}

	reply, err := h.Shards.Remove(c.Request.Context(), op, types.BlockAlias(req.Context), opt)
	if !replyOK(c, reply, err) {
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Status: reply.Status.String()})
}

func bindOutpoint(c *gin.Context, req *CoinRequest) (types.Outpoint, bool) {
	op, err := types.ParseOutpoint(req.TxID, req.Vout)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not parse txid"})
		return types.Outpoint{}, false
	}
	return op, true
}

// replyOK writes the error response for anything but a successful reply.
func replyOK(c *gin.Context, reply shard.Reply, err error) bool {
	if err != nil {
		logging.L.Err(err).Msg("coin operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return false
	}
	code := statusCode(reply.Status)
	if code != http.StatusOK {
		c.JSON(code, StatusResponse{Status: reply.Status.String()})
		return false
	}
	return true
}

func statusCode(s sozu.Status) int {
	switch s {
	case sozu.Success:
		return http.StatusOK
	case sozu.OutpointNotFound:
		return http.StatusNotFound
	case sozu.InvalidContext:
		return http.StatusConflict
	case sozu.InvalidBlockHandle:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func chainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chain.ErrUnknownBlock):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, chain.ErrNotCommittable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logging.L.Err(err).Msg("block operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not persist block"})
	}
}

func coinResponse(rec *shard.CoinRecord) CoinResponse {
	return CoinResponse{
		TxID:        rec.Outpoint.TxID.String(),
		Vout:        rec.Outpoint.Index,
		Coinbase:    rec.IsCoinbase,
		Satoshis:    rec.Satoshis,
		BTC:         btcutil.Amount(rec.Satoshis).ToBTC(),
		LockTime:    rec.NLockTime,
		Script:      hex.EncodeToString(rec.Script),
		Production:  uint32(rec.Production),
		Consumption: uint32(rec.Consumption),
	}
}
