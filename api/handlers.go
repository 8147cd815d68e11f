package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	"github.com/celer-network/aave-gas-station/aave"
	"github.com/celer-network/aave-gas-station/gasstation"
	"github.com/celer-network/aave-gas-station/storage"
	"github.com/celer-network/aave-gas-station/types"
	"github.com/celer-network/aave-gas-station/utils"
)

var errInvalidHash = errors.New("invalid transaction hash")

type walletRequest struct {
	Address string `uri:"address" binding:"required,len=42"`
}

type depositRequest struct {
	Address string         `json:"address" binding:"required,len=42"`
	Balance *types.Balance `json:"balance" binding:"required"`
	Nonce   *uint64        `json:"nonce"`
}

type approveRequest struct {
	Address string         `json:"address" binding:"required,len=42"`
	Balance *types.Balance `json:"balance" binding:"required"`
}

type rawTransactionRequest struct {
	Hex string `json:"hex" binding:"required"`
}

type buildResponse struct {
	Transaction         *types.PendingTransaction `json:"transaction"`
	SponsorshipRequired bool                      `json:"sponsorshipRequired"`
	Sponsorship         *gasstation.Sponsorship   `json:"sponsorship,omitempty"`
	SponsorshipError    string                    `json:"sponsorshipError,omitempty"`
}

func newBuildResponse(result *aave.BuildResult) *buildResponse {
	resp := &buildResponse{
		Transaction:         result.Transaction,
		SponsorshipRequired: result.SponsorshipRequired,
		Sponsorship:         result.Sponsorship,
	}
	if result.SponsorshipErr != nil {
		resp.SponsorshipError = result.SponsorshipErr.Error()
	}
	return resp
}

func healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getReserve(c *gin.Context) {
	s.reserve(c, s.reader.DepositToken())
}

func (s *Server) getCoinReserve(c *gin.Context) {
	s.reserve(c, c.Param("coin"))
}

func (s *Server) reserve(c *gin.Context, symbol string) {
	data, err := s.reader.ReserveData(c.Request.Context(), symbol)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

func (s *Server) getBalance(c *gin.Context) {
	var req walletRequest
	if err := c.ShouldBindUri(&req); err != nil {
		badRequest(c, err)
		return
	}
	balance, err := s.reader.Balance(c.Request.Context(), req.Address)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (s *Server) postDeposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := s.builder.BuildDeposit(c.Request.Context(), req.Balance, req.Address, req.Nonce)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBuildResponse(result))
}

func (s *Server) postApprove(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := s.builder.BuildApproval(c.Request.Context(), req.Balance, req.Address)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBuildResponse(result))
}

func (s *Server) postBroadcast(c *gin.Context) {
	var req rawTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := s.broadcaster.Broadcast(c.Request.Context(), req.Hex)
	if err != nil {
		if result != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "transactionHash": result.Hash})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) getTxStatus(c *gin.Context) {
	hash, err := parseHash(c.Param("hash"))
	if err != nil {
		badRequest(c, err)
		return
	}
	receipt, err := s.broadcaster.Status(c.Request.Context(), hash)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (s *Server) postGasStation(c *gin.Context) {
	sponsorship, err := s.relay.Sponsor(c.Request.Context(), c.Param("address"))
	if err != nil {
		status := errorStatus(err)
		if sponsorship != nil && status != http.StatusBadRequest {
			c.JSON(status, gin.H{"error": err.Error(), "sponsorship": sponsorship})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sponsorship)
}

func (s *Server) getSponsorship(c *gin.Context) {
	hash, err := parseHash(c.Param("hash"))
	if err != nil {
		badRequest(c, err)
		return
	}
	sponsorship, err := s.store.GetSponsorship(hash)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sponsorship)
}

func (s *Server) listSponsorships(c *gin.Context) {
	var req walletRequest
	if err := c.ShouldBindUri(&req); err != nil {
		badRequest(c, err)
		return
	}
	wallet, err := utils.ChecksumAddress(req.Address)
	if err != nil {
		badRequest(c, err)
		return
	}
	sponsorships, err := s.store.ListSponsorships(wallet)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sponsorships)
}

func parseHash(s string) (common.Hash, error) {
	if len(s) != 2+2*common.HashLength || !strings.HasPrefix(s, "0x") {
		return common.Hash{}, errInvalidHash
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, errInvalidHash
	}
	return common.BytesToHash(b), nil
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, utils.ErrInvalidAddress),
		errors.Is(err, aave.ErrUnknownToken),
		errors.Is(err, aave.ErrInvalidHex),
		errors.Is(err, aave.ErrNoBalance),
		errors.Is(err, errInvalidHash):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, aave.ErrPending):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func writeError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
