package rpc

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Klingon-tech/slpgraph/pkg/types"
)

// REST is a read-only HTTP gateway over the same queries as the JSON-RPC
// server. Errors are returned as {"error": "..."} with a matching status.
type REST struct {
	addr   string
	rpc    *Server
	router *gin.Engine
	server *http.Server
	ln     net.Listener
}

// NewREST creates a gateway that answers from the RPC server's chain and
// shares its IP allow list.
func NewREST(addr string, s *Server) *REST {
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = io.Discard

	r := &REST{addr: addr, rpc: s, router: gin.New()}
	r.router.Use(gin.Recovery(), r.allowIP)
	r.setupRoutes()
	r.server = &http.Server{
		Handler:      r.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}
	return r
}

func (r *REST) setupRoutes() {
	r.router.GET("/info", r.getInfo)
	r.router.GET("/graphsearch/:txid", r.getGraphSearch)
	r.router.GET("/utxo/:txid/:vout", r.getUtxo)
	r.router.GET("/utxo_scriptpubkey/:script", r.getUtxosByScript)
	r.router.GET("/balance_scriptpubkey/:script", r.getBalance)
	r.router.GET("/validate/:txid", r.getValidate)
	r.router.GET("/token/:tokenid", r.getToken)
}

// Handler returns the gateway's HTTP handler.
func (r *REST) Handler() http.Handler { return r.router }

// Start begins serving in a background goroutine.
func (r *REST) Start() error {
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("rest listen: %w", err)
	}
	r.ln = ln
	go func() {
		if err := r.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			r.rpc.logger.Error().Err(err).Msg("REST server error")
		}
	}()
	r.rpc.logger.Info().Str("addr", ln.Addr().String()).Msg("REST gateway listening")
	return nil
}

// Addr returns the listener address.
func (r *REST) Addr() string {
	if r.ln != nil {
		return r.ln.Addr().String()
	}
	return r.addr
}

// Stop gracefully shuts down the gateway.
func (r *REST) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.server.Shutdown(ctx)
}

func (r *REST) allowIP(c *gin.Context) {
	if !r.rpc.remoteAllowed(c.Request) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}

func (r *REST) fail(c *gin.Context, e *Error) {
	status := http.StatusInternalServerError
	switch e.Code {
	case CodeInvalidParams:
		status = http.StatusBadRequest
	case CodeNotFound:
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": e.Message})
}

func (r *REST) getInfo(c *gin.Context) {
	c.JSON(http.StatusOK, r.rpc.chain.Info())
}

func (r *REST) getGraphSearch(c *gin.Context) {
	txid, e := parseTxID(c.Param("txid"))
	if e != nil {
		r.fail(c, e)
		return
	}
	res, e := r.rpc.graphSearch(txid)
	if e != nil {
		r.fail(c, e)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (r *REST) getUtxo(c *gin.Context) {
	txid, e := parseTxID(c.Param("txid"))
	if e != nil {
		r.fail(c, e)
		return
	}
	vout, err := strconv.ParseUint(c.Param("vout"), 10, 32)
	if err != nil {
		r.fail(c, &Error{Code: CodeInvalidParams, Message: "invalid vout"})
		return
	}
	res := r.rpc.utxosByOutpoints([]types.Outpoint{{TxID: txid, Index: uint32(vout)}})
	if res[0] == nil {
		r.fail(c, &Error{Code: CodeNotFound, Message: "utxo not found"})
		return
	}
	c.JSON(http.StatusOK, res[0])
}

func (r *REST) getUtxosByScript(c *gin.Context) {
	script, e := parseScript(c.Param("script"))
	if e != nil {
		r.fail(c, e)
		return
	}
	limit := DefaultUtxoLimit
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			r.fail(c, &Error{Code: CodeInvalidParams, Message: "invalid limit"})
			return
		}
		limit = min(n, MaxUtxoLimit)
	}
	c.JSON(http.StatusOK, r.rpc.utxosByScript(script, limit))
}

func (r *REST) getBalance(c *gin.Context) {
	script, e := parseScript(c.Param("script"))
	if e != nil {
		r.fail(c, e)
		return
	}
	c.JSON(http.StatusOK, &BalanceResult{Script: script.Hex(), Balance: r.rpc.chain.Balance(script)})
}

func (r *REST) getValidate(c *gin.Context) {
	txid, e := parseTxID(c.Param("txid"))
	if e != nil {
		r.fail(c, e)
		return
	}
	res, e := r.rpc.validate(txid)
	if e != nil {
		r.fail(c, e)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (r *REST) getToken(c *gin.Context) {
	id, e := parseTokenID(c.Param("tokenid"))
	if e != nil {
		r.fail(c, e)
		return
	}
	meta, ok := r.rpc.chain.Token(id)
	if !ok {
		r.fail(c, &Error{Code: CodeNotFound, Message: "token not found"})
		return
	}
	c.JSON(http.StatusOK, meta)
}
