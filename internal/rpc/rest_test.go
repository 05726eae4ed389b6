package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/slpgraph/config"
	"github.com/Klingon-tech/slpgraph/internal/bch"
	"github.com/Klingon-tech/slpgraph/internal/slpdb"
	"github.com/Klingon-tech/slpgraph/internal/slptest"
	"github.com/Klingon-tech/slpgraph/internal/txgraph"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

func newTestREST(t *testing.T, cfg config.RPCConfig) (*REST, *testEnv) {
	t.Helper()
	ch, g, s := newIndexedChain(t)
	srv := New("127.0.0.1:0", ch, nil, cfg)
	env := &testEnv{server: srv, chain: ch, genesis: g, send: s, tokenID: slptest.ID(g)}
	return NewREST("127.0.0.1:0", srv), env
}

func restGet(t *testing.T, r *REST, path string, target interface{}) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)
	if target != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), target))
	}
	return rec.Code
}

func TestREST_Info(t *testing.T) {
	r, _ := newTestREST(t, config.RPCConfig{})

	var info bch.Info
	require.Equal(t, http.StatusOK, restGet(t, r, "/info", &info))
	assert.Equal(t, uint32(1), info.Height)
	assert.Equal(t, 1, info.Tokens)
}

func TestREST_GraphSearch(t *testing.T) {
	r, env := newTestREST(t, config.RPCConfig{})

	var res GraphSearchResult
	require.Equal(t, http.StatusOK, restGet(t, r, "/graphsearch/"+env.send.TxID.String(), &res))
	assert.Len(t, res.Txs, 2)

	assert.Equal(t, http.StatusNotFound, restGet(t, r, "/graphsearch/"+types.Hash{0x77}.String(), nil))
	assert.Equal(t, http.StatusBadRequest, restGet(t, r, "/graphsearch/zz", nil))
}

func TestREST_FailStatus(t *testing.T) {
	r, _ := newTestREST(t, config.RPCConfig{})
	tests := []struct {
		err  *Error
		want int
	}{
		{&Error{Code: CodeInvalidParams, Message: "bad"}, http.StatusBadRequest},
		{graphSearchError(types.Hash{1}, txgraph.ErrNotFound), http.StatusNotFound},
		{graphSearchError(types.Hash{1}, txgraph.ErrNotInGraph), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		r.fail(c, tt.err)
		assert.Equal(t, tt.want, rec.Code, tt.err.Message)
	}
}

func TestREST_Utxo(t *testing.T) {
	r, env := newTestREST(t, config.RPCConfig{})

	var u UtxoResult
	require.Equal(t, http.StatusOK, restGet(t, r, "/utxo/"+env.send.TxID.String()+"/2", &u))
	assert.Equal(t, uint32(2), u.Vout)
	assert.Equal(t, uint64(slptest.DustValue), u.Value)
	assert.Equal(t, uint32(1), u.Height)

	// Output 1 of the genesis was spent by the send.
	assert.Equal(t, http.StatusNotFound, restGet(t, r, "/utxo/"+env.genesis.TxID.String()+"/1", nil))
	assert.Equal(t, http.StatusBadRequest, restGet(t, r, "/utxo/"+env.send.TxID.String()+"/x", nil))
}

func TestREST_ScriptQueries(t *testing.T) {
	r, _ := newTestREST(t, config.RPCConfig{})
	script := slptest.P2PKH(2).Hex()

	var utxos []*UtxoResult
	require.Equal(t, http.StatusOK, restGet(t, r, "/utxo_scriptpubkey/"+script, &utxos))
	assert.Len(t, utxos, 2)

	require.Equal(t, http.StatusOK, restGet(t, r, "/utxo_scriptpubkey/"+script+"?limit=1", &utxos))
	assert.Len(t, utxos, 1)
	assert.Equal(t, http.StatusBadRequest, restGet(t, r, "/utxo_scriptpubkey/"+script+"?limit=-1", nil))

	var bal BalanceResult
	require.Equal(t, http.StatusOK, restGet(t, r, "/balance_scriptpubkey/"+script, &bal))
	assert.Equal(t, uint64(2*slptest.DustValue), bal.Balance)
}

func TestREST_ValidateAndToken(t *testing.T) {
	r, env := newTestREST(t, config.RPCConfig{})

	var v ValidateResult
	require.Equal(t, http.StatusOK, restGet(t, r, "/validate/"+env.send.TxID.String(), &v))
	assert.True(t, v.Valid)

	var meta slpdb.Metadata
	require.Equal(t, http.StatusOK, restGet(t, r, "/token/"+env.tokenID.String(), &meta))
	assert.Equal(t, "TEST", meta.Ticker)
	assert.Equal(t, http.StatusNotFound, restGet(t, r, "/token/"+types.Hash{0x05}.String(), nil))
}

func TestREST_IPFilter(t *testing.T) {
	r, _ := newTestREST(t, config.RPCConfig{AllowedIPs: []string{"10.0.0.0/8"}})
	assert.Equal(t, http.StatusForbidden, restGet(t, r, "/info", nil))
}
