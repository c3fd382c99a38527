package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"marketchain/core"
	"marketchain/crypto"
	"marketchain/native/marketplace/settlement"
	"marketchain/storage"
)

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func bech(addr [20]byte) string {
	return crypto.NewAddress(crypto.MKTPrefix, addr[:]).String()
}

func newTestServer(t *testing.T) (*httptest.Server, *core.Node) {
	t.Helper()
	asset, err := settlement.NewTokenAsset("USDC", 6)
	require.NoError(t, err)
	node, err := core.NewNode(storage.NewMemDB(), asset)
	require.NoError(t, err)
	server := NewServer(node, nil)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts, node
}

func rpcCall(t *testing.T, ts *httptest.Server, method string, params interface{}) (*http.Response, RPCResponse) {
	t.Helper()
	reqParams := []interface{}{}
	if params != nil {
		reqParams = append(reqParams, params)
	}
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  reqParams,
		"id":      1,
	})
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMethodNotFound(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, decoded := rpcCall(t, ts, "market_unknown", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeMethodNotFound, decoded.Error.Code)
}

func TestListAndGetProduct(t *testing.T) {
	ts, _ := newTestServer(t)
	seller := testAddr(0x01)

	_, decoded := rpcCall(t, ts, "market_listProduct", map[string]interface{}{
		"seller": bech(seller),
		"name":   "Product 1",
		"price":  "100",
	})
	require.Nil(t, decoded.Error)

	var listed productJSON
	raw, err := json.Marshal(decoded.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &listed))
	require.Equal(t, uint64(1), listed.ID)
	require.Equal(t, "100000000", listed.Price, "price must be scaled to base units")
	require.False(t, listed.Sold)

	_, decoded = rpcCall(t, ts, "market_productCount", nil)
	require.Nil(t, decoded.Error)
	require.Equal(t, "1", decoded.Result)

	resp, decoded := rpcCall(t, ts, "market_getProduct", map[string]interface{}{"id": 2})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, codeMarketNotFound, decoded.Error.Code)
}

func TestListProductRejectsZeroPrice(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, decoded := rpcCall(t, ts, "market_listProduct", map[string]interface{}{
		"seller": bech(testAddr(0x01)),
		"name":   "Product 1",
		"price":  "0",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, codeMarketInvalidPrice, decoded.Error.Code)
}

func TestPurchaseFlowOverRPC(t *testing.T) {
	ts, node := newTestServer(t)
	seller := testAddr(0x01)
	buyer := testAddr(0x02)
	require.NoError(t, node.ApplyGenesis([]core.GenesisAlloc{{Address: buyer, Balance: big.NewInt(100_000_000)}}))

	_, decoded := rpcCall(t, ts, "market_listProduct", map[string]interface{}{
		"seller": bech(seller), "name": "Product 1", "price": "100",
	})
	require.Nil(t, decoded.Error)

	_, decoded = rpcCall(t, ts, "market_approve", map[string]interface{}{
		"owner": bech(buyer), "amount": "100000000",
	})
	require.Nil(t, decoded.Error)

	// Wrong payment first.
	resp, decoded := rpcCall(t, ts, "market_buyProduct", map[string]interface{}{
		"buyer": bech(buyer), "id": 1, "payment": "99",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, codeMarketInvalidPayment, decoded.Error.Code)

	_, decoded = rpcCall(t, ts, "market_buyProduct", map[string]interface{}{
		"buyer": bech(buyer), "id": 1, "payment": "100",
	})
	require.Nil(t, decoded.Error)

	// Third party cannot confirm.
	resp, decoded = rpcCall(t, ts, "market_confirmDelivery", map[string]interface{}{
		"caller": bech(seller), "id": 1,
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, codeMarketForbidden, decoded.Error.Code)

	_, decoded = rpcCall(t, ts, "market_confirmDelivery", map[string]interface{}{
		"caller": bech(buyer), "id": 1,
	})
	require.Nil(t, decoded.Error)

	// Double confirmation rejected.
	resp, decoded = rpcCall(t, ts, "market_confirmDelivery", map[string]interface{}{
		"caller": bech(buyer), "id": 1,
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, codeMarketConflict, decoded.Error.Code)

	_, decoded = rpcCall(t, ts, "market_getBalance", map[string]interface{}{"address": bech(seller)})
	require.Nil(t, decoded.Error)
	require.Equal(t, "100000000", decoded.Result)

	_, decoded = rpcCall(t, ts, "market_listEvents", map[string]interface{}{"prefix": "marketplace."})
	require.Nil(t, decoded.Error)
	events, ok := decoded.Result.([]interface{})
	require.True(t, ok, fmt.Sprintf("unexpected result type %T", decoded.Result))
	require.Len(t, events, 3)
}

func TestInvalidAddressParam(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, decoded := rpcCall(t, ts, "market_getBalance", map[string]interface{}{"address": "not-an-address"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, codeInvalidParams, decoded.Error.Code)
}
