package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"marketchain/crypto"
	"marketchain/native/marketplace"
	"marketchain/native/marketplace/settlement"
)

const (
	codeMarketInvalidPrice   = -32041
	codeMarketNotFound       = -32042
	codeMarketConflict       = -32043
	codeMarketInvalidPayment = -32044
	codeMarketForbidden      = -32045
	codeMarketTransfer       = -32046
)

func (s *Server) methods() map[string]handlerFunc {
	return map[string]handlerFunc{
		"market_listProduct":     s.handleListProduct,
		"market_buyProduct":      s.handleBuyProduct,
		"market_confirmDelivery": s.handleConfirmDelivery,
		"market_getProduct":      s.handleGetProduct,
		"market_productCount":    s.handleProductCount,
		"market_approve":         s.handleApprove,
		"market_getBalance":      s.handleGetBalance,
		"market_listEvents":      s.handleListEvents,
	}
}

type listProductParams struct {
	Seller string `json:"seller"`
	Name   string `json:"name"`
	Price  string `json:"price"`
}

type buyProductParams struct {
	Buyer   string `json:"buyer"`
	ID      uint64 `json:"id"`
	Payment string `json:"payment"`
}

type confirmDeliveryParams struct {
	Caller string `json:"caller"`
	ID     uint64 `json:"id"`
}

type getProductParams struct {
	ID uint64 `json:"id"`
}

type approveParams struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

type getBalanceParams struct {
	Address string `json:"address"`
}

type listEventsParams struct {
	Prefix string `json:"prefix,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type productJSON struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Seller    string `json:"seller"`
	Buyer     string `json:"buyer,omitempty"`
	Sold      bool   `json:"sold"`
	Confirmed bool   `json:"confirmed"`
}

type eventJSON struct {
	Sequence   int64             `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func productToJSON(p *marketplace.Product) productJSON {
	out := productJSON{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price.String(),
		Seller:    crypto.NewAddress(crypto.MKTPrefix, p.Seller[:]).String(),
		Sold:      p.Sold,
		Confirmed: p.Confirmed,
	}
	if p.Buyer != ([20]byte{}) {
		out.Buyer = crypto.NewAddress(crypto.MKTPrefix, p.Buyer[:]).String()
	}
	return out
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) == 0 {
		return fmt.Errorf("params required")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddr(field, value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid %s address: %v", field, err)
	}
	return addr.Raw(), nil
}

func parseAmount(field, value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s amount: %q", field, value)
	}
	return amount, nil
}

func marketError(err error) (int, int, string) {
	switch {
	case errors.Is(err, marketplace.ErrInvalidPrice):
		return http.StatusBadRequest, codeMarketInvalidPrice, err.Error()
	case errors.Is(err, marketplace.ErrProductNotFound):
		return http.StatusNotFound, codeMarketNotFound, err.Error()
	case errors.Is(err, marketplace.ErrAlreadySold), errors.Is(err, marketplace.ErrAlreadyConfirmed):
		return http.StatusConflict, codeMarketConflict, err.Error()
	case errors.Is(err, marketplace.ErrInvalidPayment):
		return http.StatusBadRequest, codeMarketInvalidPayment, err.Error()
	case errors.Is(err, marketplace.ErrNotBuyer):
		return http.StatusForbidden, codeMarketForbidden, err.Error()
	case errors.Is(err, marketplace.ErrTransferFailed):
		return http.StatusConflict, codeMarketTransfer, err.Error()
	case errors.Is(err, settlement.ErrApproveUnsupported):
		return http.StatusBadRequest, codeInvalidParams, err.Error()
	default:
		return http.StatusInternalServerError, codeServerError, err.Error()
	}
}

func (s *Server) invalidParams(w http.ResponseWriter, req *RPCRequest, err error) *RPCError {
	rpcErr := &RPCError{Code: codeInvalidParams, Message: err.Error()}
	writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message)
	return rpcErr
}

func (s *Server) marketFailure(w http.ResponseWriter, req *RPCRequest, err error) *RPCError {
	status, code, message := marketError(err)
	writeError(w, status, req.ID, code, message)
	return &RPCError{Code: code, Message: message}
}

func (s *Server) handleListProduct(w http.ResponseWriter, _ *http.Request, req *RPCRequest) *RPCError {
	var params listProductParams
	if err := decodeParams(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	seller, err := parseAddr("seller", params.Seller)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	price, err := parseAmount("price", params.Price)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	product, err := s.node.ListProduct(seller, params.Name, price)
	if err != nil {
		return s.marketFailure(w, req, err)
	}
	writeResult(w, req.ID, productToJSON(product))
	return nil
}

func (s *Server) handleBuyProduct(w http.ResponseWriter, _ *http.Request, req *RPCRequest) *RPCError {
	var params buyProductParams
	if err := decodeParams(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	buyer, err := parseAddr("buyer", params.Buyer)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	payment, err := parseAmount("payment", params.Payment)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	if err := s.node.BuyProduct(buyer, params.ID, payment); err != nil {
		return s.marketFailure(w, req, err)
	}
	writeResult(w, req.ID, true)
	return nil
}

func (s *Server) handleConfirmDelivery(w http.ResponseWriter, _ *http.Request, req *RPCRequest) *RPCError {
	var params confirmDeliveryParams
	if err := decodeParams(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	caller, err := parseAddr("caller", params.Caller)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	if err := s.node.ConfirmDelivery(caller, params.ID); err != nil {
		return s.marketFailure(w, req, err)
	}
	writeResult(w, req.ID, true)
	return nil
}

func (s *Server) handleGetProduct(w http.ResponseWriter, _ *http.Request, req *RPCRequest) *RPCError {
	var params getProductParams
	if err := decodeParams(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	product, err := s.node.GetProduct(params.ID)
	if err != nil {
		return s.marketFailure(w, req, err)
	}
	writeResult(w, req.ID, productToJSON(product))
	return nil
}

func (s *Server) handleProductCount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) *RPCError {
	count, err := s.node.ProductCount()
	if err != nil {
		return s.marketFailure(w, req, err)
	}
	writeResult(w, req.ID, strconv.FormatUint(count, 10))
	return nil
}

func (s *Server) handleApprove(w http.ResponseWriter, _ *http.Request, req *RPCRequest) *RPCError {
	var params approveParams
	if err := decodeParams(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	owner, err := parseAddr("owner", params.Owner)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	if err := s.node.Approve(owner, amount); err != nil {
		return s.marketFailure(w, req, err)
	}
	writeResult(w, req.ID, true)
	return nil
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) *RPCError {
	var params getBalanceParams
	if err := decodeParams(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	addr, err := parseAddr("account", params.Address)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	balance, err := s.node.Balance(addr)
	if err != nil {
		return s.marketFailure(w, req, err)
	}
	writeResult(w, req.ID, balance.String())
	return nil
}

func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) *RPCError {
	params := listEventsParams{}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			return s.invalidParams(w, req, err)
		}
	}
	recorded := s.node.Events(params.Prefix, params.Limit)
	out := make([]eventJSON, 0, len(recorded))
	for _, rec := range recorded {
		out = append(out, eventJSON{Sequence: rec.Sequence, Type: rec.Event.Type, Attributes: rec.Event.Attributes})
	}
	writeResult(w, req.ID, out)
	return nil
}

func rpcErrCodeLabel(code int) string {
	return strconv.Itoa(code)
}
