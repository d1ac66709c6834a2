package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func rpcServer(t *testing.T, handler func(req rpcRequest) (interface{}, *RPCError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.JSONRPC != "2.0" {
			t.Errorf("jsonrpc = %s, want 2.0", req.JSONRPC)
		}

		result, rpcErr := handler(req)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestGetLatestBlockhash(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) (interface{}, *RPCError) {
		if req.Method != "getLatestBlockhash" {
			t.Errorf("method = %s", req.Method)
		}
		return map[string]interface{}{
			"value": map[string]interface{}{
				"blockhash":            "9sHcv6xwn9YkB8nxTUGKDwPwNnmqVp5oLhhRMNvg5CXH",
				"lastValidBlockHeight": 250_000_100,
			},
		}, nil
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	bh, err := client.GetLatestBlockhash(context.Background())
	if err != nil {
		t.Fatalf("GetLatestBlockhash: %v", err)
	}
	if bh.Blockhash != "9sHcv6xwn9YkB8nxTUGKDwPwNnmqVp5oLhhRMNvg5CXH" {
		t.Errorf("blockhash = %s", bh.Blockhash)
	}
	if bh.LastValidBlockHeight != 250_000_100 {
		t.Errorf("lastValidBlockHeight = %d", bh.LastValidBlockHeight)
	}
}

func TestSendTransaction(t *testing.T) {
	payload := []byte{1, 2, 3, 4}

	server := rpcServer(t, func(req rpcRequest) (interface{}, *RPCError) {
		if req.Method != "sendTransaction" {
			t.Errorf("method = %s", req.Method)
		}
		if len(req.Params) != 2 {
			t.Fatalf("params = %d, want 2", len(req.Params))
		}
		encoded, _ := req.Params[0].(string)
		if encoded != base64.StdEncoding.EncodeToString(payload) {
			t.Errorf("payload not base64 of the wire bytes: %s", encoded)
		}
		opts, _ := req.Params[1].(map[string]interface{})
		if opts["skipPreflight"] != true {
			t.Error("preflight must be skipped")
		}
		if opts["encoding"] != "base64" {
			t.Errorf("encoding = %v", opts["encoding"])
		}
		return "5VERYrealSignature111111111111111111111111111", nil
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	sig, err := client.SendTransaction(context.Background(), payload)
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if sig != "5VERYrealSignature111111111111111111111111111" {
		t.Errorf("signature = %s", sig)
	}
}

func TestSendTransaction_RPCErrorNotRetried(t *testing.T) {
	var calls int
	server := rpcServer(t, func(rpcRequest) (interface{}, *RPCError) {
		calls++
		return nil, &RPCError{Code: -32002, Message: "Transaction simulation failed"}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond))
	_, err := client.SendTransaction(context.Background(), []byte{1})

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %v", err)
	}
	if rpcErr.Code != -32002 {
		t.Errorf("code = %d", rpcErr.Code)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (RPC errors are terminal)", calls)
	}
}

func TestCall_TransportErrorRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":777}`, req.ID)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond))
	height, err := client.GetBlockHeight(context.Background())
	if err != nil {
		t.Fatalf("GetBlockHeight: %v", err)
	}
	if height != 777 {
		t.Errorf("height = %d, want 777", height)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestGetSignatureStatuses_NilForUnknown(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) (interface{}, *RPCError) {
		if req.Method != "getSignatureStatuses" {
			t.Errorf("method = %s", req.Method)
		}
		return map[string]interface{}{
			"value": []interface{}{
				nil,
				map[string]interface{}{
					"slot":               12345,
					"confirmations":      nil,
					"confirmationStatus": "finalized",
					"err":                nil,
				},
			},
		}, nil
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	statuses, err := client.GetSignatureStatuses(context.Background(), []string{"unknown", "known"})
	if err != nil {
		t.Fatalf("GetSignatureStatuses: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("statuses = %d, want 2", len(statuses))
	}
	if statuses[0] != nil {
		t.Error("unknown signature must map to a nil entry")
	}
	if statuses[1] == nil || !statuses[1].Confirmed() {
		t.Errorf("known signature not confirmed: %+v", statuses[1])
	}
}

func TestGetAccountInfo(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) (interface{}, *RPCError) {
		if req.Method != "getAccountInfo" {
			t.Errorf("method = %s", req.Method)
		}
		return map[string]interface{}{
			"value": map[string]interface{}{
				"lamports":   2_039_280,
				"owner":      "PERPHjGBqRHArX4DySjwM6UJHiR3sWAatqfdBS2qQJu",
				"data":       []string{"aGVsbG8=", "base64"},
				"executable": false,
				"rentEpoch":  361,
			},
		}, nil
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	info, err := client.GetAccountInfo(context.Background(), "somekey")
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info == nil {
		t.Fatal("expected account info")
	}
	if info.Lamports != 2_039_280 || info.Data != "aGVsbG8=" {
		t.Errorf("info = %+v", info)
	}
}

func TestGetAccountInfo_AbsentIsNil(t *testing.T) {
	server := rpcServer(t, func(rpcRequest) (interface{}, *RPCError) {
		return map[string]interface{}{"value": nil}, nil
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	info, err := client.GetAccountInfo(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info != nil {
		t.Errorf("expected nil for absent account, got %+v", info)
	}
}

func TestCall_RequestIDsIncrement(t *testing.T) {
	var ids []uint64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		ids = append(ids, req.ID)
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":1}`, req.ID)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	for i := 0; i < 3; i++ {
		if _, err := client.GetBlockHeight(context.Background()); err != nil {
			t.Fatalf("GetBlockHeight: %v", err)
		}
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Errorf("request ids = %v, want [1 2 3]", ids)
	}
}
