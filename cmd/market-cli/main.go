package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"marketchain/crypto"
)

var rpcEndpoint = defaultRPCEndpoint()

func defaultRPCEndpoint() string {
	if fromEnv := strings.TrimSpace(os.Getenv("MARKET_RPC_URL")); fromEnv != "" {
		return fromEnv
	}
	return "http://localhost:8080"
}

func main() {
	args := os.Args[1:]
	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	switch command {
	case "generate-key":
		if len(args) < 2 {
			fail("Please provide a path for the new key file.")
		}
		generateKey(args[1])
	case "list":
		if len(args) < 4 {
			fail("Usage: list <name> <price> <keyfile>")
		}
		listProduct(args[1], args[2], args[3])
	case "buy":
		if len(args) < 4 {
			fail("Usage: buy <id> <payment> <keyfile>")
		}
		buyProduct(args[1], args[2], args[3])
	case "approve":
		if len(args) < 3 {
			fail("Usage: approve <amount> <keyfile>")
		}
		approve(args[1], args[2])
	case "confirm":
		if len(args) < 3 {
			fail("Usage: confirm <id> <keyfile>")
		}
		confirmDelivery(args[1], args[2])
	case "show":
		if len(args) < 2 {
			fail("Usage: show <id>")
		}
		showProduct(args[1])
	case "count":
		productCount()
	case "balance":
		if len(args) < 2 {
			fail("Usage: balance <address>")
		}
		getBalance(args[1])
	case "events":
		prefix := ""
		if len(args) > 1 {
			prefix = args[1]
		}
		listEvents(prefix)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

func printUsage() {
	fmt.Println("Usage: market-cli <command> [args]")
	fmt.Println("Commands:")
	fmt.Println("  generate-key <file>            Create a new key file and print its address")
	fmt.Println("  list <name> <price> <keyfile>  List a product for sale")
	fmt.Println("  buy <id> <payment> <keyfile>   Buy a product with an exact payment")
	fmt.Println("  approve <amount> <keyfile>     Approve a pull allowance (token settlement)")
	fmt.Println("  confirm <id> <keyfile>         Confirm delivery as the buyer")
	fmt.Println("  show <id>                      Show a product")
	fmt.Println("  count                          Show the product count")
	fmt.Println("  balance <address>              Show a settlement balance")
	fmt.Println("  events [prefix]                Show recorded marketplace events")
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, "Error: "+msg)
	os.Exit(1)
}

func generateKey(path string) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fail(err.Error())
	}
	if err := crypto.SaveKeyFile(path, key); err != nil {
		fail(err.Error())
	}
	fmt.Printf("New key saved to %s\n", path)
	fmt.Printf("Address: %s\n", key.PubKey().Address().String())
}

func addressFromKeyFile(path string) string {
	key, err := crypto.LoadKeyFile(path)
	if err != nil {
		fail(err.Error())
	}
	return key.PubKey().Address().String()
}

func listProduct(name, price, keyfile string) {
	seller := addressFromKeyFile(keyfile)
	result := call("market_listProduct", map[string]interface{}{
		"seller": seller,
		"name":   name,
		"price":  price,
	})
	printJSON(result)
}

func buyProduct(idArg, payment, keyfile string) {
	buyer := addressFromKeyFile(keyfile)
	call("market_buyProduct", map[string]interface{}{
		"buyer":   buyer,
		"id":      parseID(idArg),
		"payment": payment,
	})
	fmt.Printf("Product %s purchased by %s\n", idArg, buyer)
}

func approve(amount, keyfile string) {
	owner := addressFromKeyFile(keyfile)
	call("market_approve", map[string]interface{}{
		"owner":  owner,
		"amount": amount,
	})
	fmt.Printf("Approved allowance of %s for %s\n", amount, owner)
}

func confirmDelivery(idArg, keyfile string) {
	caller := addressFromKeyFile(keyfile)
	call("market_confirmDelivery", map[string]interface{}{
		"caller": caller,
		"id":     parseID(idArg),
	})
	fmt.Printf("Delivery of product %s confirmed\n", idArg)
}

func showProduct(idArg string) {
	result := call("market_getProduct", map[string]interface{}{"id": parseID(idArg)})
	printJSON(result)
}

func productCount() {
	result := call("market_productCount", nil)
	printJSON(result)
}

func getBalance(address string) {
	result := call("market_getBalance", map[string]interface{}{"address": address})
	printJSON(result)
}

func listEvents(prefix string) {
	params := map[string]interface{}{}
	if prefix != "" {
		params["prefix"] = prefix
	}
	result := call("market_listEvents", params)
	printJSON(result)
}

func parseID(arg string) uint64 {
	id, err := strconv.ParseUint(strings.TrimSpace(arg), 10, 64)
	if err != nil || id == 0 {
		fail("product id must be a positive integer")
	}
	return id
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func call(method string, params map[string]interface{}) json.RawMessage {
	reqParams := []interface{}{}
	if params != nil {
		reqParams = append(reqParams, params)
	}
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  reqParams,
		ID:      1,
	})
	if err != nil {
		fail(err.Error())
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(rpcEndpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		fail(err.Error())
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		fail(err.Error())
	}
	if decoded.Error != nil {
		fail(fmt.Sprintf("%s (code %d)", decoded.Error.Message, decoded.Error.Code))
	}
	return decoded.Result
}

func printJSON(raw json.RawMessage) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(pretty.String())
}
