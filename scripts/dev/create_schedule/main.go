package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/vultisig/dca-plugin/api"
	"github.com/vultisig/dca-plugin/common"
	"github.com/vultisig/dca-plugin/config"
	"github.com/vultisig/dca-plugin/internal/types"
)

var (
	sender     string
	configName string
	denom      string
)

func main() {
	flag.StringVar(&sender, "sender", "", "owner address")
	flag.StringVar(&configName, "config", "config", "server config name")
	flag.StringVar(&denom, "denom", "", "denom of the deposit, defaults to the quote denom")
	flag.Parse()

	owner, err := common.NormalizeAddress(sender)
	if err != nil {
		panic(err)
	}

	serverConfig, err := config.ReadConfig(configName)
	if err != nil {
		panic(err)
	}
	if denom == "" {
		pluginConfig, err := serverConfig.DCAPluginConfig()
		if err != nil {
			panic(err)
		}
		denom = pluginConfig.Instantiate.DenomQuote
	}

	reader := bufio.NewReader(os.Stdin)
	deposit := prompt(reader, fmt.Sprintf("Enter the deposit amount in %s: ", denom))
	maxSell := prompt(reader, "Enter the max sell amount per pass: ")
	slippage := prompt(reader, "Enter the max slippage in basis points: ")

	amount, err := sdkmath.ParseUint(deposit)
	if err != nil {
		panic(err)
	}
	maxSellAmount, err := sdkmath.ParseUint(maxSell)
	if err != nil {
		panic(err)
	}
	var basisPoints uint64
	if _, err := fmt.Sscan(slippage, &basisPoints); err != nil {
		panic(err)
	}

	req := api.CreateScheduleRequest{
		Funds:                  []types.Coin{types.NewCoin(denom, amount)},
		MaxSellAmount:          maxSellAmount,
		MaxSlippageBasisPoints: basisPoints,
	}
	reqBytes, err := json.Marshal(req)
	if err != nil {
		panic(err)
	}
	fmt.Println("Schedule request", string(reqBytes))

	pluginHost := fmt.Sprintf("http://%s:%d", serverConfig.Server.Host, serverConfig.Server.Port)
	fmt.Printf("Creating schedule on plugin server: %s\n", pluginHost)

	httpReq, err := http.NewRequest(http.MethodPost, pluginHost+"/dca/schedules", bytes.NewBuffer(reqBytes))
	if err != nil {
		panic(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Sender", owner)
	httpReq.Header.Set("Idempotency-Key", uuid.New().String())

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("Request sent: %d\n%s\n", resp.StatusCode, body)
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	value, _ := reader.ReadString('\n')
	return strings.TrimSpace(value)
}
