package polymarket

// exchange.go implements ports.ExchangeClient against the CLOB API plus
// the on-chain pieces the API cannot do: the sell-side capability grant is
// an ERC-1155 setApprovalForAll transaction on the CTF contract.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alvarohm/upbot/internal/domain"
)

const (
	// CTF contract on Polygon; holds outcome tokens (ERC-1155).
	ctfAddress = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"
	// CTF exchange that needs approval to move sold tokens.
	exchangeAddress = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"

	approvalGasLimit = uint64(80_000)
	receiptTimeout   = 30 * time.Second
	receiptPollEvery = 2 * time.Second
)

var erc1155ABI abi.ABI

func init() {
	var err error
	erc1155ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "setApprovalForAll",
			"type": "function",
			"inputs": [
				{"name": "operator", "type": "address"},
				{"name": "approved", "type": "bool"}
			],
			"outputs": []
		}
	]`))
	if err != nil {
		panic("erc1155 abi parse: " + err.Error())
	}
}

// Exchange implements ports.ExchangeClient.
type Exchange struct {
	auth *AuthClient
	rpc  *ethclient.Client
}

// NewExchange creates the exchange adapter. rpcURL is a Polygon RPC
// endpoint used for the allowance-grant transaction.
func NewExchange(auth *AuthClient, rpcURL string) (*Exchange, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("exchange: dial rpc: %w", err)
	}
	return &Exchange{auth: auth, rpc: rpc}, nil
}

type orderRequest struct {
	Order     orderBody `json:"order"`
	Owner     string    `json:"owner"`
	OrderType string    `json:"orderType"`
}

type orderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type orderResponse struct {
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
	Success  bool   `json:"success"`
}

type balanceAllowanceResponse struct {
	Balance   string `json:"balance"`
	Allowance string `json:"allowance"`
}

// PlaceOrder signs and submits a GTC limit order. price in dollars, size
// in shares.
func (ex *Exchange) PlaceOrder(ctx context.Context, tokenID string, side domain.Side, price, size float64) (string, error) {
	if err := ex.auth.EnsureCreds(ctx); err != nil {
		return "", fmt.Errorf("place order: creds: %w", err)
	}

	signed, err := ex.auth.buildSignedOrder(tokenID, side, price, size)
	if err != nil {
		return "", fmt.Errorf("place order: sign: %w", err)
	}

	body := orderRequest{
		Order: orderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       tokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          string(side),
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     ex.auth.creds.APIKey,
		OrderType: "GTC",
	}

	var resp orderResponse
	if err := ex.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return "", fmt.Errorf("place order: post: %w", err)
	}
	if !resp.Success || resp.ErrorMsg != "" {
		return "", fmt.Errorf("place order: clob error: %s", resp.ErrorMsg)
	}
	return resp.OrderID, nil
}

// CancelAllOrders cancels every open order for this wallet.
func (ex *Exchange) CancelAllOrders(ctx context.Context) error {
	if err := ex.auth.EnsureCreds(ctx); err != nil {
		return fmt.Errorf("cancel all: creds: %w", err)
	}
	if err := ex.auth.doL2(ctx, http.MethodDelete, "/orders", nil, nil); err != nil {
		return fmt.Errorf("cancel all: %w", err)
	}
	return nil
}

// GetBalanceAndAllowance returns held and sellable shares for a token.
// The CLOB reports both in micro-units (1e6 per share).
func (ex *Exchange) GetBalanceAndAllowance(ctx context.Context, tokenID string) (domain.Balance, error) {
	if err := ex.auth.EnsureCreds(ctx); err != nil {
		return domain.Balance{}, fmt.Errorf("balance: creds: %w", err)
	}

	path := "/balance-allowance?asset_type=CONDITIONAL&token_id=" + tokenID
	var resp balanceAllowanceResponse
	if err := ex.auth.doL2(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return domain.Balance{}, fmt.Errorf("balance %s: %w", tokenID, err)
	}

	return domain.Balance{
		Total:     microToShares(resp.Balance),
		Allowance: microToShares(resp.Allowance),
	}, nil
}

// GrantAllowance sends the ERC-1155 setApprovalForAll transaction letting
// the exchange contract move this wallet's outcome tokens. The approval is
// account-wide, so one grant covers every token; tokenID only appears in
// the log line.
func (ex *Exchange) GrantAllowance(ctx context.Context, tokenID string) error {
	callData, err := erc1155ABI.Pack("setApprovalForAll", common.HexToAddress(exchangeAddress), true)
	if err != nil {
		return fmt.Errorf("grant allowance: pack: %w", err)
	}

	nonce, err := ex.rpc.PendingNonceAt(ctx, ex.auth.address)
	if err != nil {
		return fmt.Errorf("grant allowance: nonce: %w", err)
	}
	gasPrice, err := ex.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("grant allowance: gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, common.HexToAddress(ctfAddress), big.NewInt(0), approvalGasLimit, gasPrice, callData)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(polygonChainID)), ex.auth.privateKey)
	if err != nil {
		return fmt.Errorf("grant allowance: sign tx: %w", err)
	}
	if err := ex.rpc.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("grant allowance: send tx: %w", err)
	}

	receiptCtx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()
	receipt, err := ex.waitForReceipt(receiptCtx, signed.Hash())
	if err != nil {
		return fmt.Errorf("grant allowance: wait receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("grant allowance: tx reverted")
	}

	slog.Info("sell allowance granted", "token", tokenID, "tx", signed.Hash().Hex())
	return nil
}

// waitForReceipt polls until the transaction is mined or ctx expires.
func (ex *Exchange) waitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	for {
		receipt, err := ex.rpc.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-time.After(receiptPollEvery):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// microToShares converts a micro-unit string ("1000000") to shares.
func microToShares(s string) float64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return n / 1_000_000
}
