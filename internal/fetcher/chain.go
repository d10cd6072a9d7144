package fetcher

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"marketpulse/internal/storage"
)

// PriceOfFunc supplies the current USD price of the chain's native
// asset, typically backed by the canonical store's latest price point.
type PriceOfFunc func(ctx context.Context) (decimal.Decimal, error)

// ChainOptions parameterise the on-chain whale watcher.
type ChainOptions struct {
	RPCURL            string
	Blockchain        string
	NativeSymbol      string
	BlocksPerScan     int
	MinValueUSD       float64
	ExchangeAddresses []string
	Timeout           time.Duration
}

// ChainWatcher scans recent blocks for native transfers large enough
// to qualify as whale transactions.
type ChainWatcher struct {
	opts    ChainOptions
	logger  zerolog.Logger
	priceOf PriceOfFunc

	exchanges map[string]struct{}

	mu          sync.Mutex
	client      *ethclient.Client
	signer      types.Signer
	lastScanned uint64
}

// NewChainWatcher builds an on-chain watcher. priceOf is required to
// convert native amounts into USD for the whale threshold.
func NewChainWatcher(opts ChainOptions, priceOf PriceOfFunc, logger zerolog.Logger) *ChainWatcher {
	exchanges := make(map[string]struct{}, len(opts.ExchangeAddresses))
	for _, addr := range opts.ExchangeAddresses {
		exchanges[strings.ToLower(addr)] = struct{}{}
	}

	return &ChainWatcher{
		opts:      opts,
		logger:    logger.With().Str("component", "chain_watcher").Logger(),
		priceOf:   priceOf,
		exchanges: exchanges,
	}
}

// FetchTransactions scans at most BlocksPerScan new blocks and returns
// qualifying transfers. Blocks already scanned are skipped, so a slow
// chain or a skipped tick never causes duplicate work.
func (c *ChainWatcher) FetchTransactions(ctx context.Context) ([]storage.WhaleTransaction, error) {
	if c.opts.RPCURL == "" {
		return nil, errors.New("chain rpc url not configured")
	}
	if c.priceOf == nil {
		return nil, errors.New("native asset price source not configured")
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	price, err := c.priceOf(ctx)
	if err != nil {
		return nil, err
	}
	if price.IsZero() {
		return nil, errors.New("native asset price unavailable")
	}

	client, signer, err := c.getClient(ctx)
	if err != nil {
		return nil, unavailable("chain scan", err)
	}

	head, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, unavailable("chain scan", err)
	}

	c.mu.Lock()
	lastScanned := c.lastScanned
	c.mu.Unlock()

	perScan := uint64(c.opts.BlocksPerScan)
	if perScan == 0 {
		perScan = 10
	}
	from, ok := scanWindow(lastScanned, head, perScan)
	if !ok {
		return nil, nil
	}

	minUSD := decimal.NewFromFloat(c.opts.MinValueUSD)
	weiPerEth := decimal.New(1, 18)

	var txs []storage.WhaleTransaction
	for number := from; number <= head; number++ {
		block, err := client.BlockByNumber(ctx, new(big.Int).SetUint64(number))
		if err != nil {
			return txs, unavailable("chain scan", err)
		}

		blockTime := time.Unix(int64(block.Time()), 0).UTC()
		for _, tx := range block.Transactions() {
			if tx.To() == nil || tx.Value().Sign() <= 0 {
				continue
			}

			amount := decimal.NewFromBigInt(tx.Value(), 0).Div(weiPerEth)
			amountUSD := amount.Mul(price)
			if amountUSD.LessThan(minUSD) {
				continue
			}

			sender, err := types.Sender(signer, tx)
			if err != nil {
				c.logger.Warn().Err(err).Str("tx", tx.Hash().Hex()).Msg("cannot recover sender")
				continue
			}

			fromAddr := strings.ToLower(sender.Hex())
			toAddr := strings.ToLower(tx.To().Hex())
			txs = append(txs, storage.WhaleTransaction{
				Timestamp:       blockTime,
				Blockchain:      c.opts.Blockchain,
				TxHash:          tx.Hash().Hex(),
				FromAddress:     fromAddr,
				ToAddress:       toAddr,
				Symbol:          c.opts.NativeSymbol,
				Amount:          amount,
				AmountUSD:       amountUSD,
				FromType:        c.addressType(fromAddr),
				ToType:          c.addressType(toAddr),
				TransactionType: classifyFlow(c.addressType(fromAddr), c.addressType(toAddr)),
			})
		}
	}

	c.mu.Lock()
	c.lastScanned = head
	c.mu.Unlock()

	return txs, nil
}

// scanWindow picks the next block range [from, head] to scan. The
// first run and a watcher that fell too far behind both collapse to
// the newest perScan blocks; a chain shorter than perScan scans from
// genesis instead of wrapping below block 1.
func scanWindow(lastScanned, head, perScan uint64) (uint64, bool) {
	if head == 0 || lastScanned >= head {
		return 0, false
	}
	from := lastScanned + 1
	if lastScanned == 0 || head-from >= perScan {
		if head <= perScan {
			from = 1
		} else {
			from = head - perScan + 1
		}
	}
	return from, true
}

func (c *ChainWatcher) addressType(addr string) string {
	if _, ok := c.exchanges[addr]; ok {
		return "exchange"
	}
	return "wallet"
}

func (c *ChainWatcher) getClient(ctx context.Context) (*ethclient.Client, types.Signer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, c.signer, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, nil, err
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	c.client = client
	c.signer = types.LatestSignerForChainID(chainID)
	return c.client, c.signer, nil
}

var _ TransactionFetcher = (*ChainWatcher)(nil)
