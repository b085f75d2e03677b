package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/you/dexarb-bot/internal/config"
	"github.com/you/dexarb-bot/internal/dex/core"
	"github.com/you/dexarb-bot/internal/dex/univ3"
	"github.com/you/dexarb-bot/internal/engine"
	"github.com/you/dexarb-bot/internal/execution"
	"github.com/you/dexarb-bot/internal/feed"
	"github.com/you/dexarb-bot/internal/multicall"
	"github.com/you/dexarb-bot/internal/stream"
	"github.com/you/dexarb-bot/internal/types"
)

// Bot assembles the pipeline and owns its lifecycle.
type Bot struct {
	cfg *config.Config
	log *zap.Logger
}

func New(cfg *config.Config, log *zap.Logger) *Bot {
	return &Bot{cfg: cfg, log: log}
}

// Run wires venues, resolves pairs and pools, and blocks on the event stream
// until ctx is cancelled or a signal arrives.
func (b *Bot) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		b.log.Warn("received signal, shutting down...")
		cancel()
	}()

	ec, err := ethclient.DialContext(ctx, b.cfg.Chain.RPCHTTP)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	defer ec.Close()

	tokens, err := univ3.NewTokenReader(ec)
	if err != nil {
		return err
	}
	prices, err := univ3.NewPoolReader(ec)
	if err != nil {
		return err
	}

	venues := make([]core.Venue, 0, len(b.cfg.Venues))
	for _, vc := range b.cfg.Venues {
		factory, err := univ3.NewFactory(ec, common.HexToAddress(vc.Factory))
		if err != nil {
			return fmt.Errorf("venue %s: %w", vc.Name, err)
		}
		quoter, err := univ3.NewQuoter(ec, common.HexToAddress(vc.Quoter))
		if err != nil {
			return fmt.Errorf("venue %s: %w", vc.Name, err)
		}
		venues = append(venues, core.Venue{
			Name:    vc.Name,
			Factory: factory,
			Quoter:  quoter,
			Router:  common.HexToAddress(vc.Router),
		})
	}

	pairs, err := b.resolvePairs(ctx, tokens)
	if err != nil {
		return err
	}

	markets, err := b.buildMarkets(ctx, ec, venues, pairs)
	if err != nil {
		return err
	}
	if len(markets) == 0 {
		return fmt.Errorf("no venue pair has pools for any configured pair")
	}

	exec, err := execution.New(b.cfg, ec, tokens, b.log)
	if err != nil {
		return err
	}
	if !b.cfg.Deployed {
		b.log.Warn("dry run: settlement calls will be skipped")
	}

	var pub engine.Publisher
	if b.cfg.Redis.Addr != "" {
		p := feed.NewPublisher(b.cfg)
		defer p.Close()
		pub = p
	}

	risk := &engine.RiskState{}
	opt := engine.NewOptimizer(
		b.cfg.Optimizer.Fractions,
		b.cfg.Optimizer.MaxFailedTrades,
		b.cfg.Optimizer.VolatilityBound,
		b.cfg.Chain.GasLimit,
		b.cfg.Pricing.SmallGapPct,
		risk, ec, b.log,
	)
	eng := engine.New(b.cfg, opt, prices, tokens, exec, pub, b.log)

	dial := func(ctx context.Context) (stream.Backend, error) {
		return ethclient.DialContext(ctx, b.cfg.Chain.RPCWS)
	}
	conn := stream.New(dial, b.log, b.cfg.ReconnectBase(), b.cfg.ReconnectMax())

	for _, m := range markets {
		conn.Watch(ethereum.FilterQuery{
			Addresses: []common.Address{m.PoolA, m.PoolB},
			Topics:    [][]common.Hash{{engine.SwapEventTopic}},
		}, eng.Handler(m))
		b.log.Info("market wired",
			zap.String("pair", m.Pair),
			zap.String("venue_a", m.VenueA.Name),
			zap.String("venue_b", m.VenueB.Name),
			zap.String("pool_a", m.PoolA.Hex()),
			zap.String("pool_b", m.PoolB.Hex()))
	}

	err = conn.Run(ctx)
	if errors.Is(err, context.Canceled) {
		b.log.Info("dexarb-bot finished")
		return nil
	}
	return err
}

type pairTokens struct {
	name  string
	base  types.Token
	quote types.Token
}

func (b *Bot) resolvePairs(ctx context.Context, tokens *univ3.TokenReader) ([]pairTokens, error) {
	out := make([]pairTokens, 0, len(b.cfg.Pairs))
	for _, pc := range b.cfg.Pairs {
		rctx, cancel := context.WithTimeout(ctx, b.cfg.RPCTimeout())
		base, err := tokens.Resolve(rctx, common.HexToAddress(pc.Base))
		if err != nil {
			cancel()
			return nil, fmt.Errorf("resolve base token %s: %w", pc.Base, err)
		}
		quote, err := tokens.Resolve(rctx, common.HexToAddress(pc.Quote))
		cancel()
		if err != nil {
			return nil, fmt.Errorf("resolve quote token %s: %w", pc.Quote, err)
		}
		out = append(out, pairTokens{
			name:  base.Symbol + "/" + quote.Symbol,
			base:  base,
			quote: quote,
		})
		b.log.Info("pair resolved",
			zap.String("pair", out[len(out)-1].name),
			zap.Uint8("base_decimals", base.Decimals),
			zap.Uint8("quote_decimals", quote.Decimals))
	}
	return out, nil
}

// buildMarkets resolves one pool per (venue, pair) and pairs up venues that
// both have a market. A zero pool address excludes that combination for the
// life of the process.
func (b *Bot) buildMarkets(ctx context.Context, ec *ethclient.Client,
	venues []core.Venue, pairs []pairTokens) ([]engine.Market, error) {

	pools, err := b.resolvePools(ctx, ec, venues, pairs)
	if err != nil {
		return nil, err
	}

	var markets []engine.Market
	for pi, p := range pairs {
		for i := 0; i < len(venues); i++ {
			for j := i + 1; j < len(venues); j++ {
				poolA := pools[i*len(pairs)+pi]
				poolB := pools[j*len(pairs)+pi]
				if poolA == (common.Address{}) || poolB == (common.Address{}) {
					b.log.Info("no pool, combination skipped",
						zap.String("pair", p.name),
						zap.String("venue_a", venues[i].Name),
						zap.String("venue_b", venues[j].Name))
					continue
				}
				markets = append(markets, engine.Market{
					Pair:   p.name,
					Base:   p.base,
					Quote:  p.quote,
					Fee:    b.cfg.FeeTier,
					VenueA: venues[i],
					VenueB: venues[j],
					PoolA:  poolA,
					PoolB:  poolB,
				})
			}
		}
	}
	return markets, nil
}

// resolvePools returns pool addresses indexed venue-major. With a multicall
// contract configured the whole grid resolves in one eth_call; otherwise it
// falls back to per-factory lookups.
func (b *Bot) resolvePools(ctx context.Context, ec *ethclient.Client,
	venues []core.Venue, pairs []pairTokens) ([]common.Address, error) {

	rctx, cancel := context.WithTimeout(ctx, b.cfg.RPCTimeout())
	defer cancel()

	if b.cfg.Multicall != "" {
		mc, err := multicall.New(ec, common.HexToAddress(b.cfg.Multicall))
		if err != nil {
			return nil, err
		}
		queries := make([]univ3.PoolQuery, 0, len(venues)*len(pairs))
		for _, vc := range b.cfg.Venues {
			for _, p := range pairs {
				queries = append(queries, univ3.PoolQuery{
					Factory: common.HexToAddress(vc.Factory),
					TokenA:  p.base.Addr,
					TokenB:  p.quote.Addr,
					Fee:     b.cfg.FeeTier,
				})
			}
		}
		start := time.Now()
		pools, err := univ3.ResolvePools(rctx, mc, queries)
		if err != nil {
			return nil, err
		}
		b.log.Info("pools resolved via multicall",
			zap.Int("queries", len(queries)),
			zap.Duration("took", time.Since(start)))
		return pools, nil
	}

	pools := make([]common.Address, 0, len(venues)*len(pairs))
	for _, v := range venues {
		for _, p := range pairs {
			pool, err := v.Factory.PoolFor(rctx, p.base.Addr, p.quote.Addr, b.cfg.FeeTier)
			if err != nil {
				return nil, fmt.Errorf("venue %s pair %s: %w", v.Name, p.name, err)
			}
			pools = append(pools, pool)
		}
	}
	return pools, nil
}

// NewLogger builds the production JSON logger.
func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	return cfg.Build()
}
