// Package engine holds the single-threaded deterministic core. One
// goroutine owns all account records and ledger balances; everything else
// talks to it through channels or reads the cloned records it emits.
package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"PredMarket/internal/account"
	"PredMarket/internal/ledger"
	"PredMarket/internal/observability"
	"PredMarket/internal/op"
)

// Output is what the engine emits per applied operation. Record pointers
// are deep clones: downstream goroutines never see engine-owned state.
type Output struct {
	Envelope *op.Envelope
	Batch    *ledger.Batch // nil for record-only operations

	Config   *account.Config
	Market   *account.Market
	Position *account.UserPosition

	StateDelta []byte
}

// Options tunes engine behavior at construction.
type Options struct {
	// ResolveTimeGate rejects resolve_market before resolution_time.
	// On by default; operators running trusted oracles may disable it.
	ResolveTimeGate bool

	// IdempotencyCapacity bounds the in-memory dedup LRU.
	IdempotencyCapacity int
}

func DefaultOptions() Options {
	return Options{
		ResolveTimeGate:     true,
		IdempotencyCapacity: 1_000_000,
	}
}

// Engine is the single-threaded operation processor
type Engine struct {
	sequence    int64
	hasher      *StateHasher
	store       *account.Store
	balances    *ledger.BalanceTracker
	journalGen  *ledger.JournalGenerator
	validator   *ledger.InvariantValidator
	idempotency *IdempotencyChecker
	metrics     *observability.Metrics

	resolveTimeGate bool

	persistChan    chan<- Output
	projectionChan chan<- Output
}

func New(
	startSequence int64,
	persistChan, projectionChan chan<- Output,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
	opts Options,
) *Engine {
	balances := ledger.NewBalanceTracker()

	return &Engine{
		sequence:        startSequence,
		hasher:          NewStateHasher(),
		store:           account.NewStore(),
		balances:        balances,
		journalGen:      ledger.NewJournalGenerator(startSequence, balances),
		validator:       ledger.NewInvariantValidator(balances),
		idempotency:     NewIdempotencyChecker(opts.IdempotencyCapacity, dbChecker),
		metrics:         metrics,
		resolveTimeGate: opts.ResolveTimeGate,
		persistChan:     persistChan,
		projectionChan:  projectionChan,
	}
}

// touched names the records an operation mutated, for digesting and for
// cloning into the Output.
type touched struct {
	config   *account.Config
	market   *account.Market
	position *account.UserPosition
}

// Process runs one operation through the full pipeline. A returned error
// means the operation was rejected with zero state mutation; duplicates
// return nil without reprocessing.
func (e *Engine) Process(operation op.Operation) error {
	start := time.Now()
	opType := operation.OpType().String()
	idempotencyKey := operation.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	if e.idempotency.IsDuplicate(opType, idempotencyKey) {
		if e.metrics != nil {
			e.metrics.CoreOpsRejected.WithLabelValues(opType, "duplicate").Inc()
		}
		return nil
	}

	// Step 2: Dispatch. Handlers run every fallible check and computation
	// before their first record mutation, so an error here means nothing
	// changed.
	batch, t, err := e.dispatch(operation)
	if err != nil {
		if e.metrics != nil {
			e.metrics.CoreOpsRejected.WithLabelValues(opType, "validation").Inc()
		}
		return fmt.Errorf("%s rejected: %w", opType, err)
	}

	// Step 3: Validate and apply the journal batch. Handlers already
	// committed their record mutations; an unbalanced batch at this point
	// is a bug, not an input error.
	if batch != nil {
		if err := e.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}
		if err := e.balances.ApplyBatch(batch); err != nil {
			panic(fmt.Sprintf("FATAL: apply batch: %v", err))
		}
		if e.metrics != nil {
			for _, j := range batch.Journals {
				e.metrics.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
			}
		}
	}

	// Step 4: State digest and hash chain
	hashStart := time.Now()
	stateDigest := e.computeStateDigest(batch, t)
	prevHash := e.hasher.PrevHash()
	stateHash := e.hasher.ComputeHash(e.sequence, stateDigest)
	if e.metrics != nil {
		e.metrics.CoreStateHashDur.Observe(time.Since(hashStart).Seconds())
	}

	// Step 5: Envelope. The payload is the full operation in its wire
	// encoding so the op log alone can drive replay through the parser.
	payload, err := json.Marshal(operation)
	if err != nil {
		panic(fmt.Sprintf("FATAL: marshal %s payload: %v", opType, err))
	}
	envelope := &op.Envelope{
		Sequence:       e.sequence,
		IdempotencyKey: idempotencyKey,
		OpType:         operation.OpType(),
		MarketID:       operation.MarketID(),
		Signer:         operation.Signer(),
		Timestamp:      operation.Timestamp(),
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}
	e.sequence++

	// Step 6: Post-apply invariant checks
	if err := e.postCheckInvariants(operation, t); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	output := Output{
		Envelope:   envelope,
		Batch:      batch,
		StateDelta: stateDigest,
	}
	if t.config != nil {
		cfg := *t.config
		output.Config = &cfg
	}
	if t.market != nil {
		output.Market = t.market.Clone()
	}
	if t.position != nil {
		output.Position = t.position.Clone()
	}

	// Step 7: Emit. Persistence is a blocking send: the engine stalls
	// until the persistence worker drains, so no applied operation is ever
	// lost. Projections are non-blocking with drop; they rebuild from the
	// op log when behind.
	e.persistChan <- output
	select {
	case e.projectionChan <- output:
	default:
		if e.metrics != nil {
			e.metrics.ProjectionDrops.WithLabelValues("core").Inc()
		}
	}

	// Step 8: Mark as processed
	e.idempotency.MarkProcessed(opType, idempotencyKey)

	e.recordOpMetrics(operation, opType, start)
	return nil
}

// Replay re-applies a logged operation during recovery and returns the
// recomputed state hash so the caller can verify the chain. Dedup is
// skipped: every replayed operation is by definition already in the log.
// Nothing is emitted: persistence and projections already hold it. The
// key is still marked processed so live traffic dedups against history.
func (e *Engine) Replay(operation op.Operation) ([32]byte, error) {
	opType := operation.OpType().String()

	batch, t, err := e.dispatch(operation)
	if err != nil {
		return [32]byte{}, fmt.Errorf("%s rejected: %w", opType, err)
	}

	if batch != nil {
		if err := e.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}
		if err := e.balances.ApplyBatch(batch); err != nil {
			panic(fmt.Sprintf("FATAL: apply batch: %v", err))
		}
	}

	stateDigest := e.computeStateDigest(batch, t)
	stateHash := e.hasher.ComputeHash(e.sequence, stateDigest)
	e.sequence++

	if err := e.postCheckInvariants(operation, t); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	e.idempotency.MarkProcessed(opType, operation.IdempotencyKey())
	return stateHash, nil
}

func (e *Engine) dispatch(operation op.Operation) (*ledger.Batch, touched, error) {
	switch o := operation.(type) {
	case *op.Initialize:
		return e.handleInitialize(o)
	case *op.CreateMarket:
		return e.handleCreateMarket(o)
	case *op.BuyShares:
		return e.handleBuyShares(o)
	case *op.ResolveMarket:
		return e.handleResolveMarket(o)
	case *op.ClaimWinnings:
		return e.handleClaimWinnings(o)
	case *op.SweepFunds:
		return e.handleSweepFunds(o)
	case *op.WithdrawFees:
		return e.handleWithdrawFees(o)
	default:
		return nil, touched{}, fmt.Errorf("unhandled operation type %T", operation)
	}
}

// computeStateDigest builds canonical bytes over everything the operation
// changed: batch-affected balances (sorted by account path) followed by the
// canonical serialization of each touched record.
func (e *Engine) computeStateDigest(batch *ledger.Batch, t touched) []byte {
	affectedAccounts := make(map[ledger.AccountKey]bool)
	if batch != nil {
		for _, j := range batch.Journals {
			affectedAccounts[j.DebitAccount] = true
			affectedAccounts[j.CreditAccount] = true
		}
	}

	accounts := make([]ledger.AccountKey, 0, len(affectedAccounts))
	for key := range affectedAccounts {
		accounts = append(accounts, key)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	digest := make([]byte, 0, len(accounts)*64)
	for _, key := range accounts {
		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = appendInt64LE(digest, e.balances.GetBalance(key))
	}

	if t.config != nil {
		digest = append(digest, 'C')
		digest = append(digest, t.config.CanonicalBytes()...)
	}
	if t.market != nil {
		digest = append(digest, 'M')
		digest = append(digest, t.market.CanonicalBytes()...)
	}
	if t.position != nil {
		digest = append(digest, 'P')
		digest = append(digest, t.position.CanonicalBytes()...)
	}

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants validates invariants after batch application
func (e *Engine) postCheckInvariants(operation op.Operation, t touched) error {
	if t.market != nil && !t.market.Resolved {
		if t.market.YesLiquidity == 0 || t.market.NoLiquidity == 0 {
			return fmt.Errorf("market %d pool drained: %d/%d",
				t.market.MarketID, t.market.YesLiquidity, t.market.NoLiquidity)
		}
	}

	if marketID := operation.MarketID(); marketID != nil {
		if err := e.validator.ValidateVaultNonNegative(*marketID); err != nil {
			return err
		}
	}
	if err := e.validator.ValidateFeeVaultNonNegative(); err != nil {
		return err
	}

	// Periodic global zero-sum check
	if e.sequence > 0 && e.sequence%1000 == 0 {
		if err := e.validator.ValidateGlobalBalance(); err != nil {
			return fmt.Errorf("at seq %d: %w", e.sequence, err)
		}
	}

	return nil
}

func (e *Engine) recordOpMetrics(operation op.Operation, opType string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.CoreOpsApplied.WithLabelValues(opType).Inc()
	e.metrics.CoreOpDuration.WithLabelValues(opType).Observe(time.Since(start).Seconds())
	e.metrics.CoreSequence.Set(float64(e.sequence))
	e.metrics.DedupLRUSize.Set(float64(e.idempotency.lru.Size()))

	switch o := operation.(type) {
	case *op.CreateMarket:
		e.metrics.MarketsCreated.Inc()
	case *op.BuyShares:
		side := "no"
		if o.IsYes {
			side = "yes"
		}
		e.metrics.TradesExecuted.WithLabelValues(side).Inc()
		e.metrics.TradeVolume.WithLabelValues(side).Add(float64(o.Amount))
		e.metrics.FeeVaultBalance.Set(float64(e.balances.FeeVaultBalance()))
	case *op.ResolveMarket:
		outcome := "no"
		if o.OutcomeYes {
			outcome = "yes"
		}
		e.metrics.MarketsResolved.WithLabelValues(outcome).Inc()
	case *op.ClaimWinnings:
		e.metrics.ClaimsPaid.Inc()
	case *op.SweepFunds:
		e.metrics.SweepsExecuted.Inc()
	case *op.WithdrawFees:
		e.metrics.FeeVaultBalance.Set(float64(e.balances.FeeVaultBalance()))
	}
}

// Sequence returns the next sequence number to be assigned.
func (e *Engine) Sequence() int64 {
	return e.sequence
}

// ChainTip returns the current state-hash chain tip.
func (e *Engine) ChainTip() [32]byte {
	return e.hasher.PrevHash()
}

// Store exposes account records. Single-threaded: callers must run on the
// engine goroutine (tests, snapshotting between operations).
func (e *Engine) Store() *account.Store {
	return e.store
}

// Balances exposes the ledger tracker under the same single-thread rule.
func (e *Engine) Balances() *ledger.BalanceTracker {
	return e.balances
}

// Idempotency exposes the dedup checker for recovery warm-up.
func (e *Engine) Idempotency() *IdempotencyChecker {
	return e.idempotency
}
