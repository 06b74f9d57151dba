package emailprocessor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	imapclient "email-tracker/internal/imap"
	"email-tracker/internal/logging"
	"email-tracker/internal/metrics"
	"email-tracker/internal/models"
)

// MaxPending bounds the records kept for a persistence retry
const MaxPending = 100

const (
	backoffThreshold = 5
	backoffBase      = 5 * time.Minute
	backoffMaxSteps  = 10
	maxBackoffSleep  = 30 * time.Minute
	defaultRefresh   = 30 * time.Second
)

var (
	// ErrCycleInFlight is returned when a cycle is requested while another one runs
	ErrCycleInFlight = errors.New("polling cycle already in flight")
	// ErrBackoff is returned while repeated connection failures hold polling back
	ErrBackoff = errors.New("mailbox connection backoff in effect")
)

// Store persists finalized records
type Store interface {
	Insert(ctx context.Context, rec models.EmailRecord) (*models.EmailRecord, error)
}

// Broadcaster pushes an event to every connected session
type Broadcaster interface {
	Broadcast(event string, payload any) error
}

// CycleResult summarizes one polling cycle
type CycleResult struct {
	Found     int
	Stored    int
	Broadcast int
	Failed    int
}

type Processor struct {
	newClient func() imapclient.Client
	store     Store
	sink      Broadcaster
	cfg       models.EmailConfig
	now       func() time.Time

	state   atomic.Int32
	running atomic.Bool

	mu        sync.Mutex
	pending   []models.EmailRecord
	failures  int
	skipUntil time.Time
}

// NewProcessor creates a Processor opening a fresh mailbox client from newClient on every cycle
func NewProcessor(newClient func() imapclient.Client, store Store, sink Broadcaster, cfg models.EmailConfig) *Processor {
	return &Processor{
		newClient: newClient,
		store:     store,
		sink:      sink,
		cfg:       cfg,
		now:       time.Now,
	}
}

// State returns the current stage of the running cycle, Idle between cycles
func (p *Processor) State() State {
	return State(p.state.Load())
}

// Pending returns how many records wait for a persistence retry
func (p *Processor) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *Processor) setState(log *logrus.Entry, s State) {
	p.state.Store(int32(s))
	log.WithField("state", s.String()).Debug("Pipeline state changed")
}

// Run polls the mailbox immediately and then on every refresh tick until ctx is cancelled.
// A tick that lands while a cycle is still running is dropped.
func (p *Processor) Run(ctx context.Context) {
	refresh := p.cfg.RefreshTime
	if refresh <= 0 {
		refresh = defaultRefresh
	}
	logging.Log.Infof("Starting mailbox polling of %s, refresh every %s", p.cfg.MailBox, refresh)

	var wg sync.WaitGroup
	defer wg.Wait()

	trigger := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.RunCycle(ctx)
		}()
	}

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	trigger()
	for {
		select {
		case <-ctx.Done():
			logging.Log.Info("Mailbox polling stopped")
			return
		case <-ticker.C:
			trigger()
		}
	}
}

// RunCycle runs one complete polling cycle:
// retry pending → connect → login → select → search → fetch, parse, persist, broadcast → close
func (p *Processor) RunCycle(ctx context.Context) (CycleResult, error) {
	var result CycleResult

	if !p.running.CompareAndSwap(false, true) {
		logging.Log.Warn("Previous polling cycle still running, skipping tick")
		metrics.RecordCycle("skipped", 0)
		return result, ErrCycleInFlight
	}
	defer p.running.Store(false)

	start := time.Now()
	locallog := logging.Log.WithField("trace_id", uuid.NewString())

	if p.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.CycleTimeout)
		defer cancel()
	}
	defer p.setState(locallog, StateIdle)

	p.retryPending(ctx, locallog, &result)

	if wait := p.backoffRemaining(); wait > 0 {
		locallog.Debugf("Connection backoff in effect, next attempt in %s", wait)
		metrics.RecordCycle("backoff", time.Since(start))
		return result, ErrBackoff
	}

	err := p.poll(ctx, locallog, &result)
	if err != nil {
		locallog.WithField("kind", imapclient.Kind(err)).Errorf("Polling cycle failed: %v", err)
	}

	outcome := imapclient.Kind(err)
	if err == nil && result.Found == 0 {
		outcome = "no_results"
	}
	metrics.RecordCycle(outcome, time.Since(start))

	if result.Found > 0 || result.Failed > 0 {
		locallog.Infof("Polling cycle done: found=%d stored=%d broadcast=%d failed=%d",
			result.Found, result.Stored, result.Broadcast, result.Failed)
	}
	return result, err
}

func (p *Processor) poll(ctx context.Context, locallog *logrus.Entry, result *CycleResult) error {
	client := p.newClient()

	p.setState(locallog, StateConnecting)
	if err := client.Connect(ctx); err != nil {
		p.connectFailed(locallog)
		return err
	}
	p.connectSucceeded()

	defer func() {
		p.setState(locallog, StateClosing)
		if err := client.Close(); err != nil {
			locallog.Warnf("Error closing mailbox session: %v", err)
		}
	}()

	if err := client.Login(p.cfg.Login, p.cfg.Password); err != nil {
		return err
	}
	p.setState(locallog, StateAuthenticated)

	if err := client.SelectMailbox(p.cfg.MailBox); err != nil {
		return err
	}
	p.setState(locallog, StateBoxSelected)

	p.setState(locallog, StateSearching)
	uids, err := client.SearchUnseen()
	if err != nil {
		return err
	}

	if len(uids) == 0 {
		p.setState(locallog, StateNoResults)
		return nil
	}

	result.Found = len(uids)
	locallog.Infof("Found %d unseen messages", len(uids))
	p.setState(locallog, StateFetchingMessages)

	chunks := make(chan imapclient.Chunk)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Fetch(gctx, uids, chunks)
	})
	g.Go(func() error {
		p.consume(ctx, locallog, chunks, result)
		return nil
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			locallog.Warnf("Fetch interrupted by the cycle timeout: %v", err)
		}
		return err
	}
	return nil
}

// consume assembles chunks into messages and finalizes each one as soon as it is complete.
// It drains chunks until the fetch closes the channel.
func (p *Processor) consume(ctx context.Context, locallog *logrus.Entry, chunks <-chan imapclient.Chunk, result *CycleResult) {
	partials := make(map[uint32]*partialMessage)

	for chunk := range chunks {
		pm, ok := partials[chunk.UID]
		if !ok {
			pm = &partialMessage{uid: chunk.UID}
			partials[chunk.UID] = pm
		}
		pm.add(chunk)

		if pm.complete() {
			delete(partials, chunk.UID)
			p.persist(ctx, locallog, pm.record(), result)
		}
	}

	for uid, pm := range partials {
		locallog.Warnf("Dropping incomplete message UID %d (header=%t body=%t)", uid, pm.haveHeader, pm.haveBody)
		metrics.IncrementEmailProcessed("dropped")
		result.Failed++
	}
}

// persist stores rec and, only once it is stored, broadcasts it.
// A record that cannot be stored is queued for the next cycle.
func (p *Processor) persist(ctx context.Context, locallog *logrus.Entry, rec models.EmailRecord, result *CycleResult) {
	stored, err := p.store.Insert(ctx, rec)
	if err != nil {
		locallog.Errorf("Error storing email %q: %v", rec.Subject, err)
		metrics.IncrementEmailProcessed("persist_failed")
		result.Failed++
		p.enqueue(locallog, rec)
		return
	}
	result.Stored++
	metrics.IncrementEmailProcessed("stored")

	if err := p.sink.Broadcast(models.EventNewEmail, stored); err != nil {
		locallog.Warnf("Error broadcasting email %s: %v", stored.ID, err)
		metrics.IncrementEmailProcessed("broadcast_failed")
		return
	}
	result.Broadcast++
}

func (p *Processor) retryPending(ctx context.Context, locallog *logrus.Entry, result *CycleResult) {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	metrics.PendingEmails.Set(0)

	locallog.Infof("Retrying %d emails that could not be stored", len(pending))
	for _, rec := range pending {
		p.persist(ctx, locallog, rec, result)
	}
}

func (p *Processor) enqueue(locallog *logrus.Entry, rec models.EmailRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) >= MaxPending {
		dropped := p.pending[0]
		p.pending = p.pending[1:]
		locallog.Warnf("Pending queue full, dropping email %q", dropped.Subject)
		metrics.IncrementEmailProcessed("dropped")
	}
	p.pending = append(p.pending, rec)
	metrics.PendingEmails.Set(float64(len(p.pending)))
}

func (p *Processor) backoffRemaining() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.skipUntil.IsZero() {
		return 0
	}
	return p.skipUntil.Sub(p.now())
}

// connectFailed counts consecutive connection failures and holds polling back once they pile up
func (p *Processor) connectFailed(locallog *logrus.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failures++
	if p.failures < backoffThreshold {
		return
	}

	backoff := connectBackoff(p.failures)
	p.skipUntil = p.now().Add(backoff)
	locallog.Warnf("IMAP failed %d times, waiting %s before next attempt", p.failures, backoff)
}

func (p *Processor) connectSucceeded() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failures = 0
	p.skipUntil = time.Time{}
}

// connectBackoff grows exponentially from the fifth consecutive failure
func connectBackoff(failures int) time.Duration {
	n := failures - backoffThreshold
	if n < 0 {
		return 0
	}
	if n > backoffMaxSteps {
		n = backoffMaxSteps
	}

	backoff := backoffBase * time.Duration(1<<n)
	if backoff > maxBackoffSleep {
		backoff = maxBackoffSleep
	}
	return backoff
}
