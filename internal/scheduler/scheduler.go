// Package scheduler implements the 4.F subscription scheduler and its 4.G
// notification channel: a single long-running task that advances recurring
// payment contracts (spec.md §4.F, §4.G).
package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/robfig/cron"

	"github.com/reconnectedcc/kromer/internal/ledger"
	"github.com/reconnectedcc/kromer/internal/models"
	"github.com/reconnectedcc/kromer/internal/store"
	"github.com/reconnectedcc/kromer/pkg/logger"
)

// Notifier is the narrow capability the scheduler needs from
// internal/notifyops (4.H) to raise ops alerts on Desync or a
// funds-triggered cancellation.
type Notifier interface {
	Alert(message string)
}

// LookaheadWindow is how far ahead FetchSoonest looks for due subscriptions
// (spec.md §4.F main loop).
const LookaheadWindow = 60 * time.Second

// DueSlack is how far ahead of its lapsed_at ProcessOneLapsed already
// considers a row "due now": rows with lapsed_at < now+DueSlack are
// processed (spec.md §4.F).
const DueSlack = 10 * time.Second

// fetchBackoffStart/Factor/MaxAttempts implement FetchSoonest's retry
// policy (spec.md §4.F): "start 10ms, factor 2, up to 5 attempts".
const (
	fetchBackoffStart  = 10 * time.Millisecond
	fetchBackoffFactor = 2
	fetchMaxAttempts   = 5
)

// Signal is the 4.G bounded single-consumer notification channel.
type Signal struct {
	ch chan struct{}
}

// NewSignal builds a Signal with the size-25 buffer spec.md §4.G specifies.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 25)}
}

// Notify is the non-blocking producer side: a full channel means a wake is
// already pending, so the send is simply dropped (coalescing is the point).
func (s *Signal) Notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// drainAll empties the channel, used on every scheduler wake (spec.md
// §4.G "the consumer drains all pending signals on every wake").
func (s *Signal) drainAll() {
	for {
		select {
		case <-s.ch:
		default:
			return
		}
	}
}

// Scheduler is the 4.F main loop owner.
type Scheduler struct {
	store    store.Store
	ledger   *ledger.Ledger
	notifier Notifier
	signal   *Signal
	log      *logger.Logger
}

func New(s store.Store, l *ledger.Ledger, notifier Notifier, signal *Signal, log *logger.Logger) *Scheduler {
	return &Scheduler{store: s, ledger: l, notifier: notifier, signal: signal, log: log}
}

// Run executes the main loop of spec.md §4.F until stop is closed.
func (sc *Scheduler) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		next, err := sc.fetchSoonestWithRetry()
		if err != nil {
			sc.log.Error("failed to fetch soonest lapsed subscription after retries", "error", err)
			if !sc.sleepOrSignal(LookaheadWindow, stop) {
				return
			}
			continue
		}

		var waitFor time.Duration
		if next == nil {
			waitFor = LookaheadWindow
		} else {
			waitFor = time.Until(*next.LapsedAt)
			if waitFor < 0 {
				waitFor = 0
			}
		}

		timerFired, stopped := sc.waitForTimerOrSignal(waitFor, stop)
		if stopped {
			return
		}
		if timerFired && next != nil {
			if err := sc.ProcessOneLapsed(); err != nil {
				sc.log.Error("failed to process lapsed subscription", "error", err)
			}
		}
	}
}

func (sc *Scheduler) fetchSoonestWithRetry() (*models.SubscriptionWithContract, error) {
	backoff := fetchBackoffStart
	var lastErr error
	for attempt := 0; attempt < fetchMaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= fetchBackoffFactor
		}
		sub, err := sc.store.FetchSoonestLapsed(time.Now().Add(LookaheadWindow))
		if err == nil {
			return sub, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// waitForTimerOrSignal blocks for dur or until the signal fires, draining
// it either way. Returns timerFired=true only if the timer elapsed first.
func (sc *Scheduler) waitForTimerOrSignal(dur time.Duration, stop <-chan struct{}) (timerFired bool, stopped bool) {
	timer := time.NewTimer(dur)
	defer timer.Stop()

	select {
	case <-stop:
		return false, true
	case <-timer.C:
		sc.signal.drainAll()
		return true, false
	case <-sc.signal.ch:
		sc.signal.drainAll()
		return false, false
	}
}

func (sc *Scheduler) sleepOrSignal(dur time.Duration, stop <-chan struct{}) bool {
	_, stopped := sc.waitForTimerOrSignal(dur, stop)
	return !stopped
}

// ProcessOneLapsed implements spec.md §4.F's dispatch table.
func (sc *Scheduler) ProcessOneLapsed() error {
	sub, err := sc.store.FetchSoonestLapsed(time.Now().Add(DueSlack))
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}

	switch {
	case sub.ContractStatus == models.ContractCanceled:
		return sc.cancelSub(sub.SubscriptionID)
	case (sub.ContractStatus == models.ContractOpen || sub.ContractStatus == models.ContractClosed) && sub.Status == models.SubscriptionActive:
		return sc.continueSub(sub)
	case (sub.ContractStatus == models.ContractOpen || sub.ContractStatus == models.ContractClosed) &&
		(sub.Status == models.SubscriptionPending || sub.Status == models.SubscriptionCanceled):
		return sc.cancelSub(sub.SubscriptionID)
	default:
		return nil
	}
}

func (sc *Scheduler) cancelSub(subscriptionID int64) error {
	rows, err := sc.store.CancelSubscription(subscriptionID)
	if err != nil {
		return err
	}
	if rows != 1 {
		sc.log.Error("subscription cancel affected unexpected row count", "subscription_id", subscriptionID, "rows", rows)
		sc.notifier.Alert(fmt.Sprintf("desync: cancel affected %d rows for subscription %d", rows, subscriptionID))
		return models.ErrDesync
	}
	return nil
}

func (sc *Scheduler) continueSub(sub *models.SubscriptionWithContract) error {
	if sub.ContractAllow != nil && !sub.ContractAllow.Contains(sub.PayerAddress) {
		sc.log.Debug("subscription payer not in allow list, canceling", "subscription_id", sub.SubscriptionID)
		return sc.cancelSub(sub.SubscriptionID)
	}

	schedule, err := cron.Parse(sub.ContractCronExpr)
	if err != nil {
		sc.log.Error("failed to parse contract cron expression, canceling subscription", "subscription_id", sub.SubscriptionID, "error", err)
		return sc.cancelSub(sub.SubscriptionID)
	}
	nextTime := schedule.Next(*sub.LapsedAt)

	metadata := subMetadata(sub.SubscriptionID)
	_, txErr := sc.ledger.ContinueSub(sub.SubscriptionID, sub.PayerAddress, sub.ContractOwner, sub.ContractPrice, models.TransactionTransfer, ledger.TransferOptions{
		Metadata: &metadata,
	}, nextTime)
	if txErr != nil {
		if errors.Is(txErr, models.ErrInsufficientFunds) || errors.Is(txErr, models.ErrUnauthorized) {
			sc.log.Debug("subscription renewal failed, canceling", "subscription_id", sub.SubscriptionID, "error", txErr)
			if errors.Is(txErr, models.ErrInsufficientFunds) {
				sc.notifier.Alert(fmt.Sprintf("subscription %d canceled: payer %s has insufficient funds", sub.SubscriptionID, sub.PayerAddress))
			}
			return sc.cancelSub(sub.SubscriptionID)
		}
		return txErr
	}

	return nil
}

func subMetadata(subscriptionID int64) string {
	return "sub_id=" + strconv.FormatInt(subscriptionID, 10)
}
