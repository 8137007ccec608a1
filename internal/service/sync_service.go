package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/strideworks/trainsync/internal/domain"
	"github.com/strideworks/trainsync/internal/matching"
	"github.com/strideworks/trainsync/internal/notify"
	"github.com/strideworks/trainsync/internal/provider"
	"github.com/strideworks/trainsync/internal/repository"
	"github.com/strideworks/trainsync/internal/utils"
	"github.com/strideworks/trainsync/internal/vault"
	"github.com/strideworks/trainsync/pkg/observability"
)

// ErrInvalidBatch means the request shape is wrong. Nothing was admitted:
// no lock, no credential read, no provider call.
var ErrInvalidBatch = errors.New("invalid sync batch")

// SyncOptions holds the orchestrator knobs.
type SyncOptions struct {
	MaxBatchSize int
	Concurrency  int
	ErrorListCap int
	MatchPolicy  matching.Policy
	// ItemTimeout bounds one item's provider work after the batch context
	// is detached for in-flight completion.
	ItemTimeout time.Duration
}

// syncService implements SyncService interface
type syncService struct {
	registry  *provider.Registry
	vault     *vault.Vault
	conns     repository.ConnectionRepository
	workouts  repository.WorkoutRepository
	records   repository.SyncRecordRepository
	lock      Locker
	publisher notify.Publisher
	metrics   *observability.SyncMetrics
	logger    *zap.Logger
	opts      SyncOptions
}

// NewSyncService creates a new sync service
func NewSyncService(
	registry *provider.Registry,
	v *vault.Vault,
	repos *repository.Repositories,
	lock Locker,
	publisher notify.Publisher,
	metrics *observability.SyncMetrics,
	logger *zap.Logger,
	opts SyncOptions,
) SyncService {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = 30 * time.Second
	}
	return &syncService{
		registry:  registry,
		vault:     v,
		conns:     repos.Connection,
		workouts:  repos.Workout,
		records:   repos.SyncRecord,
		lock:      lock,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		opts:      opts,
	}
}

// credential is the decrypted, expiry-checked token material for one pass.
// It is read from the vault exactly once per batch.
type credential struct {
	conn        *domain.Connection
	accessToken string
}

// Push exports planned workouts onto the provider calendar. Validation
// failures abort the whole batch; everything after admission degrades
// per item.
func (s *syncService) Push(ctx context.Context, userID, providerName string, workoutIDs []string) (*domain.SyncSummary, error) {
	client, err := s.admit(userID, providerName, len(workoutIDs))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(workoutIDs))
	for _, id := range workoutIDs {
		if !utils.ValidateID(id) {
			return nil, fmt.Errorf("%w: malformed workout id %q", ErrInvalidBatch, id)
		}
		// A duplicated id would race two creates through an empty ledger.
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate workout id %q", ErrInvalidBatch, id)
		}
		seen[id] = struct{}{}
	}

	if err := s.lock.Acquire(ctx, userID, client.Name()); err != nil {
		return nil, err
	}
	defer s.releaseLock(userID, client.Name())

	summary := &domain.SyncSummary{
		Provider:  client.Name(),
		Direction: domain.DirectionToProvider,
		Results:   make([]domain.SyncItemResult, len(workoutIDs)),
	}

	cred, gateReason := s.readCredential(ctx, userID, client.Name())
	if gateReason != "" {
		s.failAll(ctx, summary, gateReason, func(i int) string { return workoutIDs[i] })
		return s.finish(ctx, userID, summary), nil
	}

	s.runBatch(ctx, client.Name(), summary, len(workoutIDs), func(itemCtx context.Context, i int) domain.SyncItemResult {
		return s.pushOne(itemCtx, client, cred, workoutIDs[i])
	})

	return s.finish(ctx, userID, summary), nil
}

// Pull imports completed provider activities onto planned workouts.
func (s *syncService) Pull(ctx context.Context, userID, providerName string, items []domain.PullItem) (*domain.SyncSummary, error) {
	client, err := s.admit(userID, providerName, len(items))
	if err != nil {
		return nil, err
	}
	seenActivity := make(map[string]struct{}, len(items))
	seenWorkout := make(map[string]struct{})
	for _, item := range items {
		if !utils.ValidateID(item.ActivityID) {
			return nil, fmt.Errorf("%w: malformed activity id %q", ErrInvalidBatch, item.ActivityID)
		}
		if _, dup := seenActivity[item.ActivityID]; dup {
			return nil, fmt.Errorf("%w: duplicate activity id %q", ErrInvalidBatch, item.ActivityID)
		}
		seenActivity[item.ActivityID] = struct{}{}
		if item.WorkoutID != nil {
			if !utils.ValidateID(*item.WorkoutID) {
				return nil, fmt.Errorf("%w: malformed workout id %q", ErrInvalidBatch, *item.WorkoutID)
			}
			if _, dup := seenWorkout[*item.WorkoutID]; dup {
				return nil, fmt.Errorf("%w: duplicate workout id %q", ErrInvalidBatch, *item.WorkoutID)
			}
			seenWorkout[*item.WorkoutID] = struct{}{}
		}
	}

	if err := s.lock.Acquire(ctx, userID, client.Name()); err != nil {
		return nil, err
	}
	defer s.releaseLock(userID, client.Name())

	summary := &domain.SyncSummary{
		Provider:  client.Name(),
		Direction: domain.DirectionFromProvider,
		Results:   make([]domain.SyncItemResult, len(items)),
	}

	cred, gateReason := s.readCredential(ctx, userID, client.Name())
	if gateReason != "" {
		s.failAll(ctx, summary, gateReason, func(i int) string { return "" })
		for i := range summary.Results {
			summary.Results[i].ActivityID = items[i].ActivityID
		}
		return s.finish(ctx, userID, summary), nil
	}

	s.runBatch(ctx, client.Name(), summary, len(items), func(itemCtx context.Context, i int) domain.SyncItemResult {
		return s.pullOne(itemCtx, client, cred, userID, items[i])
	})

	return s.finish(ctx, userID, summary), nil
}

// admit checks request shape. Failures here return an error, not a summary.
func (s *syncService) admit(userID, providerName string, size int) (provider.Client, error) {
	if !utils.ValidateID(userID) {
		return nil, fmt.Errorf("%w: malformed user id", ErrInvalidBatch)
	}
	if !utils.ValidateBatch(size, s.opts.MaxBatchSize) {
		return nil, fmt.Errorf("%w: batch size %d outside 1..%d", ErrInvalidBatch, size, s.opts.MaxBatchSize)
	}
	return s.registry.Get(utils.SanitizeProvider(providerName))
}

// readCredential loads and gates the credential once per batch. A non-empty
// reason means the batch fails wholesale before any provider call.
func (s *syncService) readCredential(ctx context.Context, userID, providerName string) (*credential, domain.FailureReason) {
	conn, err := s.vault.Get(ctx, userID, providerName)
	if errors.Is(err, vault.ErrNotFound) {
		return nil, domain.ReasonCredentialMissing
	}
	if err != nil {
		s.logger.Error("credential read failed",
			zap.String("user_id", userID),
			zap.String("provider", providerName),
			zap.Error(err))
		return nil, domain.ReasonPersistence
	}

	if conn.Status == domain.ConnectionExpired || s.vault.IsExpired(conn, time.Now()) {
		return nil, domain.ReasonCredentialExpired
	}

	access, _, err := s.vault.Decrypt(conn)
	if errors.Is(err, vault.ErrDecrypt) {
		// Corrupted or wrong-key ciphertext leaves no usable credential;
		// only a reconnect can replace it.
		s.logger.Error("credential decrypt failed",
			zap.String("user_id", userID),
			zap.String("provider", providerName),
			zap.Error(err))
		return nil, domain.ReasonCredentialMissing
	}
	if err != nil {
		s.logger.Error("credential read failed",
			zap.String("user_id", userID),
			zap.String("provider", providerName),
			zap.Error(err))
		return nil, domain.ReasonPersistence
	}

	return &credential{conn: conn, accessToken: access}, ""
}

// runBatch executes items with bounded concurrency. Results land in the
// summary slot matching the input position. A provider auth rejection stops
// admission of unstarted items; cancellation does the same while items
// already started run to completion on a detached context.
func (s *syncService) runBatch(ctx context.Context, providerName string, summary *domain.SyncSummary, n int, run func(ctx context.Context, i int) domain.SyncItemResult) {
	var authFailed atomic.Bool

	g := new(errgroup.Group)
	g.SetLimit(s.opts.Concurrency)

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if authFailed.Load() {
				summary.Results[i] = domain.SyncItemResult{
					State:  domain.ItemFailed,
					Reason: domain.ReasonProviderAuthRejected,
					Error:  "skipped: provider rejected credentials earlier in this pass",
				}
				return nil
			}
			if ctx.Err() != nil {
				summary.Results[i] = domain.SyncItemResult{
					State:  domain.ItemFailed,
					Reason: domain.ReasonCancelled,
					Error:  "batch cancelled before item started",
				}
				return nil
			}

			// Started items finish even if the batch context dies mid-call.
			itemCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ItemTimeout)
			defer cancel()

			res := run(itemCtx, i)
			if res.Reason == domain.ReasonProviderAuthRejected {
				authFailed.Store(true)
			}
			summary.Results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	for i := range summary.Results {
		res := &summary.Results[i]
		if res.State == domain.ItemSucceeded {
			summary.Synced++
		} else {
			summary.Failed++
			if res.Reason == domain.ReasonProviderAuthRejected {
				summary.ReconnectRequired = true
			}
			if len(summary.Errors) < s.opts.ErrorListCap && res.Error != "" {
				summary.Errors = append(summary.Errors, res.Error)
			}
			s.metrics.RecordProviderError(ctx, providerName, string(res.Reason))
		}
		s.metrics.RecordItem(ctx, providerName, string(summary.Direction), string(res.State))
	}
}

// pushOne syncs a single workout to the provider. The ledger decides
// create versus update: an existing record with a remote id means the
// workout already lives on the provider side.
func (s *syncService) pushOne(ctx context.Context, client provider.Client, cred *credential, workoutID string) domain.SyncItemResult {
	res := domain.SyncItemResult{WorkoutID: workoutID}

	workout, err := s.workouts.GetByID(ctx, workoutID)
	if errors.Is(err, repository.ErrNotFound) {
		return failed(res, domain.ReasonValidation, fmt.Sprintf("workout %s not found", workoutID))
	}
	if err != nil {
		return failed(res, domain.ReasonPersistence, err.Error())
	}
	if workout.UserID != cred.conn.UserID {
		return failed(res, domain.ReasonValidation, fmt.Sprintf("workout %s does not belong to user", workoutID))
	}

	payload := provider.WorkoutPayload{
		Name:          pushName(workout),
		Type:          workout.PlannedType,
		ScheduledDate: workout.ScheduledDate,
		DistanceM:     workout.PlannedDistance,
		DurationS:     workout.PlannedDuration,
	}

	existing, err := s.records.Get(ctx, workoutID, domain.DirectionToProvider)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return failed(res, domain.ReasonPersistence, err.Error())
	}

	var remoteID string
	if existing != nil && existing.RemoteID != "" {
		remoteID = existing.RemoteID
		err = client.UpdateWorkout(ctx, cred.accessToken, remoteID, payload)
	} else {
		remoteID, err = client.CreateWorkout(ctx, cred.accessToken, payload)
	}
	if err != nil {
		reason := providerReason(err)
		s.recordFailure(ctx, cred.conn.UserID, workoutID, remoteID, domain.DirectionToProvider, err)
		return failed(res, reason, err.Error())
	}

	if err := s.records.Upsert(ctx, &domain.SyncRecord{
		WorkoutID:    workoutID,
		UserID:       cred.conn.UserID,
		Direction:    domain.DirectionToProvider,
		RemoteID:     remoteID,
		Status:       domain.SyncStatusSynced,
		LastSyncedAt: time.Now().UTC(),
	}); err != nil {
		return failed(res, domain.ReasonPersistence, fmt.Sprintf("synced remotely but ledger write failed: %v", err))
	}

	res.State = domain.ItemSucceeded
	res.RemoteID = remoteID
	return res
}

// pullOne imports a single provider activity. An explicit workout id pins
// the target; otherwise the matcher picks among planned workouts near the
// activity's start date.
func (s *syncService) pullOne(ctx context.Context, client provider.Client, cred *credential, userID string, item domain.PullItem) domain.SyncItemResult {
	res := domain.SyncItemResult{ActivityID: item.ActivityID}

	raw, err := client.GetActivity(ctx, cred.accessToken, item.ActivityID)
	if err != nil {
		return failed(res, providerReason(err), err.Error())
	}

	activity, err := provider.Normalize(*raw)
	if err != nil {
		return failed(res, domain.ReasonValidation, err.Error())
	}

	var workout *domain.Workout
	if item.WorkoutID != nil {
		workout, err = s.workouts.GetByID(ctx, *item.WorkoutID)
		if errors.Is(err, repository.ErrNotFound) {
			return failed(res, domain.ReasonValidation, fmt.Sprintf("workout %s not found", *item.WorkoutID))
		}
		if err != nil {
			return failed(res, domain.ReasonPersistence, err.Error())
		}
		if workout.UserID != userID {
			return failed(res, domain.ReasonValidation, fmt.Sprintf("workout %s does not belong to user", *item.WorkoutID))
		}
		existing, err := s.records.Get(ctx, workout.ID, domain.DirectionFromProvider)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return failed(res, domain.ReasonPersistence, err.Error())
		}
		if existing != nil && existing.RemoteID != "" && existing.RemoteID != activity.ProviderActivityID {
			return failed(res, domain.ReasonValidation,
				fmt.Sprintf("workout %s already linked to activity %s", workout.ID, existing.RemoteID))
		}
	} else {
		workout, err = s.matchWorkout(ctx, userID, activity)
		if err != nil {
			var reason domain.FailureReason = domain.ReasonPersistence
			if errors.Is(err, errNoMatch) {
				reason = domain.ReasonNoMatchFound
			}
			return failed(res, reason, err.Error())
		}
	}
	res.WorkoutID = workout.ID

	if err := s.workouts.UpdateActuals(ctx, workout.ID, activity.Type, activity.Distance, activity.Duration); err != nil {
		return failed(res, domain.ReasonPersistence, err.Error())
	}

	if err := s.records.Upsert(ctx, &domain.SyncRecord{
		WorkoutID:    workout.ID,
		UserID:       userID,
		Direction:    domain.DirectionFromProvider,
		RemoteID:     activity.ProviderActivityID,
		Status:       domain.SyncStatusSynced,
		LastSyncedAt: time.Now().UTC(),
	}); err != nil {
		return failed(res, domain.ReasonPersistence, fmt.Sprintf("actuals applied but ledger write failed: %v", err))
	}

	res.State = domain.ItemSucceeded
	res.RemoteID = activity.ProviderActivityID
	return res
}

var errNoMatch = errors.New("no workout matched the activity")

// matchWorkout runs the scorer over planned workouts inside the policy
// window around the activity start. Only exact and probable matches are
// applied automatically.
func (s *syncService) matchWorkout(ctx context.Context, userID string, activity domain.CanonicalActivity) (*domain.Workout, error) {
	window := s.opts.MatchPolicy.Window
	from := activity.StartTime.Add(-window - 24*time.Hour)
	to := activity.StartTime.Add(window + 24*time.Hour)

	workouts, err := s.workouts.ListInWindow(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidate workouts: %w", err)
	}

	planned := workouts[:0]
	ids := make([]string, 0, len(workouts))
	for _, w := range workouts {
		if w.Status != domain.WorkoutPlanned {
			continue
		}
		planned = append(planned, w)
		ids = append(ids, w.ID)
	}
	if len(planned) == 0 {
		return nil, errNoMatch
	}

	linked, err := s.records.ListByWorkoutIDs(ctx, ids, domain.DirectionFromProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger for candidates: %w", err)
	}
	remoteByWorkout := make(map[string]string, len(linked))
	for _, rec := range linked {
		if rec.RemoteID != "" {
			remoteByWorkout[rec.WorkoutID] = rec.RemoteID
		}
	}

	candidates := make([]matching.Candidate, 0, len(planned))
	for _, w := range planned {
		cand := matching.Candidate{Workout: *w}
		if remote, ok := remoteByWorkout[w.ID]; ok {
			remote := remote
			cand.ExistingRemoteID = &remote
		}
		candidates = append(candidates, cand)
	}

	matches := matching.Match(activity, candidates, s.opts.MatchPolicy)
	best := matching.Best(matches)
	if best == nil {
		return nil, errNoMatch
	}
	if best.Class == matching.ClassPossible {
		return nil, fmt.Errorf("%w: best candidate %s scored %.2f, below auto-apply confidence",
			errNoMatch, best.WorkoutID, best.Score)
	}

	for _, w := range planned {
		if w.ID == best.WorkoutID {
			return w, nil
		}
	}
	return nil, errNoMatch
}

// failAll fills every result slot with one batch-level failure reason.
func (s *syncService) failAll(ctx context.Context, summary *domain.SyncSummary, reason domain.FailureReason, workoutID func(i int) string) {
	msg := "no usable credential for provider"
	switch reason {
	case domain.ReasonCredentialExpired:
		msg = "stored credential is expired, reconnect the provider"
		summary.ReconnectRequired = true
	case domain.ReasonCredentialMissing:
		msg = "no usable credential for provider, reconnect it"
		summary.ReconnectRequired = true
	}

	for i := range summary.Results {
		summary.Results[i] = domain.SyncItemResult{
			WorkoutID: workoutID(i),
			State:     domain.ItemFailed,
			Reason:    reason,
			Error:     msg,
		}
		summary.Failed++
		if len(summary.Errors) < s.opts.ErrorListCap {
			summary.Errors = append(summary.Errors, msg)
		}
		s.metrics.RecordItem(ctx, summary.Provider, string(summary.Direction), string(domain.ItemFailed))
	}
	s.metrics.RecordProviderError(ctx, summary.Provider, string(reason))
}

// finish stamps the connection, emits the event, and returns the summary.
func (s *syncService) finish(ctx context.Context, userID string, summary *domain.SyncSummary) *domain.SyncSummary {
	// Detached: bookkeeping survives a cancelled batch context.
	tail := context.WithoutCancel(ctx)

	if summary.Synced > 0 {
		if err := s.conns.TouchLastSync(tail, userID, summary.Provider, time.Now().UTC()); err != nil {
			s.logger.Warn("failed to update last sync timestamp",
				zap.String("user_id", userID),
				zap.String("provider", summary.Provider),
				zap.Error(err))
		}
	}

	_ = s.publisher.PublishSyncCompleted(tail, notify.SyncCompleted{
		UserID:     userID,
		Provider:   summary.Provider,
		Direction:  string(summary.Direction),
		Synced:     summary.Synced,
		Failed:     summary.Failed,
		OccurredAt: time.Now().UTC(),
	})

	s.logger.Info("sync pass finished",
		zap.String("user_id", userID),
		zap.String("provider", summary.Provider),
		zap.String("direction", string(summary.Direction)),
		zap.Int("synced", summary.Synced),
		zap.Int("failed", summary.Failed))

	return summary
}

// recordFailure writes a failed ledger entry, best effort. The remote id
// is preserved so a failed re-sync keeps the existing link intact.
func (s *syncService) recordFailure(ctx context.Context, userID, workoutID, remoteID string, direction domain.SyncDirection, cause error) {
	msg := cause.Error()
	if err := s.records.Upsert(ctx, &domain.SyncRecord{
		WorkoutID:    workoutID,
		UserID:       userID,
		Direction:    direction,
		RemoteID:     remoteID,
		Status:       domain.SyncStatusFailed,
		Error:        &msg,
		LastSyncedAt: time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("failed to record sync failure",
			zap.String("workout_id", workoutID),
			zap.Error(err))
	}
}

func (s *syncService) releaseLock(userID, providerName string) {
	if err := s.lock.Release(context.Background(), userID, providerName); err != nil {
		s.logger.Warn("failed to release sync lock",
			zap.String("user_id", userID),
			zap.String("provider", providerName),
			zap.Error(err))
	}
}

func providerReason(err error) domain.FailureReason {
	switch {
	case errors.Is(err, provider.ErrAuthRejected):
		return domain.ReasonProviderAuthRejected
	case errors.Is(err, provider.ErrUnavailable):
		return domain.ReasonProviderUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.ReasonCancelled
	default:
		return domain.ReasonProviderUnavailable
	}
}

func failed(res domain.SyncItemResult, reason domain.FailureReason, msg string) domain.SyncItemResult {
	res.State = domain.ItemFailed
	res.Reason = reason
	res.Error = msg
	return res
}

func pushName(w *domain.Workout) string {
	if w.PlannedType == "" {
		return "Workout"
	}
	return w.PlannedType
}
