package support

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	caseKeyPrefix     = "support_case:"
	caseIndexKey      = "support_cases:all"
	openCaseIndexKey  = "support_cases:open"
	caseTimeLayout    = time.RFC3339Nano
	resolveRetryLimit = 3
)

// RedisCaseStore keeps each case in a hash and indexes ids in sorted sets
// scored by creation time.
type RedisCaseStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

// NewRedisCaseStore returns nil when client is nil.
func NewRedisCaseStore(client *redis.Client) *RedisCaseStore {
	if client == nil {
		return nil
	}
	return &RedisCaseStore{
		redis:  client,
		tracer: otel.Tracer("carebook.internal.support.case_store"),
	}
}

func (s *RedisCaseStore) Open(ctx context.Context, c Case) error {
	if c.ID == "" {
		return errors.New("support: case id required")
	}
	ctx, span := s.tracer.Start(ctx, "support.case_store.open")
	defer span.End()

	score := float64(c.CreatedAt.UnixMilli())
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, caseKey(c.ID), caseFields(c))
	pipe.ZAdd(ctx, caseIndexKey, redis.Z{Score: score, Member: c.ID})
	if c.Status == StatusOpen {
		pipe.ZAdd(ctx, openCaseIndexKey, redis.Z{Score: score, Member: c.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("support: store case: %w", err)
	}
	return nil
}

func (s *RedisCaseStore) Get(ctx context.Context, id string) (*Case, error) {
	ctx, span := s.tracer.Start(ctx, "support.case_store.get")
	defer span.End()

	fields, err := s.redis.HGetAll(ctx, caseKey(id)).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("support: get case: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrCaseNotFound
	}
	return caseFromFields(fields)
}

func (s *RedisCaseStore) List(ctx context.Context, opts ListOptions) ([]Case, error) {
	ctx, span := s.tracer.Start(ctx, "support.case_store.list")
	defer span.End()

	index := caseIndexKey
	if opts.OpenOnly {
		index = openCaseIndexKey
	}
	ids, err := s.redis.ZRevRange(ctx, index, 0, int64(opts.limit()-1)).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("support: list case ids: %w", err)
	}
	if len(ids) == 0 {
		return []Case{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, caseKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		return nil, fmt.Errorf("support: load cases: %w", err)
	}

	out := make([]Case, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		c, err := caseFromFields(fields)
		if err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

// Resolve marks a case resolved. Concurrent resolutions of the same case are
// serialized with WATCH; the loser gets ErrAlreadyResolved.
func (s *RedisCaseStore) Resolve(ctx context.Context, id, note string, at time.Time) (*Case, error) {
	ctx, span := s.tracer.Start(ctx, "support.case_store.resolve")
	defer span.End()

	key := caseKey(id)
	var resolved *Case
	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return ErrCaseNotFound
		}
		c, err := caseFromFields(fields)
		if err != nil {
			return err
		}
		if c.Status == StatusResolved {
			return ErrAlreadyResolved
		}
		resolvedAt := at.UTC()
		c.Status = StatusResolved
		c.Resolution = note
		c.ResolvedAt = &resolvedAt

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"status", string(StatusResolved),
				"resolution", note,
				"resolved_at", resolvedAt.Format(caseTimeLayout),
			)
			pipe.ZRem(ctx, openCaseIndexKey, id)
			return nil
		})
		if err == nil {
			resolved = c
		}
		return err
	}

	for attempt := 0; attempt < resolveRetryLimit; attempt++ {
		err := s.redis.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return resolved, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrCaseNotFound), errors.Is(err, ErrAlreadyResolved):
			return nil, err
		default:
			span.RecordError(err)
			return nil, fmt.Errorf("support: resolve case: %w", err)
		}
	}
	return nil, fmt.Errorf("support: resolve case %s: too much contention", id)
}

func caseKey(id string) string {
	return caseKeyPrefix + id
}

func caseFields(c Case) map[string]any {
	fields := map[string]any{
		"id":             c.ID,
		"kind":           string(c.Kind),
		"status":         string(c.Status),
		"patient_id":     c.PatientID,
		"service_id":     c.ServiceID,
		"appointment_id": c.AppointmentID,
		"purchase_id":    c.PurchaseID,
		"amount_cents":   c.AmountCents,
		"currency":       c.Currency,
		"reason":         c.Reason,
		"raw_body":       c.RawBody,
		"resolution":     c.Resolution,
		"created_at":     c.CreatedAt.UTC().Format(caseTimeLayout),
	}
	if c.ResolvedAt != nil {
		fields["resolved_at"] = c.ResolvedAt.UTC().Format(caseTimeLayout)
	}
	return fields
}

func caseFromFields(fields map[string]string) (*Case, error) {
	c := &Case{
		ID:            fields["id"],
		Kind:          Kind(fields["kind"]),
		Status:        Status(fields["status"]),
		PatientID:     fields["patient_id"],
		ServiceID:     fields["service_id"],
		AppointmentID: fields["appointment_id"],
		PurchaseID:    fields["purchase_id"],
		Currency:      fields["currency"],
		Reason:        fields["reason"],
		RawBody:       fields["raw_body"],
		Resolution:    fields["resolution"],
	}
	if raw := fields["amount_cents"]; raw != "" {
		amount, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("support: parse amount for case %s: %w", c.ID, err)
		}
		c.AmountCents = amount
	}
	created, err := time.Parse(caseTimeLayout, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("support: parse created_at for case %s: %w", c.ID, err)
	}
	c.CreatedAt = created
	if raw := fields["resolved_at"]; raw != "" {
		resolved, err := time.Parse(caseTimeLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("support: parse resolved_at for case %s: %w", c.ID, err)
		}
		c.ResolvedAt = &resolved
	}
	return c, nil
}
