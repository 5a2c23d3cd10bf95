package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Hash fields used by the Redis provider.
const (
	fieldFTP        = "ftp"
	fieldLTHR       = "lthr"
	fieldBodyMass   = "body_mass_kg"
	fieldBodyMassAt = "body_mass_at"
)

// Redis keeps athlete settings in one hash so other services can edit them.
// Missing fields fall back to the configured defaults.
type Redis struct {
	client   redis.Cmdable
	key      string
	defaults Athlete
}

// NewRedis builds a Redis provider on key.
func NewRedis(client redis.Cmdable, key string, defaults Athlete) *Redis {
	return &Redis{client: client, key: key, defaults: defaults}
}

func (r *Redis) Athlete(ctx context.Context) (Athlete, error) {
	values, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return Athlete{}, fmt.Errorf("read athlete settings: %w", err)
	}

	a := r.defaults
	var errs []error
	if raw, ok := values[fieldFTP]; ok {
		v, err := strconv.ParseFloat(raw, 64)
		errs = append(errs, fieldErr(fieldFTP, err))
		if err == nil {
			a.FTP = v
		}
	}
	if raw, ok := values[fieldLTHR]; ok {
		v, err := strconv.ParseFloat(raw, 64)
		errs = append(errs, fieldErr(fieldLTHR, err))
		if err == nil {
			a.LTHR = v
		}
	}
	if raw, ok := values[fieldBodyMass]; ok {
		v, err := strconv.ParseFloat(raw, 64)
		errs = append(errs, fieldErr(fieldBodyMass, err))
		if err == nil {
			a.BodyMassKg = &v
		}
	}
	if raw, ok := values[fieldBodyMassAt]; ok {
		ts, err := time.Parse(time.RFC3339, raw)
		errs = append(errs, fieldErr(fieldBodyMassAt, err))
		if err == nil {
			a.BodyMassAt = ts
		}
	}
	return a, errors.Join(errs...)
}

func (r *Redis) RecordBodyMass(ctx context.Context, kg float64, at time.Time) error {
	current, err := r.client.HGet(ctx, r.key, fieldBodyMassAt).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read body mass timestamp: %w", err)
	}
	if current != "" {
		if ts, perr := time.Parse(time.RFC3339, current); perr == nil && at.Before(ts) {
			return nil
		}
	}

	if err := r.client.HSet(ctx, r.key,
		fieldBodyMass, strconv.FormatFloat(kg, 'f', -1, 64),
		fieldBodyMassAt, at.UTC().Format(time.RFC3339),
	).Err(); err != nil {
		return fmt.Errorf("write body mass: %w", err)
	}
	return nil
}

func fieldErr(field string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("field %s: %w", field, err)
}
