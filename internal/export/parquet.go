// Package export writes daily metrics and training load to Parquet and
// uploads them to object storage.
package export

import (
	"math"
	"time"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"example.com/wellness/internal/domain"
)

type dailyMetricRow struct {
	Day               string  `parquet:"name=day, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Steps             int64   `parquet:"name=steps, type=INT64"`
	HasSteps          bool    `parquet:"name=has_steps, type=BOOLEAN"`
	ActiveEnergyKcal  float64 `parquet:"name=active_energy_kcal, type=DOUBLE"`
	DistanceM         float64 `parquet:"name=distance_m, type=DOUBLE"`
	RestingHeartRate  float64 `parquet:"name=resting_heart_rate, type=DOUBLE"`
	SleepDeepH        float64 `parquet:"name=sleep_deep_h, type=DOUBLE"`
	SleepREMH         float64 `parquet:"name=sleep_rem_h, type=DOUBLE"`
	SleepCoreH        float64 `parquet:"name=sleep_core_h, type=DOUBLE"`
	SleepUnspecifiedH float64 `parquet:"name=sleep_unspecified_h, type=DOUBLE"`
	SleepAwakeH       float64 `parquet:"name=sleep_awake_h, type=DOUBLE"`
	TotalSleepH       float64 `parquet:"name=total_sleep_h, type=DOUBLE"`
	SleepEfficiency   float64 `parquet:"name=sleep_efficiency, type=DOUBLE"`
	BodyMassKg        float64 `parquet:"name=body_mass_kg, type=DOUBLE"`
	BodyFatPct        float64 `parquet:"name=body_fat_pct, type=DOUBLE"`
	LeanMassKg        float64 `parquet:"name=lean_mass_kg, type=DOUBLE"`
	ActivityScore     float64 `parquet:"name=activity_score, type=DOUBLE"`
	SleepQualityScore float64 `parquet:"name=sleep_quality_score, type=DOUBLE"`
	UpdatedAtUnix     int64   `parquet:"name=updated_at_unix, type=INT64"`
}

type trainingLoadRow struct {
	Day       string  `parquet:"name=day, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	TSS       float64 `parquet:"name=tss, type=DOUBLE"`
	Sessions  int64   `parquet:"name=sessions, type=INT64"`
	DistanceM float64 `parquet:"name=distance_m, type=DOUBLE"`
	DurationS float64 `parquet:"name=duration_s, type=DOUBLE"`
}

// MarshalDailyMetrics encodes records as SNAPPY-compressed Parquet. Absent
// values are written as NaN.
func MarshalDailyMetrics(records []domain.DailyMetricRecord) ([]byte, error) {
	rows := make([]dailyMetricRow, 0, len(records))
	for _, rec := range records {
		row := dailyMetricRow{
			Day:               rec.Key(),
			ActiveEnergyKcal:  valueOrNaN(rec.ActiveEnergyKcal),
			DistanceM:         valueOrNaN(rec.DistanceMeters),
			RestingHeartRate:  valueOrNaN(rec.RestingHeartRate),
			SleepDeepH:        hoursOrNaN(rec.SleepDeep),
			SleepREMH:         hoursOrNaN(rec.SleepREM),
			SleepCoreH:        hoursOrNaN(rec.SleepCore),
			SleepUnspecifiedH: hoursOrNaN(rec.SleepUnspecified),
			SleepAwakeH:       hoursOrNaN(rec.SleepAwake),
			TotalSleepH:       hoursOrNaN(rec.TotalSleep),
			SleepEfficiency:   valueOrNaN(rec.SleepEfficiency),
			BodyMassKg:        valueOrNaN(rec.BodyMassKg),
			BodyFatPct:        valueOrNaN(rec.BodyFatPercent),
			LeanMassKg:        valueOrNaN(rec.LeanMassKg),
			ActivityScore:     valueOrNaN(rec.ActivityScore),
			SleepQualityScore: valueOrNaN(rec.SleepQualityScore),
		}
		if rec.Steps != nil {
			row.Steps = int64(*rec.Steps)
			row.HasSteps = true
		}
		if !rec.UpdatedAt.IsZero() {
			row.UpdatedAtUnix = rec.UpdatedAt.Unix()
		}
		rows = append(rows, row)
	}
	return marshalRows(new(dailyMetricRow), rows)
}

// MarshalTrainingLoad encodes loads as SNAPPY-compressed Parquet.
func MarshalTrainingLoad(loads []domain.DailyTrainingLoad) ([]byte, error) {
	rows := make([]trainingLoadRow, 0, len(loads))
	for _, load := range loads {
		rows = append(rows, trainingLoadRow{
			Day:       load.Key(),
			TSS:       load.TSS,
			Sessions:  int64(load.Sessions),
			DistanceM: load.DistanceMeters,
			DurationS: load.Duration.Seconds(),
		})
	}
	return marshalRows(new(trainingLoadRow), rows)
}

func marshalRows[T any](schema *T, rows []T) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, schema, 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func hoursOrNaN(d *time.Duration) float64 {
	if d == nil {
		return math.NaN()
	}
	return d.Hours()
}
