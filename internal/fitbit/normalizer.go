package fitbit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/healthbridge/vendorsync/internal/domain"
	"go.uber.org/zap"
)

const timeLayout = "15:04:05"

// Normalizer converts raw day payloads into vendor-agnostic
// observations. Sample times in the payloads are local to the user's
// profile timezone.
type Normalizer struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewNormalizer creates a new payload normalizer
func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger, now: time.Now}
}

// NormalizeDay converts one day's payload into observations. Datasets
// that are missing or malformed are skipped; the rest still normalize.
func (n *Normalizer) NormalizeDay(payload *DayPayload, timezone string) []domain.Observation {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		n.logger.Warn("unknown timezone, falling back to UTC", zap.String("timezone", timezone))
		loc = time.UTC
	}

	var observations []domain.Observation
	observations = append(observations, n.normalizeHeartRate(payload, loc)...)
	observations = append(observations, n.normalizeSpO2(payload)...)
	observations = append(observations, n.normalizeBodyWeight(payload, loc)...)
	observations = append(observations, n.normalizeActivitySummary(payload)...)
	observations = append(observations, n.normalizeCalories(payload, loc)...)
	return observations
}

type heartRatePayload struct {
	ActivitiesHeart []struct {
		Value struct {
			RestingHeartRate float64 `json:"restingHeartRate"`
		} `json:"value"`
	} `json:"activities-heart"`
	Intraday struct {
		Dataset []intradaySample `json:"dataset"`
	} `json:"activities-heart-intraday"`
}

type intradaySample struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// normalizeHeartRate keeps intraday samples that fall exactly on an
// even two-hour boundary, at most twelve per day. When the intraday
// series is empty the daily resting heart rate stands in, if present.
func (n *Normalizer) normalizeHeartRate(payload *DayPayload, loc *time.Location) []domain.Observation {
	if payload.HeartRate == nil {
		return nil
	}

	var hr heartRatePayload
	if err := json.Unmarshal(payload.HeartRate, &hr); err != nil {
		n.logger.Warn("malformed heart rate payload", zap.Error(err))
		return nil
	}

	date := payload.Date.Format(dateLayout)

	var observations []domain.Observation
	for _, sample := range hr.Intraday.Dataset {
		t, err := time.Parse(timeLayout, sample.Time)
		if err != nil {
			continue
		}
		if t.Hour()%2 != 0 || t.Minute() != 0 || t.Second() != 0 {
			continue
		}

		effectiveAt := time.Date(
			payload.Date.Year(), payload.Date.Month(), payload.Date.Day(),
			t.Hour(), t.Minute(), t.Second(), 0, loc,
		)
		observations = append(observations, domain.Observation{
			Type:           domain.ObservationHeartRate,
			Value:          sample.Value,
			Unit:           "beats/minute",
			EffectiveAt:    effectiveAt.UTC(),
			Vendor:         domain.VendorFitbit,
			VendorSourceID: fmt.Sprintf("heart_rate:%s:%s", date, sample.Time),
		})
	}

	if len(hr.Intraday.Dataset) == 0 && len(hr.ActivitiesHeart) > 0 && hr.ActivitiesHeart[0].Value.RestingHeartRate > 0 {
		observations = append(observations, domain.Observation{
			Type:           domain.ObservationRestingHR,
			Value:          hr.ActivitiesHeart[0].Value.RestingHeartRate,
			Unit:           "beats/minute",
			EffectiveAt:    n.now().UTC(),
			Vendor:         domain.VendorFitbit,
			VendorSourceID: fmt.Sprintf("heart_rate:%s:resting", date),
		})
	}

	return observations
}

type spO2Payload struct {
	Value struct {
		Avg float64 `json:"avg"`
	} `json:"value"`
}

func (n *Normalizer) normalizeSpO2(payload *DayPayload) []domain.Observation {
	if payload.SpO2 == nil {
		return nil
	}

	var sp spO2Payload
	if err := json.Unmarshal(payload.SpO2, &sp); err != nil {
		n.logger.Warn("malformed spo2 payload", zap.Error(err))
		return nil
	}
	if sp.Value.Avg <= 0 {
		return nil
	}

	return []domain.Observation{{
		Type:           domain.ObservationSpO2,
		Value:          sp.Value.Avg,
		Unit:           "%",
		EffectiveAt:    n.now().UTC(),
		Vendor:         domain.VendorFitbit,
		VendorSourceID: fmt.Sprintf("spo2:%s", payload.Date.Format(dateLayout)),
	}}
}

type bodyWeightPayload struct {
	Weight []struct {
		Weight float64 `json:"weight"`
		Date   string  `json:"date"`
		Time   string  `json:"time"`
		LogID  int64   `json:"logId"`
	} `json:"weight"`
}

func (n *Normalizer) normalizeBodyWeight(payload *DayPayload, loc *time.Location) []domain.Observation {
	if payload.BodyWeight == nil {
		return nil
	}

	var bw bodyWeightPayload
	if err := json.Unmarshal(payload.BodyWeight, &bw); err != nil {
		n.logger.Warn("malformed body weight payload", zap.Error(err))
		return nil
	}

	var observations []domain.Observation
	for _, entry := range bw.Weight {
		if entry.Weight <= 0 {
			continue
		}

		effectiveAt := n.now().UTC()
		if entry.Date != "" && entry.Time != "" {
			if t, err := time.ParseInLocation(dateLayout+" "+timeLayout, entry.Date+" "+entry.Time, loc); err == nil {
				effectiveAt = t.UTC()
			}
		}

		sourceID := fmt.Sprintf("weight:%d", entry.LogID)
		if entry.LogID == 0 {
			logTime := entry.Time
			if logTime == "" {
				logTime = "na"
			}
			sourceID = fmt.Sprintf("weight:%s:%s", payload.Date.Format(dateLayout), logTime)
		}

		observations = append(observations, domain.Observation{
			Type:           domain.ObservationBodyWeight,
			Value:          entry.Weight,
			Unit:           "kg",
			EffectiveAt:    effectiveAt,
			Vendor:         domain.VendorFitbit,
			VendorSourceID: sourceID,
		})
	}

	return observations
}

type activitySummaryPayload struct {
	Summary struct {
		Steps float64 `json:"steps"`
	} `json:"summary"`
}

func (n *Normalizer) normalizeActivitySummary(payload *DayPayload) []domain.Observation {
	if payload.ActivitySummary == nil {
		return nil
	}

	var as activitySummaryPayload
	if err := json.Unmarshal(payload.ActivitySummary, &as); err != nil {
		n.logger.Warn("malformed activity summary payload", zap.Error(err))
		return nil
	}
	if as.Summary.Steps <= 0 {
		return nil
	}

	return []domain.Observation{{
		Type:           domain.ObservationSteps,
		Value:          as.Summary.Steps,
		Unit:           "steps",
		EffectiveAt:    n.now().UTC(),
		Vendor:         domain.VendorFitbit,
		VendorSourceID: fmt.Sprintf("steps:%s", payload.Date.Format(dateLayout)),
	}}
}

type caloriesPayload struct {
	Intraday struct {
		Dataset []struct {
			Time  string   `json:"time"`
			Value *float64 `json:"value"`
		} `json:"dataset"`
	} `json:"activities-calories-intraday"`
}

// normalizeCalories reduces the intraday series to the latest non-null
// sample of the day, stamped with that sample's local time.
func (n *Normalizer) normalizeCalories(payload *DayPayload, loc *time.Location) []domain.Observation {
	if payload.CaloriesIntraday == nil {
		return nil
	}

	var cal caloriesPayload
	if err := json.Unmarshal(payload.CaloriesIntraday, &cal); err != nil {
		n.logger.Warn("malformed calories payload", zap.Error(err))
		return nil
	}

	dataset := cal.Intraday.Dataset
	for i := len(dataset) - 1; i >= 0; i-- {
		sample := dataset[i]
		if sample.Value == nil || sample.Time == "" {
			continue
		}
		t, err := time.Parse(timeLayout, sample.Time)
		if err != nil {
			continue
		}

		effectiveAt := time.Date(
			payload.Date.Year(), payload.Date.Month(), payload.Date.Day(),
			t.Hour(), t.Minute(), t.Second(), 0, loc,
		)
		return []domain.Observation{{
			Type:           domain.ObservationCalories,
			Value:          *sample.Value,
			Unit:           "kcal",
			EffectiveAt:    effectiveAt.UTC(),
			Vendor:         domain.VendorFitbit,
			VendorSourceID: fmt.Sprintf("calories:%s", payload.Date.Format(dateLayout)),
		}}
	}

	return nil
}
