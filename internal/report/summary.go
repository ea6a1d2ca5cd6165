// Package report summarises a stored session and plots it.
package report

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/telemetry.report/internal/db"
	"github.com/banshee-data/telemetry.report/internal/geo"
)

// Summary describes one session's track.
type Summary struct {
	Samples   int           `json:"samples"`
	Duration  time.Duration `json:"duration"`
	Airborne  time.Duration `json:"airborne"`
	Distance  float64       `json:"distance_m"`
	MaxAlt    float64       `json:"max_alt"`
	MeanAlt   float64       `json:"mean_alt"`
	MaxSpeed  float64       `json:"max_groundspeed"`
	MeanSpeed float64       `json:"mean_groundspeed"`
	StdSpeed  float64       `json:"std_groundspeed"`
	P95Speed  float64       `json:"p95_groundspeed"`
	MaxHome   float64       `json:"max_dist_to_home_m"`
}

// Summarize computes flight statistics for track, which must be in time
// order. An interval counts as airborne when both ends are above threshold.
func Summarize(track []db.TrackPoint, home geo.Point, threshold float64) Summary {
	s := Summary{Samples: len(track)}
	if len(track) == 0 {
		return s
	}

	alts := make([]float64, len(track))
	speeds := make([]float64, len(track))
	for i, p := range track {
		alts[i] = p.Alt
		speeds[i] = p.Groundspeed
		if d := home.DistanceTo(geo.Point{Lat: p.Lat, Lon: p.Lon}) * 1000; d > s.MaxHome {
			s.MaxHome = d
		}
		if i == 0 {
			continue
		}
		prev := track[i-1]
		s.Distance += geo.Distance(prev.Lat, prev.Lon, p.Lat, p.Lon) * 1000
		if prev.Alt > threshold && p.Alt > threshold {
			s.Airborne += p.Time.Sub(prev.Time)
		}
	}
	s.Duration = track[len(track)-1].Time.Sub(track[0].Time)

	s.MaxAlt = floats.Max(alts)
	s.MeanAlt = stat.Mean(alts, nil)
	s.MaxSpeed = floats.Max(speeds)
	s.MeanSpeed = stat.Mean(speeds, nil)
	if len(speeds) > 1 {
		s.StdSpeed = stat.StdDev(speeds, nil)
	}
	sorted := slices.Clone(speeds)
	slices.Sort(sorted)
	s.P95Speed = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	return s
}

// Write prints the summary as aligned text.
func (s Summary) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"samples            %s\n"+
			"duration           %s\n"+
			"airborne           %s\n"+
			"distance           %s\n"+
			"max from home      %s\n"+
			"altitude max/mean  %.1f / %.1f m\n"+
			"groundspeed        max %.1f  mean %.1f  std %.1f  p95 %.1f m/s\n",
		humanize.Comma(int64(s.Samples)),
		s.Duration.Round(time.Second),
		s.Airborne.Round(time.Second),
		humanize.SIWithDigits(s.Distance, 2, "m"),
		humanize.SIWithDigits(s.MaxHome, 2, "m"),
		s.MaxAlt, s.MeanAlt,
		s.MaxSpeed, s.MeanSpeed, s.StdSpeed, s.P95Speed,
	)
	return err
}
