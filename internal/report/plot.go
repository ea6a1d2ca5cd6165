package report

import (
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/telemetry.report/internal/db"
	"github.com/banshee-data/telemetry.report/internal/geo"
	"github.com/banshee-data/telemetry.report/internal/telemetry"
)

// ErrEmptyTrack is returned when there is nothing to plot.
var ErrEmptyTrack = errors.New("track has no position fixes")

var (
	trackColor    = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	waypointColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	homeColor     = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

// PlotTrack writes the ground track, waypoints and home as a PNG (or any
// format gonum/plot infers from the file extension).
func PlotTrack(path string, track []db.TrackPoint, waypoints []telemetry.Waypoint, home geo.Point) error {
	if len(track) == 0 {
		return ErrEmptyTrack
	}

	p := plot.New()
	p.Title.Text = "Ground track"
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"

	pts := make(plotter.XYs, len(track))
	for i, tp := range track {
		pts[i] = plotter.XY{X: tp.Lon, Y: tp.Lat}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = trackColor
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add("track", line)

	if len(waypoints) > 0 {
		wpts := make(plotter.XYs, len(waypoints))
		for i, wp := range waypoints {
			wpts[i] = plotter.XY{X: wp.Longitude, Y: wp.Latitude}
		}
		scatter, err := plotter.NewScatter(wpts)
		if err != nil {
			return err
		}
		scatter.GlyphStyle.Color = waypointColor
		scatter.GlyphStyle.Shape = draw.CrossGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(4)
		p.Add(scatter)
		p.Legend.Add("waypoints", scatter)
	}

	homePt, err := plotter.NewScatter(plotter.XYs{{X: home.Lon, Y: home.Lat}})
	if err != nil {
		return err
	}
	homePt.GlyphStyle.Color = homeColor
	homePt.GlyphStyle.Shape = draw.PyramidGlyph{}
	homePt.GlyphStyle.Radius = vg.Points(5)
	p.Add(homePt)
	p.Legend.Add("home", homePt)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save track plot: %w", err)
	}
	return nil
}

// PlotAltitude writes altitude against elapsed seconds.
func PlotAltitude(path string, track []db.TrackPoint) error {
	if len(track) == 0 {
		return ErrEmptyTrack
	}

	p := plot.New()
	p.Title.Text = "Altitude"
	p.X.Label.Text = "Elapsed (s)"
	p.Y.Label.Text = "Altitude (m)"

	start := track[0].Time
	pts := make(plotter.XYs, len(track))
	for i, tp := range track {
		pts[i] = plotter.XY{X: tp.Time.Sub(start).Seconds(), Y: tp.Alt}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = trackColor
	line.Width = vg.Points(1)
	p.Add(line)

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save altitude plot: %w", err)
	}
	return nil
}
