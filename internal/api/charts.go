package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/telemetry.report/internal/db"
	"github.com/banshee-data/telemetry.report/internal/httputil"
)

// altitudeChart plots altitude and groundspeed against time for a session.
func (s *Server) altitudeChart(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGet(w, r) || !s.requireStore(w) {
		return
	}
	session, track, ok := s.loadTrack(w, r)
	if !ok {
		return
	}

	x := make([]string, len(track))
	alt := make([]opts.LineData, len(track))
	speed := make([]opts.LineData, len(track))
	for i, p := range track {
		x[i] = p.Time.Format("15:04:05")
		alt[i] = opts.LineData{Value: p.Alt}
		speed[i] = opts.LineData{Value: p.Groundspeed}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Altitude", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Altitude and groundspeed", Subtitle: fmt.Sprintf("session=%s points=%d", session.ID, len(track))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x).
		AddSeries("alt (m)", alt).
		AddSeries("groundspeed (m/s)", speed)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// trackChart plots the ground track with the mission waypoints overlaid.
func (s *Server) trackChart(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGet(w, r) || !s.requireStore(w) {
		return
	}
	session, track, ok := s.loadTrack(w, r)
	if !ok {
		return
	}
	waypoints, err := s.store.Waypoints(session.ID)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load waypoints: %v", err))
		return
	}

	path := make([]opts.ScatterData, len(track))
	for i, p := range track {
		path[i] = opts.ScatterData{Value: []interface{}{p.Lon, p.Lat, p.Alt}}
	}
	wps := make([]opts.ScatterData, len(waypoints))
	for i, wp := range waypoints {
		wps[i] = opts.ScatterData{Value: []interface{}{wp.Longitude, wp.Latitude, wp.Altitude}, Name: fmt.Sprintf("wp %d", wp.Seq)}
	}
	home := []opts.ScatterData{{Value: []interface{}{session.Home.Lon, session.Home.Lat, 0}, Name: "home"}}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Ground track", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Ground track", Subtitle: fmt.Sprintf("session=%s fixes=%d waypoints=%d", session.ID, len(track), len(waypoints))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "lon", Min: "dataMin", Max: "dataMax"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "lat", Min: "dataMin", Max: "dataMax"}),
	)
	scatter.AddSeries("track", path, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	scatter.AddSeries("waypoints", wps, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
	scatter.AddSeries("home", home, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) loadTrack(w http.ResponseWriter, r *http.Request) (*db.Session, []db.TrackPoint, bool) {
	session, ok := s.resolveSession(w, r)
	if !ok {
		return nil, nil, false
	}
	track, err := s.store.Track(session.ID)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load track: %v", err))
		return nil, nil, false
	}
	return session, track, true
}
