package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"tailscale.com/tsweb"

	"github.com/banshee-data/lidar.sections/internal/lidar/sections"
)

// StatusFunc reports the supervised devices for the devices endpoint.
type StatusFunc func() any

// AttachRoutes mounts the monitor endpoints on the /debug/ handler of mux.
// status may be nil.
func (m *Monitor) AttachRoutes(mux *http.ServeMux, status StatusFunc) {
	debug := tsweb.Debugger(mux)
	debug.Handle("sweep", "Latest sweep per sector (JSON, ?key=)", http.HandlerFunc(m.handleSweep))
	debug.Handle("sweep-polar", "Latest sweep as an XY scatter (HTML, ?key=)", http.HandlerFunc(m.handleSweepPolar))
	debug.Handle("sweep.png", "Latest sweep plot (PNG, ?key=)", http.HandlerFunc(m.handleSweepPNG))
	debug.Handle("section-stats", "Section throughput (JSON)", http.HandlerFunc(m.handleStats))
	if status != nil {
		debug.Handle("devices", "Supervised devices (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, status())
		}))
	}
}

func (m *Monitor) sweepFor(w http.ResponseWriter, r *http.Request) (Sweep, bool) {
	sw, ok := m.Snapshot(r.URL.Query().Get("key"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "no sections received for device")
	}
	return sw, ok
}

func (m *Monitor) handleSweep(w http.ResponseWriter, r *http.Request) {
	if sw, ok := m.sweepFor(w, r); ok {
		writeJSON(w, http.StatusOK, sw)
	}
}

func (m *Monitor) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		UptimeSec float64        `json:"uptime_sec"`
		Latest    *StatsSnapshot `json:"latest,omitempty"`
		Devices   []string       `json:"devices"`
	}{
		UptimeSec: m.stats.GetUptime().Seconds(),
		Latest:    m.stats.GetLatestSnapshot(),
		Devices:   m.Keys(),
	})
}

// handleSweepPolar renders the latest sweep converted from polar to XY,
// coloured by sector.
func (m *Monitor) handleSweepPolar(w http.ResponseWriter, r *http.Request) {
	sw, ok := m.sweepFor(w, r)
	if !ok {
		return
	}

	maxAbs := 0.0
	data := make([]opts.ScatterData, 0, len(sw.Points()))
	for _, sec := range sw.Sections {
		for _, p := range sec.Points {
			x, y := m.XY(p)
			maxAbs = math.Max(maxAbs, math.Max(math.Abs(x), math.Abs(y)))
			data = append(data, opts.ScatterData{Value: []interface{}{x, y, sec.Sector}})
		}
	}
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Latest sweep", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Latest sweep", Subtitle: fmt.Sprintf("device=%s run=%s points=%d", sw.Key, sw.RunID, len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:      opts.Bool(true),
			Min:       0,
			Max:       float32(sections.SectorCount - 1),
			Dimension: "2",
			InRange:   &opts.VisualMapInRange{Color: []string{"#440154", "#3e4989", "#26828e", "#35b779", "#b5de2b", "#fde725"}},
		}),
	)
	scatter.AddSeries("sweep", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleSweepPNG plots the latest sweep with gonum/plot.
func (m *Monitor) handleSweepPNG(w http.ResponseWriter, r *http.Request) {
	sw, ok := m.sweepFor(w, r)
	if !ok {
		return
	}
	points := sw.Points()
	if len(points) == 0 {
		writeJSONError(w, http.StatusNotFound, "latest sweep has no points")
		return
	}

	xys := make(plotter.XYs, len(points))
	for i, p := range points {
		xys[i].X, xys[i].Y = m.XY(p)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Latest sweep: %s", sw.Key)
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"
	p.Add(plotter.NewGrid())

	sc, err := plotter.NewScatter(xys)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to build plot: %v", err))
		return
	}
	sc.GlyphStyle.Radius = vg.Points(1)
	p.Add(sc)

	wt, err := p.WriterTo(6*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to encode plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
