package dashboard

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"math"
	"net/http"

	"github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"github.com/evkuzin/cicadawatch/status"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/gorilla/mux"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// emergenceSeries names the constant threshold line on temperature charts.
const emergenceSeries = "emergence"

func (s *Server) htmlPlot(w http.ResponseWriter, r *http.Request) {
	column := mux.Vars(r)["column"]
	var buf bytes.Buffer
	if err := s.renderHTML(&buf, column); err != nil {
		s.writeError(w, column, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) pngPlot(w http.ResponseWriter, r *http.Request) {
	column := mux.Vars(r)["column"]
	series, err := s.recent(column)
	if err != nil {
		s.writeError(w, column, err)
		return
	}
	var buf bytes.Buffer
	if err := s.renderPNG(&buf, column, series); err != nil {
		s.writeError(w, column, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

func (s *Server) pdfPlot(w http.ResponseWriter, r *http.Request) {
	column := mux.Vars(r)["column"]
	var buf bytes.Buffer
	if err := s.renderHTML(&buf, column); err != nil {
		s.writeError(w, column, err)
		return
	}
	doc, err := s.pdf(buf.Bytes())
	if err != nil {
		s.writeError(w, column, fmt.Errorf("cannot render pdf: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Write(doc)
}

func (s *Server) renderHTML(w io.Writer, column string) error {
	series, err := s.recent(column)
	if err != nil {
		return err
	}
	line := s.createBaseGraph(column, series)
	s.logger.Debugf("build graph of %s based on %d samples", column, len(series))
	return line.Render(w)
}

func (s *Server) createBaseGraph(column string, series []status.Sample) *charts.Line {
	line := charts.NewLine()
	xTime := make([]string, len(series))
	yValues := make([]opts.LineData, len(series))
	minY, maxY := math.Inf(1), math.Inf(-1)
	for i, sample := range series {
		xTime[i] = sample.Time.Format("2006-01-02 15:04")
		yValues[i] = opts.LineData{Value: sample.Value}
		minY = math.Min(minY, sample.Value)
		maxY = math.Max(maxY, sample.Value)
	}

	threshold, hasThreshold := s.threshold(column)
	var thresholdLine []opts.LineData
	if hasThreshold {
		minY = math.Min(minY, threshold)
		maxY = math.Max(maxY, threshold)
		thresholdLine = make([]opts.LineData, len(series))
		for i := range thresholdLine {
			thresholdLine[i] = opts.LineData{Value: threshold}
		}
	}
	pad := math.Max((maxY-minY)*0.05, 0.005)

	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "temp_server: " + column,
			Theme:     types.ThemeWesteros,
			Width:     "1000px",
			Height:    "600px",
		}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
		charts.WithTitleOpts(opts.Title{Title: column}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: column,
			Min:  math.Floor((minY-pad)*100) / 100,
			Max:  math.Ceil((maxY+pad)*100) / 100,
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:      true,
			Trigger:   "axis",
			TriggerOn: "mousemove",
			AxisPointer: &opts.AxisPointer{
				Type: "cross",
				Snap: true,
			},
		}))
	line.SetXAxis(xTime).
		AddSeries(column, yValues)
	if hasThreshold {
		line.AddSeries(emergenceSeries, thresholdLine,
			charts.WithLineStyleOpts(opts.LineStyle{Color: "red", Type: "dotted", Width: 1}),
		)
	}
	return line
}

func (s *Server) renderPNG(w io.Writer, column string, series []status.Sample) error {
	p := plot.New()
	p.Title.Text = column
	p.Y.Label.Text = column
	p.X.Tick.Marker = plot.TimeTicks{Format: "Jan 2\n15:04"}
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(series))
	for i, sample := range series {
		xys[i].X = float64(sample.Time.Unix())
		xys[i].Y = sample.Value
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return fmt.Errorf("cannot plot %s: %w", column, err)
	}
	p.Add(line)

	if threshold, ok := s.threshold(column); ok {
		th := plotter.NewFunction(func(float64) float64 { return threshold })
		th.Color = color.RGBA{R: 255, A: 128}
		th.Dashes = []vg.Length{vg.Points(1), vg.Points(3)}
		p.Add(th)
		p.Y.Min = math.Min(p.Y.Min, threshold)
		p.Y.Max = math.Max(p.Y.Max, threshold)
	}

	wt, err := p.WriterTo(10*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

func htmlToPDF(html []byte) ([]byte, error) {
	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, err
	}
	pdfg.Orientation.Set(wkhtmltopdf.OrientationLandscape)
	page := wkhtmltopdf.NewPageReader(bytes.NewReader(html))
	page.JavascriptDelay.Set(1000)
	pdfg.AddPage(page)
	if err := pdfg.Create(); err != nil {
		return nil, err
	}
	return pdfg.Bytes(), nil
}
