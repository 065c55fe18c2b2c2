package dashboard

import (
	"fmt"
	"html/template"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scorewise/scorewise/internal/api"
	"github.com/scorewise/scorewise/internal/client"
	"github.com/scorewise/scorewise/internal/monitoring"
)

const sessionCookie = "scorewise_session"

// Handler serves the multi-page dashboard. It holds no model state of its own:
// every score, explanation and histogram comes from the prediction service
// through the HTTP client, and page-to-page state lives in the session store.
type Handler struct {
	client *client.Client
	store  *SessionStore
	logger *monitoring.Logger
	pages  map[string]*template.Template
}

// NewHandler parses the embedded templates and wires the dashboard against the
// given prediction-service client.
func NewHandler(c *client.Client, store *SessionStore, logger *monitoring.Logger) (*Handler, error) {
	pages, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("dashboard: parse templates: %w", err)
	}
	return &Handler{client: c, store: store, logger: logger, pages: pages}, nil
}

// Register mounts the dashboard routes on the router.
func (h *Handler) Register(r gin.IRouter) {
	grp := r.Group("/dashboard")
	grp.GET("", h.home)
	grp.GET("/form", h.form)
	grp.POST("/predict", h.predict)
	grp.GET("/scoring", h.scoring)
	grp.GET("/explain", h.explain)
	grp.GET("/compare", h.compare)
	grp.GET("/simulate", h.simulate)
}

// frame carries the fields every page's layout needs. Page structs embed it so
// template lookups resolve through promotion.
type frame struct {
	Title  string
	Error  string
	Notice string
}

func (h *Handler) render(c *gin.Context, page string, status int, data any) {
	tmpl, ok := h.pages[page]
	if !ok {
		c.String(http.StatusInternalServerError, "unknown page %q", page)
		return
	}
	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(c.Writer, "layout", data); err != nil {
		h.logger.Error("dashboard render failed", "page", page, "error", err.Error())
	}
}

func (h *Handler) session(c *gin.Context) (*Session, bool) {
	id, err := c.Cookie(sessionCookie)
	if err != nil || id == "" {
		return nil, false
	}
	return h.store.Get(id)
}

type homeData struct {
	frame
	APIUp      bool
	APIMessage string
}

func (h *Handler) home(c *gin.Context) {
	data := homeData{frame: frame{Title: "Home"}}
	msg, err := h.client.Health(c.Request.Context())
	if err != nil {
		h.logger.Warn("prediction service health check failed", "error", err.Error())
	} else {
		data.APIUp = true
		data.APIMessage = msg
	}
	h.render(c, "home", http.StatusOK, data)
}

type formField struct {
	Name    string
	Options []string
	Value   string
}

type formData struct {
	frame
	Heading string
	Intro   string
	Fields  []formField
}

// buildFields turns the declared feature metadata into form controls,
// pre-filling from prior input when present and baseline defaults otherwise.
func buildFields(features []api.FeatureInfo, prior map[string]string) []formField {
	fields := make([]formField, 0, len(features))
	for _, f := range features {
		field := formField{Name: f.Name, Options: f.Categories, Value: formatValue(f.Default)}
		if prior != nil {
			if v, ok := prior[f.Name]; ok {
				field.Value = v
			}
		}
		fields = append(fields, field)
	}
	return fields
}

func (h *Handler) form(c *gin.Context) {
	h.renderForm(c, "Applicant form",
		"Enter the applicant's attributes. Fields are pre-filled with typical values.", nil, "")
}

func (h *Handler) simulate(c *gin.Context) {
	var prior map[string]string
	if s, ok := h.session(c); ok {
		prior = s.Input
	}
	h.renderForm(c, "Simulation",
		"Adjust one or more attributes and re-score to see how the decision moves.", prior, "")
}

func (h *Handler) renderForm(c *gin.Context, heading, intro string, prior map[string]string, errMsg string) {
	data := formData{frame: frame{Title: heading, Error: errMsg}, Heading: heading, Intro: intro}
	features, err := h.client.Features(c.Request.Context())
	if err != nil {
		data.Error = err.Error()
		h.render(c, "form", http.StatusBadGateway, data)
		return
	}
	data.Fields = buildFields(features, prior)
	h.render(c, "form", http.StatusOK, data)
}

func (h *Handler) predict(c *gin.Context) {
	ctx := c.Request.Context()
	features, err := h.client.Features(ctx)
	if err != nil {
		h.renderForm(c, "Applicant form", "", nil, err.Error())
		return
	}

	input := make(map[string]string, len(features))
	values := make([]any, 0, len(features))
	for _, f := range features {
		raw := c.PostForm(f.Name)
		input[f.Name] = raw
		if f.Kind == "categorical" {
			values = append(values, raw)
			continue
		}
		num, parseErr := strconv.ParseFloat(raw, 64)
		if parseErr != nil {
			h.renderForm(c, "Applicant form", "",
				input, fmt.Sprintf("%s must be a number, got %q", f.Name, raw))
			return
		}
		values = append(values, num)
	}

	result, err := h.client.Predict(ctx, values)
	if err != nil {
		h.renderForm(c, "Applicant form", "", input, err.Error())
		return
	}

	id := h.store.Put(&Session{Input: input, Values: values, Result: result})
	c.SetCookie(sessionCookie, id, int(h.store.ttl/time.Second), "/dashboard", "", false, true)
	c.Redirect(http.StatusSeeOther, "/dashboard/scoring")
}

type importanceBar struct {
	Label string
	Pct   float64
	Value float64
}

type scoringData struct {
	frame
	Prediction    int
	ProbaPct      float64
	ThresholdPct  float64
	Importance    []importanceBar
	ImportanceAge string
}

func (h *Handler) scoring(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		c.Redirect(http.StatusSeeOther, "/dashboard/form")
		return
	}
	data := scoringData{
		frame:        frame{Title: "Scoring"},
		Prediction:   s.Result.Prediction,
		ProbaPct:     s.Result.Proba * 100,
		ThresholdPct: s.Result.Threshold * 100,
	}
	if summary, err := h.client.Importance(c.Request.Context()); err == nil && len(summary.Features) > 0 {
		peak := summary.Features[0].Importance
		for _, f := range summary.Features {
			peak = math.Max(peak, f.Importance)
		}
		for _, f := range summary.Features {
			pct := 0.0
			if peak > 0 {
				pct = f.Importance / peak * 100
			}
			data.Importance = append(data.Importance, importanceBar{Label: f.Feature, Pct: pct, Value: f.Importance})
		}
		data.ImportanceAge = summary.GeneratedAt
	}
	h.render(c, "scoring", http.StatusOK, data)
}

type contributionBar struct {
	Feature  string
	Input    string
	Impact   float64
	Positive bool
	Pct      float64
}

type explainData struct {
	frame
	Degraded    bool
	Bars        []contributionBar
	HasExpected bool
	Expected    float64
}

func (h *Handler) explain(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		c.Redirect(http.StatusSeeOther, "/dashboard/form")
		return
	}
	data := explainData{frame: frame{Title: "Explanation"}}
	if s.Result.ShapValues == nil {
		data.Degraded = true
		h.render(c, "explain", http.StatusOK, data)
		return
	}

	features, err := h.client.Features(c.Request.Context())
	if err != nil || len(features) != len(s.Result.ShapValues) {
		data.Degraded = true
		h.render(c, "explain", http.StatusOK, data)
		return
	}

	peak := 0.0
	for _, v := range s.Result.ShapValues {
		peak = math.Max(peak, math.Abs(v))
	}
	for i, f := range features {
		impact := s.Result.ShapValues[i]
		pct := 0.0
		if peak > 0 {
			pct = math.Abs(impact) / peak * 100
		}
		data.Bars = append(data.Bars, contributionBar{
			Feature:  f.Name,
			Input:    s.Input[f.Name],
			Impact:   impact,
			Positive: impact > 0,
			Pct:      pct,
		})
	}
	if s.Result.ExpectedValue != nil {
		data.HasExpected = true
		data.Expected = *s.Result.ExpectedValue
	}
	h.render(c, "explain", http.StatusOK, data)
}

type histogramRow struct {
	Label  string
	Pct    float64
	Count  int
	Marked bool
}

type compareData struct {
	frame
	FeatureNames   []string
	Selected       string
	Buckets        []histogramRow
	HasPercentile  bool
	Percentile     float64
	ApplicantValue string
}

func (h *Handler) compare(c *gin.Context) {
	ctx := c.Request.Context()
	data := compareData{frame: frame{Title: "Comparison"}}

	names, err := h.client.PopulationFeatures(ctx)
	if err != nil {
		data.Error = err.Error()
		h.render(c, "compare", http.StatusBadGateway, data)
		return
	}
	if len(names) == 0 {
		data.Notice = "No reference population is loaded."
		h.render(c, "compare", http.StatusOK, data)
		return
	}
	data.FeatureNames = names
	data.Selected = c.Query("feature")
	if data.Selected == "" {
		data.Selected = names[0]
	}

	var applicantRaw string
	var applicantNum *float64
	if s, ok := h.session(c); ok {
		applicantRaw = s.Input[data.Selected]
		if num, parseErr := strconv.ParseFloat(applicantRaw, 64); parseErr == nil {
			applicantNum = &num
		}
	}
	data.ApplicantValue = applicantRaw

	hist, err := h.client.Histogram(ctx, data.Selected, applicantNum)
	if err != nil {
		data.Error = err.Error()
		h.render(c, "compare", http.StatusBadGateway, data)
		return
	}
	data.Buckets = histogramRows(hist, applicantRaw, applicantNum)
	if hist.Percentile != nil {
		data.HasPercentile = true
		data.Percentile = *hist.Percentile
	}
	h.render(c, "compare", http.StatusOK, data)
}

// histogramRows converts a histogram response into display rows, marking the
// bucket the applicant falls into.
func histogramRows(hist *api.HistogramResponse, raw string, num *float64) []histogramRow {
	peak := 0
	for _, b := range hist.Buckets {
		if b.Count > peak {
			peak = b.Count
		}
	}
	for _, cat := range hist.Categories {
		if cat.Count > peak {
			peak = cat.Count
		}
	}
	if peak == 0 {
		return nil
	}

	var rows []histogramRow
	for i, b := range hist.Buckets {
		marked := num != nil && *num >= b.Low && (*num < b.High || i == len(hist.Buckets)-1 && *num <= b.High)
		rows = append(rows, histogramRow{
			Label:  fmt.Sprintf("%s – %s", formatFloat(b.Low), formatFloat(b.High)),
			Pct:    float64(b.Count) / float64(peak) * 100,
			Count:  b.Count,
			Marked: marked,
		})
	}
	for _, cat := range hist.Categories {
		rows = append(rows, histogramRow{
			Label:  cat.Category,
			Pct:    float64(cat.Count) / float64(peak) * 100,
			Count:  cat.Count,
			Marked: raw != "" && raw == cat.Category,
		})
	}
	return rows
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return formatFloat(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
