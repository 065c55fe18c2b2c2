package main

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/scorewise/scorewise/internal/api"
	"github.com/scorewise/scorewise/internal/config"
	"github.com/scorewise/scorewise/internal/dashboard"
	apperrors "github.com/scorewise/scorewise/internal/errors"
	"github.com/scorewise/scorewise/internal/explain"
	"github.com/scorewise/scorewise/internal/inference"
	"github.com/scorewise/scorewise/internal/middleware"
	"github.com/scorewise/scorewise/internal/monitoring"
	"github.com/scorewise/scorewise/internal/population"
	"github.com/scorewise/scorewise/internal/ratelimit"
	"github.com/scorewise/scorewise/internal/schema"
)

// scorer and explainer are the two operations the request boundary needs from
// the loaded model; tests substitute failing implementations.
type scorer interface {
	Score(rec schema.Record) (inference.ScoreResult, error)
	Threshold() float64
}

type explainer interface {
	Explain(rec schema.Record) (*explain.AttributionResult, error)
}

type server struct {
	cfg        *config.Config
	logger     *monitoring.Logger
	metrics    *monitoring.Metrics
	schema     *schema.Schema
	features   []api.FeatureInfo
	scorer     scorer
	explainer  explainer
	population *population.Store
	version    string
}

// setupRouter assembles the middleware chain and routes. The rate limiter and
// dashboard are optional; tests usually pass nil for both.
func setupRouter(s *server, limiter *ratelimit.RateLimiter, dash *dashboard.Handler) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(monitoring.Middleware(s.metrics, s.logger))
	r.Use(apperrors.ErrorHandler())
	r.Use(apperrors.RecoveryHandler())
	r.Use(middleware.SecurityHeaders())
	r.Use(cors.New(corsConfig(s.cfg.CORSOrigins)))
	if limiter != nil {
		r.Use(limiter.Middleware())
	}

	r.GET("/", s.handleRoot)
	r.GET("/health", s.handleHealth)
	r.POST("/predict", s.handlePredict)
	r.GET("/features", s.handleFeatures)
	r.GET("/importance", s.handleImportance)
	r.GET("/population/features", s.handlePopulationFeatures)
	r.GET("/population/:feature/histogram", s.handleHistogram)

	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if dash != nil {
		dash.Register(r)
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", middleware.HeaderRequestID}
	cfg.MaxAge = 12 * time.Hour
	if len(origins) == 1 && origins[0] == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func (s *server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

func (s *server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"version":   s.version,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *server) handlePredict(c *gin.Context) {
	start := time.Now()

	var req api.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewSchemaMismatchError("invalid request body: " + err.Error()))
		return
	}

	rec, err := s.schema.MergeValues(req.Values)
	if err != nil {
		var mismatch *schema.MismatchError
		if errors.As(err, &mismatch) {
			c.Error(apperrors.NewSchemaMismatchError(mismatch.Error()))
		} else {
			c.Error(apperrors.ToAppError(err))
		}
		return
	}

	score, err := s.scorer.Score(rec)
	if err != nil {
		c.Error(err)
		return
	}
	s.metrics.ObservePrediction(score.Label)

	resp := api.PredictResponse{
		Prediction: score.Label,
		Proba:      score.Probability,
		Threshold:  score.Threshold,
	}

	// Attribution is best effort: a failing explanation degrades the response
	// to score-only, it never fails the request.
	requestID := c.GetString("request_id")
	explained := false
	if attribution, err := s.explainer.Explain(rec); err != nil {
		s.metrics.ExplanationFailures.Inc()
		s.logger.ExplanationFailureLogger(requestID, err)
	} else {
		expected := attribution.ExpectedValue
		resp.ShapValues = attribution.Contributions
		resp.ExpectedValue = &expected
		explained = true
	}

	s.logger.PredictionLogger(requestID, score.Probability, score.Threshold, score.Label, explained, time.Since(start))
	c.JSON(http.StatusOK, resp)
}

func (s *server) handleFeatures(c *gin.Context) {
	c.JSON(http.StatusOK, api.FeaturesResponse{Features: s.features})
}

func (s *server) handleImportance(c *gin.Context) {
	summary, err := explain.LoadImportance(s.cfg.ImportancePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "global importance has not been computed"})
			return
		}
		c.Error(apperrors.ToAppError(err))
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *server) handlePopulationFeatures(c *gin.Context) {
	if s.population == nil {
		c.JSON(http.StatusOK, gin.H{"features": []string{}})
		return
	}
	names, err := s.population.Features()
	if err != nil {
		c.Error(apperrors.ToAppError(err))
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"features": names})
}

func (s *server) handleHistogram(c *gin.Context) {
	if s.population == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "no reference population loaded"})
		return
	}

	feature := c.Param("feature")
	bins := 30
	if raw := c.Query("bins"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			bins = n
		}
	}
	var value *float64
	if raw := c.Query("value"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.Error(apperrors.NewSchemaMismatchError("value must be a number, got " + strconv.Quote(raw)))
			return
		}
		value = &v
	}

	hist, err := s.population.Histogram(feature, bins, value)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, hist)
}

// featureInfos derives the GET /features payload from the loaded artifacts:
// kind and categories from the transform, defaults from the baseline record.
func featureInfos(sc *schema.Schema, isCategorical func(string) bool, categories func(string) []string) []api.FeatureInfo {
	baseline := sc.Baseline()
	infos := make([]api.FeatureInfo, 0, sc.Len())
	for _, name := range sc.Features() {
		info := api.FeatureInfo{Name: name, Kind: "numeric", Default: baseline[name]}
		if isCategorical(name) {
			info.Kind = "categorical"
			info.Categories = categories(name)
		}
		infos = append(infos, info)
	}
	return infos
}
