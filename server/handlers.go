package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/YuminosukeSato/gbforecast/frame"
	"github.com/YuminosukeSato/gbforecast/pipeline"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
)

type predictRequest struct {
	Records []map[string]any `json:"records"`
}

type forecastRequest struct {
	Horizon int              `json:"horizon"`
	Records []map[string]any `json:"records"`
}

type predictionResponse struct {
	Predictions []pipeline.Prediction `json:"predictions"`
}

func (s *Server) health(c *gin.Context) {
	s.mu.RLock()
	loaded := s.predictor != nil
	s.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "model_loaded": loaded})
}

func (s *Server) model(c *gin.Context) {
	b := s.current().Bundle()
	c.JSON(http.StatusOK, gin.H{
		"metadata":      b.Metadata,
		"feature_names": b.FeatureNames,
		"num_trees":     len(b.Model.Trees),
		"params":        b.Model.Params,
	})
}

func (s *Server) predictFile(c *gin.Context) {
	s.logger.Info("Received prediction request")
	preds, err := s.current().PredictFile(c.Request.Context(), s.cfg.Serving.InferenceFile)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, predictionResponse{Predictions: preds})
}

func (s *Server) predictRecords(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, errors.Wrap(err, "decode request"))
		return
	}
	if len(req.Records) == 0 {
		s.fail(c, http.StatusBadRequest, errors.NewValueError("predict", "records must not be empty"))
		return
	}
	f, err := frame.FromMaps(req.Records)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	preds, err := s.current().PredictFrame(c.Request.Context(), f)
	if err != nil {
		s.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, predictionResponse{Predictions: preds})
}

// forecast extends the posted records, or the inference file when none are
// posted, by horizon steps.
func (s *Server) forecast(c *gin.Context) {
	var req forecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, errors.Wrap(err, "decode request"))
		return
	}
	if req.Horizon <= 0 || req.Horizon > s.cfg.Serving.MaxHorizon {
		s.fail(c, http.StatusBadRequest, errors.NewValidationError("horizon",
			"must be between 1 and serving.max_horizon", req.Horizon))
		return
	}

	p := s.current()
	if len(req.Records) == 0 {
		preds, err := p.ForecastFile(c.Request.Context(), s.cfg.Serving.InferenceFile, req.Horizon)
		if err != nil {
			s.fail(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, predictionResponse{Predictions: preds})
		return
	}
	f, err := frame.FromMaps(req.Records)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	preds, err := p.Forecast(c.Request.Context(), f, req.Horizon)
	if err != nil {
		s.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, predictionResponse{Predictions: preds})
}

// statusFor maps errors caused by posted records to 400: a missing column, a
// rule violation, or too few rows to survive the data stages. Only payload
// paths use it; failures on the server's own inference file are 500.
func statusFor(err error) int {
	var (
		se  *errors.SchemaError
		ve  *errors.ValidationError
		vae *errors.ValueError
	)
	if errors.As(err, &se) || errors.As(err, &ve) || errors.As(err, &vae) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("Prediction failed", err)
		c.JSON(status, gin.H{"error": "inference failed: " + err.Error()})
		return
	}
	s.logger.Warn("Rejected request", err)
	c.JSON(status, gin.H{"error": err.Error()})
}
