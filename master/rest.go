// Copyright 2026 bubbly Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package master

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bubbly-io/recommender/base/log"
	"github.com/bubbly-io/recommender/model/gbdt"
	"github.com/bubbly-io/recommender/storage/meta"
	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/emicklei/go-restful/otelrestful"
	"go.uber.org/zap"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusHealthy = "healthy"
)

// Status is the body of responses without payload.
type Status struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type TrainMetrics struct {
	Accuracy float32  `json:"accuracy"`
	AUC      *float32 `json:"auc"`
}

type TrainResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Metrics *TrainMetrics `json:"metrics,omitempty"`
}

type PredictRequest struct {
	UserId string `json:"user_id"`
	Limit  int    `json:"limit"`
}

type PredictResponse struct {
	Status               string   `json:"status"`
	UserId               string   `json:"user_id"`
	RecommendedBubbleIds []string `json:"recommended_bubble_ids"`
}

type Health struct {
	Status        string                  `json:"status"`
	ModelLoaded   bool                    `json:"model_loaded"`
	Model         *meta.Model[gbdt.Score] `json:"model,omitempty"`
	InterestDrift *InterestDrift          `json:"interest_drift,omitempty"`
}

func (m *Master) StartHttpServer() {
	m.HttpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", m.Config.Master.HttpHost, m.Config.Master.HttpPort),
		Handler: m.CreateContainer(),
	}
	log.Logger().Info("start http server",
		zap.String("url", fmt.Sprintf("http://%s:%d", m.Config.Master.HttpHost, m.Config.Master.HttpPort)))
	if err := m.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Logger().Fatal("failed to start http server", zap.Error(err))
	}
}

// CreateContainer registers the RESTful APIs, the OpenAPI document and prometheus metrics.
func (m *Master) CreateContainer() *restful.Container {
	m.CreateWebService()
	container := restful.NewContainer()
	container.Add(m.WebService)
	specConfig := restfulspec.Config{
		WebServices: container.RegisteredWebServices(),
		APIPath:     "/apidocs.json",
	}
	container.Add(restfulspec.NewOpenAPIService(specConfig))
	container.Handle("/metrics", promhttp.Handler())
	return container
}

// RequestIdFilter tags every response with a request id.
func RequestIdFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	requestId := req.HeaderParameter("X-Request-ID")
	if requestId == "" {
		requestId = uuid.New().String()
	}
	resp.Header().Set("X-Request-ID", requestId)
	chain.ProcessFilter(req, resp)
}

func LogFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	start := time.Now()
	chain.ProcessFilter(req, resp)
	if req.Request.URL.Path != "/api/health" {
		log.ResponseLogger(resp).Info(fmt.Sprintf("%s %s", req.Request.Method, req.Request.URL),
			zap.Int("status_code", resp.StatusCode()),
			zap.Duration("duration", time.Since(start)))
	}
}

func (m *Master) CreateWebService() {
	ws := new(restful.WebService)
	ws.Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	ws.Path("/api/")
	ws.Filter(otelrestful.OTelFilter("bubbly-recommender"))
	ws.Filter(RequestIdFilter)
	ws.Filter(LogFilter)

	ws.Route(ws.POST("/train").To(m.postTrain).
		Doc("Train the ranking model on closed bubbles.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"model"}).
		AllowedMethodsWithoutContentType([]string{http.MethodPost}).
		Returns(http.StatusOK, "OK", TrainResponse{}).
		Returns(http.StatusBadRequest, "not enough data for training", Status{}).
		Returns(http.StatusConflict, "training in progress", Status{}).
		Writes(TrainResponse{}))
	ws.Route(ws.GET("/train/runs").To(m.getTrainRuns).
		Doc("Get latest training runs.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"model"}).
		Param(ws.QueryParameter("n", "number of returned runs").DataType("int")).
		Writes([]meta.TrainRun{}))
	ws.Route(ws.POST("/predict").To(m.postPredict).
		Doc("Recommend open bubbles to a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Reads(PredictRequest{}).
		Writes(PredictResponse{}))
	ws.Route(ws.GET("/recommend/{user-id}").To(m.getRecommend).
		Doc("Recommend open bubbles to a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("string")).
		Param(ws.QueryParameter("n", "number of returned bubbles").DataType("int")).
		Writes([]string{}))
	ws.Route(ws.GET("/health").To(m.getHealth).
		Doc("Get the health of the recommender.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
		Writes(Health{}))
	m.WebService = ws
}

func (m *Master) postTrain(request *restful.Request, response *restful.Response) {
	result, err := m.Train(request.Request.Context())
	if errors.Is(err, ErrTrainingInProgress) {
		Error(response, http.StatusConflict, "training is in progress")
		return
	} else if err != nil {
		InternalServerError(response, err)
		return
	}
	if !result.Success {
		Error(response, http.StatusBadRequest, result.Message)
		return
	}
	metrics := &TrainMetrics{Accuracy: result.Score.Accuracy}
	if result.Score.AUC.Available {
		metrics.AUC = &result.Score.AUC.Value
	}
	Ok(response, TrainResponse{Status: StatusSuccess, Message: result.Message, Metrics: metrics})
}

func (m *Master) getTrainRuns(request *restful.Request, response *restful.Response) {
	n, err := ParseInt(request, "n", 10)
	if err != nil {
		BadRequest(response, err)
		return
	}
	runs, err := m.metaStore.ListTrainRuns(n)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	if runs == nil {
		runs = []*meta.TrainRun{}
	}
	Ok(response, runs)
}

func (m *Master) postPredict(request *restful.Request, response *restful.Response) {
	var req PredictRequest
	if err := request.ReadEntity(&req); err != nil {
		BadRequest(response, err)
		return
	}
	if req.UserId == "" {
		Error(response, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Limit < 0 {
		Error(response, http.StatusBadRequest, "limit must not be negative")
		return
	}
	bubbleIds, err := m.recommend(request, req.UserId, req.Limit)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, PredictResponse{Status: StatusSuccess, UserId: req.UserId, RecommendedBubbleIds: bubbleIds})
}

func (m *Master) getRecommend(request *restful.Request, response *restful.Response) {
	userId := request.PathParameter("user-id")
	n, err := ParseInt(request, "n", m.Config.Recommend.DefaultN)
	if err != nil {
		BadRequest(response, err)
		return
	}
	if n < 0 {
		Error(response, http.StatusBadRequest, "n must not be negative")
		return
	}
	bubbleIds, err := m.recommend(request, userId, n)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, bubbleIds)
}

func (m *Master) recommend(request *restful.Request, userId string, n int) ([]string, error) {
	start := time.Now()
	result, err := m.recommender.TopN(request.Request.Context(), userId, n)
	if err != nil {
		return nil, errors.Trace(err)
	}
	RecommendSeconds.Observe(time.Since(start).Seconds())
	if result.Snapshot != nil {
		RecommendTotal.WithLabelValues(LabelModel).Inc()
	} else {
		RecommendTotal.WithLabelValues(LabelFallback).Inc()
	}
	return result.BubbleIds(), nil
}

func (m *Master) getHealth(request *restful.Request, response *restful.Response) {
	snapshot := m.slot.Load()
	health := Health{
		Status:      StatusHealthy,
		ModelLoaded: snapshot != nil,
		Model:       m.modelMeta(snapshot),
	}
	if snapshot != nil {
		if drift, err := m.checkDrift(request.Request.Context(), snapshot); err != nil {
			log.ResponseLogger(response).Warn("failed to check interest drift", zap.Error(err))
		} else {
			health.InterestDrift = &drift
		}
	}
	Ok(response, health)
}

// ParseInt parses integers from the query parameter.
func ParseInt(request *restful.Request, name string, fallback int) (value int, err error) {
	valueString := request.QueryParameter(name)
	value, err = strconv.Atoi(valueString)
	if err != nil && valueString == "" {
		value = fallback
		err = nil
	}
	return
}

// BadRequest returns a bad request error.
func BadRequest(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("bad request", zap.Error(err))
	if err = response.WriteError(http.StatusBadRequest, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// InternalServerError returns a internal server error.
func InternalServerError(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("internal server error", zap.Error(err))
	if err = response.WriteError(http.StatusInternalServerError, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// Error sends an error status as JSON.
func Error(response *restful.Response, code int, message string) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteHeaderAndJson(code, Status{Status: StatusError, Message: message}, restful.MIME_JSON); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}

// Ok sends the content as JSON to the client.
func Ok(response *restful.Response, content interface{}) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteAsJson(content); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}
