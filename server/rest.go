// Copyright 2026 gorse Project Authors
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

package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/araddon/dateparse"
	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/google/uuid"
	"github.com/gorse-io/insight/base/json"
	"github.com/gorse-io/insight/base/log"
	"github.com/gorse-io/insight/base/task"
	"github.com/gorse-io/insight/cmd/version"
	"github.com/gorse-io/insight/config"
	"github.com/gorse-io/insight/logics"
	"github.com/gorse-io/insight/sentiment"
	"github.com/gorse-io/insight/storage/cache"
	"github.com/gorse-io/insight/storage/data"
	"github.com/jellydator/ttlcache/v3"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"github.com/swaggest/swgui/v5emb"
	"go.opentelemetry.io/contrib/instrumentation/github.com/emicklei/go-restful/otelrestful"
	"go.uber.org/zap"
)

const (
	apiDocsPath = "/apidocs.json"
	apiUIPath   = "/apidocs/"
)

// Master is the batch recompute loop seen by the query API.
type Master interface {
	logics.SnapshotProvider
	Tasks() []task.Task
	Schedule(force bool)
}

// RestServer implements the query API.
type RestServer struct {
	Config      *config.Config
	DataClient  data.Database
	CacheClient cache.Database
	Master      Master
	WebService  *restful.WebService
	HttpServer  *http.Server

	ledger    *logics.Ledger
	readCache *ttlcache.Cache[string, string]
}

func NewRestServer(cfg *config.Config, dataClient data.Database, cacheClient cache.Database, master Master) *RestServer {
	s := &RestServer{
		Config:      cfg,
		DataClient:  dataClient,
		CacheClient: cacheClient,
		Master:      master,
		WebService:  new(restful.WebService),
		ledger:      logics.NewLedger(dataClient),
		readCache: ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](cfg.Server.CacheExpire),
			ttlcache.WithDisableTouchOnHit[string, string]()),
	}
	s.CreateWebService()
	s.HttpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: s.Handler(),
	}
	return s
}

// Handler returns the REST API with OpenAPI docs and Prometheus metrics.
func (s *RestServer) Handler() http.Handler {
	container := restful.NewContainer()
	container.Add(s.WebService)
	specConfig := restfulspec.Config{
		WebServices: container.RegisteredWebServices(),
		APIPath:     apiDocsPath,
	}
	container.Add(restfulspec.NewOpenAPIService(specConfig))
	container.Handle(apiUIPath, v5emb.New("Insight", apiDocsPath, apiUIPath))
	container.Handle("/metrics", promhttp.Handler())
	return container
}

// StartHttpServer serves the API until Shutdown is called.
func (s *RestServer) StartHttpServer() error {
	go s.readCache.Start()
	log.Logger().Info("start http server",
		zap.String("url", fmt.Sprintf("http://%s", s.HttpServer.Addr)))
	if err := s.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Trace(err)
	}
	return nil
}

func (s *RestServer) Shutdown(ctx context.Context) error {
	s.readCache.Stop()
	return errors.Trace(s.HttpServer.Shutdown(ctx))
}

// LogFilter tags requests with an id and logs them after processing.
func LogFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	start := time.Now()
	requestId := req.HeaderParameter("X-Request-ID")
	if requestId == "" {
		requestId = uuid.NewString()
	}
	resp.Header().Set("X-Request-ID", requestId)
	chain.ProcessFilter(req, resp)
	RequestSecondsVec.WithLabelValues(req.SelectedRoutePath(), strconv.Itoa(resp.StatusCode())).
		Observe(time.Since(start).Seconds())
	log.ResponseLogger(resp).Info(fmt.Sprintf("%s %s", req.Request.Method, req.Request.URL),
		zap.Int("status_code", resp.StatusCode()),
		zap.Duration("elapsed", time.Since(start)))
}

// AuthFilter rejects requests without the configured API key.
func (s *RestServer) AuthFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	if s.Config.Server.APIKey == "" || req.HeaderParameter("X-API-Key") == s.Config.Server.APIKey {
		chain.ProcessFilter(req, resp)
		return
	}
	log.ResponseLogger(resp).Error("unauthorized", zap.String("path", req.Request.URL.Path))
	if err := resp.WriteError(http.StatusUnauthorized, fmt.Errorf("unauthorized")); err != nil {
		log.ResponseLogger(resp).Error("failed to write error", zap.Error(err))
	}
}

// CreateWebService creates web service.
func (s *RestServer) CreateWebService() {
	ws := s.WebService
	ws.Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	ws.Path("/api/")
	ws.Filter(otelrestful.OTelFilter("insight"))
	ws.Filter(LogFilter)
	ws.Filter(s.AuthFilter)

	/* Behaviors */

	ws.Route(ws.POST("/interaction").To(s.recordInteraction).
		Doc("Record an interaction.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"interaction"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Reads(InteractionRequest{}).
		Returns(http.StatusOK, "OK", data.Interaction{}).
		Writes(data.Interaction{}))

	/* Recommendations */

	ws.Route(ws.GET("/recommend/{user-id}").To(s.getRecommend).
		Doc("Get recommended items for a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("string")).
		Param(ws.QueryParameter("method", "content, user_based, item_based, collaborative, sgd, svd, nmf, factor or hybrid").DataType("string")).
		Param(ws.QueryParameter("n", "number of returned items").DataType("integer")).
		Returns(http.StatusOK, "OK", []cache.Score{}).
		Writes([]cache.Score{}))
	ws.Route(ws.GET("/item/{item-id}/similar").To(s.getSimilarItems).
		Doc("Get items similar to an item.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("item-id", "identifier of the item").DataType("string")).
		Param(ws.QueryParameter("n", "number of returned items").DataType("integer")).
		Returns(http.StatusOK, "OK", []cache.Score{}).
		Writes([]cache.Score{}))
	ws.Route(ws.GET("/user/{user-id}/preference").To(s.getPreference).
		Doc("Get the preference summary of a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"user"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("string")).
		Returns(http.StatusOK, "OK", logics.PreferenceSummary{}).
		Writes(logics.PreferenceSummary{}))
	ws.Route(ws.GET("/user/{user-id}/similar").To(s.getSimilarUsers).
		Doc("Get users with similar preferences.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"user"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("string")).
		Param(ws.QueryParameter("n", "number of returned users").DataType("integer")).
		Returns(http.StatusOK, "OK", []cache.Score{}).
		Writes([]cache.Score{}))

	/* Sentiment */

	ws.Route(ws.GET("/item/{item-id}/sentiment").To(s.getSentiment).
		Doc("Get the sentiment summary of an item.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"sentiment"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("item-id", "identifier of the item").DataType("string")).
		Returns(http.StatusOK, "OK", sentiment.Summary{}).
		Returns(http.StatusNotFound, "item has no review", nil).
		Writes(sentiment.Summary{}))
	ws.Route(ws.GET("/item/{item-id}/insights").To(s.getInsights).
		Doc("Get the sentiment summary, trend and recent reviews of an item.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"sentiment"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("item-id", "identifier of the item").DataType("string")).
		Returns(http.StatusOK, "OK", sentiment.Insights{}).
		Returns(http.StatusNotFound, "item has no review", nil).
		Writes(sentiment.Insights{}))
	ws.Route(ws.GET("/sentiment/top").To(s.getTopSentiment).
		Doc("Get items ranked by sentiment.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"sentiment"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.QueryParameter("type", "positive, negative or all").DataType("string")).
		Param(ws.QueryParameter("n", "number of returned items").DataType("integer")).
		Returns(http.StatusOK, "OK", []cache.Score{}).
		Writes([]cache.Score{}))
	ws.Route(ws.GET("/aspect/{aspect}").To(s.getAspectInsights).
		Doc("Get items ranked by the sentiment on an aspect.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"sentiment"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("aspect", "name of the aspect").DataType("string")).
		Param(ws.QueryParameter("n", "number of returned items").DataType("integer")).
		Returns(http.StatusOK, "OK", []sentiment.AspectInsight{}).
		Writes([]sentiment.AspectInsight{}))

	/* Operations */

	ws.Route(ws.GET("/status").To(s.getStatus).
		Doc("Get the status of the engine.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"operation"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Returns(http.StatusOK, "OK", Status{}).
		Writes(Status{}))
	ws.Route(ws.GET("/tasks").To(s.getTasks).
		Doc("Get the progress of recompute jobs.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"operation"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Returns(http.StatusOK, "OK", []task.Task{}).
		Writes([]task.Task{}))
	ws.Route(ws.POST("/recompute").To(s.recompute).
		Doc("Schedule a recompute pass.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"operation"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.QueryParameter("force", "recompute fresh entities").DataType("boolean")).
		Returns(http.StatusOK, "OK", Success{}).
		Writes(Success{}))
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

// parseN parses the positive number of returned entities.
func (s *RestServer) parseN(request *restful.Request) (int, error) {
	n, err := ParseInt(request, "n", s.Config.Server.DefaultN)
	if err != nil {
		return 0, errors.NewNotValid(err, "n")
	}
	if n <= 0 {
		return 0, errors.NotValidf("n = %d", n)
	}
	return n, nil
}

// readThrough reads a JSON value from the cache store through the read cache.
func (s *RestServer) readThrough(ctx context.Context, key string, v any) error {
	if item := s.readCache.Get(key); item != nil {
		ReadCacheHitsTotal.Inc()
		return json.UnmarshalString(item.Value(), v)
	}
	ReadCacheMissesTotal.Inc()
	value, err := s.CacheClient.Get(ctx, key).String()
	if err != nil {
		return errors.Trace(err)
	}
	if s.Config.Server.CacheExpire > 0 {
		s.readCache.Set(key, value, ttlcache.DefaultTTL)
	}
	return json.UnmarshalString(value, v)
}

type InteractionRequest struct {
	UserId string `json:"user_id"`
	ItemId string `json:"item_id"`
	Type   string `json:"type"`
	// Weight defaults to 1.
	Weight *float64 `json:"weight,omitempty"`
	// Timestamp defaults to now. Any common date format is accepted.
	Timestamp string `json:"timestamp,omitempty"`
}

func (s *RestServer) recordInteraction(request *restful.Request, response *restful.Response) {
	var body InteractionRequest
	if err := request.ReadEntity(&body); err != nil {
		BadRequest(response, err)
		return
	}
	timestamp := time.Now()
	if body.Timestamp != "" {
		var err error
		if timestamp, err = dateparse.ParseAny(body.Timestamp); err != nil {
			BadRequest(response, errors.NewNotValid(err, "timestamp"))
			return
		}
	}
	weight := 1.0
	if body.Weight != nil {
		weight = *body.Weight
	}
	interaction, err := s.ledger.Record(request.Request.Context(), body.UserId, body.ItemId, body.Type, weight, timestamp)
	if err != nil {
		WriteError(response, err)
		return
	}
	Ok(response, interaction)
}

func (s *RestServer) getRecommend(request *restful.Request, response *restful.Response) {
	start := time.Now()
	userId := request.PathParameter("user-id")
	method := request.QueryParameter("method")
	n, err := s.parseN(request)
	if err != nil {
		BadRequest(response, err)
		return
	}
	recommender := logics.NewRecommender(*s.Config, s.CacheClient, s.DataClient, s.Master.Snapshot(), userId)
	scores, err := recommender.Recommend(request.Request.Context(), method, n)
	if err != nil {
		WriteError(response, err)
		return
	}
	RecommendSecondsVec.WithLabelValues(lo.Ternary(method == "", logics.HybridRecommender, method)).
		Observe(time.Since(start).Seconds())
	Ok(response, nonNil(scores))
}

func (s *RestServer) getSimilarItems(request *restful.Request, response *restful.Response) {
	itemId := request.PathParameter("item-id")
	n, err := s.parseN(request)
	if err != nil {
		BadRequest(response, err)
		return
	}
	scores, err := logics.LoadSimilarItems(request.Request.Context(), s.CacheClient, s.DataClient, itemId, n)
	if err != nil {
		WriteError(response, err)
		return
	}
	Ok(response, nonNil(scores))
}

func (s *RestServer) getPreference(request *restful.Request, response *restful.Response) {
	userId := request.PathParameter("user-id")
	var profile logics.PreferenceProfile
	if err := s.readThrough(request.Request.Context(), cache.Key(cache.UserProfile, userId), &profile); err != nil {
		if errors.Is(err, errors.NotFound) {
			var empty *logics.PreferenceProfile
			Ok(response, empty.Summary())
			return
		}
		InternalServerError(response, err)
		return
	}
	Ok(response, profile.Summary())
}

func (s *RestServer) getSimilarUsers(request *restful.Request, response *restful.Response) {
	userId := request.PathParameter("user-id")
	n, err := s.parseN(request)
	if err != nil {
		BadRequest(response, err)
		return
	}
	scores, err := s.CacheClient.SearchScores(request.Request.Context(), cache.SimilarUsers, userId, 0, n)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, nonNil(scores))
}

func (s *RestServer) getSentiment(request *restful.Request, response *restful.Response) {
	itemId := request.PathParameter("item-id")
	var summary sentiment.Summary
	if err := s.readThrough(request.Request.Context(), cache.Key(cache.ItemSentiment, itemId), &summary); err != nil {
		if errors.Is(err, errors.NotFound) {
			PageNotFound(response, errors.NotFoundf("sentiment of item %s", itemId))
			return
		}
		InternalServerError(response, err)
		return
	}
	Ok(response, summary)
}

func (s *RestServer) getInsights(request *restful.Request, response *restful.Response) {
	ctx := request.Request.Context()
	itemId := request.PathParameter("item-id")
	insights := sentiment.Insights{Summary: new(sentiment.Summary)}
	for key, v := range map[string]any{
		cache.Key(cache.ItemSentiment, itemId):     insights.Summary,
		cache.Key(cache.ItemTrend, itemId):         &insights.Trend,
		cache.Key(cache.ItemRecentReviews, itemId): &insights.RecentReviews,
	} {
		if err := s.readThrough(ctx, key, v); err != nil {
			if errors.Is(err, errors.NotFound) {
				PageNotFound(response, errors.NotFoundf("insights of item %s", itemId))
				return
			}
			InternalServerError(response, err)
			return
		}
	}
	Ok(response, insights)
}

func (s *RestServer) getTopSentiment(request *restful.Request, response *restful.Response) {
	kind, err := sentiment.ParseTopKind(request.QueryParameter("type"))
	if err != nil {
		BadRequest(response, err)
		return
	}
	n, err := s.parseN(request)
	if err != nil {
		BadRequest(response, err)
		return
	}
	scores, err := s.CacheClient.SearchScores(request.Request.Context(), cache.SentimentRank, string(kind), 0, n)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	if kind == sentiment.TopNegative {
		// negative rankings are stored negated
		scores = lo.Map(scores, func(score cache.Score, _ int) cache.Score {
			return cache.Score{Id: score.Id, Score: -score.Score}
		})
	}
	Ok(response, nonNil(scores))
}

func (s *RestServer) getAspectInsights(request *restful.Request, response *restful.Response) {
	aspect, err := sentiment.ParseAspect(request.PathParameter("aspect"))
	if err != nil {
		BadRequest(response, err)
		return
	}
	n, err := s.parseN(request)
	if err != nil {
		BadRequest(response, err)
		return
	}
	ctx := request.Request.Context()
	scores, err := s.CacheClient.SearchScores(ctx, cache.AspectSentiment, aspect, 0, n)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	insights := make([]sentiment.AspectInsight, 0, len(scores))
	for _, score := range scores {
		insight := sentiment.AspectInsight{
			ItemId:        score.Id,
			AspectSummary: sentiment.AspectSummary{Aspect: aspect, Score: score.Score},
		}
		var summary sentiment.Summary
		if err = s.readThrough(ctx, cache.Key(cache.ItemSentiment, score.Id), &summary); err == nil {
			if aspectSummary, ok := summary.Aspects[aspect]; ok {
				insight.AspectSummary = aspectSummary
			}
		} else if !errors.Is(err, errors.NotFound) {
			InternalServerError(response, err)
			return
		}
		insights = append(insights, insight)
	}
	Ok(response, insights)
}

// Status is the state of the engine.
type Status struct {
	Version                 version.Info `json:"version"`
	SnapshotTime            *time.Time   `json:"snapshot_time,omitempty"`
	Users                   int64        `json:"users"`
	Products                int64        `json:"products"`
	Reviews                 int64        `json:"reviews"`
	Interactions            int64        `json:"interactions"`
	LastFitFactorModelsTime time.Time    `json:"last_fit_factor_models_time"`
	LastUpdateSentimentTime time.Time    `json:"last_update_sentiment_time"`
}

func (s *RestServer) getStatus(request *restful.Request, response *restful.Response) {
	ctx := request.Request.Context()
	stats, err := s.DataClient.Stats(ctx)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	status := Status{
		Version:      version.GetInfo(),
		Users:        stats.Users,
		Products:     stats.Products,
		Reviews:      stats.Reviews,
		Interactions: stats.Interactions,
	}
	if snapshot := s.Master.Snapshot(); snapshot != nil {
		status.SnapshotTime = &snapshot.Timestamp
	}
	if status.LastFitFactorModelsTime, err = s.CacheClient.Get(ctx, cache.Key(cache.GlobalMeta, cache.LastFitFactorModelsTime)).Time(); err != nil {
		InternalServerError(response, err)
		return
	}
	if status.LastUpdateSentimentTime, err = s.CacheClient.Get(ctx, cache.Key(cache.GlobalMeta, cache.LastUpdateSentimentTime)).Time(); err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, status)
}

func (s *RestServer) getTasks(_ *restful.Request, response *restful.Response) {
	Ok(response, s.Master.Tasks())
}

type Success struct {
	Scheduled bool `json:"scheduled"`
	Force     bool `json:"force"`
}

func (s *RestServer) recompute(request *restful.Request, response *restful.Response) {
	force := false
	if value := request.QueryParameter("force"); value != "" {
		var err error
		if force, err = strconv.ParseBool(value); err != nil {
			BadRequest(response, errors.NewNotValid(err, "force"))
			return
		}
	}
	s.Master.Schedule(force)
	Ok(response, Success{Scheduled: true, Force: force})
}

func nonNil(scores []cache.Score) []cache.Score {
	if scores == nil {
		return []cache.Score{}
	}
	return scores
}

// WriteError maps invalid input to 400, missing entities to 404 and anything
// else to 500.
func WriteError(response *restful.Response, err error) {
	switch {
	case errors.Is(err, errors.NotValid):
		BadRequest(response, err)
	case errors.Is(err, errors.NotFound):
		PageNotFound(response, err)
	default:
		InternalServerError(response, err)
	}
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

// PageNotFound returns a not found error.
func PageNotFound(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteError(http.StatusNotFound, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// Ok sends the content as JSON to the client.
func Ok(response *restful.Response, content any) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteAsJson(content); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}
