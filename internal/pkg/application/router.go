package application

import (
	"compress/flate"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/application/auth"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/application/services"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/config"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/ratelimit"

	"github.com/rs/cors"
)

//RequestRouter wraps the chi router serving the registry api
type RequestRouter struct {
	impl *chi.Mux
}

//Get accepts a pattern that should be routed to the handlerFn on a GET request
func (router *RequestRouter) Get(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Get(pattern, handlerFn)
}

//ServeHTTP lets the router be used as an http.Handler
func (router *RequestRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	router.impl.ServeHTTP(w, r)
}

func newRequestRouter() *RequestRouter {
	router := &RequestRouter{impl: chi.NewRouter()}

	router.impl.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		Debug:            false,
	}).Handler)

	// Enable compression for json responses. Firmware downloads are streamed as is.
	compressor := middleware.NewCompressor(flate.DefaultCompression, "application/json")
	router.impl.Use(compressor.Handler)
	router.impl.Use(middleware.RequestID)
	router.impl.Use(middleware.Logger)

	return router
}

func (router *RequestRouter) addAPIHandlers(log logging.Logger, svc *services.Services, verifier *auth.Verifier, limiter *ratelimit.Limiter) {
	router.impl.Route("/api/v1", func(r chi.Router) {
		r.Use(authenticate(log, verifier))
		r.Use(rateLimit(log, limiter))

		r.Route("/types", func(r chi.Router) {
			r.Post("/", newCreateTypeHandler(log, svc.Types))
			r.Get("/", newListTypesHandler(log, svc.Types))
			r.Get("/{id}", newGetTypeHandler(log, svc.Types))
			r.Put("/{id}", newUpdateTypeHandler(log, svc.Types))
			r.With(requireRole(auth.RoleAdmin)).Delete("/{id}", newDeleteTypeHandler(log, svc.Types))
		})

		r.Route("/groups", func(r chi.Router) {
			r.Post("/", newCreateGroupHandler(log, svc.Groups))
			r.Get("/", newListGroupsHandler(log, svc.Groups))
			r.Get("/{id}", newGetGroupHandler(log, svc.Groups))
			r.Put("/{id}", newUpdateGroupHandler(log, svc.Groups))
			r.Delete("/{id}", newDeleteGroupHandler(log, svc.Groups))
		})

		r.Route("/devices", func(r chi.Router) {
			r.Post("/", newCreateDeviceHandler(log, svc.Devices))
			r.Get("/", newListDevicesHandler(log, svc.Devices))
			r.Get("/{id}", newGetDeviceHandler(log, svc.Devices))
			r.Put("/{id}", newUpdateDeviceHandler(log, svc.Devices))
			r.Delete("/{id}", newDeleteDeviceHandler(log, svc.Devices))
		})

		r.Route("/tags", func(r chi.Router) {
			r.Post("/", newCreateTagHandler(log, svc.Tags))
			r.Get("/", newListTagsHandler(log, svc.Tags))
			r.Get("/{id}", newGetTagHandler(log, svc.Tags))
			r.Put("/{id}", newUpdateTagHandler(log, svc.Tags))
			r.Delete("/{id}", newDeleteTagHandler(log, svc.Tags))
		})

		r.Route("/firmware", func(r chi.Router) {
			r.Post("/", newUploadFirmwareHandler(log, svc.Firmware))
			r.Get("/info", newListFirmwareHandler(log, svc.Firmware))
			r.Get("/{id}", newDownloadFirmwareHandler(log, svc.Firmware))
			r.Get("/{id}/info", newGetFirmwareInfoHandler(log, svc.Firmware))
			r.Put("/{id}/info", newUpdateFirmwareInfoHandler(log, svc.Firmware))
			r.Delete("/{id}", newDeleteFirmwareHandler(log, svc.Firmware))
		})

		r.Route("/deployments", func(r chi.Router) {
			r.Post("/", newCreateDeploymentHandler(log, svc.Deployments))
			r.Get("/", newListDeploymentsHandler(log, svc.Deployments))
			r.Get("/{id}", newGetDeploymentHandler(log, svc.Deployments))
			r.Delete("/{id}", newDeleteDeploymentHandler(log, svc.Deployments))
			r.Get("/{id}/tasks", newListDeploymentTasksHandler(log, svc.Deployments))
			r.Put("/{id}/tasks/{task_id}", newUpdateDeploymentTaskHandler(log, svc.Deployments))
			r.Post("/{id}/tasks/{task_id}/logs", newAddTaskLogHandler(log, svc.Deployments))
			r.Get("/{id}/tasks/{task_id}/logs", newListTaskLogsHandler(log, svc.Deployments))
		})
	})
}

func newPingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"ping": "pong!"})
	}
}

func createRequestRouter(log logging.Logger, svc *services.Services, verifier *auth.Verifier, limiter *ratelimit.Limiter) *RequestRouter {
	router := newRequestRouter()

	router.Get("/ping", newPingHandler())
	router.addAPIHandlers(log, svc, verifier, limiter)

	return router
}

//CreateRouterAndStartServing sets up the REST router and starts serving incoming requests
func CreateRouterAndStartServing(log logging.Logger, cfg *config.Config, svc *services.Services, verifier *auth.Verifier, limiter *ratelimit.Limiter) {
	router := createRequestRouter(log, svc, verifier, limiter)

	log.Infof("Starting %s on %s.", cfg.ServiceName, cfg.ListenAddr())
	log.Fatal(http.ListenAndServe(cfg.ListenAddr(), router.impl))
}
