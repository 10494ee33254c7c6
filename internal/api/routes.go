package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"exchange/internal/api/handlers"
	"exchange/internal/api/middleware"
	"exchange/internal/service"
	"exchange/internal/websocket"
	"exchange/pkg/ratelimit"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	OrderService     service.OrderServiceInterface
	LiquidityService service.LiquidityServiceInterface
	Hub              *websocket.Hub
	Limiter          *ratelimit.RateLimiter

	// AdminTokenHash - bcrypt-хеш токена доступа к liquidity endpoints
	AdminTokenHash string

	Logger *zap.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /orders/
//	│   ├── POST / - создать ордер
//	│   ├── GET / - открытые ордера пользователя
//	│   ├── GET /{id} - получить ордер
//	│   └── DELETE /{id} - отменить ордер
//	├── /pairs - GET, список торгуемых пар
//	├── /orderbook/
//	│   ├── GET /{pair}/prices - лучшие цены
//	│   └── GET /{pair}/deals - последние сделки
//	└── /liquidity/ (админский токен)
//	    ├── POST /orders - импорт ордера внешней биржи
//	    ├── PUT /orders/{id} - изменение объёма
//	    ├── DELETE /orders/{id} - удаление ордера
//	    ├── POST /trade-results - подтверждение внешней сделки
//	    └── DELETE /orderbooks - удаление стакана (exchange, pair)
//
// /ws - WebSocket поток книги заявок и сделок
// /metrics - Prometheus метрики
// /health - проверка живости
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. RateLimit (для /api/v1)
// 5. AdminAuth (только для /api/v1/liquidity)
func SetupRoutes(deps *Dependencies) *mux.Router {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logging(log))
	router.Use(middleware.CORS)

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()
	if deps.Limiter != nil {
		api.Use(middleware.RateLimit(deps.Limiter))
	}

	if deps.OrderService != nil {
		orderHandler := handlers.NewOrderHandler(deps.OrderService)
		api.HandleFunc("/orders", orderHandler.CreateOrder).Methods("POST")
		api.HandleFunc("/orders", orderHandler.GetOrders).Methods("GET")
		api.HandleFunc("/orders/{id}", orderHandler.GetOrder).Methods("GET")
		api.HandleFunc("/orders/{id}", orderHandler.CancelOrder).Methods("DELETE")

		orderbookHandler := handlers.NewOrderbookHandler(deps.OrderService)
		api.HandleFunc("/pairs", orderbookHandler.GetPairs).Methods("GET")
		api.HandleFunc("/orderbook/{pair}/prices", orderbookHandler.GetPrices).Methods("GET")
		api.HandleFunc("/orderbook/{pair}/deals", orderbookHandler.GetRecentDeals).Methods("GET")
	}

	// Liquidity routes: только для доверенного gateway
	if deps.LiquidityService != nil {
		liquidityHandler := handlers.NewLiquidityHandler(deps.LiquidityService)
		liquidity := api.PathPrefix("/liquidity").Subrouter()
		liquidity.Use(middleware.AdminAuth(deps.AdminTokenHash))

		liquidity.HandleFunc("/orders", liquidityHandler.ImportOrder).Methods("POST")
		liquidity.HandleFunc("/orders/{id}", liquidityHandler.UpdateOrder).Methods("PUT")
		liquidity.HandleFunc("/orders/{id}", liquidityHandler.DeleteOrder).Methods("DELETE")
		liquidity.HandleFunc("/trade-results", liquidityHandler.ApplyTradeResult).Methods("POST")
		liquidity.HandleFunc("/orderbooks", liquidityHandler.RemoveOrderbook).Methods("DELETE")
	}

	// WebSocket route
	if deps.Hub != nil {
		router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(deps.Hub, w, r)
		})
	}

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
